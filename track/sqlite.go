package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/c360/takbridge/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tracks (
	uid        TEXT PRIMARY KEY,
	side       TEXT NOT NULL,
	layer      TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	updated_at TEXT NOT NULL,
	meta_json  TEXT NOT NULL
)`

const sqliteUpsert = `
INSERT INTO tracks(uid, side, layer, lat, lon, updated_at, meta_json)
VALUES(?,?,?,?,?,?,?)
ON CONFLICT(uid) DO UPDATE SET
	side=excluded.side,
	layer=excluded.layer,
	lat=excluded.lat,
	lon=excluded.lon,
	updated_at=excluded.updated_at,
	meta_json=excluded.meta_json`

// SQLiteStore persists tracks in a SQLite database. Use ":memory:" as the
// path for an in-memory database in tests.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the tracks table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "database open")
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "SQLiteStore", "NewSQLiteStore", "schema creation")
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Upsert inserts or fully replaces the track keyed by its UID.
func (s *SQLiteStore) Upsert(ctx context.Context, t Track) error {
	if t.UID == "" {
		return errors.WrapInvalid(errors.ErrMissingUID, "SQLiteStore", "Upsert", "uid validation")
	}

	meta := t.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return errors.WrapInvalid(err, "SQLiteStore", "Upsert", "meta encoding")
	}

	stamp := t.UpdatedAt
	if stamp.IsZero() {
		stamp = s.now().UTC()
	}
	updatedAt := stamp.Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, sqliteUpsert,
		t.UID, string(t.Side), string(t.Layer), t.Lat, t.Lon, updatedAt, string(metaJSON))
	if err != nil {
		return errors.WrapTransient(err, "SQLiteStore", "Upsert", "track write")
	}
	return nil
}

// List returns all stored tracks ordered by UID.
func (s *SQLiteStore) List(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, side, layer, lat, lon, updated_at, meta_json FROM tracks ORDER BY uid`)
	if err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "List", "track query")
	}
	defer func() { _ = rows.Close() }()

	var out []Track
	for rows.Next() {
		var (
			t         Track
			side      string
			layer     string
			updatedAt string
			metaJSON  string
		)
		if err := rows.Scan(&t.UID, &side, &layer, &t.Lat, &t.Lon, &updatedAt, &metaJSON); err != nil {
			return nil, errors.WrapTransient(err, "SQLiteStore", "List", "row scan")
		}

		t.Side = Side(side)
		t.Layer = Layer(layer)
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			t.UpdatedAt = ts
		}
		t.Meta = map[string]string{}
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &t.Meta); err != nil {
				return nil, errors.WrapInvalid(err, "SQLiteStore", "List", "meta decoding")
			}
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "SQLiteStore", "List", "row iteration")
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
