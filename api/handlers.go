package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/c360/takbridge/cot"
	"github.com/c360/takbridge/health"
	"github.com/c360/takbridge/track"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// trackRequest is the JSON body for track creation and updates, both on
// /api/tracks and as one record of a blue-force batch.
type trackRequest struct {
	UID      string            `json:"uid"`
	Side     string            `json:"side"`
	Layer    string            `json:"layer,omitempty"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Callsign string            `json:"callsign,omitempty"`
	CoTType  string            `json:"cot_type,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// toTrack validates the record and converts it to a track. A non-empty
// second return is the client-facing validation error.
func (r trackRequest) toTrack() (track.Track, string) {
	if r.UID == "" {
		return track.Track{}, "uid is required"
	}
	side := track.Side(r.Side)
	if r.Side == "" {
		side = track.SideUnknown
	}
	if !side.Valid() {
		return track.Track{}, "invalid side: " + r.Side
	}
	layer := track.Layer(r.Layer)
	if r.Layer == "" {
		layer = side.Layer()
	}
	if !layer.Valid() {
		return track.Track{}, "invalid layer: " + r.Layer
	}

	t := track.Track{
		UID:   r.UID,
		Side:  side,
		Layer: layer,
		Lat:   r.Lat,
		Lon:   r.Lon,
		Meta:  map[string]string{},
	}
	for k, v := range r.Meta {
		t.Meta[k] = v
	}
	// Explicit fields win over the free-form meta map.
	if r.Callsign != "" {
		t.Meta[track.MetaCallsign] = r.Callsign
	}
	if r.CoTType != "" {
		t.Meta[track.MetaCoTType] = r.CoTType
	}
	return t, ""
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTracks(w, r)
	case http.MethodPost:
		s.upsertTrack(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("Track listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(tracks),
		"tracks": tracks,
	})
}

func (s *Server) upsertTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	t, msg := req.toTrack()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := s.store.Upsert(r.Context(), t); err != nil {
		s.logger.Error("Track upsert failed", "uid", t.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// bftBatch is the blue-force feed payload: a batch of full track records.
type bftBatch struct {
	Tracks []trackRequest `json:"tracks"`
}

func (s *Server) handleIngestBFT(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var batch bftBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for _, rec := range batch.Tracks {
		t, msg := rec.toTrack()
		if msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if err := s.store.Upsert(r.Context(), t); err != nil {
			s.logger.Error("BFT upsert failed", "uid", t.UID, "error", err)
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"count": len(batch.Tracks),
	})
}

// handleCoTIngest accepts one raw CoT XML document and runs it through
// the same classification path as the TAK stream. Useful for testing a
// deployment without a live server.
func (s *Server) handleCoTIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, cot.DefaultMaxBuffer))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := cot.Parse(bytes.TrimSpace(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed CoT document")
		return
	}
	res := cot.Classify(ev, s.callsign)
	if res.Skipped {
		writeJSON(w, http.StatusOK, map[string]any{
			"accepted": false,
			"reason":   res.Reason,
		})
		return
	}
	if err := s.store.Upsert(r.Context(), res.Track); err != nil {
		s.logger.Error("CoT ingest upsert failed", "uid", res.Track.UID, "error", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"accepted": true,
		"track":    res.Track,
	})
}

// handleCoTPull renders the locally held tracks as CoT XML, the same
// payload the bridge pushes on its interval.
func (s *Server) handleCoTPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tracks, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	now := time.Now()
	staleAfter := s.pushInterval + 15*time.Second
	var buf bytes.Buffer
	for _, t := range tracks {
		if t.FromTAKServer() {
			continue
		}
		raw, err := cot.Marshal(cot.NewTrackEvent(t, now, staleAfter))
		if err != nil {
			continue
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.bridge == nil {
		writeError(w, http.StatusNotFound, "tak bridge disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.runtime == nil {
		writeError(w, http.StatusNotFound, "runtime config not exposed")
		return
	}
	writeJSON(w, http.StatusOK, s.runtime.Get())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := map[string]any{}
	overall := health.NewHealthy("takbridge", "all components healthy")
	if s.monitor != nil {
		overall = s.monitor.AggregateHealth("takbridge")
		resp["components"] = s.monitor.GetAll()
	}
	resp["status"] = overall.Status
	resp["healthy"] = overall.Healthy
	if s.bridge != nil {
		resp["bridge"] = s.bridge.Status()
	}

	code := http.StatusOK
	if overall.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
