// Package track defines the local track model and the Store contract used by
// the TAK bridge and the HTTP API. A track is keyed by its UID; upserting an
// existing UID replaces all fields atomically (last write wins).
package track

import (
	"context"
	"strings"
	"time"
)

// Side is the affiliation of a track.
type Side string

// Track affiliations.
const (
	SideFriendly Side = "friendly"
	SideEnemy    Side = "enemy"
	SideNeutral  Side = "neutral"
	SideUnknown  Side = "unknown"
)

// Valid reports whether s is a known affiliation.
func (s Side) Valid() bool {
	switch s {
	case SideFriendly, SideEnemy, SideNeutral, SideUnknown:
		return true
	}
	return false
}

// Layer returns the display layer derived from the affiliation:
// friendly stays friendly, enemy stays enemy, everything else is other.
func (s Side) Layer() Layer {
	switch s {
	case SideFriendly:
		return LayerFriendly
	case SideEnemy:
		return LayerEnemy
	default:
		return LayerOther
	}
}

// DefaultCoTType returns the CoT event type used for a track of this side
// when the track carries no cot_type of its own.
func (s Side) DefaultCoTType() string {
	switch s {
	case SideFriendly:
		return "a-f-G-U-C"
	case SideEnemy:
		return "a-h-G-U-C"
	case SideNeutral:
		return "a-n-G-U-C"
	default:
		return "a-u-G-U-C"
	}
}

// SideFromCoTType classifies a CoT type attribute by its affiliation prefix.
func SideFromCoTType(cotType string) Side {
	switch {
	case strings.HasPrefix(cotType, "a-f"):
		return SideFriendly
	case strings.HasPrefix(cotType, "a-h"):
		return SideEnemy
	case strings.HasPrefix(cotType, "a-n"):
		return SideNeutral
	default:
		return SideUnknown
	}
}

// Layer is the display category of a track.
type Layer string

// Display layers. The bridge only produces friendly/enemy/other; the HTTP API
// additionally accepts fires, air, and ew for locally authored tracks.
const (
	LayerFriendly Layer = "friendly"
	LayerEnemy    Layer = "enemy"
	LayerFires    Layer = "fires"
	LayerAir      Layer = "air"
	LayerEW       Layer = "ew"
	LayerOther    Layer = "other"
)

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerFriendly, LayerEnemy, LayerFires, LayerAir, LayerEW, LayerOther:
		return true
	}
	return false
}

// Metadata keys carried in Track.Meta.
const (
	MetaCoTType  = "cot_type"
	MetaHow      = "how"
	MetaTime     = "time"
	MetaStart    = "start"
	MetaStale    = "stale"
	MetaSIDC     = "sidc"
	MetaCallsign = "callsign"
	MetaSource   = "source"
)

// SourceTAKServer marks tracks that arrived over the TAK bridge. Tracks
// carrying it are never pushed back out over the same channel.
const SourceTAKServer = "tak_server"

// Track is a single situational-awareness marker.
type Track struct {
	UID       string            `json:"uid"`
	Side      Side              `json:"side"`
	Layer     Layer             `json:"layer"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Meta      map[string]string `json:"meta"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FromTAKServer reports whether the track was ingested over the bridge.
func (t Track) FromTAKServer() bool {
	return t.Meta[MetaSource] == SourceTAKServer
}

// Callsign returns the track's callsign, falling back to its UID.
func (t Track) Callsign() string {
	if cs := t.Meta[MetaCallsign]; cs != "" {
		return cs
	}
	return t.UID
}

// CoTType returns the track's stored CoT type, falling back to the
// side-derived default.
func (t Track) CoTType() string {
	if ct := t.Meta[MetaCoTType]; ct != "" {
		return ct
	}
	return t.Side.DefaultCoTType()
}

// Store is the track repository consumed by the bridge and the API.
// Implementations stamp UpdatedAt on every write.
type Store interface {
	// Upsert inserts or fully replaces the track with the same UID.
	Upsert(ctx context.Context, t Track) error

	// List returns all stored tracks.
	List(ctx context.Context) ([]Track, error)
}
