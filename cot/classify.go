package cot

import (
	"fmt"

	"github.com/c360/takbridge/track"
)

// Skip reasons reported by Classify. Skips are intentional filtering, not
// errors; the receive loop counts them at debug level only.
const (
	SkipNoUID     = "no uid"
	SkipSelfEcho  = "own heartbeat"
	SkipNoPoint   = "no point"
	SkipBadCoords = "unparseable coordinates"
)

// Result is the outcome of classifying one inbound event: either a normalized
// track ready for upsert, or a skip with its reason.
type Result struct {
	Track   track.Track
	Skipped bool
	Reason  string
}

func skip(reason string) Result {
	return Result{Skipped: true, Reason: reason}
}

// Classify normalizes an inbound CoT event into a local track. selfCallsign
// is the bridge's own identity; its heartbeat echoed back by the server is
// never ingested.
func Classify(ev *Event, selfCallsign string) Result {
	uid := ev.EventUID()
	if uid == "" {
		return skip(SkipNoUID)
	}
	if uid == selfCallsign {
		return skip(SkipSelfEcho)
	}

	side := track.SideFromCoTType(ev.Type)

	lat, lon, err := ev.Coordinates()
	if err != nil {
		if ev.Point == nil {
			return skip(SkipNoPoint)
		}
		return skip(SkipBadCoords)
	}

	callsign := uid
	if ev.Detail != nil && ev.Detail.Contact != nil && ev.Detail.Contact.Callsign != "" {
		callsign = ev.Detail.Contact.Callsign
	}

	meta := map[string]string{
		track.MetaCoTType:  ev.Type,
		track.MetaHow:      ev.How,
		track.MetaTime:     ev.Time,
		track.MetaStart:    ev.Start,
		track.MetaStale:    ev.Stale,
		track.MetaSIDC:     DeriveSIDC(side, ev.Type),
		track.MetaCallsign: callsign,
		track.MetaSource:   track.SourceTAKServer,
	}

	return Result{
		Track: track.Track{
			UID:   uid,
			Side:  side,
			Layer: side.Layer(),
			Lat:   lat,
			Lon:   lon,
			Meta:  meta,
		},
	}
}

// DeriveSIDC composes a MIL-STD-2525-style symbol code from the affiliation
// and the dimension letter at position 5 of the CoT type (A for air,
// everything else ground).
func DeriveSIDC(side track.Side, cotType string) string {
	var aff string
	switch side {
	case track.SideFriendly:
		aff = "F"
	case track.SideEnemy:
		aff = "H"
	case track.SideNeutral:
		aff = "N"
	default:
		aff = "U"
	}

	dim := "G"
	if len(cotType) > 4 && cotType[4] == 'A' {
		dim = "A"
	}

	return fmt.Sprintf("S%s%sP------*****", aff, dim)
}
