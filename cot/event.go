// Package cot implements the Cursor-on-Target wire format: event documents,
// incremental stream framing, and classification of inbound events into local
// tracks.
package cot

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/c360/takbridge/errors"
	"github.com/c360/takbridge/track"
)

// TimeFormat is the timestamp layout used in CoT time/start/stale attributes.
const TimeFormat = "2006-01-02T15:04:05Z"

// xmlHeader precedes every serialized event, one document per message.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// Event is a single CoT event document. Lat/lon are kept as strings so that
// unparseable coordinates surface in classification instead of failing the
// whole document decode.
type Event struct {
	XMLName xml.Name `xml:"event"`
	Version string   `xml:"version,attr"`
	UID     string   `xml:"uid,attr,omitempty"`
	ID      string   `xml:"id,attr,omitempty"`
	Type    string   `xml:"type,attr,omitempty"`
	How     string   `xml:"how,attr,omitempty"`
	Time    string   `xml:"time,attr,omitempty"`
	Start   string   `xml:"start,attr,omitempty"`
	Stale   string   `xml:"stale,attr,omitempty"`
	Point   *Point   `xml:"point"`
	Detail  *Detail  `xml:"detail"`
}

// Point is the geolocation element of an event.
type Point struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	HAE string `xml:"hae,attr,omitempty"`
	CE  string `xml:"ce,attr,omitempty"`
	LE  string `xml:"le,attr,omitempty"`
}

// Detail carries the nested contact, group, and version blocks.
type Detail struct {
	Contact *Contact `xml:"contact"`
	Group   *Group   `xml:"__group"`
	Takv    *Takv    `xml:"takv"`
}

// Contact identifies the callsign of the originating entity.
type Contact struct {
	Callsign string `xml:"callsign,attr,omitempty"`
}

// Group is the CoT team/role block.
type Group struct {
	Name string `xml:"name,attr,omitempty"`
	Role string `xml:"role,attr,omitempty"`
}

// Takv is the CoT version-identification block.
type Takv struct {
	OS       string `xml:"os,attr,omitempty"`
	Version  string `xml:"version,attr,omitempty"`
	Device   string `xml:"device,attr,omitempty"`
	Platform string `xml:"platform,attr,omitempty"`
}

// EventUID returns the event identity, preferring uid over the legacy id
// attribute. Empty when the event carries neither.
func (e *Event) EventUID() string {
	if e.UID != "" {
		return e.UID
	}
	return e.ID
}

// Coordinates parses the point's lat/lon. It fails when the point is missing
// or either coordinate is not numeric.
func (e *Event) Coordinates() (lat, lon float64, err error) {
	if e.Point == nil {
		return 0, 0, errors.ErrMissingPoint
	}
	lat, err = strconv.ParseFloat(e.Point.Lat, 64)
	if err != nil {
		return 0, 0, errors.WrapInvalid(err, "cot", "Coordinates", "lat parsing")
	}
	lon, err = strconv.ParseFloat(e.Point.Lon, 64)
	if err != nil {
		return 0, 0, errors.WrapInvalid(err, "cot", "Coordinates", "lon parsing")
	}
	return lat, lon, nil
}

// Parse decodes a single raw CoT event document.
func Parse(raw []byte) (*Event, error) {
	var ev Event
	if err := xml.Unmarshal(raw, &ev); err != nil {
		return nil, errors.WrapInvalid(err, "cot", "Parse", "xml decoding")
	}
	return &ev, nil
}

// Marshal serializes an event as a standalone XML document with declaration,
// the way TAK servers expect one document per message.
func Marshal(ev *Event) ([]byte, error) {
	body, err := xml.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "cot", "Marshal", "xml encoding")
	}
	return append([]byte(xmlHeader), body...), nil
}

// Identity parameters for self-SA events.
const (
	selfSAType  = "a-f-G-U-C"
	selfSAHow   = "h-g-i-g-o"
	selfSAStale = 30 * time.Second

	groupName = "Cyan"
	groupRole = "HQ"

	takvOS       = "COP-Lite"
	takvVersion  = "1.0.0"
	takvDevice   = "server"
	takvPlatform = "Tactical COP Lite"

	// noPositionError is the ce/le value signaling "no real position".
	noPositionError = "9999999"
)

// NewSelfSA builds the bridge's own presence heartbeat: a friendly ground
// unit at the sentinel position (0,0) with maximal circular/linear error.
func NewSelfSA(callsign string, now time.Time) *Event {
	now = now.UTC()
	ts := now.Format(TimeFormat)

	return &Event{
		Version: "2.0",
		UID:     callsign,
		Type:    selfSAType,
		How:     selfSAHow,
		Time:    ts,
		Start:   ts,
		Stale:   now.Add(selfSAStale).Format(TimeFormat),
		Point: &Point{
			Lat: "0.0",
			Lon: "0.0",
			HAE: "0",
			CE:  noPositionError,
			LE:  noPositionError,
		},
		Detail: &Detail{
			Contact: &Contact{Callsign: callsign},
			Group:   &Group{Name: groupName, Role: groupRole},
			Takv: &Takv{
				OS:       takvOS,
				Version:  takvVersion,
				Device:   takvDevice,
				Platform: takvPlatform,
			},
		},
	}
}

// NewTrackEvent builds an outbound CoT event for a locally known track. The
// event type comes from the track's stored cot_type when present, otherwise
// the side-derived default; staleAfter sets the staleness window.
func NewTrackEvent(t track.Track, now time.Time, staleAfter time.Duration) *Event {
	now = now.UTC()
	ts := now.Format(TimeFormat)

	return &Event{
		Version: "2.0",
		UID:     t.UID,
		Type:    t.CoTType(),
		How:     "m-g",
		Time:    ts,
		Start:   ts,
		Stale:   now.Add(staleAfter).Format(TimeFormat),
		Point: &Point{
			Lat: formatCoord(t.Lat),
			Lon: formatCoord(t.Lon),
			HAE: "0",
			CE:  "25",
			LE:  "25",
		},
		Detail: &Detail{
			Contact: &Contact{Callsign: t.Callsign()},
		},
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// String implements fmt.Stringer for log output.
func (e *Event) String() string {
	return fmt.Sprintf("cot.Event{uid=%s type=%s}", e.EventUID(), e.Type)
}
