package cot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/track"
)

const bridgeCallsign = "COP-LITE"

func classifyRaw(t *testing.T, raw string) Result {
	t.Helper()
	ev, err := Parse([]byte(raw))
	require.NoError(t, err)
	return Classify(ev, bridgeCallsign)
}

func TestClassifyFriendlyGround(t *testing.T) {
	res := classifyRaw(t,
		`<event version="2.0" uid="X1" type="a-f-G-U-C" how="m-g"`+
			` time="t1" start="t2" stale="t3">`+
			`<point lat="10.0" lon="20.0"/></event>`)

	require.False(t, res.Skipped, res.Reason)
	tr := res.Track

	assert.Equal(t, "X1", tr.UID)
	assert.Equal(t, track.SideFriendly, tr.Side)
	assert.Equal(t, track.LayerFriendly, tr.Layer)
	assert.InDelta(t, 10.0, tr.Lat, 1e-9)
	assert.InDelta(t, 20.0, tr.Lon, 1e-9)
	assert.Equal(t, "SFGP------*****", tr.Meta[track.MetaSIDC])
	assert.Equal(t, "a-f-G-U-C", tr.Meta[track.MetaCoTType])
	assert.Equal(t, "m-g", tr.Meta[track.MetaHow])
	assert.Equal(t, "t1", tr.Meta[track.MetaTime])
	assert.Equal(t, "t3", tr.Meta[track.MetaStale])
	assert.Equal(t, track.SourceTAKServer, tr.Meta[track.MetaSource])
	assert.Equal(t, "X1", tr.Meta[track.MetaCallsign], "callsign falls back to uid")
}

func TestClassifyHostileAir(t *testing.T) {
	res := classifyRaw(t,
		`<event uid="H1" type="a-h-A-U-C"><point lat="1" lon="2"/></event>`)

	require.False(t, res.Skipped)
	assert.Equal(t, track.SideEnemy, res.Track.Side)
	assert.Equal(t, track.LayerEnemy, res.Track.Layer)
	assert.Equal(t, "SHAP------*****", res.Track.Meta[track.MetaSIDC], "air dimension letter")
}

func TestClassifySides(t *testing.T) {
	tests := []struct {
		cotType string
		side    track.Side
		layer   track.Layer
		sidc    string
	}{
		{"a-f-G-U-C", track.SideFriendly, track.LayerFriendly, "SFGP------*****"},
		{"a-h-G-U-C", track.SideEnemy, track.LayerEnemy, "SHGP------*****"},
		{"a-n-G-U-C", track.SideNeutral, track.LayerOther, "SNGP------*****"},
		{"b-m-p-s-m", track.SideUnknown, track.LayerOther, "SUGP------*****"},
		{"", track.SideUnknown, track.LayerOther, "SUGP------*****"},
	}

	for _, tt := range tests {
		t.Run(tt.cotType, func(t *testing.T) {
			ev := &Event{
				UID:   "S1",
				Type:  tt.cotType,
				Point: &Point{Lat: "0", Lon: "0"},
			}
			res := Classify(ev, bridgeCallsign)
			require.False(t, res.Skipped)
			assert.Equal(t, tt.side, res.Track.Side)
			assert.Equal(t, tt.layer, res.Track.Layer)
			assert.Equal(t, tt.sidc, res.Track.Meta[track.MetaSIDC])
		})
	}
}

func TestClassifyIDFallback(t *testing.T) {
	res := classifyRaw(t,
		`<event id="legacy-1" type="a-f-G-U-C"><point lat="3" lon="4"/></event>`)

	require.False(t, res.Skipped)
	assert.Equal(t, "legacy-1", res.Track.UID)
}

func TestClassifySkipsNoUID(t *testing.T) {
	res := classifyRaw(t,
		`<event type="a-f-G-U-C"><point lat="1" lon="2"/></event>`)

	assert.True(t, res.Skipped)
	assert.Equal(t, SkipNoUID, res.Reason)
}

func TestClassifySkipsOwnHeartbeat(t *testing.T) {
	res := classifyRaw(t,
		`<event uid="`+bridgeCallsign+`" type="a-f-G-U-C"><point lat="1" lon="2"/></event>`)

	assert.True(t, res.Skipped)
	assert.Equal(t, SkipSelfEcho, res.Reason)
}

func TestClassifySkipsMissingPoint(t *testing.T) {
	res := classifyRaw(t, `<event uid="P1" type="a-f-G-U-C"></event>`)

	assert.True(t, res.Skipped)
	assert.Equal(t, SkipNoPoint, res.Reason)
}

func TestClassifySkipsBadCoordinates(t *testing.T) {
	res := classifyRaw(t,
		`<event uid="C1" type="a-f-G-U-C"><point lat="north" lon="west"/></event>`)

	assert.True(t, res.Skipped)
	assert.Equal(t, SkipBadCoords, res.Reason)
}

func TestClassifyContactCallsign(t *testing.T) {
	res := classifyRaw(t,
		`<event uid="CS1" type="a-f-G-U-C"><point lat="1" lon="2"/>`+
			`<detail><contact callsign="RAVEN"/></detail></event>`)

	require.False(t, res.Skipped)
	assert.Equal(t, "RAVEN", res.Track.Meta[track.MetaCallsign])
}

func TestDeriveSIDCShortType(t *testing.T) {
	// Type shorter than 5 chars defaults to ground dimension
	assert.Equal(t, "SFGP------*****", DeriveSIDC(track.SideFriendly, "a-f"))
}
