package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/takbridge/track"
)

func TestHubBroadcastReachesSubscriber(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	s.Hub().BroadcastTrack(track.Track{UID: "unit-9", Side: track.SideFriendly, Lat: 1, Lon: 2})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var upd trackUpdate
	require.NoError(t, json.Unmarshal(frame, &upd))
	assert.Equal(t, "track", upd.Type)
	assert.Equal(t, "unit-9", upd.Track.UID)
}

func TestHubDropsClientOnClose(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestHubCloseDisconnectsAll(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	s.Hub().Close()
	assert.Zero(t, s.Hub().ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastWithNoSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < wsBroadcastDepth+10; i++ {
		hub.BroadcastTrack(track.Track{UID: "u"})
	}
}
