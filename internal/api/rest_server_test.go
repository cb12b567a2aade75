package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/eventbus"
	"github.com/annel0/iso-game/internal/server"
)

type fakeGame struct {
	stats server.Stats
	peers []server.PeerInfo
}

func (g *fakeGame) Stats() server.Stats       { return g.stats }
func (g *fakeGame) Peers() []server.PeerInfo { return g.peers }

func newTestGame() *fakeGame {
	return &fakeGame{
		stats: server.Stats{SessionID: "s1", MapName: "arena", Frame: 42, Peers: 1, Entities: 3},
		peers: []server.PeerInfo{{ID: 0, Name: "alice", Address: "10.0.0.1:7000", Actor: "0:1", JoinedAt: time.Unix(100, 0)}},
	}
}

func get(t *testing.T, rs *RestServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	rs.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	rs, err := NewRestServer(Config{Game: newTestGame()})
	require.NoError(t, err)

	w := get(t, rs, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-Id"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "s1", body["session"])
	assert.EqualValues(t, 42, body["frame"])
}

func TestStatsAndPeers(t *testing.T) {
	rs, err := NewRestServer(Config{Game: newTestGame()})
	require.NoError(t, err)

	w := get(t, rs, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Success bool `json:"success"`
		Data    struct {
			Game   server.Stats           `json:"game"`
			Server map[string]interface{} `json:"server"`
			Memory map[string]interface{} `json:"memory"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.True(t, stats.Success)
	assert.Equal(t, "arena", stats.Data.Game.MapName)
	assert.Equal(t, 3, stats.Data.Game.Entities)
	assert.Contains(t, stats.Data.Server, "uptime")
	assert.Contains(t, stats.Data.Memory, "goroutines")

	w = get(t, rs, "/api/peers")
	require.Equal(t, http.StatusOK, w.Code)
	var peers struct {
		Data []server.PeerInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &peers))
	require.Len(t, peers.Data, 1)
	assert.Equal(t, "alice", peers.Data[0].Name)
}

func TestEventsFromBus(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	rs, err := NewRestServer(Config{Game: newTestGame(), Bus: bus, Events: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ev, err := eventbus.NewEnvelope("test", eventbus.EventPeerLeft, i, 5, eventbus.PeerLeft{PeerID: i, Reason: "leave"})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	require.NoError(t, bus.Close())

	w := get(t, rs, "/api/events")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []*eventbus.Envelope `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// хранятся только последние два
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 1, resp.Data[0].Frame)
	assert.Equal(t, 2, resp.Data[1].Frame)

	w = get(t, rs, "/api/events?limit=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 2, resp.Data[0].Frame)

	w = get(t, rs, "/api/events?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rs, err := NewRestServer(Config{Game: newTestGame(), Registry: reg})
	require.NoError(t, err)

	get(t, rs, "/health")
	get(t, rs, "/nope")

	w := get(t, rs, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `game_api_http_request_duration_seconds_count{method="GET",path="/health",status="200"} 1`), body)
	assert.Contains(t, body, `game_api_http_request_errors_total{method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, `path="/metrics"`)
}

func TestUptimeFormat(t *testing.T) {
	pm := &ProcessMetrics{StartTime: time.Now().Add(-(26*time.Hour + 3*time.Minute + 4*time.Second))}
	assert.Equal(t, "1д 2ч 3м 4с", pm.Uptime())

	pm.StartTime = time.Now().Add(-5 * time.Second)
	assert.Equal(t, "5с", pm.Uptime())
}
