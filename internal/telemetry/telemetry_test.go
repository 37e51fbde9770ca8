package telemetry

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestModule_BroadcastsSamples(t *testing.T) {
	frame := uint64(0)
	m := New(config.TelemetryConfig{Enabled: true, Interval: time.Second}, func() Sample {
		return Sample{Frame: frame, Modules: []string{"window", "render"}, DrawCalls: 3}
	}, zap.NewNop())
	clock := time.Unix(0, 0)
	m.now = func() time.Time { return clock }
	m.OnAwake()
	defer m.OnDestroy()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	conn := dial(t, srv.URL)
	require.Eventually(t, func() bool { return m.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	frame = 1
	m.OnLateUpdate()
	frame = 2
	clock = clock.Add(100 * time.Millisecond)
	m.OnLateUpdate() // inside the interval
	assert.Equal(t, 1, m.Sent())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got Sample
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, uint64(1), got.Frame)
	assert.Equal(t, 3, got.DrawCalls)
	assert.Equal(t, []string{"window", "render"}, got.Modules)
}

func TestModule_NoClientsNoBroadcast(t *testing.T) {
	m := New(config.TelemetryConfig{}, func() Sample { return Sample{} }, nil)
	m.OnAwake()
	m.OnLateUpdate()
	m.OnLateUpdate()
	assert.Zero(t, m.Sent())
	assert.Nil(t, m.Addr())
	m.OnDestroy()
	m.OnDestroy()
}

func TestModule_ListensOnBindAddress(t *testing.T) {
	m := New(config.TelemetryConfig{BindAddress: "127.0.0.1:0"}, nil, zap.NewNop())
	m.OnAwake()
	require.NotNil(t, m.Addr())

	conn := dial(t, "http://"+m.Addr().String())
	require.Eventually(t, func() bool { return m.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	m.OnDestroy()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "clients are disconnected on destroy")
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := NewHub(zap.NewNop())
	// hub not running: the buffer fills, then messages are dropped
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Broadcast([]byte("x"))
	}
	assert.Equal(t, 5, h.Dropped())
}
