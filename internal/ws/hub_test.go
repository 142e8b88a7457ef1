package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"websocket-service/internal/ports"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryHistory struct {
	mu      sync.Mutex
	msgs    [][]byte
	failing bool
}

func (m *memoryHistory) Append(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("history unavailable")
	}
	m.msgs = append(m.msgs, payload)
	return nil
}

func (m *memoryHistory) Recent(_ context.Context, n int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.msgs) > n {
		return m.msgs[len(m.msgs)-n:], nil
	}
	return m.msgs, nil
}

func (m *memoryHistory) Close() error { return nil }

func testOptions() Options {
	return Options{
		PingInterval: time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		ClientQueue:  16,
		Replay:       8,
	}
}

func startHub(t *testing.T, opts Options, history ports.MessageHistory) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(opts, history, prometheus.NewRegistry(), zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	return string(data)
}

func TestHubBroadcast(t *testing.T) {
	hub, srv := startHub(t, testOptions(), nil)

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), []byte(`{"x":1,"y":2,"color":3}`)))

	assert.Equal(t, `{"x":1,"y":2,"color":3}`, readMessage(t, a))
	assert.Equal(t, `{"x":1,"y":2,"color":3}`, readMessage(t, b))
	assert.Equal(t, float64(1), testutil.ToFloat64(hub.metrics.totalMessages))
}

func TestHubReplaysHistory(t *testing.T) {
	history := &memoryHistory{}
	hub, srv := startHub(t, testOptions(), history)

	require.NoError(t, hub.Deliver(context.Background(), []byte("first")))
	require.NoError(t, hub.Deliver(context.Background(), []byte("second")))

	conn := dial(t, srv)
	assert.Equal(t, "first", readMessage(t, conn))
	assert.Equal(t, "second", readMessage(t, conn))
}

func TestHubHistoryFailureDoesNotBlockBroadcast(t *testing.T) {
	history := &memoryHistory{failing: true}
	hub, srv := startHub(t, testOptions(), history)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), []byte("live")))
	assert.Equal(t, "live", readMessage(t, conn))
}

func TestHubRejectsPastLimit(t *testing.T) {
	opts := testOptions()
	opts.MaxClients = 1
	hub, srv := startHub(t, opts, nil)

	dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(hub.metrics.rejectedClients))
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub, srv := startHub(t, testOptions(), nil)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(0), testutil.ToFloat64(hub.metrics.activeClients))
}

func TestHubClose(t *testing.T) {
	hub, srv := startHub(t, testOptions(), nil)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.ClientCount())
	assert.ErrorIs(t, hub.Deliver(context.Background(), []byte("late")), ports.ErrHubClosed)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
