package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/metric"
)

const testKey = "sk_test_0123456789abcdef"

// wsServer upgrades every request on the stream path and hands the connection,
// together with its ordinal, to script
type wsServer struct {
	upgrader websocket.Upgrader
	script   func(n int, conn *websocket.Conn)

	conns atomic.Int32
	mu    sync.Mutex
	auths []authFrame
	paths []string
}

func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := int(s.conns.Add(1))

	var auth authFrame
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	s.mu.Lock()
	s.auths = append(s.auths, auth)
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	s.script(n, conn)
}

func (s *wsServer) authFrames() []authFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authFrame(nil), s.auths...)
}

func (s *wsServer) requestPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func startServer(t *testing.T, script func(n int, conn *websocket.Conn)) (*wsServer, *config.Config) {
	t.Helper()
	srv := &wsServer{script: script}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.Workspace = "acme"
	cfg.IngestURL = ts.URL + "/ingest"
	cfg.ReconnectInterval = 20 * time.Millisecond
	return srv, cfg
}

func closeWith(conn *websocket.Conn, code int) {
	var payload []byte
	if code != websocket.CloseNoStatusReceived {
		payload = websocket.FormatCloseMessage(code, "")
	}
	_ = conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(time.Second))
	// Wait for the client's close reply
	_, _, _ = conn.ReadMessage()
}

// collector is a sink recording every event
type collector struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (c *collector) Handle(_ context.Context, ev event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *collector) received() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func runClient(t *testing.T, c *Client, timeout time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.ConnectAndStream(ctx)
}

func TestBuildStreamURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"https to wss", "https://api.semrelay.dev/ingest", "wss://api.semrelay.dev/ingest/ws/stream", false},
		{"http to ws", "http://localhost:8080", "ws://localhost:8080/ws/stream", false},
		{"trailing slash", "http://localhost:8080/ingest/", "ws://localhost:8080/ingest/ws/stream", false},
		{"keeps query", "https://gw.example.com/v2?region=eu", "wss://gw.example.com/v2/ws/stream?region=eu", false},
		{"already ws", "ws://localhost:1234", "ws://localhost:1234/ws/stream", false},
		{"unsupported scheme", "ftp://example.com", "", true},
		{"no host", "https:///path", "", true},
		{"unparseable", "http://[::1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildStreamURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	sink := &collector{}

	_, err := New(nil, sink)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.Workspace = "acme"

	_, err = New(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	bad := cfg.Clone()
	bad.APIKey = "short"
	_, err = New(bad, sink)
	require.Error(t, err)

	c, err := New(cfg, sink)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.semrelay.dev/ingest/ws/stream", c.URL())
	assert.Equal(t, config.DefaultReconnectInterval, c.reconnectInterval)
	assert.Equal(t, StateDisconnected, c.State())

	c, err = New(cfg, sink, WithURL("ws://override:1/x"), WithReconnectInterval(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "ws://override:1/x", c.URL())
	assert.Equal(t, time.Second, c.reconnectInterval)
}

func TestConnectAndStream_AuthAndEvents(t *testing.T) {
	srv, cfg := startServer(t, func(_ int, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":1,"source":"a","data":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":2,"event_type":"b","data":[1]}`))
		closeWith(conn, websocket.CloseNormalClosure)
	})

	sink := &collector{}
	registry := metric.NewMetricsRegistry()
	c, err := New(cfg, sink, WithMetrics(registry))
	require.NoError(t, err)

	err = runClient(t, c, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, c.State())

	auths := srv.authFrames()
	require.Len(t, auths, 1)
	assert.Equal(t, authFrame{Type: "auth", APIKey: testKey, Workspace: "acme"}, auths[0])
	assert.Equal(t, []string{"/ingest/ws/stream"}, srv.requestPaths())

	events := sink.received()
	require.Len(t, events, 2)
	assert.Equal(t, `{"timestamp":1,"source":"a","data":{}}`, events[0].String())
	assert.Equal(t, "b", events[1].Type())

	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.messagesReceived.WithLabelValues("event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.messagesReceived.WithLabelValues("binary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.errorsTotal.WithLabelValues("parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.connectionsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.reconnectsTotal))
	assert.Equal(t, float64(StateClosed), testutil.ToFloat64(c.metrics.connectionState))
}

func TestConnectAndStream_SinkErrorKeepsConnection(t *testing.T) {
	_, cfg := startServer(t, func(_ int, conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			msg := fmt.Sprintf(`{"timestamp":%d,"source":"s","data":null}`, i)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		closeWith(conn, websocket.CloseNormalClosure)
	})

	sink := &collector{err: fmt.Errorf("downstream full")}
	c, err := New(cfg, sink)
	require.NoError(t, err)

	require.NoError(t, runClient(t, c, 5*time.Second))
	assert.Len(t, sink.received(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(c.metrics.errorsTotal.WithLabelValues("sink")))
	assert.Equal(t, 3, c.Status().Metrics.ErrorCount)
}

func TestConnectAndStream_PongCarriesPingPayload(t *testing.T) {
	pongs := make(chan string, 1)
	observed := make(chan string, 1)
	_, cfg := startServer(t, func(_ int, conn *websocket.Conn) {
		conn.SetPongHandler(func(appData string) error {
			pongs <- appData
			return nil
		})
		_ = conn.WriteControl(websocket.PingMessage, []byte("payload-xyz"), time.Now().Add(time.Second))

		go func() {
			select {
			case p := <-pongs:
				observed <- p
			case <-time.After(2 * time.Second):
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		}()

		// Pong handlers only run while reading
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(cfg, &collector{})
	require.NoError(t, err)
	require.NoError(t, runClient(t, c, 5*time.Second))

	select {
	case payload := <-observed:
		assert.Equal(t, "payload-xyz", payload)
	case <-time.After(time.Second):
		t.Fatal("no pong observed")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.messagesReceived.WithLabelValues("ping")))
}

func TestConnectAndStream_ReconnectAfterDrop(t *testing.T) {
	srv, cfg := startServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// Drop without a close frame
			_ = conn.NetConn().Close()
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":9,"source":"again","data":{}}`))
		closeWith(conn, websocket.CloseNormalClosure)
	})
	cfg.ReconnectInterval = 100 * time.Millisecond

	sink := &collector{}
	c, err := New(cfg, sink)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, runClient(t, c, 5*time.Second))

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(2), srv.conns.Load())
	assert.Len(t, srv.authFrames(), 2, "auth frame must be resent on every connection")
	require.Len(t, sink.received(), 1)
	assert.Equal(t, "again", sink.received()[0].Source())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.reconnectsTotal))
	assert.Equal(t, int64(1), c.Status().Metrics.Reconnects)
}

func TestConnectAndStream_AnyCloseFrameIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"normal closure", websocket.CloseNormalClosure},
		{"no status", websocket.CloseNoStatusReceived},
		{"going away", websocket.CloseGoingAway},
		{"internal error", websocket.CloseInternalServerErr},
		{"policy violation", websocket.ClosePolicyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, cfg := startServer(t, func(n int, conn *websocket.Conn) {
				if n == 1 {
					closeWith(conn, tt.code)
					return
				}
				closeWith(conn, websocket.CloseNormalClosure)
			})

			c, err := New(cfg, &collector{})
			require.NoError(t, err)
			require.NoError(t, runClient(t, c, 5*time.Second))

			assert.Equal(t, int32(1), srv.conns.Load(), "close %d must not trigger a reconnect", tt.code)
			assert.Equal(t, StateClosed, c.State())
			assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.reconnectsTotal))
		})
	}
}

func TestConnectAndStream_DialFailureUntilCancelled(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	cfg := config.Default()
	cfg.APIKey = testKey
	cfg.Workspace = "acme"
	cfg.IngestURL = ts.URL
	cfg.ReconnectInterval = 10 * time.Millisecond
	ts.Close()

	c, err := New(cfg, &collector{})
	require.NoError(t, err)

	err = runClient(t, c, 150*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, c.State())
	assert.GreaterOrEqual(t, testutil.ToFloat64(c.metrics.errorsTotal.WithLabelValues("dial")), 2.0)
}

func TestConnectAndStream_CancelWhileStreaming(t *testing.T) {
	connected := make(chan struct{})
	_, cfg := startServer(t, func(_ int, conn *websocket.Conn) {
		close(connected)
		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c, err := New(cfg, &collector{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ConnectAndStream(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw a connection")
	}
	require.Eventually(t, func() bool { return c.State() == StateStreaming }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.Status().IsHealthy())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("ConnectAndStream did not return after cancel")
	}
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, c.Status().IsUnhealthy())
}

func TestConnectAndStream_RejectsConcurrentRun(t *testing.T) {
	c, err := New(func() *config.Config {
		cfg := config.Default()
		cfg.APIKey = testKey
		cfg.Workspace = "acme"
		return cfg
	}(), &collector{})
	require.NoError(t, err)

	c.running.Store(true)
	err = c.ConnectAndStream(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestState_String(t *testing.T) {
	names := []string{"disconnected", "connecting", "authenticating", "streaming", "closed", "errored"}
	for i, name := range names {
		assert.Equal(t, name, State(i).String())
	}
	assert.Equal(t, "unknown", State(42).String())
}
