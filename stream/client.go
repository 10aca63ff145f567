package stream

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/semrelay/config"
	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/health"
	"github.com/c360/semrelay/metric"
	"github.com/c360/semrelay/pkg/tlsutil"
)

// StreamPath is appended to the ingest URL path to form the stream endpoint
const StreamPath = "/ws/stream"

const (
	writeWait      = 10 * time.Second
	handshakeLimit = 15 * time.Second
)

// State is the lifecycle position of a Client
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventSink receives every event decoded from the stream. A returned error is
// logged and counted; it never closes the connection.
type EventSink interface {
	Handle(ctx context.Context, ev event.Event) error
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ctx context.Context, ev event.Event) error

// Handle calls f
func (f SinkFunc) Handle(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}

// authFrame is the first message sent on every connection
type authFrame struct {
	Type      string `json:"type"`
	APIKey    string `json:"api_key"`
	Workspace string `json:"workspace"`
}

// Client maintains an authenticated WebSocket session with the gateway and
// reconnects at a fixed interval whenever it drops without a close frame from the
// gateway.
type Client struct {
	url               string
	apiKey            string
	workspace         string
	reconnectInterval time.Duration
	dialer            *websocket.Dialer
	sink              EventSink
	logger            *slog.Logger
	registrar         metric.MetricsRegistrar
	metrics           *Metrics

	state        atomic.Int32
	running      atomic.Bool
	messages     atomic.Int64
	errorCount   atomic.Int64
	reconnects   atomic.Int64
	lastActivity atomic.Value // time.Time
	startTime    time.Time
}

// Option configures a Client
type Option func(*Client)

// WithReconnectInterval overrides the fixed wait between connection attempts
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectInterval = d
		}
	}
}

// WithDialer replaces the WebSocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers stream metrics with the given registrar
func WithMetrics(registrar metric.MetricsRegistrar) Option {
	return func(c *Client) {
		c.registrar = registrar
	}
}

// WithURL points the client at an explicit stream endpoint instead of one derived
// from the ingest URL
func WithURL(streamURL string) Option {
	return func(c *Client) {
		if streamURL != "" {
			c.url = streamURL
		}
	}
}

// New creates a stream client from cfg that delivers events to sink
func New(cfg *config.Config, sink EventSink, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "StreamClient", "New", "configuration not provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.WrapFatal(fmt.Errorf("nil sink"), "StreamClient", "New", "event sink not provided")
	}

	streamURL, err := BuildStreamURL(cfg.IngestURL)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:               streamURL,
		apiKey:            cfg.APIKey,
		workspace:         cfg.Workspace,
		reconnectInterval: cfg.ReconnectInterval,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeLimit,
			TLSClientConfig:  tlsConfig,
		},
		sink:      sink,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	if c.reconnectInterval <= 0 {
		c.reconnectInterval = config.DefaultReconnectInterval
	}
	for _, opt := range opts {
		opt(c)
	}

	metrics, err := newMetrics(c.registrar)
	if err != nil {
		return nil, errors.Wrap(err, "StreamClient", "New", "register metrics")
	}
	c.metrics = metrics

	return c, nil
}

// BuildStreamURL derives the WebSocket endpoint from an ingest URL: http becomes
// ws, https becomes wss, and StreamPath is appended to the path.
func BuildStreamURL(ingestURL string) (string, error) {
	u, err := url.Parse(ingestURL)
	if err != nil {
		return "", errors.WrapFatal(err, "StreamClient", "BuildStreamURL", "parse ingest url")
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.WrapFatal(
			fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"StreamClient", "BuildStreamURL", "derive stream url")
	}
	if u.Host == "" {
		return "", errors.WrapFatal(
			fmt.Errorf("%w: ingest url has no host", errors.ErrInvalidConfig),
			"StreamClient", "BuildStreamURL", "derive stream url")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + StreamPath
	u.RawPath = ""
	return u.String(), nil
}

// URL returns the stream endpoint
func (c *Client) URL() string {
	return c.url
}

// State returns the current lifecycle state
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.connectionState.Set(float64(s))
}

// ConnectAndStream connects, authenticates and forwards events to the sink until
// the server sends a close frame (returns nil) or ctx is cancelled
// (returns ctx.Err()). Every other failure is logged and followed by a reconnect
// after the configured interval, without limit.
func (c *Client) ConnectAndStream(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(fmt.Errorf("already streaming"), "StreamClient", "ConnectAndStream", "start")
	}
	defer c.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateClosed)
			return err
		}

		err := c.session(ctx)
		if err == nil {
			c.setState(StateClosed)
			c.logger.Info("Stream closed by server", "url", c.url)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.setState(StateClosed)
			return ctxErr
		}

		c.setState(StateErrored)
		c.reconnects.Add(1)
		c.metrics.reconnectsTotal.Inc()
		c.logger.Warn("Stream disconnected, reconnecting",
			"error", err,
			"delay", c.reconnectInterval)

		timer := time.NewTimer(c.reconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateClosed)
			return ctx.Err()
		case <-timer.C:
		}
		c.setState(StateDisconnected)
	}
}

// session runs one connection from dial to disconnect. A nil return means the
// server closed normally.
func (c *Client) session(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.trackError("dial")
		return errors.WrapTransient(err, "StreamClient", "session", "dial")
	}
	defer conn.Close()

	// Unblock the read loop on cancellation
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	c.metrics.connectionsTotal.Inc()
	c.setState(StateAuthenticating)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(authFrame{Type: "auth", APIKey: c.apiKey, Workspace: c.workspace}); err != nil {
		c.trackError("auth")
		return errors.WrapTransient(err, "StreamClient", "session", "send auth frame")
	}
	_ = conn.SetWriteDeadline(time.Time{})

	conn.SetPingHandler(func(appData string) error {
		c.metrics.messagesReceived.WithLabelValues("ping").Inc()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if stderrors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	c.setState(StateStreaming)
	c.logger.Info("Stream connected", "url", c.url, "workspace", c.workspace)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if closeReceived(err) {
				c.logger.Debug("Close frame received", "error", err)
				return nil
			}
			c.trackError("read")
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
				"StreamClient", "session", "read message")
		}
		c.lastActivity.Store(time.Now())

		if msgType != websocket.TextMessage {
			c.metrics.messagesReceived.WithLabelValues("binary").Inc()
			c.logger.Debug("Ignoring non-text frame", "bytes", len(data))
			continue
		}

		ev, err := event.Parse(data)
		if err != nil {
			c.trackError("parse")
			c.logger.Warn("Skipping malformed stream message", "error", err)
			continue
		}

		c.messages.Add(1)
		c.metrics.messagesReceived.WithLabelValues("event").Inc()

		if err := c.sink.Handle(ctx, ev); err != nil {
			c.trackError("sink")
			c.logger.Warn("Event sink failed", "error", err)
		}
	}
}

func (c *Client) trackError(kind string) {
	c.errorCount.Add(1)
	c.metrics.errorsTotal.WithLabelValues(kind).Inc()
}

// closeReceived reports whether the gateway sent a close frame, whatever its
// status. 1006 is never sent on the wire; it marks a connection that dropped.
func closeReceived(err error) bool {
	var ce *websocket.CloseError
	return stderrors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure
}

// Status reports the client's health
func (c *Client) Status() health.Status {
	var status health.Status
	switch c.State() {
	case StateStreaming:
		status = health.NewHealthy(componentName, "Streaming from "+c.url)
	case StateConnecting, StateAuthenticating:
		status = health.NewDegraded(componentName, "Connecting")
	case StateErrored:
		status = health.NewDegraded(componentName, "Reconnecting after connection failure")
	case StateClosed:
		status = health.NewUnhealthy(componentName, "Stream closed")
	default:
		status = health.NewUnhealthy(componentName, "Not connected")
	}

	metrics := &health.Metrics{
		Uptime:            time.Since(c.startTime),
		ErrorCount:        int(c.errorCount.Load()),
		MessagesProcessed: c.messages.Load(),
		Reconnects:        c.reconnects.Load(),
	}
	if last, ok := c.lastActivity.Load().(time.Time); ok {
		metrics.LastActivity = last
	}
	return status.WithMetrics(metrics)
}
