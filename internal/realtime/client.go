package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"snda-portal/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 64 * 1024
)

// State of a channel connection
type State int

const (
	Connecting State = iota
	Open
	Closed
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Conn is the part of *websocket.Conn the channel uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// DialFunc opens a connection to url
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// GorillaDialer adapts a websocket.Dialer to a DialFunc
func GorillaDialer(d *websocket.Dialer) DialFunc {
	return func(ctx context.Context, url string, header http.Header) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type options struct {
	origin     string
	fallback   string
	header     http.Header
	dial       DialFunc
	scheduler  Scheduler
	backoff    Backoff
	pingPeriod time.Duration
	pongWait   time.Duration
}

// ChannelOption configures a Channel
type ChannelOption func(*options)

// WithOrigin sets the API origin the path is resolved against
func WithOrigin(origin string) ChannelOption {
	return func(o *options) { o.origin = origin }
}

// WithFallbackOrigin is used when the API origin is not an absolute URL
func WithFallbackOrigin(origin string) ChannelOption {
	return func(o *options) { o.fallback = origin }
}

// WithHeader sends extra handshake headers, e.g. Authorization
func WithHeader(h http.Header) ChannelOption {
	return func(o *options) { o.header = h.Clone() }
}

// WithDialer replaces the gorilla default dialer
func WithDialer(dial DialFunc) ChannelOption {
	return func(o *options) { o.dial = dial }
}

// WithScheduler replaces the runtime timer
func WithScheduler(s Scheduler) ChannelOption {
	return func(o *options) { o.scheduler = s }
}

// WithBackoff overrides the reconnect policy
func WithBackoff(b Backoff) ChannelOption {
	return func(o *options) { o.backoff = b }
}

// WithKeepalive sets the ping interval and pong deadline. A non-positive
// period disables pings and read deadlines.
func WithKeepalive(period, wait time.Duration) ChannelOption {
	return func(o *options) {
		o.pingPeriod = period
		o.pongWait = wait
	}
}

// Channel is a self-healing subscription to a realtime endpoint. Every frame
// that decodes as T is passed to the handler on the read goroutine; frames
// that do not decode are dropped.
type Channel[T any] struct {
	url     string
	path    string
	handler func(T)
	opts    options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	retries int
	conn    Conn
	timer   Timer
}

// Dial resolves the channel URL once and starts connecting in the background.
// Close must be called to stop reconnecting.
func Dial[T any](ctx context.Context, path string, handler func(T), opts ...ChannelOption) *Channel[T] {
	o := options{
		dial:       GorillaDialer(websocket.DefaultDialer),
		scheduler:  SystemScheduler{},
		backoff:    DefaultBackoff(),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Channel[T]{
		url:     ResolveURL(o.origin, path, o.fallback),
		path:    path,
		handler: handler,
		opts:    o,
		ctx:     cctx,
		cancel:  cancel,
		state:   Connecting,
	}

	c.mu.Lock()
	c.recordState(Connecting)
	c.timer = o.scheduler.AfterFunc(0, c.connect)
	c.mu.Unlock()
	return c
}

// URL returns the resolved endpoint
func (c *Channel[T]) URL() string {
	return c.url
}

// State returns the current connection state
func (c *Channel[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retries returns the number of reconnects scheduled since the last open
func (c *Channel[T]) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Close stops the channel. Pending reconnects are cancelled and the live
// connection, if any, is closed. Calling Close more than once is a no-op.
func (c *Channel[T]) Close() error {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopped
	c.recordState(Stopped)
	timer, conn := c.timer, c.conn
	c.timer, c.conn = nil, nil
	c.mu.Unlock()

	c.cancel()
	if timer != nil {
		timer.Stop()
	}
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return conn.Close()
}

func (c *Channel[T]) connect() {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = Connecting
	c.recordState(Connecting)
	c.mu.Unlock()

	conn, err := c.opts.dial(c.ctx, c.url, c.opts.header)
	if err != nil {
		observability.ChannelConnectAttempts.WithLabelValues(c.path, "error").Inc()
		slog.Warn("channel connect failed",
			slog.String("error", err.Error()),
			slog.String("url", c.url))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = Open
	c.recordState(Open)
	c.retries = 0
	c.mu.Unlock()

	observability.ChannelConnectAttempts.WithLabelValues(c.path, "success").Inc()
	slog.Info("channel open", slog.String("url", c.url))

	go c.readPump(conn)
}

func (c *Channel[T]) readPump(conn Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.closed(conn)
	}()

	conn.SetReadLimit(maxMessageSize)
	if c.opts.pingPeriod > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.opts.pongWait)); err != nil {
			slog.Warn("failed to set read deadline",
				slog.String("error", err.Error()),
				slog.String("url", c.url))
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.opts.pongWait))
		})
		go c.pingPump(conn, done)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("channel read error",
					slog.String("error", err.Error()),
					slog.String("url", c.url))
			}
			return
		}

		var msg T
		if err := json.Unmarshal(data, &msg); err != nil {
			observability.ChannelFrames.WithLabelValues(c.path, "dropped").Inc()
			slog.Debug("dropping malformed frame",
				slog.String("error", err.Error()),
				slog.String("url", c.url))
			continue
		}
		observability.ChannelFrames.WithLabelValues(c.path, "delivered").Inc()
		c.handler(msg)
	}
}

// pingPump closes conn on a failed ping so the read pump sees the error
func (c *Channel[T]) pingPump(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Warn("channel ping failed",
					slog.String("error", err.Error()),
					slog.String("url", c.url))
				conn.Close()
				return
			}
		}
	}
}

func (c *Channel[T]) closed(conn Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	c.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect timer unless one is pending or
// the channel is stopped.
func (c *Channel[T]) scheduleReconnect() {
	c.mu.Lock()
	if c.state == Stopped || c.timer != nil {
		c.mu.Unlock()
		return
	}
	delay := c.opts.backoff.Delay(c.retries)
	c.retries++
	c.state = Closed
	c.recordState(Closed)
	c.timer = c.opts.scheduler.AfterFunc(delay, c.connect)
	c.mu.Unlock()

	observability.ChannelReconnectDelay.WithLabelValues(c.path).Observe(delay.Seconds())
	slog.Info("channel reconnect scheduled",
		slog.String("url", c.url),
		slog.Duration("delay", delay))
}

func (c *Channel[T]) recordState(s State) {
	observability.ChannelState.WithLabelValues(c.path).Set(float64(s))
}
