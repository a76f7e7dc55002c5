package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection defaults.
const (
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	maxFrameSize            = 64 << 10
)

// State is the connection state of a Channel.
type State int32

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Handler receives events. Handlers run on the channel's reader goroutine in
// receipt order and must not block for long.
type Handler func(Event)

// Subscription identifies one registered handler.
type Subscription struct {
	event string
	id    uint64
}

// Source is anything events can be subscribed to.
type Source interface {
	On(event string, h Handler) Subscription
	Off(sub Subscription)
}

type registered struct {
	id uint64
	h  Handler
}

// Channel is the single push connection shared by every module. It dials
// lazily on the first On, redials after a fixed delay whenever the
// connection drops, and keeps handlers across reconnects.
type Channel struct {
	url            string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	state     atomic.Int32

	mu       sync.RWMutex
	handlers map[string][]registered
	nextID   uint64
	conn     *websocket.Conn
	started  bool
	closed   bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithHandshakeTimeout bounds each websocket handshake.
func WithHandshakeTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) ChannelOption {
	return func(c *Channel) {
		c.header = h.Clone()
	}
}

// NewChannel creates a Channel for the websocket at url. Nothing is dialed
// until the first handler is registered.
func NewChannel(url string, logger *slog.Logger, opts ...ChannelOption) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		url:            url,
		dialer:         &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: DefaultHandshakeTimeout},
		reconnectDelay: DefaultReconnectDelay,
		logger:         logger.With(slog.String("component", "push_channel")),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		handlers:       make(map[string][]registered),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers h for event and starts the connection if needed.
func (c *Channel) On(event string, h Handler) Subscription {
	c.mu.Lock()
	c.nextID++
	sub := Subscription{event: event, id: c.nextID}
	c.handlers[event] = append(c.handlers[event], registered{id: sub.id, h: h})
	c.mu.Unlock()

	c.start()
	return sub
}

// Off removes a handler. Removing it twice is a no-op.
func (c *Channel) Off(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.handlers[sub.event]
	for i, r := range list {
		if r.id == sub.id {
			c.handlers[sub.event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(c.handlers[sub.event]) == 0 {
		delete(c.handlers, sub.event)
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Close shuts the connection down and waits for the reader to exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if started {
		<-c.done
	}
	return nil
}

func (c *Channel) start() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.started = true
		go c.run()
	})
}

func (c *Channel) run() {
	defer close(c.done)

	for {
		conn, _, err := c.dialer.DialContext(c.ctx, c.url, c.header)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Info("push channel unavailable, retrying",
				slog.String("url", c.url),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", c.reconnectDelay),
			)
		} else if c.attach(conn) {
			c.logger.Info("push channel connected", slog.String("url", c.url))
			c.read(conn)
			c.detach()
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Info("push channel disconnected, views refresh on next interaction",
				slog.Duration("retry_in", c.reconnectDelay),
			)
		} else {
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// attach publishes conn unless the channel was closed meanwhile.
func (c *Channel) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return false
	}
	conn.SetReadLimit(maxFrameSize)
	c.conn = conn
	c.state.Store(int32(Connected))
	return true
}

func (c *Channel) detach() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(Disconnected))
	c.mu.Unlock()
}

func (c *Channel) read(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil || ev.Name == "" {
			c.logger.Debug("ignoring malformed push frame", slog.Int("bytes", len(msg)))
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) dispatch(ev Event) {
	c.mu.RLock()
	list := append([]registered(nil), c.handlers[ev.Name]...)
	c.mu.RUnlock()

	for _, r := range list {
		r.h(ev)
	}
}
