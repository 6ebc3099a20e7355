// Package transport owns the realtime websocket connection to the chat
// backend and turns its frames into typed events.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ceylontrails/tourchat/internal/model/chat"
)

// Status is the connector's lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrHandshakeRejected is reported when the server answers the upgrade
	// with a non-101 status, typically 401 for a bad credential.
	ErrHandshakeRejected = errors.New("handshake rejected")
	// ErrReconnectExhausted is reported once the reconnect budget is spent.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Options configures a Connector.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	EventBuffer       int
	Dialer            *websocket.Dialer
}

// DefaultOptions returns the options used by the CLI for the given endpoint.
func DefaultOptions(url string) Options {
	return Options{
		URL:               url,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      25 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		EventBuffer:       64,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions(o.URL)
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = def.EventBuffer
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	return o
}

// State is a point-in-time view of the connection.
type State struct {
	Status            Status
	AttemptsRemaining int
	ReconnectDelay    time.Duration
}

// Connector maintains a single websocket per credential. Events are
// delivered in order on the channel returned by Events. Sends while not
// connected are dropped and reported as false; nothing is queued across
// reconnects.
type Connector struct {
	opts Options

	mu         sync.Mutex
	status     Status
	credential string
	conn       *websocket.Conn
	cancel     context.CancelFunc
	generation uint64
	remaining  int
	closed     bool

	writeMu sync.Mutex

	emitMu       sync.RWMutex
	events       chan Event
	eventsClosed bool
	done         chan struct{}

	wg sync.WaitGroup
}

// NewConnector creates a disconnected connector.
func NewConnector(opts Options) *Connector {
	opts = opts.withDefaults()
	return &Connector{
		opts:      opts,
		remaining: opts.ReconnectAttempts,
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
	}
}

// Events returns the inbound event stream. It is closed by Close.
func (c *Connector) Events() <-chan Event {
	return c.events
}

// Status reports the current lifecycle state.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether sends will currently be emitted.
func (c *Connector) Connected() bool {
	return c.Status() == StatusConnected
}

// State returns status and reconnect bookkeeping.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Status: c.status, AttemptsRemaining: c.remaining, ReconnectDelay: c.opts.ReconnectDelay}
}

// Connect starts connecting with credential in the background. It is a no-op
// while connecting or connected with the same credential; a different
// credential replaces the current connection.
func (c *Connector) Connect(credential string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.status != StatusDisconnected && c.credential == credential {
		c.mu.Unlock()
		return
	}

	wasConnected := c.status == StatusConnected
	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.credential = credential
	c.status = StatusConnecting
	c.cancel = cancel
	c.remaining = c.opts.ReconnectAttempts
	c.generation++
	gen := c.generation
	c.wg.Add(1)
	c.mu.Unlock()

	if wasConnected {
		c.deliver(DisconnectEvent{})
	}

	go c.run(ctx, gen, credential)
}

// Disconnect tears the socket down immediately. It is idempotent.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	wasConnected := c.status == StatusConnected
	c.stopLocked()
	c.mu.Unlock()

	if wasConnected {
		c.deliver(DisconnectEvent{})
	}
}

// Close disconnects, waits for background work to stop and closes the
// event channel. The connector cannot be reused afterwards.
func (c *Connector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.stopLocked()
	c.mu.Unlock()

	c.wg.Wait()

	c.emitMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.emitMu.Unlock()
}

// SendMessage emits a chat message for conversationID.
func (c *Connector) SendMessage(text, conversationID, clientID string) bool {
	return c.emit(chat.EventMessage, chat.OutboundMessage{
		Message:        text,
		ConversationID: conversationID,
		ClientID:       clientID,
	})
}

// SendTyping emits the local user's typing state.
func (c *Connector) SendTyping(isTyping bool, conversationID string) bool {
	return c.emit(chat.EventTyping, chat.TypingPayload{IsTyping: isTyping, ConversationID: conversationID})
}

// JoinConversation subscribes the socket to a conversation's events.
func (c *Connector) JoinConversation(conversationID string) bool {
	return c.emit(chat.EventJoinConversation, chat.ConversationRef{ConversationID: conversationID})
}

// LeaveConversation unsubscribes the socket from a conversation.
func (c *Connector) LeaveConversation(conversationID string) bool {
	return c.emit(chat.EventLeaveConversation, chat.ConversationRef{ConversationID: conversationID})
}

func (c *Connector) emit(eventType string, data any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return false
	}

	env, err := chat.NewEnvelope(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("component", "transport").Str("type", eventType).Msg("encode frame failed")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		log.Warn().Err(err).Str("component", "transport").Str("type", eventType).Msg("write failed, dropping connection")
		// the read loop sees the close and starts reconnecting
		_ = conn.Close()
		return false
	}
	return true
}

// stopLocked cancels the running connection loop. Callers hold c.mu.
func (c *Connector) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.status = StatusDisconnected
	c.generation++
}

func (c *Connector) run(ctx context.Context, gen uint64, credential string) {
	defer c.wg.Done()

	reconnecting := false
	for {
		conn, err := c.dialWithRetry(ctx, gen, credential, reconnecting)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.finish(gen) {
				log.Warn().Err(err).Str("component", "transport").Msg("giving up on realtime connection")
				c.deliver(ErrorEvent{Err: err})
			}
			return
		}

		if !c.attach(gen, conn) {
			_ = conn.Close()
			return
		}
		log.Info().Str("component", "transport").Str("url", c.opts.URL).Msg("realtime connection established")
		c.deliver(ConnectEvent{})

		readErr := c.readLoop(ctx, gen, conn)
		if !c.detach(gen, conn) || ctx.Err() != nil {
			return
		}
		log.Warn().Err(readErr).Str("component", "transport").Msg("realtime connection lost")
		c.deliver(DisconnectEvent{Err: readErr})
		reconnecting = true
	}
}

// dialWithRetry makes one immediate attempt (skipped when reconnecting) plus
// up to ReconnectAttempts retries, waiting ReconnectDelay × attempt between
// them.
func (c *Connector) dialWithRetry(ctx context.Context, gen uint64, credential string, reconnecting bool) (*websocket.Conn, error) {
	var lastErr error
	attempt := 0
	if !reconnecting {
		conn, err := c.dial(ctx, credential)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.emitCurrent(gen, ErrorEvent{Err: err})
	}

	for attempt < c.opts.ReconnectAttempts {
		attempt++
		c.setRemaining(gen, c.opts.ReconnectAttempts-attempt)

		delay := c.opts.ReconnectDelay * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx, credential)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Debug().Err(err).Str("component", "transport").Int("attempt", attempt).Msg("reconnect attempt failed")
		c.emitCurrent(gen, ErrorEvent{Err: err})
	}

	if lastErr == nil {
		return nil, ErrReconnectExhausted
	}
	return nil, errors.Wrap(ErrReconnectExhausted, lastErr.Error())
}

func (c *Connector) dial(ctx context.Context, credential string) (*websocket.Conn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, errors.Wrapf(ErrHandshakeRejected, "status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "websocket dial failed")
	}
	return conn, nil
}

func (c *Connector) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		if ev := decodeFrame(data); ev != nil {
			c.emitCurrent(gen, ev)
		}
	}
}

func (c *Connector) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Connector) attach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.conn = conn
	c.status = StatusConnected
	c.remaining = c.opts.ReconnectAttempts
	return true
}

func (c *Connector) detach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.conn != conn {
		return false
	}
	_ = conn.Close()
	c.conn = nil
	c.status = StatusConnecting
	return true
}

// finish marks the loop for gen as given up. It reports false when gen has
// already been superseded.
func (c *Connector) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.status = StatusDisconnected
	c.remaining = 0
	return true
}

func (c *Connector) setRemaining(gen uint64, n int) {
	c.mu.Lock()
	if gen == c.generation {
		c.remaining = n
	}
	c.mu.Unlock()
}

// emitCurrent delivers ev unless gen has been superseded.
func (c *Connector) emitCurrent(gen uint64, ev Event) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}
	c.deliver(ev)
}

func (c *Connector) deliver(ev Event) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
