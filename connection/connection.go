// Package connection implements the Connection state machine of spec.md
// §4.3: transport handshake, challenge/redirect, authentication,
// reconnection with backoff, and outbound message buffering while not
// OPEN.
package connection

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/dlog"
	"github.com/deepstream-client/go-deepstream/errs"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/transport"
)

// LoginResult is handed to the caller of Authenticate.
type LoginResult struct {
	LoggedIn  bool
	ErrorKind errs.Kind
	Data      interface{}
}

// Connection owns the transport and drives the state machine of spec.md
// §4.3. It is safe for concurrent use.
type Connection struct {
	mu    sync.Mutex
	state State

	tr   transport.Transport
	opts Options

	originalURL string
	currentURL  string
	redirected  bool

	buffer []string

	reconnectAttempt  int
	reconnectTimer    *time.Timer
	globallyConnected bool
	deliberateClose   bool
	tooManyAuth       bool

	limiter *rate.Limiter

	acks *ack.Registry
	log  *dlog.Logger

	stateListeners []func(old, new State)
	errHandler     errs.Handler

	loginCb    func(LoginResult)
	authParams interface{}
	authSent   bool

	queues map[protocol.Topic]*topicQueue

	newTransport func() transport.Transport
}

// Options configures the state machine's timeouts; callers typically
// build this from config.Options.
type Options struct {
	DefaultPath                string
	MaxReconnectAttempts       int
	ReconnectIntervalIncrement time.Duration
	MaxReconnectInterval       time.Duration
	ReconnectRateLimit         float64
}

// New constructs a Connection. newTransport is called once per dial
// attempt (including reconnects), so it must return a fresh
// transport.Transport each time.
func New(newTransport func() transport.Transport, opts Options, acks *ack.Registry, log *dlog.Logger) *Connection {
	if log == nil {
		log = dlog.New(nil, 0)
	}
	c := &Connection{
		state:             Closed,
		opts:              opts,
		acks:              acks,
		log:               log,
		globallyConnected: true,
		newTransport:      newTransport,
		queues:            make(map[protocol.Topic]*topicQueue),
	}
	if opts.ReconnectRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.ReconnectRateLimit), 1)
	}
	return c
}

// RegisterHandler installs the handler for one of EVENT, RPC, RECORD or
// PRESENCE. CONNECTION and AUTH are handled internally. Must be called
// before Connect.
func (c *Connection) RegisterHandler(topic protocol.Topic, handler func(protocol.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[topic] = newTopicQueue(handler)
}

// OnStateChange registers a listener invoked on every state transition.
func (c *Connection) OnStateChange(f func(old, new State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = append(c.stateListeners, f)
}

// SetRuntimeErrorHandler installs the sink for errors not raised directly
// to a caller (spec.md §7).
func (c *Connection) SetRuntimeErrorHandler(h errs.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errHandler = h
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials url and begins the handshake.
func (c *Connection) Connect(ctx context.Context, rawURL string) error {
	normalized, err := normalizeURL(rawURL, c.opts.DefaultPath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.originalURL = normalized
	c.currentURL = normalized
	c.mu.Unlock()

	return c.dial(ctx, normalized)
}

func (c *Connection) dial(ctx context.Context, url string) error {
	tr := c.newTransport()

	tr.OnOpen(func() { c.handleOpen() })
	tr.OnMessage(func(frame string) { c.handleFrame(frame) })
	tr.OnError(func(err error) { c.handleTransportError(err) })
	tr.OnClose(func() { c.handleTransportClose() })

	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()

	return tr.Dial(ctx, url)
}

func (c *Connection) handleOpen() {
	c.transition(AwaitingConnection)
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	listeners := append([]func(old, new State){}, c.stateListeners...)
	c.mu.Unlock()

	c.log.Debug("state transition", "from", old.String(), "to", s.String())
	for _, l := range listeners {
		l(old, s)
	}
}

// transition is setState plus the side effects that are unconditional on
// entering a given state (e.g. flushing the buffer on OPEN).
func (c *Connection) transition(s State) {
	c.setState(s)
	if s == Open {
		c.acks.Open()
		c.flushBuffer()
		c.mu.Lock()
		c.reconnectAttempt = 0
		c.mu.Unlock()
	}
	if s == Closed || s == Reconnecting {
		c.acks.CloseConnection()
	}
}

func (c *Connection) flushBuffer() {
	c.mu.Lock()
	buf := c.buffer
	c.buffer = nil
	tr := c.tr
	c.mu.Unlock()

	for _, frame := range buf {
		if tr != nil {
			if err := tr.Send(frame); err != nil {
				c.log.Error("flush buffer send failed", "err", err)
			}
		}
	}
}

// Send transmits an already-encoded frame if OPEN, otherwise appends it to
// the outbound buffer (I4).
func (c *Connection) Send(frame string) {
	c.mu.Lock()
	if c.state != Open {
		c.buffer = append(c.buffer, frame)
		c.mu.Unlock()
		return
	}
	tr := c.tr
	c.mu.Unlock()

	if err := tr.Send(frame); err != nil {
		c.log.Error("send failed", "err", err)
	}
}

// SendMessage is a convenience wrapper around protocol.Encode + Send.
// CONNECTION and AUTH frames are the handshake itself, so they bypass the
// outbound buffer and go straight to the transport in any state.
func (c *Connection) SendMessage(topic protocol.Topic, action protocol.Action, fields ...string) {
	frame := protocol.Encode(topic, action, fields...)
	if topic == protocol.TopicConnection || topic == protocol.TopicAuth {
		c.mu.Lock()
		tr := c.tr
		c.mu.Unlock()
		if tr != nil {
			if err := tr.Send(frame); err != nil {
				c.log.Error("send failed", "err", err)
			}
		}
		return
	}
	c.Send(frame)
}

// Close performs a deliberate, permanent close: all timers are cancelled,
// the transport is force-closed and no reconnect is attempted.
func (c *Connection) Close() {
	c.mu.Lock()
	c.deliberateClose = true
	tr := c.tr
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	queues := make([]*topicQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.mu.Unlock()

	c.acks.Reset()
	for _, q := range queues {
		q.stop()
	}
	if tr != nil {
		tr.Close()
	}
	c.transition(Closed)
}

// SetGloballyConnected implements the connectivity toggle of spec.md
// §4.3: when false, no reconnect timer is armed and the endpoint is
// force-closed; flipping back to true from CLOSED/ERROR attempts a
// reconnect.
func (c *Connection) SetGloballyConnected(connected bool) {
	c.mu.Lock()
	c.globallyConnected = connected
	state := c.state
	tr := c.tr
	c.mu.Unlock()

	if !connected {
		if tr != nil {
			tr.Close()
		}
		return
	}
	if state == Closed || state == Error {
		c.scheduleReconnect()
	}
}

func (c *Connection) raiseRuntimeError(topic protocol.Topic, kind errs.Kind, message string) {
	c.mu.Lock()
	awaitingAuth := c.state == AwaitingAuthentication
	handler := c.errHandler
	c.mu.Unlock()

	remKind, remMsg := errs.RemapAuthTimeout(awaitingAuth, kind, message)

	if handler != nil {
		handler(topic, remKind, remMsg)
		return
	}
	c.log.Error("unhandled runtime error", "topic", topic.String(), "kind", string(remKind), "msg", remMsg)
	panic(&errs.RuntimeError{Topic: topic, Kind: remKind, Message: remMsg})
}

func (c *Connection) handleTransportError(err error) {
	c.log.Warn("transport error", "err", err)
	c.raiseRuntimeErrorSafely(protocol.TopicConnection, errs.ConnectionError, err.Error())
	c.transition(Error)
	c.maybeReconnect()
}

func (c *Connection) handleTransportClose() {
	c.mu.Lock()
	deliberate := c.deliberateClose
	redirecting := c.redirected
	c.mu.Unlock()

	if deliberate {
		return
	}
	if redirecting {
		c.mu.Lock()
		c.redirected = false
		url := c.currentURL
		c.mu.Unlock()
		_ = c.dial(context.Background(), url)
		return
	}

	c.transition(Error)
	c.maybeReconnect()
}

// raiseRuntimeErrorSafely never lets a panic (from an uninstalled error
// handler) escape a transport callback goroutine uncontrolled; it is used
// for errors discovered off the application's own call stack.
func (c *Connection) raiseRuntimeErrorSafely(topic protocol.Topic, kind errs.Kind, msg string) {
	defer func() { recover() }() //nolint: the panic, if any, has already been logged.
	c.raiseRuntimeError(topic, kind, msg)
}

// RaiseRuntimeError is the public entry point used by components outside
// this package (ack.Registry's onError sink, topic handlers) to report an
// error through the same AWAITING_AUTHENTICATION remap and handler path
// as errors discovered internally; with no handler installed the error is
// logged and the resulting panic is recovered here.
func (c *Connection) RaiseRuntimeError(topic protocol.Topic, kind errs.Kind, message string) {
	c.raiseRuntimeErrorSafely(topic, kind, message)
}

func (c *Connection) maybeReconnect() {
	c.mu.Lock()
	globallyConnected := c.globallyConnected
	c.mu.Unlock()
	if !globallyConnected {
		return
	}
	c.scheduleReconnect()
}

func (c *Connection) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnectAttempt >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()
		c.transition(Closed)
		return
	}
	c.reconnectAttempt++
	attempt := c.reconnectAttempt
	c.mu.Unlock()

	wait := time.Duration(attempt) * c.opts.ReconnectIntervalIncrement
	if wait > c.opts.MaxReconnectInterval {
		wait = c.opts.MaxReconnectInterval
	}

	c.transition(Reconnecting)

	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(wait, c.doReconnect)
	c.mu.Unlock()
}

func (c *Connection) doReconnect() {
	if c.limiter != nil {
		_ = c.limiter.Wait(context.Background())
	}
	c.mu.Lock()
	url := c.currentURL
	c.mu.Unlock()

	if err := c.dial(context.Background(), url); err != nil {
		c.log.Warn("reconnect dial failed", "err", err)
		c.maybeReconnect()
	}
}
