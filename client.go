// Package deepstream is the client façade: it wires the Connection state
// machine together with the per-topic handlers (event, rpc, record,
// presence) and exposes the small surface application code actually
// calls.
package deepstream

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/config"
	"github.com/deepstream-client/go-deepstream/connection"
	"github.com/deepstream-client/go-deepstream/dlog"
	"github.com/deepstream-client/go-deepstream/errs"
	"github.com/deepstream-client/go-deepstream/event"
	"github.com/deepstream-client/go-deepstream/presence"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/record"
	"github.com/deepstream-client/go-deepstream/resubscribe"
	"github.com/deepstream-client/go-deepstream/rpc"
	"github.com/deepstream-client/go-deepstream/transport"
	"github.com/deepstream-client/go-deepstream/transport/ws"
)

// Client is the root handle applications hold: one per connection to a
// deepstream-protocol server.
type Client struct {
	mu        sync.Mutex
	id        string
	startedAt time.Time

	opts config.Options
	log  *dlog.Logger

	conn  *connection.Connection
	resub *resubscribe.Coordinator

	Event    *event.Handler
	RPC      *rpc.Handler
	Record   *record.Engine
	Presence *presence.Handler

	changeListeners []func(connected bool)
}

// Option customizes client construction.
type Option func(*clientConfig)

type clientConfig struct {
	opts         config.Options
	log          *dlog.Logger
	newTransport func() transport.Transport
}

// WithOptions overrides the default config.Options.
func WithOptions(o config.Options) Option {
	return func(c *clientConfig) { c.opts = o }
}

// WithLogger installs a custom logger; defaults to dlog.New(nil, slog.LevelInfo).
func WithLogger(l *dlog.Logger) Option {
	return func(c *clientConfig) { c.log = l }
}

// WithTransportFactory overrides the transport constructor, e.g. to use
// transport/sse instead of the default transport/ws.
func WithTransportFactory(f func() transport.Transport) Option {
	return func(c *clientConfig) { c.newTransport = f }
}

// New constructs a Client. It does not dial anything until Connect.
func New(opts ...Option) *Client {
	cc := &clientConfig{
		opts:         config.Default(),
		newTransport: func() transport.Transport { return ws.New() },
	}
	for _, o := range opts {
		o(cc)
	}
	if cc.log == nil {
		cc.log = dlog.New(nil, 0)
	}

	id := uuid.NewString()
	log := cc.log.With("clientId", id)

	c := &Client{
		id:        id,
		startedAt: time.Now(),
		opts:      cc.opts,
		log:       log,
		resub:     resubscribe.New(),
	}

	acks := ack.New(func(topic protocol.Topic, event ack.TimeoutEvent, message string) {
		c.conn.RaiseRuntimeError(topic, errs.Kind(event), message)
	})

	connOpts := connection.Options{
		DefaultPath:                cc.opts.Path,
		MaxReconnectAttempts:       cc.opts.MaxReconnectAttempts,
		ReconnectIntervalIncrement: cc.opts.ReconnectIntervalIncrement,
		MaxReconnectInterval:       cc.opts.MaxReconnectInterval,
		ReconnectRateLimit:         cc.opts.ReconnectRateLimit,
	}
	c.conn = connection.New(cc.newTransport, connOpts, acks, log)

	c.conn.OnStateChange(func(old, new connection.State) {
		if new == connection.Reconnecting {
			c.resub.OnReconnecting()
		}
		if new == connection.Open {
			c.resub.OnOpen()
		}
		if (old == connection.Open) != (new == connection.Open) {
			c.notifyChangeListeners(new == connection.Open)
		}
	})

	c.Event = event.New(c.emitter(protocol.TopicEvent), acks, cc.opts.SubscriptionTimeout, c.resub)
	c.conn.RegisterHandler(protocol.TopicEvent, c.Event.HandleEvent)

	allow := func(name string) (bool, error) { return config.AllowProvide(cc.opts.ProviderACL, name) }
	c.RPC = rpc.New(c.emitter(protocol.TopicRPC), acks, cc.opts.RPCResponseTimeout, allow)
	c.conn.RegisterHandler(protocol.TopicRPC, c.RPC.HandleMessage)

	c.Record = record.New(c.emitter(protocol.TopicRecord), acks, cc.opts, c.resub, 0)
	c.conn.RegisterHandler(protocol.TopicRecord, c.Record.HandleMessage)

	c.Presence = presence.New(c.emitter(protocol.TopicPresence), acks, cc.opts.SubscriptionTimeout, c.resub)
	c.conn.RegisterHandler(protocol.TopicPresence, c.Presence.HandleMessage)

	return c
}

func (c *Client) emitter(topic protocol.Topic) func(action protocol.Action, fields ...string) {
	return func(action protocol.Action, fields ...string) {
		c.conn.SendMessage(topic, action, fields...)
	}
}

// ClientID returns the client's random instance id, generated once at
// construction.
func (c *Client) ClientID() string { return c.id }

// ConnectionState returns the current connection state's wire name
// ("OPEN", "RECONNECTING", ...).
func (c *Client) ConnectionState() string { return c.conn.State().String() }

// Uptime returns seconds since New.
func (c *Client) Uptime() float64 { return time.Since(c.startedAt).Seconds() }

// Connect dials url and begins the handshake/login sequence.
func (c *Client) Connect(ctx context.Context, url string) error {
	return c.conn.Connect(ctx, url)
}

// LoginResult mirrors connection.LoginResult for callers that only import
// the root package.
type LoginResult = connection.LoginResult

// Login authenticates with params (typically a map with a "username"/
// "password" or "token" field). If params carries a JWT under "token",
// its claims are opportunistically decoded (without signature
// verification, which is the server's job) and logged at debug level —
// useful for diagnosing an expiry-related auth rejection.
func (c *Client) Login(params interface{}, cb func(LoginResult)) {
	if m, ok := params.(map[string]interface{}); ok {
		if tok, ok := m["token"].(string); ok {
			c.logJWTClaims(tok)
		}
	}
	c.conn.Authenticate(params, cb)
}

func (c *Client) logJWTClaims(token string) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return
	}
	c.log.Debug("decoded login token claims", "claims", dlog.Dump(claims))
}

// Close performs a deliberate, permanent disconnect.
func (c *Client) Close() { c.conn.Close() }

// SetGloballyConnected toggles the connectivity switch of spec.md §4.3.
func (c *Client) SetGloballyConnected(connected bool) { c.conn.SetGloballyConnected(connected) }

// OnConnectionChange registers cb to be invoked on every OPEN/non-OPEN
// transition.
func (c *Client) OnConnectionChange(cb func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeListeners = append(c.changeListeners, cb)
}

func (c *Client) notifyChangeListeners(connected bool) {
	c.mu.Lock()
	cbs := append([]func(bool){}, c.changeListeners...)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(connected)
	}
}

// SetRuntimeErrorHandler installs the sink for errors not raised directly
// to a caller (spec.md §7).
func (c *Client) SetRuntimeErrorHandler(h errs.Handler) {
	c.conn.SetRuntimeErrorHandler(h)
}
