// Package rpc implements the RpcHandler of spec.md §4.7: request/response
// remote procedure calls, with optional local providers gated by the
// config.AllowProvide ACL expression.
package rpc

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
)

// Emitter sends a wire frame.
type Emitter func(action protocol.Action, fields ...string)

// Response is handed to a local provider to answer one inbound RPC
// invocation exactly once.
type Response struct {
	handler       *Handler
	name          string
	correlationID string
	answered      *int32
}

// Send answers the call successfully with data.
func (r *Response) Send(data interface{}) {
	if !atomic.CompareAndSwapInt32(r.answered, 0, 1) {
		return
	}
	field, err := typedvalue.Encode(data)
	if err != nil {
		field, _ = typedvalue.Encode(nil)
	}
	r.handler.emit(protocol.ActionResponse, r.name, r.correlationID, field)
}

// Reject answers the call with an application-level error message.
func (r *Response) Reject(message string) {
	if !atomic.CompareAndSwapInt32(r.answered, 0, 1) {
		return
	}
	r.handler.emit(protocol.ActionError, r.name, r.correlationID, message)
}

// Provider is registered with Provide to answer inbound calls for name.
type Provider func(data interface{}, resp *Response)

// ResultCallback receives the eventual outcome of a client-initiated call.
type ResultCallback func(err error, data interface{})

// AllowProvide is the ACL hook of config.AllowProvide; if nil, every
// Provide call is allowed.
type AllowProvide func(name string) (bool, error)

// Handler is the RpcHandler of spec.md §4.7.
type Handler struct {
	mu sync.Mutex

	emit    Emitter
	acks    *ack.Registry
	timeout time.Duration
	allow   AllowProvide

	counter uint64

	providers map[string]Provider
	pending   map[string]ResultCallback
}

// New constructs a Handler.
func New(emit Emitter, acks *ack.Registry, timeout time.Duration, allow AllowProvide) *Handler {
	return &Handler{
		emit:      emit,
		acks:      acks,
		timeout:   timeout,
		allow:     allow,
		providers: make(map[string]Provider),
		pending:   make(map[string]ResultCallback),
	}
}

func (h *Handler) nextCorrelationID() string {
	n := atomic.AddUint64(&h.counter, 1)
	return strconv.FormatUint(n, 10)
}

// Make issues a call to name with params, invoking cb with the eventual
// result or error.
func (h *Handler) Make(name string, params interface{}, cb ResultCallback) {
	id := h.nextCorrelationID()

	h.mu.Lock()
	h.pending[id] = cb
	h.mu.Unlock()

	key := ack.Key{Topic: protocol.TopicRPC, Action: protocol.ActionRequest, Name: id}
	h.acks.Add(key, h.timeout, ack.ResponseTimeout, func() {
		h.resolve(id, errRPCTimedOut(name), nil)
	})

	field, err := typedvalue.Encode(params)
	if err != nil {
		field, _ = typedvalue.Encode(nil)
	}
	h.emit(protocol.ActionRequest, name, id, field)
}

func (h *Handler) resolve(correlationID string, err error, data interface{}) {
	h.acks.Clear(ack.Key{Topic: protocol.TopicRPC, Action: protocol.ActionRequest, Name: correlationID})

	h.mu.Lock()
	cb, ok := h.pending[correlationID]
	delete(h.pending, correlationID)
	h.mu.Unlock()

	if ok && cb != nil {
		cb(err, data)
	}
}

// Provide registers a local provider for name, subject to the ACL
// expression, and issues RPC|S on the wire.
func (h *Handler) Provide(name string, p Provider) error {
	if h.allow != nil {
		ok, err := h.allow(name)
		if err != nil {
			return err
		}
		if !ok {
			return errProviderDenied(name)
		}
	}
	h.mu.Lock()
	h.providers[name] = p
	h.mu.Unlock()
	h.emit(protocol.ActionSubscribe, name)
	return nil
}

// Unprovide removes a previously registered provider.
func (h *Handler) Unprovide(name string) {
	h.mu.Lock()
	_, ok := h.providers[name]
	delete(h.providers, name)
	h.mu.Unlock()
	if ok {
		h.emit(protocol.ActionUnsubscribe, name)
	}
}

// HandleMessage dispatches one inbound RPC-topic message: REQ to a local
// provider, RES/ERROR/ACK to a pending Make call.
func (h *Handler) HandleMessage(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionRequest:
		h.handleRequest(msg)
	case protocol.ActionResponse:
		h.handleResponse(msg)
	case protocol.ActionError:
		h.handleError(msg)
	case protocol.ActionAck:
		// request accepted by the server; a no-op. Make arms only the
		// response deadline, so there is no separate ack deadline to clear.
	}
}

func (h *Handler) handleRequest(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	correlationID, ok := msg.Field(1)
	if !ok {
		return
	}

	h.mu.Lock()
	p, ok := h.providers[name]
	h.mu.Unlock()
	if !ok {
		h.emit(protocol.ActionError, name, correlationID, "NO_RPC_PROVIDER")
		return
	}

	var data interface{}
	if raw, ok := msg.Field(2); ok {
		data, _ = typedvalue.Decode(raw)
	}

	var answered int32
	p(data, &Response{handler: h, name: name, correlationID: correlationID, answered: &answered})
}

func (h *Handler) handleResponse(msg protocol.Message) {
	_, ok := msg.Field(0)
	if !ok {
		return
	}
	correlationID, ok := msg.Field(1)
	if !ok {
		return
	}
	var data interface{}
	if raw, ok := msg.Field(2); ok {
		data, _ = typedvalue.Decode(raw)
	}
	h.resolve(correlationID, nil, data)
}

func (h *Handler) handleError(msg protocol.Message) {
	_, ok := msg.Field(0)
	if !ok {
		return
	}
	correlationID, ok := msg.Field(1)
	if !ok {
		return
	}
	message, _ := msg.Field(2)
	h.resolve(correlationID, errRPCRejected(message), nil)
}

type rpcError struct{ msg string }

func (e *rpcError) Error() string { return e.msg }

func errRPCTimedOut(name string) error {
	return &rpcError{"rpc: timed out waiting for response to " + name}
}

func errRPCRejected(msg string) error { return &rpcError{"rpc: " + msg} }

func errProviderDenied(name string) error {
	return &rpcError{"rpc: provide denied by acl for " + name}
}
