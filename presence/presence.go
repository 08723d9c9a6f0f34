// Package presence implements the PresenceHandler of spec.md §4.8: join
// and leave notifications for named clients, plus a snapshot query of
// currently connected names.
package presence

import (
	"sync"
	"time"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/notifier"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/resubscribe"
)

// Emitter sends a wire frame.
type Emitter func(action protocol.Action, fields ...string)

// ChangeListener is invoked when a watched name joins or leaves. Listeners
// of the wildcard ("all clients") subscription also receive the actual
// client name.
type ChangeListener func(name string, joined bool)

// Handler is the PresenceHandler of spec.md §4.8.
type Handler struct {
	mu sync.Mutex

	emit Emitter
	acks *ack.Registry

	global    []ChangeListener
	perClient map[string][]ChangeListener

	query *notifier.SingleNotifier

	resub *resubscribe.Coordinator
}

const queryAllName = "\x00query-all"

// New constructs a Handler.
func New(emit Emitter, acks *ack.Registry, queryTimeout time.Duration, resub *resubscribe.Coordinator) *Handler {
	h := &Handler{
		emit:      emit,
		acks:      acks,
		perClient: make(map[string][]ChangeListener),
		resub:     resub,
	}
	h.query = notifier.New(protocol.TopicPresence, protocol.ActionQuery, queryTimeout, acks, func(string) {
		h.emit(protocol.ActionQuery)
	})
	if resub != nil {
		resub.Register(h.resendAll)
	}
	return h
}

// SubscribeAll registers cb for every client's join/leave, issuing the
// wildcard SUBSCRIBE only for the first such listener.
func (h *Handler) SubscribeAll(cb ChangeListener) {
	h.mu.Lock()
	first := len(h.global) == 0
	h.global = append(h.global, cb)
	h.mu.Unlock()

	if first {
		h.emit(protocol.ActionSubscribe)
	}
}

// UnsubscribeAll removes every wildcard listener, issuing UNSUBSCRIBE.
func (h *Handler) UnsubscribeAll() {
	h.mu.Lock()
	had := len(h.global) > 0
	h.global = nil
	h.mu.Unlock()

	if had {
		h.emit(protocol.ActionUnsubscribe)
	}
}

// SubscribeClient registers cb for one specific name's join/leave.
func (h *Handler) SubscribeClient(name string, cb ChangeListener) {
	h.mu.Lock()
	first := len(h.perClient[name]) == 0
	h.perClient[name] = append(h.perClient[name], cb)
	h.mu.Unlock()

	if first {
		h.emit(protocol.ActionSubscribe, name)
	}
}

// UnsubscribeClient removes every listener registered for name.
func (h *Handler) UnsubscribeClient(name string) {
	h.mu.Lock()
	had := len(h.perClient[name]) > 0
	delete(h.perClient, name)
	h.mu.Unlock()

	if had {
		h.emit(protocol.ActionUnsubscribe, name)
	}
}

// QueryAll asks the server for the list of currently connected client
// names.
func (h *Handler) QueryAll(cb func(names []string, err error)) {
	h.query.Request(queryAllName, func(_ string, err error, data interface{}) {
		if err != nil {
			cb(nil, err)
			return
		}
		names, _ := data.([]interface{})
		out := make([]string, 0, len(names))
		for _, n := range names {
			if s, ok := n.(string); ok {
				out = append(out, s)
			}
		}
		cb(out, nil)
	})
}

// HandleMessage dispatches one inbound PRESENCE-topic message.
func (h *Handler) HandleMessage(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionPresenceJoin:
		h.dispatch(msg, true)
	case protocol.ActionPresenceLeave:
		h.dispatch(msg, false)
	case protocol.ActionQuery:
		h.handleQueryResult(msg)
	}
}

func (h *Handler) dispatch(msg protocol.Message, joined bool) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}

	h.mu.Lock()
	global := append([]ChangeListener{}, h.global...)
	perClient := append([]ChangeListener{}, h.perClient[name]...)
	h.mu.Unlock()

	for _, cb := range global {
		cb(name, joined)
	}
	for _, cb := range perClient {
		cb(name, joined)
	}
}

func (h *Handler) handleQueryResult(msg protocol.Message) {
	var names interface{}
	if raw, ok := msg.Field(0); ok {
		names = decodeNames(raw)
	}
	h.query.Resolve(queryAllName, nil, names)
}

func decodeNames(field string) interface{} {
	v, err := typedvalue.Decode(field)
	if err != nil {
		return nil
	}
	return v
}

func (h *Handler) resendAll() {
	h.mu.Lock()
	hasGlobal := len(h.global) > 0
	names := make([]string, 0, len(h.perClient))
	for name := range h.perClient {
		names = append(names, name)
	}
	h.mu.Unlock()

	if hasGlobal {
		h.emit(protocol.ActionSubscribe)
	}
	for _, name := range names {
		h.emit(protocol.ActionSubscribe, name)
	}
	h.query.ResendRequests()
}
