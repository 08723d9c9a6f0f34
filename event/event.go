// Package event implements the EventHandler of spec.md §4.6: topic-based
// publish/subscribe plus pattern-based listeners that get asked whether
// they want to provide a given event name.
package event

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/resubscribe"
)

// Emitter sends a wire frame; bound to the owning Connection.SendMessage.
type Emitter func(action protocol.Action, fields ...string)

// ListenCallback is invoked when the server asks whether a pattern's
// listener wants to provide an event that just acquired its first/last
// subscriber.
type ListenCallback func(match string, response ListenResponse)

// ListenResponse lets a listener accept or reject a match.
type ListenResponse struct {
	Accept func()
	Reject func()
}

// Handler is the EventHandler of spec.md §4.6.
type Handler struct {
	mu sync.Mutex

	emit       Emitter
	acks       *ack.Registry
	ackTimeout time.Duration

	// subscribedNames is the set of event names with at least one local
	// subscriber; membership drives the first-subscriber/last-unsubscriber
	// wire traffic of I-EVT1.
	subscribedNames mapset.Set[string]
	callbacks       map[string][]subscription
	nextID          uint64

	listeners map[string]ListenCallback

	resub *resubscribe.Coordinator
}

// subscription pairs a callback with the id handed back to the caller so
// a specific registration (not just "the last one") can be unsubscribed.
type subscription struct {
	id uint64
	fn func(interface{})
}

// Subscription identifies one Subscribe call for later Unsubscribe.
type Subscription struct {
	name string
	id   uint64
}

// New constructs a Handler. resub, if non-nil, is registered with so that
// active subscriptions and listen patterns are replayed after a reconnect.
func New(emit Emitter, acks *ack.Registry, ackTimeout time.Duration, resub *resubscribe.Coordinator) *Handler {
	h := &Handler{
		emit:            emit,
		acks:            acks,
		ackTimeout:      ackTimeout,
		subscribedNames: mapset.NewSet[string](),
		callbacks:       make(map[string][]subscription),
		listeners:       make(map[string]ListenCallback),
		resub:           resub,
	}
	if resub != nil {
		resub.Register(h.resendAll)
	}
	return h
}

// Subscribe registers cb for name, issuing SUBSCRIBE on the wire only for
// the first subscriber of that name (I-EVT1). The returned Subscription
// identifies this registration for Unsubscribe.
func (h *Handler) Subscribe(name string, cb func(data interface{})) Subscription {
	h.mu.Lock()
	first := !h.subscribedNames.Contains(name)
	h.subscribedNames.Add(name)
	h.nextID++
	id := h.nextID
	h.callbacks[name] = append(h.callbacks[name], subscription{id: id, fn: cb})
	h.mu.Unlock()

	if first {
		h.sendSubscribe(name)
	}
	return Subscription{name: name, id: id}
}

func (h *Handler) sendSubscribe(name string) {
	key := ack.Key{Topic: protocol.TopicEvent, Action: protocol.ActionSubscribe, Name: name}
	h.acks.Add(key, h.ackTimeout, ack.AckTimeout, nil)
	h.emit(protocol.ActionSubscribe, name)
}

// Unsubscribe removes sub's callback from its name's subscriber list,
// issuing UNSUBSCRIBE only once the list becomes empty (I-EVT1).
func (h *Handler) Unsubscribe(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cbs := h.callbacks[sub.name]
	for i, s := range cbs {
		if s.id == sub.id {
			cbs = append(cbs[:i], cbs[i+1:]...)
			break
		}
	}

	if len(cbs) == 0 {
		delete(h.callbacks, sub.name)
		h.subscribedNames.Remove(sub.name)
		h.emit(protocol.ActionUnsubscribe, sub.name)
		return
	}
	h.callbacks[sub.name] = cbs
}

// Emit publishes data under name.
func (h *Handler) Emit(name string, data interface{}) {
	field, err := typedvalue.Encode(data)
	if err != nil {
		field, _ = typedvalue.Encode(nil)
	}
	h.emit(protocol.ActionEvent, name, field)
}

// HandleEvent delivers an inbound EVENT message to every local subscriber
// of its name.
func (h *Handler) HandleEvent(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}

	h.mu.Lock()
	cbs := append([]subscription{}, h.callbacks[name]...)
	h.mu.Unlock()
	if len(cbs) == 0 {
		return
	}

	var data interface{}
	if raw, ok := msg.Field(1); ok {
		data, _ = typedvalue.Decode(raw)
	}

	for _, s := range cbs {
		s.fn(data)
	}
}

// Listen registers a pattern listener; spec.md §4.6 "one active listener
// per pattern" (I-EVT2) — a second Listen on the same pattern replaces the
// first.
func (h *Handler) Listen(pattern string, cb ListenCallback) {
	h.mu.Lock()
	_, existed := h.listeners[pattern]
	h.listeners[pattern] = cb
	h.mu.Unlock()

	if !existed {
		h.emit(protocol.ActionListen, pattern)
	}
}

// Unlisten removes the listener for pattern.
func (h *Handler) Unlisten(pattern string) {
	h.mu.Lock()
	_, ok := h.listeners[pattern]
	delete(h.listeners, pattern)
	h.mu.Unlock()

	if ok {
		h.emit(protocol.ActionUnlisten, pattern)
	}
}

// HandleSubscriptionForPatternFound dispatches an SP/SF notification to
// the owning pattern's listener, giving it an accept/reject responder.
func (h *Handler) HandleSubscriptionForPatternFound(msg protocol.Message) {
	pattern, ok := msg.Field(0)
	if !ok {
		return
	}
	match, ok := msg.Field(1)
	if !ok {
		return
	}

	h.mu.Lock()
	cb, ok := h.listeners[pattern]
	h.mu.Unlock()
	if !ok {
		return
	}

	cb(match, ListenResponse{
		Accept: func() { h.emit(protocol.ActionListenAccept, pattern, match) },
		Reject: func() { h.emit(protocol.ActionListenReject, pattern, match) },
	})
}

// resendAll re-issues SUBSCRIBE for every name with at least one local
// subscriber and LISTEN for every active pattern, for replay after a
// reconnect (spec.md §4.4/§4.6).
func (h *Handler) resendAll() {
	h.mu.Lock()
	names := h.subscribedNames.ToSlice()
	patterns := make([]string, 0, len(h.listeners))
	for pattern := range h.listeners {
		patterns = append(patterns, pattern)
	}
	h.mu.Unlock()

	for _, name := range names {
		h.sendSubscribe(name)
	}
	for _, pattern := range patterns {
		h.emit(protocol.ActionListen, pattern)
	}
}
