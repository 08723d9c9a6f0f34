// Package notifier implements the SingleNotifier of spec.md §4.5: a
// request/response multiplexer that coalesces redundant in-flight
// requests for the same name and replays pending requests across a
// reconnect.
package notifier

import (
	"sync"
	"time"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/protocol"
)

// Sender issues the wire request for name; the notifier calls it once per
// name while a request is outstanding, and again after a reconnect if the
// request is still pending (ResendRequests).
type Sender func(name string)

// Callback receives the eventual success/error result for one request.
type Callback func(name string, err error, data interface{})

// SingleNotifier deduplicates concurrent requests for the same name, per
// spec.md §4.5.
type SingleNotifier struct {
	mu      sync.Mutex
	topic   protocol.Topic
	action  protocol.Action
	timeout time.Duration
	acks    *ack.Registry
	send    Sender
	pending map[string][]Callback
}

// New constructs a SingleNotifier for one topic/action pair (e.g.
// RECORD|SNAPSHOT, RECORD|HAS).
func New(topic protocol.Topic, action protocol.Action, timeout time.Duration, acks *ack.Registry, send Sender) *SingleNotifier {
	return &SingleNotifier{
		topic:   topic,
		action:  action,
		timeout: timeout,
		acks:    acks,
		send:    send,
		pending: make(map[string][]Callback),
	}
}

// Request registers cb for name, issuing the wire request only if name has
// no other request currently in flight.
func (n *SingleNotifier) Request(name string, cb Callback) {
	n.mu.Lock()
	cbs, inFlight := n.pending[name]
	n.pending[name] = append(cbs, cb)
	n.mu.Unlock()

	if inFlight {
		return
	}
	n.issue(name)
}

func (n *SingleNotifier) issue(name string) {
	key := ack.Key{Topic: n.topic, Action: n.action, Name: name}
	n.acks.Add(key, n.timeout, ack.ResponseTimeout, func() {
		n.Resolve(name, errTimedOut(n.topic, n.action, name), nil)
	})
	n.send(name)
}

// Resolve delivers err/data to every callback waiting on name and clears
// its pending entry. It is called by the owning handler upon receiving the
// matching ACK/ERROR/response message.
func (n *SingleNotifier) Resolve(name string, err error, data interface{}) {
	n.acks.Clear(ack.Key{Topic: n.topic, Action: n.action, Name: name})

	n.mu.Lock()
	cbs := n.pending[name]
	delete(n.pending, name)
	n.mu.Unlock()

	for _, cb := range cbs {
		cb(name, err, data)
	}
}

// ResendRequests re-issues the wire request for every name still pending,
// for the ResubscribeCoordinator to call on reconnect (spec.md §4.5).
func (n *SingleNotifier) ResendRequests() {
	n.mu.Lock()
	names := make([]string, 0, len(n.pending))
	for name := range n.pending {
		names = append(names, name)
	}
	n.mu.Unlock()

	for _, name := range names {
		n.issue(name)
	}
}

type timeoutError struct {
	topic  protocol.Topic
	action protocol.Action
	name   string
}

func (e *timeoutError) Error() string {
	return "notifier: timed out waiting for " + e.topic.String() + "|" + string(e.action) + "|" + e.name
}

func errTimedOut(topic protocol.Topic, action protocol.Action, name string) error {
	return &timeoutError{topic: topic, action: action, name: name}
}
