// Package ack implements the acknowledgement/response timeout registry
// (spec.md §4.2): every outgoing request that expects a server reply is
// guarded by a deadline, cleared on ack and firing a runtime error on
// miss.
package ack

import (
	"sync"
	"time"

	"github.com/deepstream-client/go-deepstream/protocol"
)

// Key identifies one in-flight ack entry. At most one entry exists per
// Key at a time (I5).
type Key struct {
	Topic  protocol.Topic
	Action protocol.Action
	Name   string
}

// TimeoutEvent names which error kind to raise when a deadline is missed.
type TimeoutEvent string

const (
	AckTimeout      TimeoutEvent = "ACK_TIMEOUT"
	ResponseTimeout TimeoutEvent = "RESPONSE_TIMEOUT"
	DeleteTimeout   TimeoutEvent = "DELETE_TIMEOUT"
)

// ErrorFunc is invoked when a deadline is missed and no per-entry
// Listener was registered.
type ErrorFunc func(topic protocol.Topic, event TimeoutEvent, message string)

type entry struct {
	key      Key
	event    TimeoutEvent
	listener func()
	timer    *time.Timer
	deadline time.Time
	fired    bool
}

// Registry is the AckRegistry of spec.md §4.2. It is safe for concurrent
// use. While the connection is not OPEN, armed timers are held but do not
// fire; calling Open causes any already-overdue timers to fire
// immediately and lets new ones run on their normal schedule.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
	open    bool
	onError ErrorFunc
}

// New constructs an empty Registry. onError is called for timeouts that
// have no per-entry listener.
func New(onError ErrorFunc) *Registry {
	return &Registry{
		entries: make(map[Key]*entry),
		onError: onError,
	}
}

// Add arms a deadline for key, timeout from now. If an entry for key
// already exists, this call is a silent no-op (I5). listener, if
// non-nil, is invoked on timeout instead of the Registry's onError
// sink.
func (r *Registry) Add(key Key, timeout time.Duration, event TimeoutEvent, listener func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return
	}

	e := &entry{key: key, event: event, listener: listener}
	r.entries[key] = e
	r.armLocked(e, timeout)
}

func (r *Registry) armLocked(e *entry, timeout time.Duration) {
	e.deadline = time.Now().Add(timeout)
	if !r.open {
		// No timer is created yet: only the deadline is recorded, and Open()
		// later fires overdue entries or starts a timer for the remaining wait.
		return
	}
	r.startTimerLocked(e, timeout)
}

func (r *Registry) startTimerLocked(e *entry, wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	e.timer = time.AfterFunc(wait, func() { r.fire(e.key) })
}

// Clear removes the entry for key, if any, cancelling its timer.
func (r *Registry) Clear(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked(key)
}

func (r *Registry) clearLocked(key Key) {
	e, ok := r.entries[key]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.entries, key)
}

// Has reports whether an entry for key currently exists (used by tests to
// assert I5 / ack uniqueness).
func (r *Registry) Has(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of in-flight entries (diagnostics).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Open transitions the registry to the OPEN state: every parked timer is
// started, using its remaining time (immediately, if already overdue).
func (r *Registry) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return
	}
	r.open = true
	for _, e := range r.entries {
		if e.timer != nil {
			continue
		}
		remaining := time.Until(e.deadline)
		r.startTimerLocked(e, remaining)
	}
}

// CloseConnection transitions the registry back to not-OPEN: outstanding
// timers are stopped but entries are retained so Open can re-arm them
// (used across a reconnect where pending entries survive until replayed
// or explicitly cleared by the owning component).
func (r *Registry) CloseConnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	for _, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

// Reset cancels every entry and empties the registry (used on deliberate
// Client.Close).
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	r.entries = make(map[Key]*entry)
}

func (r *Registry) fire(key Key) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.fired {
		r.mu.Unlock()
		return
	}
	e.fired = true
	delete(r.entries, key)
	listener := e.listener
	onError := r.onError
	r.mu.Unlock()

	if listener != nil {
		listener()
		return
	}
	if onError != nil {
		onError(key.Topic, e.event, descriptiveMessage(key, e.event))
	}
}

func descriptiveMessage(key Key, event TimeoutEvent) string {
	return string(event) + ": no ack for " + key.Topic.String() + "|" + string(key.Action) + "|" + key.Name
}
