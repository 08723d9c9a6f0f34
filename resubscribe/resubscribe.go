// Package resubscribe implements the ResubscribeCoordinator of spec.md
// §4.4: the event, record and presence handlers each register a replay
// callback here once; the rpc handler does not register, so provider
// subscriptions are not replayed after a reconnect. The coordinator fires each callback exactly once per reconnect cycle,
// latched on entering RECONNECTING and released on the next OPEN.
package resubscribe

import "sync"

// Coordinator tracks one reconnect cycle and fans a single OPEN transition
// out to every registered replay callback.
type Coordinator struct {
	mu        sync.Mutex
	callbacks []func()
	latched   bool
}

// New constructs an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Register adds a callback invoked once per reconnect cycle after the
// connection returns to OPEN. Order of registration is the order of
// invocation.
func (c *Coordinator) Register(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, f)
}

// OnReconnecting latches the coordinator: the next OnOpen will fire every
// registered callback. Calling it again before OnOpen is a no-op.
func (c *Coordinator) OnReconnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latched = true
}

// OnOpen fires every registered callback exactly once if a reconnect cycle
// was latched; the very first connection (no prior RECONNECTING) does
// nothing, since nothing needs replaying.
func (c *Coordinator) OnOpen() {
	c.mu.Lock()
	if !c.latched {
		c.mu.Unlock()
		return
	}
	c.latched = false
	cbs := append([]func(){}, c.callbacks...)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}
