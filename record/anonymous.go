package record

import "sync"

// Anonymous is the AnonymousRecord of spec.md §4.11: a Record reference
// that can be pointed at a different underlying record name at runtime —
// e.g. "whichever document the user currently has selected" — without
// callers re-registering their Subscribe/Get/Set calls.
type Anonymous struct {
	mu      sync.Mutex
	engine  *Engine
	current *Record
	name    string

	subs []anonSub

	nameListeners []func(name string)
}

type anonSub struct {
	path string
	cb   func(value interface{})
	id   uint64
}

// NewAnonymous constructs an Anonymous record bound to no record yet; call
// SetName to point it at one.
func NewAnonymous(engine *Engine) *Anonymous {
	return &Anonymous{engine: engine}
}

// Name returns the currently bound record name, or "" if unbound.
func (a *Anonymous) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// OnNameChange registers cb to be invoked whenever SetName rebinds the
// underlying record.
func (a *Anonymous) OnNameChange(cb func(name string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nameListeners = append(a.nameListeners, cb)
}

// SetName discards the current underlying record (if any), fetches name,
// and replays every previously registered Subscribe onto the new record.
func (a *Anonymous) SetName(name string) {
	a.mu.Lock()
	if a.current != nil {
		a.current.Discard()
	}
	a.name = name
	a.current = a.engine.GetRecord(name)
	subs := append([]anonSub{}, a.subs...)
	cur := a.current
	listeners := append([]func(string){}, a.nameListeners...)
	a.mu.Unlock()

	for _, s := range subs {
		cur.Subscribe(s.path, s.cb)
	}
	for _, l := range listeners {
		l(name)
	}
}

// Get proxies to the bound record, or returns (nil, false) if unbound.
func (a *Anonymous) Get(path string) (interface{}, bool) {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return nil, false
	}
	return cur.Get(path)
}

// Set proxies to the bound record; a no-op if unbound.
func (a *Anonymous) Set(path string, value interface{}, ackCb func(err error)) {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return
	}
	cur.Set(path, value, ackCb)
}

// Subscribe registers cb for path on whichever record is currently bound,
// and keeps the registration across future SetName calls.
func (a *Anonymous) Subscribe(path string, cb func(value interface{})) {
	a.mu.Lock()
	a.subs = append(a.subs, anonSub{path: path, cb: cb})
	cur := a.current
	a.mu.Unlock()
	if cur != nil {
		cur.Subscribe(path, cb)
	}
}

// Discard releases the currently bound underlying record, if any.
func (a *Anonymous) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		a.current.Discard()
		a.current = nil
	}
}
