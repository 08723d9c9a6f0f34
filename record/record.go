// Package record implements RecordEngine (spec.md §4.9): versioned JSON
// documents with path-scoped subscriptions, optimistic-concurrency
// writes, and pluggable conflict resolution on VERSION_EXISTS.
package record

import (
	"strconv"
	"sync"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/config"
	"github.com/deepstream-client/go-deepstream/internal/pathvalue"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/resubscribe"
)

// Emitter sends a wire frame.
type Emitter func(action protocol.Action, fields ...string)

// pathSubscription is one Record.Subscribe registration.
type pathSubscription struct {
	id   uint64
	path string
	cb   func(value interface{})
}

// Record is one versioned JSON document, shared by every caller that
// holds it via Engine.GetRecord.
type Record struct {
	mu sync.RWMutex

	engine    *Engine
	name      string
	version   int
	data      interface{}
	ready     bool
	destroyed bool

	refs int

	subs   []pathSubscription
	nextID uint64

	pendingAcks []pendingAck

	readyWaiters []func()
}

// Name returns the record's name.
func (r *Record) Name() string { return r.name }

// Version returns the record's current version, or -1 before the initial
// snapshot has arrived.
func (r *Record) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// IsReady reports whether the initial snapshot has been received.
func (r *Record) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// WhenReady invokes cb once the initial snapshot has arrived, immediately
// if it already has.
func (r *Record) WhenReady(cb func()) {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		cb()
		return
	}
	r.readyWaiters = append(r.readyWaiters, cb)
	r.mu.Unlock()
}

// Get returns the value at path (or the whole document for path ""),
// independent of any live mutation (spec.md §4.9 "Get returns a copy").
func (r *Record) Get(path string) (interface{}, bool) {
	segs, err := pathvalue.Parse(path)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := pathvalue.Get(r.data, segs)
	if !ok {
		return nil, false
	}
	return pathvalue.DeepCopy(v), true
}

// Set writes value at path, bumping the version and sending RECORD|U. If
// ackCb is non-nil, a RECORD|WA ack is requested and ackCb is invoked once
// it arrives (or on timeout).
func (r *Record) Set(path string, value interface{}, ackCb func(err error)) {
	segs, err := pathvalue.Parse(path)
	if err != nil {
		if ackCb != nil {
			ackCb(err)
		}
		return
	}

	r.mu.Lock()
	newData, err := pathvalue.Set(r.data, segs, value)
	if err != nil {
		r.mu.Unlock()
		if ackCb != nil {
			ackCb(err)
		}
		return
	}
	old := r.data
	r.data = newData
	r.version++
	version := r.version
	r.mu.Unlock()

	r.notifyChangedPaths(old, newData)
	r.send(version, newData, ackCb)
}

func (r *Record) send(version int, data interface{}, ackCb func(err error)) {
	field, err := typedvalue.Encode(data)
	if err != nil {
		if ackCb != nil {
			ackCb(err)
		}
		return
	}

	if ackCb != nil {
		key := ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionWriteAck, Name: r.name + "/" + strconv.Itoa(version)}
		r.engine.acks.Add(key, r.engine.opts.RecordDeleteTimeout, ack.ResponseTimeout, func() {
			ackCb(errTimeout(r.name))
		})
		r.mu.Lock()
		r.pendingAcks = append(r.pendingAcks, pendingAck{version: version, cb: ackCb})
		r.mu.Unlock()
		r.engine.emit(protocol.ActionUpdate, r.name, strconv.Itoa(version), field, `{"writeSuccess":true}`)
		return
	}

	r.engine.emit(protocol.ActionUpdate, r.name, strconv.Itoa(version), field)
}

// Discard releases this caller's interest in the record; once every
// holder has discarded, the engine unsubscribes on the wire and evicts it.
func (r *Record) Discard() {
	r.engine.discard(r)
}

// Delete asks the server to delete the record.
func (r *Record) Delete(cb func(err error)) {
	r.mu.Lock()
	name := r.name
	r.mu.Unlock()

	key := ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionDelete, Name: name}
	r.engine.acks.Add(key, r.engine.opts.RecordDeleteTimeout, ack.DeleteTimeout, func() {
		if cb != nil {
			cb(errTimeout(name))
		}
	})
	r.engine.mu.Lock()
	r.engine.pendingDeletes[name] = cb
	r.engine.mu.Unlock()

	r.engine.emit(protocol.ActionDelete, name)
}

// Subscribe registers cb for changes at path ("" for the whole document),
// invoking it once immediately if the record is already ready.
func (r *Record) Subscribe(path string, cb func(value interface{})) uint64 {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, pathSubscription{id: id, path: path, cb: cb})
	ready := r.ready
	r.mu.Unlock()

	if ready {
		if v, ok := r.Get(path); ok {
			cb(v)
		}
	}
	return id
}

// Unsubscribe removes the subscription identified by id.
func (r *Record) Unsubscribe(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *Record) notifyChangedPaths(oldData, newData interface{}) {
	r.mu.RLock()
	subs := append([]pathSubscription{}, r.subs...)
	r.mu.RUnlock()

	for _, s := range subs {
		segs, err := pathvalue.Parse(s.path)
		if err != nil {
			continue
		}
		oldV, oldOK := pathvalue.Get(oldData, segs)
		newV, newOK := pathvalue.Get(newData, segs)
		if oldOK == newOK && pathvalue.Equal(oldV, newV) {
			continue
		}
		if newOK {
			s.cb(pathvalue.DeepCopy(newV))
		} else {
			s.cb(nil)
		}
	}
}

type pendingAck struct {
	version int
	cb      func(err error)
}

func errTimeout(name string) error { return &recordError{"record: timed out waiting for ack on " + name} }

type recordError struct{ msg string }

func (e *recordError) Error() string { return e.msg }

// Engine is RecordEngine (spec.md §4.9).
type Engine struct {
	mu sync.Mutex

	emit Emitter
	acks *ack.Registry
	opts config.Options

	cache *snapshotCache
	resub *resubscribe.Coordinator

	records        map[string]*Record
	pendingDeletes map[string]func(err error)

	mergeStrategy MergeStrategy
}

// New constructs an Engine with the default merge strategy selected by
// opts.RecordMergeStrategy. cacheBytes sizes the fastcache snapshot cache
// (0 selects a small default).
func New(emit Emitter, acks *ack.Registry, opts config.Options, resub *resubscribe.Coordinator, cacheBytes int) *Engine {
	if cacheBytes <= 0 {
		cacheBytes = 32 * 1024 * 1024
	}
	e := &Engine{
		emit:           emit,
		acks:           acks,
		opts:           opts,
		cache:          newSnapshotCache(cacheBytes),
		resub:          resub,
		records:        make(map[string]*Record),
		pendingDeletes: make(map[string]func(err error)),
		mergeStrategy:  strategyFor(opts.RecordMergeStrategy),
	}
	if resub != nil {
		resub.Register(e.resendAll)
	}
	return e
}

// SetMergeStrategy overrides the default conflict resolver used on
// VERSION_EXISTS.
func (e *Engine) SetMergeStrategy(m MergeStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mergeStrategy = m
}

// GetRecord returns the shared Record for name, creating and issuing
// RECORD|CR for it if this is the first caller.
func (e *Engine) GetRecord(name string) *Record {
	e.mu.Lock()
	r, ok := e.records[name]
	if ok {
		r.mu.Lock()
		r.refs++
		r.mu.Unlock()
		e.mu.Unlock()
		return r
	}

	r = &Record{engine: e, name: name, version: -1}
	r.refs = 1
	e.records[name] = r
	e.mu.Unlock()

	key := ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionCreateOrRead, Name: name}
	e.acks.Add(key, e.opts.RecordReadAckTimeout, ack.AckTimeout, nil)
	e.emit(protocol.ActionCreateOrRead, name)
	return r
}

func (e *Engine) discard(r *Record) {
	r.mu.Lock()
	r.refs--
	empty := r.refs <= 0
	name := r.name
	r.mu.Unlock()
	if !empty {
		return
	}

	e.mu.Lock()
	delete(e.records, name)
	e.mu.Unlock()
	e.cache.delete(name)
	e.emit(protocol.ActionUnsubscribe, name)
}

// HandleMessage dispatches one inbound RECORD-topic message.
func (e *Engine) HandleMessage(msg protocol.Message) {
	switch msg.Action {
	case protocol.ActionRead:
		e.handleRead(msg)
	case protocol.ActionUpdate:
		e.handleUpdate(msg)
	case protocol.ActionVersionExists:
		e.handleVersionExists(msg)
	case protocol.ActionAck:
		e.handleDeleteAck(msg)
	case protocol.ActionWriteAck:
		e.handleWriteAck(msg)
	case protocol.ActionError:
		// RECORD|ERROR messages are dropped here: they are neither passed
		// to the runtime error handler nor used to resolve a pending
		// callback.
	}
}

func (e *Engine) lookup(name string) (*Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.records[name]
	return r, ok
}

func (e *Engine) handleRead(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	versionStr, ok := msg.Field(1)
	if !ok {
		return
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return
	}
	var data interface{}
	if raw, ok := msg.Field(2); ok {
		data, _ = typedvalue.Decode(raw)
	}

	r, ok := e.lookup(name)
	if !ok {
		return
	}

	e.acks.Clear(ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionCreateOrRead, Name: name})
	e.cache.store(name, data)

	r.mu.Lock()
	r.data = data
	r.version = version
	r.ready = true
	waiters := append([]func(){}, r.readyWaiters...)
	r.readyWaiters = nil
	r.mu.Unlock()

	for _, w := range waiters {
		w()
	}
	r.notifyChangedPaths(nil, data)
}

func (e *Engine) handleUpdate(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	versionStr, ok := msg.Field(1)
	if !ok {
		return
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return
	}
	var data interface{}
	if raw, ok := msg.Field(2); ok {
		data, _ = typedvalue.Decode(raw)
	}

	r, ok := e.lookup(name)
	if !ok {
		return
	}

	r.mu.Lock()
	if version <= r.version {
		r.mu.Unlock()
		return
	}
	old := r.data
	r.data = data
	r.version = version
	r.mu.Unlock()

	e.cache.store(name, data)
	r.notifyChangedPaths(old, data)
}

func (e *Engine) handleVersionExists(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	remoteVersionStr, ok := msg.Field(1)
	if !ok {
		return
	}
	remoteVersion, err := strconv.Atoi(remoteVersionStr)
	if err != nil {
		return
	}
	var remoteData interface{}
	if raw, ok := msg.Field(2); ok {
		remoteData, _ = typedvalue.Decode(raw)
	}

	r, ok := e.lookup(name)
	if !ok {
		return
	}

	r.mu.Lock()
	localData, localVersion := r.data, r.version
	e.mu.Lock()
	merge := e.mergeStrategy
	e.mu.Unlock()
	resolvedData, resolvedVersion := merge(name, remoteData, remoteVersion, localData, localVersion)
	r.data = resolvedData
	r.version = resolvedVersion + 1
	version := r.version
	r.mu.Unlock()

	r.send(version, resolvedData, nil)
}

func (e *Engine) handleWriteAck(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	versionStr, ok := msg.Field(1)
	if !ok {
		return
	}
	version, _ := strconv.Atoi(versionStr)
	errText, hasErr := msg.Field(2)

	r, ok := e.lookup(name)
	if !ok {
		return
	}

	r.mu.Lock()
	var cb func(err error)
	for i, p := range r.pendingAcks {
		if p.version == version {
			cb = p.cb
			r.pendingAcks = append(r.pendingAcks[:i], r.pendingAcks[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	e.acks.Clear(ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionWriteAck, Name: name + "/" + versionStr})

	if cb == nil {
		return
	}
	if hasErr && errText != "" {
		cb(&recordError{errText})
		return
	}
	cb(nil)
}

func (e *Engine) handleDeleteAck(msg protocol.Message) {
	name, ok := msg.Field(0)
	if !ok {
		return
	}
	e.mu.Lock()
	cb, ok := e.pendingDeletes[name]
	delete(e.pendingDeletes, name)
	e.mu.Unlock()
	if !ok {
		return
	}

	e.acks.Clear(ack.Key{Topic: protocol.TopicRecord, Action: protocol.ActionDelete, Name: name})

	e.mu.Lock()
	if r, ok := e.records[name]; ok {
		r.mu.Lock()
		r.destroyed = true
		r.mu.Unlock()
		delete(e.records, name)
	}
	e.mu.Unlock()
	e.cache.delete(name)

	if cb != nil {
		cb(nil)
	}
}

func (e *Engine) resendAll() {
	e.mu.Lock()
	names := make([]string, 0, len(e.records))
	for name := range e.records {
		names = append(names, name)
	}
	e.mu.Unlock()

	for _, name := range names {
		e.emit(protocol.ActionCreateOrRead, name)
	}
}
