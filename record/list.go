package record

import (
	"sync"
)

// List is the ListEngine of spec.md §4.10: a Record whose data is
// constrained to be a JSON array of entry names, with an add/remove/diff
// API layered over the same Get/Set/Subscribe machinery every other
// Record uses.
type List struct {
	mu      sync.Mutex
	record  *Record
	entries []string
	onDiff  []func(diff ListDiff)
}

// ListDiff describes how a List's entries changed between two updates.
type ListDiff struct {
	Added   []string
	Removed []string
	// Moved contains entries present both before and after whose index
	// changed.
	Moved []string
}

// NewList wraps an already-fetched array-valued Record as a List.
func NewList(r *Record) *List {
	l := &List{record: r}
	l.entries = toStrings(snapshotOrNil(r))
	r.Subscribe("", func(v interface{}) {
		l.handleUpdate(toStrings(v))
	})
	return l
}

func snapshotOrNil(r *Record) interface{} {
	v, _ := r.Get("")
	return v
}

func toStrings(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Entries returns a copy of the list's current entry names, in order.
func (l *List) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.entries...)
}

// SetEntries replaces the whole list and writes it back to the server.
func (l *List) SetEntries(entries []string) {
	asAny := make([]interface{}, len(entries))
	for i, e := range entries {
		asAny[i] = e
	}
	l.record.Set("", asAny, nil)
}

// AddEntry appends name to the list, or does nothing if it is already
// present.
func (l *List) AddEntry(name string) {
	l.mu.Lock()
	for _, e := range l.entries {
		if e == name {
			l.mu.Unlock()
			return
		}
	}
	entries := append(append([]string{}, l.entries...), name)
	l.mu.Unlock()
	l.SetEntries(entries)
}

// RemoveEntry removes the first occurrence of name from the list.
func (l *List) RemoveEntry(name string) {
	l.mu.Lock()
	idx := -1
	for i, e := range l.entries {
		if e == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return
	}
	entries := append([]string{}, l.entries[:idx]...)
	entries = append(entries, l.entries[idx+1:]...)
	l.mu.Unlock()
	l.SetEntries(entries)
}

// OnDiff registers cb to be invoked with the before/after difference
// whenever the list's entries change (locally or from the server).
func (l *List) OnDiff(cb func(diff ListDiff)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDiff = append(l.onDiff, cb)
}

func (l *List) handleUpdate(newEntries []string) {
	l.mu.Lock()
	old := l.entries
	l.entries = newEntries
	cbs := append([]func(ListDiff){}, l.onDiff...)
	l.mu.Unlock()

	diff := diffEntries(old, newEntries)
	for _, cb := range cbs {
		cb(diff)
	}
}

// diffEntries computes added/removed/moved between two ordered name lists.
func diffEntries(before, after []string) ListDiff {
	beforeIdx := make(map[string]int, len(before))
	for i, e := range before {
		beforeIdx[e] = i
	}
	afterSet := make(map[string]bool, len(after))
	for _, e := range after {
		afterSet[e] = true
	}

	var diff ListDiff
	for _, e := range before {
		if !afterSet[e] {
			diff.Removed = append(diff.Removed, e)
		}
	}
	for i, e := range after {
		oldIdx, existed := beforeIdx[e]
		if !existed {
			diff.Added = append(diff.Added, e)
			continue
		}
		if oldIdx != i {
			diff.Moved = append(diff.Moved, e)
		}
	}
	return diff
}

// Discard releases the underlying Record.
func (l *List) Discard() { l.record.Discard() }
