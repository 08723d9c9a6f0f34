package record

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
)

func makeReadyList(t *testing.T, e *Engine, name string, entries []string) *List {
	r := e.GetRecord(name)
	asAny := make([]interface{}, len(entries))
	for i, s := range entries {
		asAny[i] = s
	}
	field, _ := typedvalue.Encode(asAny)
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{name, "1", field},
	})
	return NewList(r)
}

func TestListAddAndRemoveEntry(t *testing.T) {
	e, _ := newTestEngine()
	l := makeReadyList(t, e, "users", []string{"a", "b"})

	l.AddEntry("c")
	assert.Equal(t, []string{"a", "b", "c"}, l.Entries())

	l.RemoveEntry("a")
	assert.Equal(t, []string{"b", "c"}, l.Entries())
}

func TestListOnDiffReportsAddedAndRemoved(t *testing.T) {
	e, _ := newTestEngine()
	l := makeReadyList(t, e, "users", []string{"a", "b"})

	var diff ListDiff
	l.OnDiff(func(d ListDiff) { diff = d })

	l.AddEntry("c")
	assert.Equal(t, []string{"c"}, diff.Added)

	l.RemoveEntry("a")
	assert.Equal(t, []string{"a"}, diff.Removed)
}
