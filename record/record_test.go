package record

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/config"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
)

func newTestEngine() (*Engine, func() [][]string) {
	var mu sync.Mutex
	var sent [][]string
	emit := func(action protocol.Action, fields ...string) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, append([]string{string(action)}, fields...))
	}
	reg := ack.New(nil)
	reg.Open()
	opts := config.Default()
	e := New(emit, reg, opts, nil, 0)
	return e, func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		return append([][]string{}, sent...)
	}
}

func TestGetRecordIssuesCreateOrRead(t *testing.T) {
	e, sent := newTestEngine()

	r := e.GetRecord("item1")
	assert.False(t, r.IsReady())

	msgs := sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, string(protocol.ActionCreateOrRead), msgs[0][0])
}

func TestHandleReadMakesRecordReadyAndFiresSubscribers(t *testing.T) {
	e, _ := newTestEngine()
	r := e.GetRecord("item1")

	var got interface{}
	r.Subscribe("name", func(v interface{}) { got = v })

	field, _ := typedvalue.Encode(map[string]interface{}{"name": "alice"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{"item1", "1", field},
	})

	assert.True(t, r.IsReady())
	assert.Equal(t, "alice", got)
}

func TestSetSendsUpdateAndBumpsVersion(t *testing.T) {
	e, sent := newTestEngine()
	r := e.GetRecord("item1")

	field, _ := typedvalue.Encode(map[string]interface{}{"name": "alice"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{"item1", "1", field},
	})

	r.Set("name", "bob", nil)

	msgs := sent()
	last := msgs[len(msgs)-1]
	assert.Equal(t, string(protocol.ActionUpdate), last[0])
	assert.Equal(t, "2", last[2])

	v, _ := r.Get("name")
	assert.Equal(t, "bob", v)
}

func TestSubscribePathOnlyFiresOnRealChange(t *testing.T) {
	e, _ := newTestEngine()
	r := e.GetRecord("item1")

	field, _ := typedvalue.Encode(map[string]interface{}{"a": "1", "b": "2"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{"item1", "1", field},
	})

	fired := 0
	r.Subscribe("a", func(interface{}) { fired++ })

	unchanged, _ := typedvalue.Encode(map[string]interface{}{"a": "1", "b": "99"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionUpdate,
		Data: []string{"item1", "2", unchanged},
	})

	assert.Equal(t, 1, fired, "subscribe fires once on Subscribe itself, not again for an unrelated path change")
}

func TestStaleUpdateIsIgnored(t *testing.T) {
	e, _ := newTestEngine()
	r := e.GetRecord("item1")

	field, _ := typedvalue.Encode(map[string]interface{}{"v": "1"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{"item1", "5", field},
	})

	stale, _ := typedvalue.Encode(map[string]interface{}{"v": "stale"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionUpdate,
		Data: []string{"item1", "3", stale},
	})

	assert.Equal(t, 5, r.Version())
}

func TestVersionExistsAppliesMergeStrategy(t *testing.T) {
	e, sent := newTestEngine()
	e.SetMergeStrategy(RemoteWins)
	r := e.GetRecord("item1")

	field, _ := typedvalue.Encode(map[string]interface{}{"v": "local"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionRead,
		Data: []string{"item1", "1", field},
	})

	remote, _ := typedvalue.Encode(map[string]interface{}{"v": "remote"})
	e.HandleMessage(protocol.Message{
		Topic: protocol.TopicRecord, Action: protocol.ActionVersionExists,
		Data: []string{"item1", "3", remote},
	})

	v, _ := r.Get("v")
	assert.Equal(t, "remote", v)

	msgs := sent()
	last := msgs[len(msgs)-1]
	assert.Equal(t, string(protocol.ActionUpdate), last[0])
	assert.Equal(t, "4", last[2])
}

func TestDeleteResolvesCallbackOnAck(t *testing.T) {
	e, sent := newTestEngine()
	r := e.GetRecord("item1")

	done := make(chan error, 1)
	r.Delete(func(err error) { done <- err })

	msgs := sent()
	last := msgs[len(msgs)-1]
	assert.Equal(t, string(protocol.ActionDelete), last[0])

	e.HandleMessage(protocol.Message{Topic: protocol.TopicRecord, Action: protocol.ActionAck, Data: []string{"item1"}})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("delete callback never invoked")
	}
}

func TestDiscardUnsubscribesOnceRefsReachZero(t *testing.T) {
	e, sent := newTestEngine()
	r1 := e.GetRecord("item1")
	r2 := e.GetRecord("item1")
	assert.Same(t, r1, r2)

	r1.Discard()
	for _, m := range sent() {
		assert.NotEqual(t, string(protocol.ActionUnsubscribe), m[0])
	}

	r2.Discard()
	found := false
	for _, m := range sent() {
		if m[0] == string(protocol.ActionUnsubscribe) {
			found = true
		}
	}
	assert.True(t, found)
}
