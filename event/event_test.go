package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/resubscribe"
)

func newTestHandler(t *testing.T) (*Handler, *[][]string) {
	var mu sync.Mutex
	var sent [][]string
	emit := func(action protocol.Action, fields ...string) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, append([]string{string(action)}, fields...))
	}
	reg := ack.New(nil)
	reg.Open()
	return New(emit, reg, time.Second, nil), &sent
}

func TestSubscribeOnlyFirstSendsWireMessage(t *testing.T) {
	h, sent := newTestHandler(t)

	var got1, got2 []interface{}
	h.Subscribe("channel1", func(d interface{}) { got1 = append(got1, d) })
	h.Subscribe("channel1", func(d interface{}) { got2 = append(got2, d) })

	assert.Len(t, *sent, 1)
	assert.Equal(t, string(protocol.ActionSubscribe), (*sent)[0][0])

	field, _ := typedvalue.Encode("hello")
	h.HandleEvent(protocol.Message{Topic: protocol.TopicEvent, Action: protocol.ActionEvent, Data: []string{"channel1", field}})

	assert.Equal(t, []interface{}{"hello"}, got1)
	assert.Equal(t, []interface{}{"hello"}, got2)
}

func TestUnsubscribeOnlyLastSendsWireMessage(t *testing.T) {
	h, sent := newTestHandler(t)

	sub1 := h.Subscribe("channel1", func(interface{}) {})
	sub2 := h.Subscribe("channel1", func(interface{}) {})

	h.Unsubscribe(sub1)
	assert.Len(t, *sent, 1, "still one local subscriber, no wire unsubscribe yet")

	h.Unsubscribe(sub2)
	assert.Len(t, *sent, 2)
	assert.Equal(t, string(protocol.ActionUnsubscribe), (*sent)[1][0])
}

func TestListenReplacesExistingPattern(t *testing.T) {
	h, sent := newTestHandler(t)

	h.Listen("channel/.*", func(string, ListenResponse) {})
	h.Listen("channel/.*", func(string, ListenResponse) {})

	assert.Len(t, *sent, 1, "re-Listen on same pattern must not resend LISTEN")
}

func TestListenAcceptRejectEmitsCorrectAction(t *testing.T) {
	h, sent := newTestHandler(t)

	h.Listen("channel/.*", func(match string, resp ListenResponse) {
		resp.Accept()
	})

	h.HandleSubscriptionForPatternFound(protocol.Message{
		Topic: protocol.TopicEvent, Action: protocol.ActionSubscriptionForPatternFound,
		Data: []string{"channel/.*", "channel/1"},
	})

	last := (*sent)[len(*sent)-1]
	assert.Equal(t, string(protocol.ActionListenAccept), last[0])
}

func TestResubscribeReplaysActiveSubscriptionsAndPatterns(t *testing.T) {
	var mu sync.Mutex
	var sent [][]string
	emit := func(action protocol.Action, fields ...string) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, append([]string{string(action)}, fields...))
	}
	reg := ack.New(nil)
	reg.Open()
	resub := resubscribe.New()
	h := New(emit, reg, time.Second, resub)

	h.Subscribe("channel1", func(interface{}) {})
	h.Listen("channel/.*", func(string, ListenResponse) {})

	mu.Lock()
	sent = nil
	mu.Unlock()

	resub.OnReconnecting()
	resub.OnOpen()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, sent, 2)
}
