package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepstream-client/go-deepstream/ack"
	"github.com/deepstream-client/go-deepstream/internal/typedvalue"
	"github.com/deepstream-client/go-deepstream/protocol"
)

func newTestHandler(allow AllowProvide) (*Handler, func() [][]string) {
	var mu sync.Mutex
	var sent [][]string
	emit := func(action protocol.Action, fields ...string) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, append([]string{string(action)}, fields...))
	}
	reg := ack.New(nil)
	reg.Open()
	h := New(emit, reg, time.Second, allow)
	return h, func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		return append([][]string{}, sent...)
	}
}

func TestMakeResolvesOnResponse(t *testing.T) {
	h, sent := newTestHandler(nil)

	done := make(chan interface{}, 1)
	h.Make("add-two", 40, func(err error, data interface{}) {
		require.NoError(t, err)
		done <- data
	})

	msgs := sent()
	require.Len(t, msgs, 1)
	correlationID := msgs[0][2]

	field, _ := typedvalue.Encode(42)
	h.HandleMessage(protocol.Message{
		Topic: protocol.TopicRPC, Action: protocol.ActionResponse,
		Data: []string{"add-two", correlationID, field},
	})

	select {
	case data := <-done:
		assert.EqualValues(t, "42", data)
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestMakeResolvesOnError(t *testing.T) {
	h, sent := newTestHandler(nil)

	done := make(chan error, 1)
	h.Make("fail-me", nil, func(err error, data interface{}) { done <- err })

	msgs := sent()
	correlationID := msgs[0][2]

	h.HandleMessage(protocol.Message{
		Topic: protocol.TopicRPC, Action: protocol.ActionError,
		Data: []string{"fail-me", correlationID, "NO_RPC_PROVIDER"},
	})

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestProvideDeniedByACL(t *testing.T) {
	h, _ := newTestHandler(func(name string) (bool, error) { return false, nil })

	err := h.Provide("restricted", func(interface{}, *Response) {})
	assert.Error(t, err)
}

func TestProviderAnswersRequest(t *testing.T) {
	h, sent := newTestHandler(nil)

	require.NoError(t, h.Provide("add-two", func(data interface{}, resp *Response) {
		resp.Send("answered")
	}))

	h.HandleMessage(protocol.Message{
		Topic: protocol.TopicRPC, Action: protocol.ActionRequest,
		Data: []string{"add-two", "7"},
	})

	msgs := sent()
	last := msgs[len(msgs)-1]
	require.Equal(t, string(protocol.ActionResponse), last[0])
	assert.Equal(t, "7", last[2])
}

func TestResponseAnswersOnlyOnce(t *testing.T) {
	h, sent := newTestHandler(nil)

	require.NoError(t, h.Provide("add-two", func(data interface{}, resp *Response) {
		resp.Send("first")
		resp.Send("second")
	}))

	h.HandleMessage(protocol.Message{
		Topic: protocol.TopicRPC, Action: protocol.ActionRequest,
		Data: []string{"add-two", "9"},
	})

	count := 0
	for _, m := range sent() {
		if m[0] == string(protocol.ActionResponse) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
