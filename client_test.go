package deepstream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepstream-client/go-deepstream/protocol"
	"github.com/deepstream-client/go-deepstream/rpc"
	"github.com/deepstream-client/go-deepstream/transport"
)

// fakeTransport mirrors connection's own test double; kept separate since
// connection's is unexported to its package.
type fakeTransport struct {
	mu   sync.Mutex
	sent []string

	onOpen  func()
	onMsg   func(string)
	onErr   func(error)
	onClose func()
	closed  bool
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) Dial(ctx context.Context, url string) error {
	if f.onOpen != nil {
		f.onOpen()
	}
	return nil
}

func (f *fakeTransport) Send(frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.onClose != nil {
		go f.onClose()
	}
	return nil
}

func (f *fakeTransport) OnOpen(cb func())          { f.onOpen = cb }
func (f *fakeTransport) OnMessage(cb func(string)) { f.onMsg = cb }
func (f *fakeTransport) OnError(cb func(error))    { f.onErr = cb }
func (f *fakeTransport) OnClose(cb func())         { f.onClose = cb }

func (f *fakeTransport) serverSend(frame string) { f.onMsg(frame) }

func (f *fakeTransport) contains(action protocol.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sent {
		if len(s) > 0 && stringContains(s, string(action)) {
			return true
		}
	}
	return false
}

func stringContains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

var _ transport.Transport = (*fakeTransport)(nil)

func newTestClient(tr *fakeTransport) *Client {
	return New(WithTransportFactory(func() transport.Transport { return tr }))
}

func loginClient(t *testing.T, c *Client, tr *fakeTransport) {
	t.Helper()
	require.NoError(t, c.Connect(context.Background(), "localhost:6020"))
	tr.serverSend(protocol.Encode(protocol.TopicConnection, protocol.ActionChallenge))
	tr.serverSend(protocol.Encode(protocol.TopicConnection, protocol.ActionAck))

	var result LoginResult
	c.Login(map[string]interface{}{"username": "tester"}, func(r LoginResult) { result = r })
	tr.serverSend(protocol.Encode(protocol.TopicAuth, protocol.ActionAck))
	require.Equal(t, "OPEN", c.ConnectionState())
	require.True(t, result.LoggedIn)
}

func TestClientConnectsAndLogsIn(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)
	loginClient(t, c, tr)
	assert.NotEmpty(t, c.ClientID())
}

func TestClientEventSubscribeAndEmit(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)
	loginClient(t, c, tr)

	received := make(chan interface{}, 1)
	c.Event.Subscribe("news/sport", func(data interface{}) { received <- data })
	assert.True(t, tr.contains(protocol.ActionSubscribe))

	tr.serverSend(protocol.Encode(protocol.TopicEvent, protocol.ActionEvent, "news/sport", "Sgoal"))

	select {
	case data := <-received:
		assert.Equal(t, "goal", data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event callback")
	}
}

func TestClientOnConnectionChangeFiresOnOpen(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)

	changes := make(chan bool, 4)
	c.OnConnectionChange(func(connected bool) { changes <- connected })
	loginClient(t, c, tr)

	select {
	case connected := <-changes:
		assert.True(t, connected)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connection-change callback")
	}
}

func TestClientRPCProvideAnswersRequest(t *testing.T) {
	tr := newFakeTransport()
	c := newTestClient(tr)
	loginClient(t, c, tr)

	require.NoError(t, c.RPC.Provide("add-two", func(data interface{}, resp *rpc.Response) {
		n, _ := data.(json.Number)
		f, _ := n.Float64()
		resp.Send(f + 2)
	}))
	assert.True(t, tr.contains(protocol.ActionSubscribe))

	tr.serverSend(protocol.Encode(protocol.TopicRPC, protocol.ActionRequest, "add-two", "corr1", "N3"))
	assert.Eventually(t, func() bool { return tr.contains(protocol.ActionResponse) }, time.Second, 5*time.Millisecond)
}
