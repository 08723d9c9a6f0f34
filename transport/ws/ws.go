// Package ws is the primary Transport implementation, backed by
// github.com/gorilla/websocket.
package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/deepstream-client/go-deepstream/transport"
)

// Transport dials a websocket endpoint and shuttles whole-frame text
// messages to/from it. Send writes synchronously on the calling goroutine
// and blocks it until the write completes; reads run in a goroutine owned
// by the transport, matching how the teacher's backend.go dials and reads.
type Transport struct {
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	onOpen  func()
	onMsg   func(string)
	onErr   func(error)
	onClose func()

	closeOnce sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// New constructs a ws.Transport using websocket.DefaultDialer. The dialer
// is unexported and cannot be replaced by callers.
func New() *Transport {
	return &Transport{dialer: websocket.DefaultDialer}
}

func (t *Transport) OnOpen(f func())          { t.onOpen = f }
func (t *Transport) OnMessage(f func(string)) { t.onMsg = f }
func (t *Transport) OnError(f func(error))    { t.onErr = f }
func (t *Transport) OnClose(f func())         { t.onClose = f }

func (t *Transport) Dial(ctx context.Context, url string) error {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	if t.onOpen != nil {
		t.onOpen()
	}

	go t.readLoop(conn)
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer func() {
		if t.onClose != nil {
			t.onClose()
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if t.onErr != nil {
				t.onErr(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if t.onMsg != nil {
			t.onMsg(string(data))
		}
	}
}

func (t *Transport) Send(frame string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	var err error
	t.closeOnce.Do(func() {
		err = conn.Close()
	})
	return err
}
