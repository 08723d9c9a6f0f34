// Package sse is an alternate, read-only Transport implementation backed
// by github.com/donovanhide/eventsource, demonstrating that Connection's
// contract (ordered text frames in, open/close/error signals) is not
// tied to websockets — a Server-Sent-Events stream satisfies the same
// leaf contract for the inbound half.
//
// Send always fails: SSE has no client-to-server channel, so an SSE-backed
// client can observe a hub (events, presence) but cannot author writes,
// subscriptions, or RPC calls through this transport. It exists to prove
// out the transport abstraction, not as a general-purpose substitute for
// ws.Transport.
package sse

import (
	"context"
	"errors"

	"github.com/donovanhide/eventsource"

	"github.com/deepstream-client/go-deepstream/transport"
)

// ErrReadOnly is returned by Send: this transport has no write channel.
var ErrReadOnly = errors.New("sse: transport is read-only")

type Transport struct {
	stream *eventsource.Stream

	onOpen  func()
	onMsg   func(string)
	onErr   func(error)
	onClose func()

	done chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{done: make(chan struct{})}
}

func (t *Transport) OnOpen(f func())          { t.onOpen = f }
func (t *Transport) OnMessage(f func(string)) { t.onMsg = f }
func (t *Transport) OnError(f func(error))    { t.onErr = f }
func (t *Transport) OnClose(f func())         { t.onClose = f }

func (t *Transport) Dial(ctx context.Context, url string) error {
	stream, err := eventsource.Subscribe(url, "")
	if err != nil {
		return err
	}
	t.stream = stream

	if t.onOpen != nil {
		t.onOpen()
	}

	go t.readLoop(ctx)
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer func() {
		if t.onClose != nil {
			t.onClose()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case ev, ok := <-t.stream.Events:
			if !ok {
				return
			}
			if t.onMsg != nil {
				t.onMsg(ev.Data())
			}
		case err, ok := <-t.stream.Errors:
			if !ok {
				continue
			}
			if t.onErr != nil {
				t.onErr(err)
			}
			return
		}
	}
}

func (t *Transport) Send(frame string) error {
	return ErrReadOnly
}

func (t *Transport) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	if t.stream != nil {
		t.stream.Close()
	}
	return nil
}
