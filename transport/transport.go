// Package transport defines the abstract bidirectional text-frame
// transport the Connection state machine drives. Per spec.md §1, the
// transport itself — reliable ordered delivery, TLS, framing over the
// byte stream — is an external collaborator; this package only fixes the
// small callback-shaped contract Connection needs, plus two reference
// implementations (ws, sse) that satisfy it.
package transport

import "context"

// Transport is the leaf the Connection state machine drives. Dial must be
// called exactly once per instance; after it returns, Send/Close are safe
// to call concurrently with the callback deliveries.
type Transport interface {
	// Dial opens the underlying connection to url. The OnOpen callback
	// fires inside Dial, before it returns; the other callbacks may fire
	// at any time after the connection is open.
	Dial(ctx context.Context, url string) error

	// Send writes one already-encoded frame.
	Send(frame string) error

	// Close closes the transport. It is safe to call more than once.
	Close() error

	// OnOpen, OnMessage, OnError and OnClose register the Connection's
	// callbacks. They must be called before Dial.
	OnOpen(func())
	OnMessage(func(frame string))
	OnError(func(err error))
	OnClose(func())
}
