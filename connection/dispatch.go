package connection

import (
	"github.com/deepstream-client/go-deepstream/protocol"
)

// topicQueue is a single-threaded dispatch queue for one topic (spec.md
// §4.3 "Dispatch" / §5): messages for EVENT, RPC, RECORD and PRESENCE are
// each serialized through their own queue, giving per-topic ordering
// while topics progress in parallel.
type topicQueue struct {
	in      chan protocol.Message
	handler func(protocol.Message)
	done    chan struct{}
}

func newTopicQueue(handler func(protocol.Message)) *topicQueue {
	q := &topicQueue{
		in:      make(chan protocol.Message, 256),
		handler: handler,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *topicQueue) run() {
	for {
		select {
		case msg := <-q.in:
			q.handler(msg)
		case <-q.done:
			return
		}
	}
}

func (q *topicQueue) push(msg protocol.Message) {
	select {
	case q.in <- msg:
	case <-q.done:
	}
}

func (q *topicQueue) stop() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
