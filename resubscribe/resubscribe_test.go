package resubscribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFiresOnlyAfterReconnecting(t *testing.T) {
	c := New()
	calls := 0
	c.Register(func() { calls++ })

	c.OnOpen() // first connect, nothing latched
	assert.Equal(t, 0, calls)

	c.OnReconnecting()
	c.OnOpen()
	assert.Equal(t, 1, calls)

	c.OnOpen() // not latched again, must not re-fire
	assert.Equal(t, 1, calls)
}

func TestMultipleCallbacksAllFireInOrder(t *testing.T) {
	c := New()
	var order []int
	c.Register(func() { order = append(order, 1) })
	c.Register(func() { order = append(order, 2) })
	c.Register(func() { order = append(order, 3) })

	c.OnReconnecting()
	c.OnOpen()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRepeatedReconnectingBeforeOpenLatchesOnce(t *testing.T) {
	c := New()
	calls := 0
	c.Register(func() { calls++ })

	c.OnReconnecting()
	c.OnReconnecting()
	c.OnOpen()
	assert.Equal(t, 1, calls)
}
