package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueInsertOrdersByPriorityThenFIFO(t *testing.T) {
	q := &waitQueue{}

	q.insert("low-1", 0)
	q.insert("low-2", 0)
	q.insert("hi-1", 10)
	q.insert("mid-1", 5)
	q.insert("hi-2", 10)

	assert.Equal(t, []string{"hi-1", "hi-2", "mid-1", "low-1", "low-2"}, q.ids())
}

func TestQueuePositionIsOneBased(t *testing.T) {
	q := &waitQueue{}
	q.insert("a", 0)
	q.insert("b", 0)

	assert.Equal(t, 1, q.position("a"))
	assert.Equal(t, 2, q.position("b"))
	assert.Equal(t, 0, q.position("missing"))
}

func TestQueuePopHead(t *testing.T) {
	q := &waitQueue{}
	q.insert("a", 0)
	q.insert("b", 3)

	head, ok := q.popHead()
	assert.True(t, ok)
	assert.Equal(t, "b", head.sessionID)

	head, ok = q.popHead()
	assert.True(t, ok)
	assert.Equal(t, "a", head.sessionID)

	_, ok = q.popHead()
	assert.False(t, ok)
}

func TestQueueRemove(t *testing.T) {
	q := &waitQueue{}
	q.insert("a", 0)
	q.insert("b", 0)
	q.insert("c", 0)

	assert.True(t, q.remove("b"))
	assert.False(t, q.remove("b"))
	assert.Equal(t, []string{"a", "c"}, q.ids())
	assert.Equal(t, 2, q.len())
}

func TestQueueEqualPrioritiesStayFIFOUnderInterleaving(t *testing.T) {
	q := &waitQueue{}
	q.insert("p5-1", 5)
	q.insert("p0-1", 0)
	q.insert("p5-2", 5)
	q.insert("p0-2", 0)
	q.insert("p5-3", 5)

	assert.Equal(t, []string{"p5-1", "p5-2", "p5-3", "p0-1", "p0-2"}, q.ids())
}
