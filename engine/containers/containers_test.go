package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackLIFO(t *testing.T) {
	s := NewStack[int]()
	assert.True(t, s.IsEmpty())

	for i := 1; i <= 3; i++ {
		s.Push(i)
	}
	assert.Equal(t, 3, s.Len())

	top, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, 3, top)

	var popped []int
	for !s.IsEmpty() {
		v, ok := s.Pop()
		require.True(t, ok)
		popped = append(popped, v)
	}
	assert.Equal(t, []int{3, 2, 1}, popped)

	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestSetKeepsInsertionOrderAndDedupes(t *testing.T) {
	s := NewSet[uint32](2, 0, 2, 1, 0)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []uint32{2, 0, 1}, s.Values())
	assert.False(t, s.Insert(1))
	assert.True(t, s.Insert(7))

	assert.Equal(t, 1, s.Find(0))
	assert.Equal(t, NotFound, s.Find(42))
	assert.True(t, s.Contains(7))
}

func TestRingQueue(t *testing.T) {
	q := NewRingQueue[string](2)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	assert.ErrorIs(t, q.Enqueue("c"), ErrQueueFull)

	front, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, "a", front)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	require.NoError(t, q.Enqueue("c"))

	var seen []string
	q.Each(func(s string) { seen = append(seen, s) })
	assert.Equal(t, []string{"b", "c"}, seen)
	assert.Equal(t, 2, q.Len())
}
