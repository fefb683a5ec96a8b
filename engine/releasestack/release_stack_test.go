package releasestack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine/core"
)

func TestDestroyRunsInReverseOrder(t *testing.T) {
	rs := New()

	var log []int
	release := func(data any) {
		log = append(log, data.(int))
	}
	for i := 1; i <= 5; i++ {
		require.NoError(t, rs.Push(i, release))
	}
	assert.Equal(t, 5, rs.Len())

	require.NoError(t, rs.Destroy())
	assert.Equal(t, []int{5, 4, 3, 2, 1}, log)
	assert.Equal(t, 0, rs.Len())
}

func TestEachReleaseGetsItsOwnData(t *testing.T) {
	rs := New()

	type call struct {
		fn   string
		data string
	}
	var calls []call
	require.NoError(t, rs.Push("instance", func(d any) { calls = append(calls, call{"destroyInstance", d.(string)}) }))
	require.NoError(t, rs.PushFunc(func() { calls = append(calls, call{"destroyMessenger", ""}) }))
	require.NoError(t, rs.Push("device", func(d any) { calls = append(calls, call{"destroyDevice", d.(string)}) }))

	require.NoError(t, rs.Destroy())
	assert.Equal(t, []call{
		{"destroyDevice", "device"},
		{"destroyMessenger", ""},
		{"destroyInstance", "instance"},
	}, calls)
}

func TestNilReleaseIsRejected(t *testing.T) {
	rs := New()
	assert.ErrorIs(t, rs.Push(1, nil), core.ErrPrecondition)
	assert.ErrorIs(t, rs.PushFunc(nil), core.ErrPrecondition)
	assert.Equal(t, 0, rs.Len())
}

func TestStackIsSingleUse(t *testing.T) {
	rs := New()
	calls := 0
	require.NoError(t, rs.PushFunc(func() { calls++ }))

	require.NoError(t, rs.Destroy())
	assert.ErrorIs(t, rs.Destroy(), core.ErrPrecondition)
	assert.ErrorIs(t, rs.PushFunc(func() {}), core.ErrPrecondition)
	assert.Equal(t, 1, calls)
}

func TestDestroyEmptyStack(t *testing.T) {
	assert.NoError(t, New().Destroy())
}
