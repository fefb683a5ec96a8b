// Package releasestack tears resources down in the reverse order they were acquired.
//
// Every subsystem that creates objects with creation-order dependencies (a pipeline
// layout must outlive its pipeline, a device must outlive its swapchain) pushes one
// entry per acquired object and unwinds them all at once with Destroy.
package releasestack

import (
	"fmt"

	"github.com/spaghettifunk/meed/engine/containers"
	"github.com/spaghettifunk/meed/engine/core"
)

// ReleaseFunc frees data. It is called exactly once.
type ReleaseFunc func(data any)

type item struct {
	data    any
	release ReleaseFunc
}

type ReleaseStack struct {
	stack     *containers.Stack[item]
	destroyed bool
}

func New() *ReleaseStack {
	return &ReleaseStack{
		stack: containers.NewStack[item](),
	}
}

// Push registers release(data) to run on Destroy.
func (rs *ReleaseStack) Push(data any, release ReleaseFunc) error {
	if release == nil {
		return fmt.Errorf("%w: release stack push with a nil release function", core.ErrPrecondition)
	}
	if rs.destroyed {
		return fmt.Errorf("%w: release stack push after destroy", core.ErrPrecondition)
	}
	rs.stack.Push(item{data: data, release: release})
	return nil
}

// PushFunc registers a release step that needs no payload.
func (rs *ReleaseStack) PushFunc(release func()) error {
	if release == nil {
		return fmt.Errorf("%w: release stack push with a nil release function", core.ErrPrecondition)
	}
	return rs.Push(nil, func(any) { release() })
}

func (rs *ReleaseStack) Len() int {
	return rs.stack.Len()
}

// Destroy runs every release function, last pushed first. The stack cannot be used afterwards.
func (rs *ReleaseStack) Destroy() error {
	if rs.destroyed {
		return fmt.Errorf("%w: release stack destroyed twice", core.ErrPrecondition)
	}
	rs.destroyed = true

	for {
		it, ok := rs.stack.Pop()
		if !ok {
			break
		}
		it.release(it.data)
	}
	return nil
}
