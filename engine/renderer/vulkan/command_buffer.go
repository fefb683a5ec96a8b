package vulkan

import (
	"fmt"

	vk "github.com/Eiton/vulkan"

	"github.com/spaghettifunk/meed/engine/core"
)

type CommandBufferState int

const (
	CommandBufferStateNotAllocated CommandBufferState = iota
	CommandBufferStateReady
	CommandBufferStateRecording
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
)

type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

func NewCommandBuffer(context *Context, pool vk.CommandPool, isPrimary bool) (*CommandBuffer, error) {
	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := resourceError(vk.AllocateCommandBuffers(context.Device.Logical, &allocateInfo, handles), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}

	return &CommandBuffer{
		Handle: handles[0],
		State:  CommandBufferStateReady,
	}, nil
}

func (cb *CommandBuffer) Free(context *Context, pool vk.CommandPool) {
	if cb.Handle == nil {
		return
	}
	vk.FreeCommandBuffers(context.Device.Logical, pool, 1, []vk.CommandBuffer{cb.Handle})
	cb.Handle = nil
	cb.State = CommandBufferStateNotAllocated
}

func (cb *CommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if err := check(vk.BeginCommandBuffer(cb.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	cb.State = CommandBufferStateRecording
	return nil
}

func (cb *CommandBuffer) End() error {
	if err := check(vk.EndCommandBuffer(cb.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	cb.State = CommandBufferStateRecordingEnded
	return nil
}

// Reset returns the buffer to the initial state. The pool must allow per buffer resets.
func (cb *CommandBuffer) Reset() error {
	if err := check(vk.ResetCommandBuffer(cb.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	cb.State = CommandBufferStateReady
	return nil
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = CommandBufferStateSubmitted
}

// SubmitAndWait ends recording, submits the buffer to queue and blocks until
// the queue drains. The buffer stays allocated for the next one-shot use.
func (cb *CommandBuffer) SubmitAndWait(queue vk.Queue) error {
	if cb.State != CommandBufferStateRecording {
		return fmt.Errorf("%w: one-shot submit of a command buffer that is not recording", core.ErrPrecondition)
	}
	if err := cb.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if err := check(vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence), "vkQueueSubmit"); err != nil {
		return err
	}
	cb.UpdateSubmitted()

	if err := check(vk.QueueWaitIdle(queue), "vkQueueWaitIdle"); err != nil {
		return err
	}
	cb.State = CommandBufferStateReady
	return nil
}
