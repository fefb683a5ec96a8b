package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
)

// Renderer drives the frame protocol of a Backend: clear, start, record, end, present.
type Renderer struct {
	backend     Backend
	clearColor  mgl32.Vec4
	FrameNumber uint64

	clock   *core.Clock
	metrics *core.FrameMetrics
}

func New(backend Backend) *Renderer {
	return &Renderer{
		backend:    backend,
		clearColor: mgl32.Vec4{0, 0, 0, 1},
		clock:      core.NewClock(),
		metrics:    core.NewFrameMetrics(),
	}
}

func (r *Renderer) Initialize(window *platform.Window, cfg *core.Config) error {
	if err := r.backend.Initialize(window, cfg); err != nil {
		return err
	}
	r.clearColor = mgl32.Vec4(cfg.Renderer.ClearColor)
	r.clock.Start()
	return nil
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

func (r *Renderer) Metrics() *core.FrameMetrics {
	return r.metrics
}

// DrawFrame runs one frame and hands the open frame to record. A frame skipped
// because the swapchain is being rebuilt is not an error.
func (r *Renderer) DrawFrame(record func(frame Frame) error) error {
	r.backend.ClearScreen(r.clearColor)

	frame, err := r.backend.StartFrame()
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("frame %d skipped: %s", r.FrameNumber, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start frame %d: %w", r.FrameNumber, err)
	}

	recordErr := record(frame)
	if err := r.backend.EndFrame(frame); err != nil {
		return errors.Join(recordErr, fmt.Errorf("end frame %d: %w", r.FrameNumber, err))
	}
	if recordErr != nil {
		return recordErr
	}

	if err := r.backend.Present(); err != nil && !errors.Is(err, core.ErrSwapchainBooting) {
		return fmt.Errorf("present frame %d: %w", r.FrameNumber, err)
	}

	r.clock.Update()
	r.metrics.Update(r.clock.Elapsed())
	r.clock.Start()
	r.FrameNumber++
	return nil
}

func (r *Renderer) WaitIdle() error {
	return r.backend.WaitIdle()
}

// Shutdown drains the device and unwinds the backend.
func (r *Renderer) Shutdown() error {
	if err := r.backend.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown failed: %s", err)
	}
	return r.backend.Shutdown()
}
