package core

import "github.com/spaghettifunk/meed/engine/containers"

const AVG_COUNT = 30

// FrameMetrics keeps a moving average of frame times and a frames-per-second counter.
type FrameMetrics struct {
	window             *containers.RingQueue[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		window: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records a frame that took frameElapsed seconds.
func (m *FrameMetrics) Update(frameElapsed float64) {
	frameMS := frameElapsed * 1000.0

	if m.window.IsFull() {
		_, _ = m.window.Dequeue()
	}
	_ = m.window.Enqueue(frameMS)

	var sum float64
	m.window.Each(func(v float64) {
		sum += v
	})
	m.msAvg = sum / float64(m.window.Len())

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}
