package core

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMetricsAverageAndFPS(t *testing.T) {
	m := NewFrameMetrics()

	m.Update(0.010)
	m.Update(0.020)
	assert.InDelta(t, 15.0, m.FrameTime(), 1e-9)
	assert.Zero(t, m.FPS())

	// 120 frames of 10ms crosses the one second mark once.
	for i := 0; i < 120; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Greater(t, m.FPS(), 90.0)
}

func TestFrameMetricsWindowIsBounded(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(1.0)
	}
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(0.002)
	}
	assert.InDelta(t, 2.0, m.FrameTime(), 1e-9)
}

func TestClock(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Update()
	elapsed := c.Elapsed()
	assert.Greater(t, elapsed, 0.0)

	c.Stop()
	time.Sleep(2 * time.Millisecond)
	c.Update()
	assert.Equal(t, elapsed, c.Elapsed())
}

func TestResourceIDsAreUnique(t *testing.T) {
	a, b := NewResourceID(), NewResourceID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.Short(), 8)
}

func TestLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() {
		SetLogOutput(nilWriter{})
		_ = SetLogLevel("info")
	})

	require.NoError(t, SetLogLevel("warn"))
	LogInfo("hidden %d", 1)
	LogWarn("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	assert.Error(t, SetLogLevel("loud"))
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestMustExitsOnError(t *testing.T) {
	if os.Getenv("MEED_MUST_EXIT") == "1" {
		SetLogOutput(nilWriter{})
		Must(ErrGPUCall)
		return
	}
	Must(nil)

	cmd := exec.Command(os.Args[0], "-test.run=^TestMustExitsOnError$")
	cmd.Env = append(os.Environ(), "MEED_MUST_EXIT=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
}
