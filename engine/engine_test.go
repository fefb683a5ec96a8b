package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type nopBackend struct{ renderer.Backend }

func TestNewRequiresConfigAndBackend(t *testing.T) {
	cases := map[string]*Game{
		"nil game":      nil,
		"no app config": {},
		"no config":     {ApplicationConfig: &ApplicationConfig{Backend: nopBackend{}}},
		"no backend":    {ApplicationConfig: &ApplicationConfig{Config: core.DefaultConfig()}},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(g)
			assert.ErrorIs(t, err, core.ErrPrecondition)
		})
	}
}

func TestRunBeforeInitialize(t *testing.T) {
	e, err := New(&Game{ApplicationConfig: &ApplicationConfig{Config: core.DefaultConfig(), Backend: nopBackend{}}})
	require.NoError(t, err)
	assert.Equal(t, EngineStageUninitialized, e.Stage())

	assert.ErrorIs(t, e.Run(), core.ErrPrecondition)

	e.Stop()
	assert.True(t, e.stopRequest.Load())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "running", EngineStageRunning.String())
	assert.Equal(t, "shutting down", EngineStageShuttingDown.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}
