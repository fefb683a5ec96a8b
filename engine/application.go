package engine

import (
	"github.com/spaghettifunk/meed/engine/core"
	"github.com/spaghettifunk/meed/engine/platform"
	"github.com/spaghettifunk/meed/engine/renderer"
)

type ApplicationConfig struct {
	Config *core.Config
	// ClientAPI must match what Backend renders with.
	ClientAPI platform.ClientAPI
	Backend   renderer.Backend
}
