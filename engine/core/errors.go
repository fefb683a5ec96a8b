package core

import (
	"errors"
)

// Failure kinds surfaced at every engine boundary. Wrap them with fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	ErrGPUCall           = errors.New("gpu call failed")
	ErrShaderCompile     = errors.New("shader compilation failed")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPrecondition      = errors.New("precondition violated")
	ErrNotFound          = errors.New("not found")

	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
)

// Must stops the process when err is not nil. Continuing after a failed GPU call
// leaves the backend in an undefined state.
func Must(err error) {
	if err != nil {
		LogFatal("unrecoverable engine error: %s", err)
	}
}
