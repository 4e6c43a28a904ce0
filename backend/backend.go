// Package backend selects the device-runtime layer wisc enumerates through.
//
// Runtime backends register an enumerator factory from their init()
// functions; the orchestration core asks the registry for the best
// available one. Importing backend/native for its side effects is the
// normal way to get the production gogpu/wgpu layer:
//
//	import _ "github.com/amirreiter/wisc/backend/native"
package backend

import (
	"errors"

	"github.com/amirreiter/wisc/gpudev"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when no usable backend is registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnknownBackend is returned when a named backend is not registered.
	ErrUnknownBackend = errors.New("backend: unknown name")
)

// Well-known backend names.
const (
	// BackendNative is the production gogpu/wgpu HAL backend.
	BackendNative = "native"
	// BackendNoop is the no-op backend used for smoke testing.
	BackendNoop = "noop"
)

// Factory creates a fresh enumerator for one enumeration pass.
// A factory returning an error signals the backend cannot run in this
// process (missing driver, unsupported platform); the registry then
// falls through to the next candidate.
type Factory func() (gpudev.Enumerator, error)
