// Package native implements the wisc device layer over the pure-Go
// gogpu/wgpu HAL.
//
// Importing this package registers the "native" backend (real hal
// runtimes, Vulkan first) and the "noop" backend (hal's no-op runtime,
// useful for smoke tests on machines without a GPU).
package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Register the Vulkan runtime with the hal backend registry.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/amirreiter/wisc/backend"
	"github.com/amirreiter/wisc/gpudev"
)

func init() {
	backend.Register(backend.BackendNative, newEnumerator)
	backend.Register(backend.BackendNoop, newNoopEnumerator)
}

// halRuntimes lists the hal runtime backends to enumerate through, in
// dedup priority order.
var halRuntimes = []struct {
	id   gputypes.Backend
	kind gpudev.Backend
}{
	{gputypes.BackendVulkan, gpudev.BackendVulkan},
}

// enumerator implements gpudev.Enumerator over one or more hal instances.
type enumerator struct {
	instances []hal.Instance
	adapters  []gpudev.Adapter
}

// newEnumerator creates instances for every usable hal runtime and
// snapshots their adapters. Returns ErrNoHALBackend when none is usable.
func newEnumerator() (gpudev.Enumerator, error) {
	e := &enumerator{}

	for _, rt := range halRuntimes {
		halBackend, ok := hal.GetBackend(rt.id)
		if !ok {
			continue
		}
		instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			continue
		}
		e.instances = append(e.instances, instance)

		for _, exposed := range instance.EnumerateAdapters(nil) {
			e.adapters = append(e.adapters, newAdapter(exposed, rt.kind))
		}
	}

	if len(e.instances) == 0 {
		return nil, ErrNoHALBackend
	}
	return e, nil
}

// newNoopEnumerator wraps hal's no-op runtime.
func newNoopEnumerator() (gpudev.Enumerator, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, err
	}

	e := &enumerator{instances: []hal.Instance{instance}}
	for _, exposed := range instance.EnumerateAdapters(nil) {
		e.adapters = append(e.adapters, newAdapter(exposed, gpudev.BackendNoop))
	}
	return e, nil
}

// Enumerate returns every visible adapter.
func (e *enumerator) Enumerate() []gpudev.Adapter {
	return e.adapters
}

// Best returns a single adapter by a raw power preference: discrete GPU
// first, then integrated, then anything else.
func (e *enumerator) Best() (gpudev.Adapter, bool) {
	if len(e.adapters) == 0 {
		return nil, false
	}
	for _, a := range e.adapters {
		if a.Info().DeviceType == gpudev.DeviceTypeDiscreteGPU {
			return a, true
		}
	}
	for _, a := range e.adapters {
		if a.Info().DeviceType == gpudev.DeviceTypeIntegratedGPU {
			return a, true
		}
	}
	return e.adapters[0], true
}

// Destroy releases all hal instances.
func (e *enumerator) Destroy() {
	for _, instance := range e.instances {
		instance.Destroy()
	}
	e.instances = nil
	e.adapters = nil
}
