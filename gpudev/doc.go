// Package gpudev defines the device-layer abstraction wisc dispatches
// through.
//
// The orchestration core never talks to a GPU runtime directly. It sees
// adapters, opened devices, buffers, and command encoders only through the
// interfaces in this package, so the production implementation (backend/native
// over gogpu/wgpu) and test doubles are interchangeable.
//
// Implementations must be safe for concurrent use unless a method documents
// otherwise.
package gpudev
