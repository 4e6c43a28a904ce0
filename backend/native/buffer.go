package native

import (
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/amirreiter/wisc/gpudev"
)

// mapState tracks the mapping state machine of a buffer.
type mapState int

const (
	mapStateUnmapped mapState = iota
	mapStatePending
	mapStateMapped
)

// buffer implements gpudev.Buffer over hal.Buffer.
//
// Mapping follows the wgpu model: MapAsync records a pending request and
// the completion callback fires when the owning device is driven through
// WaitIdle. The HAL layer does not yet surface mapped memory directly, so
// the mapped view is materialized by the device poll (see device.poll).
type buffer struct {
	mu sync.Mutex

	halBuffer hal.Buffer
	device    *device

	size  uint64
	usage gpudev.BufferUsage

	state      mapState
	mappedData []byte
	callback   func(gpudev.MapStatus)

	destroyed bool
}

// Size returns the buffer length in bytes.
func (b *buffer) Size() uint64 { return b.size }

// Usage returns the usage flags the buffer was created with.
func (b *buffer) Usage() gpudev.BufferUsage { return b.usage }

// MapAsync requests a read mapping of the whole buffer.
func (b *buffer) MapAsync(callback func(gpudev.MapStatus)) error {
	if callback == nil {
		return ErrCallbackNil
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return ErrBufferDestroyed
	}
	if b.state != mapStateUnmapped {
		b.mu.Unlock()
		return ErrBufferAlreadyMapped
	}
	if !b.usage.Contains(gpudev.BufferUsageMapRead) {
		b.mu.Unlock()
		callback(gpudev.MapStatusError)
		return ErrMapUsageMismatch
	}

	b.state = mapStatePending
	b.callback = callback
	b.mu.Unlock()

	b.device.registerPending(b)
	return nil
}

// poll completes a pending map request. Called by the owning device while
// it is driven to idle; the callback runs outside the buffer lock.
func (b *buffer) poll() {
	b.mu.Lock()
	if b.state != mapStatePending {
		b.mu.Unlock()
		return
	}

	callback := b.callback
	b.callback = nil

	if b.destroyed {
		b.state = mapStateUnmapped
		b.mu.Unlock()
		if callback != nil {
			callback(gpudev.MapStatusDestroyed)
		}
		return
	}

	// The HAL layer has no mapped-pointer surface yet; expose a
	// zero-filled view of the right length so callers see consistent
	// bounds. TODO: switch to hal mapped ranges once gogpu/wgpu ships them.
	b.mappedData = make([]byte, b.size)
	b.state = mapStateMapped
	b.mu.Unlock()

	if callback != nil {
		callback(gpudev.MapStatusSuccess)
	}
}

// MappedRange returns the mapped bytes.
func (b *buffer) MappedRange() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return nil, ErrBufferDestroyed
	}
	if b.state != mapStateMapped {
		return nil, ErrBufferNotMapped
	}
	return b.mappedData, nil
}

// Unmap releases the host-visible view. Unmapping an unmapped buffer is
// a no-op; a pending request is cancelled with MapStatusDestroyed.
func (b *buffer) Unmap() error {
	b.mu.Lock()

	if b.destroyed {
		b.mu.Unlock()
		return ErrBufferDestroyed
	}

	if b.state == mapStatePending {
		callback := b.callback
		b.callback = nil
		b.state = mapStateUnmapped
		b.mu.Unlock()
		if callback != nil {
			callback(gpudev.MapStatusDestroyed)
		}
		return nil
	}

	b.state = mapStateUnmapped
	b.mappedData = nil
	b.mu.Unlock()
	return nil
}

// Destroy releases the buffer. Idempotent; a pending map request is
// failed with MapStatusDestroyed.
func (b *buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	halBuf := b.halBuffer
	callback := b.callback
	wasPending := b.state == mapStatePending
	b.halBuffer = nil
	b.mappedData = nil
	b.callback = nil
	b.state = mapStateUnmapped
	b.mu.Unlock()

	if wasPending && callback != nil {
		callback(gpudev.MapStatusDestroyed)
	}

	if halBuf != nil {
		b.device.destroyHALBuffer(halBuf)
	}
}
