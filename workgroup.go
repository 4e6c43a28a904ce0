package wisc

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/amirreiter/wisc/gpudev"
)

// Workgroup is a compute session: a fixed, ordered set of opened devices
// plus the store of host-owned virtual buffers that cross the
// host/device boundary. Devices are ordered by normalized compute weight,
// strongest first, for the lifetime of the session.
//
// A Workgroup exclusively owns its devices and buffers. All methods are
// safe for concurrent use, but a built Task borrows the session
// exclusively until it runs or is discarded; mutating calls made during
// the borrow fail with ErrSessionBusy.
type Workgroup struct {
	id uuid.UUID

	mu      sync.Mutex
	devices []*Device
	weights []float64
	store   bufferStore
	busy    bool
	closed  bool
}

// NewWorkgroup assembles a session over the given devices, taking
// ownership of them. Devices are reordered by descending compute weight
// and the weights are normalized to sum to one.
func NewWorkgroup(devices []*Device) (*Workgroup, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	owned := make([]*Device, len(devices))
	copy(owned, devices)
	sort.SliceStable(owned, func(i, j int) bool {
		return owned[i].weight > owned[j].weight
	})

	var total float64
	for _, d := range owned {
		total += d.weight
	}
	weights := make([]float64, len(owned))
	for i, d := range owned {
		if total > 0 {
			weights[i] = d.weight / total
		} else {
			weights[i] = 1 / float64(len(owned))
		}
	}

	wg := &Workgroup{id: uuid.New(), devices: owned, weights: weights}
	logger().Info("wisc: workgroup created", "id", wg.id, "devices", len(owned))
	return wg, nil
}

// OpenWorkgroup enumerates every usable device through the default
// backend and assembles a session over them. requested features are
// granted where available; required features must be grantable on every
// surviving device.
func OpenWorkgroup(requested, required gpudev.Features) (*Workgroup, error) {
	devices := Devices(requested, required)
	return NewWorkgroup(devices)
}

// ID returns the session's unique identifier.
func (w *Workgroup) ID() uuid.UUID { return w.id }

// Devices returns the session's devices in weight order, strongest
// first. The returned slice is a copy; the devices are not.
func (w *Workgroup) Devices() []*Device {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Device, len(w.devices))
	copy(out, w.devices)
	return out
}

// Weights returns the normalized per-device compute weights, aligned
// with Devices. They sum to one and are descending. The weights are
// informational; no dispatch decision consumes them.
func (w *Workgroup) Weights() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(w.weights))
	copy(out, w.weights)
	return out
}

// BufferCount returns the number of live virtual buffers in the store.
func (w *Workgroup) BufferCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.len()
}

// Close releases every device and drops every stored buffer. Close fails
// with ErrSessionBusy while a Task borrows the session. Idempotent.
func (w *Workgroup) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if w.busy {
		return ErrSessionBusy
	}
	w.store.drain()
	for _, d := range w.devices {
		d.Release()
	}
	w.devices = nil
	w.weights = nil
	w.closed = true
	logger().Info("wisc: workgroup closed", "id", w.id)
	return nil
}

// String returns a human-readable description of the session.
func (w *Workgroup) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Sprintf("wisc workgroup %s (%d devices, %d buffers)",
		w.id, len(w.devices), w.store.len())
}

// borrow takes the session's exclusive borrow for a Task.
func (w *Workgroup) borrow() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkgroupClosed
	}
	if w.busy {
		return ErrSessionBusy
	}
	w.busy = true
	return nil
}

// release returns the exclusive borrow.
func (w *Workgroup) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
}

// resolve returns the live buffer behind h, or nil. Callers hold the
// borrow, so the pointer stays valid until release.
func (w *Workgroup) resolve(h VirtualBufferHandle) *virtualBuffer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.get(h)
}

// CreateBuffer moves data into wg's virtual buffer store and returns a
// handle tagged with T. The store aliases data's memory directly; the
// caller must not touch the slice again until it is taken back.
//
// T must be plain old data: a fixed-layout value type with no pointers,
// interior references, or platform-dependent field sizes.
func CreateBuffer[T any](wg *Workgroup, data []T) (VirtualBufferHandle, error) {
	tag := reflect.TypeFor[T]()
	if !isPlainOldData(tag) {
		return VirtualBufferHandle{}, errors.Wrapf(ErrInvalidElementType, "element type %s", tag)
	}

	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.closed {
		return VirtualBufferHandle{}, ErrWorkgroupClosed
	}
	if wg.busy {
		return VirtualBufferHandle{}, ErrSessionBusy
	}

	vb := virtualBuffer{
		data:   data,
		tag:    tag,
		count:  len(data),
		stride: int(tag.Size()),
		raw:    sliceBytes(data),
	}
	h := wg.store.insert(vb)
	logger().Debug("wisc: buffer created",
		"workgroup", wg.id, "type", tag, "count", len(data), "bytes", vb.byteLen())
	return h, nil
}

// TakeBuffer removes the buffer behind h from wg's store and returns the
// backing slice, invalidating the handle. Taking with the wrong element
// type fails with ErrBufferType and leaves the buffer in place.
func TakeBuffer[T any](wg *Workgroup, h VirtualBufferHandle) ([]T, error) {
	tag := reflect.TypeFor[T]()

	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.closed {
		return nil, ErrWorkgroupClosed
	}
	if wg.busy {
		return nil, ErrSessionBusy
	}

	vb := wg.store.get(h)
	if vb == nil {
		return nil, ErrUnknownHandle
	}
	if vb.tag != tag {
		return nil, errors.Wrapf(ErrBufferType, "stored %s, requested %s", vb.tag, tag)
	}

	out, _ := wg.store.remove(h)
	return out.data.([]T), nil
}
