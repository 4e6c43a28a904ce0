package wisc

// An in-memory gpudev implementation for testing the orchestration layer
// without hardware. Dispatches execute registered Go functions over the
// bound buffers' bytes; readback follows the same MapAsync/WaitIdle
// protocol the native backend uses.

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/amirreiter/wisc/gpudev"
)

// mockKernelFunc executes one dispatch over the bound buffers, keyed by
// binding slot.
type mockKernelFunc func(grid [3]uint32, bindings map[uint32][]byte)

type mockEnumerator struct {
	adapters  []*mockAdapter
	destroyed bool
}

func (e *mockEnumerator) Enumerate() []gpudev.Adapter {
	out := make([]gpudev.Adapter, len(e.adapters))
	for i, a := range e.adapters {
		out[i] = a
	}
	return out
}

func (e *mockEnumerator) Best() (gpudev.Adapter, bool) {
	if len(e.adapters) == 0 {
		return nil, false
	}
	return e.adapters[0], true
}

func (e *mockEnumerator) Destroy() { e.destroyed = true }

type mockAdapter struct {
	info     gpudev.AdapterInfo
	limits   gpudev.Limits
	features gpudev.Features
	compute  bool
	openErr  error
	kernels  map[string]mockKernelFunc

	// stallMaps leaves map callbacks undelivered, simulating a faulted
	// device that never completes readback.
	stallMaps bool

	opened []*mockDevice
}

func newMockAdapter(name string, vendor, device uint32, t gpudev.DeviceType, b gpudev.Backend) *mockAdapter {
	return &mockAdapter{
		info: gpudev.AdapterInfo{
			Name:       name,
			VendorID:   vendor,
			DeviceID:   device,
			DeviceType: t,
			Backend:    b,
		},
		limits: gpudev.Limits{
			MaxComputeInvocationsPerWorkgroup: 256,
			MaxComputeWorkgroupsPerDimension:  65535,
			MaxBufferSize:                     1 << 28,
			MaxStorageBufferBindingSize:       1 << 27,
		},
		compute: true,
		kernels: map[string]mockKernelFunc{},
	}
}

func (a *mockAdapter) Info() gpudev.AdapterInfo  { return a.info }
func (a *mockAdapter) Limits() gpudev.Limits     { return a.limits }
func (a *mockAdapter) Features() gpudev.Features { return a.features }
func (a *mockAdapter) SupportsCompute() bool     { return a.compute }

func (a *mockAdapter) Open(features gpudev.Features) (gpudev.Device, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}
	d := &mockDevice{adapter: a, features: features}
	a.opened = append(a.opened, d)
	return d, nil
}

type pendingMap struct {
	buf *mockBuffer
	cb  func(gpudev.MapStatus)
}

type mockDevice struct {
	adapter  *mockAdapter
	features gpudev.Features

	mu        sync.Mutex
	pending   []pendingMap
	destroyed bool
	submits   int
}

func (d *mockDevice) Features() gpudev.Features { return d.features }

func (d *mockDevice) CreateBuffer(desc *gpudev.BufferDescriptor) (gpudev.Buffer, error) {
	var data []byte
	if desc.Contents != nil {
		data = append([]byte(nil), desc.Contents...)
	} else {
		data = make([]byte, desc.Size)
	}
	return &mockBuffer{dev: d, label: desc.Label, data: data, usage: desc.Usage}, nil
}

func (d *mockDevice) CreateShaderModule(desc *gpudev.ShaderModuleDescriptor) (gpudev.ShaderModule, error) {
	return &mockModule{source: desc.WGSL}, nil
}

func (d *mockDevice) CreateBindGroupLayout(desc *gpudev.BindGroupLayoutDescriptor) (gpudev.BindGroupLayout, error) {
	return &mockResource{}, nil
}

func (d *mockDevice) CreatePipelineLayout(desc *gpudev.PipelineLayoutDescriptor) (gpudev.PipelineLayout, error) {
	return &mockResource{}, nil
}

func (d *mockDevice) CreateComputePipeline(desc *gpudev.ComputePipelineDescriptor) (gpudev.ComputePipeline, error) {
	if _, ok := d.adapter.kernels[desc.EntryPoint]; !ok {
		return nil, errors.Errorf("mock: no kernel registered for entry point %q", desc.EntryPoint)
	}
	return &mockPipeline{entry: desc.EntryPoint}, nil
}

func (d *mockDevice) CreateBindGroup(desc *gpudev.BindGroupDescriptor) (gpudev.BindGroup, error) {
	bindings := make(map[uint32][]byte, len(desc.Entries))
	for _, e := range desc.Entries {
		bindings[e.Binding] = e.Buffer.(*mockBuffer).data
	}
	return &mockBindGroup{bindings: bindings}, nil
}

func (d *mockDevice) CreateCommandEncoder(label string) (gpudev.CommandEncoder, error) {
	return &mockEncoder{dev: d}, nil
}

func (d *mockDevice) Queue() gpudev.Queue { return &mockQueue{dev: d} }

// WaitIdle delivers every pending map completion, unless the adapter is
// configured to stall.
func (d *mockDevice) WaitIdle() error {
	d.mu.Lock()
	if d.adapter.stallMaps {
		d.mu.Unlock()
		return nil
	}
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, p := range pending {
		p.buf.mapped = true
		p.cb(gpudev.MapStatusSuccess)
	}
	return nil
}

func (d *mockDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

type mockQueue struct{ dev *mockDevice }

func (q *mockQueue) Submit(cmds []gpudev.CommandBuffer) error {
	for _, c := range cmds {
		for _, op := range c.(*mockCommandBuffer).ops {
			op()
		}
	}
	q.dev.mu.Lock()
	q.dev.submits += len(cmds)
	q.dev.mu.Unlock()
	return nil
}

type mockBuffer struct {
	dev       *mockDevice
	label     string
	data      []byte
	usage     gpudev.BufferUsage
	mapped    bool
	destroyed bool
}

func (b *mockBuffer) Size() uint64              { return uint64(len(b.data)) }
func (b *mockBuffer) Usage() gpudev.BufferUsage { return b.usage }

func (b *mockBuffer) MapAsync(cb func(gpudev.MapStatus)) error {
	if !b.usage.Contains(gpudev.BufferUsageMapRead) {
		return errors.Errorf("mock: buffer %s not created with MapRead", b.label)
	}
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	b.dev.pending = append(b.dev.pending, pendingMap{buf: b, cb: cb})
	return nil
}

func (b *mockBuffer) MappedRange() ([]byte, error) {
	if !b.mapped {
		return nil, errors.Errorf("mock: buffer %s not mapped", b.label)
	}
	return b.data, nil
}

func (b *mockBuffer) Unmap() error {
	b.mapped = false
	return nil
}

func (b *mockBuffer) Destroy() { b.destroyed = true }

type mockEncoder struct {
	dev *mockDevice
	ops []func()
}

func (e *mockEncoder) BeginComputePass(label string) gpudev.ComputePassEncoder {
	return &mockPass{enc: e}
}

func (e *mockEncoder) CopyBufferToBuffer(src, dst gpudev.Buffer, srcOffset, dstOffset, size uint64) {
	s, d := src.(*mockBuffer), dst.(*mockBuffer)
	e.ops = append(e.ops, func() {
		copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	})
}

func (e *mockEncoder) Finish() (gpudev.CommandBuffer, error) {
	return &mockCommandBuffer{ops: e.ops}, nil
}

type mockPass struct {
	enc      *mockEncoder
	pipeline *mockPipeline
	bind     *mockBindGroup
}

func (p *mockPass) SetPipeline(cp gpudev.ComputePipeline) { p.pipeline = cp.(*mockPipeline) }
func (p *mockPass) SetBindGroup(_ uint32, g gpudev.BindGroup) {
	p.bind = g.(*mockBindGroup)
}

func (p *mockPass) Dispatch(x, y, z uint32) {
	fn, ok := p.enc.dev.adapter.kernels[p.pipeline.entry]
	if !ok {
		panic(fmt.Sprintf("mock: dispatch of unregistered entry point %q", p.pipeline.entry))
	}
	bindings := p.bind.bindings
	p.enc.ops = append(p.enc.ops, func() {
		fn([3]uint32{x, y, z}, bindings)
	})
}

func (p *mockPass) End() {}

type mockCommandBuffer struct{ ops []func() }

func (c *mockCommandBuffer) Destroy() { c.ops = nil }

type mockModule struct{ source string }

func (m *mockModule) Destroy() {}

type mockPipeline struct{ entry string }

func (p *mockPipeline) Destroy() {}

type mockBindGroup struct{ bindings map[uint32][]byte }

func (g *mockBindGroup) Destroy() {}

type mockResource struct{}

func (r *mockResource) Destroy() {}

// newMockWorkgroup opens every adapter through DevicesFrom and wraps the
// result in a Workgroup.
func newMockWorkgroup(adapters ...*mockAdapter) (*Workgroup, error) {
	devices := DevicesFrom(&mockEnumerator{adapters: adapters}, ^gpudev.Features(0), 0)
	return NewWorkgroup(devices)
}
