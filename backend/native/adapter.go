package native

import (
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/amirreiter/wisc/gpudev"
)

// fenceTimeout bounds one device idle wait.
const fenceTimeout = 10_000_000_000 // 10s in nanoseconds

// adapter implements gpudev.Adapter over one hal.ExposedAdapter.
type adapter struct {
	exposed hal.ExposedAdapter
	backend gpudev.Backend
	limits  gputypes.Limits
}

func newAdapter(exposed hal.ExposedAdapter, backend gpudev.Backend) *adapter {
	return &adapter{
		exposed: exposed,
		backend: backend,
		limits:  gputypes.DefaultLimits(),
	}
}

// Info returns the adapter's identity.
func (a *adapter) Info() gpudev.AdapterInfo {
	info := a.exposed.Info
	return gpudev.AdapterInfo{
		Name:       info.Name,
		VendorID:   info.VendorID,
		DeviceID:   info.DeviceID,
		DeviceType: convertDeviceType(info.DeviceType),
		Backend:    a.backend,
		Driver:     info.Driver,
	}
}

// Limits returns the adapter's resource limits.
func (a *adapter) Limits() gpudev.Limits {
	return gpudev.Limits{
		MaxComputeInvocationsPerWorkgroup: a.limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupsPerDimension:  a.limits.MaxComputeWorkgroupsPerDimension,
		MaxBufferSize:                     a.limits.MaxBufferSize,
		MaxStorageBufferBindingSize:       uint64(a.limits.MaxStorageBufferBindingSize),
	}
}

// Features returns the optional capabilities the adapter can grant.
// The hal layer does not surface mappable primary buffers, so no optional
// features are available; readback always goes through a staging buffer.
func (a *adapter) Features() gpudev.Features {
	return 0
}

// SupportsCompute reports whether the adapter can execute compute dispatches.
func (a *adapter) SupportsCompute() bool {
	return a.limits.MaxComputeInvocationsPerWorkgroup > 0
}

// Open creates a logical device granting the requested feature set.
func (a *adapter) Open(features gpudev.Features) (gpudev.Device, error) {
	openDev, err := a.exposed.Adapter.Open(0, a.limits)
	if err != nil {
		return nil, errors.Wrapf(err, "open device on %q", a.exposed.Info.Name)
	}

	d := &device{
		halDevice: openDev.Device,
		features:  features & a.Features(),
	}
	d.queue = &queue{device: d, halQueue: openDev.Queue}
	return d, nil
}

// convertDeviceType maps gputypes device classes onto gpudev's.
func convertDeviceType(t gputypes.DeviceType) gpudev.DeviceType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpudev.DeviceTypeDiscreteGPU
	case gputypes.DeviceTypeIntegratedGPU:
		return gpudev.DeviceTypeIntegratedGPU
	case gputypes.DeviceTypeVirtualGPU:
		return gpudev.DeviceTypeVirtualGPU
	case gputypes.DeviceTypeCPU:
		return gpudev.DeviceTypeCPU
	default:
		return gpudev.DeviceTypeOther
	}
}

// device implements gpudev.Device over hal.Device.
type device struct {
	mu sync.Mutex

	halDevice hal.Device
	queue     *queue
	features  gpudev.Features

	// pending holds buffers with outstanding map requests; their
	// completions are delivered while the device is driven to idle.
	pending []*buffer

	destroyed bool
}

// Features returns the capabilities granted at open time.
func (d *device) Features() gpudev.Features { return d.features }

// Queue returns the device's submission queue.
func (d *device) Queue() gpudev.Queue { return d.queue }

// CreateShaderModule compiles kernel source into a hal shader module.
func (d *device) CreateShaderModule(desc *gpudev.ShaderModuleDescriptor) (gpudev.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	source, err := compileShaderSource(desc.WGSL)
	if err != nil {
		return nil, errors.Wrapf(err, "compile shader %q", desc.Label)
	}

	module, err := d.halDevice.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: source,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create shader module %q", desc.Label)
	}
	return &shaderModule{device: d, module: module}, nil
}

// CreateBuffer allocates a device buffer, pre-initialized from desc.Contents
// when given.
func (d *device) CreateBuffer(desc *gpudev.BufferDescriptor) (gpudev.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	size := desc.Size
	usage := desc.Usage
	if desc.Contents != nil {
		size = uint64(len(desc.Contents))
		// Initialization goes through the queue, which needs a copy
		// destination.
		usage |= gpudev.BufferUsageCopyDst
	}

	// Copy operations require 4-byte aligned sizes.
	const copyAlignment = 4
	alignedSize := (size + copyAlignment - 1) &^ (copyAlignment - 1)
	if alignedSize == 0 {
		alignedSize = copyAlignment
	}

	halBuffer, err := d.halDevice.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignedSize,
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer %q (%d bytes)", desc.Label, alignedSize)
	}

	if len(desc.Contents) > 0 {
		d.queue.halQueue.WriteBuffer(halBuffer, 0, desc.Contents)
	}

	return &buffer{
		halBuffer: halBuffer,
		device:    d,
		size:      alignedSize,
		usage:     usage,
	}, nil
}

// CreateBindGroupLayout describes the shape of a binding set.
func (d *device) CreateBindGroupLayout(desc *gpudev.BindGroupLayoutDescriptor) (gpudev.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		bindingType := gputypes.BufferBindingTypeStorage
		if e.ReadOnly {
			bindingType = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType},
		}
	}

	layout, err := d.halDevice.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create bind group layout %q", desc.Label)
	}
	return &bindGroupLayout{device: d, layout: layout}, nil
}

// CreatePipelineLayout combines bind group layouts.
func (d *device) CreatePipelineLayout(desc *gpudev.PipelineLayoutDescriptor) (gpudev.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	halLayouts := make([]hal.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, l := range desc.BindGroupLayouts {
		bgl, ok := l.(*bindGroupLayout)
		if !ok {
			return nil, errors.Errorf("pipeline layout %q: foreign bind group layout", desc.Label)
		}
		halLayouts[i] = bgl.layout
	}

	layout, err := d.halDevice.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create pipeline layout %q", desc.Label)
	}
	return &pipelineLayout{device: d, layout: layout}, nil
}

// CreateComputePipeline builds a compute pipeline.
func (d *device) CreateComputePipeline(desc *gpudev.ComputePipelineDescriptor) (gpudev.ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok {
		return nil, errors.Errorf("compute pipeline %q: foreign pipeline layout", desc.Label)
	}
	module, ok := desc.Module.(*shaderModule)
	if !ok {
		return nil, errors.Errorf("compute pipeline %q: foreign shader module", desc.Label)
	}

	pipeline, err := d.halDevice.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.layout,
		Compute: hal.ComputeState{
			Module:     module.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create compute pipeline %q (entry %q)", desc.Label, desc.EntryPoint)
	}
	return &computePipeline{device: d, pipeline: pipeline}, nil
}

// CreateBindGroup binds concrete buffers to a layout.
func (d *device) CreateBindGroup(desc *gpudev.BindGroupDescriptor) (gpudev.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	layout, ok := desc.Layout.(*bindGroupLayout)
	if !ok {
		return nil, errors.Errorf("bind group %q: foreign layout", desc.Label)
	}

	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		buf, ok := e.Buffer.(*buffer)
		if !ok {
			return nil, errors.Errorf("bind group %q: foreign buffer at binding %d", desc.Label, e.Binding)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding: e.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.halBuffer.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	group, err := d.halDevice.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create bind group %q", desc.Label)
	}
	return &bindGroup{device: d, group: group}, nil
}

// CreateCommandEncoder starts recording a command sequence.
func (d *device) CreateCommandEncoder(label string) (gpudev.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, ErrDeviceDestroyed
	}

	enc, err := d.halDevice.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrapf(err, "create command encoder %q", label)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, errors.Wrapf(err, "begin encoding %q", label)
	}
	return &commandEncoder{device: d, encoder: enc}, nil
}

// WaitIdle blocks until all submitted work completes, then delivers any
// pending map completions. The fence roundtrip is bounded by fenceTimeout.
func (d *device) WaitIdle() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDeviceDestroyed
	}
	halDev := d.halDevice
	halQueue := d.queue.halQueue
	d.mu.Unlock()

	fence, err := halDev.CreateFence()
	if err != nil {
		return errors.Wrap(err, "create idle fence")
	}
	defer halDev.DestroyFence(fence)

	if err := halQueue.Submit(nil, fence, 1); err != nil {
		return errors.Wrap(err, "submit idle fence")
	}

	ok, err := halDev.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return errors.Wrap(err, "wait idle fence")
	}
	if !ok {
		return ErrWaitTimeout
	}

	d.drainPending()
	return nil
}

// registerPending queues a buffer's map request for completion delivery.
func (d *device) registerPending(b *buffer) {
	d.mu.Lock()
	d.pending = append(d.pending, b)
	d.mu.Unlock()
}

// drainPending delivers all outstanding map completions. Callbacks run
// outside the device lock.
func (d *device) drainPending() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, b := range pending {
		b.poll()
	}
}

// destroyHALBuffer releases a hal buffer unless the device is gone.
func (d *device) destroyHALBuffer(halBuf hal.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.halDevice.DestroyBuffer(halBuf)
}

// Destroy releases the logical device. Outstanding map requests fail with
// MapStatusDestroyed.
func (d *device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	pending := d.pending
	d.pending = nil
	halDev := d.halDevice
	d.mu.Unlock()

	for _, b := range pending {
		b.poll()
	}
	halDev.Destroy()
}

// queue implements gpudev.Queue over hal.Queue.
type queue struct {
	device   *device
	halQueue hal.Queue
}

// Submit hands command buffers to the device without waiting.
func (q *queue) Submit(cmds []gpudev.CommandBuffer) error {
	halCmds := make([]hal.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return errors.New("native: foreign command buffer")
		}
		halCmds = append(halCmds, cb.cmd)
	}
	if err := q.halQueue.Submit(halCmds, nil, 0); err != nil {
		return errors.Wrap(err, "queue submit")
	}
	return nil
}

// commandEncoder implements gpudev.CommandEncoder over hal.CommandEncoder.
type commandEncoder struct {
	device  *device
	encoder hal.CommandEncoder
}

// BeginComputePass starts recording compute commands.
func (e *commandEncoder) BeginComputePass(label string) gpudev.ComputePassEncoder {
	pass := e.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return &computePass{pass: pass}
}

// CopyBufferToBuffer appends a device-side copy.
func (e *commandEncoder) CopyBufferToBuffer(src, dst gpudev.Buffer, srcOffset, dstOffset, size uint64) {
	sb, okS := src.(*buffer)
	db, okD := dst.(*buffer)
	if !okS || !okD {
		return
	}
	e.encoder.CopyBufferToBuffer(sb.halBuffer, db.halBuffer, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

// Finish ends recording and returns the submittable command buffer.
func (e *commandEncoder) Finish() (gpudev.CommandBuffer, error) {
	cmd, err := e.encoder.EndEncoding()
	if err != nil {
		return nil, errors.Wrap(err, "end encoding")
	}
	return &commandBuffer{device: e.device, cmd: cmd}, nil
}

// computePass implements gpudev.ComputePassEncoder.
type computePass struct {
	pass hal.ComputePassEncoder
}

func (p *computePass) SetPipeline(pipeline gpudev.ComputePipeline) {
	if cp, ok := pipeline.(*computePipeline); ok {
		p.pass.SetPipeline(cp.pipeline)
	}
}

func (p *computePass) SetBindGroup(index uint32, group gpudev.BindGroup) {
	if bg, ok := group.(*bindGroup); ok {
		p.pass.SetBindGroup(index, bg.group, nil)
	}
}

func (p *computePass) Dispatch(x, y, z uint32) {
	p.pass.Dispatch(x, y, z)
}

func (p *computePass) End() {
	p.pass.End()
}

// Resource wrappers. Each Destroy forwards to the owning hal device.

type commandBuffer struct {
	device *device
	cmd    hal.CommandBuffer
}

func (c *commandBuffer) Destroy() {
	c.device.mu.Lock()
	defer c.device.mu.Unlock()
	if c.device.destroyed || c.cmd == nil {
		return
	}
	c.device.halDevice.FreeCommandBuffer(c.cmd)
	c.cmd = nil
}

type shaderModule struct {
	device *device
	module hal.ShaderModule
}

func (m *shaderModule) Destroy() {
	m.device.mu.Lock()
	defer m.device.mu.Unlock()
	if m.device.destroyed || m.module == nil {
		return
	}
	m.device.halDevice.DestroyShaderModule(m.module)
	m.module = nil
}

type bindGroupLayout struct {
	device *device
	layout hal.BindGroupLayout
}

func (l *bindGroupLayout) Destroy() {
	l.device.mu.Lock()
	defer l.device.mu.Unlock()
	if l.device.destroyed || l.layout == nil {
		return
	}
	l.device.halDevice.DestroyBindGroupLayout(l.layout)
	l.layout = nil
}

type pipelineLayout struct {
	device *device
	layout hal.PipelineLayout
}

func (l *pipelineLayout) Destroy() {
	l.device.mu.Lock()
	defer l.device.mu.Unlock()
	if l.device.destroyed || l.layout == nil {
		return
	}
	l.device.halDevice.DestroyPipelineLayout(l.layout)
	l.layout = nil
}

type computePipeline struct {
	device   *device
	pipeline hal.ComputePipeline
}

func (p *computePipeline) Destroy() {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	if p.device.destroyed || p.pipeline == nil {
		return
	}
	p.device.halDevice.DestroyComputePipeline(p.pipeline)
	p.pipeline = nil
}

type bindGroup struct {
	device *device
	group  hal.BindGroup
}

func (g *bindGroup) Destroy() {
	g.device.mu.Lock()
	defer g.device.mu.Unlock()
	if g.device.destroyed || g.group == nil {
		return
	}
	g.device.halDevice.DestroyBindGroup(g.group)
	g.group = nil
}

// convertBufferUsage maps gpudev usage bits onto gputypes'.
func convertBufferUsage(usage gpudev.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage.Contains(gpudev.BufferUsageMapRead) {
		result |= gputypes.BufferUsageMapRead
	}
	if usage.Contains(gpudev.BufferUsageCopySrc) {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage.Contains(gpudev.BufferUsageCopyDst) {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage.Contains(gpudev.BufferUsageStorage) {
		result |= gputypes.BufferUsageStorage
	}
	return result
}
