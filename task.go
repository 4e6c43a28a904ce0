package wisc

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/amirreiter/wisc/gpudev"
)

// DefaultRunTimeout bounds the wait for device readback completions when
// Run is given no explicit timeout.
const DefaultRunTimeout = 30 * time.Second

// Binding associates a kernel's numbered memory slot with a virtual
// buffer and the partition policy that distributes it to devices.
type Binding struct {
	// ID is the slot number the kernel declares for this buffer.
	ID uint32
	// Handle references the virtual buffer in the session store.
	Handle VirtualBufferHandle
	// Mode distributes the buffer's contents across devices. A nil Mode
	// means PartitionReplicate.
	Mode PartitionMode
}

func (b Binding) mode() PartitionMode {
	if b.Mode == nil {
		return PartitionReplicate
	}
	return b.Mode
}

// TaskBuilder accumulates one dispatch configuration: kernel, 3-D grid,
// and ordered input/output bindings. Build turns it into a ready-to-run
// Task. The zero builder is not usable; start with NewTask.
type TaskBuilder struct {
	wg      *Workgroup
	kernel  *Kernel
	grid    [3]uint32
	gridSet bool
	inputs  []Binding
	outputs []Binding
}

// NewTask starts a dispatch configuration against the session.
func NewTask(wg *Workgroup) *TaskBuilder {
	return &TaskBuilder{wg: wg}
}

// WithKernel sets the kernel module and entry point to dispatch.
func (b *TaskBuilder) WithKernel(k Kernel) *TaskBuilder {
	b.kernel = &k
	return b
}

// WithGrid sets the 3-D invocation grid. Every dimension must be
// positive; a zero dimension is a programming error and panics here
// rather than surfacing as a late build failure.
func (b *TaskBuilder) WithGrid(x, y, z uint32) *TaskBuilder {
	if x == 0 || y == 0 || z == 0 {
		panic(fmt.Sprintf("wisc: dispatch grid dimensions must be positive, got (%d,%d,%d)", x, y, z))
	}
	b.grid = [3]uint32{x, y, z}
	b.gridSet = true
	return b
}

// WithInput appends a read-only binding. Binding order is preserved and
// together with outputs defines the layout's declaration order.
func (b *TaskBuilder) WithInput(id uint32, h VirtualBufferHandle, mode PartitionMode) *TaskBuilder {
	b.inputs = append(b.inputs, Binding{ID: id, Handle: h, Mode: mode})
	return b
}

// WithOutput appends a read-write binding whose device results are
// gathered back into the virtual buffer after Run.
func (b *TaskBuilder) WithOutput(id uint32, h VirtualBufferHandle, mode PartitionMode) *TaskBuilder {
	b.outputs = append(b.outputs, Binding{ID: id, Handle: h, Mode: mode})
	return b
}

// deviceTask holds one device's share of a built Task: its finished
// command sequence and every resource created for it.
type deviceTask struct {
	device *Device

	module     gpudev.ShaderModule
	bindLayout gpudev.BindGroupLayout
	pipeLayout gpudev.PipelineLayout
	pipeline   gpudev.ComputePipeline
	bindGroup  gpudev.BindGroup
	cmd        gpudev.CommandBuffer

	inputs  []gpudev.Buffer
	outputs []gpudev.Buffer
	// readbacks[j] is the buffer mapped to recover output j: the output
	// buffer itself on mappable-primary devices, a staging buffer
	// otherwise. Staging buffers also appear in staging for destruction.
	readbacks []gpudev.Buffer
	staging   []gpudev.Buffer
}

// destroy releases everything the device task owns. Safe on a partially
// built task; nil fields are skipped.
func (dt *deviceTask) destroy() {
	if dt.cmd != nil {
		dt.cmd.Destroy()
	}
	if dt.bindGroup != nil {
		dt.bindGroup.Destroy()
	}
	if dt.pipeline != nil {
		dt.pipeline.Destroy()
	}
	if dt.pipeLayout != nil {
		dt.pipeLayout.Destroy()
	}
	if dt.bindLayout != nil {
		dt.bindLayout.Destroy()
	}
	if dt.module != nil {
		dt.module.Destroy()
	}
	for _, buf := range dt.staging {
		buf.Destroy()
	}
	for _, buf := range dt.outputs {
		buf.Destroy()
	}
	for _, buf := range dt.inputs {
		buf.Destroy()
	}
	*dt = deviceTask{device: dt.device}
}

// taskOutput pairs an output binding with its resolved destination.
type taskOutput struct {
	binding Binding
	vb      *virtualBuffer
}

// Task is one fully prepared dispatch across every device in the
// session: per device, the recorded command sequence plus the readback
// resources needed to recover results. A Task holds the session's
// exclusive borrow from Build until Run returns or Discard is called.
type Task struct {
	wg       *Workgroup
	grid     [3]uint32
	outputs  []taskOutput
	prepared []*deviceTask
	consumed bool
}

// Build assembles the Task: per device, input and output buffers are
// materialized, a pipeline and bind group are created against the
// kernel, and one command sequence is recorded. Any per-device failure
// aborts the whole build; partially created resources are released.
//
// On success the Task holds the session exclusively until Run or
// Discard.
func (b *TaskBuilder) Build() (*Task, error) {
	if b.kernel == nil {
		return nil, ErrNoKernel
	}
	if !b.gridSet {
		return nil, ErrNoGrid
	}

	if err := b.wg.borrow(); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			b.wg.release()
		}
	}()

	devices := b.wg.Devices()
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	// Resolve every bound handle up front; a stale handle is a
	// configuration error, not a fault.
	inputBufs := make([]*virtualBuffer, len(b.inputs))
	for i, bind := range b.inputs {
		vb := b.wg.resolve(bind.Handle)
		if vb == nil {
			return nil, errors.Wrapf(ErrUnknownHandle, "input binding %d", bind.ID)
		}
		inputBufs[i] = vb
	}
	outputs := make([]taskOutput, len(b.outputs))
	for i, bind := range b.outputs {
		vb := b.wg.resolve(bind.Handle)
		if vb == nil {
			return nil, errors.Wrapf(ErrUnknownHandle, "output binding %d", bind.ID)
		}
		outputs[i] = taskOutput{binding: bind, vb: vb}
	}

	task := &Task{wg: b.wg, grid: b.grid, outputs: outputs}
	defer func() {
		if !ok {
			for _, dt := range task.prepared {
				dt.destroy()
			}
		}
	}()

	for i, dev := range devices {
		dt, err := b.buildForDevice(dev, i, len(devices), inputBufs, outputs)
		if err != nil {
			return nil, errors.Wrapf(err, "building task on %s", dev.label)
		}
		task.prepared = append(task.prepared, dt)
	}

	logger().Debug("wisc: task built",
		"workgroup", b.wg.id, "devices", len(task.prepared),
		"inputs", len(b.inputs), "outputs", len(b.outputs),
		"grid", fmt.Sprintf("%dx%dx%d", b.grid[0], b.grid[1], b.grid[2]))

	ok = true
	return task, nil
}

func (b *TaskBuilder) buildForDevice(dev *Device, index, total int, inputBufs []*virtualBuffer, outputs []taskOutput) (*deviceTask, error) {
	dt := &deviceTask{device: dev}
	ok := false
	defer func() {
		if !ok {
			dt.destroy()
		}
	}()

	mappable := dev.features.Contains(gpudev.FeatureMappablePrimaryBuffers)

	for i, bind := range b.inputs {
		contents := bind.mode().Slice(inputBufs[i].raw, index, total)
		buf, err := dev.handle.CreateBuffer(&gpudev.BufferDescriptor{
			Label:    fmt.Sprintf("%s/in%d", dev.label, bind.ID),
			Usage:    gpudev.BufferUsageStorage,
			Contents: contents,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "input buffer %d", bind.ID)
		}
		dt.inputs = append(dt.inputs, buf)
	}

	for _, out := range outputs {
		size := uint64(out.vb.byteLen())
		usage := gpudev.BufferUsageStorage | gpudev.BufferUsageCopySrc
		if mappable {
			usage = gpudev.BufferUsageStorage | gpudev.BufferUsageMapRead
		}
		buf, err := dev.handle.CreateBuffer(&gpudev.BufferDescriptor{
			Label: fmt.Sprintf("%s/out%d", dev.label, out.binding.ID),
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "output buffer %d", out.binding.ID)
		}
		dt.outputs = append(dt.outputs, buf)

		if mappable {
			dt.readbacks = append(dt.readbacks, buf)
			continue
		}
		stage, err := dev.handle.CreateBuffer(&gpudev.BufferDescriptor{
			Label: fmt.Sprintf("%s/stage%d", dev.label, out.binding.ID),
			Size:  size,
			Usage: gpudev.BufferUsageMapRead | gpudev.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "staging buffer %d", out.binding.ID)
		}
		dt.staging = append(dt.staging, stage)
		dt.readbacks = append(dt.readbacks, stage)
	}

	// Layout declares inputs then outputs, in binding order.
	layoutEntries := make([]gpudev.BindGroupLayoutEntry, 0, len(b.inputs)+len(outputs))
	groupEntries := make([]gpudev.BindGroupEntry, 0, len(b.inputs)+len(outputs))
	for i, bind := range b.inputs {
		layoutEntries = append(layoutEntries, gpudev.BindGroupLayoutEntry{Binding: bind.ID, ReadOnly: true})
		groupEntries = append(groupEntries, gpudev.BindGroupEntry{Binding: bind.ID, Buffer: dt.inputs[i]})
	}
	for i, out := range outputs {
		layoutEntries = append(layoutEntries, gpudev.BindGroupLayoutEntry{Binding: out.binding.ID})
		groupEntries = append(groupEntries, gpudev.BindGroupEntry{Binding: out.binding.ID, Buffer: dt.outputs[i]})
	}

	var err error
	dt.bindLayout, err = dev.handle.CreateBindGroupLayout(&gpudev.BindGroupLayoutDescriptor{
		Label:   dev.label + "/layout",
		Entries: layoutEntries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bind group layout")
	}
	dt.pipeLayout, err = dev.handle.CreatePipelineLayout(&gpudev.PipelineLayoutDescriptor{
		Label:            dev.label + "/pipeline-layout",
		BindGroupLayouts: []gpudev.BindGroupLayout{dt.bindLayout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "pipeline layout")
	}

	dt.module, err = dev.handle.CreateShaderModule(&gpudev.ShaderModuleDescriptor{
		Label: b.kernel.Label,
		WGSL:  b.kernel.Source,
	})
	if err != nil {
		return nil, errors.Wrap(err, "shader module")
	}
	dt.pipeline, err = dev.handle.CreateComputePipeline(&gpudev.ComputePipelineDescriptor{
		Label:      dev.label + "/pipeline",
		Layout:     dt.pipeLayout,
		Module:     dt.module,
		EntryPoint: b.kernel.EntryPoint,
	})
	if err != nil {
		return nil, errors.Wrap(err, "compute pipeline")
	}
	dt.bindGroup, err = dev.handle.CreateBindGroup(&gpudev.BindGroupDescriptor{
		Label:   dev.label + "/bindings",
		Layout:  dt.bindLayout,
		Entries: groupEntries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bind group")
	}

	encoder, err := dev.handle.CreateCommandEncoder(dev.label + "/commands")
	if err != nil {
		return nil, errors.Wrap(err, "command encoder")
	}
	pass := encoder.BeginComputePass(dev.label + "/pass")
	pass.SetPipeline(dt.pipeline)
	pass.SetBindGroup(0, dt.bindGroup)
	pass.Dispatch(b.grid[0], b.grid[1], b.grid[2])
	pass.End()
	if !mappable {
		for i, out := range dt.outputs {
			encoder.CopyBufferToBuffer(out, dt.staging[i], 0, 0, out.Size())
		}
	}
	dt.cmd, err = encoder.Finish()
	if err != nil {
		return nil, errors.Wrap(err, "finishing command buffer")
	}

	ok = true
	return dt, nil
}

// RunOption adjusts a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	timeout time.Duration
}

// WithTimeout bounds the wait for device readback completions. A
// non-positive d waits without bound.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) { c.timeout = d }
}

// mapResult is one readback completion notification.
type mapResult struct {
	device int
	output int
	status gpudev.MapStatus
}

// Run submits every device's command sequence, blocks until all devices
// report readback completion, gathers device results into the bound
// output buffers, and releases the Task's resources and its session
// borrow. Run consumes the Task; a second call fails with
// ErrTaskConsumed.
//
// With replicated outputs every device produces the full result; the
// surviving value is whichever device's gather runs last. The wait is
// bounded by DefaultRunTimeout unless overridden with WithTimeout.
func (t *Task) Run(opts ...RunOption) error {
	if t.consumed {
		return ErrTaskConsumed
	}
	t.consumed = true
	defer func() {
		for _, dt := range t.prepared {
			dt.destroy()
		}
		t.wg.release()
	}()

	cfg := runConfig{timeout: DefaultRunTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	expected := len(t.prepared) * len(t.outputs)
	results := make(chan mapResult, expected)

	// Submit everything, then request every readback mapping. Devices
	// progress independently from here; nothing below imposes an order
	// across them.
	for di, dt := range t.prepared {
		if err := dt.device.queue.Submit([]gpudev.CommandBuffer{dt.cmd}); err != nil {
			return errors.Wrapf(err, "submitting to %s", dt.device.label)
		}
		for oi, rb := range dt.readbacks {
			err := rb.MapAsync(func(status gpudev.MapStatus) {
				results <- mapResult{device: di, output: oi, status: status}
			})
			if err != nil {
				return errors.Wrapf(err, "mapping readback %d on %s",
					t.outputs[oi].binding.ID, dt.device.label)
			}
		}
	}

	// Drive every device to completion, one wait per device. WaitIdle
	// also delivers pending map callbacks on backends that batch them.
	var idle sync.WaitGroup
	waitErrs := make([]error, len(t.prepared))
	for di, dt := range t.prepared {
		idle.Add(1)
		go func() {
			defer idle.Done()
			if err := dt.device.handle.WaitIdle(); err != nil {
				waitErrs[di] = errors.Wrapf(err, "waiting for %s", dt.device.label)
			}
		}()
	}
	idle.Wait()
	for _, err := range waitErrs {
		if err != nil {
			return err
		}
	}

	// Join the N*M independent completions into one barrier.
	var deadline <-chan time.Time
	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for received := 0; received < expected; received++ {
		select {
		case r := <-results:
			if r.status != gpudev.MapStatusSuccess {
				dt := t.prepared[r.device]
				return errors.Errorf("wisc: readback %d on %s failed: %s",
					t.outputs[r.output].binding.ID, dt.device.label, r.status)
			}
		case <-deadline:
			logger().Warn("wisc: readback wait timed out",
				"workgroup", t.wg.id, "received", received, "expected", expected)
			return ErrRunTimeout
		}
	}

	// Gather: device results land in the destination virtual buffers,
	// clamped to the smaller of the two lengths. Replicated outputs are
	// identical per device, so overwrite order does not matter.
	for _, dt := range t.prepared {
		for oi, rb := range dt.readbacks {
			data, err := rb.MappedRange()
			if err != nil {
				return errors.Wrapf(err, "reading output %d on %s",
					t.outputs[oi].binding.ID, dt.device.label)
			}
			cur := byteCursor{dst: t.outputs[oi].vb.raw}
			if len(data) > cur.remaining() {
				data = data[:cur.remaining()]
			}
			if err := cur.write(data); err != nil {
				return errors.Wrapf(err, "gathering output %d", t.outputs[oi].binding.ID)
			}
			if err := rb.Unmap(); err != nil {
				return errors.Wrapf(err, "unmapping output %d on %s",
					t.outputs[oi].binding.ID, dt.device.label)
			}
		}
	}

	logger().Debug("wisc: task finished", "workgroup", t.wg.id, "devices", len(t.prepared))
	return nil
}

// Discard releases an unused Task's resources and its session borrow
// without running it. Idempotent; discarding after Run is a no-op.
func (t *Task) Discard() {
	if t.consumed {
		return
	}
	t.consumed = true
	for _, dt := range t.prepared {
		dt.destroy()
	}
	t.wg.release()
}
