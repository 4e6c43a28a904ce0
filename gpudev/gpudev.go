package gpudev

// Enumerator discovers the adapters a runtime backend exposes.
//
// Implementations are registered with the backend registry and constructed
// once per enumeration call. Destroy releases the underlying instance;
// adapters obtained from a destroyed enumerator must not be opened.
type Enumerator interface {
	// Enumerate returns every visible adapter, including ones that do not
	// support compute dispatch. Filtering is the caller's concern.
	Enumerate() []Adapter

	// Best returns a single adapter chosen by a raw high-performance
	// power-preference hint, or false if none is available.
	Best() (Adapter, bool)

	// Destroy releases the enumerator's instance resources.
	Destroy()
}

// Adapter is a discovered compute unit before a logical device is opened.
type Adapter interface {
	// Info returns the adapter's identity.
	Info() AdapterInfo

	// Limits returns the adapter's resource limits.
	Limits() Limits

	// Features returns the optional capabilities the adapter can grant.
	Features() Features

	// SupportsCompute reports whether the adapter can execute compute
	// dispatches at all.
	SupportsCompute() bool

	// Open creates a logical device granting exactly the requested
	// feature set. Opening may fail for reasons outside the caller's
	// control (driver state, exhausted sessions); such adapters are
	// skipped, not fatal.
	Open(features Features) (Device, error)
}

// Device is one opened logical device with its submission queue.
//
// Resources created from a Device are owned by the caller and must be
// destroyed explicitly. Destroying the Device invalidates all of them.
type Device interface {
	// Features returns the capabilities granted at open time.
	Features() Features

	// CreateShaderModule compiles an opaque kernel module descriptor.
	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error)

	// CreateBuffer allocates a device buffer. If desc.Contents is
	// non-nil the buffer is initialized from those bytes and desc.Size
	// is ignored.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// CreateBindGroupLayout describes the shape of a binding set.
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)

	// CreatePipelineLayout combines bind group layouts.
	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)

	// CreateComputePipeline builds a compute pipeline from a module,
	// entry point and layout.
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)

	// CreateBindGroup binds concrete buffers to a layout.
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)

	// CreateCommandEncoder starts recording a command sequence.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Queue returns the device's submission queue.
	Queue() Queue

	// WaitIdle blocks until all submitted work has completed on this
	// device. Pending map completions may be delivered during the wait.
	WaitIdle() error

	// Destroy releases the logical device and everything created from it.
	Destroy()
}

// Queue accepts finished command buffers for execution.
type Queue interface {
	// Submit hands command buffers to the device without waiting.
	Submit(cmds []CommandBuffer) error
}

// Buffer is a device-owned allocation.
//
// Readback follows the wgpu model: MapAsync requests a host-visible
// mapping and the completion callback fires at an unspecified later time,
// typically while the device is driven by WaitIdle. After a successful
// callback the bytes are available through MappedRange until Unmap.
type Buffer interface {
	// Size returns the buffer length in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// MapAsync requests a read mapping of the whole buffer. The callback
	// is invoked exactly once. The buffer must carry BufferUsageMapRead.
	MapAsync(callback func(MapStatus)) error

	// MappedRange returns the mapped bytes. Only valid between a
	// successful MapAsync completion and Unmap.
	MappedRange() ([]byte, error)

	// Unmap releases the host-visible view.
	Unmap() error

	// Destroy releases the buffer.
	Destroy()
}

// CommandEncoder records one command sequence for a single device.
type CommandEncoder interface {
	// BeginComputePass starts recording compute commands.
	BeginComputePass(label string) ComputePassEncoder

	// CopyBufferToBuffer appends a device-side copy of size bytes.
	CopyBufferToBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)

	// Finish ends recording and returns the submittable command buffer.
	Finish() (CommandBuffer, error)
}

// ComputePassEncoder records commands within one compute pass.
// It is single-use; no methods may be called after End.
type ComputePassEncoder interface {
	// SetPipeline selects the active compute pipeline.
	SetPipeline(p ComputePipeline)

	// SetBindGroup attaches a bind group at the given index.
	SetBindGroup(index uint32, g BindGroup)

	// Dispatch launches x*y*z workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the pass.
	End()
}

// CommandBuffer is a finished, submittable command sequence.
type CommandBuffer interface {
	// Destroy releases the command buffer.
	Destroy()
}

// ShaderModule is an opaque compiled kernel module.
type ShaderModule interface {
	Destroy()
}

// BindGroupLayout describes the shape of a binding set.
type BindGroupLayout interface {
	Destroy()
}

// PipelineLayout combines bind group layouts for a pipeline.
type PipelineLayout interface {
	Destroy()
}

// ComputePipeline is a ready-to-bind compute pipeline.
type ComputePipeline interface {
	Destroy()
}

// BindGroup binds concrete buffers to a layout.
type BindGroup interface {
	Destroy()
}

// ShaderModuleDescriptor carries opaque kernel source. The source text is
// never inspected by the orchestration core.
type ShaderModuleDescriptor struct {
	Label string
	// WGSL is the kernel source text.
	WGSL string
}

// BufferDescriptor describes a device buffer to create.
type BufferDescriptor struct {
	Label string
	// Size is the buffer length in bytes. Ignored when Contents is set.
	Size uint64
	// Usage specifies how the buffer will be used.
	Usage BufferUsage
	// Contents optionally pre-initializes the buffer from host bytes.
	Contents []byte
}

// BindGroupLayoutEntry describes one numbered binding slot.
type BindGroupLayoutEntry struct {
	// Binding is the kernel's numbered memory slot.
	Binding uint32
	// ReadOnly marks the slot as a read-only storage binding.
	ReadOnly bool
}

// BindGroupLayoutDescriptor lists a layout's entries in declaration order.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// PipelineLayoutDescriptor lists the bind group layouts of a pipeline.
type PipelineLayoutDescriptor struct {
	Label            string
	BindGroupLayouts []BindGroupLayout
}

// ComputePipelineDescriptor pairs a module and entry point with a layout.
type ComputePipelineDescriptor struct {
	Label      string
	Layout     PipelineLayout
	Module     ShaderModule
	EntryPoint string
}

// BindGroupEntry binds one buffer to one numbered slot.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
}

// BindGroupDescriptor binds buffers against a layout, in the layout's
// declaration order.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}
