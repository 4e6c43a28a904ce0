package gpudev

import "fmt"

// DeviceType classifies the hardware behind an adapter.
type DeviceType int

const (
	// DeviceTypeOther is an unclassified adapter.
	DeviceTypeOther DeviceType = iota
	// DeviceTypeIntegratedGPU shares memory with the host CPU.
	DeviceTypeIntegratedGPU
	// DeviceTypeDiscreteGPU has its own dedicated memory.
	DeviceTypeDiscreteGPU
	// DeviceTypeVirtualGPU is a virtualized or software-emulated GPU.
	DeviceTypeVirtualGPU
	// DeviceTypeCPU is a CPU-backed compute adapter.
	DeviceTypeCPU
)

// String returns the string representation of DeviceType.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeOther:
		return "Other"
	case DeviceTypeIntegratedGPU:
		return "IntegratedGPU"
	case DeviceTypeDiscreteGPU:
		return "DiscreteGPU"
	case DeviceTypeVirtualGPU:
		return "VirtualGPU"
	case DeviceTypeCPU:
		return "CPU"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Backend identifies the driver API an adapter is exposed through.
//
// One physical chip may be visible through several backends at once
// (e.g. Vulkan and GL on Linux); enumeration collapses such duplicates
// using the priority returned by Backend.Priority.
type Backend int

const (
	// BackendOther is an unrecognized driver layer.
	BackendOther Backend = iota
	// BackendVulkan is the Vulkan API.
	BackendVulkan
	// BackendDX12 is Direct3D 12.
	BackendDX12
	// BackendMetal is Apple Metal.
	BackendMetal
	// BackendGL is OpenGL / GLES.
	BackendGL
	// BackendNoop is the no-op testing backend.
	BackendNoop
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	switch b {
	case BackendVulkan:
		return "Vulkan"
	case BackendDX12:
		return "DX12"
	case BackendMetal:
		return "Metal"
	case BackendGL:
		return "GL"
	case BackendNoop:
		return "Noop"
	default:
		return "Other"
	}
}

// Priority returns the dedup rank of the backend; lower wins when the
// same physical adapter is visible through several driver layers.
func (b Backend) Priority() int {
	switch b {
	case BackendVulkan:
		return 0
	case BackendDX12:
		return 1
	case BackendMetal:
		return 2
	case BackendGL:
		return 4
	default:
		return 5
	}
}

// Features is a bitmask of optional device capabilities.
type Features uint64

const (
	// FeatureMappablePrimaryBuffers allows storage buffers to be mapped
	// host-visible directly, removing the need for a dedicated readback
	// buffer and copy-back step.
	FeatureMappablePrimaryBuffers Features = 1 << iota
)

// Contains reports whether all bits of other are set in f.
func (f Features) Contains(other Features) bool {
	return f&other == other
}

// Union returns the features present in either set.
func (f Features) Union(other Features) Features { return f | other }

// Intersection returns the features present in both sets.
func (f Features) Intersection(other Features) Features { return f & other }

// AdapterInfo identifies an adapter before a logical device is opened.
type AdapterInfo struct {
	// Name is the human-readable adapter name.
	Name string
	// VendorID is the PCI vendor identifier.
	VendorID uint32
	// DeviceID is the vendor-assigned device identifier.
	DeviceID uint32
	// DeviceType classifies the hardware.
	DeviceType DeviceType
	// Backend is the driver layer the adapter is exposed through.
	Backend Backend
	// Driver is an optional driver version string.
	Driver string
}

// String returns a human-readable description of the adapter.
func (i AdapterInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Name, i.DeviceType, i.Backend)
}

// Limits holds the resource limits relevant to compute dispatch.
type Limits struct {
	// MaxComputeInvocationsPerWorkgroup is the maximum total invocations
	// in one workgroup.
	MaxComputeInvocationsPerWorkgroup uint32
	// MaxComputeWorkgroupsPerDimension is the maximum workgroups per
	// dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32
	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64
	// MaxStorageBufferBindingSize is the maximum storage binding size in bytes.
	MaxStorageBufferBindingSize uint64
}

// BufferUsage is a bitmask describing how a device buffer may be used.
type BufferUsage uint32

const (
	// BufferUsageMapRead allows host-visible read mapping.
	BufferUsageMapRead BufferUsage = 1 << iota
	// BufferUsageCopySrc allows the buffer as a copy source.
	BufferUsageCopySrc
	// BufferUsageCopyDst allows the buffer as a copy destination.
	BufferUsageCopyDst
	// BufferUsageStorage allows binding as a storage buffer.
	BufferUsageStorage
)

// Contains reports whether all bits of other are set in u.
func (u BufferUsage) Contains(other BufferUsage) bool {
	return u&other == other
}

// MapStatus is the result of an asynchronous map request.
type MapStatus int

const (
	// MapStatusSuccess indicates the buffer is mapped and readable.
	MapStatusSuccess MapStatus = iota
	// MapStatusError indicates mapping failed.
	MapStatusError
	// MapStatusDestroyed indicates the buffer was destroyed before the
	// mapping completed.
	MapStatusDestroyed
)

// String returns the string representation of MapStatus.
func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "Success"
	case MapStatusError:
		return "Error"
	case MapStatusDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}
