package wisc

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/amirreiter/wisc/backend"
	"github.com/amirreiter/wisc/gpudev"
)

// Device is one opened compute-capable hardware session: the adapter's
// identity and limits plus the logical device and queue opened on it.
// Every Device returned by enumeration supports compute dispatch.
//
// Devices are owned by the Workgroup they are handed to; a Device never
// given to a Workgroup must be released with Release.
type Device struct {
	label    string
	info     gpudev.AdapterInfo
	limits   gpudev.Limits
	features gpudev.Features
	handle   gpudev.Device
	queue    gpudev.Queue

	// weight is the raw compute-power estimate; Workgroup normalizes it.
	weight float64

	holder *instanceHolder
}

// Label returns the device's stable label.
func (d *Device) Label() string { return d.label }

// Info returns the adapter identity the device was opened on.
func (d *Device) Info() gpudev.AdapterInfo { return d.info }

// Limits returns the device's resource limits.
func (d *Device) Limits() gpudev.Limits { return d.limits }

// Features returns the optional capabilities granted at open time.
func (d *Device) Features() gpudev.Features { return d.features }

// String returns a human-readable description.
func (d *Device) String() string {
	return fmt.Sprintf("%s [%s]", d.label, d.info)
}

// Release destroys the logical device and drops its share of the backend
// instance. Idempotent.
func (d *Device) Release() {
	if d.handle != nil {
		d.handle.Destroy()
		d.handle = nil
	}
	if d.holder != nil {
		d.holder.release()
		d.holder = nil
	}
}

// instanceHolder keeps the backend enumerator (and with it the runtime
// instance) alive until every device opened from it is released.
type instanceHolder struct {
	mu        sync.Mutex
	enum      gpudev.Enumerator
	remaining int
}

func (h *instanceHolder) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remaining--
	if h.remaining == 0 && h.enum != nil {
		h.enum.Destroy()
		h.enum = nil
	}
}

// Devices enumerates every usable compute device through the default
// registered backend. Adapters without compute support are dropped;
// adapters exposing the same physical chip through several driver layers
// collapse to one by backend priority; adapters whose logical device
// fails to open are silently excluded. The result may be empty, never an
// error.
//
// Each surviving device is opened with the intersection of the adapter's
// optional capabilities and requested, unioned with required.
func Devices(requested, required gpudev.Features) []*Device {
	e, err := backend.Default()
	if err != nil {
		logger().Warn("wisc: no device backend available", "error", err)
		return nil
	}
	return DevicesFrom(e, requested, required)
}

// DevicesFrom is Devices against an explicit enumerator. Ownership of the
// enumerator transfers in; it is destroyed once every returned device is
// released (immediately when none survive).
func DevicesFrom(e gpudev.Enumerator, requested, required gpudev.Features) []*Device {
	adapters := e.Enumerate()

	// Group compute-capable adapters by physical identity.
	type physKey struct{ vendor, device uint32 }
	groups := make(map[physKey][]gpudev.Adapter)
	order := make([]physKey, 0, len(adapters))
	for _, a := range adapters {
		if !a.SupportsCompute() {
			logger().Debug("wisc: adapter lacks compute support", "adapter", a.Info().Name)
			continue
		}
		info := a.Info()
		key := physKey{info.VendorID, info.DeviceID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	devices := make([]*Device, 0, len(order))
	for _, key := range order {
		group := groups[key]
		// One adapter per physical chip, by fixed backend preference.
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Info().Backend.Priority() < group[j].Info().Backend.Priority()
		})
		a := group[0]
		info := a.Info()

		features := a.Features().Intersection(requested).Union(required)
		handle, err := a.Open(features)
		if err != nil {
			logger().Warn("wisc: excluding adapter, device open failed",
				"adapter", info.Name, "error", err)
			continue
		}

		limits := a.Limits()
		devices = append(devices, &Device{
			label:    fmt.Sprintf("wisc-%04x-%04x", info.VendorID, info.DeviceID),
			info:     info,
			limits:   limits,
			features: handle.Features(),
			handle:   handle,
			queue:    handle.Queue(),
			weight:   estimateWeight(info, limits),
		})
		logger().Info("wisc: device opened", "adapter", info.Name, "backend", info.Backend)
	}

	if len(devices) == 0 {
		e.Destroy()
		return nil
	}

	holder := &instanceHolder{enum: e, remaining: len(devices)}
	for _, d := range devices {
		d.holder = holder
	}
	return devices
}

// BestDevice returns a single compute device chosen by a raw
// power-preference hint, through the default registered backend.
func BestDevice(requested, required gpudev.Features) (*Device, bool) {
	e, err := backend.Default()
	if err != nil {
		logger().Warn("wisc: no device backend available", "error", err)
		return nil, false
	}
	return BestDeviceFrom(e, requested, required)
}

// BestDeviceFrom is BestDevice against an explicit enumerator. Ownership
// of the enumerator transfers in.
func BestDeviceFrom(e gpudev.Enumerator, requested, required gpudev.Features) (*Device, bool) {
	a, ok := e.Best()
	if !ok || !a.SupportsCompute() {
		e.Destroy()
		return nil, false
	}
	info := a.Info()

	features := a.Features().Intersection(requested).Union(required)
	handle, err := a.Open(features)
	if err != nil {
		logger().Warn("wisc: best adapter failed to open", "adapter", info.Name, "error", err)
		e.Destroy()
		return nil, false
	}

	limits := a.Limits()
	return &Device{
		label:    fmt.Sprintf("wisc-%04x-%04x", info.VendorID, info.DeviceID),
		info:     info,
		limits:   limits,
		features: handle.Features(),
		handle:   handle,
		queue:    handle.Queue(),
		weight:   estimateWeight(info, limits),
		holder:   &instanceHolder{enum: e, remaining: 1},
	}, true
}

// estimateWeight derives a raw relative compute-power estimate from the
// device's limits and class: workgroup invocation limit, scaled by a
// log2 proxy of addressable memory (flat for CPU-backed adapters) and a
// class multiplier ranking discrete over integrated over virtual.
//
// The estimate is crude; it is exposed for inspection and steers no
// work-distribution decision.
func estimateWeight(info gpudev.AdapterInfo, limits gpudev.Limits) float64 {
	base := float64(limits.MaxComputeInvocationsPerWorkgroup)

	memScale := 1.0
	if info.DeviceType != gpudev.DeviceTypeCPU {
		const mib = 1 << 20
		if limits.MaxBufferSize > 0 {
			memScale = math.Max(1, math.Log2(float64(limits.MaxBufferSize)/mib))
		}
	}

	var classMult float64
	switch info.DeviceType {
	case gpudev.DeviceTypeDiscreteGPU:
		classMult = 10
	case gpudev.DeviceTypeIntegratedGPU:
		classMult = 3
	case gpudev.DeviceTypeVirtualGPU:
		classMult = 2
	default:
		classMult = 1
	}

	return base * memScale * classMult
}
