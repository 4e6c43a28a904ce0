// Package wisc dispatches one compute kernel across every usable local
// compute device through a single blocking API.
//
// # Overview
//
// wisc discovers the machine's compute-capable adapters (discrete,
// integrated and virtual GPUs, CPU-backed adapters), deduplicates chips
// that are visible through several driver layers, and opens one logical
// device per chip. A Workgroup owns the opened devices together with a
// store of host-side virtual buffers; a Task compiles one kernel
// dispatch into an independent command sequence per device, runs them
// all, and gathers every device's results back into the bound output
// buffers.
//
// # Quick Start
//
//	import (
//		"github.com/amirreiter/wisc"
//		_ "github.com/amirreiter/wisc/backend/native"
//	)
//
//	wg, err := wisc.OpenWorkgroup(0, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer wg.Close()
//
//	in, _ := wisc.CreateBuffer(wg, []int32{2, 2, 2, 2})
//	out, _ := wisc.CreateBuffer(wg, make([]int32, 4))
//
//	task, err := wisc.NewTask(wg).
//		WithKernel(wisc.Kernel{Source: shaderWGSL, EntryPoint: "main"}).
//		WithGrid(1, 1, 1).
//		WithInput(0, in, nil).
//		WithOutput(1, out, nil).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := task.Run(); err != nil {
//		log.Fatal(err)
//	}
//
//	result, _ := wisc.TakeBuffer[int32](wg, out)
//
// # Architecture
//
// The package is organized into:
//   - Public API: Device, Workgroup, TaskBuilder, Task, Kernel, PartitionMode
//   - gpudev: the backend-neutral device abstraction the core is written against
//   - backend: the runtime backend registry
//   - backend/native: the WebGPU HAL implementation of gpudev
//
// Every buffer binding carries a partition policy. Only replication
// exists today: each device receives the full input and computes the
// full result, so the gathered output is that of whichever device is
// read last.
package wisc
