package wisc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirreiter/wisc/gpudev"
)

func TestNewWorkgroupEmpty(t *testing.T) {
	_, err := NewWorkgroup(nil)
	assert.ErrorIs(t, err, ErrNoDevices)
}

func TestWorkgroupWeightsNormalized(t *testing.T) {
	cpu := newMockAdapter("cpu", 1, 1, gpudev.DeviceTypeCPU, gpudev.BackendVulkan)
	discrete := newMockAdapter("discrete", 2, 2, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan)
	integrated := newMockAdapter("integrated", 3, 3, gpudev.DeviceTypeIntegratedGPU, gpudev.BackendVulkan)

	wg, err := newMockWorkgroup(cpu, discrete, integrated)
	require.NoError(t, err)
	defer wg.Close()

	devices := wg.Devices()
	weights := wg.Weights()
	require.Len(t, devices, 3)
	require.Len(t, weights, 3)

	// Strongest first.
	assert.Equal(t, "discrete", devices[0].Info().Name)
	assert.Equal(t, "integrated", devices[1].Info().Name)
	assert.Equal(t, "cpu", devices[2].Info().Name)

	var sum float64
	for i, w := range weights {
		sum += w
		if i > 0 {
			assert.LessOrEqual(t, w, weights[i-1])
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCreateAndTakeBuffer(t *testing.T) {
	wg, err := newMockWorkgroup(newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan))
	require.NoError(t, err)
	defer wg.Close()

	data := []int32{1, 2, 3, 4}
	h, err := CreateBuffer(wg, data)
	require.NoError(t, err)
	assert.False(t, h.IsNil())
	assert.Equal(t, 1, wg.BufferCount())

	got, err := TakeBuffer[int32](wg, h)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, got)
	assert.Equal(t, 0, wg.BufferCount())

	// The handle went stale with the take.
	_, err = TakeBuffer[int32](wg, h)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestTakeBufferWrongType(t *testing.T) {
	wg, err := newMockWorkgroup(newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan))
	require.NoError(t, err)
	defer wg.Close()

	h, err := CreateBuffer(wg, []float32{1.5, 2.5})
	require.NoError(t, err)

	_, err = TakeBuffer[int32](wg, h)
	assert.ErrorIs(t, err, ErrBufferType)

	// A failed take leaves the buffer in place.
	got, err := TakeBuffer[float32](wg, h)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 2.5}, got)
}

func TestCreateBufferRejectsNonPOD(t *testing.T) {
	wg, err := newMockWorkgroup(newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan))
	require.NoError(t, err)
	defer wg.Close()

	type record struct {
		Name string
		N    int32
	}
	_, err = CreateBuffer(wg, []record{{Name: "x", N: 1}})
	assert.ErrorIs(t, err, ErrInvalidElementType)

	_, err = CreateBuffer(wg, []int{1, 2})
	assert.ErrorIs(t, err, ErrInvalidElementType)

	// Fixed-layout structs are fine.
	type vec4 struct{ X, Y, Z, W float32 }
	h, err := CreateBuffer(wg, []vec4{{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.False(t, h.IsNil())
}

func TestWorkgroupClose(t *testing.T) {
	a := newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan)
	wg, err := newMockWorkgroup(a)
	require.NoError(t, err)

	h, err := CreateBuffer(wg, []int32{1})
	require.NoError(t, err)

	require.NoError(t, wg.Close())
	require.Len(t, a.opened, 1)
	assert.True(t, a.opened[0].destroyed)

	_, err = TakeBuffer[int32](wg, h)
	assert.ErrorIs(t, err, ErrWorkgroupClosed)
	_, err = CreateBuffer(wg, []int32{2})
	assert.ErrorIs(t, err, ErrWorkgroupClosed)

	// Idempotent.
	assert.NoError(t, wg.Close())
}

func TestWorkgroupBusyDuringBorrow(t *testing.T) {
	a := newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan)
	a.kernels["noop"] = func(_ [3]uint32, _ map[uint32][]byte) {}
	wg, err := newMockWorkgroup(a)
	require.NoError(t, err)
	defer wg.Close()

	task, err := NewTask(wg).
		WithKernel(Kernel{Source: "@compute fn noop() {}", EntryPoint: "noop"}).
		WithGrid(1, 1, 1).
		Build()
	require.NoError(t, err)

	_, err = CreateBuffer(wg, []int32{1})
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.ErrorIs(t, wg.Close(), ErrSessionBusy)

	task.Discard()
	_, err = CreateBuffer(wg, []int32{1})
	assert.NoError(t, err)
}

func TestWorkgroupIDsUnique(t *testing.T) {
	a, err := newMockWorkgroup(newMockAdapter("a", 1, 1, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan))
	require.NoError(t, err)
	defer a.Close()
	b, err := newMockWorkgroup(newMockAdapter("b", 2, 2, gpudev.DeviceTypeDiscreteGPU, gpudev.BackendVulkan))
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.ID(), b.ID())
}
