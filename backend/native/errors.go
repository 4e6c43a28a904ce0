package native

import "errors"

// Buffer and device errors.
var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("native: buffer has been destroyed")

	// ErrBufferAlreadyMapped is returned when a map is requested while one
	// is live or pending.
	ErrBufferAlreadyMapped = errors.New("native: buffer is already mapped or mapping is pending")

	// ErrBufferNotMapped is returned when accessing unmapped buffer data.
	ErrBufferNotMapped = errors.New("native: buffer is not mapped")

	// ErrMapUsageMismatch is returned when mapping a buffer without
	// MapRead usage.
	ErrMapUsageMismatch = errors.New("native: buffer does not have map-read usage")

	// ErrCallbackNil is returned when MapAsync is called with a nil callback.
	ErrCallbackNil = errors.New("native: map callback is nil")

	// ErrDeviceDestroyed is returned when operating on a destroyed device.
	ErrDeviceDestroyed = errors.New("native: device has been destroyed")

	// ErrWaitTimeout is returned when the device does not go idle within
	// the fence timeout.
	ErrWaitTimeout = errors.New("native: device idle wait timed out")

	// ErrNoHALBackend is returned when no hal runtime backend is usable
	// in this process.
	ErrNoHALBackend = errors.New("native: no hal backend available")
)
