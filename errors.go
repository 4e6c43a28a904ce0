package wisc

import "errors"

// Task configuration and run errors.
var (
	// ErrNoKernel is returned by Build when no kernel entry point was set.
	ErrNoKernel = errors.New("wisc: no kernel entry point set")

	// ErrNoGrid is returned by Build when no dispatch grid was set.
	ErrNoGrid = errors.New("wisc: no dispatch grid set")

	// ErrNoDevices is returned by Build when the session holds no devices.
	ErrNoDevices = errors.New("wisc: session has no devices")

	// ErrUnknownHandle is returned by Build when a bound handle does not
	// resolve to a live virtual buffer.
	ErrUnknownHandle = errors.New("wisc: unknown virtual buffer handle")

	// ErrSessionBusy is returned by Build while another Task holds the
	// session.
	ErrSessionBusy = errors.New("wisc: session already borrowed by a running task")

	// ErrTaskConsumed is returned by Run on a Task that already ran or
	// was discarded.
	ErrTaskConsumed = errors.New("wisc: task already consumed")

	// ErrRunTimeout is returned by Run when readback completions do not
	// arrive within the configured timeout.
	ErrRunTimeout = errors.New("wisc: timed out waiting for device readback")
)

// Workgroup and buffer-store errors.
var (
	// ErrWorkgroupClosed is returned by operations on a closed Workgroup.
	ErrWorkgroupClosed = errors.New("wisc: workgroup is closed")

	// ErrBufferType is returned by TakeBuffer when the handle resolves to
	// a buffer stored with a different element type.
	ErrBufferType = errors.New("wisc: virtual buffer has a different element type")

	// ErrInvalidElementType is returned by CreateBuffer for element types
	// that cannot be safely viewed as raw bytes, such as types containing
	// pointers, slices, maps, strings, or platform-sized integers.
	ErrInvalidElementType = errors.New("wisc: element type is not plain old data")
)
