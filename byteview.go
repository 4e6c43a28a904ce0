package wisc

import (
	"errors"
	"reflect"
	"unsafe"
)

// errCursorOverflow is returned by byteCursor.write when a write would
// exceed the destination's capacity.
var errCursorOverflow = errors.New("wisc: write exceeds destination capacity")

// This file is the only place wisc reinterprets typed memory as raw
// bytes. Everything else works on []byte views produced here, and every
// record type admitted into the store passes isPlainOldData first.

// sliceBytes returns a byte view aliasing the memory of s. The view is
// valid for as long as s is reachable; writes through the view are
// visible in s.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	stride := int(unsafe.Sizeof(s[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*stride)
}

// isPlainOldData reports whether t is a fixed-layout value type safe to
// alias as raw bytes: no pointers, no interior references, no
// indeterminate layout.
func isPlainOldData(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return isPlainOldData(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isPlainOldData(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		// Pointers, slices, maps, strings, chans, funcs, interfaces,
		// and platform-dependent int/uint/uintptr are all rejected.
		return false
	}
}

// byteCursor is a bounds-checked writer over a destination byte view.
type byteCursor struct {
	dst []byte
	off int
}

// write copies src at the cursor and advances it. A write past the end
// of the destination returns errCursorOverflow without partial effects.
func (c *byteCursor) write(src []byte) error {
	if c.off+len(src) > len(c.dst) {
		return errCursorOverflow
	}
	copy(c.dst[c.off:], src)
	c.off += len(src)
	return nil
}

// remaining returns the writable bytes left.
func (c *byteCursor) remaining() int {
	return len(c.dst) - c.off
}
