package wisc

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestSliceBytesAliasesMemory(t *testing.T) {
	vals := []int32{0, 0, 0}
	raw := sliceBytes(vals)
	if len(raw) != 12 {
		t.Fatalf("len = %d, want 12", len(raw))
	}

	// Writes through the view land in the original slice.
	raw[0] = 0x2a
	if vals[0] != 42 {
		t.Errorf("vals[0] = %d, want 42", vals[0])
	}
	vals[2] = 1
	if raw[8] != 1 {
		t.Errorf("raw[8] = %d, want 1", raw[8])
	}
}

func TestSliceBytesEmpty(t *testing.T) {
	if got := sliceBytes([]float64(nil)); got != nil {
		t.Errorf("nil slice view = %v, want nil", got)
	}
	if got := sliceBytes([]float64{}); got != nil {
		t.Errorf("empty slice view = %v, want nil", got)
	}
}

func TestIsPlainOldData(t *testing.T) {
	type vec3 struct{ X, Y, Z float32 }
	type holder struct {
		V vec3
		N [4]int16
	}
	type withString struct{ S string }
	type withPointer struct{ P *int32 }
	type withSlice struct{ S []byte }

	cases := []struct {
		name string
		t    reflect.Type
		want bool
	}{
		{"int32", reflect.TypeOf(int32(0)), true},
		{"float64", reflect.TypeOf(float64(0)), true},
		{"bool", reflect.TypeOf(false), true},
		{"complex128", reflect.TypeOf(complex128(0)), true},
		{"array of uint16", reflect.TypeOf([8]uint16{}), true},
		{"nested struct", reflect.TypeOf(holder{}), true},
		{"platform int", reflect.TypeOf(int(0)), false},
		{"uintptr", reflect.TypeOf(uintptr(0)), false},
		{"string field", reflect.TypeOf(withString{}), false},
		{"pointer field", reflect.TypeOf(withPointer{}), false},
		{"slice field", reflect.TypeOf(withSlice{}), false},
		{"map", reflect.TypeOf(map[int32]int32{}), false},
	}
	for _, tc := range cases {
		if got := isPlainOldData(tc.t); got != tc.want {
			t.Errorf("%s: isPlainOldData = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestByteCursorWrites(t *testing.T) {
	dst := make([]byte, 8)
	cur := byteCursor{dst: dst}

	if err := cur.write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := cur.write([]byte{4, 5}); err != nil {
		t.Fatal(err)
	}
	if cur.remaining() != 3 {
		t.Errorf("remaining = %d, want 3", cur.remaining())
	}
	if !bytes.Equal(dst[:5], []byte{1, 2, 3, 4, 5}) {
		t.Errorf("dst = %v", dst)
	}
}

func TestByteCursorOverflow(t *testing.T) {
	dst := make([]byte, 4)
	cur := byteCursor{dst: dst}

	if err := cur.write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	err := cur.write([]byte{4, 5})
	if !errors.Is(err, errCursorOverflow) {
		t.Fatalf("err = %v, want errCursorOverflow", err)
	}
	// A failed write has no partial effect.
	if dst[3] != 0 {
		t.Errorf("dst[3] = %d, want 0", dst[3])
	}
	if cur.remaining() != 1 {
		t.Errorf("remaining = %d, want 1", cur.remaining())
	}
}
