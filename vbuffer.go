package wisc

import (
	"reflect"
)

// VirtualBufferHandle is an opaque, possibly-stale reference to a virtual
// buffer slot. Handles never imply ownership; a stale or zero handle
// resolves to "absent", never faults.
type VirtualBufferHandle struct {
	index      uint32
	generation uint32
}

// IsNil reports whether the handle is the zero handle, which never
// resolves to a buffer.
func (h VirtualBufferHandle) IsNil() bool {
	return h.generation == 0
}

// virtualBuffer is one host-owned, type-tagged record block.
//
// data keeps the caller's slice alive; raw aliases the same memory as a
// byte view, so gather writes through raw are visible in the slice the
// caller eventually takes back.
type virtualBuffer struct {
	data   any
	tag    reflect.Type
	count  int
	stride int
	raw    []byte
}

// byteLen returns the block's total byte length.
func (vb *virtualBuffer) byteLen() int {
	return vb.count * vb.stride
}

// bufferSlot pairs a stored buffer with a generation counter. Generations
// start at 1 and advance on every removal, so handles from a previous
// occupant of the slot go stale instead of aliasing the new one.
type bufferSlot struct {
	generation uint32
	live       bool
	buf        virtualBuffer
}

// bufferStore holds virtual buffers behind generation-checked slots.
// Not safe for concurrent use; the owning Workgroup serializes access.
type bufferStore struct {
	slots []bufferSlot
	free  []uint32
}

// insert stores a buffer and returns a fresh handle.
func (s *bufferStore) insert(vb virtualBuffer) VirtualBufferHandle {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		slot := &s.slots[idx]
		slot.live = true
		slot.buf = vb
		return VirtualBufferHandle{index: idx, generation: slot.generation}
	}

	s.slots = append(s.slots, bufferSlot{generation: 1, live: true, buf: vb})
	return VirtualBufferHandle{index: uint32(len(s.slots) - 1), generation: 1}
}

// get resolves a handle to its live buffer, or nil when absent or stale.
func (s *bufferStore) get(h VirtualBufferHandle) *virtualBuffer {
	if h.IsNil() || int(h.index) >= len(s.slots) {
		return nil
	}
	slot := &s.slots[h.index]
	if !slot.live || slot.generation != h.generation {
		return nil
	}
	return &slot.buf
}

// remove takes a live buffer out of the store, invalidating the handle.
func (s *bufferStore) remove(h VirtualBufferHandle) (virtualBuffer, bool) {
	vb := s.get(h)
	if vb == nil {
		return virtualBuffer{}, false
	}
	out := *vb

	slot := &s.slots[h.index]
	slot.live = false
	slot.buf = virtualBuffer{}
	slot.generation++
	s.free = append(s.free, h.index)
	return out, true
}

// drain drops every stored buffer, returning ownership to the runtime.
func (s *bufferStore) drain() {
	for i := range s.slots {
		if s.slots[i].live {
			s.slots[i].live = false
			s.slots[i].buf = virtualBuffer{}
			s.slots[i].generation++
		}
	}
	s.free = s.free[:0]
	for i := range s.slots {
		s.free = append(s.free, uint32(i))
	}
}

// len returns the number of live buffers.
func (s *bufferStore) len() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].live {
			n++
		}
	}
	return n
}
