// Package trace maintains the per-round stack of call-point
// fingerprints that keeps corresponding sub-expressions aligned across
// devices.
package trace

import (
	"math/bits"

	"fieldnet/internal/model"
)

// Stack is a stack of 64-bit frames. The top frame is the trace of the
// currently open call point. A fresh stack holds the root frame,
// trace 0.
//
// Frames are combined with mix(h, t) = rotl(h, 5) ^ t ^ c(depth),
// where c is a per-depth constant. The mix is compatible with the
// stack discipline but not commutative across siblings, so two
// invocations of the same inner expression from different call sites
// produce distinct traces.
type Stack struct {
	frames []uint64
}

func New() *Stack {
	return &Stack{frames: []uint64{uint64(model.TraceRoot)}}
}

// Push opens a frame for the call point identified by tag.
func (s *Stack) Push(tag uint64) {
	top := s.frames[len(s.frames)-1]
	s.frames = append(s.frames, mix(top, tag, len(s.frames)))
}

// Pop closes the innermost frame. Popping the root frame is an
// invariant violation and aborts the net.
func (s *Stack) Pop() {
	if len(s.frames) <= 1 {
		panic(model.Invariantf("trace stack popped while empty"))
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Current returns the trace of the innermost open frame.
func (s *Stack) Current() model.Trace {
	return model.Trace(s.frames[len(s.frames)-1])
}

// Depth returns the number of frames above the root.
func (s *Stack) Depth() int {
	return len(s.frames) - 1
}

// Call runs fn inside a frame for tag, guaranteeing the frame is
// closed on every exit path, including panics.
func (s *Stack) Call(tag uint64, fn func()) {
	s.Push(tag)
	defer s.Pop()
	fn()
}

// Reset discards every frame above the root. Round drivers call it
// before reusing a stack, so a failed round cannot leak frames into
// the next one.
func (s *Stack) Reset() {
	s.frames = s.frames[:1]
}

func mix(h, tag uint64, depth int) uint64 {
	return bits.RotateLeft64(h, 5) ^ tag ^ depthSalt(depth)
}

// depthSalt derives the per-depth constant with a splitmix64 step, so
// the same tag at different depths lands on different traces.
func depthSalt(depth int) uint64 {
	x := uint64(depth) + 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
