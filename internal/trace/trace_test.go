package trace

import (
	"errors"
	"testing"

	"fieldnet/internal/model"
)

func TestStackStartsAtRoot(t *testing.T) {
	s := New()
	if s.Current() != model.TraceRoot {
		t.Fatalf("expected root trace 0, got=%d", s.Current())
	}
	if s.Depth() != 0 {
		t.Fatalf("expected depth 0, got=%d", s.Depth())
	}
}

func TestPushPopRestoresTrace(t *testing.T) {
	s := New()
	s.Push(7)
	inner := s.Current()
	if inner == model.TraceRoot {
		t.Fatal("expected pushed frame to change the trace")
	}
	s.Pop()
	if s.Current() != model.TraceRoot {
		t.Fatalf("expected pop to restore root, got=%d", s.Current())
	}
	s.Push(7)
	if s.Current() != inner {
		t.Fatalf("expected identical push to reproduce trace %d, got=%d", inner, s.Current())
	}
	s.Pop()
}

func TestSiblingTagsProduceDistinctTraces(t *testing.T) {
	s := New()
	seen := make(map[model.Trace]uint64)
	for tag := uint64(0); tag < 64; tag++ {
		s.Push(tag)
		tr := s.Current()
		if prev, dup := seen[tr]; dup {
			t.Fatalf("tags %d and %d collided on trace %d", prev, tag, tr)
		}
		seen[tr] = tag
		s.Pop()
	}
}

func TestNestingIsNotCommutative(t *testing.T) {
	s := New()
	s.Push(1)
	s.Push(2)
	ab := s.Current()
	s.Pop()
	s.Pop()
	s.Push(2)
	s.Push(1)
	ba := s.Current()
	s.Pop()
	s.Pop()
	if ab == ba {
		t.Fatalf("expected push(1),push(2) and push(2),push(1) to differ, both=%d", ab)
	}
}

func TestSameTagAtDifferentDepthsDiffers(t *testing.T) {
	s := New()
	s.Push(3)
	outer := s.Current()
	s.Push(3)
	nested := s.Current()
	if outer == nested {
		t.Fatalf("expected depth to separate identical tags, both=%d", outer)
	}
	s.Pop()
	s.Pop()
}

func TestCallPopsOnPanic(t *testing.T) {
	s := New()
	func() {
		defer func() { _ = recover() }()
		s.Call(5, func() { panic("round body failed") })
	}()
	if s.Depth() != 0 {
		t.Fatalf("expected frame closed after panic, depth=%d", s.Depth())
	}
}

func TestPopEmptyIsInvariantViolation(t *testing.T) {
	s := New()
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected pop on empty stack to panic")
		}
		err, ok := rec.(error)
		if !ok || !errors.Is(err, model.ErrInvariant) {
			t.Fatalf("expected invariant violation, got=%v", rec)
		}
	}()
	s.Pop()
}

func TestDeterminismAcrossStacks(t *testing.T) {
	a, b := New(), New()
	tags := []uint64{4, 9, 0, 17}
	for _, tag := range tags {
		a.Push(tag)
		b.Push(tag)
		if a.Current() != b.Current() {
			t.Fatalf("stacks diverged at tag %d: %d vs %d", tag, a.Current(), b.Current())
		}
	}
}
