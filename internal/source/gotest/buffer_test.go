package gotest

import (
	"fmt"
	"testing"
)

func TestLineBuffer_KeepsInsertionOrder(t *testing.T) {
	b := newLineBuffer(5)
	for i := 0; i < 3; i++ {
		b.Add(fmt.Sprintf("line-%d", i))
	}

	got := b.Lines()
	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	for i, line := range got {
		if want := fmt.Sprintf("line-%d", i); line != want {
			t.Errorf("lines[%d]: want %q, got %q", i, want, line)
		}
	}
	if b.Dropped() != 0 {
		t.Errorf("expected nothing dropped, got %d", b.Dropped())
	}
}

func TestLineBuffer_EvictsOldest(t *testing.T) {
	b := newLineBuffer(3)
	for i := 0; i < 7; i++ {
		b.Add(fmt.Sprintf("line-%d", i))
	}

	got := b.Lines()
	want := []string{"line-4", "line-5", "line-6"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lines[%d]: want %q, got %q", i, want[i], got[i])
		}
	}
	if b.Dropped() != 4 {
		t.Errorf("expected 4 dropped, got %d", b.Dropped())
	}
}

func TestLineBuffer_MinimumCapacity(t *testing.T) {
	b := newLineBuffer(0)
	b.Add("a")
	b.Add("b")
	if got := b.Lines(); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected [b], got %v", got)
	}
}

func TestLineBuffer_Empty(t *testing.T) {
	if got := newLineBuffer(4).Lines(); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
