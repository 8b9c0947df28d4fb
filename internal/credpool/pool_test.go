package credpool

import (
	"testing"
	"time"

	"github.com/keywheel/keywheel/pkg/credential"
)

func entry(id string) *credential.Entry {
	return &credential.Entry{ID: id}
}

func TestPool_OrderedByAvailability(t *testing.T) {
	p := New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.Enqueue(entry("late"), base.Add(30*time.Second))
	p.Enqueue(entry("now"), base)
	p.Enqueue(entry("soon"), base.Add(10*time.Second))

	want := []string{"now", "soon", "late"}
	for _, id := range want {
		got, ok := p.PopNext()
		if !ok {
			t.Fatalf("PopNext() unexpectedly empty, want %q", id)
		}
		if got.ID != id {
			t.Errorf("PopNext() = %q, want %q", got.ID, id)
		}
	}
}

func TestPool_TieBreakByID(t *testing.T) {
	p := New()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p.Enqueue(entry("c"), at)
	p.Enqueue(entry("a"), at)
	p.Enqueue(entry("b"), at)

	want := []string{"a", "b", "c"}
	for _, id := range want {
		got, _ := p.PopNext()
		if got.ID != id {
			t.Errorf("PopNext() = %q, want %q (ties break by id)", got.ID, id)
		}
	}
}

func TestPool_RejectsDuplicateIDs(t *testing.T) {
	p := New()
	at := time.Now()

	if !p.Enqueue(entry("a"), at) {
		t.Error("first Enqueue should succeed")
	}
	if p.Enqueue(entry("a"), at.Add(time.Second)) {
		t.Error("duplicate Enqueue should be rejected")
	}
	if got := p.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}

	// After popping, the ID may be enqueued again.
	p.PopNext()
	if !p.Enqueue(entry("a"), at) {
		t.Error("re-Enqueue after PopNext should succeed")
	}
}

func TestPool_Empty(t *testing.T) {
	p := New()

	if got, ok := p.PopNext(); ok || got != nil {
		t.Errorf("PopNext() on empty pool = (%v, %v), want (nil, false)", got, ok)
	}
	if got := p.Size(); got != 0 {
		t.Errorf("Size() = %d, want 0", got)
	}
}

func TestPool_Contains(t *testing.T) {
	p := New()
	p.Enqueue(entry("a"), time.Now())

	if !p.Contains("a") {
		t.Error("Contains(a) should be true after Enqueue")
	}
	p.PopNext()
	if p.Contains("a") {
		t.Error("Contains(a) should be false after PopNext")
	}
}
