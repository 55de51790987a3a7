package reassembly

import (
	"testing"
	"time"
)

func TestRetired_ContainsAndPrune(t *testing.T) {
	base := time.Unix(1000, 0)
	r := NewRetired(5 * time.Second)

	r.Add(1, base)
	r.Add(2, base.Add(2*time.Second))
	r.Add(3, base.Add(4*time.Second))

	if !r.Contains(1) || !r.Contains(2) || !r.Contains(3) {
		t.Fatal("all retired ids should be remembered")
	}
	if r.Contains(4) {
		t.Error("unknown id reported as retired")
	}

	// Exactly at the window edge nothing is dropped.
	if n := r.Prune(base.Add(5 * time.Second)); n != 0 {
		t.Errorf("Prune at edge dropped %d, want 0", n)
	}

	if n := r.Prune(base.Add(7500 * time.Millisecond)); n != 2 {
		t.Errorf("Prune dropped %d, want 2", n)
	}
	if r.Contains(1) || r.Contains(2) {
		t.Error("expired ids still remembered")
	}
	if !r.Contains(3) {
		t.Error("id inside window was dropped")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRetired_ReAddKeepsNewest(t *testing.T) {
	base := time.Unix(0, 0)
	r := NewRetired(time.Second)

	r.Add(7, base)
	r.Add(7, base.Add(3*time.Second))

	r.Prune(base.Add(2 * time.Second))
	if !r.Contains(7) {
		t.Error("re-added id must survive pruning of its older entry")
	}

	r.Prune(base.Add(5 * time.Second))
	if r.Contains(7) {
		t.Error("id should expire after its newest window")
	}
}
