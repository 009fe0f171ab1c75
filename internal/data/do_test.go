package data

import (
	"testing"

	"github.com/ncache/ncache/internal/mes"
)

func TestDOClientsRefcounting(t *testing.T) {
	d := &DO{}
	d.AddClient()
	d.AddClient()
	if got := d.Clients(); got != 2 {
		t.Fatalf("Clients() = %d, want 2", got)
	}
	d.RemoveClient()
	if got := d.Clients(); got != 1 {
		t.Fatalf("Clients() = %d, want 1", got)
	}
}

func TestDOReclaimableRequiresInvalidAndNoClients(t *testing.T) {
	d := &DO{}
	if d.reclaimable() {
		t.Fatal("fresh DO should not be reclaimable")
	}
	d.AddClient()
	d.Invalidate()
	if d.reclaimable() {
		t.Fatal("DO with an active client should not be reclaimable even when invalid")
	}
	d.RemoveClient()
	if !d.reclaimable() {
		t.Fatal("invalid DO with no clients should be reclaimable")
	}
}

func TestRingCircularAtSizeOne(t *testing.T) {
	r := NewRing()
	d := r.New()
	if d.next != d {
		t.Fatal("single-element ring must be self-circular")
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}
}

func TestRingCleanupTickRemovesOnlyReclaimable(t *testing.T) {
	r := NewRing()
	a := r.New()
	b := r.New()
	_ = b

	if got := r.CleanupTick(); got != nil {
		t.Fatalf("expected no removal for a live ring, got %v", got)
	}
	if r.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 after a no-op tick", r.Size())
	}

	a.Invalidate()
	// a may not be at head anymore since CleanupTick rotated; drain
	// ticks until it's reclaimed or we've gone around twice.
	removed := false
	for i := 0; i < 4; i++ {
		if d := r.CleanupTick(); d == a {
			removed = true
			break
		}
	}
	if !removed {
		t.Fatal("expected the invalidated DO to be reclaimed within one full rotation")
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 after reclaiming one DO", r.Size())
	}
}

func TestElementChainWalksFullChain(t *testing.T) {
	d := &DO{}
	e1 := mes.NewStatusLine([]byte("200"))
	e2 := mes.NewStatusLine([]byte("204"))
	e1.Next = e2
	d.Element = e1
	chain := ElementChain(d)
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
}
