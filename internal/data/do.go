// Package data implements the Data Object store (spec.md §4.2): a
// reference-countable container owning a chain of mes.Element, threaded
// into a circular reclamation ring the housekeeper walks one candidate
// at a time per tick.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package data

import (
	"sync"
	"sync/atomic"

	"github.com/ncache/ncache/internal/mes"
)

// Flag bits for DO.Info.Flags (spec.md §3).
const (
	FlagChunked    uint32 = 1 << 0
	FlagCompressed uint32 = 1 << 1
)

// Info mirrors the DO metadata of spec.md §3.
type Info struct {
	ContentType      string
	TransferEncoding string
	ContentLength    int64
	Flags            uint32
}

// DO is the Data Object of spec.md §3/§4.2. clients is atomic because
// readers increment/decrement it concurrently with the owning Entry's
// writer replacing or invalidating the DO (spec.md §5).
type DO struct {
	clients int32
	invalid int32 // atomic bool: 0 = reachable, 1 = draining

	Element *mes.Element
	Info    Info

	next *DO // ring link, set by Ring.New / Ring internals only
}

func (d *DO) AddClient()    { atomic.AddInt32(&d.clients, 1) }
func (d *DO) RemoveClient() { atomic.AddInt32(&d.clients, -1) }
func (d *DO) Clients() int32 { return atomic.LoadInt32(&d.clients) }

func (d *DO) Invalidate()    { atomic.StoreInt32(&d.invalid, 1) }
func (d *DO) IsInvalid() bool { return atomic.LoadInt32(&d.invalid) != 0 }

// reclaimable mirrors _nst_nosql_data_invalid: a DO can be freed once it
// is draining (invalid) and no reader still holds it.
func (d *DO) reclaimable() bool { return d.IsInvalid() && d.Clients() == 0 }

// Ring is the circular singly-linked list of all live DOs (spec.md §3),
// guarded by its own leaf lock per spec.md §5 ("one for the DO ring").
type Ring struct {
	mu         sync.Mutex
	head, tail *DO
	size       int
}

func NewRing() *Ring { return &Ring{} }

// New allocates a DO and threads it into the ring, maintaining
// circularity even at size 1 (spec.md §4.2: "threading tail.next = head
// to maintain circularity even at size 1").
func (r *Ring) New() *DO {
	d := &DO{}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		r.head = d
		r.tail = d
		d.next = d
	} else if r.head == r.tail {
		r.head.next = d
		d.next = r.head
		r.tail = d
	} else {
		d.next = r.head
		r.tail.next = d
		r.tail = d
	}
	r.size++
	return d
}

// CleanupTick inspects the head of the ring; if it is reclaimable it is
// unlinked and returned for the caller to free its element chain and
// metadata strings (internal/mes.Arena.Free is the caller's job, since
// Ring does not know about the arena). If not eligible, the head is
// rotated forward by one so housekeeping makes progress across the
// ring (spec.md §4.2: "performs at most one removal per call").
func (r *Ring) CleanupTick() *DO {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		return nil
	}
	if r.head.reclaimable() {
		removed := r.head
		if r.head == r.tail {
			r.head = nil
			r.tail = nil
		} else {
			r.tail.next = r.head.next
			r.head = r.head.next
		}
		r.size--
		removed.next = nil
		return removed
	}
	if r.head != r.tail {
		r.tail = r.head
		r.head = r.head.next
	}
	return nil
}

func (r *Ring) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// ElementChain returns the elements of a DO's chain in order. It frees
// nothing; the housekeeper's data cleaner returns payloads to the arena
// after CleanupTick has unlinked the DO.
func ElementChain(d *DO) []*mes.Element {
	var out []*mes.Element
	for e := d.Element; e != nil; e = e.Next {
		out = append(out, e)
	}
	return out
}
