package mes

import (
	"sync"

	"github.com/ncache/ncache/internal/stats"
)

// Arena hands out element payload buffers and tracks their size against
// the engine's memory budget, the same role the teacher's memsys pool
// plays for object buffers in ais/target.go and ais/rebalance.go. The
// teacher's own memsys package source was not retrieved into this
// corpus, so the pool itself is reimplemented here with sync.Pool
// size-classed buckets; the accounting discipline (every allocation
// bumps a counter, every free decrements it) is the part carried over.
type Arena struct {
	stats   *stats.Stats
	classes [len(sizeClasses)]sync.Pool
}

// Size classes chosen to cover typical HTTP header lines and body
// chunks without excessive internal fragmentation.
var sizeClasses = [...]int{64, 256, 1024, 4096, 16384, 65536}

func NewArena(st *stats.Stats) *Arena {
	a := &Arena{stats: st}
	for i, sz := range sizeClasses {
		sz := sz
		a.classes[i].New = func() interface{} { return make([]byte, 0, sz) }
	}
	return a
}

func classFor(n int) int {
	for i, sz := range sizeClasses {
		if n <= sz {
			return i
		}
	}
	return -1
}

// Alloc returns a []byte of length n, copying src into it if given.
// Oversized requests (bigger than the largest size class) fall back to
// a direct allocation; they are still tracked in the budget.
func (a *Arena) Alloc(src []byte) []byte {
	n := len(src)
	var buf []byte
	if c := classFor(n); c >= 0 {
		pooled := a.classes[c].Get().([]byte)
		buf = pooled[:n]
	} else {
		buf = make([]byte, n)
	}
	copy(buf, src)
	a.stats.AddUsedMem(int64(n))
	return buf
}

// Free returns a buffer's accounted size to the budget. The backing
// array is not returned to sync.Pool here because elements are shared
// by reference while readers drain a draining DO (spec.md §5); GC
// reclaims the slice once the last Element referencing it is collected.
func (a *Arena) Free(buf []byte) {
	a.stats.AddUsedMem(-int64(len(buf)))
}
