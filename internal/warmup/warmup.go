// Package warmup implements an explicit background promotion pass over
// disk-resident entries, adapted from the teacher's xs.xactLLC (the
// "load LOM cache" xaction in xs/obj_warmup.go): a bounded, named
// background job a caller starts and waits on, rather than part of the
// housekeeper's unconditional per-tick work.
package warmup

import (
	"bytes"
	"sync"

	"github.com/ncache/ncache/internal/cmn"
	"github.com/ncache/ncache/internal/config"
	"github.com/ncache/ncache/internal/dict"
	"github.com/ncache/ncache/internal/engine"
)

// Job promotes every disk-resident entry whose derived key has the
// given prefix into memory (adapting xs/obj_warmup.go's
// VisitObj-per-entry shape). The HTTP POST /_ncache/warmup handler
// does not use Job; it promotes the single entry named by its key
// parameter.
type Job struct {
	eng    *engine.Engine
	prefix []byte

	mu        sync.Mutex
	done      bool
	visited   int
	promoted  int
	lastErr   error
}

func New(eng *engine.Engine, prefix string) *Job {
	return &Job{eng: eng, prefix: []byte(prefix)}
}

// Run walks the dict (not the raw shard tree, so it only ever touches
// entries the loader has already discovered) and promotes every
// matching disk-only entry, mirroring xactLLC.Run's synchronous
// "jog, then finish" shape.
func (j *Job) Run() {
	for _, e := range j.eng.Dict.Entries() {
		if !bytes.HasPrefix(e.Key, j.prefix) {
			continue
		}
		j.mu.Lock()
		j.visited++
		j.mu.Unlock()

		if e.Data != nil || e.File == "" {
			continue
		}
		rule := e.Rule
		if rule == nil {
			rule = ruleForState(e)
		}
		if err := j.eng.Warmup(rule, e); err != nil {
			j.mu.Lock()
			j.lastErr = err
			j.mu.Unlock()
			cmn.Errorln("warmup", e.Hash, err)
			continue
		}
		j.mu.Lock()
		j.promoted++
		j.mu.Unlock()
	}
	j.mu.Lock()
	j.done = true
	j.mu.Unlock()
}

// ruleForState falls back to a read-only disk-sync rule shape when an
// entry discovered by the loader never had its originating rule
// recorded (spec.md §4.1: loader-discovered entries have no Rule).
func ruleForState(e *dict.Entry) *config.Rule {
	return &config.Rule{Name: "warmup-default", Mode: config.DiskSync}
}

// Status reports the job's progress for the admin endpoint to surface.
type Status struct {
	Done     bool
	Visited  int
	Promoted int
	Err      error
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{Done: j.done, Visited: j.visited, Promoted: j.promoted, Err: j.lastErr}
}
