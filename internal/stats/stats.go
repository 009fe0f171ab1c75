// Package stats tracks the engine's atomic counters (spec.md §4.6) and
// exports them both as JSON (for the admin /stats endpoint) and as
// Prometheus gauges/counters (for /metrics), matching the teacher's own
// habit of carrying a stats struct updated under atomics and reported
// out (ais/rebalance.go's stats.ExtRebalanceStats).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the engine's counter set. There is no package-level
// instance: each engine.Engine creates its own with New and hands it to
// the arena and the admin handlers.
type Stats struct {
	usedMem   int64 // bytes currently allocated to element payloads
	dataBudget int64
	dictUsed  int64
	dictBudget int64

	hits      uint64
	misses    uint64
	hitsDisk  uint64
	creates   uint64
	evictions uint64
	full      uint64
}

func New(dictBudget, dataBudget int64) *Stats {
	return &Stats{dictBudget: dictBudget, dataBudget: dataBudget}
}

func (s *Stats) AddUsedMem(delta int64)  { atomic.AddInt64(&s.usedMem, delta) }
func (s *Stats) AddDictUsed(delta int64) { atomic.AddInt64(&s.dictUsed, delta) }
func (s *Stats) UsedMem() int64          { return atomic.LoadInt64(&s.usedMem) }
func (s *Stats) DictUsed() int64         { return atomic.LoadInt64(&s.dictUsed) }

// Full reports whether the engine is at or over its memory ceiling,
// the condition that forces CREATE admissions into the FULL state
// (spec.md §3 invariants, §4.4, §4.6).
func (s *Stats) Full() bool {
	if s.UsedMem() >= s.dataBudget {
		atomic.AddUint64(&s.full, 1)
		return true
	}
	if s.DictUsed() >= s.dictBudget {
		atomic.AddUint64(&s.full, 1)
		return true
	}
	return false
}

func (s *Stats) IncHit()      { atomic.AddUint64(&s.hits, 1) }
func (s *Stats) IncMiss()     { atomic.AddUint64(&s.misses, 1) }
func (s *Stats) IncHitDisk()  { atomic.AddUint64(&s.hitsDisk, 1) }
func (s *Stats) IncCreate()   { atomic.AddUint64(&s.creates, 1) }
func (s *Stats) IncEviction() { atomic.AddUint64(&s.evictions, 1) }

// Snapshot is a point-in-time view suitable for JSON encoding.
type Snapshot struct {
	UsedMemBytes  int64  `json:"used_mem_bytes"`
	DataBudget    int64  `json:"data_budget_bytes"`
	DictUsed      int64  `json:"dict_used_bytes"`
	DictBudget    int64  `json:"dict_budget_bytes"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	HitsDisk      uint64 `json:"hits_disk"`
	Creates       uint64 `json:"creates"`
	Evictions     uint64 `json:"evictions"`
	FullRejects   uint64 `json:"full_rejects"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		UsedMemBytes: s.UsedMem(),
		DataBudget:   s.dataBudget,
		DictUsed:     s.DictUsed(),
		DictBudget:   s.dictBudget,
		Hits:         atomic.LoadUint64(&s.hits),
		Misses:       atomic.LoadUint64(&s.misses),
		HitsDisk:     atomic.LoadUint64(&s.hitsDisk),
		Creates:      atomic.LoadUint64(&s.creates),
		Evictions:    atomic.LoadUint64(&s.evictions),
		FullRejects:  atomic.LoadUint64(&s.full),
	}
}

// Collector adapts Stats to prometheus.Collector so cmd/ncached can
// register it directly with a prometheus.Registry.
type Collector struct {
	s *Stats
}

func NewCollector(s *Stats) *Collector { return &Collector{s: s} }

var (
	usedMemDesc = prometheus.NewDesc("ncache_used_mem_bytes", "Bytes currently allocated to cached element payloads", nil, nil)
	hitsDesc    = prometheus.NewDesc("ncache_hits_total", "Memory hits", nil, nil)
	missesDesc  = prometheus.NewDesc("ncache_misses_total", "Misses (no memory and no disk entry)", nil, nil)
	hitsDiskDesc = prometheus.NewDesc("ncache_hits_disk_total", "Hits served from disk", nil, nil)
	fullDesc    = prometheus.NewDesc("ncache_full_rejects_total", "CREATE admissions rejected as FULL", nil, nil)
)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- usedMemDesc
	ch <- hitsDesc
	ch <- missesDesc
	ch <- hitsDiskDesc
	ch <- fullDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.s.Snapshot()
	ch <- prometheus.MustNewConstMetric(usedMemDesc, prometheus.GaugeValue, float64(snap.UsedMemBytes))
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(snap.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(hitsDiskDesc, prometheus.CounterValue, float64(snap.HitsDisk))
	ch <- prometheus.MustNewConstMetric(fullDesc, prometheus.CounterValue, float64(snap.FullRejects))
}
