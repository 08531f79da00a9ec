// Package metrics collects process-wide counters for the solving pipeline.
// They are exposed as a JSON snapshot on the API's /metrics endpoint and are
// safe for concurrent use.
package metrics

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	throttles      atomic.Int64
	ordersSolved   atomic.Int64
	ordersFailed   atomic.Int64
	solveCount     atomic.Int64
	solveLatencyNs atomic.Int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) CacheHit()    { m.cacheHits.Add(1) }
func (m *Metrics) CacheMiss()   { m.cacheMisses.Add(1) }
func (m *Metrics) Throttled()   { m.throttles.Add(1) }
func (m *Metrics) OrderSolved() { m.ordersSolved.Add(1) }
func (m *Metrics) OrderFailed() { m.ordersFailed.Add(1) }

func (m *Metrics) ObserveSolve(d time.Duration) {
	m.solveCount.Add(1)
	m.solveLatencyNs.Add(d.Nanoseconds())
}

// Snapshot returns a point-in-time copy of all counters.
type Snapshot struct {
	CacheHits      int64  `json:"cacheHits"`
	CacheMisses    int64  `json:"cacheMisses"`
	Throttles      int64  `json:"throttles"`
	OrdersSolved   int64  `json:"ordersSolved"`
	OrdersFailed   int64  `json:"ordersFailed"`
	Solves         int64  `json:"solves"`
	AvgSolveTimeMs string `json:"avgSolveTime"`
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		CacheHits:    m.cacheHits.Load(),
		CacheMisses:  m.cacheMisses.Load(),
		Throttles:    m.throttles.Load(),
		OrdersSolved: m.ordersSolved.Load(),
		OrdersFailed: m.ordersFailed.Load(),
		Solves:       m.solveCount.Load(),
	}
	if snap.Solves > 0 {
		avg := time.Duration(m.solveLatencyNs.Load() / snap.Solves)
		snap.AvgSolveTimeMs = avg.Round(time.Millisecond).String()
	} else {
		snap.AvgSolveTimeMs = "0s"
	}
	return snap
}
