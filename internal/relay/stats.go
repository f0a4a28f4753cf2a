package relay

import (
	"sync/atomic"
	"time"
)

// Stats tracks process-lifetime relay counters. Constructed once at startup
// and passed to the orchestrator and the operator handlers.
type Stats struct {
	startedAt time.Time

	totalProcessed atomic.Int64
	totalFailed    atomic.Int64
	totalSkipped   atomic.Int64
}

func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

func (s *Stats) IncProcessed() { s.totalProcessed.Add(1) }
func (s *Stats) IncFailed()    { s.totalFailed.Add(1) }
func (s *Stats) IncSkipped()   { s.totalSkipped.Add(1) }

func (s *Stats) TotalProcessed() int64 { return s.totalProcessed.Load() }
func (s *Stats) TotalFailed() int64    { return s.totalFailed.Load() }
func (s *Stats) TotalSkipped() int64   { return s.totalSkipped.Load() }

func (s *Stats) StartedAt() time.Time { return s.startedAt }

func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startedAt)
}
