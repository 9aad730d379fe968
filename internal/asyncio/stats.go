package asyncio

import (
	"sync"
	"sync/atomic"
	"time"
)

// statsState accumulates the counters and rolling durations Engine.Stats
// reports. It takes a brief lock only for the rolling-average/max duration
// path; the atomic counters never block.
type statsState struct {
	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	active    atomic.Int64
	pressure  atomic.Int64
	bytes     atomic.Int64

	mu          sync.Mutex
	durationSum time.Duration
	durationN   int64
	maxDuration time.Duration
}

func (s *statsState) recordSubmit()               { s.total.Add(1) }
func (s *statsState) recordQueuePressure()         { s.pressure.Add(1) }
func (s *statsState) recordActiveDelta(delta int64) { s.active.Add(delta) }
func (s *statsState) recordCancelled()             { s.cancelled.Add(1) }
func (s *statsState) recordFailed()                { s.failed.Add(1) }

func (s *statsState) recordCompleted(d time.Duration, bytes int64) {
	s.completed.Add(1)
	s.bytes.Add(bytes)
	s.mu.Lock()
	s.durationSum += d
	s.durationN++
	if d > s.maxDuration {
		s.maxDuration = d
	}
	s.mu.Unlock()
}

func (s *statsState) snapshot() Stats {
	total := s.total.Load()
	completed := s.completed.Load()
	failed := s.failed.Load()

	s.mu.Lock()
	var avg time.Duration
	if s.durationN > 0 {
		avg = s.durationSum / time.Duration(s.durationN)
	}
	max := s.maxDuration
	s.mu.Unlock()

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return Stats{
		TotalOps:      total,
		Completed:     completed,
		Failed:        failed,
		Cancelled:     s.cancelled.Load(),
		Active:        s.active.Load(),
		QueuePressure: s.pressure.Load() > 0,
		SuccessRate:   successRate,
		AvgDuration:   avg,
		MaxDuration:   max,
		TotalBytes:    s.bytes.Load(),
	}
}
