package parser

import (
	"sync"
	"sync/atomic"
	"time"
)

// statsState accumulates the counters Parser.Stats reports.
type statsState struct {
	totalParses  atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	incremental  atomic.Int64
	full         atomic.Int64

	mu          sync.Mutex
	totalDur    time.Duration
	durCount    int64
	loadTime    time.Duration
	saveTime    time.Duration
}

// Stats is a point-in-time snapshot of parser statistics.
type Stats struct {
	TotalParses      int64
	CacheHits        int64
	CacheMisses      int64
	IncrementalCount int64
	FullCount        int64
	AvgParseTime     time.Duration
	CacheLoadTime    time.Duration
	CacheSaveTime    time.Duration
}

func (s *statsState) recordAttempt()    { s.totalParses.Add(1) }
func (s *statsState) recordCacheHit()   { s.cacheHits.Add(1) }
func (s *statsState) recordCacheMiss()  { s.cacheMisses.Add(1) }
func (s *statsState) recordIncremental() { s.incremental.Add(1) }
func (s *statsState) recordFullParse()  { s.full.Add(1) }

func (s *statsState) recordParseDuration(d time.Duration) {
	s.mu.Lock()
	s.totalDur += d
	s.durCount++
	s.mu.Unlock()
}

func (s *statsState) recordLoadTime(d time.Duration) {
	s.mu.Lock()
	s.loadTime = d
	s.mu.Unlock()
}

func (s *statsState) recordSaveTime(d time.Duration) {
	s.mu.Lock()
	s.saveTime = d
	s.mu.Unlock()
}

func (s *statsState) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		TotalParses:      s.totalParses.Load(),
		CacheHits:        s.cacheHits.Load(),
		CacheMisses:      s.cacheMisses.Load(),
		IncrementalCount: s.incremental.Load(),
		FullCount:        s.full.Load(),
		CacheLoadTime:    s.loadTime,
		CacheSaveTime:    s.saveTime,
	}
	if s.durCount > 0 {
		st.AvgParseTime = s.totalDur / time.Duration(s.durCount)
	}
	return st
}
