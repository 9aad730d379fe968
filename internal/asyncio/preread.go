package asyncio

import (
	"os"
	"sync"
	"time"
)

// prereadState implements the smart pre-read heuristic: a recency/frequency
// score per path, consulted by idle workers. Pre-reads are best-effort;
// failures are silent, and the corresponding score is left alone so a
// transient failure doesn't permanently exclude a path.
type prereadState struct {
	mu     sync.Mutex
	score  map[string]float64
	seen   map[string]time.Time
	cached map[string]*Result
	hits   int64
	misses int64
}

func (p *prereadState) init() {
	p.score = make(map[string]float64)
	p.seen = make(map[string]time.Time)
	p.cached = make(map[string]*Result)
}

// recordAccess bumps path's recency/frequency score on every real read.
func (p *prereadState) recordAccess(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score[path] = p.score[path]*0.5 + 1.0
	p.seen[path] = time.Now()
}

// takeCached returns and consumes a pre-read result for path, if one is
// available, recording a hit; otherwise it records a miss.
func (p *prereadState) takeCached(path string) (*Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.cached[path]
	if ok {
		delete(p.cached, path)
		p.hits++
	} else {
		p.misses++
	}
	return r, ok
}

// highestUncached returns the highest-scoring path that isn't already
// pre-read-cached, or "" if there is none.
func (p *prereadState) highestUncached() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := ""
	bestScore := 0.0
	for path, s := range p.score {
		if _, cached := p.cached[path]; cached {
			continue
		}
		if s > bestScore {
			best = path
			bestScore = s
		}
	}
	return best
}

func (p *prereadState) store(path string, r *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached[path] = r
}

func (p *prereadState) hitRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.hits + p.misses
	if total == 0 {
		return 0
	}
	return float64(p.hits) / float64(total) * 100
}

// maybePreRead is called by an idle worker; it best-effort pre-reads the
// highest-scoring path not already cached. Failures are swallowed: pre-reads
// are best-effort.
func (e *Engine) maybePreRead() {
	if !e.cfg.EnablePreRead {
		return
	}
	path := e.preread.highestUncached()
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	e.preread.store(path, &Result{Path: path, Status: StatusCompleted, Bytes: data, Size: int64(len(data))})
}
