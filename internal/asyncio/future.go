package asyncio

import "context"

// Future is the caller-visible handle returned by every submission.
type Future struct {
	path   string
	done   chan struct{}
	result *Result
}

func newFuture(path string) *Future {
	return &Future{path: path, done: make(chan struct{})}
}

func (f *Future) complete(r *Result) {
	f.result = r
	close(f.done)
}

// Wait blocks until the operation completes or ctx is done. It may be
// called more than once; subsequent calls return immediately with the
// cached result.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status reports the operation's current status without blocking.
func (f *Future) Status() Status {
	select {
	case <-f.done:
		return f.result.Status
	default:
		return StatusPending
	}
}
