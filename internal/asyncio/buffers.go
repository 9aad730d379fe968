package asyncio

import "sync"

// BufferClass identifies which adaptive buffer size estimate an operation
// should consult.
type BufferClass int

const (
	BufferFileRead BufferClass = iota
	BufferFileWrite
	BufferNetworkDownload
	BufferNetworkUpload
)

const initialBufferSize = 64 * 1024 // 64 KiB

// bufferState tracks one moving size estimate per buffer class. The
// estimate grows toward observed per-operation byte counts and shrinks when
// observed counts are consistently small, approximating "grows toward
// observed throughput, shrinks on low utilisation" without the complexity
// of a full EWMA.
type bufferState struct {
	mu    sync.Mutex
	sizes map[BufferClass]int64
}

func (b *bufferState) init() {
	b.sizes = map[BufferClass]int64{
		BufferFileRead:        initialBufferSize,
		BufferFileWrite:       initialBufferSize,
		BufferNetworkDownload: initialBufferSize,
		BufferNetworkUpload:   initialBufferSize,
	}
}

// observe folds one operation's byte count into the class's estimate.
func (b *bufferState) observe(class BufferClass, n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.sizes[class]
	if n > cur {
		// Grow immediately toward the larger observation.
		b.sizes[class] = n
	} else if n < cur/2 {
		// Shrink gradually on sustained low utilisation.
		b.sizes[class] = (cur + n) / 2
	}
	if b.sizes[class] < initialBufferSize {
		b.sizes[class] = initialBufferSize
	}
}

// Estimate returns the current size estimate for class.
func (b *bufferState) Estimate(class BufferClass) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizes[class]
}

// Estimate exposes the engine's current buffer-size estimate for class, so
// callers (e.g. the cache store sizing a download buffer) can size
// accordingly.
func (e *Engine) Estimate(class BufferClass) int64 {
	return e.buffers.Estimate(class)
}
