package websocket

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// Buffer pooling to reduce per-frame allocations. Frame headers are a
// fixed 14 bytes (MaxFrameHeaderSize) so a plain sync.Pool of that exact
// size is the right tool. Payloads vary from a handful of bytes up to
// whatever MaxMessageSize allows, which is exactly what bytebufferpool
// is built for: it self-calibrates towards the sizes actually requested
// instead of forcing callers into a fixed set of size classes.

var headerPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, MaxFrameHeaderSize)
		return &b
	},
}

// getHeaderBuffer returns a pooled header buffer.
func getHeaderBuffer() *[]byte {
	return headerPool.Get().(*[]byte)
}

// putHeaderBuffer returns a header buffer to the pool.
func putHeaderBuffer(buf *[]byte) {
	if buf != nil {
		headerPool.Put(buf)
	}
}

// BufferPool hands out payload buffers backed by bytebufferpool, so
// repeated reads of similarly-sized frames settle on a buffer size that
// avoids both reallocation and wasted capacity.
type BufferPool struct {
	pool bytebufferpool.Pool
	// disabled turns pooling off, useful for isolating allocation
	// benchmarks from pool warm-up effects.
	disabled bool
}

// DefaultBufferPool is the package-wide payload buffer pool.
var DefaultBufferPool = &BufferPool{}

// Get returns a buffer of exactly the given size. The caller must call
// Put() when done to return the underlying storage to the pool.
func (p *BufferPool) Get(size int) []byte {
	if p.disabled {
		return make([]byte, size)
	}

	bb := p.pool.Get()
	if cap(bb.B) < size {
		bb.B = make([]byte, size)
	} else {
		bb.B = bb.B[:size]
	}
	// bb itself isn't returned to the pool here: it's checked out to
	// the caller until they call Put, which wraps the raw slice back
	// into a fresh ByteBuffer. bytebufferpool.Pool.Put doesn't care
	// about wrapper identity, only about the slice it holds.
	return bb.B
}

// Put returns a buffer to the pool. The buffer must not be used after
// calling Put.
func (p *BufferPool) Put(buf []byte) {
	if p.disabled || len(buf) == 0 {
		return
	}
	p.pool.Put(&bytebufferpool.ByteBuffer{B: buf[:cap(buf)]})
}

// GetExact is kept for call sites that want to make explicit that
// they're borrowing pooled storage rather than falling back to a direct
// allocation. It always succeeds: unlike the old fixed-bucket pool
// there's no size above which pooling gives up.
func (p *BufferPool) GetExact(size int) ([]byte, bool) {
	if p.disabled {
		return nil, false
	}
	return p.Get(size), true
}
