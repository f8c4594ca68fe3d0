// Package buffers provides reusable byte buffers for part reads. Part
// buffers are large (1 MiB to 4 GiB depending on the session), so reuse
// across workers matters for GC pressure.
package buffers

import "sync"

// Pool hands out fixed-size byte buffers. All buffers from one Pool share
// the same length, the session's part size.
type Pool struct {
	size int64
	pool sync.Pool
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int64) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get retrieves a buffer from the pool. Return it with Put when done.
func (p *Pool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped.
func (p *Pool) Put(buf *[]byte) {
	if buf != nil && int64(len(*buf)) == p.size {
		p.pool.Put(buf)
	}
}
