package pipeline

import "sync"

// ByteSource is the upstream input boundary: a non-blocking, byte-oriented
// view of whatever serial data has already arrived. The pipeline consumes
// only what is available and returns promptly when nothing remains.
type ByteSource interface {
	// Available returns the number of bytes that can be read immediately.
	Available() int
	// ReadByte returns the next byte, or ok=false when none is buffered.
	ReadByte() (b byte, ok bool)
}

// ChunkBuffer adapts chunked serial-port deliveries to the ByteSource
// interface. The serial monitor goroutine pushes chunks; the polling
// goroutine drains bytes.
type ChunkBuffer struct {
	mu  sync.Mutex
	buf []byte
}

// Push appends a chunk of received bytes. The chunk is copied, so the caller
// may reuse its buffer.
func (c *ChunkBuffer) Push(chunk []byte) {
	c.mu.Lock()
	c.buf = append(c.buf, chunk...)
	c.mu.Unlock()
}

func (c *ChunkBuffer) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *ChunkBuffer) ReadByte() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return 0, false
	}
	b := c.buf[0]
	c.buf = c.buf[1:]
	return b, true
}
