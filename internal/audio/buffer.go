package audio

import (
	"bytes"
	"io"
	"sync"
)

// chunkBuffer is an io.Reader fed by appended chunks. Read blocks until data
// is available, the stream has ended, or the buffer is closed.
type chunkBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	total  int
	eos    bool
	closed bool
}

func newChunkBuffer() *chunkBuffer {
	b := &chunkBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append copies chunk into the buffer and wakes a blocked reader.
func (b *chunkBuffer) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrSinkClosed
	}
	if b.eos {
		return io.ErrClosedPipe
	}

	b.buf.Write(chunk)
	b.total += len(chunk)
	b.cond.Broadcast()
	return nil
}

// EndOfStream lets readers drain what is left and then see io.EOF.
func (b *chunkBuffer) EndOfStream() {
	b.mu.Lock()
	b.eos = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Close unblocks readers; subsequent reads fail.
func (b *chunkBuffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.buf.Reset()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Total returns how many bytes were appended.
func (b *chunkBuffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *chunkBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.buf.Len() == 0 && !b.eos && !b.closed {
		b.cond.Wait()
	}

	if b.closed {
		return 0, ErrSinkClosed
	}
	if b.buf.Len() == 0 {
		return 0, io.EOF
	}
	return b.buf.Read(p)
}
