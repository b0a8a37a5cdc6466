package secframe

import (
	"net"
	"sync"
)

// Protector is the session object produced by an external handshake. It
// encrypts/frames outbound data and decrypts/deframes inbound data. Once
// installed on a Handler the handler is its sole owner and caller.
type Protector interface {
	// Unprotect consumes raw transport bytes and delivers zero or more
	// decoded plaintext frames to sink. It may buffer partial frames
	// internally across calls. Malformed or unauthenticated input fails
	// the call; no further input should be fed after a failure.
	Unprotect(in []byte, sink FrameSink, alloc Allocator) error

	// ProtectFlush consumes an ordered batch of plaintext buffers and
	// invokes emit zero or more times, synchronously, each time with one
	// framed buffer ready for the transport. It returns once all emission
	// for the batch is complete. After a failure no further emission is
	// assumed.
	ProtectFlush(plaintext [][]byte, emit func(framed []byte), alloc Allocator) error

	// Destroy releases key material. Called at most once.
	Destroy()
}

// Decoder is the inbound capability of the stage: raw transport bytes in,
// plaintext frames out.
type Decoder interface {
	Decode(in []byte, sink FrameSink) error
}

// Writer is the outbound capability of the stage: buffered writes with
// completion handles, protected and framed on Flush.
type Writer interface {
	Write(payload []byte, done *Completion) error
	Flush() error
}

// FrameSink receives decoded plaintext frames from Unprotect.
type FrameSink interface {
	Frame(payload []byte)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(payload []byte)

func (f FrameSinkFunc) Frame(payload []byte) { f(payload) }

// Allocator hands out byte buffers for protect/unprotect output.
type Allocator interface {
	// Get returns a buffer with len(buf) == size.
	Get(size int) []byte
	// Put returns a buffer obtained from Get once its bytes are dead.
	Put(buf []byte)
}

// Downstream is the transport substrate below the stage. Framed buffers go
// out through WriteFrame with their own completion signals; the remaining
// methods are lifecycle pass-throughs the stage forwards unchanged, except
// that Disconnect/CloseTransport/Deregister are preceded by the close
// sequence in Handler.
type Downstream interface {
	WriteFrame(framed []byte, done *Completion)
	Bind(addr net.Addr) error
	Connect(remote, local net.Addr) error
	Disconnect() error
	CloseTransport() error
	Deregister() error
	Read() error
}

const minPooledBuffer = 512

// PoolAllocator is the default Allocator, backed by sync.Pool. It may be
// shared across connections; it carries no per-connection state.
type PoolAllocator struct {
	pool sync.Pool
}

func NewPoolAllocator() *PoolAllocator {
	a := &PoolAllocator{}
	a.pool.New = func() any {
		buf := make([]byte, minPooledBuffer)
		return &buf
	}
	return a
}

func (a *PoolAllocator) Get(size int) []byte {
	bp := a.pool.Get().(*[]byte)
	if cap(*bp) >= size {
		return (*bp)[:size]
	}
	a.pool.Put(bp)
	return make([]byte, size)
}

func (a *PoolAllocator) Put(buf []byte) {
	if cap(buf) < minPooledBuffer {
		return
	}
	buf = buf[:cap(buf)]
	a.pool.Put(&buf)
}
