package secframe

import (
	"net"

	"github.com/rs/zerolog"
)

// Handler is the secure frame transport stage for one connection. Inbound
// raw bytes are unprotected into plaintext frames; outbound writes are
// buffered until Flush, then protected and framed for the downstream
// transport.
//
// All methods on one Handler must be invoked from a single execution
// context; the stage relies on ordering discipline, not locking.
type Handler struct {
	log       zerolog.Logger
	down      Downstream
	alloc     Allocator
	protector Protector
	pending   pendingWrites
	state     State
	closing   bool
}

// NewHandler builds a stage over down. A nil alloc selects a fresh
// PoolAllocator. The stage starts NotReady; writes and reads fail until a
// protector is installed.
func NewHandler(down Downstream, alloc Allocator, log zerolog.Logger) *Handler {
	if alloc == nil {
		alloc = NewPoolAllocator()
	}
	return &Handler{
		log:   log,
		down:  down,
		alloc: alloc,
		state: StateNotReady,
	}
}

// State returns the current session state.
func (h *Handler) State() State {
	return h.state
}

// PendingWrites returns the number of buffered, not-yet-flushed writes.
func (h *Handler) PendingWrites() int {
	return h.pending.size()
}

// InstallProtector delivers the "handshake succeeded" half of the
// readiness notification. Installing over an existing protector is a
// programming error and panics rather than silently replacing the session.
// If the stage already closed or failed, the protector is destroyed
// immediately: the terminal state is not left.
func (h *Handler) InstallProtector(p Protector) {
	if p == nil {
		panic(ErrNilProtector)
	}
	if h.protector != nil {
		panic(ErrProtectorInstalled)
	}
	if h.state.Terminal() {
		h.log.Debug().Stringer("state", h.state).Msg("protector arrived after terminal state, destroying")
		p.Destroy()
		return
	}
	h.protector = p
	h.state = StateActive
	h.log.Debug().Msg("protector installed")
}

// HandshakeFailed delivers the "handshake failed" half of the readiness
// notification. Writes buffered before the failure stay buffered; they are
// failed explicitly when the stage closes or detaches.
func (h *Handler) HandshakeFailed() {
	if h.state.Terminal() {
		h.log.Debug().Stringer("state", h.state).Msg("ignoring handshake failure signal")
		return
	}
	h.state = StateFailed
	h.log.Debug().Msg("handshake failed")
}

// Decode unprotects raw transport bytes, delivering plaintext frames to
// sink. Outside Active it fails with a NotReadyError; protector failures
// surface as ProtocolError and terminate the read side.
func (h *Handler) Decode(in []byte, sink FrameSink) error {
	if h.state != StateActive {
		return &NotReadyError{State: h.state}
	}
	if err := h.protector.Unprotect(in, sink, h.alloc); err != nil {
		return &ProtocolError{Err: err}
	}
	return nil
}

// Write buffers payload for the next Flush. An empty payload carries no
// wire bytes and resolves done successfully without enqueueing. Outside
// Active the write fails fast: done resolves with a NotReadyError and the
// same error is returned, so callers that ignore completions still see it.
func (h *Handler) Write(payload []byte, done *Completion) error {
	if done == nil {
		panic(ErrNilCompletion)
	}
	if h.state != StateActive {
		err := &NotReadyError{State: h.state}
		done.Resolve(err)
		return err
	}
	if len(payload) == 0 {
		done.Resolve(nil)
		return nil
	}
	h.pending.add(payload, done)
	return nil
}

// Flush drains the pending buffer through the protector and sends every
// emitted framed buffer downstream. The original write completions resolve
// together once all emitted frames are sent (or fail together on the first
// failure). In Closed or Failed state a flush is a logged no-op: shutdown
// and handshake failure legitimately race in-flight flush calls.
func (h *Handler) Flush() error {
	if h.state == StateClosed || h.state == StateFailed {
		h.log.Debug().Stringer("state", h.state).Msg("flush ignored in terminal state")
		return nil
	}
	if h.state != StateActive {
		return &NotReadyError{State: h.state}
	}
	// Check before building anything: a protector fed zero inputs may emit
	// a spurious empty framed buffer, and an aggregate record built here
	// would be orphaned.
	if h.pending.empty() {
		return nil
	}

	batch := h.pending.drain()
	agg := newAggregate(len(batch))
	plaintext := make([][]byte, 0, len(batch))
	for _, w := range batch {
		plaintext = append(plaintext, w.payload)
		agg.addOriginal(w.done)
	}

	err := h.protector.ProtectFlush(plaintext, func(framed []byte) {
		h.down.WriteFrame(framed, agg.subWrite())
	}, h.alloc)
	if err != nil {
		secErr := &SecurityError{Err: err}
		agg.fail(secErr)
		return secErr
	}

	// Emission is complete; declare the final sub-write count so the
	// record may resolve.
	agg.seal()
	return nil
}

// Close runs the flush-then-teardown sequence exactly once, however many
// shutdown-triggering signals arrive. A failure during the best-effort
// flush is swallowed: the connection is going away regardless.
func (h *Handler) Close() {
	if h.closing {
		return
	}
	h.closing = true
	if !h.pending.empty() {
		if err := h.Flush(); err != nil {
			h.log.Debug().Err(err).Msg("ignoring flush error before close")
		}
	}
	h.state = StateClosed
	h.release()
}

// Detach fails any writes still buffered after close with an explicit
// resource error. Call when the stage is removed from its pipeline.
func (h *Handler) Detach() {
	if n := h.pending.failAll(ErrWritesPending); n > 0 {
		h.log.Warn().Int("writes", n).Msg("failed writes pending on detach")
	}
}

// Abort fails every buffered write with cause. For pipeline-level faults
// that make the buffered writes undeliverable.
func (h *Handler) Abort(cause error) {
	h.pending.failAll(cause)
}

// release destroys the protector exactly once; the nil check plus nil
// assignment keeps it idempotent.
func (h *Handler) release() {
	if h.protector != nil {
		h.protector.Destroy()
		h.protector = nil
	}
}

// Lifecycle pass-throughs. Bind, Connect and Read forward unchanged;
// Disconnect, CloseTransport and Deregister interpose the close sequence.

func (h *Handler) Bind(addr net.Addr) error {
	return h.down.Bind(addr)
}

func (h *Handler) Connect(remote, local net.Addr) error {
	return h.down.Connect(remote, local)
}

func (h *Handler) Read() error {
	return h.down.Read()
}

func (h *Handler) Disconnect() error {
	h.Close()
	return h.down.Disconnect()
}

func (h *Handler) CloseTransport() error {
	h.Close()
	return h.down.CloseTransport()
}

func (h *Handler) Deregister() error {
	h.Close()
	return h.down.Deregister()
}
