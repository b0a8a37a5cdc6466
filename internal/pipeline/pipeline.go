// Package pipeline composes the secure frame stage with an established
// network connection.
//
// Ownership boundary:
// - per-connection serial loop driving decode/write/flush/close
// - Downstream adapter over net.Conn
// - protector installation at connection start
//
// All methods on one Pipeline must be driven from a single goroutine; the
// stage underneath relies on that ordering discipline.
package pipeline

import (
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/framectl/internal/secframe"
)

var ErrConnEstablished = errors.New("pipeline: connection already established")

const defaultReadBufferBytes = 32 * 1024

// Config tunes one pipeline.
type Config struct {
	ReadBufferBytes int
}

// connDownstream adapts an established net.Conn to secframe.Downstream.
// Frame writes complete synchronously with the conn write result. Bind and
// Connect are meaningless on an accepted/dialed conn and fail explicitly.
type connDownstream struct {
	conn   net.Conn
	closed bool
}

func (d *connDownstream) WriteFrame(framed []byte, done *secframe.Completion) {
	_, err := d.conn.Write(framed)
	done.Resolve(err)
}

func (d *connDownstream) Bind(net.Addr) error         { return ErrConnEstablished }
func (d *connDownstream) Connect(_, _ net.Addr) error { return ErrConnEstablished }
func (d *connDownstream) Disconnect() error           { return d.closeConn() }
func (d *connDownstream) CloseTransport() error       { return d.closeConn() }
func (d *connDownstream) Deregister() error           { return nil }
func (d *connDownstream) Read() error                 { return nil }

func (d *connDownstream) closeConn() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.conn.Close()
}

// Pipeline drives one connection through the secure frame stage. The
// stage is consumed through its two capabilities: dec for the inbound
// path, wr for the outbound path; handler is kept for lifecycle only.
type Pipeline struct {
	handler *secframe.Handler
	dec     secframe.Decoder
	wr      secframe.Writer
	conn    net.Conn
	log     zerolog.Logger
	readBuf int
}

// New wraps conn with the stage and installs prot, making the session
// Active immediately. The pipeline owns prot and conn from here on.
func New(conn net.Conn, prot secframe.Protector, cfg Config, log zerolog.Logger) *Pipeline {
	readBuf := cfg.ReadBufferBytes
	if readBuf <= 0 {
		readBuf = defaultReadBufferBytes
	}
	h := secframe.NewHandler(&connDownstream{conn: conn}, nil, log)
	h.InstallProtector(prot)
	return &Pipeline{
		handler: h,
		dec:     h,
		wr:      h,
		conn:    conn,
		log:     log,
		readBuf: readBuf,
	}
}

// Send protects payload and writes the resulting frames to the connection.
// Conn sub-writes complete synchronously, so the write outcome is known
// when Flush returns.
func (p *Pipeline) Send(payload []byte) error {
	done := secframe.NewCompletion()
	if err := p.wr.Write(payload, done); err != nil {
		return err
	}
	if err := p.wr.Flush(); err != nil {
		return err
	}
	if done.Done() {
		return done.Err()
	}
	return nil
}

// Serve reads the connection until EOF or failure, decoding inbound bytes
// and passing each plaintext frame to handle. A non-nil error from handle
// stops the loop and is returned. The stage and conn are torn down on exit.
func (p *Pipeline) Serve(handle func(frame []byte) error) error {
	defer func() {
		if err := p.Close(); err != nil {
			p.log.Debug().Err(err).Msg("pipeline close")
		}
	}()

	buf := make([]byte, p.readBuf)
	var frames [][]byte
	sink := secframe.FrameSinkFunc(func(frame []byte) {
		frames = append(frames, frame)
	})

	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			frames = frames[:0]
			if derr := p.dec.Decode(buf[:n], sink); derr != nil {
				p.log.Warn().Err(derr).Msg("inbound decode failed")
				return derr
			}
			for _, frame := range frames {
				if herr := handle(frame); herr != nil {
					return herr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Close runs the stage close sequence and releases the connection. Safe to
// call more than once; writes still buffered after close fail explicitly.
func (p *Pipeline) Close() error {
	err := p.handler.CloseTransport()
	p.handler.Detach()
	return err
}
