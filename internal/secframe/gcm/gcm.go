// Package gcm implements a secframe.Protector over AES-GCM sealed records.
//
// Wire format, per record:
//
//	[ciphertext_len:4B big-endian][ciphertext]
//
// ciphertext is one AES-GCM sealed chunk (plaintext + 16-byte tag). Nonces
// are counter-derived per direction and never travel on the wire: byte 0
// carries the direction, the last 8 bytes a big-endian record sequence.
// Both peers must agree on who is the client.
package gcm

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/framectl/internal/secframe"
)

const (
	headerLen = 4
	nonceLen  = 12

	dirClientToServer byte = 0x01
	dirServerToClient byte = 0x02
)

var (
	ErrKeySize        = errors.New("gcm: invalid key size")
	ErrRecordTooLarge = errors.New("gcm: record exceeds limit")
	ErrShortRecord    = errors.New("gcm: record shorter than tag")
	ErrDestroyed      = errors.New("gcm: protector destroyed")
)

// Limits constrains record sizes on both directions.
type Limits struct {
	// MaxPlaintextPerRecord caps how much plaintext one outbound record
	// carries; a flush batch is merged and split into records of at most
	// this size.
	MaxPlaintextPerRecord int
	// MaxRecordBytes caps the ciphertext length accepted on decode.
	MaxRecordBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPlaintextPerRecord: 16 * 1024,
		MaxRecordBytes:        64 * 1024,
	}
}

// Protector seals and opens length-prefixed AES-GCM records. Partial
// inbound records are buffered across Unprotect calls.
type Protector struct {
	aead      cipher.AEAD
	limits    Limits
	sendDir   byte
	recvDir   byte
	sendSeq   uint64
	recvSeq   uint64
	inbuf     []byte
	key       []byte
	destroyed bool
}

// New builds a protector from a 16-, 24- or 32-byte AES key. client selects
// the nonce direction space; peers must disagree on it.
func New(key []byte, client bool, limits Limits) (*Protector, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(key))
	}
	if limits.MaxPlaintextPerRecord <= 0 {
		limits.MaxPlaintextPerRecord = DefaultLimits().MaxPlaintextPerRecord
	}
	if limits.MaxRecordBytes <= 0 {
		limits.MaxRecordBytes = DefaultLimits().MaxRecordBytes
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	p := &Protector{
		aead:    aead,
		limits:  limits,
		sendDir: dirClientToServer,
		recvDir: dirServerToClient,
		key:     append([]byte(nil), key...),
	}
	if !client {
		p.sendDir, p.recvDir = p.recvDir, p.sendDir
	}
	return p, nil
}

func (p *Protector) nonce(dir byte, seq uint64) [nonceLen]byte {
	var n [nonceLen]byte
	n[0] = dir
	binary.BigEndian.PutUint64(n[4:], seq)
	return n
}

// Unprotect appends in to the carry buffer and opens every complete record,
// delivering each plaintext to sink. A short final record stays buffered
// for the next call. Any failure is fatal: no further input may follow.
func (p *Protector) Unprotect(in []byte, sink secframe.FrameSink, alloc secframe.Allocator) error {
	if p.destroyed {
		return ErrDestroyed
	}
	p.inbuf = append(p.inbuf, in...)

	off := 0
	for {
		if len(p.inbuf)-off < headerLen {
			break
		}
		ctLen := int(binary.BigEndian.Uint32(p.inbuf[off : off+headerLen]))
		if ctLen > p.limits.MaxRecordBytes {
			return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, ctLen)
		}
		if ctLen < p.aead.Overhead() {
			return fmt.Errorf("%w: %d bytes", ErrShortRecord, ctLen)
		}
		if len(p.inbuf)-off-headerLen < ctLen {
			break
		}
		ct := p.inbuf[off+headerLen : off+headerLen+ctLen]

		nonce := p.nonce(p.recvDir, p.recvSeq)
		out := alloc.Get(ctLen - p.aead.Overhead())
		plain, err := p.aead.Open(out[:0], nonce[:], ct, nil)
		if err != nil {
			alloc.Put(out)
			return fmt.Errorf("gcm: open record %d: %w", p.recvSeq, err)
		}
		p.recvSeq++
		off += headerLen + ctLen
		sink.Frame(plain)
	}

	p.inbuf = append(p.inbuf[:0], p.inbuf[off:]...)
	return nil
}

// ProtectFlush merges the batch into records of at most
// MaxPlaintextPerRecord bytes and emits each sealed record. Payload
// boundaries do not survive framing; record count may differ from payload
// count in both directions. An all-empty batch emits nothing.
func (p *Protector) ProtectFlush(plaintext [][]byte, emit func(framed []byte), alloc secframe.Allocator) error {
	if p.destroyed {
		return ErrDestroyed
	}

	chunk := make([]byte, 0, p.limits.MaxPlaintextPerRecord)
	seal := func() {
		ctLen := len(chunk) + p.aead.Overhead()
		record := alloc.Get(headerLen + ctLen)
		binary.BigEndian.PutUint32(record[:headerLen], uint32(ctLen))
		nonce := p.nonce(p.sendDir, p.sendSeq)
		p.aead.Seal(record[headerLen:headerLen], nonce[:], chunk, nil)
		p.sendSeq++
		emit(record)
		chunk = chunk[:0]
	}

	for _, payload := range plaintext {
		for len(payload) > 0 {
			space := p.limits.MaxPlaintextPerRecord - len(chunk)
			n := min(space, len(payload))
			chunk = append(chunk, payload[:n]...)
			payload = payload[n:]
			if len(chunk) == p.limits.MaxPlaintextPerRecord {
				seal()
			}
		}
	}
	if len(chunk) > 0 {
		seal()
	}
	return nil
}

// Destroy zeroes key material. Idempotent via the destroyed flag; later
// protect/unprotect calls fail with ErrDestroyed.
func (p *Protector) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
	p.inbuf = nil
	p.aead = nil
}
