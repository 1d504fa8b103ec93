// Package borsh wraps the Borsh codec of github.com/gagliardetto/binary with
// sticky errors, so the portal program layouts read as a flat list of fields.
package borsh

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// ErrShortBuffer is returned when decoding runs past the end of the input
var ErrShortBuffer = errors.New("borsh: unexpected end of input")

// Writer appends Borsh encoded values to a buffer. The first error sticks.
type Writer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

// NewWriter creates an empty writer
func NewWriter() *Writer {
	w := &Writer{}
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

// Bytes returns the encoded buffer
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Err returns the first encoding error
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *Writer) WriteU8(v uint8) {
	w.fail(w.enc.WriteUint8(v))
}

func (w *Writer) WriteBool(v bool) {
	w.fail(w.enc.WriteBool(v))
}

func (w *Writer) WriteU32(v uint32) {
	w.fail(w.enc.WriteUint32(v, bin.LE))
}

func (w *Writer) WriteU64(v uint64) {
	w.fail(w.enc.WriteUint64(v, bin.LE))
}

func (w *Writer) WriteI64(v int64) {
	w.fail(w.enc.WriteInt64(v, bin.LE))
}

// WriteFixed appends b without a length prefix
func (w *Writer) WriteFixed(b []byte) {
	w.fail(w.enc.WriteBytes(b, false))
}

// WriteBytes appends a Vec<u8>: u32 length followed by the bytes
func (w *Writer) WriteBytes(b []byte) {
	w.fail(w.enc.WriteBytes(b, true))
}

// WriteLen appends a vector length prefix
func (w *Writer) WriteLen(n int) {
	w.fail(w.enc.WriteLength(n))
}

// Reader decodes Borsh values. The first error sticks and every later read
// returns zero values, so callers check Err once at the end.
type Reader struct {
	dec *bin.Decoder
	err error
}

// NewReader creates a reader over b
func NewReader(b []byte) *Reader {
	return &Reader{dec: bin.NewBorshDecoder(b)}
}

// Err returns the first decoding error
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return r.dec.Remaining()
}

// need records a short buffer error unless n bytes are left
func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, r.Remaining())
		return false
	}
	return true
}

func (r *Reader) fail(err error) {
	if r.err == nil && err != nil {
		r.err = fmt.Errorf("borsh: %w", err)
	}
}

func (r *Reader) ReadU8() uint8 {
	if !r.need(1) {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.fail(err)
	return v
}

// ReadBool rejects bytes other than 0 and 1
func (r *Reader) ReadBool() bool {
	v := r.ReadU8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("borsh: invalid bool value %d", v)
	}
	return v == 1
}

func (r *Reader) ReadU32() uint32 {
	if !r.need(4) {
		return 0
	}
	v, err := r.dec.ReadUint32(bin.LE)
	r.fail(err)
	return v
}

func (r *Reader) ReadU64() uint64 {
	if !r.need(8) {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.fail(err)
	return v
}

func (r *Reader) ReadI64() int64 {
	if !r.need(8) {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	r.fail(err)
	return v
}

// ReadFixed reads exactly n bytes
func (r *Reader) ReadFixed(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(err)
		return nil
	}
	return append([]byte(nil), b...)
}

// ReadBytes reads a Vec<u8>
func (r *Reader) ReadBytes() []byte {
	n := r.ReadLen()
	return r.ReadFixed(n)
}

// ReadLen reads a vector length prefix and rejects lengths longer than the input
func (r *Reader) ReadLen() int {
	n := int(r.ReadU32())
	if r.err == nil && n > r.Remaining() {
		r.err = fmt.Errorf("%w: vector length %d exceeds remaining %d bytes", ErrShortBuffer, n, r.Remaining())
		return 0
	}
	return n
}

// Finish returns an error if decoding failed or input bytes are left over
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.Remaining() != 0 {
		return fmt.Errorf("borsh: %d trailing bytes", r.Remaining())
	}
	return nil
}
