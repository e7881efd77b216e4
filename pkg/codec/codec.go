// Package codec implements the length-prefixed, varint-framed serialization shim
// used by every wire structure in this repository (spec §4.1). It is deliberately
// hand-rolled: no third-party library implements this exact compact framing, the same
// way the dynamic-ssz buffer package in the retrieval pack hand-rolls its own byte
// offsets rather than reaching for reflection-based encoding.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors mirror the taxonomy in spec §7 "Malformed-input".
var (
	ErrShortBuffer     = errors.New("codec: short buffer")
	ErrOverflow        = errors.New("codec: overflow container")
	ErrTrailingData    = errors.New("codec: trailing data")
	ErrMalformedVarint = errors.New("codec: malformed varint")
)

// MalformedFieldError names the offending field, per spec §7.
type MalformedFieldError struct {
	Field string
	Err   error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("codec: malformed field %q: %v", e.Field, e.Err)
}

func (e *MalformedFieldError) Unwrap() error { return e.Err }

// Codec is implemented by every type that round-trips through this framework.
// Equal structures must produce byte-equal output (canonical encoding).
type Codec interface {
	Encode(enc *Encoder) error
	Decode(dec *Decoder) error
}

// Encoder is a sequential byte sink.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with a pre-sized backing buffer.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated encoded output.
func (e *Encoder) Bytes() []byte { return e.buf }

// PutUint8 appends a single byte.
func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

// PutUint32 appends a big-endian uint32.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutUint64 appends a big-endian uint64.
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutVarint appends v as a 1-5 byte LEB128-style varint (spec §4.1).
func (e *Encoder) PutVarint(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		e.buf = append(e.buf, b)
		if v == 0 {
			break
		}
	}
}

// PutBytesU16 appends a 2-byte length prefix followed by raw bytes (U16LenBytes, spec §6).
func (e *Encoder) PutBytesU16(b []byte) error {
	if len(b) > 0xffff {
		return fmt.Errorf("%w: U16LenBytes field length %d", ErrOverflow, len(b))
	}
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(b)))
	e.buf = append(e.buf, lb[:]...)
	e.buf = append(e.buf, b...)
	return nil
}

// PutBytesVarint appends a varint length prefix followed by raw bytes.
func (e *Encoder) PutBytesVarint(b []byte) {
	e.PutVarint(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// PutRaw appends bytes with no length prefix (used for fixed-width fields).
func (e *Encoder) PutRaw(b []byte) { e.buf = append(e.buf, b...) }

// Decoder is a sequential byte source.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential decoding.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// Done returns ErrTrailingData if unread bytes remain — call at the end of Decode to
// enforce that equal structures produce byte-equal, fully-consumed output.
func (d *Decoder) Done() error {
	if d.Remaining() != 0 {
		return ErrTrailingData
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// GetUint8 reads a single byte.
func (d *Decoder) GetUint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetUint32 reads a big-endian uint32.
func (d *Decoder) GetUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetUint64 reads a big-endian uint64.
func (d *Decoder) GetUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetVarint reads a 1-5 byte LEB128-style varint.
func (d *Decoder) GetVarint() (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := d.take(1)
		if err != nil {
			return 0, err
		}
		result |= uint32(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, ErrMalformedVarint
}

// GetBytesU16 reads a 2-byte-length-prefixed byte slice.
func (d *Decoder) GetBytesU16() ([]byte, error) {
	lb, err := d.take(2)
	if err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(lb))
	return d.take(n)
}

// GetBytesVarint reads a varint-length-prefixed byte slice.
func (d *Decoder) GetBytesVarint() ([]byte, error) {
	n, err := d.GetVarint()
	if err != nil {
		return nil, err
	}
	return d.take(int(n))
}

// GetRaw reads exactly n raw bytes.
func (d *Decoder) GetRaw(n int) ([]byte, error) {
	return d.take(n)
}

// Encode runs c.Encode against a fresh Encoder and returns the bytes.
func Encode(c Codec) ([]byte, error) {
	enc := NewEncoder(64)
	if err := c.Encode(enc); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// Decode fully consumes buf into c, erroring on trailing data.
func Decode(c Codec, buf []byte) error {
	dec := NewDecoder(buf)
	if err := c.Decode(dec); err != nil {
		return err
	}
	return dec.Done()
}
