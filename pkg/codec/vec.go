package codec

import "fmt"

// MaxVarVecLen bounds the element count of a VarVec so a malformed or adversarial
// length field cannot trigger an oversized allocation before the per-element decode
// has a chance to fail (spec §7 "overflow container").
const MaxVarVecLen = 1 << 20

// EncodeVarVec writes a varint element count followed by each element's own
// encoding, in order. This is the generic container framing used by every
// variable-length list field in the wire structures (spec §4.1).
func EncodeVarVec[T Codec](enc *Encoder, items []T) error {
	enc.PutVarint(uint32(len(items)))
	for i := range items {
		if err := items[i].Encode(enc); err != nil {
			return fmt.Errorf("codec: vec element %d: %w", i, err)
		}
	}
	return nil
}

// DecodeVarVec reads a varint element count and decodes that many elements using
// newItem to construct each one.
func DecodeVarVec[T Codec](dec *Decoder, newItem func() T) ([]T, error) {
	n, err := dec.GetVarint()
	if err != nil {
		return nil, err
	}
	if n > MaxVarVecLen {
		return nil, fmt.Errorf("%w: vec length %d", ErrOverflow, n)
	}
	items := make([]T, n)
	for i := range items {
		item := newItem()
		if err := item.Decode(dec); err != nil {
			return nil, fmt.Errorf("codec: vec element %d: %w", i, err)
		}
		items[i] = item
	}
	return items, nil
}

// EncodeBytesVec writes a varint count followed by each element framed as a
// varint-length-prefixed byte string — used for lists of raw blobs that don't
// implement Codec themselves (e.g. aux-data fields).
func EncodeBytesVec(enc *Encoder, items [][]byte) {
	enc.PutVarint(uint32(len(items)))
	for _, b := range items {
		enc.PutBytesVarint(b)
	}
}

// DecodeBytesVec is the inverse of EncodeBytesVec.
func DecodeBytesVec(dec *Decoder) ([][]byte, error) {
	n, err := dec.GetVarint()
	if err != nil {
		return nil, err
	}
	if n > MaxVarVecLen {
		return nil, fmt.Errorf("%w: vec length %d", ErrOverflow, n)
	}
	items := make([][]byte, n)
	for i := range items {
		b, err := dec.GetBytesVarint()
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	return items, nil
}
