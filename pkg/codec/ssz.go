package codec

import (
	"fmt"

	ssz "github.com/ferranbt/fastssz"
)

// SSZValue is satisfied by any checkpoint-payload type generated against
// github.com/ferranbt/fastssz. Checkpoint payloads must match the external SSZ
// schema bit-for-bit (spec §4.5), so this package never re-derives their layout —
// it only frames the already-SSZ-encoded bytes as an opaque, length-prefixed blob
// alongside everything else on the wire.
type SSZValue interface {
	ssz.Marshaler
	ssz.Unmarshaler
}

// EncodeSSZBlob marshals v with fastssz and frames the result with a varint length
// prefix so it composes with the rest of the codec's sequential framing.
func EncodeSSZBlob(enc *Encoder, v SSZValue) error {
	b, err := v.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("codec: ssz marshal: %w", err)
	}
	enc.PutBytesVarint(b)
	return nil
}

// DecodeSSZBlob reads a varint-length-prefixed blob and unmarshals it into v via
// fastssz.
func DecodeSSZBlob(dec *Decoder, v SSZValue) error {
	b, err := dec.GetBytesVarint()
	if err != nil {
		return err
	}
	if err := v.UnmarshalSSZ(b); err != nil {
		return fmt.Errorf("codec: ssz unmarshal: %w", err)
	}
	return nil
}

// OpaqueBlob is a raw, codec-framed byte string for wire fields that this system
// treats as opaque — Borsh/rkyv payloads produced by other components, proof
// artifacts, etc. (spec §4.1 "opaque blob").
type OpaqueBlob []byte

func (b OpaqueBlob) Encode(enc *Encoder) error {
	enc.PutBytesVarint(b)
	return nil
}

func (b *OpaqueBlob) Decode(dec *Decoder) error {
	raw, err := dec.GetBytesVarint()
	if err != nil {
		return err
	}
	*b = append(OpaqueBlob(nil), raw...)
	return nil
}
