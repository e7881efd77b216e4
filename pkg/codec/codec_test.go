package codec

import (
	"bytes"
	"testing"
)

// sample is a minimal Codec implementation used to exercise round-tripping without
// pulling in the wire package's real structures.
type sample struct {
	Tag   uint8
	Count uint32
	Data  []byte
}

func (s *sample) Encode(enc *Encoder) error {
	enc.PutUint8(s.Tag)
	enc.PutVarint(s.Count)
	enc.PutBytesVarint(s.Data)
	return nil
}

func (s *sample) Decode(dec *Decoder) error {
	tag, err := dec.GetUint8()
	if err != nil {
		return err
	}
	count, err := dec.GetVarint()
	if err != nil {
		return err
	}
	data, err := dec.GetBytesVarint()
	if err != nil {
		return err
	}
	s.Tag, s.Count, s.Data = tag, count, data
	return nil
}

func TestRoundTrip(t *testing.T) {
	cases := []*sample{
		{Tag: 0, Count: 0, Data: nil},
		{Tag: 7, Count: 1, Data: []byte("x")},
		{Tag: 255, Count: 1 << 20, Data: bytes.Repeat([]byte{0xab}, 300)},
	}
	for i, want := range cases {
		b, err := Encode(want)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got := &sample{}
		if err := Decode(got, b); err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if got.Tag != want.Tag || got.Count != want.Count || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("case %d: round trip mismatch: got %+v want %+v", i, got, want)
		}

		b2, err := Encode(want)
		if err != nil || !bytes.Equal(b, b2) {
			t.Fatalf("case %d: encoding is not canonical/deterministic", i)
		}
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	s := &sample{}
	if err := Decode(s, []byte{1, 2}); err == nil {
		t.Fatalf("expected error decoding a truncated buffer")
	}
}

func TestDecodeTrailingData(t *testing.T) {
	want := &sample{Tag: 1, Count: 1, Data: []byte("y")}
	b, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b = append(b, 0xff)
	got := &sample{}
	if err := Decode(got, b); err != ErrTrailingData {
		t.Fatalf("expected ErrTrailingData, got %v", err)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16383, 16384, 1<<32 - 1}
	for _, v := range values {
		enc := NewEncoder(8)
		enc.PutVarint(v)
		dec := NewDecoder(enc.Bytes())
		got, err := dec.GetVarint()
		if err != nil {
			t.Fatalf("value %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("value %d: got %d", v, got)
		}
		if err := dec.Done(); err != nil {
			t.Fatalf("value %d: trailing bytes: %v", v, err)
		}
	}
}

func TestVarVecRoundTrip(t *testing.T) {
	want := []*sample{
		{Tag: 1, Count: 1, Data: []byte("a")},
		{Tag: 2, Count: 2, Data: []byte("bb")},
	}
	enc := NewEncoder(32)
	if err := EncodeVarVec[*sample](enc, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := NewDecoder(enc.Bytes())
	got, err := DecodeVarVec(dec, func() *sample { return &sample{} })
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Tag != want[i].Tag || !bytes.Equal(got[i].Data, want[i].Data) {
			t.Fatalf("element %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestVarVecOverflowRejected(t *testing.T) {
	enc := NewEncoder(8)
	enc.PutVarint(MaxVarVecLen + 1)
	dec := NewDecoder(enc.Bytes())
	if _, err := DecodeVarVec(dec, func() *sample { return &sample{} }); err == nil {
		t.Fatalf("expected overflow error for an oversized vec length")
	}
}
