// Package wire implements the bit-exact OL DA payload encoding (spec §6
// "Wire format for OL DA payload"). It is the only package allowed to know
// the exact byte framing of chainstate.OLStateDiff; pkg/chainstate stays
// codec-free and takes an encodedSize callback from here (see
// chainstate.Accumulator.Seal).
package wire

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/chainstate"
	"github.com/strataorch/orchestration/pkg/codec"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// OLDaPayloadV1Tag is the single supported payload version (spec §6
// "tag: u8 (=1)").
const OLDaPayloadV1Tag = 1

// ErrUnsupportedTag is returned when decoding a payload whose version tag
// this package does not recognize.
var ErrUnsupportedTag = fmt.Errorf("wire: unsupported OLDaPayload tag")

// OLDaPayloadV1 is the full bit-exact envelope: a version tag, the state
// diff, and the output logs (spec §6).
//
// Open question resolved here: spec §6 lists `output_logs` as a section of
// OLDaPayloadV1 separate from StateDiff, while chainstate.OLStateDiff (built
// earlier in this repo) already carries OutputLogs as one of its own fields
// alongside InboxBuffer. This package treats chainstate.OLStateDiff as the
// single source of truth for both the ledger diff and the output logs, and
// encodes OutputLogs as a fourth VarVec inside the StateDiff section (after
// new_accounts, existing, and inbox_buffer) rather than duplicating it at
// the top level — there is exactly one OutputLogs section on the wire, just
// nested one level deeper than spec §6's grammar sketch shows.
type OLDaPayloadV1 struct {
	StateDiff chainstate.OLStateDiff
}

// Encode serializes p per spec §6's OLDaPayloadV1 grammar.
func (p *OLDaPayloadV1) Encode(enc *codec.Encoder) error {
	enc.PutUint8(OLDaPayloadV1Tag)

	body := codec.NewEncoder(128)
	if err := encodeOLStateDiff(body, &p.StateDiff); err != nil {
		return err
	}
	bodyBytes := body.Bytes()
	enc.PutUint32(uint32(len(bodyBytes)))
	enc.PutRaw(bodyBytes)
	return nil
}

// Decode parses p from dec, per Encode's framing.
func (p *OLDaPayloadV1) Decode(dec *codec.Decoder) error {
	tag, err := dec.GetUint8()
	if err != nil {
		return err
	}
	if tag != OLDaPayloadV1Tag {
		return fmt.Errorf("%w: %d", ErrUnsupportedTag, tag)
	}

	n, err := dec.GetUint32()
	if err != nil {
		return err
	}
	body, err := dec.GetRaw(int(n))
	if err != nil {
		return err
	}

	bodyDec := codec.NewDecoder(body)
	diff, err := decodeOLStateDiff(bodyDec)
	if err != nil {
		return err
	}
	if err := bodyDec.Done(); err != nil {
		return err
	}
	p.StateDiff = *diff
	return nil
}

// EncodeOLDaPayloadV1 wraps diff in an OLDaPayloadV1 and serializes it.
func EncodeOLDaPayloadV1(diff *chainstate.OLStateDiff) ([]byte, error) {
	p := &OLDaPayloadV1{StateDiff: *diff}
	return codec.Encode(p)
}

// DecodeOLDaPayloadV1 is the inverse of EncodeOLDaPayloadV1.
func DecodeOLDaPayloadV1(buf []byte) (*chainstate.OLStateDiff, error) {
	var p OLDaPayloadV1
	if err := codec.Decode(&p, buf); err != nil {
		return nil, err
	}
	return &p.StateDiff, nil
}

// EncodedSize reports the exact wire length of diff once framed as an
// OLDaPayloadV1 — the encodedSize callback chainstate.Accumulator.Seal takes
// (spec §4.7 "bounded by a configured max-DA-size").
func EncodedSize(diff *chainstate.OLStateDiff) (int, error) {
	b, err := EncodeOLDaPayloadV1(diff)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func encodeOLStateDiff(enc *codec.Encoder, diff *chainstate.OLStateDiff) error {
	encodeGlobalStateDiff(enc, &diff.Global)

	enc.PutUint32(uint32(len(diff.Ledger.NewAccounts)))
	for _, a := range diff.Ledger.NewAccounts {
		encodeNewAccountEntry(enc, a)
	}

	enc.PutUint32(uint32(len(diff.Ledger.Existing)))
	for _, a := range diff.Ledger.Existing {
		encodeAccountDiffEntry(enc, a)
	}

	enc.PutUint32(uint32(len(diff.InboxBuffer)))
	for _, m := range diff.InboxBuffer {
		if err := encodeDaMessageEntry(enc, m); err != nil {
			return err
		}
	}

	enc.PutUint32(uint32(len(diff.OutputLogs)))
	for _, l := range diff.OutputLogs {
		if err := encodeOLLog(enc, l); err != nil {
			return err
		}
	}
	return nil
}

func decodeOLStateDiff(dec *codec.Decoder) (*chainstate.OLStateDiff, error) {
	global, err := decodeGlobalStateDiff(dec)
	if err != nil {
		return nil, err
	}

	newCount, err := dec.GetUint32()
	if err != nil {
		return nil, err
	}
	newAccounts := make([]chainstate.NewAccountEntry, newCount)
	for i := range newAccounts {
		a, err := decodeNewAccountEntry(dec)
		if err != nil {
			return nil, err
		}
		newAccounts[i] = a
	}

	existingCount, err := dec.GetUint32()
	if err != nil {
		return nil, err
	}
	existing := make([]chainstate.AccountDiffEntry, existingCount)
	for i := range existing {
		a, err := decodeAccountDiffEntry(dec)
		if err != nil {
			return nil, err
		}
		existing[i] = a
	}

	inboxCount, err := dec.GetUint32()
	if err != nil {
		return nil, err
	}
	inbox := make([]chainstate.DaMessageEntry, inboxCount)
	for i := range inbox {
		m, err := decodeDaMessageEntry(dec)
		if err != nil {
			return nil, err
		}
		inbox[i] = m
	}

	logCount, err := dec.GetUint32()
	if err != nil {
		return nil, err
	}
	logs := make([]chainstate.OLLog, logCount)
	for i := range logs {
		l, err := decodeOLLog(dec)
		if err != nil {
			return nil, err
		}
		logs[i] = l
	}

	return &chainstate.OLStateDiff{
		Global:      *global,
		Ledger:      chainstate.LedgerDiff{NewAccounts: newAccounts, Existing: existing},
		InboxBuffer: inbox,
		OutputLogs:  logs,
	}, nil
}

// encodeGlobalStateDiff encodes each register as a presence flag followed by
// its value when present (spec §4.7 "GlobalStateDiff as a compound of
// DaRegisters over epochal scalars" — only changed registers occupy space on
// the wire, consistent with write-batch semantics where an unset field did
// not change).
func encodeGlobalStateDiff(enc *codec.Encoder, g *chainstate.GlobalStateDiff) {
	if g.CurEpoch != nil && g.CurEpoch.Changed() {
		enc.PutUint8(1)
		enc.PutUint32(uint32(g.CurEpoch.Get()))
	} else {
		enc.PutUint8(0)
	}

	if g.LastL1Block != nil && g.LastL1Block.Changed() {
		enc.PutUint8(1)
		v := g.LastL1Block.Get()
		enc.PutRaw(v[:])
	} else {
		enc.PutUint8(0)
	}
}

func decodeGlobalStateDiff(dec *codec.Decoder) (*chainstate.GlobalStateDiff, error) {
	var curEpoch xtypes.Epoch
	curFlag, err := dec.GetUint8()
	if err != nil {
		return nil, err
	}
	if curFlag == 1 {
		v, err := dec.GetUint32()
		if err != nil {
			return nil, err
		}
		curEpoch = xtypes.Epoch(v)
	}

	var lastL1 xtypes.Hash
	lastFlag, err := dec.GetUint8()
	if err != nil {
		return nil, err
	}
	if lastFlag == 1 {
		b, err := dec.GetRaw(32)
		if err != nil {
			return nil, err
		}
		copy(lastL1[:], b)
	}

	return &chainstate.GlobalStateDiff{
		CurEpoch:    chainstate.NewDaRegister(curEpoch),
		LastL1Block: chainstate.NewDaRegister(lastL1),
	}, nil
}

func encodeNewAccountEntry(enc *codec.Encoder, a chainstate.NewAccountEntry) {
	enc.PutUint64(uint64(a.Serial))
	enc.PutRaw(a.Id[:])
	enc.PutUint64(uint64(a.Balance))
}

func decodeNewAccountEntry(dec *codec.Decoder) (chainstate.NewAccountEntry, error) {
	serial, err := dec.GetUint64()
	if err != nil {
		return chainstate.NewAccountEntry{}, err
	}
	idBytes, err := dec.GetRaw(32)
	if err != nil {
		return chainstate.NewAccountEntry{}, err
	}
	var id xtypes.AccountId
	copy(id[:], idBytes)
	balance, err := dec.GetUint64()
	if err != nil {
		return chainstate.NewAccountEntry{}, err
	}
	return chainstate.NewAccountEntry{
		Serial:  xtypes.AccountSerial(serial),
		Id:      id,
		Balance: xtypes.Amount(balance),
	}, nil
}

// encodeAccountDiffEntry encodes each optional field as a presence flag
// followed by its value, matching AccountDiffEntry's "unset pointer fields
// did not change" semantics (spec §4.7).
func encodeAccountDiffEntry(enc *codec.Encoder, a chainstate.AccountDiffEntry) {
	enc.PutUint64(uint64(a.Serial))

	if a.Balance != nil {
		enc.PutUint8(1)
		enc.PutUint64(uint64(*a.Balance))
	} else {
		enc.PutUint8(0)
	}

	enc.PutBytesVarint(a.VK)

	if a.SeqNo != nil {
		enc.PutUint8(1)
		enc.PutUint64(*a.SeqNo)
	} else {
		enc.PutUint8(0)
	}

	enc.PutBytesVarint(a.ProofState)
}

func decodeAccountDiffEntry(dec *codec.Decoder) (chainstate.AccountDiffEntry, error) {
	serial, err := dec.GetUint64()
	if err != nil {
		return chainstate.AccountDiffEntry{}, err
	}

	out := chainstate.AccountDiffEntry{Serial: xtypes.AccountSerial(serial)}

	balFlag, err := dec.GetUint8()
	if err != nil {
		return chainstate.AccountDiffEntry{}, err
	}
	if balFlag == 1 {
		v, err := dec.GetUint64()
		if err != nil {
			return chainstate.AccountDiffEntry{}, err
		}
		amt := xtypes.Amount(v)
		out.Balance = &amt
	}

	vk, err := dec.GetBytesVarint()
	if err != nil {
		return chainstate.AccountDiffEntry{}, err
	}
	if len(vk) > 0 {
		out.VK = vk
	}

	seqFlag, err := dec.GetUint8()
	if err != nil {
		return chainstate.AccountDiffEntry{}, err
	}
	if seqFlag == 1 {
		v, err := dec.GetUint64()
		if err != nil {
			return chainstate.AccountDiffEntry{}, err
		}
		out.SeqNo = &v
	}

	proofState, err := dec.GetBytesVarint()
	if err != nil {
		return chainstate.AccountDiffEntry{}, err
	}
	if len(proofState) > 0 {
		out.ProofState = proofState
	}

	return out, nil
}

func encodeDaMessageEntry(enc *codec.Encoder, m chainstate.DaMessageEntry) error {
	enc.PutRaw(m.Account[:])
	enc.PutUint64(m.MsgIdx)
	return enc.PutBytesU16(m.Payload)
}

func decodeDaMessageEntry(dec *codec.Decoder) (chainstate.DaMessageEntry, error) {
	accBytes, err := dec.GetRaw(32)
	if err != nil {
		return chainstate.DaMessageEntry{}, err
	}
	var acc xtypes.AccountId
	copy(acc[:], accBytes)

	msgIdx, err := dec.GetUint64()
	if err != nil {
		return chainstate.DaMessageEntry{}, err
	}
	payload, err := dec.GetBytesU16()
	if err != nil {
		return chainstate.DaMessageEntry{}, err
	}
	return chainstate.DaMessageEntry{Account: acc, MsgIdx: msgIdx, Payload: payload}, nil
}

func encodeOLLog(enc *codec.Encoder, l chainstate.OLLog) error {
	enc.PutVarint(uint32(l.AccountSerial))
	return enc.PutBytesU16(l.Payload)
}

func decodeOLLog(dec *codec.Decoder) (chainstate.OLLog, error) {
	serial, err := dec.GetVarint()
	if err != nil {
		return chainstate.OLLog{}, err
	}
	payload, err := dec.GetBytesU16()
	if err != nil {
		return chainstate.OLLog{}, err
	}
	return chainstate.OLLog{AccountSerial: xtypes.AccountSerial(serial), Payload: payload}, nil
}
