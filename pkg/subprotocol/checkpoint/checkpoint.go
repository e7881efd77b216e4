// Package checkpoint implements the ASM's checkpoint subprotocol (spec §4.5):
// verification of signed checkpoint payloads and forwarding of withdrawal
// intents to the bridge subprotocol.
package checkpoint

import (
	"crypto/sha256"
	"fmt"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/xcrypto/schnorr"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// TxType enumerates the transaction shapes the checkpoint subprotocol accepts.
type TxType uint8

const (
	TxSignedCheckpoint TxType = iota
)

// Tip is the verified checkpoint tip tracked by this subprotocol.
type Tip struct {
	Epoch    xtypes.Epoch
	L1Height xtypes.Height
	L2Slot   xtypes.Slot
}

// precedes reports whether candidate is the tip's immediate successor: the
// epoch must advance by exactly 1 (spec "each checkpoint must advance the
// epoch by exactly 1"; a gap, e.g. tip epoch 1 to candidate epoch 5, is
// rejected just like a non-advance), while the L1 height must not decrease
// and the L2 slot must strictly increase.
func (t Tip) precedes(candidate Tip) bool {
	return candidate.Epoch == t.Epoch+1 && candidate.L1Height >= t.L1Height && candidate.L2Slot > t.L2Slot
}

// State is checkpoint's exported section of AnchorState. SequencerPubKey is
// held here too (rather than only in the core subprotocol) because the
// framework forbids one subprotocol reaching into another's state directly;
// rotation arrives via SequencerKeyRotatedMsg from the upgrade subprotocol.
type State struct {
	VerifiedTip     Tip
	SequencerPubKey *schnorr.PublicKey
}

// GenesisConfig seeds State at ASM genesis.
type GenesisConfig struct {
	SequencerPubKey []byte
}

// SequencerKeyRotatedMsg is broadcast by the upgrade subprotocol once a
// sequencer-key rotation enacts.
type SequencerKeyRotatedMsg struct {
	NewKey []byte
}

func (SequencerKeyRotatedMsg) DestinationId() xtypes.SubprotocolId { return xtypes.SubprotocolCheckpoint }

// SignedCheckpointTx is the parsed payload of a TxSignedCheckpoint transaction.
type SignedCheckpointTx struct {
	Tip               Tip
	SignedMessageHash [32]byte
	SequencerSig      []byte
	WithdrawalIntents []core.WithdrawalIntentMsg

	// RangeFromL1Height/RangeToL1Height bound the L1->L2 message range this
	// checkpoint attests to; RangeDigest is the rolling-hash fold of that
	// range's per-message commitments the checkpoint claims. The claim is
	// not trusted on its own: ProcessTxs re-folds the independently-fetched
	// aux manifest leaves for the same bounds and compares.
	RangeFromL1Height uint64
	RangeToL1Height   uint64
	RangeDigest       [32]byte
}

// Subprotocol implements subprotocol.Subprotocol for the checkpoint subprotocol.
type Subprotocol struct {
	state State
	parse func(txType TxType, auxData []byte) (SignedCheckpointTx, error)
}

// New constructs the checkpoint subprotocol from its genesis config.
func New(cfg GenesisConfig, parse func(txType TxType, auxData []byte) (SignedCheckpointTx, error)) (*Subprotocol, error) {
	pub, err := schnorr.PublicKeyFromBytes(cfg.SequencerPubKey)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: parse sequencer pubkey: %w", err)
	}
	return &Subprotocol{
		state: State{SequencerPubKey: pub},
		parse: parse,
	}, nil
}

func (s *Subprotocol) Id() xtypes.SubprotocolId { return xtypes.SubprotocolCheckpoint }

func (s *Subprotocol) State() State { return s.state }

// PreProcessTxs requests the manifest-leaf range each checkpoint tx claims to
// cover, so ProcessTxs can independently verify its rolling-hash range claim
// rather than trusting the tx's self-reported commitments.
func (s *Subprotocol) PreProcessTxs(txs []subprotocol.TaggedTx) []subprotocol.AuxRequest {
	reqs := make([]subprotocol.AuxRequest, 0, len(txs))
	for _, tx := range txs {
		parsed, err := s.parse(TxType(tx.TxType), tx.AuxData)
		if err != nil {
			continue
		}
		reqs = append(reqs, subprotocol.AuxRequest{
			Kind:         subprotocol.AuxRequestManifestLeafRange,
			FromL1Height: parsed.RangeFromL1Height,
			ToL1Height:   parsed.RangeToL1Height,
		})
	}
	return reqs
}

func (s *Subprotocol) ProcessTxs(txs []subprotocol.TaggedTx, aux []subprotocol.AuxResponse, currentL1Height xtypes.Height, relayer subprotocol.MsgRelayer) error {
	auxIdx := 0
	for _, tx := range txs {
		parsed, err := s.parse(TxType(tx.TxType), tx.AuxData)
		if err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("checkpoint: malformed tx %x: %v", tx.TxId, err))})
			continue
		}
		// PreProcessTxs requested one AuxRequestManifestLeafRange per
		// successfully-parsed tx, in the same order; consume the matching
		// response here.
		if auxIdx >= len(aux) {
			relayer.EmitLog(subprotocol.Log{Payload: []byte("checkpoint: missing range auxiliary data, rejected")})
			continue
		}
		rangeAux := aux[auxIdx]
		auxIdx++

		if err := s.state.SequencerPubKey.Verify(parsed.SequencerSig, parsed.SignedMessageHash); err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("checkpoint: bad sequencer signature: %v", err))})
			continue
		}
		if !s.state.VerifiedTip.precedes(parsed.Tip) {
			relayer.EmitLog(subprotocol.Log{Payload: []byte("checkpoint: tip did not advance by exactly one epoch, rejected")})
			continue
		}
		if xtypes.Height(parsed.RangeToL1Height) >= currentL1Height {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("checkpoint: range l1 height %d not strictly less than current block height %d, rejected", parsed.RangeToL1Height, currentL1Height))})
			continue
		}
		if got := foldManifestLeaves(parsed.RangeFromL1Height, parsed.RangeToL1Height, rangeAux.ManifestLeaves); got != parsed.RangeDigest {
			relayer.EmitLog(subprotocol.Log{Payload: []byte("checkpoint: rolling-hash range digest mismatch, rejected")})
			continue
		}
		s.state.VerifiedTip = parsed.Tip
		for _, intent := range parsed.WithdrawalIntents {
			relayer.RelayMsg(intent)
		}
	}
	return nil
}

// foldManifestLeaves re-derives the rolling-hash digest for a claimed range
// from the verified aux manifest leaves, each hashed down to its 32-byte
// commitment before folding.
func foldManifestLeaves(from, to uint64, leaves [][]byte) [32]byte {
	commitments := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		commitments[i] = sha256.Sum256(leaf)
	}
	return FoldRange(from, to, commitments)
}

// ProcessMsgs applies sequencer-key rotations forwarded by the upgrade
// subprotocol once they enact.
func (s *Subprotocol) ProcessMsgs(msgs []subprotocol.Msg, relayer subprotocol.MsgRelayer) error {
	for _, m := range msgs {
		rotated, ok := m.(SequencerKeyRotatedMsg)
		if !ok {
			continue
		}
		pub, err := schnorr.PublicKeyFromBytes(rotated.NewKey)
		if err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("checkpoint: bad rotated sequencer key: %v", err))})
			continue
		}
		s.state.SequencerPubKey = pub
	}
	return nil
}
