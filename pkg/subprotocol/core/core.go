// Package core implements the ASM's core subprotocol (spec §4.5): it holds the
// checkpoint-verifying key, the last verified epoch summary, and the sequencer
// public key, and forwards verified withdrawal intents to the bridge
// subprotocol as cross-subprotocol messages.
package core

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/xcrypto/schnorr"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// TxType enumerates the transaction shapes the core subprotocol accepts.
type TxType uint8

const (
	TxCheckpointProof TxType = iota
)

// EpochSummary is the last-verified checkpoint's epoch/height/state-root triple.
type EpochSummary struct {
	Epoch       xtypes.Epoch
	L1Height    xtypes.Height
	OLStateRoot xtypes.Hash
}

// WithdrawalIntentMsg is relayed to the bridge subprotocol once a checkpoint
// proof verifies a withdrawal intent (spec §4.5 "Core ... emitting
// cross-subprotocol messages carrying withdrawal intents").
type WithdrawalIntentMsg struct {
	AccountId xtypes.AccountId
	Amount    xtypes.Amount
	DestScript []byte
}

func (WithdrawalIntentMsg) DestinationId() xtypes.SubprotocolId { return xtypes.SubprotocolBridge }

// State is core's exported section of AnchorState.
type State struct {
	CheckpointVerifyingKey []byte
	SequencerPubKey        *schnorr.PublicKey
	LastVerified           EpochSummary
}

// GenesisConfig seeds State at ASM genesis.
type GenesisConfig struct {
	CheckpointVerifyingKey []byte
	SequencerPubKey        []byte
}

// CheckpointProofTx is the parsed payload of a TxCheckpointProof transaction:
// a STF proof for the epoch transition plus the withdrawal intents it attests.
type CheckpointProofTx struct {
	Summary            EpochSummary
	Proof              []byte
	WithdrawalIntents  []WithdrawalIntentMsg
}

// Subprotocol implements subprotocol.Subprotocol for the core subprotocol. It
// holds no auxiliary-data requirements of its own: checkpoint proofs are
// self-contained relative to the verifying key already in State.
type Subprotocol struct {
	state State

	// verifyProof abstracts the actual STF-proof verification backend (a PaaS
	// client or an in-process verifier) so this package stays free of a
	// dependency on the proving stack.
	verifyProof func(verifyingKey []byte, tx CheckpointProofTx) error

	parse func(txType TxType, auxData []byte) (CheckpointProofTx, error)
}

// New constructs the core subprotocol from its genesis config.
func New(cfg GenesisConfig, verifyProof func(verifyingKey []byte, tx CheckpointProofTx) error, parse func(txType TxType, auxData []byte) (CheckpointProofTx, error)) (*Subprotocol, error) {
	pub, err := schnorr.PublicKeyFromBytes(cfg.SequencerPubKey)
	if err != nil {
		return nil, fmt.Errorf("core: parse sequencer pubkey: %w", err)
	}
	return &Subprotocol{
		state: State{
			CheckpointVerifyingKey: cfg.CheckpointVerifyingKey,
			SequencerPubKey:        pub,
		},
		verifyProof: verifyProof,
		parse:       parse,
	}, nil
}

func (s *Subprotocol) Id() xtypes.SubprotocolId { return xtypes.SubprotocolCore }

func (s *Subprotocol) State() State { return s.state }

// PreProcessTxs requests no auxiliary data: checkpoint proofs verify directly
// against the held verifying key.
func (s *Subprotocol) PreProcessTxs(txs []subprotocol.TaggedTx) []subprotocol.AuxRequest { return nil }

func (s *Subprotocol) ProcessTxs(txs []subprotocol.TaggedTx, aux []subprotocol.AuxResponse, currentL1Height xtypes.Height, relayer subprotocol.MsgRelayer) error {
	for _, tx := range txs {
		parsed, err := s.parse(TxType(tx.TxType), tx.AuxData)
		if err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("core: malformed tx %x: %v", tx.TxId, err))})
			continue
		}
		if parsed.Summary.Epoch != s.state.LastVerified.Epoch+1 {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("core: checkpoint epoch %d does not advance by exactly 1 from %d, rejected", parsed.Summary.Epoch, s.state.LastVerified.Epoch))})
			continue
		}
		if err := s.verifyProof(s.state.CheckpointVerifyingKey, parsed); err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("core: checkpoint proof rejected: %v", err))})
			continue
		}
		s.state.LastVerified = parsed.Summary
		for _, intent := range parsed.WithdrawalIntents {
			relayer.RelayMsg(intent)
		}
	}
	return nil
}

// ProcessMsgs has nothing to receive: core is the source of withdrawal
// intents, not a destination for any cross-subprotocol message in the current
// message set.
func (s *Subprotocol) ProcessMsgs(msgs []subprotocol.Msg, relayer subprotocol.MsgRelayer) error { return nil }

// ApplySequencerRotation is invoked by the upgrade subprotocol's enactment path
// to replace the sequencer key once an upgrade action enacts (spec §4.5
// "Upgrade: multisig-gated updates to sequencer key").
func (s *Subprotocol) ApplySequencerRotation(newKey []byte) error {
	pub, err := schnorr.PublicKeyFromBytes(newKey)
	if err != nil {
		return fmt.Errorf("core: rotate sequencer key: %w", err)
	}
	s.state.SequencerPubKey = pub
	return nil
}

// ApplyVerifyingKeyRotation replaces the checkpoint-verifying key.
func (s *Subprotocol) ApplyVerifyingKeyRotation(newKey []byte) {
	s.state.CheckpointVerifyingKey = newKey
}
