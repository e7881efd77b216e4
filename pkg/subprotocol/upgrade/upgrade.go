// Package upgrade implements the ASM's upgrade subprotocol (spec §4.5):
// multisig-gated updates to the sequencer key, operator set, and STF
// verifying keys, each subject to a role-dependent L1-block enactment delay
// and cancellation before enactment.
package upgrade

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/subprotocol/checkpoint"
	"github.com/strataorch/orchestration/pkg/xcrypto/bls"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// ActionKind enumerates the three update targets the upgrade subprotocol gates.
type ActionKind uint8

const (
	ActionSequencerKeyUpdate ActionKind = iota
	ActionOperatorSetUpdate
	ActionSTFVerifyingKeyUpdate
)

// Enactment delays, in L1 (Bitcoin) blocks (spec §4.5 "e.g., 2016 or 12960 L1
// blocks"). Sequencer-key and operator-set changes use the shorter,
// difficulty-retarget-period delay; STF verifying-key changes — which can
// alter consensus-critical execution semantics — use the longer delay.
const (
	EnactmentDelayFast = 2016
	EnactmentDelaySlow = 12960
)

func (k ActionKind) enactmentDelay() uint64 {
	if k == ActionSTFVerifyingKeyUpdate {
		return EnactmentDelaySlow
	}
	return EnactmentDelayFast
}

// PendingAction is a proposed, multisig-approved, not-yet-enacted update.
type PendingAction struct {
	Id          uint64
	Kind        ActionKind
	Payload     []byte
	ProposedAt  xtypes.Height
	EnactAt     xtypes.Height
	Cancelled   bool
}

// State is upgrade's exported section of AnchorState.
type State struct {
	Operators    *bls.OperatorSet
	Threshold    int
	Pending      map[uint64]*PendingAction
	NextActionId uint64

	currentL1Height xtypes.Height
}

// GenesisConfig seeds State at ASM genesis.
type GenesisConfig struct {
	OperatorKeys [][]byte
	Threshold    int
}

// TxType enumerates the transaction shapes the upgrade subprotocol accepts.
type TxType uint8

const (
	TxProposeAction TxType = iota
	TxCancelAction
)

// ProposeActionTx proposes a new action, co-signed by at least Threshold
// operators over the domain-tagged (kind, payload, action id) message.
type ProposeActionTx struct {
	Kind      ActionKind
	Payload   []byte
	Threshold *bls.ThresholdSignature
}

// CancelActionTx cancels a not-yet-enacted pending action, co-signed by at
// least Threshold operators over the domain-tagged (action id) message.
type CancelActionTx struct {
	ActionId  uint64
	Threshold *bls.ThresholdSignature
}

// ParsedTx is the union of tx shapes the parse function may return.
type ParsedTx struct {
	Type    TxType
	Propose *ProposeActionTx
	Cancel  *CancelActionTx
}

// Subprotocol implements subprotocol.Subprotocol for the upgrade subprotocol.
type Subprotocol struct {
	state State
	parse func(txType TxType, auxData []byte) (ParsedTx, error)
}

// New constructs the upgrade subprotocol from its genesis config.
func New(cfg GenesisConfig, parse func(txType TxType, auxData []byte) (ParsedTx, error)) (*Subprotocol, error) {
	set, err := bls.NewOperatorSet(cfg.OperatorKeys)
	if err != nil {
		return nil, fmt.Errorf("upgrade: build operator set: %w", err)
	}
	return &Subprotocol{
		state: State{
			Operators: set,
			Threshold: cfg.Threshold,
			Pending:   make(map[uint64]*PendingAction),
		},
		parse: parse,
	}, nil
}

func (s *Subprotocol) Id() xtypes.SubprotocolId { return xtypes.SubprotocolUpgrade }

func (s *Subprotocol) State() State { return s.state }

// BeginBlock is called directly by the ASM state-transition function (not via
// the generic Subprotocol interface, since it is not keyed off any
// transaction) before the process stage, so enactment can fire purely from
// L1-block progression. It returns the actions that enact this block.
func (s *Subprotocol) BeginBlock(l1Height xtypes.Height) []PendingAction {
	s.state.currentL1Height = l1Height
	var enacted []PendingAction
	for id, a := range s.state.Pending {
		if a.Cancelled || l1Height < a.EnactAt {
			continue
		}
		enacted = append(enacted, *a)
		delete(s.state.Pending, id)
	}
	return enacted
}

// PreProcessTxs requests no auxiliary data: action proposals verify directly
// against the held operator set.
func (s *Subprotocol) PreProcessTxs(txs []subprotocol.TaggedTx) []subprotocol.AuxRequest { return nil }

func (s *Subprotocol) ProcessTxs(txs []subprotocol.TaggedTx, aux []subprotocol.AuxResponse, currentL1Height xtypes.Height, relayer subprotocol.MsgRelayer) error {
	for _, tx := range txs {
		parsed, err := s.parse(TxType(tx.TxType), tx.AuxData)
		if err != nil {
			relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("upgrade: malformed tx %x: %v", tx.TxId, err))})
			continue
		}
		switch parsed.Type {
		case TxProposeAction:
			s.propose(parsed.Propose, relayer)
		case TxCancelAction:
			s.cancel(parsed.Cancel, relayer)
		}
	}
	return nil
}

func actionMessage(kind ActionKind, payload []byte, id uint64) []byte {
	msg := make([]byte, 0, 1+len(payload)+8)
	msg = append(msg, byte(kind))
	msg = append(msg, payload...)
	for i := 0; i < 8; i++ {
		msg = append(msg, byte(id>>(8*i)))
	}
	return msg
}

func (s *Subprotocol) propose(tx *ProposeActionTx, relayer subprotocol.MsgRelayer) {
	if tx == nil {
		return
	}
	id := s.state.NextActionId
	msg := actionMessage(tx.Kind, tx.Payload, id)
	if err := bls.VerifyThreshold(s.state.Operators, tx.Threshold, bls.DomainOperatorSetChange, msg, s.state.Threshold); err != nil {
		relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("upgrade: proposal rejected: %v", err))})
		return
	}
	s.state.NextActionId++
	s.state.Pending[id] = &PendingAction{
		Id:         id,
		Kind:       tx.Kind,
		Payload:    tx.Payload,
		ProposedAt: s.state.currentL1Height,
		EnactAt:    s.state.currentL1Height + xtypes.Height(tx.Kind.enactmentDelay()),
	}
	relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("upgrade: action %d proposed, enacts at L1 height %d", id, s.state.Pending[id].EnactAt))})
}

func (s *Subprotocol) cancel(tx *CancelActionTx, relayer subprotocol.MsgRelayer) {
	if tx == nil {
		return
	}
	a, ok := s.state.Pending[tx.ActionId]
	if !ok || a.Cancelled {
		relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("upgrade: cancel of unknown or already-cancelled action %d", tx.ActionId))})
		return
	}
	msg := make([]byte, 8)
	for i := 0; i < 8; i++ {
		msg[i] = byte(tx.ActionId >> (8 * i))
	}
	if err := bls.VerifyThreshold(s.state.Operators, tx.Threshold, bls.DomainOperatorSetChange, msg, s.state.Threshold); err != nil {
		relayer.EmitLog(subprotocol.Log{Payload: []byte(fmt.Sprintf("upgrade: cancellation rejected: %v", err))})
		return
	}
	a.Cancelled = true
}

// ProcessMsgs has no inbound cross-subprotocol messages to handle: upgrade is
// a source of rotation broadcasts, not a destination.
func (s *Subprotocol) ProcessMsgs(msgs []subprotocol.Msg, relayer subprotocol.MsgRelayer) error { return nil }

// BroadcastEnactments is called by the ASM state-transition function right
// after BeginBlock with the actions it returned. A sequencer-key update is
// relayed to checkpoint as a message, since checkpoint only ever learns about
// subprotocol state through the message bus; core's copy of the same key is
// updated by the state-transition function calling core.ApplySequencerRotation
// directly, since the ASM STF already owns both subprotocols. STF-verifying-key
// updates are applied the same direct way, into core's verifying-key register.
// An enacted operator-set update is neither relayed nor applied: bridge's
// operator map is left unchanged.
func BroadcastEnactments(enacted []PendingAction, relayer subprotocol.MsgRelayer) {
	for _, a := range enacted {
		if a.Kind == ActionSequencerKeyUpdate {
			relayer.RelayMsg(checkpoint.SequencerKeyRotatedMsg{NewKey: a.Payload})
		}
	}
}
