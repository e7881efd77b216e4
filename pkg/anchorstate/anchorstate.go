package anchorstate

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/subprotocol/bridge"
	"github.com/strataorch/orchestration/pkg/subprotocol/checkpoint"
	"github.com/strataorch/orchestration/pkg/subprotocol/core"
	"github.com/strataorch/orchestration/pkg/subprotocol/upgrade"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// AnchorState is the full ASM state: the last accepted Bitcoin header tip, the
// four concrete subprotocols' exported sections, and the cross-block message
// carryover the C6 framework's finish stage produces (spec §4.4).
type AnchorState struct {
	TipHash   xtypes.Hash
	TipHeight xtypes.Height

	Core       *core.Subprotocol
	Bridge     *bridge.Subprotocol
	Checkpoint *checkpoint.Subprotocol
	Upgrade    *upgrade.Subprotocol

	pending subprotocol.PendingMsgs
}

// GenesisConfig seeds a fresh AnchorState at ASM genesis, one section per
// subprotocol plus the genesis Bitcoin anchor point.
type GenesisConfig struct {
	GenesisHash   xtypes.Hash
	GenesisHeight xtypes.Height

	Core       core.GenesisConfig
	Bridge     bridge.GenesisConfig
	Checkpoint checkpoint.GenesisConfig
	Upgrade    upgrade.GenesisConfig
}

// Dependencies bundles the parse functions and verification backends each
// subprotocol needs but that this package has no business constructing
// itself (spec §4.3: "each subprotocol declares ... a parse function").
type Dependencies struct {
	CoreVerifyProof func(verifyingKey []byte, tx core.CheckpointProofTx) error
	CoreParse       func(txType core.TxType, auxData []byte) (core.CheckpointProofTx, error)
	BridgeParse     func(txType bridge.TxType, auxData []byte) (bridge.ParsedTx, error)
	CheckpointParse func(txType checkpoint.TxType, auxData []byte) (checkpoint.SignedCheckpointTx, error)
	UpgradeParse    func(txType upgrade.TxType, auxData []byte) (upgrade.ParsedTx, error)
}

// NewGenesis constructs the genesis AnchorState and its subprotocol registry.
func NewGenesis(cfg GenesisConfig, deps Dependencies) (*AnchorState, *subprotocol.Registry, error) {
	coreSub, err := core.New(cfg.Core, deps.CoreVerifyProof, deps.CoreParse)
	if err != nil {
		return nil, nil, fmt.Errorf("anchorstate: init core: %w", err)
	}
	bridgeSub := bridge.New(cfg.Bridge, deps.BridgeParse)
	checkpointSub, err := checkpoint.New(cfg.Checkpoint, deps.CheckpointParse)
	if err != nil {
		return nil, nil, fmt.Errorf("anchorstate: init checkpoint: %w", err)
	}
	upgradeSub, err := upgrade.New(cfg.Upgrade, deps.UpgradeParse)
	if err != nil {
		return nil, nil, fmt.Errorf("anchorstate: init upgrade: %w", err)
	}

	reg := subprotocol.NewRegistry()
	for _, s := range []subprotocol.Subprotocol{coreSub, bridgeSub, checkpointSub, upgradeSub} {
		if err := reg.Register(s); err != nil {
			return nil, nil, fmt.Errorf("anchorstate: register subprotocols: %w", err)
		}
	}

	return &AnchorState{
		TipHash:    cfg.GenesisHash,
		TipHeight:  cfg.GenesisHeight,
		Core:       coreSub,
		Bridge:     bridgeSub,
		Checkpoint: checkpointSub,
		Upgrade:    upgradeSub,
	}, reg, nil
}

// ResolveAuxFunc verifies a block's collected auxiliary-data requests against
// the history MMR (manifest-leaf ranges) and Bitcoin headers (raw tx proofs).
// It lives outside this package's direct control since it needs access to
// storage the ASM state-transition caller owns; ApplyBlock receives it as a
// parameter (spec §4.3 step 3).
type ResolveAuxFunc func(map[xtypes.SubprotocolId][]subprotocol.AuxRequest) (map[xtypes.SubprotocolId][]subprotocol.AuxResponse, error)

// ApplyBlock runs the ASM state-transition function for one Bitcoin block
// (spec §4.4): it verifies PoW header continuity against prevState's tip,
// extracts tagged transactions, runs the C6 dispatch pipeline, handles the
// upgrade subprotocol's block-keyed enactment, and returns the rebuilt
// AnchorState plus the block's collected logs.
func ApplyBlock(prevState *AnchorState, reg *subprotocol.Registry, block *wire.MsgBlock, resolveAux ResolveAuxFunc) (*AnchorState, []subprotocol.Log, error) {
	if len(block.Transactions) == 0 {
		return nil, nil, fmt.Errorf("anchorstate: block has no transactions")
	}
	header := &block.Header
	if err := VerifyHeaderContinuity(prevState.TipHash, header); err != nil {
		return nil, nil, err
	}

	l1Height := prevState.TipHeight + 1
	enacted := prevState.Upgrade.BeginBlock(l1Height)

	txsByProto := ExtractTaggedTxs(block)

	result, err := subprotocol.RunBlock(reg, txsByProto, resolveAux, prevState.pending, l1Height)
	if err != nil {
		return nil, nil, fmt.Errorf("anchorstate: subprotocol pipeline: %w", err)
	}

	// Enactment broadcasts are applied after the pipeline so a sequencer-key
	// rotation that enacts this block reaches checkpoint via the normal
	// message bus on the NEXT block's finish stage, while core's own copy
	// (which the upgrade subprotocol cannot reach over the bus, spec §4.3
	// "state mutation from another subprotocol is impossible") is rotated
	// directly here, since ApplyBlock is the one caller that legitimately
	// owns both subprotocols.
	enactRelay := newEnactmentRelay()
	upgrade.BroadcastEnactments(enacted, enactRelay)
	for _, a := range enacted {
		switch a.Kind {
		case upgrade.ActionSequencerKeyUpdate:
			if err := prevState.Core.ApplySequencerRotation(a.Payload); err != nil {
				return nil, nil, fmt.Errorf("anchorstate: apply sequencer rotation: %w", err)
			}
		case upgrade.ActionSTFVerifyingKeyUpdate:
			prevState.Core.ApplyVerifyingKeyRotation(a.Payload)
		case upgrade.ActionOperatorSetUpdate:
			// TODO: the wire encoding of a replacement operator set is not
			// specified; wire it into bridge.State.Operators once that
			// payload format is defined.
		}
	}

	nextPending := result.PendingNext
	if nextPending == nil {
		nextPending = make(subprotocol.PendingMsgs)
	}
	for dst, msgs := range enactRelay.outbox {
		nextPending[dst] = append(nextPending[dst], msgs...)
	}

	blockHash := xtypes.Hash(header.BlockHash())
	next := &AnchorState{
		TipHash:    blockHash,
		TipHeight:  l1Height,
		Core:       prevState.Core,
		Bridge:     prevState.Bridge,
		Checkpoint: prevState.Checkpoint,
		Upgrade:    prevState.Upgrade,
		pending:    nextPending,
	}
	return next, result.Logs, nil
}

// enactmentRelay is a minimal MsgRelayer used only to capture the messages
// upgrade.BroadcastEnactments produces so ApplyBlock can fold them into the
// pipeline's own pending-message carryover; logs from enactment broadcasts are
// not expected (BroadcastEnactments never calls EmitLog) so they are dropped
// rather than plumbed through.
type enactmentRelay struct {
	outbox subprotocol.PendingMsgs
}

func newEnactmentRelay() *enactmentRelay { return &enactmentRelay{outbox: make(subprotocol.PendingMsgs)} }

func (r *enactmentRelay) RelayMsg(msg subprotocol.Msg) {
	r.outbox[msg.DestinationId()] = append(r.outbox[msg.DestinationId()], msg)
}

func (r *enactmentRelay) EmitLog(subprotocol.Log) {}

// PreProcessResult is what PreProcessASM returns to a prover host ahead of the
// real state-transition invocation (spec §4.4).
type PreProcessResult struct {
	TxsByProto map[xtypes.SubprotocolId][]subprotocol.TaggedTx
	AuxRequests map[xtypes.SubprotocolId][]subprotocol.AuxRequest
}

// PreProcessASM extracts the relevant transaction set and aggregates every
// subprotocol's auxiliary-data requests, without running process/finish, so a
// prover host can fetch aux data ahead of the real ApplyBlock call (spec §4.4
// "used by provers that returns only the relevant tx set and the aggregated
// auxiliary-data request set").
func PreProcessASM(state *AnchorState, reg *subprotocol.Registry, block *wire.MsgBlock) (*PreProcessResult, error) {
	header := &block.Header
	if err := VerifyHeaderContinuity(state.TipHash, header); err != nil {
		return nil, err
	}
	txsByProto := ExtractTaggedTxs(block)
	requests := make(map[xtypes.SubprotocolId][]subprotocol.AuxRequest)
	for _, s := range reg.Ordered() {
		if reqs := s.PreProcessTxs(txsByProto[s.Id()]); len(reqs) > 0 {
			requests[s.Id()] = reqs
		}
	}
	return &PreProcessResult{TxsByProto: txsByProto, AuxRequests: requests}, nil
}
