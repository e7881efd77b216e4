package eeaccount

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// PayloadAttributes drives the injected EVM payload builder across the same
// boundary go-ethereum's engine API exposes (spec §4.9 step 2). ParentBeaconRoot
// and PrevRandao are always the zero hash for this EE: there is no beacon
// chain underneath it, and randomness is not modeled.
type PayloadAttributes struct {
	Timestamp             uint64
	ParentBeaconRoot       common.Hash
	PrevRandao             common.Hash
	SuggestedFeeRecipient  common.Address
	Withdrawals            []*types.Withdrawal
}

// BuiltPayload is what the injected PayloadBuilder returns: a built EVM block
// plus opaque ExtraData the builder may have stamped on it. Step 3 of
// AssembleBlock (spec §4.9) reads ExtraData back out to learn any
// final-update changes to account_state, via a caller-supplied
// FinalUpdateExtractor, since only the builder knows its own extra-data
// encoding.
type BuiltPayload struct {
	Header    *types.Header
	BlockHash common.Hash
	ExtraData []byte

	// WithdrawalIntents are the subject-initiated L2-to-L1 withdrawal
	// requests this block's EVM execution produced (e.g. decoded from a
	// withdrawal-queue precompile's logs). Decoding them is inherently
	// EVM-executor-specific, so the builder supplies them directly rather
	// than this package trying to parse execution logs it has no business
	// understanding.
	WithdrawalIntents []WithdrawalIntent
}

// PayloadBuilder is the EVM block-building backend this package delegates to.
// Its implementation (an actual EVM executor) is out of scope per spec §1;
// this package only models the boundary.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, parentExecBlkId xtypes.Hash, attrs PayloadAttributes) (*BuiltPayload, error)
}

// FinalUpdate is the subset of built-payload extra data that feeds back into
// account_state (spec §4.9 step 3 "this includes recording the new
// last_exec_blkid").
type FinalUpdate struct {
	LastExecBlkId xtypes.Hash
}

// FinalUpdateExtractor decodes a BuiltPayload's ExtraData into the
// final-update changes AssembleBlock must apply to account_state. Decoding a
// builder's extra-data format is itself builder-specific, so it is injected
// rather than hard-coded here.
type FinalUpdateExtractor func(payload *BuiltPayload) (FinalUpdate, error)

// DefaultFinalUpdateExtractor treats ExtraData as exactly the new
// last_exec_blkid when present, matching the simplest builder contract: a
// 32-byte extra-data field carrying the block's own id.
func DefaultFinalUpdateExtractor(payload *BuiltPayload) (FinalUpdate, error) {
	if len(payload.ExtraData) == 0 {
		return FinalUpdate{LastExecBlkId: xtypes.Hash(payload.BlockHash)}, nil
	}
	if len(payload.ExtraData) != xtypes.HashSize {
		return FinalUpdate{}, fmt.Errorf("eeaccount: unrecognized extra-data length %d", len(payload.ExtraData))
	}
	h, err := xtypes.HashFromBytes(payload.ExtraData)
	if err != nil {
		return FinalUpdate{}, err
	}
	return FinalUpdate{LastExecBlkId: h}, nil
}
