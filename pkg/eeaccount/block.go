package eeaccount

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// WithdrawalMsgTypeID tags a withdrawal-intent envelope so the bridge gateway
// account can distinguish it from other account-message payloads without a
// separate routing table (spec §4.9 "typed envelope
// {type_id = WITHDRAWAL_MSG_TYPE_ID, body}").
const WithdrawalMsgTypeID uint8 = 0x01

// WithdrawalIntent is one subject-initiated L2-to-L1 withdrawal the built
// EVM payload reported: a satoshi amount to release to a destination
// descriptor (spec §4.9 "the body carries destination descriptor and
// satoshi amount").
type WithdrawalIntent struct {
	Destination []byte
	Amount      xtypes.Amount
}

// Envelope encodes the intent as the typed envelope spec §4.9 describes:
// a one-byte type tag, an 8-byte big-endian amount, then the destination
// descriptor bytes.
func (w WithdrawalIntent) Envelope() []byte {
	buf := make([]byte, 1+8+len(w.Destination))
	buf[0] = WithdrawalMsgTypeID
	binary.BigEndian.PutUint64(buf[1:9], uint64(w.Amount))
	copy(buf[9:], w.Destination)
	return buf
}

// OutputMessage is one withdrawal intent already addressed to the bridge
// gateway account as an opaque account message (spec §4.9 step 4 "targeting
// the bridge gateway account as a message").
type OutputMessage struct {
	Destination xtypes.AccountId
	Payload     []byte
}

// Commitment binds the built EE block's own id to the raw EVM block hash it
// produced (spec §4.9 step 4 "commitment (exec_blkid, raw_block_hash)").
type Commitment struct {
	ExecBlkId    xtypes.Hash
	RawBlockHash common.Hash
}

// ExecBlockPackage is C11's output: the assembled EE block's commitment, the
// deposits it consumed, and the withdrawal-intent messages it produced,
// ready for C12 (exec-chain tracker) and for replaying into the OL inbox for
// the bridge gateway account.
type ExecBlockPackage struct {
	Commitment Commitment
	Inputs     []DepositInput
	Outputs    []OutputMessage
}

// AssembleBlock runs the four steps of spec §4.9 EE block assembly: apply the
// slot's inbox messages to account_state, drive the injected payload builder,
// fold the built payload's final-update changes back into account_state, and
// produce the resulting ExecBlockPackage. state is mutated in place and is
// not restored on failure: the inbox messages are applied before the
// deposit-limit check and the payload build, either of which can still
// return an error. Callers that need all-or-nothing semantics (e.g. pkg/chainworker
// invoking this from an InvokeMessageHandler callback) should pass a
// state.Clone() and swap it in only once AssembleBlock returns without error,
// the same staging discipline pkg/chainworker.BlockStage applies to OL
// accounts.
func AssembleBlock(
	ctx context.Context,
	state *State,
	inboxMessages []InboxMessage,
	parentExecBlkId xtypes.Hash,
	timestampMs uint64,
	maxDepositsPerBlock int,
	bridgeGatewayAccount xtypes.AccountId,
	builder PayloadBuilder,
	extractFinalUpdate FinalUpdateExtractor,
) (*ExecBlockPackage, error) {
	if extractFinalUpdate == nil {
		extractFinalUpdate = DefaultFinalUpdateExtractor
	}

	// Step 1: apply inbox messages.
	ApplyInboxMessages(state, inboxMessages)

	if maxDepositsPerBlock > 0 && len(state.PendingInputs) > maxDepositsPerBlock {
		return nil, fmt.Errorf("eeaccount: %d pending deposits exceed max %d per block", len(state.PendingInputs), maxDepositsPerBlock)
	}

	withdrawals := make([]*types.Withdrawal, 0, len(state.PendingInputs))
	for i, in := range state.PendingInputs {
		withdrawals = append(withdrawals, &types.Withdrawal{
			Index:     uint64(i),
			Validator: 0,
			Address:   common.BytesToAddress(in.Subject[:]),
			Amount:    uint64(in.Amount),
		})
	}

	// Step 2: drive the payload builder.
	attrs := PayloadAttributes{
		Timestamp:             timestampMs,
		ParentBeaconRoot:      common.Hash{},
		PrevRandao:            common.Hash{},
		SuggestedFeeRecipient: common.Address{},
		Withdrawals:           withdrawals,
	}
	built, err := builder.BuildPayload(ctx, parentExecBlkId, attrs)
	if err != nil {
		return nil, fmt.Errorf("eeaccount: build payload: %w", err)
	}

	// Step 3: apply final-update changes.
	update, err := extractFinalUpdate(built)
	if err != nil {
		return nil, fmt.Errorf("eeaccount: extract final update: %w", err)
	}
	state.LastExecBlkId = update.LastExecBlkId
	state.PendingFincls = append(state.PendingFincls, FinalizationRecord{ExecBlkId: update.LastExecBlkId})

	// Step 4: produce the package. Inputs are the deposits this block
	// consumed; outputs are the withdrawal intents the built payload
	// reported, each wrapped as a message addressed to the bridge gateway.
	consumed := state.PendingInputs
	state.PendingInputs = nil

	outputs := make([]OutputMessage, 0, len(built.WithdrawalIntents))
	for _, intent := range built.WithdrawalIntents {
		outputs = append(outputs, OutputMessage{
			Destination: bridgeGatewayAccount,
			Payload:     intent.Envelope(),
		})
	}

	return &ExecBlockPackage{
		Commitment: Commitment{
			ExecBlkId:    update.LastExecBlkId,
			RawBlockHash: built.BlockHash,
		},
		Inputs:  consumed,
		Outputs: outputs,
	}, nil
}
