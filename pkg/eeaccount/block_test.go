package eeaccount

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

type stubBuilder struct {
	blockHash   common.Hash
	withdrawals []WithdrawalIntent
	gotAttrs    PayloadAttributes
}

func (b *stubBuilder) BuildPayload(ctx context.Context, parent xtypes.Hash, attrs PayloadAttributes) (*BuiltPayload, error) {
	b.gotAttrs = attrs
	return &BuiltPayload{
		BlockHash:         b.blockHash,
		WithdrawalIntents: b.withdrawals,
	}, nil
}

func TestAssembleBlockCreditsDepositAndBuildsWithdrawals(t *testing.T) {
	state := &State{}
	var subject, gateway xtypes.AccountId
	subject[0] = 1
	gateway[0] = 2

	builder := &stubBuilder{
		blockHash: common.Hash{0xAB},
		withdrawals: []WithdrawalIntent{
			{Destination: []byte("bc1qxyz"), Amount: 100_000_000},
		},
	}

	messages := []InboxMessage{
		{Kind: InboxKindDeposit, Subject: subject, Amount: 500},
	}

	pkg, err := AssembleBlock(context.Background(), state, messages, xtypes.Hash{}, 1000, 0, gateway, builder, nil)
	if err != nil {
		t.Fatalf("assemble block: %v", err)
	}

	if state.TrackedBalance != 500 {
		t.Fatalf("expected tracked balance 500, got %d", state.TrackedBalance)
	}
	if len(state.PendingInputs) != 0 {
		t.Fatalf("expected pending inputs drained after assembly, got %d", len(state.PendingInputs))
	}
	if len(builder.gotAttrs.Withdrawals) != 1 {
		t.Fatalf("expected one withdrawal passed to the builder, got %d", len(builder.gotAttrs.Withdrawals))
	}
	if len(pkg.Inputs) != 1 || pkg.Inputs[0].Amount != 500 {
		t.Fatalf("expected one consumed deposit input of 500, got %+v", pkg.Inputs)
	}
	if len(pkg.Outputs) != 1 || pkg.Outputs[0].Destination != gateway {
		t.Fatalf("expected one output message to the gateway, got %+v", pkg.Outputs)
	}
	if state.LastExecBlkId != xtypes.Hash(builder.blockHash) {
		t.Fatalf("expected last_exec_blkid to update to the built block hash")
	}
}

func TestAssembleBlockRejectsTooManyPendingDeposits(t *testing.T) {
	state := &State{}
	var subject, gateway xtypes.AccountId
	builder := &stubBuilder{blockHash: common.Hash{1}}

	messages := []InboxMessage{
		{Kind: InboxKindDeposit, Subject: subject, Amount: 1},
		{Kind: InboxKindDeposit, Subject: subject, Amount: 1},
	}

	if _, err := AssembleBlock(context.Background(), state, messages, xtypes.Hash{}, 1, 1, gateway, builder, nil); err == nil {
		t.Fatalf("expected exceeding max_deposits_per_block to error")
	}
}

func TestWithdrawalIntentEnvelopeTagsTypeID(t *testing.T) {
	intent := WithdrawalIntent{Destination: []byte{0xAA, 0xBB}, Amount: 42}
	env := intent.Envelope()
	if env[0] != WithdrawalMsgTypeID {
		t.Fatalf("expected envelope to start with the withdrawal type id")
	}
	if len(env) != 1+8+2 {
		t.Fatalf("expected envelope length 11, got %d", len(env))
	}
}
