// Package chainworker applies Orchestration Layer blocks sequentially against
// cached per-account state (spec §3 data model, §4.7 C8). It verifies block-
// and transaction-level invariants, dispatches generic account messages and
// snark-account updates, accumulates the resulting epoch DA payload through
// pkg/chainstate, and — at a terminal slot — drains the block's L1-update
// segment, replays ASM-originated effects, and seals the epoch.
package chainworker

import (
	"github.com/strataorch/orchestration/pkg/merkle"
	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// Header is an OL block's signed header (spec §3).
type Header struct {
	Slot      xtypes.Slot
	Epoch     xtypes.Epoch
	ParentId  xtypes.Hash
	BodyRoot  xtypes.Hash
	StateRoot xtypes.Hash
	LogsRoot  xtypes.Hash
	Timestamp uint64
	Signature []byte
}

// TxKind distinguishes the two payload shapes a transaction's body may carry
// (spec §3 "payload = opaque account-message bytes OR snark-account update").
type TxKind uint8

const (
	TxKindAccountMessage TxKind = iota
	TxKindSnarkAccountUpdate
)

// Attachment is an optional, non-authenticating transaction filter (spec §3
// "attachments ... filter-only, never authenticate").
type Attachment struct {
	MinSlot    *xtypes.Slot
	MaxSlot    *xtypes.Slot
	FilterOnly bool
}

// AccountMessage is the generic-account-message tx payload: opaque bytes
// credited to, and handed to, the destination account.
type AccountMessage struct {
	Destination xtypes.AccountId
	Credit      xtypes.Amount
	Payload     []byte
}

// InboxInclusionProof proves that Message is the entry at MsgIndex in the
// destination account's inbox MMR, rooted at InboxRoot.
type InboxInclusionProof struct {
	MsgIndex  uint64
	InboxRoot []byte
	Message   []byte
	Proof     *merkle.MMRInclusionProof
}

// SnarkAccountUpdate is the snark-account tx payload: a proof of valid state
// transition for the account at SeqNo, optionally consuming one inbox
// message and producing transfer/message outputs (spec §3, §4.7).
type SnarkAccountUpdate struct {
	Account      xtypes.AccountId
	SeqNo        uint64
	NewVK        []byte // non-nil iff this update rotates the account's verifying key
	Proof        []byte
	PublicInputs []byte

	ConsumedInbox *InboxInclusionProof

	Transfers []Transfer
	Messages  []AccountMessage
}

// Transfer moves Amount from the executing snark-account to Destination.
type Transfer struct {
	Destination xtypes.AccountId
	Amount      xtypes.Amount
}

// Tx is one OL transaction: a tagged payload plus its filter-only
// attachments.
type Tx struct {
	Kind           TxKind
	AccountMsg     AccountMessage
	SnarkUpdate    SnarkAccountUpdate
	Attachment     Attachment
	TxId           xtypes.Hash
}

// L1Update is one ASM manifest attached to a terminal block's L1-update
// segment (spec §3 "optional L1-update segment present iff epoch terminal").
type L1Update struct {
	ManifestLeaf     []byte
	ManifestCommitment xtypes.Hash
	Logs             []subprotocol.Log
}

// Body is an OL block's body: its transaction segment, plus an L1-update
// segment that must be present iff the block is at a terminal slot.
type Body struct {
	Txs       []Tx
	L1Updates []L1Update
}

// Block is a full OL block.
type Block struct {
	Header Header
	Body   Body
}
