package chainworker

import (
	"encoding/binary"
	"fmt"

	"github.com/strataorch/orchestration/pkg/chainstate"
	"github.com/strataorch/orchestration/pkg/merkle"
	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// ChainTip identifies the OL chain's current head.
type ChainTip struct {
	BlockId   xtypes.Hash
	Slot      xtypes.Slot
	Epoch     xtypes.Epoch
	Timestamp uint64
}

// Dependencies bundles the verification and root-computation backends
// ApplyBlock needs but has no business constructing itself — the same shape
// anchorstate.Dependencies uses for the ASM side (spec §4.3 "each
// subprotocol declares ... a parse function").
type Dependencies struct {
	// VerifyHeaderSignature checks the block producer's signature over the
	// header. A failure here is block-level: the whole block is rejected
	// without any tx processing.
	VerifyHeaderSignature func(h Header) error

	// InvokeMessageHandler delivers a generic account message's payload to
	// its destination account's handler. The handler itself is entirely
	// account-defined; this package only sequences the call and the
	// associated credit. emit lets the handler append to the block's OL
	// log output (spec §4.7 "OLLog ... attributed to the account that
	// emitted it").
	InvokeMessageHandler func(dest xtypes.AccountId, payload []byte, emit func(chainstate.OLLog)) error

	// VerifySnarkProof checks a snark-account update's proof against vk and
	// publicInputs.
	VerifySnarkProof func(vk, proof, publicInputs []byte) error

	// ComputeLogsRoot hashes the block's emitted logs into the root the
	// header's LogsRoot field must match.
	ComputeLogsRoot func(logs []chainstate.OLLog) (xtypes.Hash, error)

	// ComputeStateRoot hashes the post-block account state into the root
	// the header's StateRoot field must match. It runs after every tx in
	// the block has applied successfully, against the staged (not yet
	// committed) state.
	ComputeStateRoot func(stage *BlockStage) (xtypes.Hash, error)

	// ComputeBodyRoot hashes the block body into the root the header's
	// BodyRoot field must match.
	ComputeBodyRoot func(b Body) (xtypes.Hash, error)

	// IsTerminalSlot reports whether slot is the last slot of its epoch —
	// the body's L1-update segment must be present iff this holds (spec §3
	// "present iff epoch terminal").
	IsTerminalSlot func(slot xtypes.Slot) bool

	// ReplayASMLog applies one ASM-originated log's effect to OL-side
	// state during terminal-slot L1-update draining: an account credit, a
	// VK rotation, an operator-set update. Decoding the log payload is
	// entirely ASM-log-format-defined, which is why it is injected rather
	// than implemented here. emit lets the replay append an OL-side log
	// recording the effect it applied.
	ReplayASMLog func(log subprotocol.Log, stage *BlockStage, emit func(chainstate.OLLog)) error
}

// Result is what ApplyBlock returns on success.
type Result struct {
	Tip  ChainTip
	Logs []chainstate.OLLog

	// Terminal reports whether this block was at a terminal slot, so the
	// caller knows to seal its epoch accumulator and start a fresh one.
	Terminal bool
}

// ApplyBlock runs one OL block against accessor, recording every state
// change into the caller-owned epoch accumulator (spec §4.7 C8 + C9). acc
// spans the whole epoch and must be the same instance across every block in
// an epoch; the caller starts a fresh one immediately after a terminal
// block seals.
//
// Any tx-level failure (bad sig/proof, wrong account type, non-monotonic
// seqno, insufficient balance, expired/immature by slot attachment) or
// block-level failure (bad header signature, root mismatch, timestamp
// regression, parent/body mismatch, malformed terminal segment) rejects the
// entire block: accessor and acc are left completely untouched, since every
// mutation is staged and only committed after the block fully validates.
func ApplyBlock(
	tip ChainTip,
	accessor StateAccessor,
	acc *chainstate.Accumulator,
	manifestMMR *merkle.MMR,
	block *Block,
	deps Dependencies,
) (*Result, error) {
	h := block.Header
	if h.ParentId != tip.BlockId {
		return nil, fmt.Errorf("chainworker: block %d: parent id mismatch", h.Slot)
	}
	if h.Slot <= tip.Slot {
		return nil, fmt.Errorf("chainworker: block %d: slot does not advance past tip %d", h.Slot, tip.Slot)
	}
	if h.Timestamp < tip.Timestamp {
		return nil, fmt.Errorf("chainworker: block %d: timestamp %d regresses past tip timestamp %d", h.Slot, h.Timestamp, tip.Timestamp)
	}
	if deps.VerifyHeaderSignature != nil {
		if err := deps.VerifyHeaderSignature(h); err != nil {
			return nil, fmt.Errorf("chainworker: block %d: invalid header signature: %w", h.Slot, err)
		}
	}
	terminal := deps.IsTerminalSlot != nil && deps.IsTerminalSlot(h.Slot)
	if terminal != (len(block.Body.L1Updates) > 0) {
		return nil, fmt.Errorf("chainworker: block %d: L1-update segment presence (%v) does not match terminal-slot status (%v)", h.Slot, len(block.Body.L1Updates) > 0, terminal)
	}
	if deps.ComputeBodyRoot != nil {
		root, err := deps.ComputeBodyRoot(block.Body)
		if err != nil {
			return nil, fmt.Errorf("chainworker: block %d: compute body root: %w", h.Slot, err)
		}
		if root != h.BodyRoot {
			return nil, fmt.Errorf("chainworker: block %d: body root mismatch", h.Slot)
		}
	}

	stage := newBlockStage(accessor)
	var logs []chainstate.OLLog
	emit := func(l chainstate.OLLog) { logs = append(logs, l) }

	for _, tx := range block.Body.Txs {
		if err := checkAttachment(h.Slot, tx.Attachment); err != nil {
			return nil, fmt.Errorf("chainworker: block %d: tx %x: %w", h.Slot, tx.TxId, err)
		}
		switch tx.Kind {
		case TxKindAccountMessage:
			if err := applyAccountMessage(stage, deps, tx.AccountMsg, emit); err != nil {
				return nil, fmt.Errorf("chainworker: block %d: tx %x: %w", h.Slot, tx.TxId, err)
			}
		case TxKindSnarkAccountUpdate:
			if err := applySnarkUpdate(stage, deps, tx.SnarkUpdate, emit); err != nil {
				return nil, fmt.Errorf("chainworker: block %d: tx %x: %w", h.Slot, tx.TxId, err)
			}
		default:
			return nil, fmt.Errorf("chainworker: block %d: tx %x: unknown tx kind %d", h.Slot, tx.TxId, tx.Kind)
		}
	}

	if terminal {
		for _, upd := range block.Body.L1Updates {
			for _, l := range upd.Logs {
				if deps.ReplayASMLog != nil {
					if err := deps.ReplayASMLog(l, stage, emit); err != nil {
						return nil, fmt.Errorf("chainworker: block %d: replay ASM log: %w", h.Slot, err)
					}
				}
			}
		}
	}

	if deps.ComputeLogsRoot != nil {
		root, err := deps.ComputeLogsRoot(logs)
		if err != nil {
			return nil, fmt.Errorf("chainworker: block %d: compute logs root: %w", h.Slot, err)
		}
		if root != h.LogsRoot {
			return nil, fmt.Errorf("chainworker: block %d: logs root mismatch", h.Slot)
		}
	}
	if deps.ComputeStateRoot != nil {
		root, err := deps.ComputeStateRoot(stage)
		if err != nil {
			return nil, fmt.Errorf("chainworker: block %d: compute state root: %w", h.Slot, err)
		}
		if root != h.StateRoot {
			return nil, fmt.Errorf("chainworker: block %d: state root mismatch", h.Slot)
		}
	}

	// Validate every log against the size caps before touching the shared
	// epoch accumulator at all: acc has no rollback, so a capacity failure
	// after recording this block's account diffs or some of its logs would
	// otherwise leave it holding a partial, uncommittable subset of this
	// (to-be-rejected) block's changes.
	totalLogBytes := 0
	for _, l := range logs {
		if len(l.Payload) > chainstate.MaxLogPayloadBytes {
			return nil, fmt.Errorf("chainworker: block %d: %w: log payload %d bytes exceeds %d", h.Slot, chainstate.ErrDAPayloadTooLarge, len(l.Payload), chainstate.MaxLogPayloadBytes)
		}
		totalLogBytes += len(l.Payload)
	}
	if acc.TotalLogBytes()+totalLogBytes > chainstate.MaxTotalLogBytes {
		return nil, fmt.Errorf("chainworker: block %d: %w: total log bytes %d exceeds %d", h.Slot, chainstate.ErrDAPayloadTooLarge, acc.TotalLogBytes()+totalLogBytes, chainstate.MaxTotalLogBytes)
	}

	// Every check passed: fold the staged account mutations and the logs
	// into the epoch accumulator, then commit the same staged map into the
	// accessor.
	for id, stagedAcc := range stage.staged {
		acctAcc := stagedAcc
		if stage.created[id] {
			if err := acc.RecordNewAccount(chainstate.NewAccountEntry{Serial: acctAcc.Serial, Id: acctAcc.Id, Balance: acctAcc.Balance}); err != nil {
				return nil, fmt.Errorf("chainworker: block %d: record new account %x: %w", h.Slot, id, err)
			}
			continue
		}
		balance := acctAcc.Balance
		vk := acctAcc.VK
		seqNo := acctAcc.SeqNo
		acc.RecordAccountDiff(acctAcc.Serial, func(e *chainstate.AccountDiffEntry) {
			e.Balance = &balance
			if len(vk) > 0 {
				e.VK = vk
			}
			e.SeqNo = &seqNo
		})
	}
	for _, l := range logs {
		if err := acc.RecordLog(l); err != nil {
			return nil, fmt.Errorf("chainworker: block %d: record log: %w", h.Slot, err)
		}
	}
	if err := stage.commit(); err != nil {
		return nil, fmt.Errorf("chainworker: block %d: commit staged state: %w", h.Slot, err)
	}

	if terminal {
		for _, upd := range block.Body.L1Updates {
			if manifestMMR != nil {
				if _, err := manifestMMR.AppendLeaf(upd.ManifestLeaf); err != nil {
					return nil, fmt.Errorf("chainworker: block %d: append manifest leaf: %w", h.Slot, err)
				}
			}
			acc.SetLastL1Block(upd.ManifestCommitment)
		}
		acc.SetCurEpoch(h.Epoch + 1)
	}

	next := ChainTip{BlockId: blockId(h), Slot: h.Slot, Epoch: h.Epoch, Timestamp: h.Timestamp}
	return &Result{Tip: next, Logs: logs, Terminal: terminal}, nil
}

// blockId derives a block's identity by domain-tagged hashing the header's
// fields (spec §4.2 domain separation convention). The production wire
// encoding of a header is the wire package's concern; this is a
// self-consistent stand-in so ApplyBlock can chain blocks together
// (ChainTip.BlockId is only ever compared against a value this same
// function produced) without importing it.
func blockId(h Header) xtypes.Hash {
	var slotEpoch [12]byte
	binary.BigEndian.PutUint64(slotEpoch[0:8], uint64(h.Slot))
	binary.BigEndian.PutUint32(slotEpoch[8:12], uint32(h.Epoch))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], h.Timestamp)
	return xtypes.DigestTagged("ol-block-id", slotEpoch[:], h.ParentId[:], h.BodyRoot[:], h.StateRoot[:], h.LogsRoot[:], ts[:], h.Signature)
}

func checkAttachment(slot xtypes.Slot, a Attachment) error {
	if a.MinSlot != nil && slot < *a.MinSlot {
		return fmt.Errorf("tx immature: slot %d < min_slot %d", slot, *a.MinSlot)
	}
	if a.MaxSlot != nil && slot > *a.MaxSlot {
		return fmt.Errorf("tx expired: slot %d > max_slot %d", slot, *a.MaxSlot)
	}
	return nil
}

func applyAccountMessage(stage *BlockStage, deps Dependencies, msg AccountMessage, emit func(chainstate.OLLog)) error {
	dest, _, err := stage.createIfAbsent(msg.Destination, AccountKindGeneric, 0)
	if err != nil {
		return fmt.Errorf("generic account message: %w", err)
	}
	dest.Balance += msg.Credit
	if deps.InvokeMessageHandler != nil {
		if err := deps.InvokeMessageHandler(msg.Destination, msg.Payload, emit); err != nil {
			return fmt.Errorf("message handler rejected payload: %w", err)
		}
	}
	return nil
}

func applySnarkUpdate(stage *BlockStage, deps Dependencies, upd SnarkAccountUpdate, emit func(chainstate.OLLog)) error {
	account, err := stage.get(upd.Account)
	if err != nil {
		return fmt.Errorf("snark account update: %w", err)
	}
	if account.Kind != AccountKindSnark {
		return fmt.Errorf("snark account update: account %x is not a snark-account", upd.Account)
	}
	if upd.SeqNo != account.SeqNo {
		return fmt.Errorf("snark account update: non-monotonic seq_no %d (expected %d)", upd.SeqNo, account.SeqNo)
	}

	if upd.ConsumedInbox != nil {
		if upd.ConsumedInbox.MsgIndex != account.InboxNextIndex {
			return fmt.Errorf("snark account update: invalid-msg-index %d (expected %d)", upd.ConsumedInbox.MsgIndex, account.InboxNextIndex)
		}
		ok, err := merkle.VerifyMMRProof(upd.ConsumedInbox.Message, upd.ConsumedInbox.Proof, account.InboxRoot)
		if err != nil || !ok {
			return fmt.Errorf("snark account update: inbox inclusion proof failed: %v", err)
		}
		account.InboxNextIndex++
	}

	vk := account.VK
	if upd.NewVK != nil {
		vk = upd.NewVK
	}
	if deps.VerifySnarkProof != nil {
		if err := deps.VerifySnarkProof(vk, upd.Proof, upd.PublicInputs); err != nil {
			return fmt.Errorf("snark account update: proof verification failed: %w", err)
		}
	}
	if upd.NewVK != nil {
		account.VK = upd.NewVK
	}
	account.SeqNo++

	total := xtypes.Amount(0)
	for _, t := range upd.Transfers {
		total += t.Amount
	}
	if account.Balance < total {
		return fmt.Errorf("snark account update: insufficient balance: have %d, need %d", account.Balance, total)
	}
	account.Balance -= total
	for _, t := range upd.Transfers {
		dest, _, err := stage.createIfAbsent(t.Destination, AccountKindGeneric, 0)
		if err != nil {
			return fmt.Errorf("snark account update: transfer: %w", err)
		}
		dest.Balance += t.Amount
	}
	for _, m := range upd.Messages {
		if err := applyAccountMessage(stage, deps, m, emit); err != nil {
			return fmt.Errorf("snark account update: output message: %w", err)
		}
	}
	return nil
}
