package chainstate

import (
	"fmt"
	"sort"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// Per-field and per-payload size limits a DA payload must respect (spec §7
// "Capacity-exceeded").
const (
	MaxMessagePayloadBytes = 4096
	MaxLogPayloadBytes     = 512
	MaxTotalLogBytes       = 16 * 1024
)

// GlobalStateDiff is a compound of DaRegisters over epochal scalars (spec §4.7).
type GlobalStateDiff struct {
	CurEpoch    *DaRegister[xtypes.Epoch]
	LastL1Block *DaRegister[xtypes.Hash]
}

// NewGlobalStateDiff wires a GlobalStateDiff's registers into a WriteBatch so the
// accumulator's emptiness/commit logic covers them uniformly.
func NewGlobalStateDiff(batch *WriteBatch, curEpoch xtypes.Epoch, lastL1Block xtypes.Hash) *GlobalStateDiff {
	g := &GlobalStateDiff{
		CurEpoch:    NewDaRegister(curEpoch),
		LastL1Block: NewDaRegister(lastL1Block),
	}
	batch.Track("global.cur_epoch", g.CurEpoch)
	batch.Track("global.last_l1_block", g.LastL1Block)
	return g
}

// NewAccountEntry describes a newly created account in a DA payload. New-account
// serials must be contiguous and strictly increasing (spec §4.7 "gap -> error").
type NewAccountEntry struct {
	Serial  xtypes.AccountSerial
	Id      xtypes.AccountId
	Balance xtypes.Amount
}

// AccountDiffEntry carries the changed fields of a pre-existing account. Unset
// pointer fields did not change. VK/SeqNo/ProofState are only meaningful for
// snark-accounts (spec §4.7 "snark-account diffs carry VK register, seq-no counter,
// proof-state register").
type AccountDiffEntry struct {
	Serial     xtypes.AccountSerial
	Balance    *xtypes.Amount
	VK         []byte
	SeqNo      *uint64
	ProofState []byte
}

// DaMessageEntry is one inbox-buffer entry: a message destined for AccountId at
// MsgIdx.
type DaMessageEntry struct {
	Account xtypes.AccountId
	MsgIdx  uint64
	Payload []byte
}

// OLLog is one output log entry, attributed to the account that emitted it.
type OLLog struct {
	AccountSerial xtypes.AccountSerial
	Payload       []byte
}

// LedgerDiff is the sorted, deduplicated account-level component of an OLStateDiff.
type LedgerDiff struct {
	NewAccounts []NewAccountEntry
	Existing    []AccountDiffEntry
}

// OLStateDiff is the fully assembled per-epoch DA payload body (spec §6
// "OLStateDiff").
type OLStateDiff struct {
	Global      GlobalStateDiff
	Ledger      LedgerDiff
	InboxBuffer []DaMessageEntry
	OutputLogs  []OLLog
}

// ErrDAPayloadTooLarge is returned when a sealed payload would exceed the
// configured max-DA-size (spec §4.7 "exceeding the bound is a deterministic
// error").
var ErrDAPayloadTooLarge = fmt.Errorf("chainstate: DA payload exceeds max size")

// Accumulator collects per-block writes into a single epoch's DA payload: new and
// changed accounts, deduplicated inbox messages, and size-bounded output logs (spec
// §4.7, C9).
type Accumulator struct {
	batch *WriteBatch
	g     *GlobalStateDiff

	newAccounts []NewAccountEntry
	existing    map[xtypes.AccountSerial]*AccountDiffEntry

	inbox      map[inboxKey]DaMessageEntry
	inboxOrder []inboxKey

	logs          []OLLog
	totalLogBytes int

	nextNewSerial xtypes.AccountSerial
	haveNewSerial bool
}

type inboxKey struct {
	account xtypes.AccountId
	msgIdx  uint64
}

// NewAccumulator starts a fresh per-epoch accumulator seeded with the epoch's
// opening global scalars.
func NewAccumulator(curEpoch xtypes.Epoch, lastL1Block xtypes.Hash) *Accumulator {
	batch := NewWriteBatch()
	return &Accumulator{
		batch:    batch,
		g:        NewGlobalStateDiff(batch, curEpoch, lastL1Block),
		existing: make(map[xtypes.AccountSerial]*AccountDiffEntry),
		inbox:    make(map[inboxKey]DaMessageEntry),
	}
}

// SetCurEpoch updates the epoch register.
func (a *Accumulator) SetCurEpoch(e xtypes.Epoch) { a.g.CurEpoch.Set(e) }

// SetLastL1Block updates the last-observed-L1-commitment register.
func (a *Accumulator) SetLastL1Block(h xtypes.Hash) { a.g.LastL1Block.Set(h) }

// RecordNewAccount appends a newly created account. Serials must be presented in
// strictly increasing, contiguous order; any gap is rejected immediately rather
// than deferred to Seal, since the caller is in the best position to diagnose it.
func (a *Accumulator) RecordNewAccount(entry NewAccountEntry) error {
	if a.haveNewSerial && entry.Serial != a.nextNewSerial {
		return fmt.Errorf("chainstate: new account serial %d is not contiguous (expected %d)", entry.Serial, a.nextNewSerial)
	}
	a.newAccounts = append(a.newAccounts, entry)
	a.nextNewSerial = entry.Serial + 1
	a.haveNewSerial = true
	return nil
}

// RecordAccountDiff merges a changed field set into the existing-account diff for
// serial, creating the entry on first touch.
func (a *Accumulator) RecordAccountDiff(serial xtypes.AccountSerial, mutate func(*AccountDiffEntry)) {
	entry, ok := a.existing[serial]
	if !ok {
		entry = &AccountDiffEntry{Serial: serial}
		a.existing[serial] = entry
	}
	mutate(entry)
}

// RecordInboxMessage adds (or overwrites, if already present) a dispatched inbox
// message, deduplicated by (account, msg_idx) per spec §4.7.
func (a *Accumulator) RecordInboxMessage(entry DaMessageEntry) error {
	if len(entry.Payload) > MaxMessagePayloadBytes {
		return fmt.Errorf("%w: message payload %d bytes exceeds %d", ErrDAPayloadTooLarge, len(entry.Payload), MaxMessagePayloadBytes)
	}
	key := inboxKey{account: entry.Account, msgIdx: entry.MsgIdx}
	if _, existed := a.inbox[key]; !existed {
		a.inboxOrder = append(a.inboxOrder, key)
	}
	a.inbox[key] = entry
	return nil
}

// TotalLogBytes returns the sum of log payload bytes recorded so far this
// epoch, so a caller that wants to pre-validate a whole block's logs against
// the cumulative cap before recording any of them (to avoid leaving the
// accumulator holding a partial, to-be-rejected block's logs) can do so.
func (a *Accumulator) TotalLogBytes() int { return a.totalLogBytes }

// RecordLog appends an output log, enforcing the per-log and total-log size caps.
func (a *Accumulator) RecordLog(log OLLog) error {
	if len(log.Payload) > MaxLogPayloadBytes {
		return fmt.Errorf("%w: log payload %d bytes exceeds %d", ErrDAPayloadTooLarge, len(log.Payload), MaxLogPayloadBytes)
	}
	if a.totalLogBytes+len(log.Payload) > MaxTotalLogBytes {
		return fmt.Errorf("%w: total log bytes would exceed %d", ErrDAPayloadTooLarge, MaxTotalLogBytes)
	}
	a.logs = append(a.logs, log)
	a.totalLogBytes += len(log.Payload)
	return nil
}

// IsEmpty reports whether the accumulator has nothing to seal: no global-scalar
// change, no new or changed accounts, no inbox messages, no logs. Sealing an empty
// accumulator is the identity per the write-batch invariant (spec §4.1).
func (a *Accumulator) IsEmpty() bool {
	return a.batch.IsEmpty() && len(a.newAccounts) == 0 && len(a.existing) == 0 &&
		len(a.inbox) == 0 && len(a.logs) == 0
}

// Seal assembles the accumulated writes into an OLStateDiff, sorting existing-account
// diffs by serial and inbox entries by (account, msg_idx) for a deterministic
// encoding, and rejects the result if it would exceed maxDASize once wire-encoded.
// encodedSize is supplied by the caller (the wire package knows the exact framing)
// so this package stays free of a codec dependency.
func (a *Accumulator) Seal(maxDASize int, encodedSize func(*OLStateDiff) (int, error)) (*OLStateDiff, error) {
	existing := make([]AccountDiffEntry, 0, len(a.existing))
	for _, e := range a.existing {
		existing = append(existing, *e)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Serial < existing[j].Serial })

	inbox := make([]DaMessageEntry, 0, len(a.inbox))
	for _, k := range a.inboxOrder {
		inbox = append(inbox, a.inbox[k])
	}
	sort.Slice(inbox, func(i, j int) bool {
		if inbox[i].Account != inbox[j].Account {
			return string(inbox[i].Account[:]) < string(inbox[j].Account[:])
		}
		return inbox[i].MsgIdx < inbox[j].MsgIdx
	})

	diff := &OLStateDiff{
		Global: *a.g,
		Ledger: LedgerDiff{
			NewAccounts: a.newAccounts,
			Existing:    existing,
		},
		InboxBuffer: inbox,
		OutputLogs:  a.logs,
	}

	if encodedSize != nil {
		size, err := encodedSize(diff)
		if err != nil {
			return nil, fmt.Errorf("chainstate: compute encoded size: %w", err)
		}
		if size > maxDASize {
			return nil, fmt.Errorf("%w: %d bytes > max %d", ErrDAPayloadTooLarge, size, maxDASize)
		}
	}

	a.batch.Commit()
	return diff, nil
}
