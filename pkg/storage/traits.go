package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// ErrNotFound is returned by single-value lookups when the key is absent,
// mirroring the teacher's pkg/ledger sentinel-error convention
// (pkg/ledger.ErrMetaNotFound) rather than returning (nil, nil).
var ErrNotFound = errors.New("storage: not found")

func beU64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func getJSON(kv KV, key []byte, out interface{}) error {
	b, err := kv.Get(key)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrNotFound
	}
	return json.Unmarshal(b, out)
}

func setJSON(kv KV, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(key, b)
}

// ---- L1 DB: manifest-by-height, manifest-by-blockid, txs-by-blockid (spec §6) ----

// L1Manifest is whatever summary this repository tracks about one Bitcoin
// block; its fields are intentionally opaque bytes, since the manifest
// content (header continuity state, predicate outcomes) is owned by
// pkg/anchorstate, not by the storage layer.
type L1Manifest struct {
	Height  uint64
	BlockId xtypes.Hash
	Body    []byte
}

// L1Store implements the L1 DB trait.
type L1Store struct{ kv KV }

func NewL1Store(kv KV) *L1Store { return &L1Store{kv: kv} }

func (s *L1Store) PutManifest(m L1Manifest) error {
	if err := setJSON(s.kv, l1ManifestByHeightKey(m.Height), m); err != nil {
		return err
	}
	return setJSON(s.kv, l1ManifestByBlockIdKey(m.BlockId), m)
}

func (s *L1Store) ManifestByHeight(height uint64) (L1Manifest, error) {
	var m L1Manifest
	err := getJSON(s.kv, l1ManifestByHeightKey(height), &m)
	return m, err
}

func (s *L1Store) ManifestByBlockId(id xtypes.Hash) (L1Manifest, error) {
	var m L1Manifest
	err := getJSON(s.kv, l1ManifestByBlockIdKey(id), &m)
	return m, err
}

func (s *L1Store) PutTxsByBlockId(id xtypes.Hash, txIds []xtypes.Hash) error {
	return setJSON(s.kv, l1TxsByBlockIdKey(id), txIds)
}

func (s *L1Store) TxsByBlockId(id xtypes.Hash) ([]xtypes.Hash, error) {
	var txIds []xtypes.Hash
	err := getJSON(s.kv, l1TxsByBlockIdKey(id), &txIds)
	return txIds, err
}

func l1ManifestByHeightKey(height uint64) []byte {
	return append([]byte("l1:manifest:height:"), beU64(height)...)
}
func l1ManifestByBlockIdKey(id xtypes.Hash) []byte {
	return append([]byte("l1:manifest:blockid:"), id[:]...)
}
func l1TxsByBlockIdKey(id xtypes.Hash) []byte {
	return append([]byte("l1:txs:blockid:"), id[:]...)
}

// ---- L2/OL DB: block-by-id, block-ids-at-height, block-status (spec §6) ----

// BlockStatus is the OL block validity status the OL DB tracks per block.
type BlockStatus int

const (
	BlockUnchecked BlockStatus = iota
	BlockValid
	BlockInvalid
)

// OLStore implements the L2/OL DB trait.
type OLStore struct{ kv KV }

func NewOLStore(kv KV) *OLStore { return &OLStore{kv: kv} }

func (s *OLStore) PutBlock(id xtypes.Hash, height uint64, body []byte) error {
	if err := s.kv.Set(olBlockByIdKey(id), body); err != nil {
		return err
	}
	var ids []xtypes.Hash
	_ = getJSON(s.kv, olBlockIdsAtHeightKey(height), &ids)
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return setJSON(s.kv, olBlockIdsAtHeightKey(height), ids)
}

func (s *OLStore) Block(id xtypes.Hash) ([]byte, error) {
	b, err := s.kv.Get(olBlockByIdKey(id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *OLStore) BlockIdsAtHeight(height uint64) ([]xtypes.Hash, error) {
	var ids []xtypes.Hash
	err := getJSON(s.kv, olBlockIdsAtHeightKey(height), &ids)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

func (s *OLStore) SetBlockStatus(id xtypes.Hash, status BlockStatus) error {
	return s.kv.Set(olBlockStatusKey(id), []byte{byte(status)})
}

func (s *OLStore) BlockStatus(id xtypes.Hash) (BlockStatus, error) {
	b, err := s.kv.Get(olBlockStatusKey(id))
	if err != nil {
		return BlockUnchecked, err
	}
	if len(b) == 0 {
		return BlockUnchecked, nil
	}
	return BlockStatus(b[0]), nil
}

func olBlockByIdKey(id xtypes.Hash) []byte  { return append([]byte("ol:block:id:"), id[:]...) }
func olBlockIdsAtHeightKey(h uint64) []byte { return append([]byte("ol:block:height:"), beU64(h)...) }
func olBlockStatusKey(id xtypes.Hash) []byte {
	return append([]byte("ol:block:status:"), id[:]...)
}

// ---- OL-state DB (spec §6) ----

// OLStateStore implements the OL-state DB trait: write-batch-by-block,
// finalized-state snapshot, manifest-MMR by L1 height, snark-account inbox
// by (account, msg_idx).
type OLStateStore struct{ kv KV }

func NewOLStateStore(kv KV) *OLStateStore { return &OLStateStore{kv: kv} }

func (s *OLStateStore) PutWriteBatch(blockId xtypes.Hash, encoded []byte) error {
	return s.kv.Set(olStateWriteBatchKey(blockId), encoded)
}

func (s *OLStateStore) WriteBatch(blockId xtypes.Hash) ([]byte, error) {
	b, err := s.kv.Get(olStateWriteBatchKey(blockId))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *OLStateStore) PutFinalizedStateSnapshot(snapshot []byte) error {
	return s.kv.Set([]byte("ol:state:finalized"), snapshot)
}

func (s *OLStateStore) FinalizedStateSnapshot() ([]byte, error) {
	b, err := s.kv.Get([]byte("ol:state:finalized"))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *OLStateStore) PutManifestMMR(l1Height uint64, peaks [][]byte) error {
	return setJSON(s.kv, olStateManifestMMRKey(l1Height), peaks)
}

func (s *OLStateStore) ManifestMMR(l1Height uint64) ([][]byte, error) {
	var peaks [][]byte
	err := getJSON(s.kv, olStateManifestMMRKey(l1Height), &peaks)
	return peaks, err
}

func (s *OLStateStore) PutSnarkInboxEntry(account xtypes.AccountId, msgIdx uint64, payload []byte) error {
	return s.kv.Set(olStateSnarkInboxKey(account, msgIdx), payload)
}

func (s *OLStateStore) SnarkInboxEntry(account xtypes.AccountId, msgIdx uint64) ([]byte, error) {
	b, err := s.kv.Get(olStateSnarkInboxKey(account, msgIdx))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func olStateWriteBatchKey(id xtypes.Hash) []byte {
	return append([]byte("olstate:wb:"), id[:]...)
}
func olStateManifestMMRKey(h uint64) []byte {
	return append([]byte("olstate:mmr:"), beU64(h)...)
}
func olStateSnarkInboxKey(account xtypes.AccountId, msgIdx uint64) []byte {
	k := append([]byte("olstate:inbox:"), account[:]...)
	return append(k, beU64(msgIdx)...)
}

// ---- ASM DB (spec §6) ----

// ASMStore implements the ASM DB trait: anchor-state-by-L1-commitment,
// logs-by-L1-commitment.
type ASMStore struct{ kv KV }

func NewASMStore(kv KV) *ASMStore { return &ASMStore{kv: kv} }

func (s *ASMStore) PutAnchorState(commitment xtypes.BlockCommitment, state []byte) error {
	return s.kv.Set(asmAnchorStateKey(commitment), state)
}

func (s *ASMStore) AnchorState(commitment xtypes.BlockCommitment) ([]byte, error) {
	b, err := s.kv.Get(asmAnchorStateKey(commitment))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *ASMStore) PutLogs(commitment xtypes.BlockCommitment, logs [][]byte) error {
	return setJSON(s.kv, asmLogsKey(commitment), logs)
}

func (s *ASMStore) Logs(commitment xtypes.BlockCommitment) ([][]byte, error) {
	var logs [][]byte
	err := getJSON(s.kv, asmLogsKey(commitment), &logs)
	return logs, err
}

func asmAnchorStateKey(c xtypes.BlockCommitment) []byte {
	k := append([]byte("asm:anchorstate:"), beU64(c.Height)...)
	return append(k, c.BlockId[:]...)
}
func asmLogsKey(c xtypes.BlockCommitment) []byte {
	k := append([]byte("asm:logs:"), beU64(c.Height)...)
	return append(k, c.BlockId[:]...)
}

// ---- Checkpoint DB (spec §6) ----

// CheckpointEntry tracks the two status fields spec §6 names for one epoch's
// checkpoint.
type CheckpointEntry struct {
	ProvingStatus      string
	ConfirmationStatus string
}

// CheckpointStore implements the checkpoint DB trait: epoch-summary map at
// epoch-index, checkpoint-entry by epoch.
type CheckpointStore struct{ kv KV }

func NewCheckpointStore(kv KV) *CheckpointStore { return &CheckpointStore{kv: kv} }

func (s *CheckpointStore) PutEpochSummary(epoch xtypes.Epoch, terminal uint64, summary []byte) error {
	return setJSON(s.kv, checkpointEpochSummaryKey(epoch), epochSummaryRecord{Terminal: terminal, Summary: summary})
}

func (s *CheckpointStore) EpochSummary(epoch xtypes.Epoch) (terminal uint64, summary []byte, err error) {
	var rec epochSummaryRecord
	err = getJSON(s.kv, checkpointEpochSummaryKey(epoch), &rec)
	return rec.Terminal, rec.Summary, err
}

func (s *CheckpointStore) PutEntry(epoch xtypes.Epoch, entry CheckpointEntry) error {
	return setJSON(s.kv, checkpointEntryKey(epoch), entry)
}

func (s *CheckpointStore) Entry(epoch xtypes.Epoch) (CheckpointEntry, error) {
	var entry CheckpointEntry
	err := getJSON(s.kv, checkpointEntryKey(epoch), &entry)
	return entry, err
}

type epochSummaryRecord struct {
	Terminal uint64
	Summary  []byte
}

func checkpointEpochSummaryKey(epoch xtypes.Epoch) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(epoch))
	return append([]byte("checkpoint:summary:"), b...)
}
func checkpointEntryKey(epoch xtypes.Epoch) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(epoch))
	return append([]byte("checkpoint:entry:"), b...)
}

// ---- Proof DB (spec §6) ----

// ProofStore implements the proof DB trait: proof-by-(program-id, host),
// deps-by-program-id.
type ProofStore struct{ kv KV }

func NewProofStore(kv KV) *ProofStore { return &ProofStore{kv: kv} }

func (s *ProofStore) PutProof(key xtypes.ProofKey, proof []byte) error {
	return s.kv.Set(proofKey(key), proof)
}

func (s *ProofStore) Proof(key xtypes.ProofKey) ([]byte, bool, error) {
	b, err := s.kv.Get(proofKey(key))
	if err != nil {
		return nil, false, err
	}
	return b, b != nil, nil
}

func (s *ProofStore) PutDependencies(program string, deps []xtypes.ProofKey) error {
	return setJSON(s.kv, proofDepsKey(program), deps)
}

func (s *ProofStore) Dependencies(program string) ([]xtypes.ProofKey, error) {
	var deps []xtypes.ProofKey
	err := getJSON(s.kv, proofDepsKey(program), &deps)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return deps, err
}

func proofKey(key xtypes.ProofKey) []byte {
	return []byte(fmt.Sprintf("proof:proof:%s:%s", key.Program, key.Backend))
}
func proofDepsKey(program string) []byte {
	return []byte("proof:deps:" + program)
}

// ---- Broadcast/writer DB (spec §6) ----

// BroadcastStore implements the broadcast/writer DB trait: L1 tx entries
// keyed by monotonic u64, last-key accessor.
type BroadcastStore struct{ kv KV }

func NewBroadcastStore(kv KV) *BroadcastStore { return &BroadcastStore{kv: kv} }

func (s *BroadcastStore) Append(entry []byte) (uint64, error) {
	last, err := s.LastKey()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	next := last + 1
	if err := s.kv.Set(broadcastEntryKey(next), entry); err != nil {
		return 0, err
	}
	if err := s.kv.Set([]byte("broadcast:lastkey"), beU64(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *BroadcastStore) Entry(key uint64) ([]byte, error) {
	b, err := s.kv.Get(broadcastEntryKey(key))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *BroadcastStore) LastKey() (uint64, error) {
	b, err := s.kv.Get([]byte("broadcast:lastkey"))
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, ErrNotFound
	}
	return binary.BigEndian.Uint64(b), nil
}

func broadcastEntryKey(key uint64) []byte {
	return append([]byte("broadcast:entry:"), beU64(key)...)
}
