package merkle

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// Domain tags separate leaf hashes from internal-node hashes so a leaf digest can
// never be replayed as a node digest or vice versa. Each tag is the SHA-256 digest
// of the tag string, doubled out to a 64-byte prefix before being folded into the
// pair hash, mirroring the original Rust MMR hasher's construction.
var (
	mmrLeafTag = doubledTag("leaf")
	mmrNodeTag = doubledTag("node")
)

func doubledTag(label string) []byte {
	h := sha256.Sum256([]byte(label))
	out := make([]byte, 64)
	copy(out[:32], h[:])
	copy(out[32:], h[:])
	return out
}

var (
	ErrMMREmpty        = errors.New("mmr: empty")
	ErrMMRIndexInvalid = errors.New("mmr: index out of range")
)

func hashMMRLeaf(data []byte) []byte {
	h := sha256.New()
	h.Write(mmrLeafTag)
	h.Write(data)
	return h.Sum(nil)
}

func hashMMRNode(left, right []byte) []byte {
	h := sha256.New()
	h.Write(mmrNodeTag)
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// subtreeNodeCount returns the total node count (leaves + internal) of a perfect
// binary subtree of the given height (0 = a single leaf).
func subtreeNodeCount(height uint64) int {
	return int((uint64(1) << (height + 1)) - 1)
}

// peakHeights decomposes numLeaves into the heights of the perfect subtrees ("peaks")
// an MMR with that many leaves is built from, tallest first — one peak per set bit
// of numLeaves, from the most significant bit down.
func peakHeights(numLeaves uint64) []uint64 {
	heights := make([]uint64, 0)
	for h := int(63); h >= 0; h-- {
		if numLeaves&(uint64(1)<<uint(h)) != 0 {
			heights = append(heights, uint64(h))
		}
	}
	return heights
}

// mmrNodeEntry is one entry in the MMR's flat node list, addressed by position
// (0-indexed, in append order — leaves and internal nodes share one contiguous
// index space, the standard "MMR position" scheme).
type mmrNodeEntry struct {
	hash   []byte
	height uint64
}

// MMR is an append-only Merkle Mountain Range: leaves can be appended or popped from
// the tail, and an inclusion proof can be produced for any live leaf against the
// current bagged-peaks root. Used for the OL manifest accumulator (spec §4.3) and any
// other monotonically-growing commitment log.
type MMR struct {
	mu sync.RWMutex

	nodes     []mmrNodeEntry
	leafPos   []int // leafPos[i] = position of the i-th leaf in nodes
	numLeaves uint64
}

// NewMMR returns an empty Merkle Mountain Range.
func NewMMR() *MMR {
	return &MMR{
		nodes:   make([]mmrNodeEntry, 0),
		leafPos: make([]int, 0),
	}
}

// NumLeaves returns the number of leaves currently held (after pops, if any).
func (m *MMR) NumLeaves() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numLeaves
}

// AppendLeaf adds a new leaf and folds any now-complete subtrees into internal nodes,
// returning the leaf's position in the flat node index.
func (m *MMR) AppendLeaf(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldLeaves := m.numLeaves
	pos := len(m.nodes)
	m.nodes = append(m.nodes, mmrNodeEntry{hash: hashMMRLeaf(data), height: 0})
	m.leafPos = append(m.leafPos, pos)
	m.numLeaves++

	// Binary-counter merge: each trailing 1 bit of the pre-append leaf count means
	// a peak of that height sits immediately to the left of the new leaf, ready to
	// combine with it — exactly like a carry chain in binary addition.
	n := oldLeaves
	h := uint64(0)
	for n&1 == 1 {
		rightPos := len(m.nodes) - 1
		leftPos := rightPos - subtreeNodeCount(h)
		parent := hashMMRNode(m.nodes[leftPos].hash, m.nodes[rightPos].hash)
		m.nodes = append(m.nodes, mmrNodeEntry{hash: parent, height: h + 1})
		n >>= 1
		h++
	}

	return pos, nil
}

// peaksLocked returns the current peak hashes, tallest first, along with the start
// position and height of each peak's subtree.
func (m *MMR) peaksLocked() (hashes [][]byte, starts []int, heights []uint64) {
	if m.numLeaves == 0 {
		return nil, nil, nil
	}
	heights = peakHeights(m.numLeaves)
	pos := 0
	for _, h := range heights {
		size := subtreeNodeCount(h)
		starts = append(starts, pos)
		hashes = append(hashes, m.nodes[pos+size-1].hash)
		pos += size
	}
	return hashes, starts, heights
}

// Peaks returns the current peak hashes, ordered tallest to shortest.
func (m *MMR) Peaks() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hashes, _, _ := m.peaksLocked()
	return hashes
}

// bagPeaks folds a tallest-first peak list into a single root by right-folding:
// root = H(peaks[0], H(peaks[1], H(..., peaks[n-1]))).
func bagPeaks(peaks [][]byte) []byte {
	if len(peaks) == 0 {
		return nil
	}
	root := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		root = hashMMRNode(peaks[i], root)
	}
	return root
}

// Root bags all current peaks into a single root hash, or nil if the MMR is empty.
func (m *MMR) Root() []byte {
	return bagPeaks(m.Peaks())
}

// mmrPathStep is one step of a leaf-to-peak proof path: the sibling subtree's root
// hash, and whether that sibling sits to the right of the node being folded (i.e.
// the node being folded is the left child of their shared parent).
type mmrPathStep struct {
	siblingHash    []byte
	siblingOnRight bool
}

// descendPath locates the leaf at relative offset `rel` within a perfect subtree of
// height h starting at position `base`, returning the fold path in leaf-to-root
// order.
func descendPath(nodes []mmrNodeEntry, base int, h uint64, rel int) []mmrPathStep {
	if h == 0 {
		return nil
	}
	leftSize := subtreeNodeCount(h - 1)
	if rel < leftSize {
		rightRootPos := base + leftSize + leftSize - 1
		rest := descendPath(nodes, base, h-1, rel)
		return append(rest, mmrPathStep{siblingHash: nodes[rightRootPos].hash, siblingOnRight: true})
	}
	leftRootPos := base + leftSize - 1
	rest := descendPath(nodes, base+leftSize, h-1, rel-leftSize)
	return append(rest, mmrPathStep{siblingHash: nodes[leftRootPos].hash, siblingOnRight: false})
}

// MMRProofNode is one hop of a serialized inclusion-proof path.
type MMRProofNode struct {
	Hash           string `json:"hash"`
	SiblingOnRight bool   `json:"sibling_on_right"`
}

// MMRInclusionProof proves that a specific leaf is included under the bagged root of
// an MMR holding a known number of leaves.
type MMRInclusionProof struct {
	LeafHash   string         `json:"leaf_hash"`
	LeafIndex  int            `json:"leaf_index"`
	Root       string         `json:"root"`
	NumLeaves  uint64         `json:"num_leaves"`
	Path       []MMRProofNode `json:"path"`
	PeakIndex  int            `json:"peak_index"`
	OtherPeaks []string       `json:"other_peaks"`
}

func (m *MMR) generateProofLocked(leafIndex int) (*MMRInclusionProof, error) {
	if leafIndex < 0 || leafIndex >= len(m.leafPos) {
		return nil, ErrMMRIndexInvalid
	}
	leafPos := m.leafPos[leafIndex]

	_, starts, heights := m.peaksLocked()
	peakIdx := -1
	for i, start := range starts {
		size := subtreeNodeCount(heights[i])
		if leafPos >= start && leafPos < start+size {
			peakIdx = i
			break
		}
	}
	if peakIdx == -1 {
		return nil, fmt.Errorf("mmr: leaf position %d not under any peak", leafPos)
	}

	steps := descendPath(m.nodes, starts[peakIdx], heights[peakIdx], leafPos-starts[peakIdx])
	path := make([]MMRProofNode, len(steps))
	for i, s := range steps {
		path[i] = MMRProofNode{Hash: hex.EncodeToString(s.siblingHash), SiblingOnRight: s.siblingOnRight}
	}

	peakHashes, _, _ := m.peaksLocked()
	otherPeaks := make([]string, 0, len(peakHashes)-1)
	for i, p := range peakHashes {
		if i == peakIdx {
			continue
		}
		otherPeaks = append(otherPeaks, hex.EncodeToString(p))
	}

	return &MMRInclusionProof{
		LeafHash:   hex.EncodeToString(m.nodes[leafPos].hash),
		LeafIndex:  leafIndex,
		Root:       hex.EncodeToString(bagPeaks(peakHashes)),
		NumLeaves:  m.numLeaves,
		Path:       path,
		PeakIndex:  peakIdx,
		OtherPeaks: otherPeaks,
	}, nil
}

// GenerateProof builds an inclusion proof for the i-th appended leaf still live in
// the MMR.
func (m *MMR) GenerateProof(leafIndex int) (*MMRInclusionProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generateProofLocked(leafIndex)
}

// GenerateProofs builds inclusion proofs for multiple leaves under a single read
// lock. Each proof is built by the same routine GenerateProof uses, so the peaks
// are recomputed for every index; no work is shared between indexes.
func (m *MMR) GenerateProofs(leafIndexes []int) ([]*MMRInclusionProof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	proofs := make([]*MMRInclusionProof, len(leafIndexes))
	for i, idx := range leafIndexes {
		p, err := m.generateProofLocked(idx)
		if err != nil {
			return nil, fmt.Errorf("mmr: index %d (leaf %d): %w", i, idx, err)
		}
		proofs[i] = p
	}
	return proofs, nil
}

// VerifyMMRProof recomputes the root from a leaf's data and its proof path and
// compares it against expectedRoot in constant time.
func VerifyMMRProof(leafData []byte, proof *MMRInclusionProof, expectedRoot []byte) (bool, error) {
	if proof == nil {
		return false, errors.New("mmr: nil proof")
	}
	current := hashMMRLeaf(leafData)
	for _, node := range proof.Path {
		sibling, err := hex.DecodeString(node.Hash)
		if err != nil {
			return false, fmt.Errorf("mmr: invalid sibling hash: %w", err)
		}
		if node.SiblingOnRight {
			current = hashMMRNode(current, sibling)
		} else {
			current = hashMMRNode(sibling, current)
		}
	}

	peaks := make([][]byte, len(proof.OtherPeaks)+1)
	for i := range peaks {
		if i == proof.PeakIndex {
			peaks[i] = current
			continue
		}
		srcIdx := i
		if i > proof.PeakIndex {
			srcIdx--
		}
		p, err := hex.DecodeString(proof.OtherPeaks[srcIdx])
		if err != nil {
			return false, fmt.Errorf("mmr: invalid peak hash: %w", err)
		}
		peaks[i] = p
	}

	root := bagPeaks(peaks)
	want, err := hex.DecodeString(proof.Root)
	if err != nil {
		return false, fmt.Errorf("mmr: invalid embedded root: %w", err)
	}
	if subtle.ConstantTimeCompare(root, want) != 1 {
		return false, nil
	}
	return subtle.ConstantTimeCompare(root, expectedRoot) == 1, nil
}

// PopLeaf removes the most recently appended leaf, rolling back any internal nodes
// that were derived from it. Only the tail leaf can be popped (append-only log
// semantics, spec §4.3 "rewindable accumulator").
func (m *MMR) PopLeaf() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numLeaves == 0 {
		return ErrMMREmpty
	}
	lastLeafPos := m.leafPos[len(m.leafPos)-1]
	m.nodes = m.nodes[:lastLeafPos]
	m.leafPos = m.leafPos[:len(m.leafPos)-1]
	m.numLeaves--
	return nil
}

// CompactMMR is the minimal state needed to resume appending to an MMR without
// retaining full history: the current peak hashes plus the leaf count.
type CompactMMR struct {
	NumLeaves uint64   `json:"num_leaves"`
	Peaks     []string `json:"peaks"`
}

// ToCompact exports the minimal peak-only representation, discarding full node
// history. A compacted MMR can still accept new AppendLeaf calls and compute proofs
// for newly appended leaves, but proofs for leaves that predate compaction are no
// longer derivable locally (the caller must have retained them beforehand).
func (m *MMR) ToCompact() *CompactMMR {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peaks, _, _ := m.peaksLocked()
	out := make([]string, len(peaks))
	for i, p := range peaks {
		out[i] = hex.EncodeToString(p)
	}
	return &CompactMMR{NumLeaves: m.numLeaves, Peaks: out}
}

// MMRFromCompact rebuilds an MMR that can accept further appends from a compacted
// peak list. The rebuilt MMR has no retrievable history or proof capability for
// pre-compaction leaves.
func MMRFromCompact(c *CompactMMR) (*MMR, error) {
	if c == nil {
		return NewMMR(), nil
	}
	heights := peakHeights(c.NumLeaves)
	if len(heights) != len(c.Peaks) {
		return nil, fmt.Errorf("mmr: compact state has %d peaks, expected %d for %d leaves", len(c.Peaks), len(heights), c.NumLeaves)
	}
	m := NewMMR()
	m.numLeaves = c.NumLeaves
	for i, h := range heights {
		size := subtreeNodeCount(h)
		peakBytes, err := hex.DecodeString(c.Peaks[i])
		if err != nil {
			return nil, fmt.Errorf("mmr: invalid compact peak %d: %w", i, err)
		}
		for j := 0; j < size-1; j++ {
			m.nodes = append(m.nodes, mmrNodeEntry{})
		}
		m.nodes = append(m.nodes, mmrNodeEntry{hash: peakBytes, height: h})
	}
	return m, nil
}
