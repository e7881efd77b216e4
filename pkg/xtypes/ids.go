package xtypes

import "fmt"

// Signature64 is a 64-byte ECDSA/Schnorr signature.
type Signature64 [64]byte

// AccountId identifies an OL account; it is a 32-byte hash per spec §3.
type AccountId = Hash

// AccountSerial is a monotonically assigned index identifying an account compactly
// within a DA payload (spec §3, §4.7 LedgerDiff).
type AccountSerial uint64

// Amount is a quantity of satoshis (spec §3).
type Amount uint64

// Slot is a monotonic OL slot index.
type Slot uint64

// Epoch is an OL epoch index.
type Epoch uint32

// Height is a Bitcoin block height.
type Height uint64

// SubprotocolId identifies an ASM subprotocol (spec §4.3).
type SubprotocolId uint8

const (
	SubprotocolCore       SubprotocolId = 0
	SubprotocolBridge     SubprotocolId = 1
	SubprotocolCheckpoint SubprotocolId = 2
	SubprotocolUpgrade    SubprotocolId = 3
)

func (id SubprotocolId) String() string {
	switch id {
	case SubprotocolCore:
		return "core"
	case SubprotocolBridge:
		return "bridge"
	case SubprotocolCheckpoint:
		return "checkpoint"
	case SubprotocolUpgrade:
		return "upgrade"
	default:
		return fmt.Sprintf("subprotocol(%d)", uint8(id))
	}
}

// BlockCommitment pairs a height/slot with a block id so neither can be referenced
// ambiguously (spec §3).
type BlockCommitment struct {
	Height  uint64
	BlockId Hash
}

// ProofKey identifies a cacheable proof by (program identity, zkVM backend) per the
// glossary.
type ProofKey struct {
	Program string
	Backend string
}

func (k ProofKey) String() string {
	return fmt.Sprintf("%s@%s", k.Program, k.Backend)
}
