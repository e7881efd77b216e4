package anchorstate

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/wire"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// compactToBig expands a Bitcoin "compact" (nBits) difficulty target into a
// big.Int, per the standard Bitcoin consensus encoding: the low 3 bytes are a
// mantissa, the high byte is a base-256 exponent.
func compactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	exponent := compact >> 24

	bn := new(big.Int)
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn.SetUint64(uint64(mantissa))
		return bn
	}
	bn.SetUint64(uint64(mantissa))
	bn.Lsh(bn, uint(8*(exponent-3)))
	return bn
}

// hashToBig interprets a block hash as a big-endian integer for target
// comparison, reversing byte order since Bitcoin hashes are displayed and
// compared little-endian internally but wire.BlockHeader.BlockHash() returns
// the conventional (reversed) chainhash.Hash.
func hashToBig(h [32]byte) *big.Int {
	var reversed [32]byte
	for i := 0; i < 32; i++ {
		reversed[i] = h[32-1-i]
	}
	return new(big.Int).SetBytes(reversed[:])
}

// ErrHeaderDiscontinuous is returned when a header's PrevBlock does not match
// the expected parent (spec §4.4 "verify PoW header continuity against the
// last header state").
var ErrHeaderDiscontinuous = fmt.Errorf("anchorstate: header does not extend the tracked tip")

// ErrInsufficientWork is returned when a header's hash does not satisfy its
// own claimed difficulty target.
var ErrInsufficientWork = fmt.Errorf("anchorstate: header hash does not satisfy its difficulty target")

// VerifyHeaderContinuity checks that header extends prevHash and that its
// hash satisfies its own claimed proof-of-work target. It does not validate
// the difficulty adjustment itself (spec §4.4 names only continuity + PoW,
// not retarget-rule replication) — that is out of scope for the ASM, which
// trusts the aggregated difficulty the checkpoint subprotocol's L1-height
// monotonicity check already anchors against.
func VerifyHeaderContinuity(prevHash xtypes.Hash, header *wire.BlockHeader) error {
	if xtypes.Hash(header.PrevBlock) != prevHash {
		return fmt.Errorf("%w: expected parent %s, got %s", ErrHeaderDiscontinuous, prevHash, xtypes.Hash(header.PrevBlock))
	}
	target := compactToBig(header.Bits)
	hashInt := hashToBig(header.BlockHash())
	if hashInt.Cmp(target) > 0 {
		return ErrInsufficientWork
	}
	return nil
}
