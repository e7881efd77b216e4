package anchorstate

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// regtestMinBits is the minimum-difficulty compact target used by Bitcoin's
// regtest network. Its target (0x7fffff << 232) admits roughly half of all
// block hashes, including the hash of the fixed header used below, which is
// what makes it useful for exercising the continuity check without mining.
const regtestMinBits = 0x207fffff

func TestVerifyHeaderContinuityAcceptsExtendingHeader(t *testing.T) {
	genesis := xtypes.Hash{1, 2, 3}
	header := &wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash(genesis),
		MerkleRoot: chainhash.Hash(xtypes.Hash{4}),
		Timestamp:  time.Unix(0, 0),
		Bits:       regtestMinBits,
		Nonce:      0,
	}
	if err := VerifyHeaderContinuity(genesis, header); err != nil {
		t.Fatalf("expected a header extending the tip to verify, got %v", err)
	}
}

func TestVerifyHeaderContinuityRejectsWrongParent(t *testing.T) {
	genesis := xtypes.Hash{1}
	header := &wire.BlockHeader{
		PrevBlock: chainhash.Hash(xtypes.Hash{9, 9, 9}),
		Bits:      regtestMinBits,
	}
	if err := VerifyHeaderContinuity(genesis, header); err == nil {
		t.Fatalf("expected a discontinuous header to be rejected")
	}
}

func TestCompactToBigIsDeterministicAndOrdered(t *testing.T) {
	// Bitcoin mainnet genesis block's difficulty bits.
	genesisBits := compactToBig(0x1d00ffff)
	if genesisBits.BitLen() == 0 {
		t.Fatalf("expected a non-zero target")
	}
	if compactToBig(0x1d00ffff).Cmp(genesisBits) != 0 {
		t.Fatalf("compactToBig is not deterministic")
	}
	// A smaller exponent byte must yield a strictly smaller (harder) target.
	harder := compactToBig(0x1c00ffff)
	if harder.Cmp(genesisBits) >= 0 {
		t.Fatalf("expected a smaller exponent to produce a smaller target")
	}
}
