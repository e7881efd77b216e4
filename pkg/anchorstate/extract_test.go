package anchorstate

import (
	"testing"

	"github.com/btcsuite/btcd/wire"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

func TestEncodeAndExtractRoundTrip(t *testing.T) {
	script, err := EncodeTaggedOutput(xtypes.SubprotocolCore, 7, []byte("payload"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))

	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
	byProto := ExtractTaggedTxs(block)

	txs := byProto[xtypes.SubprotocolCore]
	if len(txs) != 1 {
		t.Fatalf("expected one extracted tx, got %d", len(txs))
	}
	if txs[0].TxType != 7 || string(txs[0].AuxData) != "payload" {
		t.Fatalf("unexpected extracted tx: %+v", txs[0])
	}
}

func TestExtractIgnoresUntaggedOutputs(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x6a, 0x02, 0xde, 0xad})) // unrelated OP_RETURN

	block := &wire.MsgBlock{Transactions: []*wire.MsgTx{tx}}
	byProto := ExtractTaggedTxs(block)
	if len(byProto) != 0 {
		t.Fatalf("expected no tagged txs, got %+v", byProto)
	}
}
