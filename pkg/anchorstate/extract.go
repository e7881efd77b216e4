// Package anchorstate implements the ASM state-transition function (spec
// §4.4, C7): Bitcoin header continuity, the C6 subprotocol pipeline, and
// AnchorState reconstruction from the subprotocols' exported sections.
package anchorstate

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/strataorch/orchestration/pkg/subprotocol"
	"github.com/strataorch/orchestration/pkg/xtypes"
)

// Magic is the 4-byte prefix identifying an ASM-tagged OP_RETURN output,
// distinguishing our transactions from unrelated OP_RETURN traffic sharing the
// same block (spec §4.3 "transactions without the magic prefix are ignored").
var Magic = [4]byte{'A', 'S', 'M', 0x01}

// minTaggedPayloadLen is magic(4) + subprotocol id(1) + tx type(1).
const minTaggedPayloadLen = 6

// ExtractTaggedTxs scans a Bitcoin block's transactions for magic-prefixed
// OP_RETURN outputs and groups the resulting TaggedTx values by subprotocol id
// (spec §4.3 step 1 "Extraction"). A transaction contributes at most one
// TaggedTx: its first matching OP_RETURN output.
func ExtractTaggedTxs(block *wire.MsgBlock) map[xtypes.SubprotocolId][]subprotocol.TaggedTx {
	out := make(map[xtypes.SubprotocolId][]subprotocol.TaggedTx)
	for _, tx := range block.Transactions {
		tagged, ok := extractFromTx(tx)
		if !ok {
			continue
		}
		out[tagged.SubprotocolId] = append(out[tagged.SubprotocolId], tagged)
	}
	return out
}

func extractFromTx(tx *wire.MsgTx) (subprotocol.TaggedTx, bool) {
	for _, out := range tx.TxOut {
		payload, ok := opReturnPayload(out.PkScript)
		if !ok || len(payload) < minTaggedPayloadLen {
			continue
		}
		if payload[0] != Magic[0] || payload[1] != Magic[1] || payload[2] != Magic[2] || payload[3] != Magic[3] {
			continue
		}
		subId := xtypes.SubprotocolId(payload[4])
		txType := payload[5]
		aux := append([]byte{}, payload[6:]...)
		return subprotocol.TaggedTx{
			SubprotocolId: subId,
			TxType:        txType,
			AuxData:       aux,
			TxId:          xtypes.Hash(tx.TxHash()),
		}, true
	}
	return subprotocol.TaggedTx{}, false
}

// opReturnPayload extracts the pushed data from an OP_RETURN script, or
// reports false if pkScript is not an OP_RETURN output.
func opReturnPayload(pkScript []byte) ([]byte, bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, pkScript)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, false
	}
	if !tokenizer.Next() {
		return nil, false
	}
	return tokenizer.Data(), true
}

// EncodeTaggedOutput builds the OP_RETURN script for a tagged ASM transaction,
// the inverse of extractFromTx's payload parsing; used by test fixtures and by
// whatever composes outbound ASM transactions upstream of this package.
func EncodeTaggedOutput(subId xtypes.SubprotocolId, txType uint8, aux []byte) ([]byte, error) {
	payload := make([]byte, 0, minTaggedPayloadLen+len(aux))
	payload = append(payload, Magic[:]...)
	payload = append(payload, byte(subId), txType)
	payload = append(payload, aux...)
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(payload)
	return builder.Script()
}
