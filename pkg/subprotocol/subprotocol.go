// Package subprotocol implements the ASM's two-phase subprotocol dispatch
// framework (spec §4.3, C6): extraction, auxiliary-request collection, auxiliary
// verification, process, and finish, run in a fixed subprotocol order every
// Bitcoin block.
package subprotocol

import "github.com/strataorch/orchestration/pkg/xtypes"

// TaggedTx is one OP_RETURN-tagged Bitcoin transaction routed to a subprotocol by
// its id, per spec §4.3 "extraction".
type TaggedTx struct {
	SubprotocolId xtypes.SubprotocolId
	TxType        uint8
	AuxData       []byte
	TxId          xtypes.Hash
}

// AuxRequestKind names the two auxiliary-data request shapes a subprotocol may
// issue during pre-process (spec §4.3 step 2).
type AuxRequestKind int

const (
	AuxRequestManifestLeafRange AuxRequestKind = iota
	AuxRequestRawBitcoinTx
)

// AuxRequest is one outstanding auxiliary-data request from a subprotocol.
type AuxRequest struct {
	Kind AuxRequestKind

	// Populated for AuxRequestManifestLeafRange.
	FromL1Height uint64
	ToL1Height   uint64

	// Populated for AuxRequestRawBitcoinTx.
	TxId xtypes.Hash
}

// AuxResponse is the verified answer to an AuxRequest (verification itself happens
// outside this package, against the manifest MMR and a Bitcoin header — spec §4.3
// step 3 "auxiliary verification"; failures there are fatal to the block before
// this package ever sees a response).
type AuxResponse struct {
	Kind AuxRequestKind

	ManifestLeaves [][]byte
	RawTx          []byte
}

// Msg is any inter-subprotocol message; it names its own destination so the
// framework can route it without a central switch (spec §4.6).
type Msg interface {
	DestinationId() xtypes.SubprotocolId
}

// Log is one entry appended to the shared ASM log buffer (spec §4.3 step 4
// "emit_log").
type Log struct {
	Payload []byte
}

// MsgRelayer is handed to a subprotocol during process_txs/process_msgs so it can
// emit cross-subprotocol messages and logs without reaching into framework
// internals.
type MsgRelayer interface {
	RelayMsg(msg Msg)
	EmitLog(log Log)
}

// Subprotocol is implemented by each of core/bridge/checkpoint/upgrade (spec
// §4.3/§4.5). PreProcessTxs runs first and may request auxiliary data;
// ProcessTxs runs once that data has been verified; ProcessMsgs delivers the
// current block's inbound cross-subprotocol messages.
type Subprotocol interface {
	Id() xtypes.SubprotocolId
	PreProcessTxs(txs []TaggedTx) []AuxRequest

	// ProcessTxs runs a subprotocol's own transactions against verified
	// auxiliary responses. currentL1Height is the height of the Bitcoin block
	// being applied, passed so subprotocols whose txs embed an L1-height bound
	// (e.g. checkpoint's range claims) can enforce it is strictly in the past
	// (spec §4.5 "new l1_height < current_block_height").
	ProcessTxs(txs []TaggedTx, aux []AuxResponse, currentL1Height xtypes.Height, relayer MsgRelayer) error
	ProcessMsgs(msgs []Msg, relayer MsgRelayer) error
}
