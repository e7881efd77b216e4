package subprotocol

import (
	"fmt"

	"github.com/strataorch/orchestration/pkg/xtypes"
)

// PendingMsgs carries inbound messages addressed to each subprotocol across a
// block boundary. It is part of the ASM's persisted state (not just in-memory
// scratch) because the finish stage's invariant is that messages emitted during
// process_msgs are *not* delivered in the current block (spec §4.6): they must
// survive into the next block's finish stage instead.
type PendingMsgs map[xtypes.SubprotocolId][]Msg

// relayer is the MsgRelayer handed to subprotocols during ProcessTxs/ProcessMsgs.
// It buffers everything emitted during a stage rather than delivering inline,
// since cross-subprotocol delivery only happens at the finish stage boundary.
type relayer struct {
	outbox PendingMsgs
	logs   []Log
}

func newRelayer() *relayer {
	return &relayer{outbox: make(PendingMsgs)}
}

func (r *relayer) RelayMsg(msg Msg) {
	dst := msg.DestinationId()
	r.outbox[dst] = append(r.outbox[dst], msg)
}

func (r *relayer) EmitLog(log Log) {
	r.logs = append(r.logs, log)
}

// BlockResult is everything the ASM state-transition function needs out of one
// block's subprotocol dispatch.
type BlockResult struct {
	Logs        []Log
	PendingNext PendingMsgs
}

// RunBlock executes the five-stage ASM subprotocol pipeline for one Bitcoin
// block's extracted transactions (spec §4.3):
//
//  1. Extraction has already happened by the time txsByProto is built.
//  2. Auxiliary-request collection: every subprotocol's PreProcessTxs runs
//     and may request manifest/tx auxiliary data.
//  3. Auxiliary verification: the caller resolves every collected AuxRequest
//     against the history MMR / Bitcoin tx proofs via resolveAux, which fails
//     the whole block if any request cannot be verified.
//  4. Process: every subprotocol's ProcessTxs runs against its own
//     transactions and verified auxiliary responses, relaying messages and
//     logs into this block's outbox.
//  5. Finish: each subprotocol's ProcessMsgs delivers the messages addressed
//     to it that were relayed during this block's process stage, together
//     with those carried over from the PREVIOUS block's finish stage
//     (carryIn); anything subprotocols emit during this stage is held for the
//     NEXT block rather than delivered now, since delivering it immediately
//     would require an unbounded fixpoint over cross-subprotocol chains.
func RunBlock(
	reg *Registry,
	txsByProto map[xtypes.SubprotocolId][]TaggedTx,
	resolveAux func(map[xtypes.SubprotocolId][]AuxRequest) (map[xtypes.SubprotocolId][]AuxResponse, error),
	carryIn PendingMsgs,
	currentL1Height xtypes.Height,
) (*BlockResult, error) {
	ordered := reg.Ordered()

	// Stage 2: auxiliary-request collection.
	requests := make(map[xtypes.SubprotocolId][]AuxRequest)
	for _, s := range ordered {
		txs := txsByProto[s.Id()]
		if reqs := s.PreProcessTxs(txs); len(reqs) > 0 {
			requests[s.Id()] = reqs
		}
	}

	// Stage 3: auxiliary verification, delegated to the ASM state-transition
	// caller, which has access to the history MMR and Bitcoin headers.
	responses, err := resolveAux(requests)
	if err != nil {
		return nil, fmt.Errorf("subprotocol: auxiliary verification failed: %w", err)
	}

	// Stage 4: process.
	processRelay := newRelayer()
	for _, s := range ordered {
		txs := txsByProto[s.Id()]
		if err := s.ProcessTxs(txs, responses[s.Id()], currentL1Height, processRelay); err != nil {
			return nil, fmt.Errorf("subprotocol: %s process_txs: %w", s.Id(), err)
		}
	}

	// Stage 5: finish. Messages routed by process_txs this block are
	// deliverable immediately (same-block, cross-subprotocol ordering within a
	// single pipeline pass); messages carried over from the previous block's
	// finish stage are delivered here too. Anything subprotocols relay while
	// handling process_msgs goes into pendingNext instead of being delivered
	// now.
	finishRelay := newRelayer()
	for _, s := range ordered {
		inbound := append(append([]Msg{}, processRelay.outbox[s.Id()]...), carryIn[s.Id()]...)
		if len(inbound) == 0 {
			continue
		}
		if err := s.ProcessMsgs(inbound, finishRelay); err != nil {
			return nil, fmt.Errorf("subprotocol: %s process_msgs: %w", s.Id(), err)
		}
	}

	logs := append(append([]Log{}, processRelay.logs...), finishRelay.logs...)
	return &BlockResult{Logs: logs, PendingNext: finishRelay.outbox}, nil
}
