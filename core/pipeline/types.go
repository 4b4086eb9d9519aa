// Package pipeline implements the range executor and tip follower (spec
// §4.10/§5): it drives the fetch → classify+tree-build → metadata-fetch →
// inspect → compose+emit stage sequence over a block range or a live tip,
// with a bounded worker pool and an ascending-order reordering buffer.
package pipeline

import (
	"context"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/rational"
	"brontes/core/tree"
)

// TraceAction enumerates the call-frame action kinds a tracer reports
// (spec §6 "action: Call|Create|SelfDestruct|Reward").
type TraceAction uint8

const (
	TraceActionCall TraceAction = iota
	TraceActionCreate
	TraceActionSelfDestruct
	TraceActionReward
)

// Trace is one frame of a transaction's execution as reported by the
// external tracer (spec §6 "Tracer input").
type Trace struct {
	Idx          int
	MsgSender    actions.Address
	Callee       actions.Address
	CallType     tree.CallType
	EthValue     rational.Amount
	Error        string
	Subtraces    int
	TraceAddress []int
	Action       TraceAction
	Input        []byte // calldata the classifier decodes selectors/args from
	Output       []byte
	Logs         []RawLog
	Gas          tree.GasDetails
	Depth        int
}

// RawLog is one event log emitted by a frame, pre-decoding.
type RawLog struct {
	Address actions.Address
	Topics  []actions.Hash
	Data    []byte
}

// TxTrace is the ordered, per-transaction trace sequence the Tracer
// returns for one block (spec §6).
type TxTrace struct {
	TxHash         actions.Hash
	TxIndex        int
	GasUsed        uint64
	EffectivePrice uint64
	IsSuccess      bool
	Traces         []Trace
}

// Tracer is the external fetch-stage collaborator: given a block number,
// it returns the ordered TxTrace sequence for that block (spec §6). It may
// suspend on I/O; callers retry with backoff per §5.
type Tracer interface {
	TracesForBlock(ctx context.Context, blockNumber uint64) ([]TxTrace, error)
}

// Sink is the external output collaborator (spec §6 "Output sink"): writes
// are at-most-once per (block, tx_hash, mev_kind), keyed by block number
// for MevBlock rows and (block_number, tx_hash) for Bundle rows.
type Sink interface {
	WriteMevBlock(ctx context.Context, block mev.MevBlock) error
}

// HeadSource reports the current chain head block number, for the tip
// follower's lag-by-N computation (spec §4.10 "Tip follower").
type HeadSource interface {
	HeadBlockNumber(ctx context.Context) (uint64, error)
}

// BuilderProposerSource supplies the two balance-delta inputs Aggregate
// needs that are not derivable from a BlockTree/Metadata pair alone (spec
// §4.9 "builder PnL = builder_fee_recipient balance delta + integrated
// searcher PnL"). A zero-value source (returning 0, 0) is a reasonable
// default when no state-diff collaborator is wired — the composer's own
// bundle-profit sum still carries the accurate part of builder PnL.
type BuilderProposerSource interface {
	BlockDeltas(ctx context.Context, blockNumber uint64, md metadata.Metadata) (builderDeltaUSD, proposerDeltaUSD float64, err error)
}

// ZeroBuilderProposerSource is the default BuilderProposerSource: it
// reports no additional delta, relying on Metadata.Block.ProposerMevRewardUSD
// alone when present.
type ZeroBuilderProposerSource struct{}

func (ZeroBuilderProposerSource) BlockDeltas(_ context.Context, _ uint64, md metadata.Metadata) (float64, float64, error) {
	proposer := 0.0
	if md.Block.ProposerMevRewardUSD != nil {
		proposer = *md.Block.ProposerMevRewardUSD
	}
	return 0, proposer, nil
}
