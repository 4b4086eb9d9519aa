package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"brontes/core/actions"
	"brontes/core/classifier"
	"brontes/core/composer"
	"brontes/core/inspectors"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
	"brontes/pkg/utils"
)

// Deps bundles every external collaborator a single block's processing
// needs (spec §6 external interfaces), plus the static registry and
// inspector set built once at startup.
type Deps struct {
	Tracer            Tracer
	Store             metadata.Store
	TokenDB           classifier.TokenDB
	Registry          *classifier.Registry
	Registrar         classifier.ProtocolRegistrar
	FactorySignatures []classifier.FactorySignature
	MergeRules        []classifier.MergeRule
	CollapseOpts      tree.CollapseOptions
	Inspectors        []inspectors.Inspector
	Builder           BuilderProposerSource
	metrics           *metrics
}

// retry wraps fn with the §5 "exponential-backoff retry (max 5)" discipline
// for upstream I/O calls, giving up after attempts and returning the last
// error wrapped as UpstreamIO.
func retry(ctx context.Context, blockNumber uint64, stage string, attempts int, fn func() error) error {
	var err error
	backoff := 250 * time.Millisecond
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return utils.NewStageError(utils.UpstreamIO, blockNumber, stage, err)
}

// ProcessBlock runs the full per-block stage sequence (spec §5 stages 1-5)
// and returns the composed MevBlock. A tree-invariant failure or an
// exhausted-retry upstream failure causes the whole block to be skipped
// (returns a *utils.StageError); callers log it and continue with the next
// block (spec §7 "the pipeline continues with subsequent blocks").
func ProcessBlock(ctx context.Context, d Deps, blockNumber uint64) (mev.MevBlock, error) {
	if d.metrics != nil {
		d.metrics.blocksInFlight.Inc()
		defer d.metrics.blocksInFlight.Dec()
	}

	// Stage 1: fetch/trace (I/O-bound, may suspend) and Stage 3:
	// metadata-fetch run concurrently (spec §5 "runs in parallel with
	// stage 2" — here scheduled alongside the fetch since neither depends
	// on the other).
	var traces []TxTrace
	var md metadata.Metadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return retry(ctx, blockNumber, "fetch", 6, func() error {
			var err error
			traces, err = d.Tracer.TracesForBlock(gctx, blockNumber)
			return err
		})
	})
	g.Go(func() error {
		return retry(ctx, blockNumber, "metadata-fetch", 6, func() error {
			var err error
			md, err = d.Store.BlockMetadata(blockNumber)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return mev.MevBlock{}, err
	}

	// Stage 2: classify + tree-build (CPU-bound).
	block, err := BuildBlockTree(blockNumber, traces, d)
	if err != nil {
		log.WithField("block", blockNumber).WithError(err).Warn("tree invariant violation, skipping block")
		return mev.MevBlock{}, utils.NewStageError(utils.TreeInvariant, blockNumber, "classify", err)
	}

	// Stage 4: inspect (CPU-bound; every inspector runs in parallel on the
	// same immutable BlockTree/Metadata).
	bundles := RunInspectors(d.Inspectors, block, md, d.metrics)

	// Stage 5: compose + emit (CPU-bound, single block).
	builderDelta, proposerDelta, err := d.Builder.BlockDeltas(ctx, blockNumber, md)
	if err != nil {
		return mev.MevBlock{}, utils.NewStageError(utils.UpstreamIO, blockNumber, "compose", err)
	}
	ethPrice := 0.0
	for _, ins := range d.Inspectors {
		if pc, ok := anyPriceContext(ins); ok {
			ethPrice = pc.EthPriceUSD()
			break
		}
	}
	mb := composer.Compose(blockNumber, ethPrice, bundles, builderDelta, proposerDelta)

	if d.metrics != nil {
		for _, b := range mb.Bundles {
			d.metrics.bundlesEmitted.WithLabelValues(b.Header.MevKind.String()).Inc()
		}
	}
	return mb, nil
}

// anyPriceContext extracts the shared PriceContext from whichever inspector
// carries one, purely to source a block-wide ETH/USD price for Aggregate;
// every inspector is constructed against the same PriceContext value for a
// given block, so the first one found is representative.
func anyPriceContext(ins inspectors.Inspector) (inspectors.PriceContext, bool) {
	switch v := ins.(type) {
	case *inspectors.SandwichInspector:
		return v.Prices, true
	case *inspectors.JitInspector:
		return v.Prices, true
	case *inspectors.AtomicArbInspector:
		return v.Prices, true
	case *inspectors.CexDexInspector:
		return v.Prices, true
	case *inspectors.LiquidationInspector:
		return v.Prices, true
	default:
		return inspectors.PriceContext{}, false
	}
}

// RunInspectors runs every inspector concurrently against the same
// immutable block/metadata pair (spec §5 "all inspectors for a given block
// run in parallel") and flattens their results. A single inspector
// panicking or erroring does not abort the others — Inspect has no error
// return by contract (spec §4.3), so this only guards against a panic.
func RunInspectors(ins []inspectors.Inspector, block *tree.BlockTree, md metadata.Metadata, m *metrics) []mev.Bundle {
	results := make([][]mev.Bundle, len(ins))
	var g errgroup.Group
	for i, insp := range ins {
		i, insp := i, insp
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("inspector %s panicked: %v", insp.Name(), r)
				}
			}()
			start := time.Now()
			results[i] = insp.Inspect(block, md)
			if m != nil {
				m.inspectorLatency.WithLabelValues(insp.Name()).Observe(time.Since(start).Seconds())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("inspector failure")
	}
	var out []mev.Bundle
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// BuildBlockTree runs stage 2 (spec §4.2): constructs one TransactionTree
// per trace, classifies every frame as it is appended, then runs discovery,
// the multi-frame merge pass, and the three ordered collapse passes
// (flash-loan collapse, transfer-to-swap reconstruction, token-alias
// normalization) over each finished transaction tree.
func BuildBlockTree(blockNumber uint64, traces []TxTrace, d Deps) (*tree.BlockTree, error) {
	block := tree.NewBlockTree(blockNumber)
	var discoverer *classifier.Discoverer
	if d.Registrar != nil && len(d.FactorySignatures) > 0 {
		discoverer = classifier.NewDiscoverer(d.FactorySignatures, d.Registrar, blockNumber)
	}
	knownPool := func(a actions.Address) bool {
		if d.TokenDB == nil {
			return false
		}
		_, ok := d.TokenDB.ProtocolOf(a)
		return ok
	}
	for _, txt := range traces {
		frames := make([]tree.RawFrame, len(txt.Traces))
		for i, tr := range txt.Traces {
			frames[i] = tree.RawFrame{
				TraceIndex: tr.Idx,
				Depth:      tr.Depth,
				MsgSender:  tr.MsgSender,
				Callee:     tr.Callee,
				CallType:   tr.CallType,
				EthValue:   tr.EthValue,
				Gas:        tr.Gas,
				Error:      tr.Error,
			}
		}
		logsByIdx := make(map[int][]classifier.DecodedLog, len(txt.Traces))
		for _, tr := range txt.Traces {
			for _, l := range tr.Logs {
				logsByIdx[tr.Idx] = append(logsByIdx[tr.Idx], classifier.DecodedLog{Address: l.Address, Topics: l.Topics, Data: l.Data})
			}
		}
		calldataByIdx := make(map[int][]byte, len(txt.Traces))
		for _, tr := range txt.Traces {
			calldataByIdx[tr.Idx] = tr.Input
		}

		tt, err := tree.BuildTransactionTree(txt.TxHash, txt.TxIndex, txt.GasUsed, txt.EffectivePrice, txt.IsSuccess, frames, func(t *tree.TransactionTree, n *tree.Node) {
			in := classifier.CallInput{
				TraceIndex: n.TraceIndex,
				From:       n.MsgSender,
				Target:     n.Callee,
				MsgSender:  n.MsgSender,
				Calldata:   calldataByIdx[n.TraceIndex],
				Logs:       logsByIdx[n.TraceIndex],
				DB:         d.TokenDB,
			}
			d.Registry.AttachTo(n, in, blockNumber)
		})
		if err != nil {
			return nil, err
		}

		if discoverer != nil {
			discoverer.Run(tt)
		}
		if len(d.MergeRules) > 0 {
			selOf := func(n *tree.Node) (classifier.Selector, bool) {
				data := calldataByIdx[n.TraceIndex]
				if len(data) < 4 {
					return classifier.Selector{}, false
				}
				var sel classifier.Selector
				copy(sel[:], data[:4])
				return sel, true
			}
			classifier.MergeMultiFrame(tt, d.MergeRules, selOf)
		}

		tt.CollapseFlashLoans()
		tt.ReconstructSwapsFromTransfers(d.CollapseOpts, knownPool)
		tt.NormalizeCurveAliases(d.CollapseOpts.CurveAliases)

		block.Txs = append(block.Txs, tt)
	}
	return block, nil
}
