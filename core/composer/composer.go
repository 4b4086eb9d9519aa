// Package composer implements spec §4.9: it runs after all inspectors
// complete for a block, deduplicating overlapping bundles by precedence,
// composing matched lower-kind bundles into higher-kind ones, and
// aggregating block-level rollups.
package composer

import (
	"brontes/core/actions"
	"brontes/core/mev"
)

// Compose runs the full three-step pipeline (compose, dedup, aggregate)
// over every bundle every inspector produced for a block and returns the
// finished MevBlock. Calling Compose twice on the same (composed,
// deduplicated) input is idempotent: ComposeRules only fires when its
// specific tx-set/role shape is still present, and Dedup only ever removes
// strictly lower-precedence duplicates.
func Compose(blockNumber uint64, ethPriceUSD float64, bundles []mev.Bundle, builderDelta float64, proposerDelta float64) mev.MevBlock {
	composed := ComposeRules(bundles)
	deduped := Dedup(composed)
	return Aggregate(blockNumber, ethPriceUSD, deduped, builderDelta, proposerDelta)
}

// Dedup implements step 1 of the dedup/precedence table (spec §4.9 "when
// two inspectors emit bundles sharing a tx_hash, apply a precedence
// table... lower-precedence duplicates are dropped"). Runs after
// ComposeRules so that a Jit+Sandwich pair sharing a tx_hash is combined
// into a JitSandwich bundle before precedence collapses the pair down to
// one of them.
func Dedup(bundles []mev.Bundle) []mev.Bundle {
	best := make(map[actions.Hash]mev.Bundle)
	order := make([]actions.Hash, 0, len(bundles))
	for _, b := range bundles {
		existing, ok := best[b.Header.TxHash]
		if !ok {
			best[b.Header.TxHash] = b
			order = append(order, b.Header.TxHash)
			continue
		}
		if b.Header.MevKind.Precedes(existing.Header.MevKind) {
			best[b.Header.TxHash] = b
		}
	}
	out := make([]mev.Bundle, 0, len(order))
	for _, h := range order {
		out = append(out, best[h])
	}
	return out
}

// ComposeRules runs before Dedup (spec §4.9 "apply composition rules that
// combine matched lower-kind bundles into a higher-kind bundle when their
// tx sets and roles match (Jit + Sandwich → JitSandwich)"). Inspectors that
// already detect the combined pattern directly (core/inspectors/jit.go)
// emit a JitSandwich bundle up front, so this pass only has to catch the
// case where the two strategies surfaced as separate bundles on the same
// tx_hash — a still-separate Jit/Sandwich pair referencing the same backrun
// tx_hash, which can happen when JitInspector's shrinking diverged from
// SandwichInspector's. It must run before Dedup: once Dedup has collapsed
// same-tx_hash bundles down to one by precedence, the other half of the
// pair this rule looks for is already gone.
func ComposeRules(bundles []mev.Bundle) []mev.Bundle {
	byHash := make(map[actions.Hash][]int)
	for i, b := range bundles {
		byHash[b.Header.TxHash] = append(byHash[b.Header.TxHash], i)
	}

	drop := make(map[int]bool)
	var out []mev.Bundle
	for hash, idxs := range byHash {
		if len(idxs) < 2 {
			continue
		}
		var jitIdx, sandIdx = -1, -1
		for _, i := range idxs {
			switch bundles[i].Header.MevKind {
			case mev.KindJit:
				jitIdx = i
			case mev.KindSandwich:
				sandIdx = i
			}
		}
		if jitIdx < 0 || sandIdx < 0 {
			continue
		}
		jit := bundles[jitIdx].Body.(mev.JitBody)
		sand := bundles[sandIdx].Body.(mev.SandwichBody)
		merged := bundles[jitIdx]
		merged.Header.MevKind = mev.KindJitSandwich
		merged.Header.ProfitUSD = bundles[jitIdx].Header.ProfitUSD + bundles[sandIdx].Header.ProfitUSD
		merged.Header.BalanceDeltas = append(append([]actions.BalanceDelta{}, bundles[jitIdx].Header.BalanceDeltas...), bundles[sandIdx].Header.BalanceDeltas...)
		merged.Body = mev.JitSandwichBody{Jit: jit, Sandwich: sand}
		out = append(out, merged)
		drop[jitIdx] = true
		drop[sandIdx] = true
		_ = hash
	}
	for i, b := range bundles {
		if !drop[i] {
			out = append(out, b)
		}
	}
	return out
}

// Aggregate implements step 3 (spec §4.9 "compute per-block rollups").
// builderDelta/proposerDelta are the builder-fee-recipient and proposer
// balance deltas for the block; the integrated-searcher-PnL term of
// builder PnL is the sum of every bundle's ProfitUSD plus that delta (spec
// "builder PnL = builder_fee_recipient balance delta + integrated-searcher
// PnL").
func Aggregate(blockNumber uint64, ethPriceUSD float64, bundles []mev.Bundle, builderDelta, proposerDelta float64) mev.MevBlock {
	mb := mev.MevBlock{
		BlockNumber:    blockNumber,
		EthPriceUSD:    ethPriceUSD,
		Bundles:        bundles,
		MevCountByKind: make(map[mev.Kind]int),
	}
	searcherPnL := 0.0
	for _, b := range bundles {
		mb.MevCountByKind[b.Header.MevKind]++
		mb.CumulativeGasUSD += b.Header.BribeUSD
		searcherPnL += b.Header.ProfitUSD
	}
	mb.BuilderProfitUSD = builderDelta + searcherPnL
	mb.ProposerProfitUSD = proposerDelta
	return mb
}
