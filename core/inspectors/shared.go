// Package inspectors implements the inspector framework contract (spec
// §4.3) and the five concrete inspectors (§4.4–§4.8). Every inspector is
// pure over (tree, metadata): it must not mutate either and must be
// deterministic for identical inputs, so that running every inspector for
// a block concurrently (spec §5 "Inspect... run in parallel on an
// immutable BlockTree") produces schedule-invariant results.
package inspectors

import (
	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/rational"
	"brontes/core/tree"
)

// Inspector is the shared contract every strategy detector implements
// (spec §4.3 "inspect(tree, metadata) → result").
type Inspector interface {
	Name() string
	Inspect(block *tree.BlockTree, md metadata.Metadata) []mev.Bundle
}

// PriceContext bundles a block's Metadata with the token-symbol lookup
// needed to form a metadata.Pair, and implements the "USD valuation"
// shared utility (spec §4.3): dex_quotes pre-state price first, then
// cex-wide VWAP, then "no pricing".
type PriceContext struct {
	Metadata    metadata.Metadata
	QuoteAsset  string
	TokenSymbol func(actions.Address) (string, bool)
}

// USDValue resolves one token amount to USD at txIndex, signaling
// NoPricing rather than erroring when no source has data (spec §7
// "Missing-data... recovered locally").
func (pc PriceContext) USDValue(txIndex int, token actions.Address, amount rational.Amount) metadata.USDPrice {
	sym, ok := pc.TokenSymbol(token)
	if !ok {
		return metadata.USDPrice{NoPricing: true}
	}
	pair := metadata.Pair{Base: sym, Quote: pc.QuoteAsset}

	if txIndex > 0 {
		if perTx, ok := pc.Metadata.DexQuotes[txIndex-1]; ok {
			if q, ok := perTx[pair]; ok {
				return metadata.USDPrice{Value: q.PreStatePrice}
			}
		}
	}
	if v, ok := pc.globalVWAP(pair); ok {
		return metadata.USDPrice{Value: v}
	}
	return metadata.USDPrice{NoPricing: true}
}

// globalVWAP computes the trade-weighted average price for pair across
// every exchange's cex_trades (spec §4.3 "fall back to cex_quotes
// global-VWAP at block timestamp"; trades carry the volume quotes lack).
func (pc PriceContext) globalVWAP(pair metadata.Pair) (float64, bool) {
	var num, den float64
	for _, pairs := range pc.Metadata.CexTrades {
		trades, ok := pairs[pair]
		if !ok {
			continue
		}
		for _, t := range trades {
			num += t.Price * t.Amount
			den += t.Amount
		}
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Revenue sums the USD value of a set of balance deltas attributed to an
// actor (spec §4.3 "revenue = Σ balance-delta × price(token)"). It returns
// noPricing=true if any delta could not be priced, matching the
// no_pricing_calculated bundle flag (spec §7).
func Revenue(pc PriceContext, txIndex int, deltas []actions.BalanceDelta) (usd float64, noPricing bool) {
	for _, d := range deltas {
		p := pc.USDValue(txIndex, d.Token, d.Amount)
		if p.NoPricing {
			noPricing = true
			continue
		}
		v := d.Amount.Float64() * p.Value
		if d.Negative {
			v = -v
		}
		usd += v
	}
	return usd, noPricing
}

// EthPriceUSD approximates the block's ETH/quote-asset price from the
// global CEX VWAP of the WETH pair, for converting gas costs (denominated
// in wei) to USD (spec §4.3 cost primitive).
func (pc PriceContext) EthPriceUSD() float64 {
	if v, ok := pc.globalVWAP(metadata.Pair{Base: "WETH", Quote: pc.QuoteAsset}); ok {
		return v
	}
	return 0
}

// GasCostUSD implements the §4.3 cost primitive: cost = priority_fee ×
// gas_used + coinbase_transfer, converted to USD via ethPriceUSD.
func GasCostUSD(priorityFeeWei uint64, gasUsed uint64, coinbaseTransferWei uint64, ethPriceUSD float64) float64 {
	const weiPerEth = 1e18
	ethCost := float64(priorityFeeWei)*float64(gasUsed)/weiPerEth + float64(coinbaseTransferWei)/weiPerEth
	return ethCost * ethPriceUSD
}

// SearcherHistory reads a per-address activity row, defaulting to an empty
// history rather than erroring when the store has no row (spec §4.3
// "Searcher-history lookup: stored per-address counters by MEV kind").
func SearcherHistory(store metadata.Store, addr actions.Address) metadata.SearcherInfo {
	info, ok := store.SearcherInfo(addr)
	if !ok {
		return metadata.SearcherInfo{Address: addr, CountsByKind: map[string]int{}}
	}
	if info.CountsByKind == nil {
		info.CountsByKind = map[string]int{}
	}
	return info
}

// TxsWithKind returns every transaction tree whose root subtree bitset
// contains kind, built on the bitset index (spec §4.3 "Filtered views of
// the tree... built on the bitset index").
func TxsWithKind(block *tree.BlockTree, kind actions.Kind) []*tree.TransactionTree {
	var out []*tree.TransactionTree
	for _, t := range block.Txs {
		if root := t.Root(); root != nil && root.SubtreeKinds.Has(kind) {
			out = append(out, t)
		}
	}
	return out
}

// SwapsOf collects every Swap action in t, in DFS order (spec §8 ordering
// invariant), unwrapping BatchSwap/AggregatorSwap containers (Balancer
// batch swaps, DEX-aggregator routes) into their constituent legs so
// inspectors see a flat per-pool swap sequence regardless of which
// classifier produced it.
func SwapsOf(t *tree.TransactionTree) []actions.Swap {
	var out []actions.Swap
	for _, a := range t.Actions() {
		switch d := a.Data.(type) {
		case actions.Swap:
			out = append(out, d)
		case actions.BatchSwap:
			out = append(out, d.Swaps...)
		case actions.AggregatorSwap:
			out = append(out, d.Swaps...)
		}
	}
	return out
}

// MintsOf collects every Mint action in t, in DFS order.
func MintsOf(t *tree.TransactionTree) []actions.Mint {
	var out []actions.Mint
	for _, a := range t.Actions() {
		if m, ok := a.Data.(actions.Mint); ok {
			out = append(out, m)
		}
	}
	return out
}

// BurnsOf collects every Burn action in t, in DFS order.
func BurnsOf(t *tree.TransactionTree) []actions.Burn {
	var out []actions.Burn
	for _, a := range t.Actions() {
		if b, ok := a.Data.(actions.Burn); ok {
			out = append(out, b)
		}
	}
	return out
}

// LiquidationsOf collects every Liquidation action in t, in DFS order.
func LiquidationsOf(t *tree.TransactionTree) []actions.Liquidation {
	var out []actions.Liquidation
	for _, a := range t.Actions() {
		if l, ok := a.Data.(actions.Liquidation); ok {
			out = append(out, l)
		}
	}
	return out
}

// EOA returns the external sender of a transaction: the root call frame's
// msg_sender (spec §3.2 — the root node is the EOA-initiated top call).
func EOA(t *tree.TransactionTree) actions.Address {
	if root := t.Root(); root != nil {
		return root.MsgSender
	}
	return actions.Address{}
}

// Contract returns the transaction's top-level callee, or nil when the tx
// has no root (defensive; BlockTree guarantees non-empty trees).
func Contract(t *tree.TransactionTree) *actions.Address {
	root := t.Root()
	if root == nil {
		return nil
	}
	c := root.Callee
	return &c
}

// poolsOf returns the set of distinct pool addresses touched by a set of
// swaps, used by pool-overlap checks (spec §4.4 "Pool-overlap").
func poolsOf(swaps []actions.Swap) map[actions.Address]bool {
	out := make(map[actions.Address]bool, len(swaps))
	for _, s := range swaps {
		out[s.Pool] = true
	}
	return out
}

func overlaps(a, b map[actions.Address]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
