package inspectors

import (
	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
)

// AtomicArbInspector implements spec §4.6: for each candidate transaction
// containing a Swap or AggregatorSwap chain, classify it into one of four
// shapes and validate against a history/label-driven requirement that
// scales with pricing reliability.
type AtomicArbInspector struct {
	Prices      PriceContext
	Store       metadata.Store
	Stablecoins map[string]string // token symbol -> currency family ("USD", "EUR", "GOLD")
}

func (a *AtomicArbInspector) Name() string { return "atomic-arb" }

const atomicArbProfitCeilingUSD = 50_000_000

func (a *AtomicArbInspector) Inspect(block *tree.BlockTree, md metadata.Metadata) []mev.Bundle {
	var out []mev.Bundle
	for _, t := range block.Txs {
		swaps := extractSwapChain(t)
		if len(swaps) < 2 {
			continue
		}
		class := a.classify(swaps)
		bundle, ok := a.evaluate(block, md, t, swaps, class)
		if !ok {
			continue
		}
		out = append(out, bundle)
	}
	return out
}

// extractSwapChain flattens a tx's Swap, BatchSwap, and AggregatorSwap
// actions into a single ordered chain (spec §4.6 "Extract the ordered list
// of Swaps"). BatchSwap (e.g. a Balancer batch swap) is unwrapped the same
// way as AggregatorSwap so its legs participate in arb-chain detection.
func extractSwapChain(t *tree.TransactionTree) []actions.Swap {
	var out []actions.Swap
	for _, act := range t.Actions() {
		switch d := act.Data.(type) {
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

func (a *AtomicArbInspector) classify(swaps []actions.Swap) mev.AtomicArbClass {
	continuous := true
	for i := 0; i+1 < len(swaps); i++ {
		if swaps[i].TokenOut != swaps[i+1].TokenIn {
			continuous = false
			break
		}
	}
	start, end := swaps[0].TokenIn, swaps[len(swaps)-1].TokenOut

	if continuous && end == start {
		return mev.ArbTriangle
	}
	if end == start {
		return mev.ArbCrossPair
	}
	if a.sameStableFamily(start, end) {
		return mev.ArbStablecoin
	}
	return mev.ArbLongTail
}

func (a *AtomicArbInspector) sameStableFamily(x, y actions.Address) bool {
	sx, okx := a.Prices.TokenSymbol(x)
	sy, oky := a.Prices.TokenSymbol(y)
	if !okx || !oky {
		return false
	}
	fx, okx2 := a.Stablecoins[sx]
	fy, oky2 := a.Stablecoins[sy]
	return okx2 && oky2 && fx == fy
}

func (a *AtomicArbInspector) hasStablePairJump(swaps []actions.Swap) bool {
	for _, s := range swaps {
		if a.sameStableFamily(s.TokenIn, s.TokenOut) {
			return true
		}
	}
	return false
}

func (a *AtomicArbInspector) evaluate(block *tree.BlockTree, md metadata.Metadata, t *tree.TransactionTree, swaps []actions.Swap, class mev.AtomicArbClass) (mev.Bundle, bool) {
	var deltas []actions.BalanceDelta
	eoa := EOA(t)
	for _, sw := range swaps {
		deltas = append(deltas,
			actions.BalanceDelta{Address: eoa, Token: sw.TokenIn, Amount: sw.AmountIn, Negative: true},
			actions.BalanceDelta{Address: eoa, Token: sw.TokenOut, Amount: sw.AmountOut, Negative: false},
		)
	}
	gasCost := GasCostUSD(t.EffectivePrice, t.GasUsed, 0, a.Prices.EthPriceUSD())
	profit, noPricing := Revenue(a.Prices, t.TxIndex, deltas)
	profit -= gasCost
	if profit > atomicArbProfitCeilingUSD {
		return mev.Bundle{}, false
	}

	multiplier := 1
	if noPricing {
		multiplier = 2
	}

	info := SearcherHistory(a.Store, eoa)
	priorCount := info.CountsByKind[mev.KindAtomicArb.String()]
	isPrivate := md.Block.PrivateFlow[t.TxHash]
	directBuilderPayment := false
	if am, ok := md.AddressMeta[eoa]; ok {
		directBuilderPayment = am.DirectToBuilderPayer
	}
	profitable := profit > 0

	var ok bool
	switch class {
	case mev.ArbTriangle:
		ok = profitable || priorCount > 20*multiplier || info.LabeledArbitrageur || (isPrivate && directBuilderPayment)
	case mev.ArbCrossPair:
		ok = profitable || priorCount > 20*multiplier || info.LabeledArbitrageur ||
			a.hasStablePairJump(swaps) || isPrivate || directBuilderPayment
	case mev.ArbStablecoin:
		ok = profitable || priorCount > 20*multiplier || info.LabeledArbitrageur || isPrivate || directBuilderPayment
	default: // ArbLongTail
		ok = profitable && (priorCount > 10*multiplier || info.LabeledArbitrageur || (isPrivate && directBuilderPayment) || info.KnownMevContract)
	}
	if !ok {
		return mev.Bundle{}, false
	}

	contract := Contract(t)
	return mev.Bundle{
		Header: mev.Header{
			SchemaVersion:       mev.SchemaVersion,
			BlockNumber:         block.BlockNumber,
			TxIndex:             uint64(t.TxIndex),
			TxHash:              t.TxHash,
			EOA:                 eoa,
			Contract:            contract,
			ProfitUSD:           profit,
			BribeUSD:            gasCost,
			MevKind:             mev.KindAtomicArb,
			BalanceDeltas:       deltas,
			NoPricingCalculated: noPricing,
		},
		Body: mev.AtomicArbBody{Class: class, Swaps: swaps},
	}, true
}
