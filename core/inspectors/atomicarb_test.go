package inspectors

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/rational"
	"brontes/core/tree"
)

// buildSwapChainTx builds one frame per swap, each frame the child of the
// one before it and carrying that swap, so extractSwapChain sees them as an
// ordered chain.
func buildSwapChainTx(t *testing.T, txHash actions.Hash, txIndex int, sender actions.Address, swaps []actions.Swap) *tree.TransactionTree {
	t.Helper()
	frames := make([]tree.RawFrame, len(swaps))
	for i := range swaps {
		frames[i] = tree.RawFrame{TraceIndex: i, Depth: i, MsgSender: sender, Callee: swaps[i].Pool, EthValue: rational.FromUint64(0)}
	}
	i := 0
	tt, err := tree.BuildTransactionTree(txHash, txIndex, 100_000, 1, true, frames, func(_ *tree.TransactionTree, n *tree.Node) {
		n.Action = &actions.Action{TraceIndex: n.TraceIndex, Data: swaps[i]}
		i++
	})
	if err != nil {
		t.Fatalf("buildSwapChainTx: %v", err)
	}
	return tt
}

func TestAtomicArbInspectorDetectsLabeledTriangle(t *testing.T) {
	weth := testAddr(1)
	dai := testAddr(2)
	usdc := testAddr(3)
	eoa := testAddr(9)

	swaps := []actions.Swap{
		{Pool: testAddr(10), From: eoa, TokenIn: weth, TokenOut: dai, AmountIn: rational.FromUint64(1), AmountOut: rational.FromUint64(2000)},
		{Pool: testAddr(11), From: eoa, TokenIn: dai, TokenOut: usdc, AmountIn: rational.FromUint64(2000), AmountOut: rational.FromUint64(2000)},
		{Pool: testAddr(12), From: eoa, TokenIn: usdc, TokenOut: weth, AmountIn: rational.FromUint64(2000), AmountOut: rational.FromUint64(2)},
	}
	tt := buildSwapChainTx(t, actions.Hash{1}, 0, eoa, swaps)
	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	insp := &AtomicArbInspector{
		Prices: PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }},
		// With no resolvable token symbols Revenue can't price the chain, so
		// the triangle branch falls through to the labeled-arbitrageur gate.
		Store: fakeStore{searchers: map[actions.Address]metadata.SearcherInfo{eoa: {LabeledArbitrageur: true}}},
	}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	body, ok := bundles[0].Body.(mev.AtomicArbBody)
	if !ok {
		t.Fatalf("expected an AtomicArbBody, got %T", bundles[0].Body)
	}
	if body.Class != mev.ArbTriangle {
		t.Fatalf("expected ArbTriangle (continuous chain back to the start token), got %v", body.Class)
	}
}

func TestAtomicArbInspectorSkipsShortChains(t *testing.T) {
	eoa := testAddr(20)
	swaps := []actions.Swap{
		{Pool: testAddr(21), From: eoa, TokenIn: testAddr(22), TokenOut: testAddr(23), AmountIn: rational.FromUint64(1), AmountOut: rational.FromUint64(1)},
	}
	tt := buildSwapChainTx(t, actions.Hash{2}, 0, eoa, swaps)
	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	insp := &AtomicArbInspector{Prices: PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }}, Store: fakeStore{}}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 0 {
		t.Fatalf("expected a single swap to be ignored (needs >= 2 to form a chain), got %d", len(bundles))
	}
}

func TestAtomicArbInspectorRejectsUnprofitableLongTailWithoutHistory(t *testing.T) {
	eoa := testAddr(30)
	swaps := []actions.Swap{
		{Pool: testAddr(31), From: eoa, TokenIn: testAddr(32), TokenOut: testAddr(33), AmountIn: rational.FromUint64(10), AmountOut: rational.FromUint64(1)},
		{Pool: testAddr(34), From: eoa, TokenIn: testAddr(35), TokenOut: testAddr(36), AmountIn: rational.FromUint64(1), AmountOut: rational.FromUint64(1)},
	}
	tt := buildSwapChainTx(t, actions.Hash{3}, 0, eoa, swaps)
	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	insp := &AtomicArbInspector{Prices: PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }}, Store: fakeStore{}}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 0 {
		t.Fatalf("expected an unprofitable long-tail chain with no searcher history to be rejected, got %d", len(bundles))
	}
}
