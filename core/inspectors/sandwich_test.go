package inspectors

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/rational"
	"brontes/core/tree"
)

func TestSandwichInspectorDetectsClassicThreeTxPattern(t *testing.T) {
	attacker := testAddr(1)
	victim := testAddr(2)
	pool := testAddr(3)
	contract := testAddr(4)
	tokenX := testAddr(5)
	tokenY := testAddr(6)

	front := buildTx(t, actions.Hash{1}, 0, attacker, contract, actions.Swap{
		Pool: pool, From: attacker, TokenIn: tokenX, TokenOut: tokenY,
		AmountIn: rational.FromUint64(10), AmountOut: rational.FromUint64(9),
	})
	victimTx := buildTx(t, actions.Hash{2}, 1, victim, contract, actions.Swap{
		Pool: pool, From: victim, TokenIn: tokenX, TokenOut: tokenY,
		AmountIn: rational.FromUint64(5), AmountOut: rational.FromUint64(4),
	})
	back := buildTx(t, actions.Hash{3}, 2, attacker, contract, actions.Swap{
		Pool: pool, From: attacker, TokenIn: tokenY, TokenOut: tokenX,
		AmountIn: rational.FromUint64(9), AmountOut: rational.FromUint64(11),
	})

	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, front, victimTx, back)

	insp := &SandwichInspector{
		Prices: PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }},
		Store:  fakeStore{},
	}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 1 {
		t.Fatalf("expected 1 sandwich bundle, got %d", len(bundles))
	}
	b := bundles[0]
	if b.Header.MevKind != mev.KindSandwich {
		t.Fatalf("expected KindSandwich, got %v", b.Header.MevKind)
	}
	body, ok := b.Body.(mev.SandwichBody)
	if !ok {
		t.Fatalf("expected a SandwichBody, got %T", b.Body)
	}
	if len(body.FrontrunTxs) != 1 || body.FrontrunTxs[0] != front.TxHash {
		t.Fatalf("unexpected frontrun tx set: %+v", body.FrontrunTxs)
	}
	if body.BackrunTx != back.TxHash {
		t.Fatalf("expected the backrun tx to be %v, got %v", back.TxHash, body.BackrunTx)
	}
	if len(body.VictimTxHashes) != 1 || body.VictimTxHashes[0] != victimTx.TxHash {
		t.Fatalf("unexpected victim tx set: %+v", body.VictimTxHashes)
	}
}

func TestSandwichInspectorIgnoresUnrelatedTransactions(t *testing.T) {
	a, b, c := testAddr(10), testAddr(11), testAddr(12)
	tx0 := buildTx(t, actions.Hash{4}, 0, a, c, actions.Swap{Pool: testAddr(13), TokenIn: testAddr(14), TokenOut: testAddr(15)})
	tx1 := buildTx(t, actions.Hash{5}, 1, b, c, actions.Swap{Pool: testAddr(16), TokenIn: testAddr(17), TokenOut: testAddr(18)})

	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tx0, tx1)

	insp := &SandwichInspector{Prices: PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }}, Store: fakeStore{}}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 0 {
		t.Fatalf("expected no sandwich candidates from two unrelated single-attacker swaps, got %d", len(bundles))
	}
}
