package inspectors

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/rational"
	"brontes/core/tree"
)

func TestLiquidationInspectorBuildsBundleFromLiquidationAction(t *testing.T) {
	pool := testAddr(1)
	liquidator := testAddr(2)
	debtor := testAddr(3)
	collateral := testAddr(4)
	debt := testAddr(5)

	liq := actions.Liquidation{
		Pool: pool, Liquidator: liquidator, Debtor: debtor,
		CollateralAsset: collateral, DebtAsset: debt,
		CoveredDebt:          rational.FromUint64(100),
		LiquidatedCollateral: rational.FromUint64(120),
	}
	tt := buildTx(t, actions.Hash{1}, 0, liquidator, pool, liq)

	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	insp := &LiquidationInspector{Prices: PriceContext{
		QuoteAsset:  "USDC",
		TokenSymbol: func(actions.Address) (string, bool) { return "", false },
	}}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	b := bundles[0]
	if b.Header.MevKind != mev.KindLiquidation {
		t.Fatalf("expected KindLiquidation, got %v", b.Header.MevKind)
	}
	if !b.Header.NoPricingCalculated {
		t.Fatal("expected NoPricingCalculated since no token resolves to a symbol")
	}
	if b.Header.ProfitUSD != 0 {
		t.Fatalf("expected profit to be zeroed out when pricing is unavailable, got %v", b.Header.ProfitUSD)
	}
	body, ok := b.Body.(mev.LiquidationBody)
	if !ok || len(body.Liquidations) != 1 {
		t.Fatalf("expected one liquidation in the body, got %+v", b.Body)
	}
}

func TestLiquidationInspectorSkipsTxsWithoutLiquidation(t *testing.T) {
	tt := buildTx(t, actions.Hash{2}, 0, testAddr(6), testAddr(7), actions.Swap{Pool: testAddr(8)})
	block := tree.NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	insp := &LiquidationInspector{}
	bundles := insp.Inspect(block, metadata.Metadata{})
	if len(bundles) != 0 {
		t.Fatalf("expected no bundles, got %d", len(bundles))
	}
}
