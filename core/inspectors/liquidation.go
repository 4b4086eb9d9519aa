package inspectors

import (
	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
)

// LiquidationInspector implements spec §4.8: scans transactions containing
// Liquidation actions, values the involved balance deltas via DEX pricing,
// and, when pricing is unavailable, still emits the bundle with profit 0 and
// no_pricing_calculated set rather than erroring (spec §7 "Missing-data").
type LiquidationInspector struct {
	Prices PriceContext
}

func (l *LiquidationInspector) Name() string { return "liquidation" }

// liquidationProfitCeilingUSD guards against a mispriced liquidation
// producing an implausible profit figure, mirroring the $50M sanity caps
// used by the Jit/AtomicArb inspectors (spec §4.8 "Upper-bound profit
// sanity check").
const liquidationProfitCeilingUSD = 50_000_000

func (l *LiquidationInspector) Inspect(block *tree.BlockTree, _ metadata.Metadata) []mev.Bundle {
	var out []mev.Bundle
	for _, t := range TxsWithKind(block, actions.KindLiquidation) {
		liqs := LiquidationsOf(t)
		if len(liqs) == 0 {
			continue
		}
		out = append(out, l.buildBundle(block, t, liqs))
	}
	return out
}

func (l *LiquidationInspector) buildBundle(block *tree.BlockTree, t *tree.TransactionTree, liqs []actions.Liquidation) mev.Bundle {
	var deltas []actions.BalanceDelta
	for _, liq := range liqs {
		deltas = append(deltas,
			actions.BalanceDelta{Address: liq.Liquidator, Token: liq.CollateralAsset, Amount: liq.LiquidatedCollateral, Negative: false},
			actions.BalanceDelta{Address: liq.Liquidator, Token: liq.DebtAsset, Amount: liq.CoveredDebt, Negative: true},
		)
	}

	gasCost := GasCostUSD(t.EffectivePrice, t.GasUsed, 0, l.Prices.EthPriceUSD())
	profit, noPricing := Revenue(l.Prices, t.TxIndex, deltas)
	if noPricing {
		profit = 0
	} else {
		profit -= gasCost
		if profit > liquidationProfitCeilingUSD {
			profit = liquidationProfitCeilingUSD
		}
	}

	contract := Contract(t)
	return mev.Bundle{
		Header: mev.Header{
			SchemaVersion:       mev.SchemaVersion,
			BlockNumber:         block.BlockNumber,
			TxIndex:             uint64(t.TxIndex),
			TxHash:              t.TxHash,
			EOA:                 EOA(t),
			Contract:            contract,
			ProfitUSD:           profit,
			BribeUSD:            gasCost,
			MevKind:             mev.KindLiquidation,
			BalanceDeltas:       deltas,
			NoPricingCalculated: noPricing,
		},
		Body: mev.LiquidationBody{Liquidations: liqs},
	}
}
