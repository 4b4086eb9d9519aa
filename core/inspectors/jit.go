package inspectors

import (
	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
)

// JitInspector implements spec §4.5: candidate formation mirrors the
// sandwich scan, but the attacker signature is (Mint in frontrun, Burn in
// backrun) against the same pool.
type JitInspector struct {
	Prices PriceContext
	Store  metadata.Store
}

func (j *JitInspector) Name() string { return "jit" }

const jitProfitCeilingUSD = 50_000_000

func (j *JitInspector) Inspect(block *tree.BlockTree, md metadata.Metadata) []mev.Bundle {
	candidates := partitionAll(formCandidates(block))

	var out []mev.Bundle
	for _, c := range candidates {
		mints := findMintPool(c.frontruns)
		if mints == nil {
			shrinks := 0
			for mints == nil && shrinks < 10 {
				shrunk, ok := shrink(c)
				if !ok {
					break
				}
				c = shrunk
				mints = findMintPool(c.frontruns)
				shrinks++
			}
		}
		if mints == nil {
			continue
		}
		burns := burnsOnPool(c.backrun, mints.pool)
		if len(burns) == 0 {
			continue
		}
		bundle, ok := j.buildJitBundle(block, c, mints, burns)
		if !ok {
			continue
		}
		if bundle.Header.ProfitUSD >= jitProfitCeilingUSD {
			continue
		}
		victimSwaps := flattenVictimSwaps(c)
		if len(victimSwaps) > 0 {
			if sandBody, sandOK := j.sandwichComponent(block, c); sandOK {
				out = append(out, j.composeJitSandwich(bundle, sandBody))
				continue
			}
		}
		out = append(out, bundle)
	}
	return out
}

type mintMatch struct {
	tx    *tree.TransactionTree
	pool  actions.Address
	mints []actions.Mint
}

func findMintPool(frontruns []*tree.TransactionTree) *mintMatch {
	for _, f := range frontruns {
		mints := MintsOf(f)
		if len(mints) == 0 {
			continue
		}
		return &mintMatch{tx: f, pool: mints[0].Pool, mints: mints}
	}
	return nil
}

func burnsOnPool(tx *tree.TransactionTree, pool actions.Address) []actions.Burn {
	var out []actions.Burn
	for _, b := range BurnsOf(tx) {
		if b.Pool == pool {
			out = append(out, b)
		}
	}
	return out
}

func flattenVictimSwaps(c possibleSandwich) []actions.Swap {
	var out []actions.Swap
	for _, vset := range c.victims {
		for _, v := range vset {
			out = append(out, SwapsOf(v)...)
		}
	}
	return out
}

func (j *JitInspector) buildJitBundle(block *tree.BlockTree, c possibleSandwich, m *mintMatch, burns []actions.Burn) (mev.Bundle, bool) {
	var deltas []actions.BalanceDelta
	for _, mi := range m.mints {
		for i, tok := range mi.Tokens {
			deltas = append(deltas, actions.BalanceDelta{Address: c.eoa, Token: tok, Amount: mi.Amounts[i], Negative: true})
		}
	}
	for _, b := range burns {
		for i, tok := range b.Tokens {
			deltas = append(deltas, actions.BalanceDelta{Address: c.eoa, Token: tok, Amount: b.Amounts[i], Negative: false})
		}
	}

	profit, noPricing := Revenue(j.Prices, c.backrun.TxIndex, deltas)
	ethPrice := j.Prices.EthPriceUSD()
	gas := GasCostUSD(m.tx.EffectivePrice, m.tx.GasUsed, 0, ethPrice) + GasCostUSD(c.backrun.EffectivePrice, c.backrun.GasUsed, 0, ethPrice)
	profit -= gas

	var victimTx actions.Hash
	var victimSwaps []actions.Swap
	if swaps := flattenVictimSwaps(c); len(swaps) > 0 {
		victimSwaps = swaps
		for _, vset := range c.victims {
			if len(vset) > 0 {
				victimTx = vset[0].TxHash
				break
			}
		}
	}

	contract := Contract(c.backrun)
	return mev.Bundle{
		Header: mev.Header{
			SchemaVersion:       mev.SchemaVersion,
			BlockNumber:         block.BlockNumber,
			TxIndex:             uint64(c.backrun.TxIndex),
			TxHash:              c.backrun.TxHash,
			EOA:                 c.eoa,
			Contract:            contract,
			ProfitUSD:           profit,
			BribeUSD:            gas,
			MevKind:             mev.KindJit,
			BalanceDeltas:       deltas,
			NoPricingCalculated: noPricing,
		},
		Body: mev.JitBody{
			MintTx:      m.tx.TxHash,
			Mints:       m.mints,
			VictimTx:    victimTx,
			VictimSwaps: victimSwaps,
			BurnTx:      c.backrun.TxHash,
			Burns:       burns,
		},
	}, true
}

// sandwichComponent re-runs the sandwich validation on the same attacker
// trio to detect the JIT-Sandwich overlap (spec §4.5 "a single attacker
// trio contains both (Mint,Burn) and (Swap,Swap) patterns with victim
// swaps in between").
func (j *JitInspector) sandwichComponent(block *tree.BlockTree, c possibleSandwich) (mev.SandwichBody, bool) {
	if len(SwapsOf(c.backrun)) == 0 {
		return mev.SandwichBody{}, false
	}
	hasFrontrunSwap := false
	for _, f := range c.frontruns {
		if len(SwapsOf(f)) > 0 {
			hasFrontrunSwap = true
			break
		}
	}
	if !hasFrontrunSwap {
		return mev.SandwichBody{}, false
	}
	valid, _ := validate(c)
	if !valid {
		return mev.SandwichBody{}, false
	}
	var frontrunSwaps [][]actions.Swap
	var frontrunHashes []actions.Hash
	var victimHashes []actions.Hash
	var victimSwaps [][]actions.Swap
	for _, f := range c.frontruns {
		frontrunSwaps = append(frontrunSwaps, SwapsOf(f))
		frontrunHashes = append(frontrunHashes, f.TxHash)
	}
	for _, vset := range c.victims {
		for _, v := range vset {
			victimHashes = append(victimHashes, v.TxHash)
			victimSwaps = append(victimSwaps, SwapsOf(v))
		}
	}
	return mev.SandwichBody{
		FrontrunTxs:    frontrunHashes,
		FrontrunSwaps:  frontrunSwaps,
		VictimTxHashes: victimHashes,
		VictimSwaps:    victimSwaps,
		BackrunTx:      c.backrun.TxHash,
		BackrunSwaps:   SwapsOf(c.backrun),
	}, true
}

func (j *JitInspector) composeJitSandwich(jitBundle mev.Bundle, sand mev.SandwichBody) mev.Bundle {
	jitBody := jitBundle.Body.(mev.JitBody)
	jitBundle.Header.MevKind = mev.KindJitSandwich
	jitBundle.Body = mev.JitSandwichBody{Jit: jitBody, Sandwich: sand}
	return jitBundle
}

// IsJitCexDex reports whether a detected Jit bundle should additionally be
// flagged as a CEX-DEX JIT (spec §4.5 "JIT CexDex is flagged when the
// searcher EOA matches the CEX-DEX-searcher label or when the JIT's victim
// swap, priced against CEX, would have been a profitable arbitrage").
func IsJitCexDex(store metadata.Store, prices PriceContext, txIndex int, eoa actions.Address, victimSwap actions.Swap) bool {
	info := SearcherHistory(store, eoa)
	if info.LabeledCexDexSeacher {
		return true
	}
	inPrice := prices.USDValue(txIndex, victimSwap.TokenIn, victimSwap.AmountIn)
	outPrice := prices.USDValue(txIndex, victimSwap.TokenOut, victimSwap.AmountOut)
	if inPrice.NoPricing || outPrice.NoPricing {
		return false
	}
	inUSD := victimSwap.AmountIn.Float64() * inPrice.Value
	outUSD := victimSwap.AmountOut.Float64() * outPrice.Value
	return outUSD > inUSD
}
