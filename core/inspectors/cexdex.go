package inspectors

import (
	"math"
	"sort"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
)

// CexDexInspector implements spec §4.7's five-stage pipeline: filter,
// swap-merge, dynamic-window VWAP + optimistic-fill CEX pricing, PnL, and
// validation.
type CexDexInspector struct {
	Prices      PriceContext
	Store       metadata.Store
	Stablecoins map[string]string

	// PreDecayMs/PostDecayMs are the bi-exponential decay time constants
	// (milliseconds, the e-folding time, not a half-life) for trade
	// weighting in the dynamic-window VWAP (spec
	// §4.7 Stage 3a "separate pre/post decay constants"). Zero defaults to
	// 5000ms both sides.
	PreDecayMs  float64
	PostDecayMs float64

	// QualityFraction is the top-quality-% of trades taken per optimistic
	// fill basket (spec §4.7 Stage 3b, default 20%). Zero defaults to 0.2.
	QualityFraction float64

	// MaxWindowMs caps how far the dynamic-window VWAP (Stage 3a) will
	// expand windowPre before giving up on reaching requiredVolume. Zero
	// defaults to 8000ms. It bounds the pre-block side only: windowPost
	// stops growing at 350ms.
	MaxWindowMs int64

	lowLiquidityExchanges map[string]bool
}

const cexDexLowProfitThresholdUSD = 10_000

func (c *CexDexInspector) Name() string { return "cex-dex" }

func (c *CexDexInspector) lowLiquidity(exchange string) bool {
	if c.lowLiquidityExchanges == nil {
		return exchange == "kucoin" || exchange == "okex"
	}
	return c.lowLiquidityExchanges[exchange]
}

func (c *CexDexInspector) Inspect(block *tree.BlockTree, md metadata.Metadata) []mev.Bundle {
	var out []mev.Bundle
	for _, t := range block.Txs {
		swaps := extractSwapChain(t)
		if len(swaps) == 0 {
			continue
		}
		if c.filtered(md, t, swaps) {
			continue
		}
		merged := c.mergeSwaps(md, swaps)
		bundle, ok := c.evaluate(block, md, t, merged)
		if !ok {
			continue
		}
		out = append(out, bundle)
	}
	return out
}

// filtered implements Stage 1: drop solver-settlement / DeFi-automation
// addresses and atomic-arbitrage-shaped (cyclic) transactions.
func (c *CexDexInspector) filtered(md metadata.Metadata, t *tree.TransactionTree, swaps []actions.Swap) bool {
	eoa := EOA(t)
	if am, ok := md.AddressMeta[eoa]; ok && (am.IsSolverSettlement || am.IsDeFiAutomation) {
		return true
	}
	if contract := Contract(t); contract != nil {
		if am, ok := md.AddressMeta[*contract]; ok && (am.IsSolverSettlement || am.IsDeFiAutomation) {
			return true
		}
	}
	if len(swaps) >= 2 && swaps[0].TokenIn == swaps[len(swaps)-1].TokenOut {
		return true // atomic-arbitrage-shaped cycle, handled by AtomicArbInspector instead
	}
	return false
}

// mergeSwaps implements Stage 2: merge consecutive A→B, B→C swaps into a
// synthetic A→C when the direct pair trades on a CEX but the constituent
// legs do not.
func (c *CexDexInspector) mergeSwaps(md metadata.Metadata, swaps []actions.Swap) []actions.Swap {
	if len(swaps) < 2 {
		return swaps
	}
	var out []actions.Swap
	i := 0
	for i < len(swaps) {
		if i+1 < len(swaps) && swaps[i].TokenOut == swaps[i+1].TokenIn {
			a, b, cEnd := swaps[i], swaps[i+1], swaps[i+1].TokenOut
			directPair, okDirect := c.pairOf(a.TokenIn, cEnd)
			abPair, okAB := c.pairOf(a.TokenIn, a.TokenOut)
			bcPair, okBC := c.pairOf(b.TokenIn, b.TokenOut)
			directTrades := okDirect && c.tradesOnAnyExchange(md, directPair)
			abTrades := okAB && c.tradesOnAnyExchange(md, abPair)
			bcTrades := okBC && c.tradesOnAnyExchange(md, bcPair)
			if directTrades && (!abTrades || !bcTrades) {
				out = append(out, actions.Swap{
					Pool: a.Pool, From: a.From, Recipient: b.Recipient,
					TokenIn: a.TokenIn, TokenOut: cEnd,
					AmountIn: a.AmountIn, AmountOut: b.AmountOut,
				})
				i += 2
				continue
			}
		}
		out = append(out, swaps[i])
		i++
	}
	return out
}

func (c *CexDexInspector) pairOf(x, y actions.Address) (metadata.Pair, bool) {
	sx, okx := c.Prices.TokenSymbol(x)
	sy, oky := c.Prices.TokenSymbol(y)
	if !okx || !oky {
		return metadata.Pair{}, false
	}
	return metadata.Pair{Base: sx, Quote: sy}, true
}

func (c *CexDexInspector) tradesOnAnyExchange(md metadata.Metadata, pair metadata.Pair) bool {
	for _, pairs := range md.CexTrades {
		if trades, ok := pairs[pair]; ok && len(trades) > 0 {
			return true
		}
	}
	return false
}

// Stage 3a: dynamic-window VWAP (spec §4.7).
func (c *CexDexInspector) dynamicWindowVWAP(md metadata.Metadata, pair metadata.Pair, blockTimeMs int64, requiredVolume float64) (float64, int, bool) {
	preDecay := c.PreDecayMs
	if preDecay == 0 {
		preDecay = 5000
	}
	postDecay := c.PostDecayMs
	if postDecay == 0 {
		postDecay = 5000
	}

	maxWindowMs := c.MaxWindowMs
	if maxWindowMs == 0 {
		maxWindowMs = 8000
	}

	windowPre, windowPost := int64(20), int64(80)
	expandedPost := false
	exchanges := map[string]bool{}
	var num, den float64

	for {
		num, den = 0, 0
		exchanges = map[string]bool{}
		for exch, pairs := range md.CexTrades {
			trades, ok := pairs[pair]
			if !ok {
				continue
			}
			for _, tr := range trades {
				dt := tr.Timestamp - blockTimeMs
				if dt < -windowPre || dt > windowPost {
					continue
				}
				var w float64
				if dt <= 0 {
					w = math.Exp(float64(dt) / preDecay)
				} else {
					w = math.Exp(-float64(dt) / postDecay)
				}
				num += tr.Price * tr.Amount * w
				den += tr.Amount * w
				if tr.Amount*w > 0 {
					exchanges[exch] = true
				}
			}
		}
		if den >= requiredVolume*1.1 || (windowPre >= maxWindowMs && expandedPost) {
			break
		}
		if !expandedPost && windowPost < 350 {
			windowPost += 10
			if windowPost >= 350 {
				expandedPost = true
			}
			continue
		}
		if windowPre < maxWindowMs {
			windowPre += 10
			if windowPost < 350 {
				windowPost += 10
			}
			continue
		}
		break
	}
	if den == 0 {
		return 0, 0, false
	}
	return num / den, len(exchanges), true
}

// Stage 3b: optimistic fill (spec §4.7).
func (c *CexDexInspector) optimisticFill(md metadata.Metadata, pair metadata.Pair, blockTimeMs int64, requiredVolume float64) (float64, bool) {
	quality := c.QualityFraction
	if quality == 0 {
		quality = 0.2
	}
	windowPre, windowPost := int64(200), int64(200)
	for pass := 0; pass < 3; pass++ {
		var all []metadata.Trade
		for _, pairs := range md.CexTrades {
			if trades, ok := pairs[pair]; ok {
				all = append(all, trades...)
			}
		}
		var inWindow []metadata.Trade
		for _, tr := range all {
			dt := tr.Timestamp - blockTimeMs
			if dt >= -windowPre && dt <= windowPost {
				inWindow = append(inWindow, tr)
			}
		}
		totalVol := 0.0
		for _, tr := range inWindow {
			totalVol += tr.Amount
		}
		if totalVol >= requiredVolume || pass == 2 {
			return fillBaskets(inWindow, blockTimeMs, windowPre, windowPost, requiredVolume, quality)
		}
		switch pass {
		case 0:
			windowPost = 450
		case 1:
			windowPre, windowPost = 5000, 8000
		}
	}
	return 0, false
}

// fillBaskets splits [-windowPre, windowPost] into baskets scaled to 1/20
// of the window (clamped [20ms, 200ms]), allocates required volume per
// basket proportional to basket size, and fills each basket from its
// best-priced trades first, forbidding any trade timestamped after the
// basket's own cutoff (spec §4.7 "sliding cutoff").
func fillBaskets(trades []metadata.Trade, blockTimeMs, windowPre, windowPost int64, requiredVolume, quality float64) (float64, bool) {
	total := windowPre + windowPost
	basketSize := total / 20
	if basketSize < 20 {
		basketSize = 20
	}
	if basketSize > 200 {
		basketSize = 200
	}
	if basketSize <= 0 {
		return 0, false
	}
	nBaskets := int((total + basketSize - 1) / basketSize)
	if nBaskets == 0 {
		return 0, false
	}
	volPerBasket := requiredVolume / float64(nBaskets)

	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp < trades[j].Timestamp })

	var num, den float64
	carry := 0.0
	for b := 0; b < nBaskets; b++ {
		lo := -windowPre + int64(b)*basketSize
		hi := lo + basketSize
		cutoff := blockTimeMs + hi
		var basket []metadata.Trade
		for _, tr := range trades {
			dt := tr.Timestamp - blockTimeMs
			if dt >= lo && dt < hi && tr.Timestamp <= cutoff {
				basket = append(basket, tr)
			}
		}
		sort.Slice(basket, func(i, j int) bool { return basket[i].Price < basket[j].Price })
		need := volPerBasket + carry
		take := need * quality
		filled := 0.0
		for _, tr := range basket {
			if filled >= take {
				break
			}
			amt := tr.Amount
			if filled+amt > take {
				amt = take - filled
			}
			num += tr.Price * amt
			den += amt
			filled += amt
		}
		if filled < need {
			carry = need - filled
		} else {
			carry = 0
		}
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func (c *CexDexInspector) evaluate(block *tree.BlockTree, md metadata.Metadata, t *tree.TransactionTree, swaps []actions.Swap) (mev.Bundle, bool) {
	blockTimeMs := md.Block.Timestamp * 1000
	exchangeProfit := map[string]float64{}
	var vwapTotal, optimisticTotal float64
	profitableExchanges := map[string]bool{}

	for _, sw := range swaps {
		pair, ok := c.pairOf(sw.TokenIn, sw.TokenOut)
		if !ok {
			continue
		}
		dexPrice := 0.0
		if sw.AmountIn.Float64() != 0 {
			dexPrice = sw.AmountOut.Float64() / sw.AmountIn.Float64()
		}
		vwap, exchCount, vwapOK := c.dynamicWindowVWAP(md, pair, blockTimeMs, sw.AmountIn.Float64())
		optimistic, optOK := c.optimisticFill(md, pair, blockTimeMs, sw.AmountIn.Float64())

		if vwapOK {
			gross := (vwap - dexPrice) * sw.AmountIn.Float64()
			vwapTotal += gross
			if gross > 0 {
				profitableExchanges["vwap"] = true
			}
		}
		if optOK {
			gross := (optimistic - dexPrice) * sw.AmountIn.Float64()
			optimisticTotal += gross
		}
		for exch, pairs := range md.CexTrades {
			if _, ok := pairs[pair]; !ok {
				continue
			}
			p, found := c.exchangeMidPrice(md, exch, pair, blockTimeMs)
			if !found {
				continue
			}
			gross := (p - dexPrice) * sw.AmountIn.Float64()
			exchangeProfit[exch] += gross
			if gross > 0 {
				profitableExchanges[exch] = true
			}
		}
		_ = exchCount
	}

	ethPrice := c.Prices.EthPriceUSD()
	gas := GasCostUSD(t.EffectivePrice, t.GasUsed, 0, ethPrice)
	vwapTotal -= gas
	optimisticTotal -= gas

	eoa := EOA(t)
	info := SearcherHistory(c.Store, eoa)
	priorCexDex := info.CountsByKind[mev.KindCexDex.String()]

	accept := vwapTotal > 0 || optimisticTotal > 0 || len(profitableExchanges) >= 2 ||
		priorCexDex > 40 || info.LabeledCexDexSeacher

	if accept && vwapTotal > cexDexLowProfitThresholdUSD && !info.LabeledCexDexSeacher {
		onlyLowLiquidity := len(profitableExchanges) > 0
		for exch := range profitableExchanges {
			if exch == "vwap" {
				continue
			}
			if !c.lowLiquidity(exch) {
				onlyLowLiquidity = false
			}
		}
		if onlyLowLiquidity {
			accept = false
		}
	}
	if !accept {
		return mev.Bundle{}, false
	}

	contract := Contract(t)
	return mev.Bundle{
		Header: mev.Header{
			SchemaVersion: mev.SchemaVersion,
			BlockNumber:   block.BlockNumber,
			TxIndex:       uint64(t.TxIndex),
			TxHash:        t.TxHash,
			EOA:           eoa,
			Contract:      contract,
			ProfitUSD:     vwapTotal,
			BribeUSD:      gas,
			MevKind:       mev.KindCexDex,
		},
		Body: mev.CexDexBody{
			Swaps:          swaps,
			ExchangeProfit: exchangeProfit,
			GlobalVWAPUSD:  vwapTotal,
			OptimisticUSD:  optimisticTotal,
		},
	}, true
}

func (c *CexDexInspector) exchangeMidPrice(md metadata.Metadata, exchange string, pair metadata.Pair, blockTimeMs int64) (float64, bool) {
	pairs, ok := md.CexQuotes[exchange]
	if !ok {
		return 0, false
	}
	quotes, ok := pairs[pair]
	if !ok || len(quotes) == 0 {
		return 0, false
	}
	best := quotes[0]
	bestDt := absInt64(best.Timestamp - blockTimeMs)
	for _, q := range quotes[1:] {
		if d := absInt64(q.Timestamp - blockTimeMs); d < bestDt {
			best, bestDt = q, d
		}
	}
	return (best.Bid + best.Ask) / 2, true
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
