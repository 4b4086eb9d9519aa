package inspectors

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/rational"
)

type fakeStore struct {
	searchers map[actions.Address]metadata.SearcherInfo
}

func (f fakeStore) BlockMetadata(uint64) (metadata.Metadata, error) { return metadata.Metadata{}, nil }
func (f fakeStore) AddressMetadata(actions.Address) (metadata.AddressMetadata, bool) {
	return metadata.AddressMetadata{}, false
}
func (f fakeStore) SearcherInfo(addr actions.Address) (metadata.SearcherInfo, bool) {
	info, ok := f.searchers[addr]
	return info, ok
}
func (f fakeStore) ProtocolInfo(actions.Address) (metadata.ProtocolInfo, bool) {
	return metadata.ProtocolInfo{}, false
}
func (f fakeStore) TokenInfo(actions.Address) (metadata.TokenInfo, bool) {
	return metadata.TokenInfo{}, false
}

func testAddr(b byte) actions.Address {
	var a actions.Address
	a[19] = b
	return a
}

func TestUSDValueUsesDexQuotePreState(t *testing.T) {
	token := testAddr(1)
	pair := metadata.Pair{Base: "FOO", Quote: "USDC"}
	pc := PriceContext{
		QuoteAsset:  "USDC",
		TokenSymbol: func(a actions.Address) (string, bool) { return "FOO", a == token },
		Metadata: metadata.Metadata{
			DexQuotes: map[int]map[metadata.Pair]metadata.DexQuote{
				0: {pair: {PreStatePrice: 2.5, PostStatePrice: 2.6}},
			},
		},
	}
	price := pc.USDValue(1, token, rational.FromUint64(1))
	if price.NoPricing {
		t.Fatal("expected a resolved price")
	}
	if price.Value != 2.5 {
		t.Fatalf("expected the pre-state price 2.5, got %v", price.Value)
	}
}

func TestUSDValueFallsBackToGlobalVWAP(t *testing.T) {
	token := testAddr(2)
	pc := PriceContext{
		QuoteAsset:  "USDC",
		TokenSymbol: func(a actions.Address) (string, bool) { return "FOO", a == token },
		Metadata: metadata.Metadata{
			CexTrades: map[string]map[metadata.Pair][]metadata.Trade{
				"binance": {
					{Base: "FOO", Quote: "USDC"}: {
						{Price: 10, Amount: 1},
						{Price: 20, Amount: 1},
					},
				},
			},
		},
	}
	price := pc.USDValue(0, token, rational.FromUint64(1))
	if price.NoPricing {
		t.Fatal("expected the global VWAP fallback to resolve a price")
	}
	if price.Value != 15 {
		t.Fatalf("expected VWAP 15, got %v", price.Value)
	}
}

func TestUSDValueNoPricingForUnknownToken(t *testing.T) {
	pc := PriceContext{
		QuoteAsset:  "USDC",
		TokenSymbol: func(actions.Address) (string, bool) { return "", false },
	}
	price := pc.USDValue(0, testAddr(3), rational.FromUint64(1))
	if !price.NoPricing {
		t.Fatal("expected NoPricing for a token with no resolvable symbol")
	}
}

func TestEthPriceUSDReadsWETHPair(t *testing.T) {
	pc := PriceContext{
		QuoteAsset: "USDC",
		Metadata: metadata.Metadata{
			CexTrades: map[string]map[metadata.Pair][]metadata.Trade{
				"binance": {
					{Base: "WETH", Quote: "USDC"}: {{Price: 2000, Amount: 1}},
				},
			},
		},
	}
	if got := pc.EthPriceUSD(); got != 2000 {
		t.Fatalf("expected 2000, got %v", got)
	}
}

func TestEthPriceUSDDefaultsToZero(t *testing.T) {
	pc := PriceContext{QuoteAsset: "USDC"}
	if got := pc.EthPriceUSD(); got != 0 {
		t.Fatalf("expected 0 with no trades, got %v", got)
	}
}

func TestRevenueSumsSignedDeltas(t *testing.T) {
	tokenIn := testAddr(4)
	tokenOut := testAddr(5)
	pc := PriceContext{
		QuoteAsset: "USDC",
		TokenSymbol: func(a actions.Address) (string, bool) {
			switch a {
			case tokenIn:
				return "IN", true
			case tokenOut:
				return "OUT", true
			}
			return "", false
		},
		Metadata: metadata.Metadata{
			CexTrades: map[string]map[metadata.Pair][]metadata.Trade{
				"binance": {
					{Base: "IN", Quote: "USDC"}:  {{Price: 1, Amount: 1}},
					{Base: "OUT", Quote: "USDC"}: {{Price: 3, Amount: 1}},
				},
			},
		},
	}
	deltas := []actions.BalanceDelta{
		{Token: tokenIn, Amount: rational.FromUint64(10), Negative: true},
		{Token: tokenOut, Amount: rational.FromUint64(4), Negative: false},
	}
	usd, noPricing := Revenue(pc, 0, deltas)
	if noPricing {
		t.Fatal("expected both legs to be priced")
	}
	want := 4*3 - 10*1.0
	if usd != want {
		t.Fatalf("expected %v, got %v", want, usd)
	}
}

func TestRevenueFlagsNoPricing(t *testing.T) {
	pc := PriceContext{QuoteAsset: "USDC", TokenSymbol: func(actions.Address) (string, bool) { return "", false }}
	_, noPricing := Revenue(pc, 0, []actions.BalanceDelta{{Token: testAddr(6), Amount: rational.FromUint64(1)}})
	if !noPricing {
		t.Fatal("expected no_pricing to be flagged when no token resolves")
	}
}

func TestGasCostUSD(t *testing.T) {
	// 2 gwei priority fee * 100000 gas = 0.0002 ETH, at $2000/ETH = $0.4.
	got := GasCostUSD(2_000_000_000, 100_000, 0, 2000)
	want := 0.4
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSearcherHistoryDefaultsWhenMissing(t *testing.T) {
	store := fakeStore{}
	info := SearcherHistory(store, testAddr(7))
	if info.CountsByKind == nil {
		t.Fatal("expected a non-nil CountsByKind map for an unknown address")
	}
	if len(info.CountsByKind) != 0 {
		t.Fatalf("expected an empty map, got %v", info.CountsByKind)
	}
}

func TestSearcherHistoryReturnsStoredRow(t *testing.T) {
	addr := testAddr(8)
	store := fakeStore{searchers: map[actions.Address]metadata.SearcherInfo{
		addr: {Address: addr, LabeledArbitrageur: true, CountsByKind: map[string]int{"AtomicArb": 5}},
	}}
	info := SearcherHistory(store, addr)
	if !info.LabeledArbitrageur || info.CountsByKind["AtomicArb"] != 5 {
		t.Fatalf("unexpected info: %+v", info)
	}
}
