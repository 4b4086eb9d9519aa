// Package metadata defines the per-block Metadata bundle (spec §3.3) and the
// external-collaborator interfaces inspectors and the pipeline read it
// through (spec §6 "Metadata store"). Metadata is assembled once per block
// and shared read-only for the lifetime of inspector execution.
package metadata

import (
	"brontes/core/actions"
	"brontes/core/rational"
)

// BlockInfo carries block-level header fields, including the private-flow
// set used by several inspectors' validation rules (spec §3.3).
type BlockInfo struct {
	Number               uint64
	Hash                 actions.Hash
	Timestamp            int64 // unix seconds
	RelayTimestamp       *int64
	P2PTimestamp         *int64
	ProposerFeeRecipient *actions.Address
	ProposerMevRewardUSD *float64
	PrivateFlow          map[actions.Hash]bool
}

// Quote is one (timestamp, bid, ask) observation (spec §3.3 cex_quotes).
type Quote struct {
	Timestamp int64 // unix millis
	Bid       float64
	Ask       float64
}

// Trade is one (timestamp, side, price, amount) observation (spec §3.3
// cex_trades).
type Trade struct {
	Timestamp int64 // unix millis
	Side      Side
	Price     float64
	Amount    float64
}

// Side is the taker side of a CEX trade.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

// Pair identifies a traded asset pair by symbol, e.g. {Base:"WETH",
// Quote:"USDC"}.
type Pair struct {
	Base  string
	Quote string
}

// DexQuote is the pre/post-state price observed around a transaction (spec
// §3.3 dex_quotes): the pre_state_price is what a searcher could have seen
// before acting, used by the USD-valuation shared utility (§4.3).
type DexQuote struct {
	PreStatePrice  float64
	PostStatePrice float64
}

// BuilderInfo is a range-agnostic row about a block builder.
type BuilderInfo struct {
	Name          string
	FeeRecipients []actions.Address
}

// SearcherInfo is a range-agnostic per-address row of prior-activity
// counters (spec §4.3 "Searcher-history lookup: stored per-address counters
// by MEV kind"), plus the labels several inspectors' validation rules key
// on (spec §4.6/§4.7 "labeled arbitrageur", "CEX-DEX-searcher label").
type SearcherInfo struct {
	Address              actions.Address
	CountsByKind         map[string]int
	LabeledArbitrageur   bool
	LabeledCexDexSeacher bool
	KnownMevContract     bool
}

// AddressMetadata is a range-agnostic row of flags used by validation rules
// across inspectors (spec §4.6 "direct-builder-payment").
type AddressMetadata struct {
	Address              actions.Address
	IsSolverSettlement   bool
	IsDeFiAutomation     bool
	DirectToBuilderPayer bool
}

// Metadata is the immutable per-block bundle every inspector reads (spec
// §3.3). It is constructed once per block by a MetadataStore and then
// shared read-only (spec §3.4 "Ownership").
type Metadata struct {
	Block        BlockInfo
	CexQuotes    map[string]map[Pair][]Quote // exchange -> pair -> ordered
	CexTrades    map[string]map[Pair][]Trade // exchange -> pair -> ordered
	DexQuotes    map[int]map[Pair]DexQuote   // tx_index -> pair -> quote
	BuilderInfo  map[actions.Address]BuilderInfo
	SearcherInfo map[actions.Address]SearcherInfo
	AddressMeta  map[actions.Address]AddressMetadata
}

// TokenInfo is the range-agnostic token row the classifier's TokenDB and
// the rational-amount shifting utilities read (spec §6 "TokenInfo").
type TokenInfo struct {
	Address  actions.Address
	Symbol   string
	Decimals uint8
}

// ProtocolInfo mirrors classifier.ProtocolInfo at the store boundary; kept
// as a distinct type here to avoid core/metadata depending on
// core/classifier (store depends on both, not the reverse).
type ProtocolInfo struct {
	Protocol  string
	InitBlock uint64
}

// Store is the read-only query surface of the metadata store (spec §6
// "Metadata store: read-only queries by block number... Range-agnostic
// lookups by address..."). Implementations: core/store.LocalKV (embedded),
// or an upstream warehouse-backed adapter.
type Store interface {
	BlockMetadata(blockNumber uint64) (Metadata, error)
	AddressMetadata(addr actions.Address) (AddressMetadata, bool)
	SearcherInfo(addr actions.Address) (SearcherInfo, bool)
	ProtocolInfo(addr actions.Address) (ProtocolInfo, bool)
	TokenInfo(addr actions.Address) (TokenInfo, bool)
}

// USDPrice resolves a token to a USD price at a point in a block's
// execution; see core/inspectors for the pre-state/CEX-VWAP fallback chain
// that implements the "USD valuation" shared utility (spec §4.3).
type USDPrice struct {
	Value     float64
	NoPricing bool
}

// ShiftedUSD multiplies a rational token amount by a resolved USD price,
// returning (0, true) when pricing was unavailable rather than erroring
// (spec §7 "Missing-data... affected value is set to zero").
func ShiftedUSD(amount rational.Amount, price USDPrice) (float64, bool) {
	if price.NoPricing {
		return 0, true
	}
	return amount.Float64() * price.Value, false
}
