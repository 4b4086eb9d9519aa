// Package mev implements the MEV output model (spec §3.4): Bundle, its
// typed bodies, and the block-level MevBlock aggregate that the composer
// (core/composer) produces and the pipeline (core/pipeline) emits.
package mev

import (
	"brontes/core/actions"
)

// Kind enumerates the MEV bundle types. The ordinal order below is also the
// composer's precedence order (spec §4.9 / Design Note "dedup with
// precedence"): lower ordinal wins ties. Kind is serialized as part of
// Bundle and must be rejected, not guessed, when unknown (spec §6
// compatibility note).
type Kind uint8

const (
	KindJitSandwich Kind = iota
	KindSandwich
	KindJit
	KindCexDex
	KindAtomicArb
	KindLiquidation
	KindSearcherTx
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindJitSandwich:
		return "JitSandwich"
	case KindSandwich:
		return "Sandwich"
	case KindJit:
		return "Jit"
	case KindCexDex:
		return "CexDex"
	case KindAtomicArb:
		return "AtomicArb"
	case KindLiquidation:
		return "Liquidation"
	case KindSearcherTx:
		return "SearcherTx"
	default:
		return "Unknown"
	}
}

// Precedes reports whether k has strictly higher precedence than other
// (lower ordinal = higher precedence, per the Design Note total order).
func (k Kind) Precedes(other Kind) bool { return k < other }

// SchemaVersion is bumped whenever Bundle's body encoding changes
// incompatibly (spec §6). Readers must reject a Bundle whose SchemaVersion
// or Kind they do not recognize rather than misinterpret its fields.
const SchemaVersion = 1

// Header carries the fields common to every bundle kind (spec §3.4).
type Header struct {
	SchemaVersion       int
	BlockNumber         uint64
	TxIndex             uint64
	TxHash              actions.Hash
	EOA                 actions.Address
	Contract            *actions.Address
	ProfitUSD           float64
	BribeUSD            float64
	MevKind             Kind
	BalanceDeltas       []actions.BalanceDelta
	NoPricingCalculated bool
}

// Bundle is one detected MEV unit: a header plus a kind-specific body. Body
// is one of the *Body types below; callers switch on Header.MevKind to
// recover the concrete type (mirrors the Action/Data split in core/actions).
type Bundle struct {
	Header Header
	Body   Body
}

// Body is implemented by every bundle body variant.
type Body interface {
	Kind() Kind
	isBody()
}

// SandwichBody is the detection result of the sandwich inspector (spec §4.4).
type SandwichBody struct {
	FrontrunTxs    []actions.Hash
	FrontrunSwaps  [][]actions.Swap
	VictimTxHashes []actions.Hash
	VictimSwaps    [][]actions.Swap
	BackrunTx      actions.Hash
	BackrunSwaps   []actions.Swap
}

func (SandwichBody) Kind() Kind { return KindSandwich }
func (SandwichBody) isBody()    {}

// JitBody is the detection result of the JIT inspector (spec §4.5).
type JitBody struct {
	MintTx      actions.Hash
	Mints       []actions.Mint
	VictimTx    actions.Hash
	VictimSwaps []actions.Swap
	BurnTx      actions.Hash
	Burns       []actions.Burn
}

func (JitBody) Kind() Kind { return KindJit }
func (JitBody) isBody()    {}

// JitSandwichBody combines a Jit and Sandwich pattern on the same attacker
// trio (spec §4.5).
type JitSandwichBody struct {
	Jit      JitBody
	Sandwich SandwichBody
}

func (JitSandwichBody) Kind() Kind { return KindJitSandwich }
func (JitSandwichBody) isBody()    {}

// AtomicArbClass classifies the shape of an atomic-arbitrage swap chain
// (spec §4.6).
type AtomicArbClass uint8

const (
	ArbTriangle AtomicArbClass = iota
	ArbStablecoin
	ArbCrossPair
	ArbLongTail
)

func (c AtomicArbClass) String() string {
	switch c {
	case ArbTriangle:
		return "Triangle"
	case ArbStablecoin:
		return "Stablecoin"
	case ArbCrossPair:
		return "CrossPair"
	default:
		return "LongTail"
	}
}

// AtomicArbBody is the detection result of the atomic-arbitrage inspector
// (spec §4.6).
type AtomicArbBody struct {
	Class AtomicArbClass
	Swaps []actions.Swap
}

func (AtomicArbBody) Kind() Kind { return KindAtomicArb }
func (AtomicArbBody) isBody()    {}

// CexDexBody is the detection result of the CEX/DEX inspector (spec §4.7).
type CexDexBody struct {
	Swaps          []actions.Swap
	ExchangeProfit map[string]float64
	GlobalVWAPUSD  float64
	OptimisticUSD  float64
}

func (CexDexBody) Kind() Kind { return KindCexDex }
func (CexDexBody) isBody()    {}

// LiquidationBody is the detection result of the liquidation inspector
// (spec §4.8).
type LiquidationBody struct {
	Liquidations []actions.Liquidation
}

func (LiquidationBody) Kind() Kind { return KindLiquidation }
func (LiquidationBody) isBody()    {}

// SearcherTxBody wraps a transaction attributed to a known searcher that
// did not match any specific strategy detector.
type SearcherTxBody struct{}

func (SearcherTxBody) Kind() Kind { return KindSearcherTx }
func (SearcherTxBody) isBody()    {}

// MevBlock aggregates a block's bundles plus block-level rollups (spec
// §3.4).
type MevBlock struct {
	BlockNumber       uint64
	EthPriceUSD       float64
	Bundles           []Bundle
	CumulativeGasUSD  float64
	MevCountByKind    map[Kind]int
	BuilderProfitUSD  float64
	ProposerProfitUSD float64
}
