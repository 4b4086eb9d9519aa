// Package actions implements the canonical normalized-action model (spec
// §3.1): the tagged variant of on-chain effects that the classifier
// produces from raw call/log data, plus the small set of address/hash
// aliases shared by every downstream package.
package actions

import (
	"github.com/ethereum/go-ethereum/common"

	"brontes/core/rational"
)

// Address and Hash are the canonical 20/32-byte identifiers used across the
// tree, classifier, metadata, and inspector packages. They alias
// go-ethereum's types directly rather than re-declaring [20]byte/[32]byte,
// per the Design Note on rational arithmetic/type reuse — any call into an
// EVM-facing helper (keccak topic derivation, checksum formatting) gets
// go-ethereum's implementation for free.
type Address = common.Address

// Hash is the 32-byte identifier used for transaction and topic hashes.
type Hash = common.Hash

// TokenID identifies an ERC-20-like token by its on-chain address.
type TokenID = Address

// PoolID identifies a liquidity pool by its on-chain contract address.
type PoolID = Address

// Kind is a bitmask with one bit per Action variant, stored on every tree
// Node so that subtree filtering (spec §3.2 "bitset of action kinds") is a
// single OR/AND over an integer rather than a tree walk.
type Kind uint32

const (
	KindNone Kind = 0
	KindSwap Kind = 1 << iota
	KindMint
	KindBurn
	KindTransfer
	KindEthTransfer
	KindFlashLoan
	KindLiquidation
	KindBatchSwap
	KindAggregatorSwap
	KindNewPool
	KindUnclassified
)

var kindNames = map[Kind]string{
	KindSwap:           "Swap",
	KindMint:           "Mint",
	KindBurn:           "Burn",
	KindTransfer:       "Transfer",
	KindEthTransfer:    "EthTransfer",
	KindFlashLoan:      "FlashLoan",
	KindLiquidation:    "Liquidation",
	KindBatchSwap:      "BatchSwap",
	KindAggregatorSwap: "AggregatorSwap",
	KindNewPool:        "NewPool",
	KindUnclassified:   "Unclassified",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(mixed)"
}

// Has reports whether the bitmask k contains every bit set in other.
func (k Kind) Has(other Kind) bool { return k&other == other }

// BalanceDelta is one address's net change in a token's balance across a
// transaction, signed (negative for outflows). Used by the PnL primitive
// (spec §4.3) and carried on Bundle headers (spec §3.4).
type BalanceDelta struct {
	Address  Address
	Token    TokenID
	Amount   rational.Amount
	Negative bool
	USDValue float64
}
