package actions

import "brontes/core/rational"

// Data is implemented by every normalized action variant (spec §3.1). The
// unexported marker method keeps the set closed to this package; callers
// recover the concrete variant with a type switch on Data.
type Data interface {
	Kind() Kind
	isAction()
}

// Action wraps one normalized variant with its position in the
// transaction's DFS trace order. TraceIndex is the spec's "position in the
// tx's DFS traversal" and must be strictly increasing as nodes are
// visited (spec §8 DFS-order invariant).
type Action struct {
	TraceIndex int
	Data       Data
}

func (a Action) Kind() Kind {
	if a.Data == nil {
		return KindNone
	}
	return a.Data.Kind()
}

// Swap is a single-pool token exchange.
type Swap struct {
	Pool      PoolID
	From      Address
	Recipient Address
	TokenIn   TokenID
	TokenOut  TokenID
	AmountIn  rational.Amount
	AmountOut rational.Amount
}

func (Swap) Kind() Kind { return KindSwap }
func (Swap) isAction()  {}

// Mint is a liquidity-provision deposit into a pool.
type Mint struct {
	Pool      PoolID
	From      Address
	Recipient Address
	Tokens    []TokenID
	Amounts   []rational.Amount
}

func (Mint) Kind() Kind { return KindMint }
func (Mint) isAction()  {}

// Burn is a liquidity-provision withdrawal from a pool.
type Burn struct {
	Pool      PoolID
	From      Address
	Recipient Address
	Tokens    []TokenID
	Amounts   []rational.Amount
}

func (Burn) Kind() Kind { return KindBurn }
func (Burn) isAction()  {}

// Transfer is a plain ERC-20-style token movement, optionally carrying a
// transfer fee (fee-on-transfer tokens).
type Transfer struct {
	From   Address
	To     Address
	Token  TokenID
	Amount rational.Amount
	Fee    rational.Amount
}

func (Transfer) Kind() Kind { return KindTransfer }
func (Transfer) isAction()  {}

// EthTransfer is a native-asset (ETH) value transfer carried by a CALL.
type EthTransfer struct {
	From   Address
	To     Address
	Amount rational.Amount
}

func (EthTransfer) Kind() Kind { return KindEthTransfer }
func (EthTransfer) isAction()  {}

// FlashLoan represents a borrow-use-repay sequence within one call.
// ChildActions is populated by the flash-loan collapse pass (spec §4.2),
// which copies the loan's descendant Swap/Burn/Mint/Transfer actions here
// (the descendant nodes keep their own actions) and derives Repayments and
// FeesPaid from the transfers back to Pool.
type FlashLoan struct {
	Pool         PoolID
	Receiver     Address
	Assets       []TokenID
	Amounts      []rational.Amount
	ChildActions []Action
	Repayments   []rational.Amount
	FeesPaid     []rational.Amount
}

func (FlashLoan) Kind() Kind { return KindFlashLoan }
func (FlashLoan) isAction()  {}

// Liquidation is a forced collateral sale against an under-collateralized
// borrow position.
type Liquidation struct {
	Pool                 PoolID
	Liquidator           Address
	Debtor               Address
	CollateralAsset      TokenID
	DebtAsset            TokenID
	CoveredDebt          rational.Amount
	LiquidatedCollateral rational.Amount
}

func (Liquidation) Kind() Kind { return KindLiquidation }
func (Liquidation) isAction()  {}

// BatchSwap is a container of Swaps executed as one logical multi-hop
// or multi-pool operation (e.g. a Balancer batch swap).
type BatchSwap struct {
	Swaps []Swap
}

func (BatchSwap) Kind() Kind { return KindBatchSwap }
func (BatchSwap) isAction()  {}

// AggregatorSwap is a container of Swaps executed by a DEX-aggregator
// router (e.g. 1inch, 0x) on behalf of a single logical trade.
type AggregatorSwap struct {
	Swaps []Swap
}

func (AggregatorSwap) Kind() Kind { return KindAggregatorSwap }
func (AggregatorSwap) isAction()  {}

// NewPool is emitted by discovery (spec §4.1) when a factory-create event
// or selector registers a new poolable contract.
type NewPool struct {
	Pool     PoolID
	Protocol string
	Tokens   []TokenID
}

func (NewPool) Kind() Kind { return KindNewPool }
func (NewPool) isAction()  {}

// Unclassified wraps a raw call/log the classifier registry had no
// constructor for. This is not an error (spec §7: "classifier miss... not
// an error"); the trace is retained for completeness.
type Unclassified struct {
	Target   Address
	Selector [4]byte
	HasLogs  bool
}

func (Unclassified) Kind() Kind { return KindUnclassified }
func (Unclassified) isAction()  {}
