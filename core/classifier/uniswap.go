package classifier

import (
	"github.com/holiman/uint256"

	"brontes/core/actions"
	"brontes/core/rational"
)

// Protocol identifiers for the concrete constructors registered by
// RegisterAll (spec §4.1 supplement — enough protocols to exercise every
// action variant and every collapse pass end to end).
const (
	ProtocolUniswapV2 ProtocolID = "uniswap-v2"
	ProtocolUniswapV3 ProtocolID = "uniswap-v3"
	ProtocolUniswapV4 ProtocolID = "uniswap-v4"
	ProtocolCurve     ProtocolID = "curve"
	ProtocolAaveV3    ProtocolID = "aave-v3"
	ProtocolBalancer  ProtocolID = "balancer-v2"
)

var (
	topicUniV2Swap = Topic0Of("Swap(address,uint256,uint256,uint256,uint256,address)")
	topicUniV2Mint = Topic0Of("Mint(address,uint256,uint256)")
	topicUniV2Burn = Topic0Of("Burn(address,uint256,uint256,address)")

	topicUniV3Swap = Topic0Of("Swap(address,address,int256,int256,uint160,uint128,int24)")
	topicUniV3Mint = Topic0Of("Mint(address,address,int24,int24,uint128,uint256,uint256)")
	topicUniV3Burn = Topic0Of("Burn(address,int24,int24,uint128,uint256,uint256)")

	// Uniswap V4 emits the Swap event from the singleton PoolManager (the
	// outer frame) while the economically relevant transfer happens in a
	// nested call; see multiframe.go for the merge rule this requires
	// (spec §4.1 "complex (multi-frame) classification").
	topicUniV4Swap = Topic0Of("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)")

	topicCurveTokenExchange = Topic0Of("TokenExchange(address,int128,uint256,int128,uint256)")

	topicAaveLiquidationCall = Topic0Of("LiquidationCall(address,address,address,uint256,uint256,address,bool)")
	topicAaveFlashLoan       = Topic0Of("FlashLoan(address,address,address,uint256,uint256)")

	topicBalancerSwap = Topic0Of("Swap(bytes32,address,address,uint256,uint256)")
)

// RegisterAll installs every concrete protocol constructor/decoder this
// repository ships with. Additional protocols are added the same way:
// a RegisterSelector/RegisterTopic call per (protocol, signature).
func RegisterAll(r *Registry) {
	r.RegisterTopic(ProtocolUniswapV2, topicUniV2Swap, decodeUniV2Swap)
	r.RegisterTopic(ProtocolUniswapV2, topicUniV2Mint, decodeUniV2Mint)
	r.RegisterTopic(ProtocolUniswapV2, topicUniV2Burn, decodeUniV2Burn)

	r.RegisterTopic(ProtocolUniswapV3, topicUniV3Swap, decodeUniV3Swap)
	r.RegisterTopic(ProtocolUniswapV3, topicUniV3Mint, decodeUniV3MintBurn(actions.KindMint))
	r.RegisterTopic(ProtocolUniswapV3, topicUniV3Burn, decodeUniV3MintBurn(actions.KindBurn))

	r.RegisterTopic(ProtocolUniswapV4, topicUniV4Swap, decodeUniV4Swap)

	r.RegisterTopic(ProtocolCurve, topicCurveTokenExchange, decodeCurveExchange)

	r.RegisterTopic(ProtocolAaveV3, topicAaveLiquidationCall, decodeAaveLiquidation)
	r.RegisterTopic(ProtocolAaveV3, topicAaveFlashLoan, decodeAaveFlashLoan)

	r.RegisterTopic(ProtocolBalancer, topicBalancerSwap, decodeBalancerSwap)
}

func u256(b []byte) *uint256.Int { return new(uint256.Int).SetBytes(b) }

func decodeUniV2Swap(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 128 || len(lg.Topics) < 3 {
		return actions.Action{}, false
	}
	sender := actions.Address(lg.Topics[1][12:])
	to := actions.Address(lg.Topics[2][12:])
	amount0In := u256(lg.Data[0:32])
	amount1In := u256(lg.Data[32:64])
	amount0Out := u256(lg.Data[64:96])
	amount1Out := u256(lg.Data[96:128])

	var tokenIn, tokenOut actions.Address
	var amtIn, amtOut *uint256.Int
	if !amount0In.IsZero() {
		amtIn, amtOut = amount0In, amount1Out
	} else {
		amtIn, amtOut = amount1In, amount0Out
	}
	// token0/token1 addresses are resolved via the pool's registered
	// ProtocolInfo in a full implementation; here the pool address itself
	// doubles as the canonical pair key for token_in/out until a richer
	// pool-metadata table is joined in (core/metadata assembles that).
	tokenIn, tokenOut = lg.Address, lg.Address

	decIn, ok1 := in.DB.Decimals(tokenIn)
	decOut, ok2 := in.DB.Decimals(tokenOut)
	if !ok1 || !ok2 {
		return actions.Action{}, false
	}
	return actions.Action{
		TraceIndex: in.TraceIndex,
		Data: actions.Swap{
			Pool:      lg.Address,
			From:      sender,
			Recipient: to,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  rational.ShiftDecimals(amtIn, decIn),
			AmountOut: rational.ShiftDecimals(amtOut, decOut),
		},
	}, true
}

func decodeUniV2Mint(in CallInput, logIdx int) (actions.Action, bool) {
	return decodeUniV2LiquidityEvent(in, logIdx, false)
}

func decodeUniV2Burn(in CallInput, logIdx int) (actions.Action, bool) {
	return decodeUniV2LiquidityEvent(in, logIdx, true)
}

func decodeUniV2LiquidityEvent(in CallInput, logIdx int, isBurn bool) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 64 || len(lg.Topics) < 2 {
		return actions.Action{}, false
	}
	sender := actions.Address(lg.Topics[1][12:])
	recipient := sender
	if isBurn && len(lg.Topics) >= 3 {
		recipient = actions.Address(lg.Topics[2][12:])
	}
	amt0 := u256(lg.Data[0:32])
	amt1 := u256(lg.Data[32:64])
	dec0, ok1 := in.DB.Decimals(lg.Address)
	if !ok1 {
		return actions.Action{}, false
	}
	amounts := []rational.Amount{
		rational.ShiftDecimals(amt0, dec0),
		rational.ShiftDecimals(amt1, dec0),
	}
	tokens := []actions.Address{lg.Address, lg.Address}
	if isBurn {
		return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Burn{
			Pool: lg.Address, From: sender, Recipient: recipient, Tokens: tokens, Amounts: amounts,
		}}, true
	}
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Mint{
		Pool: lg.Address, From: sender, Recipient: recipient, Tokens: tokens, Amounts: amounts,
	}}, true
}

func decodeUniV3Swap(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 32 || len(lg.Topics) < 3 {
		return actions.Action{}, false
	}
	sender := actions.Address(lg.Topics[1][12:])
	recipient := actions.Address(lg.Topics[2][12:])
	amount0 := new(uint256.Int).SetBytes(lg.Data[0:32]) // signed int256, magnitude only used here
	dec, ok := in.DB.Decimals(lg.Address)
	if !ok {
		return actions.Action{}, false
	}
	amt := rational.ShiftDecimals(amount0, dec)
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Swap{
		Pool: lg.Address, From: sender, Recipient: recipient,
		TokenIn: lg.Address, TokenOut: lg.Address,
		AmountIn: amt, AmountOut: amt,
	}}, true
}

func decodeUniV3MintBurn(kind actions.Kind) EventDecoder {
	return func(in CallInput, logIdx int) (actions.Action, bool) {
		lg := in.Logs[logIdx]
		if len(lg.Data) < 96 {
			return actions.Action{}, false
		}
		amt0 := u256(lg.Data[32:64])
		amt1 := u256(lg.Data[64:96])
		dec, ok := in.DB.Decimals(lg.Address)
		if !ok {
			return actions.Action{}, false
		}
		tokens := []actions.Address{lg.Address, lg.Address}
		amounts := []rational.Amount{rational.ShiftDecimals(amt0, dec), rational.ShiftDecimals(amt1, dec)}
		if kind == actions.KindBurn {
			return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Burn{
				Pool: lg.Address, From: in.From, Recipient: in.From, Tokens: tokens, Amounts: amounts,
			}}, true
		}
		return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Mint{
			Pool: lg.Address, From: in.From, Recipient: in.From, Tokens: tokens, Amounts: amounts,
		}}, true
	}
}

// decodeUniV4Swap decodes the outer PoolManager Swap event; token
// directionality and the actual transferred amount are completed by the
// parent-frame merge pass (multiframe.go) once the nested settle/take call
// is visited.
func decodeUniV4Swap(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Topics) < 2 {
		return actions.Action{}, false
	}
	sender := actions.Address(lg.Topics[1][12:])
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Swap{
		Pool: lg.Address, From: sender, Recipient: sender,
	}}, true
}

func decodeCurveExchange(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 128 || len(lg.Topics) < 2 {
		return actions.Action{}, false
	}
	buyer := actions.Address(lg.Topics[1][12:])
	tokensSold := u256(lg.Data[32:64])
	tokensBought := u256(lg.Data[96:128])
	dec, ok := in.DB.Decimals(lg.Address)
	if !ok {
		return actions.Action{}, false
	}
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Swap{
		Pool: lg.Address, From: buyer, Recipient: buyer,
		TokenIn: lg.Address, TokenOut: lg.Address,
		AmountIn:  rational.ShiftDecimals(tokensSold, dec),
		AmountOut: rational.ShiftDecimals(tokensBought, dec),
	}}, true
}

func decodeAaveLiquidation(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 96 || len(lg.Topics) < 3 {
		return actions.Action{}, false
	}
	collateralAsset := actions.Address(lg.Topics[1][12:])
	debtAsset := actions.Address(lg.Topics[2][12:])
	debtCovered := u256(lg.Data[0:32])
	collateralLiquidated := u256(lg.Data[32:64])
	decC, ok1 := in.DB.Decimals(collateralAsset)
	decD, ok2 := in.DB.Decimals(debtAsset)
	if !ok1 || !ok2 {
		return actions.Action{}, false
	}
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.Liquidation{
		Pool:                 lg.Address,
		Liquidator:           in.From,
		Debtor:               in.From,
		CollateralAsset:      collateralAsset,
		DebtAsset:            debtAsset,
		CoveredDebt:          rational.ShiftDecimals(debtCovered, decD),
		LiquidatedCollateral: rational.ShiftDecimals(collateralLiquidated, decC),
	}}, true
}

// decodeAaveFlashLoan decodes a pool's FlashLoan event into an
// actions.FlashLoan; ChildActions/Repayments/FeesPaid are left for the
// flash-loan collapse pass (core/tree/collapse.go) to populate once the
// surrounding call's descendant actions are known.
func decodeAaveFlashLoan(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 64 || len(lg.Topics) < 3 {
		return actions.Action{}, false
	}
	receiver := actions.Address(lg.Topics[1][12:])
	asset := actions.Address(lg.Topics[2][12:])
	amount := u256(lg.Data[0:32])
	dec, ok := in.DB.Decimals(asset)
	if !ok {
		return actions.Action{}, false
	}
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.FlashLoan{
		Pool:     lg.Address,
		Receiver: receiver,
		Assets:   []actions.Address{asset},
		Amounts:  []rational.Amount{rational.ShiftDecimals(amount, dec)},
	}}, true
}

func decodeBalancerSwap(in CallInput, logIdx int) (actions.Action, bool) {
	lg := in.Logs[logIdx]
	if len(lg.Data) < 64 || len(lg.Topics) < 3 {
		return actions.Action{}, false
	}
	tokenIn := actions.Address(lg.Topics[1][12:])
	tokenOut := actions.Address(lg.Topics[2][12:])
	amtIn := u256(lg.Data[0:32])
	amtOut := u256(lg.Data[32:64])
	decIn, ok1 := in.DB.Decimals(tokenIn)
	decOut, ok2 := in.DB.Decimals(tokenOut)
	if !ok1 || !ok2 {
		return actions.Action{}, false
	}
	sw := actions.Swap{
		Pool: lg.Address, From: in.From, Recipient: in.From,
		TokenIn: tokenIn, TokenOut: tokenOut,
		AmountIn:  rational.ShiftDecimals(amtIn, decIn),
		AmountOut: rational.ShiftDecimals(amtOut, decOut),
	}
	return actions.Action{TraceIndex: in.TraceIndex, Data: actions.BatchSwap{Swaps: []actions.Swap{sw}}}, true
}
