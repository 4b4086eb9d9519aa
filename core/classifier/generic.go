package classifier

import (
	"github.com/holiman/uint256"

	"brontes/core/actions"
	"brontes/core/rational"
)

// Standard ERC-20 event topics, used by the generic decoder for addresses
// with no registered protocol (spec §4.1 "unknown addresses are dispatched
// to a generic decoder that attempts standard ERC-20 Transfer/Approval
// topics").
var (
	topicTransfer = Topic0Of("Transfer(address,address,uint256)")
	topicApproval = Topic0Of("Approval(address,address,uint256)")
)

// GenericERC20Decoder recognizes a bare ERC-20 Transfer log regardless of
// protocol registration. Approval topics carry no value movement and are
// intentionally not translated into an Action.
func GenericERC20Decoder(in CallInput) (actions.Action, bool) {
	for _, lg := range in.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != topicTransfer {
			continue
		}
		if len(lg.Topics) < 3 || len(lg.Data) < 32 {
			continue
		}
		from := actions.Address(lg.Topics[1][12:])
		to := actions.Address(lg.Topics[2][12:])
		amt := new(uint256.Int).SetBytes(lg.Data[:32])
		decimals, ok := in.DB.Decimals(lg.Address)
		if !ok {
			// Missing decimals: drop the action rather than error the tx
			// (spec §4.1 edge-case policy); the caller still logs the miss.
			continue
		}
		return actions.Action{
			TraceIndex: in.TraceIndex,
			Data: actions.Transfer{
				From:   from,
				To:     to,
				Token:  lg.Address,
				Amount: rational.ShiftDecimals(amt, decimals),
			},
		}, true
	}
	return actions.Action{}, false
}
