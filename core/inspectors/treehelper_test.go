package inspectors

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/rational"
	"brontes/core/tree"
)

// buildTx builds a one-frame transaction tree with sender/root fixed and a
// single action attached at the root, enough for inspectors that only
// inspect a tx's flattened Actions().
func buildTx(t *testing.T, txHash actions.Hash, txIndex int, sender, callee actions.Address, data actions.Data) *tree.TransactionTree {
	t.Helper()
	frames := []tree.RawFrame{{TraceIndex: 0, Depth: 0, MsgSender: sender, Callee: callee, EthValue: rational.FromUint64(0)}}
	tt, err := tree.BuildTransactionTree(txHash, txIndex, 100_000, 1, true, frames, func(_ *tree.TransactionTree, n *tree.Node) {
		if data != nil {
			n.Action = &actions.Action{TraceIndex: 0, Data: data}
		}
	})
	if err != nil {
		t.Fatalf("buildTx: %v", err)
	}
	return tt
}
