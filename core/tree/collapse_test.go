package tree

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/rational"
)

// flashLoanFrames builds root -> flashloan -> [swap, repay-transfer], the
// shape CollapseFlashLoans expects: a FlashLoan node with Swap/Transfer
// descendants it should fold into ChildActions.
func flashLoanFrames() []RawFrame {
	return []RawFrame{
		frame(0, 0, ""), // root
		frame(1, 1, ""), // flash loan call
		frame(2, 2, ""), // swap using the borrowed funds
		frame(3, 2, ""), // repayment transfer back to the pool
	}
}

func TestCollapseFlashLoansCollectsDescendantActionsAndComputesFees(t *testing.T) {
	pool := addr(9)
	asset := addr(10)

	tt, err := BuildTransactionTree(actions.Hash{6}, 0, 21000, 1, true, flashLoanFrames(), func(tt *TransactionTree, n *Node) {
		switch n.TraceIndex {
		case 1:
			n.Action = &actions.Action{TraceIndex: 1, Data: actions.FlashLoan{
				Pool:    pool,
				Assets:  []actions.TokenID{asset},
				Amounts: []rational.Amount{rational.FromUint64(1000)},
			}}
		case 2:
			n.Action = &actions.Action{TraceIndex: 2, Data: actions.Swap{Pool: pool, TokenIn: asset}}
		case 3:
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Transfer{To: pool, Token: asset, Amount: rational.FromUint64(1005)}}
		}
	})
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}

	tt.CollapseFlashLoans()

	root := tt.Root()
	flashNode := tt.Node(root.Children[0])
	fl, ok := flashNode.Action.Data.(actions.FlashLoan)
	if !ok {
		t.Fatalf("expected the node to still carry a FlashLoan action, got %T", flashNode.Action.Data)
	}
	if len(fl.ChildActions) != 2 {
		t.Fatalf("expected the swap and transfer to be collected into ChildActions, got %d", len(fl.ChildActions))
	}
	if len(fl.Repayments) != 1 || fl.Repayments[0].Float64() != 1005 {
		t.Fatalf("unexpected repayments: %+v", fl.Repayments)
	}
	if len(fl.FeesPaid) != 1 || fl.FeesPaid[0].Float64() != 5 {
		t.Fatalf("unexpected fee, expected 5, got %+v", fl.FeesPaid)
	}
	if !root.SubtreeKinds.Has(actions.KindFlashLoan) {
		t.Fatal("expected kinds to be re-propagated after collapse")
	}
}

func TestCollapseFlashLoansIsIdempotent(t *testing.T) {
	pool := addr(9)
	asset := addr(10)
	tt, err := BuildTransactionTree(actions.Hash{7}, 0, 21000, 1, true, flashLoanFrames(), func(tt *TransactionTree, n *Node) {
		switch n.TraceIndex {
		case 1:
			n.Action = &actions.Action{TraceIndex: 1, Data: actions.FlashLoan{Pool: pool, Assets: []actions.TokenID{asset}, Amounts: []rational.Amount{rational.FromUint64(1000)}}}
		case 2:
			n.Action = &actions.Action{TraceIndex: 2, Data: actions.Swap{Pool: pool, TokenIn: asset}}
		case 3:
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Transfer{To: pool, Token: asset, Amount: rational.FromUint64(1005)}}
		}
	})
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}

	tt.CollapseFlashLoans()
	first := tt.Root().Children[0]
	fl1 := tt.Node(first).Action.Data.(actions.FlashLoan)

	tt.CollapseFlashLoans()
	fl2 := tt.Node(first).Action.Data.(actions.FlashLoan)

	if len(fl1.ChildActions) != len(fl2.ChildActions) {
		t.Fatalf("expected a second collapse pass to be a no-op, got %d then %d child actions", len(fl1.ChildActions), len(fl2.ChildActions))
	}
}

func TestReconstructSwapsFromTransfersSynthesizesSwapThroughKnownPool(t *testing.T) {
	pool := addr(9)
	trader := addr(1) // matches frame()'s default MsgSender
	tokenIn := addr(11)
	tokenOut := addr(12)

	frames := []RawFrame{
		frame(0, 0, ""),
		frame(1, 1, ""), // transfer trader -> pool
		frame(2, 1, ""), // transfer pool -> trader
	}
	tt, err := BuildTransactionTree(actions.Hash{8}, 0, 21000, 1, true, frames, func(tt *TransactionTree, n *Node) {
		switch n.TraceIndex {
		case 1:
			n.Action = &actions.Action{TraceIndex: 1, Data: actions.Transfer{From: trader, To: pool, Token: tokenIn, Amount: rational.FromUint64(100)}}
		case 2:
			n.Action = &actions.Action{TraceIndex: 2, Data: actions.Transfer{From: pool, To: trader, Token: tokenOut, Amount: rational.FromUint64(95)}}
		}
	})
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}

	knownPool := func(a actions.Address) bool { return a == pool }
	tt.ReconstructSwapsFromTransfers(CollapseOptions{}, knownPool)

	var sw *actions.Swap
	for _, n := range tt.Nodes() {
		if n.Action == nil {
			continue
		}
		if s, ok := n.Action.Data.(actions.Swap); ok {
			sw = &s
		}
	}
	if sw == nil {
		t.Fatal("expected a synthetic Swap to be reconstructed")
	}
	if sw.TokenIn != tokenIn || sw.TokenOut != tokenOut {
		t.Fatalf("unexpected synthesized swap tokens: %+v", sw)
	}
	if sw.AmountIn.Float64() != 100 || sw.AmountOut.Float64() != 95 {
		t.Fatalf("unexpected synthesized swap amounts: %+v", sw)
	}
}

func TestReconstructSwapsFromTransfersSkippedWhenStrictSemantics(t *testing.T) {
	pool := addr(9)
	tokenIn, tokenOut := addr(11), addr(12)
	frames := []RawFrame{
		frame(0, 0, ""),
		frame(1, 1, ""),
		frame(2, 1, ""),
	}
	tt, err := BuildTransactionTree(actions.Hash{9}, 0, 21000, 1, true, frames, func(tt *TransactionTree, n *Node) {
		switch n.TraceIndex {
		case 1:
			n.Action = &actions.Action{TraceIndex: 1, Data: actions.Transfer{To: pool, Token: tokenIn, Amount: rational.FromUint64(100)}}
		case 2:
			n.Action = &actions.Action{TraceIndex: 2, Data: actions.Transfer{From: pool, Token: tokenOut, Amount: rational.FromUint64(95)}}
		}
	})
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}

	tt.ReconstructSwapsFromTransfers(CollapseOptions{StrictSemantics: true}, func(actions.Address) bool { return true })

	for _, n := range tt.Nodes() {
		if n.Action == nil {
			continue
		}
		if _, ok := n.Action.Data.(actions.Swap); ok {
			t.Fatal("did not expect a swap to be synthesized under StrictSemantics")
		}
	}
}

func TestNormalizeCurveAliasesRewritesSwapAndTransferTokens(t *testing.T) {
	lpToken := addr(20)
	canonical := addr(21)
	pool := addr(9)

	tt := buildSimpleTree(t, func(tt *TransactionTree, n *Node) {
		if n.TraceIndex == 2 {
			n.Action = &actions.Action{TraceIndex: 2, Data: actions.Swap{Pool: pool, TokenIn: lpToken, TokenOut: lpToken}}
		}
		if n.TraceIndex == 3 {
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Transfer{Token: lpToken}}
		}
	})

	tt.NormalizeCurveAliases(map[actions.Address]actions.Address{lpToken: canonical})

	for _, n := range tt.Nodes() {
		if n.Action == nil {
			continue
		}
		switch a := n.Action.Data.(type) {
		case actions.Swap:
			if a.TokenIn != canonical || a.TokenOut != canonical {
				t.Fatalf("expected swap tokens rewritten to the canonical address, got %+v", a)
			}
		case actions.Transfer:
			if a.Token != canonical {
				t.Fatalf("expected transfer token rewritten to the canonical address, got %+v", a)
			}
		}
	}
}
