package tree

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/rational"
)

func addr(b byte) actions.Address {
	var a actions.Address
	a[19] = b
	return a
}

func frame(traceIdx, depth int, errStr string) RawFrame {
	return RawFrame{
		TraceIndex: traceIdx,
		Depth:      depth,
		MsgSender:  addr(1),
		Callee:     addr(2),
		CallType:   CallTypeCall,
		EthValue:   rational.FromUint64(0),
		Error:      errStr,
	}
}

// buildSimpleTree builds root -> [child0, child1 -> grandchild].
func buildSimpleTree(t *testing.T, classify func(*TransactionTree, *Node)) *TransactionTree {
	t.Helper()
	frames := []RawFrame{
		frame(0, 0, ""),
		frame(1, 1, ""),
		frame(2, 1, ""),
		frame(3, 2, ""),
	}
	tt, err := BuildTransactionTree(actions.Hash{1}, 0, 21000, 1, true, frames, classify)
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}
	return tt
}

func TestBuildTransactionTreeOrdersAndNests(t *testing.T) {
	tt := buildSimpleTree(t, nil)
	if tt.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", tt.Len())
	}
	root := tt.Root()
	if len(root.Children) != 2 {
		t.Fatalf("expected root to have 2 children, got %d", len(root.Children))
	}
	grandparent := tt.Node(root.Children[1])
	if len(grandparent.Children) != 1 {
		t.Fatalf("expected second child to have 1 child of its own, got %d", len(grandparent.Children))
	}
	if err := tt.ValidateDFSOrder(); err != nil {
		t.Fatalf("expected valid DFS order, got %v", err)
	}
}

func TestBuildTransactionTreeRejectsTraceIndexGap(t *testing.T) {
	frames := []RawFrame{
		frame(0, 0, ""),
		frame(1, 2, ""), // depth jumps from 0 to 2, no parent at depth 1
	}
	_, err := BuildTransactionTree(actions.Hash{2}, 0, 21000, 1, true, frames, nil)
	if err == nil {
		t.Fatal("expected an invariant error for a missing parent frame")
	}
}

func TestBuildTransactionTreeRejectsNonIncreasingTraceIndex(t *testing.T) {
	frames := []RawFrame{
		frame(1, 0, ""),
		frame(1, 1, ""),
	}
	_, err := BuildTransactionTree(actions.Hash{3}, 0, 21000, 1, true, frames, nil)
	if err == nil {
		t.Fatal("expected an invariant error for a non-increasing trace index")
	}
}

func TestPropagateKindsUnionsBottomUp(t *testing.T) {
	tt := buildSimpleTree(t, func(t *TransactionTree, n *Node) {
		if n.TraceIndex == 3 {
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Swap{}}
		}
	})
	root := tt.Root()
	if !root.SubtreeKinds.Has(actions.KindSwap) {
		t.Fatal("expected the swap kind to propagate up to the root")
	}
	sibling := tt.Node(root.Children[0])
	if sibling.SubtreeKinds.Has(actions.KindSwap) {
		t.Fatal("did not expect the unrelated sibling subtree to carry the swap kind")
	}
}

func TestFlagRevertsPropagatesToDescendants(t *testing.T) {
	frames := []RawFrame{
		frame(0, 0, ""),
		frame(1, 1, "execution reverted"),
		frame(2, 2, ""),
	}
	tt, err := BuildTransactionTree(actions.Hash{4}, 0, 21000, 1, false, frames, nil)
	if err != nil {
		t.Fatalf("BuildTransactionTree: %v", err)
	}
	root := tt.Root()
	child := tt.Node(root.Children[0])
	grandchild := tt.Node(child.Children[0])
	if !child.Reverted {
		t.Fatal("expected the erroring frame to be flagged reverted")
	}
	if !grandchild.Reverted {
		t.Fatal("expected the reverted flag to propagate to descendants")
	}
	if root.Reverted {
		t.Fatal("did not expect the root to be flagged reverted")
	}
}

func TestCollectByKindUsesSubtreeBitset(t *testing.T) {
	tt := buildSimpleTree(t, func(t *TransactionTree, n *Node) {
		if n.TraceIndex == 3 {
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Swap{}}
		}
	})
	got := tt.CollectByKind(actions.KindSwap)
	// root, the swap's parent (trace index 2), and the swap node itself all carry the bit.
	if len(got) != 3 {
		t.Fatalf("expected 3 nodes carrying KindSwap in their subtree, got %d", len(got))
	}
}

func TestTxsTouchingPool(t *testing.T) {
	pool := addr(9)
	tt := buildSimpleTree(t, func(t *TransactionTree, n *Node) {
		if n.TraceIndex == 3 {
			n.Action = &actions.Action{TraceIndex: 3, Data: actions.Swap{Pool: pool}}
		}
	})
	block := NewBlockTree(1)
	block.Txs = append(block.Txs, tt)

	other := buildSimpleTree(t, nil)
	other.TxHash = actions.Hash{5}
	block.Txs = append(block.Txs, other)

	matches := block.TxsTouchingPool(pool)
	if len(matches) != 1 {
		t.Fatalf("expected 1 tx touching the pool, got %d", len(matches))
	}
	if matches[0].TxHash != tt.TxHash {
		t.Fatalf("expected the swap's tx to match")
	}
}

func TestParentIndex(t *testing.T) {
	tt := buildSimpleTree(t, nil)
	parents := tt.ParentIndex()
	root := tt.Root()
	if parents[root.Index] != -1 {
		t.Fatalf("expected root's parent to be -1, got %d", parents[root.Index])
	}
	grandparent := tt.Node(root.Children[1])
	grandchild := tt.Node(grandparent.Children[0])
	if parents[grandchild.Index] != grandparent.Index {
		t.Fatalf("expected grandchild's parent to be %d, got %d", grandparent.Index, parents[grandchild.Index])
	}
}
