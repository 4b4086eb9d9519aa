package tree

import (
	"brontes/core/actions"
)

// TransactionTree is a rooted ordered tree of call frames for one
// transaction (spec §3.2). Nodes are arena-allocated; root is always
// index 0.
type TransactionTree struct {
	TxHash         actions.Hash
	TxIndex        int
	GasUsed        uint64
	EffectivePrice uint64 // wei per gas unit, as reported by the tracer
	IsSuccess      bool
	nodes          []*Node
	parent         []int // built lazily by ParentIndex; -1 for root
}

// NewTransactionTree allocates an empty tree for the given transaction
// header fields.
func NewTransactionTree(txHash actions.Hash, txIndex int, gasUsed, effectivePrice uint64, isSuccess bool) *TransactionTree {
	return &TransactionTree{
		TxHash:         txHash,
		TxIndex:        txIndex,
		GasUsed:        gasUsed,
		EffectivePrice: effectivePrice,
		IsSuccess:      isSuccess,
	}
}

// NewNode allocates and appends a node to the arena, returning its index.
// If parent >= 0, the new node is registered as a child of nodes[parent].
func (t *TransactionTree) NewNode(parent int, n Node) int {
	n.Index = len(t.nodes)
	t.nodes = append(t.nodes, &n)
	if parent >= 0 {
		t.nodes[parent].Children = append(t.nodes[parent].Children, n.Index)
	}
	t.parent = nil // invalidate cached parent index
	return n.Index
}

// Node returns the node at arena index i, or nil if out of range.
func (t *TransactionTree) Node(i int) *Node {
	if i < 0 || i >= len(t.nodes) {
		return nil
	}
	return t.nodes[i]
}

// Root returns the transaction's root call frame, or nil for an empty tree.
func (t *TransactionTree) Root() *Node { return t.Node(0) }

// Len returns the number of nodes in the tree.
func (t *TransactionTree) Len() int { return len(t.nodes) }

// Nodes returns the full node arena in DFS/trace order. Callers must treat
// the returned slice as read-only.
func (t *TransactionTree) Nodes() []*Node { return t.nodes }

// ParentIndex lazily builds and returns the ancillary parent-lookup table:
// parent[i] is the arena index of nodes[i]'s parent, or -1 for the root.
// This is the one place the tree supports "upward" navigation (spec Design
// Note: "parent navigation, when needed, is via an ancillary index built
// once").
func (t *TransactionTree) ParentIndex() []int {
	if t.parent != nil {
		return t.parent
	}
	p := make([]int, len(t.nodes))
	for i := range p {
		p[i] = -1
	}
	for _, n := range t.nodes {
		for _, c := range n.Children {
			p[c] = n.Index
		}
	}
	t.parent = p
	return p
}

// Walk visits every node in arena (DFS/trace) order, depth-first pre-order,
// starting at the root. visit returning false stops the walk early.
func (t *TransactionTree) Walk(visit func(*Node) bool) {
	if len(t.nodes) == 0 {
		return
	}
	var rec func(i int) bool
	rec = func(i int) bool {
		n := t.nodes[i]
		if !visit(n) {
			return false
		}
		for _, c := range n.Children {
			if !rec(c) {
				return false
			}
		}
		return true
	}
	rec(0)
}

// CollectByKind returns every node whose subtree contains the given kind,
// built on the bitset index (spec §4.3 "filtered views of the tree").
func (t *TransactionTree) CollectByKind(k actions.Kind) []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if n.SubtreeKinds.Has(k) {
			out = append(out, n)
		}
	}
	return out
}

// Actions returns every non-nil action attached to a node in this tree, in
// trace order (ordering invariant spec §8: DFS order).
func (t *TransactionTree) Actions() []actions.Action {
	var out []actions.Action
	for _, n := range t.nodes {
		if n.Action != nil {
			out = append(out, *n.Action)
		}
	}
	return out
}

// PropagateKinds recomputes every node's SubtreeKinds bottom-up: a node's
// kinds equal its own action's kind unioned with all children's kinds
// (spec §3.2 invariant, §8 "subtree bitsets"). Must be called after the
// tree is fully built (and again after any pass that mutates Node.Action).
func (t *TransactionTree) PropagateKinds() {
	var rec func(i int) actions.Kind
	rec = func(i int) actions.Kind {
		n := t.nodes[i]
		k := actions.KindNone
		if n.Action != nil {
			k |= n.Action.Kind()
		}
		for _, c := range n.Children {
			k |= rec(c)
		}
		n.SubtreeKinds = k
		return k
	}
	if len(t.nodes) > 0 {
		rec(0)
	}
}

// FlagReverts marks every node in a reverted root's subtree as Reverted.
// Classifiers must not attach actions under a reverted subtree unless
// explicitly opted in (spec §3.2 invariant); this pass only sets the flag,
// callers are responsible for honoring it.
func (t *TransactionTree) FlagReverts() {
	var rec func(i int, inherited bool)
	rec = func(i int, inherited bool) {
		n := t.nodes[i]
		n.Reverted = n.Reverted || inherited
		for _, c := range n.Children {
			rec(c, n.Reverted)
		}
	}
	if len(t.nodes) > 0 {
		rec(0, t.nodes[0].Reverted)
	}
}
