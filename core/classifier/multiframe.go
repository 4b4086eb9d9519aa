package classifier

import (
	"brontes/core/actions"
	"brontes/core/tree"
)

// MergeFn folds a child frame's decoded action fields into the parent
// frame's action (spec §4.1 "Complex (multi-frame) classification"). It
// returns the merged action, which replaces the parent's.
type MergeFn func(parent, child actions.Action) actions.Action

// MergeRule matches a parent selector against a child action kind (spec
// §4.1 "Rules are expressed as (parent_selector, child_action_kind,
// merge_fn)").
type MergeRule struct {
	ParentSelector Selector
	ChildKind      actions.Kind
	Merge          MergeFn
}

// DefaultMergeRules covers the protocols RegisterAll wires in that split
// event data across frames — currently just Uniswap V4, whose PoolManager
// emits Swap in an outer frame while the settlement amounts are only
// visible on the nested take/settle call.
var DefaultMergeRules = []MergeRule{
	{
		ParentSelector: Selector4("swap((address,address,uint24,int24,address),(bool,int256,uint160))"),
		ChildKind:      actions.KindTransfer,
		Merge:          mergeUniV4SwapWithTransfer,
	},
}

func mergeUniV4SwapWithTransfer(parent, child actions.Action) actions.Action {
	sw, ok := parent.Data.(actions.Swap)
	if !ok {
		return child
	}
	tr, ok := child.Data.(actions.Transfer)
	if !ok {
		return child
	}
	if sw.TokenIn == (actions.Address{}) {
		sw.TokenIn = tr.Token
		sw.AmountIn = tr.Amount
	} else {
		sw.TokenOut = tr.Token
		sw.AmountOut = tr.Amount
	}
	return actions.Action{TraceIndex: parent.TraceIndex, Data: sw}
}

// MergeMultiFrame runs the second classification pass over a tree (spec
// §4.1): for every node whose call matches a rule's ParentSelector, it
// walks the node's descendants looking for the first action of
// ChildKind, merges that child action into the node's own action and
// clears the child's action, then drops the now-absorbed child action kind
// from the subtree-kind bitset by recomputing it.
func MergeMultiFrame(t *tree.TransactionTree, rules []MergeRule, selectorOfNode func(*tree.Node) (Selector, bool)) {
	for _, n := range t.Nodes() {
		if n.Action == nil {
			continue
		}
		sel, ok := selectorOfNode(n)
		if !ok {
			continue
		}
		for _, rule := range rules {
			if sel != rule.ParentSelector {
				continue
			}
			// A swap settles both legs as separate nested transfers, so the
			// merge runs twice: once for the inbound leg, once for the
			// outbound leg, each consuming the child action it merges.
			for i := 0; i < 2; i++ {
				child := findFirstDescendantOfKind(t, n, rule.ChildKind)
				if child == nil {
					break
				}
				merged := rule.Merge(*n.Action, *child.Action)
				n.Action = &merged
				child.Action = nil
			}
		}
	}
	t.PropagateKinds()
}

func findFirstDescendantOfKind(t *tree.TransactionTree, n *tree.Node, kind actions.Kind) *tree.Node {
	for _, ci := range n.Children {
		c := t.Node(ci)
		if c.Action != nil && c.Action.Kind() == kind {
			return c
		}
		if found := findFirstDescendantOfKind(t, c, kind); found != nil {
			return found
		}
	}
	return nil
}
