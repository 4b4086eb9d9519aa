package tree

import (
	"brontes/core/actions"
	"brontes/core/rational"
)

// CollapseOptions toggles the strictness of the optional reconstruction
// passes (spec §4.2).
type CollapseOptions struct {
	// StrictSemantics disables transfer-to-swap reconstruction when an
	// inspector requests it (spec §4.2).
	StrictSemantics bool
	// CurveAliases maps an LP-token address to its canonical underlying
	// token address, for Curve-family pools (spec §4.1/§4.2).
	CurveAliases map[actions.Address]actions.Address
}

// CollapseFlashLoans copies every descendant Swap/Burn/Mint/Transfer action
// under a FlashLoan node into that node's ChildActions, and derives
// Repayments (the transfers back to the pool, summed per asset) and
// FeesPaid (repayment minus borrowed amount) from them (spec §4.2). The
// descendant nodes keep their own actions; the pass does not remove them.
// Running it twice gives the same result, because the second pass rebuilds
// ChildActions, Repayments and FeesPaid from the same unchanged
// descendants.
func (t *TransactionTree) CollapseFlashLoans() {
	var flashNodes []*Node
	t.Walk(func(n *Node) bool {
		if n.Action != nil && n.Action.Kind() == actions.KindFlashLoan {
			flashNodes = append(flashNodes, n)
		}
		return true
	})
	for _, fn := range flashNodes {
		fl, ok := fn.Action.Data.(actions.FlashLoan)
		if !ok {
			continue
		}
		var collected []actions.Action
		collectDescendantActions(t, fn, &collected)
		fl.ChildActions = collected
		fl.Repayments, fl.FeesPaid = computeRepayments(fl, collected)
		fn.Action.Data = fl
	}
	t.PropagateKinds()
}

func collectDescendantActions(t *TransactionTree, n *Node, out *[]actions.Action) {
	for _, ci := range n.Children {
		c := t.Node(ci)
		if c.Action != nil {
			switch c.Action.Kind() {
			case actions.KindSwap, actions.KindBurn, actions.KindMint, actions.KindTransfer:
				*out = append(*out, *c.Action)
			}
		}
		collectDescendantActions(t, c, out)
	}
}

// computeRepayments sums the collected transfers to fl.Pool per asset as
// that asset's repayment, and takes repayment minus borrowed amount as the
// fee (left as the zero value when the repayment is smaller). Assets
// with no matching transfer back to the pool repay zero (the loan was not
// repaid in-kind, e.g. it was arbitraged away entirely).
func computeRepayments(fl actions.FlashLoan, collected []actions.Action) (repayments, fees []rational.Amount) {
	repaidByAsset := make(map[actions.Address]rational.Amount, len(fl.Assets))
	for _, a := range collected {
		tr, ok := a.Data.(actions.Transfer)
		if !ok || tr.To != fl.Pool {
			continue
		}
		cur, ok := repaidByAsset[tr.Token]
		if !ok {
			cur = rational.FromUint64(0)
		}
		repaidByAsset[tr.Token] = cur.Add(tr.Amount)
	}
	repayments = make([]rational.Amount, len(fl.Assets))
	fees = make([]rational.Amount, len(fl.Assets))
	for i, asset := range fl.Assets {
		repaid, ok := repaidByAsset[asset]
		if !ok {
			repaid = rational.FromUint64(0)
		}
		repayments[i] = repaid
		if fee, ok := repaid.Sub(fl.Amounts[i]); ok {
			fees[i] = fee
		}
	}
	return repayments, fees
}

// ReconstructSwapsFromTransfers synthesizes a Swap action for transactions
// that moved tokens through a known pool in a two-address cycle but never
// produced a Swap action directly — e.g. a pool whose classifier has no
// registered selector handler but which still emits plain ERC-20 Transfer
// events on both legs (spec §4.2). Skipped entirely when opts.StrictSemantics
// is set, since some inspectors need guaranteed-faithful classifier output.
func (t *TransactionTree) ReconstructSwapsFromTransfers(opts CollapseOptions, knownPool func(actions.Address) bool) {
	if opts.StrictSemantics {
		return
	}
	hasSwap := false
	t.Walk(func(n *Node) bool {
		if n.Action != nil && n.Action.Kind() == actions.KindSwap {
			hasSwap = true
			return false
		}
		return true
	})
	if hasSwap {
		return
	}

	var transfers []*Node
	t.Walk(func(n *Node) bool {
		if n.Action != nil && n.Action.Kind() == actions.KindTransfer && !n.Reverted {
			transfers = append(transfers, n)
		}
		return true
	})
	if len(transfers) < 2 {
		return
	}

	// A two-address cycle through a known pool: one transfer INTO the pool
	// and one transfer OUT OF the pool, both touching the same external
	// address, in either order.
	for i, in := range transfers {
		inTr := in.Action.Data.(actions.Transfer)
		if !knownPool(inTr.To) {
			continue
		}
		for j, out := range transfers {
			if i == j {
				continue
			}
			outTr := out.Action.Data.(actions.Transfer)
			if !knownPool(outTr.From) || outTr.To != inTr.From {
				continue
			}
			synthetic := actions.Action{
				TraceIndex: in.TraceIndex,
				Data: actions.Swap{
					Pool:      inTr.To,
					From:      inTr.From,
					Recipient: outTr.To,
					TokenIn:   inTr.Token,
					TokenOut:  outTr.Token,
					AmountIn:  inTr.Amount,
					AmountOut: outTr.Amount,
				},
			}
			in.Action = &synthetic
			t.PropagateKinds()
			return
		}
	}
}

// NormalizeCurveAliases substitutes Curve-family LP-token addresses for
// their canonical underlying token in every action's token fields (spec
// §4.1 "Curve pools with LP-token aliases are normalized to canonical
// token addresses", §4.2 "token-alias normalization"). The pass preserves
// the DFS-ordering invariant because it only rewrites fields on existing
// actions, never node structure.
func (t *TransactionTree) NormalizeCurveAliases(aliases map[actions.Address]actions.Address) {
	if len(aliases) == 0 {
		return
	}
	canon := func(a actions.Address) actions.Address {
		if c, ok := aliases[a]; ok {
			return c
		}
		return a
	}
	for _, n := range t.Nodes() {
		if n.Action == nil {
			continue
		}
		switch a := n.Action.Data.(type) {
		case actions.Swap:
			a.TokenIn, a.TokenOut = canon(a.TokenIn), canon(a.TokenOut)
			n.Action.Data = a
		case actions.Mint:
			for i := range a.Tokens {
				a.Tokens[i] = canon(a.Tokens[i])
			}
			n.Action.Data = a
		case actions.Burn:
			for i := range a.Tokens {
				a.Tokens[i] = canon(a.Tokens[i])
			}
			n.Action.Data = a
		case actions.Transfer:
			a.Token = canon(a.Token)
			n.Action.Data = a
		}
	}
}
