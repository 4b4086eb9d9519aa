package tree

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"brontes/core/actions"
	"brontes/core/rational"
)

// BlockTree owns an ordered sequence of TransactionTrees, indexed by
// position (spec §3.2).
type BlockTree struct {
	BlockNumber uint64
	Txs         []*TransactionTree
}

// NewBlockTree allocates an empty BlockTree for blockNumber.
func NewBlockTree(blockNumber uint64) *BlockTree {
	return &BlockTree{BlockNumber: blockNumber}
}

// Tx returns the tree at position idx, or nil if out of range.
func (b *BlockTree) Tx(idx int) *TransactionTree {
	if idx < 0 || idx >= len(b.Txs) {
		return nil
	}
	return b.Txs[idx]
}

// TxByHash linear-scans for a transaction tree by hash. Blocks are small
// enough (a few hundred transactions) that this does not warrant a map
// index maintained alongside the slice.
func (b *BlockTree) TxByHash(h actions.Hash) *TransactionTree {
	for _, t := range b.Txs {
		if t.TxHash == h {
			return t
		}
	}
	return nil
}

// TxsTouchingPool returns every transaction tree containing an action
// against pool, using the per-node subtree bitset (spec §4.3 "all
// transactions touching pool P").
func (b *BlockTree) TxsTouchingPool(pool actions.Address) []*TransactionTree {
	var out []*TransactionTree
	for _, t := range b.Txs {
		found := false
		t.Walk(func(n *Node) bool {
			if n.Action == nil {
				return true
			}
			if poolOf(n.Action.Data) == pool {
				found = true
				return false
			}
			return true
		})
		if found {
			out = append(out, t)
		}
	}
	return out
}

func poolOf(d actions.Data) actions.Address {
	switch a := d.(type) {
	case actions.Swap:
		return a.Pool
	case actions.Mint:
		return a.Pool
	case actions.Burn:
		return a.Pool
	case actions.Liquidation:
		return a.Pool
	case actions.FlashLoan:
		return a.Pool
	default:
		return actions.Address{}
	}
}

// InvariantError reports a fatal tree-construction violation (spec §7
// "tree invariant violation"): the block containing it must be skipped and
// logged with the offending tx hash, not partially emitted.
type InvariantError struct {
	TxHash actions.Hash
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tree invariant violation in tx %s: %s", e.TxHash, e.Reason)
}

// ValidateDFSOrder checks the spec §8 DFS-order invariant: every node's
// TraceIndex is strictly greater than the previous node visited in
// pre-order DFS. Construction (BuildTransactionTree) already guarantees
// this by appending nodes in tracer order; BuildTransactionTree still runs
// this defensive check at the end and logs and returns its error (the
// pipeline's classify stage then skips the block), and tests call it
// directly.
func (t *TransactionTree) ValidateDFSOrder() error {
	last := -1
	var err error
	t.Walk(func(n *Node) bool {
		if n.TraceIndex <= last {
			err = &InvariantError{TxHash: t.TxHash, Reason: fmt.Sprintf("trace index %d out of order after %d", n.TraceIndex, last)}
			return false
		}
		last = n.TraceIndex
		return true
	})
	return err
}

// RawFrame is the minimal per-frame shape BuildTransactionTree needs from a
// tracer's Trace (spec §6 external interface). Depth is the call-stack
// depth of the frame (root is 0); the builder uses it to maintain a stack
// mirroring call depth as it appends nodes (spec §4.2 step 2).
type RawFrame struct {
	TraceIndex int
	Depth      int
	MsgSender  actions.Address
	Callee     actions.Address
	CallType   CallType
	EthValue   rational.Amount
	Gas        GasDetails
	Error      string
}

// BuildTransactionTree constructs a TransactionTree from an ordered
// sequence of raw trace frames (spec §4.2 steps 1-2): nodes are appended in
// tracer order while a depth stack mirrors call depth, so the arena order
// equals DFS/trace order by construction.
//
// frames must be pre-ordered exactly as produced by the tracer (a parent
// frame immediately followed by its first child). classify is invoked on
// each newly appended node before the next frame is processed, matching
// "run classifier dispatch" per frame in the spec. After the walk, subtree
// kind bitsets are propagated bottom-up and reverted subtrees are flagged
// (spec §4.2 steps 3-4).
func BuildTransactionTree(txHash actions.Hash, txIndex int, gasUsed, effectivePrice uint64, isSuccess bool, frames []RawFrame, classify func(*TransactionTree, *Node)) (*TransactionTree, error) {
	t := NewTransactionTree(txHash, txIndex, gasUsed, effectivePrice, isSuccess)
	if len(frames) == 0 {
		return t, nil
	}

	stack := make([]int, 0, len(frames)) // node arena indices, depth-ordered
	lastTrace := -1
	for _, f := range frames {
		if f.TraceIndex <= lastTrace {
			return nil, &InvariantError{TxHash: txHash, Reason: "non-increasing trace index during construction"}
		}
		lastTrace = f.TraceIndex

		for len(stack) > 0 && frames[stack[len(stack)-1]].Depth != f.Depth-1 {
			stack = stack[:len(stack)-1]
		}
		parent := -1
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		} else if f.Depth != 0 {
			return nil, &InvariantError{TxHash: txHash, Reason: "missing parent frame (trace index gap)"}
		}

		idx := t.NewNode(parent, Node{
			TraceIndex: f.TraceIndex,
			MsgSender:  f.MsgSender,
			Callee:     f.Callee,
			CallType:   f.CallType,
			EthValue:   f.EthValue,
			Gas:        f.Gas,
			Error:      f.Error,
			Reverted:   f.Error != "",
		})
		stack = append(stack, idx)

		if classify != nil {
			classify(t, t.Node(idx))
		}
	}

	t.PropagateKinds()
	t.FlagReverts()
	if err := t.ValidateDFSOrder(); err != nil {
		log.WithField("tx", txHash).Warn(err)
		return nil, err
	}
	return t, nil
}
