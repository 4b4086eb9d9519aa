package pipeline

import (
	"sync"

	"brontes/core/mev"
)

// Result pairs a block's composed output with any fatal per-block error
// (spec §7 "per-block failures... the pipeline continues with subsequent
// blocks"). Exactly one of Block/Err is meaningful: Err != nil means the
// block was skipped and Block is the zero value.
type Result struct {
	BlockNumber uint64
	Block       mev.MevBlock
	Err         error
}

// reorderBuffer yields completed blocks in strictly ascending block-number
// order even though workers finish them out of order (spec §4.10 "a
// reordering buffer that yields blocks in ascending order, waiting for all
// prior units to complete"). It is bounded at capacity (default 2*max_tasks
// per spec §5 "Backpressure"); Put blocks once the buffer is full until Take
// drains enough in-order entries to make room.
type reorderBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	next     uint64
	pending  map[uint64]blockResult
	capacity int
	closed   bool
}

type blockResult struct {
	blockNumber uint64
	result      Result
}

func newReorderBuffer(start uint64, capacity int) *reorderBuffer {
	b := &reorderBuffer{next: start, pending: make(map[uint64]blockResult), capacity: capacity}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Put stores a finished unit's result, blocking while the buffer is at
// capacity and the unit is not the next one due for emission (a caller
// holding `next` itself is always admitted so the buffer can drain).
func (b *reorderBuffer) Put(blockNumber uint64, res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.closed && len(b.pending) >= b.capacity && blockNumber != b.next {
		b.cond.Wait()
	}
	b.pending[blockNumber] = blockResult{blockNumber: blockNumber, result: res}
	b.cond.Broadcast()
}

// Take blocks until the next in-order block is available, then returns it.
// Once the buffer is closed, Take returns ok=false as soon as the next
// in-order block is not held, even if later blocks still are.
func (b *reorderBuffer) Take() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if r, ok := b.pending[b.next]; ok {
			delete(b.pending, b.next)
			b.next++
			b.cond.Broadcast()
			return r.result, true
		}
		if b.closed {
			return Result{}, false
		}
		b.cond.Wait()
	}
}

// Depth returns the number of completed-but-unemitted blocks currently
// held, for the reorder-buffer-depth gauge.
func (b *reorderBuffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close signals that no further Put calls will occur; Take calls then
// return the entries still due in order and return ok=false at the first
// block number that is not held.
func (b *reorderBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
