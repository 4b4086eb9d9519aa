package inspectors

import (
	"sort"

	"brontes/core/actions"
	"brontes/core/metadata"
	"brontes/core/mev"
	"brontes/core/tree"
)

// SandwichInspector implements spec §4.4. Candidate formation is grounded
// on the same "same address brackets a different address in the same
// pool" heuristic as a plain three-swap scanner, generalized to arbitrary
// frontrun counts, block-wide victim partitioning, pool+direction
// validation, and recursive shrinking.
type SandwichInspector struct {
	Prices PriceContext
	Store  metadata.Store
}

func (s *SandwichInspector) Name() string { return "sandwich" }

// possibleSandwich mirrors spec §4.4's PossibleSandwich shape.
type possibleSandwich struct {
	eoa       actions.Address
	frontruns []*tree.TransactionTree
	backrun   *tree.TransactionTree
	victims   [][]*tree.TransactionTree // len == len(frontruns); victims[i] is between frontruns[i] and the next attacker tx
}

func (s *SandwichInspector) Inspect(block *tree.BlockTree, md metadata.Metadata) []mev.Bundle {
	candidates := formCandidates(block)
	candidates = partitionAll(candidates)

	var out []mev.Bundle
	for _, c := range candidates {
		valid, result := validate(c)
		shrinks := 0
		for !valid && shrinks < 6 {
			shrunk, ok := shrink(c)
			if !ok {
				break
			}
			c = shrunk
			valid, result = validate(c)
			shrinks++
		}
		if !valid {
			continue
		}
		out = append(out, s.buildBundle(block, md, c, result))
	}
	return out
}

// formCandidates runs both scans named in spec §4.4 (grouped by sender EOA,
// grouped by `to` contract) and deduplicates their union.
func formCandidates(block *tree.BlockTree) []possibleSandwich {
	bySender := make(map[actions.Address][]*tree.TransactionTree)
	byContract := make(map[actions.Address][]*tree.TransactionTree)
	for _, t := range block.Txs {
		root := t.Root()
		if root == nil {
			continue
		}
		bySender[root.MsgSender] = append(bySender[root.MsgSender], t)
		byContract[root.Callee] = append(byContract[root.Callee], t)
	}

	seen := make(map[string]bool)
	var out []possibleSandwich
	collect := func(groups map[actions.Address][]*tree.TransactionTree) {
		for eoa, txs := range groups {
			if len(txs) < 2 {
				continue
			}
			sort.Slice(txs, func(i, j int) bool { return txs[i].TxIndex < txs[j].TxIndex })
			cand := buildCandidate(block, eoa, txs)
			key := candidateKey(cand)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, cand)
		}
	}
	collect(bySender)
	collect(byContract)
	return out
}

func buildCandidate(block *tree.BlockTree, eoa actions.Address, txs []*tree.TransactionTree) possibleSandwich {
	frontruns := txs[:len(txs)-1]
	backrun := txs[len(txs)-1]
	victims := make([][]*tree.TransactionTree, len(frontruns))
	for i := range frontruns {
		lo := frontruns[i].TxIndex
		var hi int
		if i+1 < len(frontruns) {
			hi = frontruns[i+1].TxIndex
		} else {
			hi = backrun.TxIndex
		}
		victims[i] = txsBetween(block, lo, hi)
	}
	return possibleSandwich{eoa: eoa, frontruns: frontruns, backrun: backrun, victims: victims}
}

func txsBetween(block *tree.BlockTree, lo, hi int) []*tree.TransactionTree {
	var out []*tree.TransactionTree
	for _, t := range block.Txs {
		if t.TxIndex > lo && t.TxIndex < hi {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxIndex < out[j].TxIndex })
	return out
}

func candidateKey(c possibleSandwich) string {
	key := c.backrun.TxHash.Hex()
	for _, f := range c.frontruns {
		key += "|" + f.TxHash.Hex()
	}
	return key
}

// partitionAll applies spec §4.4's partitioning rule: split a candidate at
// any position whose victim set is empty, since a gap with no victim
// implies two distinct attacks.
func partitionAll(cands []possibleSandwich) []possibleSandwich {
	var out []possibleSandwich
	for _, c := range cands {
		out = append(out, partition(c)...)
	}
	return out
}

func partition(c possibleSandwich) []possibleSandwich {
	attackers := append(append([]*tree.TransactionTree{}, c.frontruns...), c.backrun)
	var segments []possibleSandwich
	start := 0
	for i := 0; i < len(c.victims); i++ {
		if len(c.victims[i]) == 0 {
			if seg, ok := sliceSegment(c.eoa, attackers, c.victims, start, i); ok {
				segments = append(segments, seg)
			}
			start = i + 1
		}
	}
	if seg, ok := sliceSegment(c.eoa, attackers, c.victims, start, len(c.victims)); ok {
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil
	}
	return segments
}

// sliceSegment builds a possibleSandwich from attackers[start:end+1] and the
// matching victims[start:end], where end is the index of the gap (exclusive
// edge) that terminates the segment.
func sliceSegment(eoa actions.Address, attackers []*tree.TransactionTree, victims [][]*tree.TransactionTree, start, end int) (possibleSandwich, bool) {
	if end-start < 1 {
		return possibleSandwich{}, false
	}
	attackerSlice := attackers[start : end+1]
	if len(attackerSlice) < 2 {
		return possibleSandwich{}, false
	}
	return possibleSandwich{
		eoa:       eoa,
		frontruns: attackerSlice[:len(attackerSlice)-1],
		backrun:   attackerSlice[len(attackerSlice)-1],
		victims:   victims[start:end],
	}, true
}

// shrink implements spec §4.4's recursive shrinking: it first tries (a) drop
// the last victim set and use the last frontrun as the new backrun, and
// returns that if it validates; otherwise the same call goes on to (b) drop
// the first victim set and first frontrun, keeping the backrun.
func shrink(c possibleSandwich) (possibleSandwich, bool) {
	if len(c.frontruns) <= 1 {
		return c, false
	}
	anyVictims := false
	for _, v := range c.victims {
		if len(v) > 0 {
			anyVictims = true
			break
		}
	}
	if !anyVictims {
		return c, false
	}
	// (a) drop last victim set, last frontrun becomes the new backrun.
	shrunkA := possibleSandwich{
		eoa:       c.eoa,
		frontruns: c.frontruns[:len(c.frontruns)-1],
		backrun:   c.frontruns[len(c.frontruns)-1],
		victims:   c.victims[:len(c.victims)-1],
	}
	if ok, _ := validate(shrunkA); ok {
		return shrunkA, true
	}
	// (b) drop first victim set and first frontrun, keep backrun.
	if len(c.frontruns) <= 1 {
		return c, false
	}
	shrunkB := possibleSandwich{
		eoa:       c.eoa,
		frontruns: c.frontruns[1:],
		backrun:   c.backrun,
		victims:   c.victims[1:],
	}
	return shrunkB, true
}

type validationResult struct {
	trueVictims   map[actions.Address]bool
	victimEOAs    map[actions.Address]bool
	completeFound bool
}

// validate implements spec §4.4's validation rule.
func validate(c possibleSandwich) (bool, validationResult) {
	totalVictims := 0
	for _, v := range c.victims {
		totalVictims += len(v)
	}
	if len(c.frontruns) > 10 || totalVictims > 30 {
		return false, validationResult{}
	}

	var frontrunSwaps []actions.Swap
	for _, f := range c.frontruns {
		frontrunSwaps = append(frontrunSwaps, SwapsOf(f)...)
	}
	backrunSwaps := SwapsOf(c.backrun)
	if !overlaps(poolsOf(frontrunSwaps), poolsOf(backrunSwaps)) {
		return false, validationResult{}
	}

	result := validationResult{trueVictims: make(map[actions.Address]bool), victimEOAs: make(map[actions.Address]bool)}
	for _, vset := range c.victims {
		for _, v := range vset {
			vEOA := EOA(v)
			result.victimEOAs[vEOA] = true
			vSwaps := SwapsOf(v)

			sameDirFrontrun := false
			for _, vs := range vSwaps {
				for _, fs := range frontrunSwaps {
					if vs.Pool == fs.Pool && vs.TokenIn == fs.TokenIn {
						sameDirFrontrun = true
					}
				}
			}
			oppDirBackrun := false
			for _, vs := range vSwaps {
				for _, bs := range backrunSwaps {
					if vs.Pool == bs.Pool && vs.TokenIn == bs.TokenOut {
						oppDirBackrun = true
					}
				}
			}
			if sameDirFrontrun || oppDirBackrun {
				result.trueVictims[vEOA] = true
			}
			if sameDirFrontrun && oppDirBackrun {
				result.completeFound = true
			}
		}
	}

	if len(result.victimEOAs) == 0 {
		return false, validationResult{}
	}
	ratio := float64(len(result.trueVictims)) / float64(len(result.victimEOAs))
	if ratio < 0.5 || !result.completeFound {
		return false, validationResult{}
	}
	return true, result
}

func (s *SandwichInspector) buildBundle(block *tree.BlockTree, md metadata.Metadata, c possibleSandwich, _ validationResult) mev.Bundle {
	var frontrunSwaps [][]actions.Swap
	var frontrunHashes []actions.Hash
	var deltas []actions.BalanceDelta
	var victimHashes []actions.Hash
	var victimSwaps [][]actions.Swap

	for _, f := range c.frontruns {
		sw := SwapsOf(f)
		frontrunSwaps = append(frontrunSwaps, sw)
		frontrunHashes = append(frontrunHashes, f.TxHash)
		deltas = append(deltas, swapDeltas(c.eoa, sw)...)
	}
	for _, vset := range c.victims {
		for _, v := range vset {
			victimHashes = append(victimHashes, v.TxHash)
			victimSwaps = append(victimSwaps, SwapsOf(v))
		}
	}
	backrunSwaps := SwapsOf(c.backrun)
	deltas = append(deltas, swapDeltas(c.eoa, backrunSwaps)...)

	profit, noPricing := Revenue(s.Prices, c.backrun.TxIndex, deltas)
	ethPrice := s.Prices.EthPriceUSD()
	gas := GasCostUSD(c.backrun.EffectivePrice, c.backrun.GasUsed, 0, ethPrice)
	for _, f := range c.frontruns {
		gas += GasCostUSD(f.EffectivePrice, f.GasUsed, 0, ethPrice)
	}
	profit -= gas

	contract := Contract(c.backrun)
	return mev.Bundle{
		Header: mev.Header{
			SchemaVersion:       mev.SchemaVersion,
			BlockNumber:         block.BlockNumber,
			TxIndex:             uint64(c.backrun.TxIndex),
			TxHash:              c.backrun.TxHash,
			EOA:                 c.eoa,
			Contract:            contract,
			ProfitUSD:           profit,
			BribeUSD:            gas,
			MevKind:             mev.KindSandwich,
			BalanceDeltas:       deltas,
			NoPricingCalculated: noPricing,
		},
		Body: mev.SandwichBody{
			FrontrunTxs:    frontrunHashes,
			FrontrunSwaps:  frontrunSwaps,
			VictimTxHashes: victimHashes,
			VictimSwaps:    victimSwaps,
			BackrunTx:      c.backrun.TxHash,
			BackrunSwaps:   backrunSwaps,
		},
	}
}

// swapDeltas approximates an attacker's per-token balance deltas from its
// own swaps (amount_out credited, amount_in debited) — Brontes has no
// full EVM-state ledger to diff, so the PnL primitive works from the
// normalized action amounts directly (spec §4.3's "balance-delta" model is
// satisfied at the action granularity, not full account-state granularity).
func swapDeltas(owner actions.Address, swaps []actions.Swap) []actions.BalanceDelta {
	out := make([]actions.BalanceDelta, 0, len(swaps)*2)
	for _, sw := range swaps {
		out = append(out,
			actions.BalanceDelta{Address: owner, Token: sw.TokenIn, Amount: sw.AmountIn, Negative: true},
			actions.BalanceDelta{Address: owner, Token: sw.TokenOut, Amount: sw.AmountOut, Negative: false},
		)
	}
	return out
}
