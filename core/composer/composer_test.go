package composer

import (
	"testing"

	"brontes/core/actions"
	"brontes/core/mev"
)

func hash(b byte) actions.Hash {
	var h actions.Hash
	h[0] = b
	return h
}

func TestDedupKeepsHigherPrecedence(t *testing.T) {
	h := hash(1)
	bundles := []mev.Bundle{
		{Header: mev.Header{TxHash: h, MevKind: mev.KindSearcherTx}},
		{Header: mev.Header{TxHash: h, MevKind: mev.KindSandwich}},
		{Header: mev.Header{TxHash: h, MevKind: mev.KindAtomicArb}},
	}
	out := Dedup(bundles)
	if len(out) != 1 {
		t.Fatalf("expected 1 deduped bundle, got %d", len(out))
	}
	if out[0].Header.MevKind != mev.KindSandwich {
		t.Fatalf("expected KindSandwich to win, got %v", out[0].Header.MevKind)
	}
}

func TestDedupKeepsDistinctTxHashes(t *testing.T) {
	bundles := []mev.Bundle{
		{Header: mev.Header{TxHash: hash(1), MevKind: mev.KindSandwich}},
		{Header: mev.Header{TxHash: hash(2), MevKind: mev.KindAtomicArb}},
	}
	out := Dedup(bundles)
	if len(out) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(out))
	}
}

func TestComposeRulesMergesJitAndSandwich(t *testing.T) {
	h := hash(3)
	jit := mev.Bundle{
		Header: mev.Header{TxHash: h, MevKind: mev.KindJit, ProfitUSD: 10},
		Body:   mev.JitBody{},
	}
	sand := mev.Bundle{
		Header: mev.Header{TxHash: h, MevKind: mev.KindSandwich, ProfitUSD: 5},
		Body:   mev.SandwichBody{},
	}
	out := ComposeRules([]mev.Bundle{jit, sand})
	if len(out) != 1 {
		t.Fatalf("expected 1 merged bundle, got %d", len(out))
	}
	if out[0].Header.MevKind != mev.KindJitSandwich {
		t.Fatalf("expected KindJitSandwich, got %v", out[0].Header.MevKind)
	}
	if out[0].Header.ProfitUSD != 15 {
		t.Fatalf("expected combined profit 15, got %v", out[0].Header.ProfitUSD)
	}
	if _, ok := out[0].Body.(mev.JitSandwichBody); !ok {
		t.Fatalf("expected JitSandwichBody, got %T", out[0].Body)
	}
}

func TestComposeRulesLeavesUnmatchedBundlesAlone(t *testing.T) {
	bundles := []mev.Bundle{
		{Header: mev.Header{TxHash: hash(4), MevKind: mev.KindAtomicArb}},
		{Header: mev.Header{TxHash: hash(5), MevKind: mev.KindLiquidation}},
	}
	out := ComposeRules(bundles)
	if len(out) != 2 {
		t.Fatalf("expected 2 bundles untouched, got %d", len(out))
	}
}

func TestAggregateCountsAndSums(t *testing.T) {
	bundles := []mev.Bundle{
		{Header: mev.Header{TxHash: hash(6), MevKind: mev.KindSandwich, ProfitUSD: 100, BribeUSD: 1}},
		{Header: mev.Header{TxHash: hash(7), MevKind: mev.KindSandwich, ProfitUSD: 50, BribeUSD: 2}},
		{Header: mev.Header{TxHash: hash(8), MevKind: mev.KindAtomicArb, ProfitUSD: 25, BribeUSD: 0.5}},
	}
	mb := Aggregate(100, 3000, bundles, 10, 20)
	if mb.MevCountByKind[mev.KindSandwich] != 2 {
		t.Fatalf("expected 2 sandwiches, got %d", mb.MevCountByKind[mev.KindSandwich])
	}
	if mb.MevCountByKind[mev.KindAtomicArb] != 1 {
		t.Fatalf("expected 1 atomic arb, got %d", mb.MevCountByKind[mev.KindAtomicArb])
	}
	if mb.CumulativeGasUSD != 3.5 {
		t.Fatalf("expected cumulative gas 3.5, got %v", mb.CumulativeGasUSD)
	}
	wantBuilder := 10.0 + (100 + 50 + 25)
	if mb.BuilderProfitUSD != wantBuilder {
		t.Fatalf("expected builder profit %v, got %v", wantBuilder, mb.BuilderProfitUSD)
	}
	if mb.ProposerProfitUSD != 20 {
		t.Fatalf("expected proposer profit 20, got %v", mb.ProposerProfitUSD)
	}
}

func TestComposeEndToEnd(t *testing.T) {
	h := hash(9)
	bundles := []mev.Bundle{
		{Header: mev.Header{TxHash: h, MevKind: mev.KindJit, ProfitUSD: 10}, Body: mev.JitBody{}},
		{Header: mev.Header{TxHash: h, MevKind: mev.KindSandwich, ProfitUSD: 5}, Body: mev.SandwichBody{}},
		{Header: mev.Header{TxHash: hash(10), MevKind: mev.KindAtomicArb, ProfitUSD: 7}},
	}
	mb := Compose(1, 3000, bundles, 0, 0)
	if len(mb.Bundles) != 2 {
		t.Fatalf("expected 2 bundles after dedup+compose, got %d", len(mb.Bundles))
	}
	if mb.MevCountByKind[mev.KindJitSandwich] != 1 {
		t.Fatalf("expected 1 jit-sandwich, got %d", mb.MevCountByKind[mev.KindJitSandwich])
	}
}
