package actions

import "testing"

func TestKindHasChecksAllBitsSet(t *testing.T) {
	combined := KindSwap | KindMint
	if !combined.Has(KindSwap) {
		t.Fatal("expected the combined mask to report having KindSwap")
	}
	if !combined.Has(KindMint) {
		t.Fatal("expected the combined mask to report having KindMint")
	}
	if combined.Has(KindBurn) {
		t.Fatal("did not expect the combined mask to report having KindBurn")
	}
	if !combined.Has(combined) {
		t.Fatal("expected a mask to have itself")
	}
}

func TestKindHasRequiresEveryBitInOther(t *testing.T) {
	if KindSwap.Has(KindSwap | KindMint) {
		t.Fatal("did not expect a single-bit mask to have a wider combined mask")
	}
}

func TestKindStringKnownAndUnknown(t *testing.T) {
	if got := KindSwap.String(); got != "Swap" {
		t.Fatalf("expected Swap, got %q", got)
	}
	if got := (KindSwap | KindMint).String(); got != "Kind(mixed)" {
		t.Fatalf("expected the mixed-bit fallback, got %q", got)
	}
}

func TestActionKindDelegatesToData(t *testing.T) {
	a := Action{Data: Swap{}}
	if a.Kind() != KindSwap {
		t.Fatalf("expected KindSwap, got %v", a.Kind())
	}
}

func TestActionKindNoneWhenDataNil(t *testing.T) {
	a := Action{}
	if a.Kind() != KindNone {
		t.Fatalf("expected KindNone for a nil Data, got %v", a.Kind())
	}
}

func TestEveryVariantReportsItsOwnKind(t *testing.T) {
	cases := []struct {
		name string
		data Data
		want Kind
	}{
		{"Swap", Swap{}, KindSwap},
		{"Mint", Mint{}, KindMint},
		{"Burn", Burn{}, KindBurn},
		{"Transfer", Transfer{}, KindTransfer},
		{"EthTransfer", EthTransfer{}, KindEthTransfer},
		{"FlashLoan", FlashLoan{}, KindFlashLoan},
		{"Liquidation", Liquidation{}, KindLiquidation},
		{"BatchSwap", BatchSwap{}, KindBatchSwap},
		{"AggregatorSwap", AggregatorSwap{}, KindAggregatorSwap},
		{"NewPool", NewPool{}, KindNewPool},
		{"Unclassified", Unclassified{}, KindUnclassified},
	}
	for _, c := range cases {
		if got := c.data.Kind(); got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, got)
		}
	}
}
