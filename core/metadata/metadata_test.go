package metadata

import (
	"testing"

	"brontes/core/rational"
)

func TestShiftedUSDMultipliesByPrice(t *testing.T) {
	amount := rational.FromUint64(2)
	got, zeroed := ShiftedUSD(amount, USDPrice{Value: 3})
	if zeroed {
		t.Fatal("did not expect the zeroed flag when pricing is available")
	}
	if got != 6 {
		t.Fatalf("expected 6, got %v", got)
	}
}

func TestShiftedUSDZeroesOutWhenNoPricing(t *testing.T) {
	amount := rational.FromUint64(5)
	got, zeroed := ShiftedUSD(amount, USDPrice{NoPricing: true})
	if !zeroed {
		t.Fatal("expected the zeroed flag when pricing is unavailable")
	}
	if got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
