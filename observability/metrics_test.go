package observability

import (
	"fmt"
	"math/big"
	"testing"

	coreerrors "fundcore/core/errors"
)

func TestOutcome(t *testing.T) {
	rejected := coreerrors.New(coreerrors.KindEligibility, "registry: not whitelisted")
	cases := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{rejected, "eligibility"},
		{fmt.Errorf("pool: sell: %w", rejected), "eligibility"},
		{fmt.Errorf("disk full"), "internal"},
	}
	for _, tc := range cases {
		if got := Outcome(tc.err); got != tc.want {
			t.Fatalf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestToUnits(t *testing.T) {
	if got := toUnits(big.NewInt(12_550_000_000)); got != 125.5 {
		t.Fatalf("expected 125.5, got %v", got)
	}
	if got := toUnits(nil); got != 0 {
		t.Fatalf("nil should map to zero, got %v", got)
	}
}

func TestNilRegistriesAreSafe(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.ObserveOperation("pool.buy", 0, nil)
	ledger.RecordBreakerTrip("FND", "ratio")
	ledger.SetNAV("FND", big.NewInt(1))
	ledger.RecordAudit()

	var events *eventMetrics
	events.RecordEvent("pool.bought")
}
