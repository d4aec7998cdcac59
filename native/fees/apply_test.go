package fees

import (
	"errors"
	"math/big"
	"testing"

	"github.com/BurntSushi/toml"

	"fundcore/native/registry"
)

func TestComputeFeeAndVAT(t *testing.T) {
	// 1,011.90 at 1% with 19% VAT.
	b := Compute(big.NewInt(101_190_000_000), 100, DefaultVATBps)
	if b.FeeBase.Int64() != 1_011_900_000 {
		t.Fatalf("fee base: %s", b.FeeBase)
	}
	if b.VAT.Int64() != 192_261_000 {
		t.Fatalf("vat: %s", b.VAT)
	}
	if b.Total.Int64() != 1_204_161_000 {
		t.Fatalf("total: %s", b.Total)
	}
}

func TestFeeVATInvariant(t *testing.T) {
	amounts := []int64{0, 1, 99, 10_001, 123_456_789, 987_654_321_012}
	for _, a := range amounts {
		for _, rate := range []uint32{0, 45, 75, 100} {
			b := Compute(big.NewInt(a), rate, DefaultVATBps)
			want := new(big.Int).Mul(b.FeeBase, big.NewInt(1_900))
			want.Quo(want, big.NewInt(10_000))
			want.Add(want, b.FeeBase)
			if b.Total.Cmp(want) != 0 {
				t.Fatalf("amount %d rate %d: total %s want %s", a, rate, b.Total, want)
			}
		}
	}
}

func TestPolicyQuote(t *testing.T) {
	p := DefaultPolicy()
	if _, err := p.Quote(DomainP2P, registry.TierBronze, big.NewInt(1)); !errors.Is(err, ErrTierIneligible) {
		t.Fatalf("bronze cannot trade p2p, got %v", err)
	}
	b, err := p.Quote("P2P", registry.TierSilver, big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if b.RateBps != 75 || b.FeeBase.Int64() != 75_000_000 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if _, err := p.Quote("otc", registry.TierGold, big.NewInt(1)); !errors.Is(err, ErrUnknownDomain) {
		t.Fatalf("expected unknown domain, got %v", err)
	}
	rate, err := p.Domains[DomainPool].Rate(registry.TierBronze)
	if err != nil || rate != 100 {
		t.Fatalf("pool bronze rate: %d %v", rate, err)
	}
}

func TestSkim(t *testing.T) {
	if got := Skim(big.NewInt(1_011_900_000), 1_000); got.Int64() != 101_190_000 {
		t.Fatalf("skim: %s", got)
	}
}

func TestScheduleUnmarshalTOML(t *testing.T) {
	var cfg struct {
		Pool Schedule
		P2P  Schedule `toml:"p2p"`
	}
	blob := `
[Pool]
tiers = [110, 95, 80, 60, 40]

[p2p]
silver = 70
diamond = 40
zero_ineligible = true
`
	if _, err := toml.Decode(blob, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Pool.TierBps != [registry.TierCount]uint32{110, 95, 80, 60, 40} {
		t.Fatalf("pool tiers: %v", cfg.Pool.TierBps)
	}
	if cfg.P2P.TierBps[registry.TierSilver] != 70 || cfg.P2P.TierBps[registry.TierDiamond] != 40 || !cfg.P2P.ZeroIneligible {
		t.Fatalf("p2p schedule: %+v", cfg.P2P)
	}
	bad := "[Pool]\ntiers = [1, 2]\n"
	if _, err := toml.Decode(bad, &cfg); err == nil {
		t.Fatalf("expected short tier list to fail")
	}
}

func TestTotalsAdd(t *testing.T) {
	var totals Totals
	totals.Add(big.NewInt(1_000), Compute(big.NewInt(1_000), 100, DefaultVATBps))
	totals.Add(big.NewInt(2_000), Compute(big.NewInt(2_000), 100, DefaultVATBps))
	if totals.Trades != 2 || totals.Gross.Int64() != 3_000 || totals.Fee.Int64() != 30 || totals.VAT.Int64() != 4 {
		t.Fatalf("unexpected totals %+v", totals.Clone())
	}
}
