package fees

import (
	"fmt"
	"math/big"
	"strings"

	coreerrors "fundcore/core/errors"
	"fundcore/native/common"
	"fundcore/native/registry"
)

// Fee domains.
const (
	DomainPool = "pool"
	DomainP2P  = "p2p"
)

// DefaultVATBps is the VAT levied on every fee.
const DefaultVATBps uint32 = 1_900

var (
	ErrTierIneligible = coreerrors.New(coreerrors.KindEligibility, "fees: tier not eligible for domain")
	ErrInvalidRate    = coreerrors.New(coreerrors.KindValidation, "fees: rate must not exceed 10000 bps")
	ErrUnknownDomain  = coreerrors.New(coreerrors.KindValidation, "fees: unknown fee domain")
)

// Schedule holds the fee rate of each tier, indexed Bronze..Diamond. A zero
// rate in a domain that marks it ineligible rejects that tier.
type Schedule struct {
	TierBps [registry.TierCount]uint32
	// ZeroIneligible marks zero-rate tiers as excluded from the domain.
	ZeroIneligible bool
}

// DefaultPoolSchedule is the pool fee grid.
func DefaultPoolSchedule() Schedule {
	return Schedule{TierBps: [registry.TierCount]uint32{100, 90, 80, 65, 50}}
}

// DefaultP2PSchedule is the peer-to-peer fee grid. Bronze cannot trade
// peer-to-peer.
func DefaultP2PSchedule() Schedule {
	return Schedule{TierBps: [registry.TierCount]uint32{0, 75, 65, 55, 45}, ZeroIneligible: true}
}

// Validate checks every rate is within bounds.
func (s Schedule) Validate() error {
	for i, bps := range s.TierBps {
		if bps > common.BpsDenominator {
			return fmt.Errorf("%w: %s=%d", ErrInvalidRate, registry.Tier(i), bps)
		}
	}
	return nil
}

// Rate returns the rate applicable to tier.
func (s Schedule) Rate(tier registry.Tier) (uint32, error) {
	if int(tier) >= len(s.TierBps) {
		tier = registry.TierDiamond
	}
	bps := s.TierBps[tier]
	if bps == 0 && s.ZeroIneligible {
		return 0, fmt.Errorf("%w: %s", ErrTierIneligible, tier)
	}
	return bps, nil
}

// Policy enumerates the configured fee domains.
type Policy struct {
	Version uint64
	VATBps  uint32
	Domains map[string]Schedule
}

// DefaultPolicy returns the default pool and P2P grids.
func DefaultPolicy() Policy {
	return Policy{
		Version: 1,
		VATBps:  DefaultVATBps,
		Domains: map[string]Schedule{
			DomainPool: DefaultPoolSchedule(),
			DomainP2P:  DefaultP2PSchedule(),
		},
	}
}

// Clone returns a deep copy of the policy to avoid accidental aliasing of the
// domain map between callers.
func (p Policy) Clone() Policy {
	clone := Policy{Version: p.Version, VATBps: p.VATBps, Domains: make(map[string]Schedule, len(p.Domains))}
	for domain, cfg := range p.Domains {
		clone.Domains[NormalizeDomain(domain)] = cfg
	}
	return clone
}

// Schedule resolves the grid of domain.
func (p Policy) Schedule(domain string) (Schedule, error) {
	s, ok := p.Domains[NormalizeDomain(domain)]
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return s, nil
}

// NormalizeDomain canonicalises domain identifiers for consistent lookups.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Breakdown is the fee obligation of one trade leg.
type Breakdown struct {
	RateBps uint32
	FeeBase *big.Int
	VAT     *big.Int
	Total   *big.Int
}

// Compute returns feeBase = amount*rate/10000, vat = feeBase*vatBps/10000 and
// their sum.
func Compute(amount *big.Int, rateBps, vatBps uint32) Breakdown {
	feeBase := common.ApplyBps(common.Clone(amount), rateBps)
	vat := common.ApplyBps(feeBase, vatBps)
	return Breakdown{
		RateBps: rateBps,
		FeeBase: feeBase,
		VAT:     vat,
		Total:   new(big.Int).Add(feeBase, vat),
	}
}

// Quote resolves the tier rate of domain and computes the breakdown.
func (p Policy) Quote(domain string, tier registry.Tier, amount *big.Int) (Breakdown, error) {
	s, err := p.Schedule(domain)
	if err != nil {
		return Breakdown{}, err
	}
	rate, err := s.Rate(tier)
	if err != nil {
		return Breakdown{}, err
	}
	return Compute(amount, rate, p.VATBps), nil
}

// Skim returns the guarantee-fund share of a fee base.
func Skim(feeBase *big.Int, bps uint32) *big.Int {
	return common.ApplyBps(common.Clone(feeBase), bps)
}

// Totals aggregates fee accounting metrics per domain.
type Totals struct {
	Domain string
	Gross  *big.Int
	Fee    *big.Int
	VAT    *big.Int
	Trades uint64
}

// Add accumulates one trade into the totals.
func (t *Totals) Add(gross *big.Int, b Breakdown) {
	t.Gross = new(big.Int).Add(common.Clone(t.Gross), common.Clone(gross))
	t.Fee = new(big.Int).Add(common.Clone(t.Fee), common.Clone(b.FeeBase))
	t.VAT = new(big.Int).Add(common.Clone(t.VAT), common.Clone(b.VAT))
	t.Trades++
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	return Totals{
		Domain: t.Domain,
		Gross:  common.Clone(t.Gross),
		Fee:    common.Clone(t.Fee),
		VAT:    common.Clone(t.VAT),
		Trades: t.Trades,
	}
}
