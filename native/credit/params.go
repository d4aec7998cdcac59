package credit

import (
	"fmt"
	"strings"

	"fundcore/native/common"
	"fundcore/native/registry"
)

// LossPolicy decides who absorbs a Model B liquidation shortfall.
type LossPolicy string

const (
	// LossGuarantee covers the shortfall from the guarantee compartment.
	LossGuarantee LossPolicy = "guarantee"
	// LossBorrower records the shortfall as a residual claim on the borrower.
	LossBorrower LossPolicy = "borrower"
)

// ReferenceNAV selects the NAV Model B measures appreciation from.
type ReferenceNAV string

const (
	ReferenceActivation ReferenceNAV = "activation"
	ReferenceRequest    ReferenceNAV = "request"
)

// Params are the governance controlled credit limits.
type Params struct {
	// MaxLTVBps caps principal as a share of collateral value.
	MaxLTVBps uint32
	// LiquidationLTVBps is the LTV at or above which an advance may be
	// liquidated.
	LiquidationLTVBps uint32
	// RateBps is the annual rate per tier; zero marks the tier ineligible.
	RateBps [registry.TierCount]uint32
	// MaxDurationDays is the longest term per tier.
	MaxDurationDays [registry.TierCount]uint32
	// MinTierA and MinTierB are the lowest fee levels admitted per model.
	MinTierA registry.Tier
	MinTierB registry.Tier
	// GainShareBps is the share of Model B collateral appreciation owed at
	// maturity.
	GainShareBps uint32
	Reference    ReferenceNAV
	LossPolicy   LossPolicy
}

// DefaultParams returns the launch parameters.
func DefaultParams() Params {
	return Params{
		MaxLTVBps:         7_000,
		LiquidationLTVBps: 8_500,
		RateBps:           [registry.TierCount]uint32{0, 500, 450, 350, 300},
		MaxDurationDays:   [registry.TierCount]uint32{0, 90, 120, 150, 365},
		MinTierA:          registry.TierSilver,
		MinTierB:          registry.TierPlatinum,
		GainShareBps:      2_000,
		Reference:         ReferenceActivation,
		LossPolicy:        LossGuarantee,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.MaxLTVBps == 0 || p.MaxLTVBps > common.BpsDenominator {
		return fmt.Errorf("%w: max ltv %d", ErrInvalidParams, p.MaxLTVBps)
	}
	if p.LiquidationLTVBps < p.MaxLTVBps {
		return fmt.Errorf("%w: liquidation ltv %d below max ltv %d", ErrInvalidParams, p.LiquidationLTVBps, p.MaxLTVBps)
	}
	if p.GainShareBps > common.BpsDenominator {
		return fmt.Errorf("%w: gain share %d", ErrInvalidParams, p.GainShareBps)
	}
	for i, bps := range p.RateBps {
		if bps > common.BpsDenominator {
			return fmt.Errorf("%w: rate %s=%d", ErrInvalidParams, registry.Tier(i), bps)
		}
		if bps > 0 && p.MaxDurationDays[i] == 0 {
			return fmt.Errorf("%w: tier %s has a rate but no duration", ErrInvalidParams, registry.Tier(i))
		}
	}
	if _, err := ParseReference(string(p.Reference)); err != nil {
		return err
	}
	if _, err := ParseLossPolicy(string(p.LossPolicy)); err != nil {
		return err
	}
	return nil
}

// MinTier returns the lowest fee level admitted for model.
func (p Params) MinTier(m Model) registry.Tier {
	if m == ModelB {
		return p.MinTierB
	}
	return p.MinTierA
}

// ParseLossPolicy validates a loss policy name.
func ParseLossPolicy(v string) (LossPolicy, error) {
	switch LossPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case LossGuarantee, "":
		return LossGuarantee, nil
	case LossBorrower:
		return LossBorrower, nil
	}
	return "", fmt.Errorf("%w: loss policy %q", ErrInvalidParams, v)
}

// ParseReference validates a reference NAV name.
func ParseReference(v string) (ReferenceNAV, error) {
	switch ReferenceNAV(strings.ToLower(strings.TrimSpace(v))) {
	case ReferenceActivation, "":
		return ReferenceActivation, nil
	case ReferenceRequest:
		return ReferenceRequest, nil
	}
	return "", fmt.Errorf("%w: reference nav %q", ErrInvalidParams, v)
}
