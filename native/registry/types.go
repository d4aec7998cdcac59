package registry

import (
	"strings"

	"fundcore/crypto"
)

// Tier classifies investors by behavioural score.
type Tier uint8

const (
	TierBronze Tier = iota
	TierSilver
	TierGold
	TierPlatinum
	TierDiamond
)

// TierCount is the number of tiers; fee schedules are indexed by Tier.
const TierCount = 5

func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	case TierDiamond:
		return "diamond"
	default:
		return "unknown"
	}
}

// KYC levels.
const (
	KYCNone  uint8 = 0
	KYCGreen uint8 = 1
	KYCWhite uint8 = 2
)

// MaxScore is the upper bound of the behavioural score.
const MaxScore = 100

// TierFromScore maps a behavioural score onto its tier.
func TierFromScore(score uint8) Tier {
	switch {
	case score >= 85:
		return TierDiamond
	case score >= 56:
		return TierPlatinum
	case score >= 36:
		return TierGold
	case score >= 16:
		return TierSilver
	default:
		return TierBronze
	}
}

// KYCTierCap returns the highest tier a KYC level unlocks. The boolean is
// false for accounts that are not whitelisted.
func KYCTierCap(level uint8) (Tier, bool) {
	switch level {
	case KYCGreen:
		return TierBronze, true
	case KYCWhite:
		return TierDiamond, true
	default:
		return TierBronze, false
	}
}

// Profile is the investor record.
type Profile struct {
	Address            crypto.Address
	KYCLevel           uint8
	Resident           bool
	Score              uint8
	SubscriptionActive bool
	UpdatedAt          uint64
}

// Whitelisted reports whether the investor passed KYC at any level.
func (p *Profile) Whitelisted() bool {
	if p == nil {
		return false
	}
	_, ok := KYCTierCap(p.KYCLevel)
	return ok
}

// Tier is the uncapped tier derived from the score.
func (p *Profile) Tier() Tier {
	if p == nil {
		return TierBronze
	}
	return TierFromScore(p.Score)
}

// FeeLevel is the effective tier: the score tier capped by the KYC level.
func (p *Profile) FeeLevel() Tier {
	if p == nil {
		return TierBronze
	}
	capTier, ok := KYCTierCap(p.KYCLevel)
	if !ok {
		return TierBronze
	}
	if tier := p.Tier(); tier < capTier {
		return tier
	}
	return capTier
}

// SubscriptionUpdate is one entry of a keeper subscription sync.
type SubscriptionUpdate struct {
	Address crypto.Address
	Active  bool
}

// ParseTier accepts a tier name in any case.
func ParseTier(v string) (Tier, bool) {
	for t := TierBronze; t <= TierDiamond; t++ {
		if strings.EqualFold(strings.TrimSpace(v), t.String()) {
			return t, true
		}
	}
	return TierBronze, false
}
