package credit

import (
	"math/big"

	"fundcore/native/common"
)

var yearBps = new(big.Int).Mul(big.NewInt(common.BpsDenominator), big.NewInt(common.SecondsPerYear))

// SimpleInterest returns principal*rateBps*elapsed/(10000*365d).
func SimpleInterest(principal *big.Int, rateBps uint32, elapsed uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(principal, big.NewInt(int64(rateBps)))
	num.Mul(num, new(big.Int).SetUint64(elapsed))
	return num.Quo(num, yearBps)
}

// GainShare returns shareBps of the appreciation of collateral between
// reference and current NAV. Depreciation yields zero.
func GainShare(collateral, reference, current *big.Int, shareBps uint32) *big.Int {
	if reference == nil || current == nil || current.Cmp(reference) <= 0 {
		return big.NewInt(0)
	}
	gain := common.Value(collateral, new(big.Int).Sub(current, reference))
	return common.ApplyBps(gain, shareBps)
}

// accrue folds interest on the outstanding principal from AccruedAt up to
// min(now, maturity) into Accrued. Model B advances never accrue.
func (a *Advance) accrue(now uint64) {
	if a.Model != ModelA || a.Status != StatusActive {
		return
	}
	until := now
	if m := a.Maturity(); until > m {
		until = m
	}
	if until <= a.AccruedAt {
		return
	}
	a.Accrued = new(big.Int).Add(a.Accrued, SimpleInterest(a.Outstanding(), a.RateBps, until-a.AccruedAt))
	a.AccruedAt = until
}

// InterestDue is accrued interest not yet paid.
func (a *Advance) InterestDue() *big.Int {
	due := new(big.Int).Sub(a.Accrued, a.InterestPaid)
	if due.Sign() < 0 {
		return big.NewInt(0)
	}
	return due
}
