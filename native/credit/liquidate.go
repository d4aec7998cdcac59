package credit

import (
	"fmt"
	"math/big"

	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/revenue"
)

// Liquidate seizes min(locked, ceil(debt*1e8/nav)) collateral into the
// credit reserve once LTV reaches LiquidationLTVBps and releases the rest.
// A shortfall between debt and the seized value is absorbed per LossPolicy.
func (e *Engine) Liquidate(caller crypto.Address, id uint64) (*Liquidation, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, e.name); err != nil {
		return nil, err
	}
	if err := common.Require(e.state, common.OpLiquidate, caller); err != nil {
		return nil, err
	}
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}
	now := e.now()
	a.accrue(now)
	ltv, err := e.ltv(a)
	if err != nil {
		return nil, err
	}
	if ltv.Cmp(big.NewInt(int64(e.params.LiquidationLTVBps))) < 0 {
		return nil, fmt.Errorf("%w: ltv %s bps", ErrNotLiquidatable, ltv)
	}
	nav, err := e.nav.NAV(a.Token)
	if err != nil {
		return nil, err
	}
	debt, err := e.debt(a)
	if err != nil {
		return nil, err
	}
	seize := common.Min(a.Collateral, common.MulDivUp(debt, common.Scale, nav))
	if seize.Sign() > 0 {
		if err := e.escrow.Seize(e.address, a.Borrower, a.Token, seize, revenue.CreditReserve.Account()); err != nil {
			return nil, err
		}
	}
	released := new(big.Int).Sub(a.Collateral, seize)
	if released.Sign() > 0 {
		if err := e.escrow.Unlock(e.address, a.Borrower, a.Token, released); err != nil {
			return nil, err
		}
	}
	out := &Liquidation{
		Debt:      debt,
		Seized:    seize,
		Released:  released,
		Recovered: common.Min(common.Value(seize, nav), debt),
		Shortfall: big.NewInt(0),
		Covered:   big.NewInt(0),
	}
	out.Shortfall.Sub(debt, out.Recovered)
	if out.Shortfall.Sign() > 0 {
		covered, err := e.absorb(out.Shortfall)
		if err != nil {
			return nil, err
		}
		out.Covered = covered
	}
	a.Collateral = big.NewInt(0)
	a.Shortfall = new(big.Int).Sub(out.Shortfall, out.Covered)
	a.Status = StatusLiquidated
	a.ClosedAt = now
	if err := e.store(a); err != nil {
		return nil, err
	}
	e.emit(e.advanceEvent(EventTypeLiquidated, a))
	return out, nil
}

// absorb covers shortfall from the guarantee compartment as far as its
// balance allows. Under LossBorrower nothing is covered and the residual
// stays on the advance as a claim against the borrower.
func (e *Engine) absorb(shortfall *big.Int) (*big.Int, error) {
	if e.params.LossPolicy != LossGuarantee {
		return big.NewInt(0), nil
	}
	available, err := e.router.CompartmentBalance(revenue.GuaranteeFund)
	if err != nil {
		return nil, err
	}
	covered := common.Min(shortfall, available)
	if covered.Sign() == 0 {
		return covered, nil
	}
	if err := e.router.Disburse(e.address, revenue.GuaranteeFund, revenue.CreditReserve.Account(), covered, revenue.KindRecovery); err != nil {
		return nil, err
	}
	return covered, nil
}
