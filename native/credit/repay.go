package credit

import (
	"fmt"
	"math/big"

	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/revenue"
)

// Debt returns what closing the advance would cost now: outstanding
// principal plus interest due for Model A, principal plus gain share at the
// current NAV for Model B.
func (e *Engine) Debt(id uint64) (*big.Int, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	a, err := e.Advance(id)
	if err != nil {
		return nil, err
	}
	return e.debt(a)
}

func (e *Engine) debt(a *Advance) (*big.Int, error) {
	if e.model == ModelA {
		return new(big.Int).Add(a.Outstanding(), a.InterestDue()), nil
	}
	share, err := e.gainShare(a)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(a.Outstanding(), share), nil
}

func (e *Engine) gainShare(a *Advance) (*big.Int, error) {
	nav, err := e.nav.NAV(a.Token)
	if err != nil {
		return nil, err
	}
	ref := a.NAVAtStart
	if e.params.Reference == ReferenceRequest || ref.Sign() == 0 {
		ref = a.NAVAtRequest
	}
	return GainShare(a.Collateral, ref, nav, e.params.GainShareBps), nil
}

// CurrentLTV returns debt*10000/collateralValue at the current NAV.
func (e *Engine) CurrentLTV(id uint64) (*big.Int, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	a, err := e.Advance(id)
	if err != nil {
		return nil, err
	}
	return e.ltv(a)
}

func (e *Engine) ltv(a *Advance) (*big.Int, error) {
	nav, err := e.nav.NAV(a.Token)
	if err != nil {
		return nil, err
	}
	debt, err := e.debt(a)
	if err != nil {
		return nil, err
	}
	value := common.Value(a.Collateral, nav)
	if value.Sign() == 0 {
		if debt.Sign() == 0 {
			return big.NewInt(0), nil
		}
		return new(big.Int).Set(MaxLTV), nil
	}
	return common.MulDiv(debt, big.NewInt(common.BpsDenominator), value), nil
}

// Repay settles up to amount of a Model A advance: interest first, then
// principal. Collateral is released in proportion to principal repaid. The
// advance closes once nothing is owed.
func (e *Engine) Repay(borrower crypto.Address, id uint64, amount *big.Int) (*Repayment, error) {
	if !common.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	a, err := e.owned(borrower, id)
	if err != nil {
		return nil, err
	}
	if e.model != ModelA {
		return nil, fmt.Errorf("%w: model %s repays at maturity", ErrWrongModel, e.model)
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}
	now := e.now()
	a.accrue(now)
	interest := common.Min(amount, a.InterestDue())
	principal := common.Min(new(big.Int).Sub(amount, interest), a.Outstanding())
	rep, err := e.settle(a, interest, principal, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	if a.Outstanding().Sign() == 0 && a.InterestDue().Sign() == 0 {
		if err := e.release(a, rep); err != nil {
			return nil, err
		}
		a.Status = StatusClosed
		a.ClosedAt = now
		rep.Closed = true
	}
	if err := e.store(a); err != nil {
		return nil, err
	}
	kind := EventTypeRepaid
	if rep.Closed {
		kind = EventTypeClosed
	}
	e.emit(e.advanceEvent(kind, a))
	return rep, nil
}

// CloseAdvance repays everything owed and releases all collateral. Model B
// advances close only at or after maturity.
func (e *Engine) CloseAdvance(borrower crypto.Address, id uint64) (*Repayment, error) {
	a, err := e.owned(borrower, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}
	now := e.now()
	share := big.NewInt(0)
	switch e.model {
	case ModelA:
		a.accrue(now)
	case ModelB:
		if now < a.Maturity() {
			return nil, fmt.Errorf("%w: matures at %d", ErrNotMatured, a.Maturity())
		}
		if share, err = e.gainShare(a); err != nil {
			return nil, err
		}
	}
	rep, err := e.settle(a, a.InterestDue(), a.Outstanding(), share)
	if err != nil {
		return nil, err
	}
	if err := e.release(a, rep); err != nil {
		return nil, err
	}
	a.GainShare = share
	a.Status = StatusClosed
	a.ClosedAt = now
	rep.Closed = true
	if err := e.store(a); err != nil {
		return nil, err
	}
	e.emit(e.advanceEvent(EventTypeClosed, a))
	return rep, nil
}

// settle routes interest and gain share to the revenue compartment and
// principal back to the credit reserve, releasing collateral in proportion
// to principal repaid.
func (e *Engine) settle(a *Advance, interest, principal, share *big.Int) (*Repayment, error) {
	if err := e.router.Route(e.address, a.Borrower, revenue.Revenue, interest, revenue.KindInterest); err != nil {
		return nil, err
	}
	if err := e.router.Route(e.address, a.Borrower, revenue.Revenue, share, revenue.KindGainShare); err != nil {
		return nil, err
	}
	if err := e.router.Route(e.address, a.Borrower, revenue.CreditReserve, principal, revenue.KindRepaid); err != nil {
		return nil, err
	}
	a.InterestPaid = new(big.Int).Add(a.InterestPaid, interest)
	a.PrincipalRepaid = new(big.Int).Add(a.PrincipalRepaid, principal)
	rep := &Repayment{
		Interest:  new(big.Int).Set(interest),
		Principal: new(big.Int).Set(principal),
		GainShare: new(big.Int).Set(share),
		Released:  big.NewInt(0),
	}
	if principal.Sign() > 0 && a.Outstanding().Sign() > 0 {
		// collateral kept covers the outstanding share of principal
		keep := common.MulDivUp(a.Collateral, a.Outstanding(), new(big.Int).Add(a.Outstanding(), principal))
		free := new(big.Int).Sub(a.Collateral, keep)
		if free.Sign() > 0 {
			if err := e.escrow.Unlock(e.address, a.Borrower, a.Token, free); err != nil {
				return nil, err
			}
			a.Collateral = keep
			rep.Released = free
		}
	}
	return rep, nil
}

func (e *Engine) release(a *Advance, rep *Repayment) error {
	if a.Collateral.Sign() == 0 {
		return nil
	}
	if err := e.escrow.Unlock(e.address, a.Borrower, a.Token, a.Collateral); err != nil {
		return err
	}
	rep.Released = new(big.Int).Add(rep.Released, a.Collateral)
	a.Collateral = big.NewInt(0)
	return nil
}
