package pool

import (
	"fmt"
	"math/big"

	"fundcore/crypto"
	"fundcore/native/common"
)

// ReservableCapacity returns how much more inventory of token may be
// reserved: min(supply*MaxReservableBps/10000, supply) minus what is already
// reserved.
func (e *Engine) ReservableCapacity(token string) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	r, err := e.Reserve(token)
	if err != nil {
		return nil, err
	}
	supply, err := e.state.TotalSupply(r.Token)
	if err != nil {
		return nil, err
	}
	limit := common.Min(common.ApplyBps(supply, e.params.MaxReservableBps), supply)
	free := new(big.Int).Sub(limit, r.ReservedInventory)
	if free.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return free, nil
}

// ReserveInventory earmarks amount of token for a forward purchase.
func (e *Engine) ReserveInventory(caller crypto.Address, token string, amount *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	if !common.Positive(amount) {
		return ErrInvalidAmount
	}
	free, err := e.ReservableCapacity(token)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return fmt.Errorf("%w: free %s requested %s", ErrInventoryExhausted, free, amount)
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	r.ReservedInventory.Add(r.ReservedInventory, amount)
	if err := e.putReserve(r); err != nil {
		return err
	}
	e.emit(newReserveEvent(EventTypeInventoryReserved, r))
	return nil
}

// ReleaseInventory returns amount of earmarked inventory.
func (e *Engine) ReleaseInventory(caller crypto.Address, token string, amount *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	if !common.Positive(amount) {
		return ErrInvalidAmount
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	if r.ReservedInventory.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserved %s release %s", ErrInventoryUnderflow, r.ReservedInventory, amount)
	}
	r.ReservedInventory.Sub(r.ReservedInventory, amount)
	if err := e.putReserve(r); err != nil {
		return err
	}
	e.emit(newReserveEvent(EventTypeInventoryReleased, r))
	return nil
}

// Issue mints amount of token to holder at price on behalf of an authorized
// component and records the acquisition in holder's PRM.
func (e *Engine) Issue(caller, holder crypto.Address, token string, amount, price *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	if holder.IsZero() {
		return ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return ErrInvalidAmount
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	if err := e.state.Mint(holder, r.Token, amount); err != nil {
		return err
	}
	if err := e.recordAcquisition(holder, r.Token, amount, price); err != nil {
		return err
	}
	e.emit(newReserveEvent(EventTypeIssued, r))
	return nil
}
