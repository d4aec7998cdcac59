package pool

import (
	"math/big"

	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/common"
)

// Position returns holder's PRM position in token.
func (e *Engine) Position(holder crypto.Address, token string) (*Position, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	pos := new(Position)
	ok, err := e.state.KVGet(positionKey(holder, state.NormalizeSymbol(token)), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Position{AvgPrice: big.NewInt(0), Quantity: big.NewInt(0)}, nil
	}
	if pos.AvgPrice == nil {
		pos.AvgPrice = big.NewInt(0)
	}
	if pos.Quantity == nil {
		pos.Quantity = big.NewInt(0)
	}
	return pos, nil
}

// RecordAcquisition folds qty acquired at price into holder's PRM. Only
// components authorized for the pool may call it.
func (e *Engine) RecordAcquisition(caller, holder crypto.Address, token string, qty, price *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	return e.recordAcquisition(holder, state.NormalizeSymbol(token), qty, price)
}

// RecordDisposal reduces holder's PRM quantity.
func (e *Engine) RecordDisposal(caller, holder crypto.Address, token string, qty *big.Int) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	return e.recordDisposal(holder, state.NormalizeSymbol(token), qty)
}

// avg' = (avg*q + price*qty) / (q + qty)
func (e *Engine) recordAcquisition(holder crypto.Address, token string, qty, price *big.Int) error {
	if !common.Positive(qty) || !common.Positive(price) {
		return nil
	}
	pos, err := e.Position(holder, token)
	if err != nil {
		return err
	}
	cost := new(big.Int).Mul(pos.AvgPrice, pos.Quantity)
	cost.Add(cost, new(big.Int).Mul(price, qty))
	pos.Quantity = new(big.Int).Add(pos.Quantity, qty)
	pos.AvgPrice = cost.Quo(cost, pos.Quantity)
	return e.state.KVPut(positionKey(holder, token), pos)
}

func (e *Engine) recordDisposal(holder crypto.Address, token string, qty *big.Int) error {
	if !common.Positive(qty) {
		return nil
	}
	pos, err := e.Position(holder, token)
	if err != nil {
		return err
	}
	if pos.Quantity.Sign() == 0 {
		return nil
	}
	pos.Quantity = new(big.Int).Sub(pos.Quantity, qty)
	if pos.Quantity.Sign() <= 0 {
		pos.Quantity = big.NewInt(0)
		pos.AvgPrice = big.NewInt(0)
	}
	return e.state.KVPut(positionKey(holder, token), pos)
}
