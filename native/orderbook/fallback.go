package orderbook

import (
	"fmt"

	"fundcore/native/common"
)

// fallback routes an unmatched order to the pool inside a savepoint. On
// success the order is settled; on failure every effect of the attempt is
// rolled back and the order rests on the book with the failure recorded.
func (e *Engine) fallback(o *Order) {
	o.FallbackAttempted = true
	if e.savepoints == nil {
		o.FallbackError = ErrNilState.Error()
		e.emit(fallbackEvent(o))
		return
	}
	snap := e.savepoints.Snapshot()
	attempt := o.Clone()
	if err := e.routeToPool(attempt); err != nil {
		e.savepoints.RevertToSnapshot(snap)
		o.FallbackSuccess = false
		o.FallbackError = err.Error()
		e.emit(fallbackEvent(o))
		return
	}
	*o = *attempt
	o.FallbackSuccess = true
	o.FallbackError = ""
	e.emit(fallbackEvent(o))
}

func (e *Engine) routeToPool(o *Order) error {
	remaining := o.Remaining()
	filled := remaining
	switch o.Side {
	case SideBuy:
		price, err := e.pool.BuyPrice(o.Token)
		if err != nil {
			return err
		}
		if price.Cmp(o.Price) > 0 {
			return fmt.Errorf("%w: pool %s limit %s", ErrFallbackPrice, price, o.Price)
		}
		if err := e.unlockRemainder(o); err != nil {
			return err
		}
		q, err := e.pool.Buy(o.Maker, o.Token, common.Value(remaining, o.Price))
		if err != nil {
			return err
		}
		// The pool mints at its own price out of the limit budget.
		filled = q.Minted
	case SideSell:
		q, err := e.pool.QuoteSell(o.Maker, o.Token, remaining)
		if err != nil {
			return err
		}
		if q.PriceClient.Cmp(o.Price) < 0 {
			return fmt.Errorf("%w: pool %s limit %s", ErrFallbackPrice, q.PriceClient, o.Price)
		}
		if err := e.unlockRemainder(o); err != nil {
			return err
		}
		if _, err := e.pool.Sell(o.Maker, o.Token, remaining); err != nil {
			return err
		}
	default:
		return ErrInvalidSide
	}
	o.Filled.Add(o.Filled, filled)
	o.Status = StatusSettled
	return nil
}
