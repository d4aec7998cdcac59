package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"fundcore/crypto"
	"fundcore/native/breaker"
	"fundcore/native/common"
	"fundcore/native/credit"
	"fundcore/native/governance"
	"fundcore/native/orderbook"
	"fundcore/native/pool"
	"fundcore/native/registry"
	"fundcore/native/reservation"
	"fundcore/observability"
)

// run applies fn as one unit and hands its typed result back to the caller.
func run[T any](c *Core, kind, entity string, caller crypto.Address, fn func() (T, error)) (T, error) {
	var out T
	err := c.apply(kind, entity, caller, func() (interface{}, error) {
		v, err := fn()
		out = v
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func exec(c *Core, kind, entity string, caller crypto.Address, fn func() error) error {
	return c.apply(kind, entity, caller, func() (interface{}, error) {
		return nil, fn()
	})
}

// Registry

func (c *Core) AddToWhitelist(caller, addr crypto.Address, level uint8, resident bool) error {
	return c.apply(string(common.OpAddToWhitelist), addr.String(), caller, func() (interface{}, error) {
		if err := c.registry.AddToWhitelist(caller, addr, level, resident); err != nil {
			return nil, err
		}
		return c.registry.Profile(addr)
	})
}

func (c *Core) SetResidency(caller, addr crypto.Address, resident bool) error {
	return c.apply(string(common.OpSetResidency), addr.String(), caller, func() (interface{}, error) {
		if err := c.registry.SetResidency(caller, addr, resident); err != nil {
			return nil, err
		}
		return c.registry.Profile(addr)
	})
}

func (c *Core) SetScore(caller, addr crypto.Address, score uint8) error {
	return c.apply(string(common.OpSetScore), addr.String(), caller, func() (interface{}, error) {
		if err := c.registry.SetScore(caller, addr, score); err != nil {
			return nil, err
		}
		return c.registry.Profile(addr)
	})
}

func (c *Core) SetSubscriptionActive(caller, addr crypto.Address, active bool) error {
	return c.apply(string(common.OpSetSubscription), addr.String(), caller, func() (interface{}, error) {
		if err := c.registry.SetSubscriptionActive(caller, addr, active); err != nil {
			return nil, err
		}
		return c.registry.Profile(addr)
	})
}

// SyncSubscriptions applies a keeper batch and returns how many profiles
// changed.
func (c *Core) SyncSubscriptions(caller crypto.Address, updates []registry.SubscriptionUpdate) (int, error) {
	return run(c, string(common.OpSyncSubscriptions), "registry", caller, func() (int, error) {
		return c.registry.SyncSubscriptions(caller, updates)
	})
}

// Oracle

func (c *Core) UpdateVNI(caller crypto.Address, token string, vni *big.Int, at uint64) error {
	err := c.apply(string(common.OpUpdateVNI), token, caller, func() (interface{}, error) {
		if err := c.oracle.UpdateVNI(caller, token, vni, at); err != nil {
			return nil, err
		}
		return c.oracle.Record(token)
	})
	if err == nil {
		observability.Ledger().SetNAV(token, vni)
	}
	return err
}

func (c *Core) SetVolatility(caller crypto.Address, token string, bps uint32) error {
	return exec(c, string(common.OpSetVolatility), token, caller, func() error {
		return c.oracle.SetVolatility(caller, token, bps)
	})
}

// Bank

// Transfer moves spendable cash or fund tokens between accounts.
func (c *Core) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	return c.apply("bank.transfer", token, from, func() (interface{}, error) {
		if err := c.bank.Transfer(from, to, token, amount); err != nil {
			return nil, err
		}
		return transferRecord{From: from.String(), To: to.String(), Token: token, Amount: amount.String()}, nil
	})
}

// Pool

func (c *Core) SetSpread(caller crypto.Address, token string, bps uint32) error {
	return exec(c, string(common.OpSetSpread), token, caller, func() error {
		return c.pool.SetSpread(caller, token, bps)
	})
}

func (c *Core) SetGuaranteeFund(caller crypto.Address, token string, fund crypto.Address, bps uint32) error {
	return exec(c, string(common.OpSetGuaranteeFund), token, caller, func() error {
		return c.pool.SetGuaranteeFund(caller, token, fund, bps)
	})
}

func (c *Core) ProvideLiquidity(caller, from crypto.Address, token string, amount *big.Int) error {
	return c.apply(string(common.OpProvideLiquidity), token, caller, func() (interface{}, error) {
		if err := c.pool.ProvideLiquidity(caller, from, token, amount); err != nil {
			return nil, err
		}
		return c.reserveSnapshot(token)
	})
}

// Buy subscribes tndIn of cash into the fund token at the pool's buy price.
func (c *Core) Buy(buyer crypto.Address, token string, tndIn *big.Int) (*pool.BuyQuote, error) {
	q, err := run(c, "pool.buy", token, buyer, func() (*pool.BuyQuote, error) {
		return c.pool.Buy(buyer, token, tndIn)
	})
	if err == nil {
		c.publishReserve(token)
	}
	return q, err
}

// Sell redeems amount of the fund token. The breaker check commits on its
// own first so a trip survives the rejection it causes.
func (c *Core) Sell(seller crypto.Address, token string, amount *big.Int) (*pool.SellQuote, error) {
	if err := c.checkBreaker(token); err != nil {
		return nil, err
	}
	q, err := run(c, "pool.sell", token, seller, func() (*pool.SellQuote, error) {
		return c.pool.Sell(seller, token, amount)
	})
	if err == nil {
		c.publishReserve(token)
	}
	return q, err
}

func (c *Core) checkBreaker(token string) error {
	var tripped bool
	err := c.apply("breaker.check", token, crypto.Address{}, func() (interface{}, error) {
		t, err := c.breaker.CheckAndTripRedemptions(token, c.pool.ReserveRatioBps)
		if err != nil {
			return nil, err
		}
		tripped = t
		if !t {
			return nil, nil
		}
		return c.breaker.State(token)
	})
	if err != nil {
		return fmt.Errorf("core: breaker check %s: %w", token, err)
	}
	if tripped {
		c.log.Warn("breaker tripped", slog.String("token", token), slog.String("trigger", string(breaker.TriggerRatio)))
		observability.Ledger().RecordBreakerTrip(token, string(breaker.TriggerRatio))
	}
	return nil
}

func (c *Core) reserveSnapshot(token string) (interface{}, error) {
	return c.pool.Reserve(token)
}

func (c *Core) publishReserve(token string) {
	c.mu.RLock()
	r, err := c.pool.Reserve(token)
	c.mu.RUnlock()
	if err == nil {
		observability.Ledger().SetReserveCash(token, r.Cash)
	}
}

// Breaker

func (c *Core) SetBreakerThreshold(caller crypto.Address, token string, bps uint32) error {
	return c.apply(string(common.OpSetThreshold), token, caller, func() (interface{}, error) {
		if err := c.breaker.SetThreshold(caller, token, bps); err != nil {
			return nil, err
		}
		return c.breaker.State(token)
	})
}

// PanicTrip halts redemptions of token immediately.
func (c *Core) PanicTrip(caller crypto.Address, token, reason string) error {
	err := c.apply(string(common.OpPanicTrip), token, caller, func() (interface{}, error) {
		if err := c.breaker.PanicTrip(caller, token, reason); err != nil {
			return nil, err
		}
		return c.breaker.State(token)
	})
	if err == nil {
		c.log.Warn("breaker tripped",
			slog.String("token", token),
			slog.String("trigger", string(breaker.TriggerPanic)),
			slog.String("caller", caller.String()),
			slog.String("reason", reason),
		)
		observability.Ledger().RecordBreakerTrip(token, string(breaker.TriggerPanic))
	}
	return err
}

func (c *Core) ResetBreaker(caller crypto.Address, token string) error {
	return c.apply(string(common.OpResetBreaker), token, caller, func() (interface{}, error) {
		if err := c.breaker.Reset(caller, token); err != nil {
			return nil, err
		}
		return c.breaker.State(token)
	})
}

// Reservations

func (c *Core) Reserve(holder crypto.Address, token string, amount *big.Int, expiry uint64) (*reservation.Reservation, error) {
	return run(c, "reservation.reserve", token, holder, func() (*reservation.Reservation, error) {
		return c.reservation.Reserve(holder, token, amount, expiry)
	})
}

func (c *Core) ExerciseReservation(holder crypto.Address, id string) (*reservation.Receipt, error) {
	return run(c, "reservation.exercise", id, holder, func() (*reservation.Receipt, error) {
		return c.reservation.Exercise(holder, id)
	})
}

func (c *Core) CancelReservation(holder crypto.Address, id string) (*reservation.Reservation, error) {
	return run(c, "reservation.cancel", id, holder, func() (*reservation.Reservation, error) {
		return c.reservation.Cancel(holder, id)
	})
}

// ReapReservations expires reservations past their expiry at now (zero means
// the current time).
func (c *Core) ReapReservations(now uint64) (int, error) {
	return run(c, "reservation.reap", "reservation", crypto.Address{}, func() (int, error) {
		return c.reservation.ReapExpired(now)
	})
}

// Credit

// Credit returns the engine of model.
func (c *Core) credit(model credit.Model) (*credit.Engine, error) {
	switch model {
	case credit.ModelA:
		return c.creditA, nil
	case credit.ModelB:
		return c.creditB, nil
	default:
		return nil, fmt.Errorf("%w: model %s", credit.ErrInvalidParams, model)
	}
}

func advanceEntity(e *credit.Engine, id uint64) string {
	return e.Name() + "/" + strconv.FormatUint(id, 10)
}

func (c *Core) RequestAdvance(model credit.Model, borrower crypto.Address, token string, collateral, requested *big.Int, durationDays uint32) (*credit.Advance, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".request", token, borrower, func() (*credit.Advance, error) {
		return e.RequestAdvance(borrower, token, collateral, requested, durationDays)
	})
}

func (c *Core) ActivateAdvance(model credit.Model, caller crypto.Address, id uint64) (*credit.Advance, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".activate", advanceEntity(e, id), caller, func() (*credit.Advance, error) {
		return e.ActivateAdvance(caller, id)
	})
}

func (c *Core) CancelAdvanceRequest(model credit.Model, borrower crypto.Address, id uint64) (*credit.Advance, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".cancel", advanceEntity(e, id), borrower, func() (*credit.Advance, error) {
		return e.CancelRequest(borrower, id)
	})
}

func (c *Core) Repay(model credit.Model, borrower crypto.Address, id uint64, amount *big.Int) (*credit.Repayment, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".repay", advanceEntity(e, id), borrower, func() (*credit.Repayment, error) {
		return e.Repay(borrower, id, amount)
	})
}

func (c *Core) CloseAdvance(model credit.Model, borrower crypto.Address, id uint64) (*credit.Repayment, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".close", advanceEntity(e, id), borrower, func() (*credit.Repayment, error) {
		return e.CloseAdvance(borrower, id)
	})
}

func (c *Core) Liquidate(model credit.Model, caller crypto.Address, id uint64) (*credit.Liquidation, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	return run(c, e.Name()+".liquidate", advanceEntity(e, id), caller, func() (*credit.Liquidation, error) {
		return e.Liquidate(caller, id)
	})
}

// Order book

// SubmitOrder places an order and returns it with the trades it produced.
func (c *Core) SubmitOrder(maker crypto.Address, side orderbook.Side, token string, amount, price *big.Int, nonce, deadline uint64, fallback bool) (*orderbook.Order, []*orderbook.Trade, error) {
	var trades []*orderbook.Trade
	order, err := run(c, "orderbook.submit", token, maker, func() (*orderbook.Order, error) {
		o, t, err := c.orderbook.SubmitOrder(maker, side, token, amount, price, nonce, deadline, fallback)
		trades = t
		return o, err
	})
	if err != nil {
		return nil, nil, err
	}
	return order, trades, nil
}

func (c *Core) CancelOrder(maker crypto.Address, id string) (*orderbook.Order, error) {
	return run(c, "orderbook.cancel", id, maker, func() (*orderbook.Order, error) {
		return c.orderbook.CancelOrder(maker, id)
	})
}

func (c *Core) SettleTrade(caller crypto.Address, buyID, sellID string, amount *big.Int) (*orderbook.Trade, error) {
	return run(c, string(common.OpSettleTrade), buyID+"/"+sellID, caller, func() (*orderbook.Trade, error) {
		return c.orderbook.SettleTrade(caller, buyID, sellID, amount)
	})
}

// ReapOrders closes orders past their deadline at now (zero means the
// current time).
func (c *Core) ReapOrders(now uint64) (int, error) {
	return run(c, "orderbook.reap", "orderbook", crypto.Address{}, func() (int, error) {
		return c.orderbook.ReapExpired(now)
	})
}

// Governance

func (c *Core) SubmitTransaction(owner crypto.Address, method string, value *big.Int, data []byte) (uint64, error) {
	return run(c, "governance.submit", method, owner, func() (uint64, error) {
		return c.council.SubmitTransaction(owner, method, value, data)
	})
}

func (c *Core) ConfirmTransaction(owner crypto.Address, id uint64) (bool, error) {
	return run(c, "governance.confirm", strconv.FormatUint(id, 10), owner, func() (bool, error) {
		return c.council.ConfirmTransaction(owner, id)
	})
}

// ExecuteTransaction runs a confirmed council transaction. The dispatched
// call shares the transaction's journal.
func (c *Core) ExecuteTransaction(owner crypto.Address, id uint64) (*governance.Transaction, error) {
	return run(c, "governance.execute", strconv.FormatUint(id, 10), owner, func() (*governance.Transaction, error) {
		return c.council.ExecuteTransaction(owner, id)
	})
}

type transferRecord struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}
