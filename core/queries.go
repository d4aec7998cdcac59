package core

import (
	"math/big"

	"fundcore/crypto"
	"fundcore/native/breaker"
	"fundcore/native/credit"
	"fundcore/native/escrow"
	"fundcore/native/fees"
	"fundcore/native/funds"
	"fundcore/native/governance"
	"fundcore/native/oracle"
	"fundcore/native/orderbook"
	"fundcore/native/pool"
	"fundcore/native/registry"
	"fundcore/native/reservation"
	"fundcore/native/revenue"
)

// Reads observe committed state only; they wait for any running unit.

func (c *Core) HasRole(role string, addr crypto.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.HasRole(role, addr)
}

func (c *Core) RoleMembers(role string) ([]crypto.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.RoleMembers(role)
}

func (c *Core) Funds() ([]*funds.Fund, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.funds.List()
}

func (c *Core) Fund(id string) (*funds.Fund, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.funds.Fund(id)
}

// NAV returns the current NAV of token, failing when the value is stale.
func (c *Core) NAV(token string) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oracle.NAV(token)
}

func (c *Core) NAVRecord(token string) (*oracle.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oracle.Record(token)
}

func (c *Core) Profile(addr crypto.Address) (*registry.Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Profile(addr)
}

func (c *Core) Balance(addr crypto.Address, token string) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Balance(addr, token)
}

// Spendable is the balance of addr less its escrow locks.
func (c *Core) Spendable(addr crypto.Address, token string) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bank.Spendable(addr, token)
}

func (c *Core) TotalSupply(token string) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalSupply(token)
}

func (c *Core) Tokens() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TokenList()
}

func (c *Core) Locks(holder crypto.Address) ([]*escrow.Lock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.escrow.Locks(holder)
}

// FeeTotals returns cumulative fee collection for a fee domain.
func (c *Core) FeeTotals(domain string) (fees.Totals, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.router.FeeTotals(domain)
}

func (c *Core) CompartmentBalances() (map[revenue.Compartment]*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.router.Balances()
}

// RevenueTotals returns the cumulative routed amount of every flow kind.
func (c *Core) RevenueTotals(kinds ...revenue.Kind) (map[revenue.Kind]*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[revenue.Kind]*big.Int, len(kinds))
	for _, kind := range kinds {
		total, err := c.router.Totals(kind)
		if err != nil {
			return nil, err
		}
		out[kind] = total
	}
	return out, nil
}

func (c *Core) BreakerState(token string) (*breaker.State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breaker.State(token)
}

func (c *Core) PoolReserve(token string) (*pool.Reserve, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.Reserve(token)
}

func (c *Core) Position(holder crypto.Address, token string) (*pool.Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.Position(holder, token)
}

// ReserveRatio returns the reserve ratio of token in basis points.
func (c *Core) ReserveRatio(token string) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.ReserveRatioBps(token)
}

func (c *Core) QuoteBuy(buyer crypto.Address, token string, tndIn *big.Int) (*pool.BuyQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.QuoteBuy(buyer, token, tndIn)
}

func (c *Core) QuoteSell(seller crypto.Address, token string, amount *big.Int) (*pool.SellQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool.QuoteSell(seller, token, amount)
}

func (c *Core) Reservation(id string) (*reservation.Reservation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reservation.Reservation(id)
}

func (c *Core) Reservations(holder crypto.Address) ([]*reservation.Reservation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reservation.ByHolder(holder)
}

func (c *Core) Advance(model credit.Model, id uint64) (*credit.Advance, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return e.Advance(id)
}

func (c *Core) Advances(model credit.Model, borrower crypto.Address) ([]*credit.Advance, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return e.ByBorrower(borrower)
}

// Debt is what closing the advance would cost right now.
func (c *Core) Debt(model credit.Model, id uint64) (*big.Int, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return e.Debt(id)
}

func (c *Core) LTV(model credit.Model, id uint64) (*big.Int, error) {
	e, err := c.credit(model)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return e.CurrentLTV(id)
}

func (c *Core) Order(id string) (*orderbook.Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orderbook.Order(id)
}

// Orders returns the open book of token, best price first.
func (c *Core) Orders(token string) (*orderbook.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orderbook.Snapshot(token)
}

func (c *Core) OrderTokens() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orderbook.Tokens()
}

func (c *Core) Council() (*governance.Council, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.council.Council()
}

func (c *Core) Transaction(id uint64) (*governance.Transaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.council.Transaction(id)
}

func (c *Core) Transactions() ([]*governance.Transaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.council.List()
}
