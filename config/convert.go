package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/credit"
	"fundcore/native/fees"
	"fundcore/native/pool"
	"fundcore/native/registry"
)

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func tierGrid(values []uint32) [registry.TierCount]uint32 {
	var grid [registry.TierCount]uint32
	copy(grid[:], values)
	return grid
}

// FeePolicy builds the pool and P2P fee grids.
func (c *Config) FeePolicy() fees.Policy {
	return fees.Policy{
		Version: 1,
		VATBps:  c.Fees.VATBps,
		Domains: map[string]fees.Schedule{
			fees.DomainPool: {TierBps: tierGrid(c.Fees.PoolBps)},
			fees.DomainP2P:  {TierBps: tierGrid(c.Fees.P2PBps), ZeroIneligible: true},
		},
	}
}

// PoolParams builds the pool pricing parameters.
func (c *Config) PoolParams() pool.Params {
	return pool.Params{
		DefaultSpreadBps:  c.Pool.SpreadBps,
		GuaranteeFundBps:  c.Pool.GuaranteeFundBps,
		MaxReservableBps:  c.Pool.MaxReservableBps,
		ResidentRASBps:    c.Tax.ResidentRASBps,
		NonResidentRASBps: c.Tax.NonResidentRASBps,
	}
}

// CreditParams builds the credit parameters shared by both models.
func (c *Config) CreditParams() (credit.Params, error) {
	p := credit.Params{
		MaxLTVBps:         c.Credit.MaxLTVBps,
		LiquidationLTVBps: c.Credit.LiquidationLTVBps,
		RateBps:           tierGrid(c.Credit.RateBps),
		MaxDurationDays:   tierGrid(c.Credit.MaxDurationDays),
		GainShareBps:      c.Credit.GainShareBps,
	}
	var ok bool
	if p.MinTierA, ok = registry.ParseTier(c.Credit.MinTierA); !ok {
		return p, fmt.Errorf("credit: unknown tier %q", c.Credit.MinTierA)
	}
	if p.MinTierB, ok = registry.ParseTier(c.Credit.MinTierB); !ok {
		return p, fmt.Errorf("credit: unknown tier %q", c.Credit.MinTierB)
	}
	ref, err := credit.ParseReference(c.Credit.ReferenceNAV)
	if err != nil {
		return p, err
	}
	loss, err := credit.ParseLossPolicy(c.Credit.LossPolicy)
	if err != nil {
		return p, err
	}
	p.Reference = ref
	p.LossPolicy = loss
	return p, nil
}

// OracleMaxAge is the staleness bound of NAV readings.
func (c *Config) OracleMaxAge() time.Duration {
	return time.Duration(c.Oracle.MaxAgeSeconds) * time.Second
}

// ReservationMaxTerm bounds reservation expiries; zero disables the bound.
func (c *Config) ReservationMaxTerm() time.Duration {
	return time.Duration(c.Reservation.MaxTermDays) * 24 * time.Hour
}

// OrderQuota is the per-maker order submission quota.
func (c *Config) OrderQuota() common.Quota {
	q := common.Quota{
		MaxRequestsPerWindow: c.OrderBook.MaxOrdersPerWindow,
		WindowSeconds:        c.OrderBook.WindowSeconds,
	}
	if amount, err := parseAmount(c.OrderBook.MaxNotionalPerWindow); err == nil {
		q.MaxNotionalPerWindow = amount
	}
	return q
}

// GovernanceOwners parses the council owner addresses.
func (c *Config) GovernanceOwners() ([]crypto.Address, error) {
	owners := make([]crypto.Address, 0, len(c.Governance.Owners))
	for _, raw := range c.Governance.Owners {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("governance: owner %q: %w", raw, err)
		}
		owners = append(owners, addr)
	}
	return owners, nil
}

// BootstrapAdmin returns the bootstrap administrator, if configured.
func (c *Config) BootstrapAdmin() (crypto.Address, bool) {
	addr, err := crypto.ParseAddress(c.Bootstrap.Admin)
	if err != nil {
		return crypto.Address{}, false
	}
	return addr, true
}

// CreditReserveSeed is the cash minted into the credit reserve at bootstrap.
func (c *Config) CreditReserveSeed() *big.Int {
	amount, err := parseAmount(c.Bootstrap.CreditReserve)
	if err != nil {
		return big.NewInt(0)
	}
	return amount
}

// NAVAmount parses the bootstrap NAV of f.
func (f Fund) NAVAmount() (*big.Int, error) {
	return parseAmount(f.NAV)
}

// TreasuryAddress parses the treasury of f.
func (f Fund) TreasuryAddress() (crypto.Address, error) {
	return crypto.ParseAddress(f.Treasury)
}
