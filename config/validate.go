package config

import (
	"fmt"
	"strings"

	"fundcore/crypto"
	"fundcore/native/registry"
)

const maxBps = 10_000

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Pool.SpreadBps >= maxBps || c.Pool.GuaranteeFundBps > maxBps || c.Pool.MaxReservableBps > maxBps {
		return fmt.Errorf("pool: bps out of range")
	}
	if len(c.Fees.PoolBps) != registry.TierCount || len(c.Fees.P2PBps) != registry.TierCount {
		return fmt.Errorf("fees: expected %d tier rates", registry.TierCount)
	}
	for _, bps := range append(append([]uint32(nil), c.Fees.PoolBps...), c.Fees.P2PBps...) {
		if bps > maxBps {
			return fmt.Errorf("fees: rate %d out of range", bps)
		}
	}
	if c.Fees.VATBps > maxBps {
		return fmt.Errorf("fees: vat %d out of range", c.Fees.VATBps)
	}
	if c.Tax.ResidentRASBps > maxBps || c.Tax.NonResidentRASBps > maxBps {
		return fmt.Errorf("tax: bps out of range")
	}
	if c.Breaker.DefaultThresholdBps > maxBps {
		return fmt.Errorf("breaker: threshold %d out of range", c.Breaker.DefaultThresholdBps)
	}
	if len(c.Credit.RateBps) != registry.TierCount || len(c.Credit.MaxDurationDays) != registry.TierCount {
		return fmt.Errorf("credit: expected %d tier rates and durations", registry.TierCount)
	}
	params, err := c.CreditParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if c.OrderBook.MaxNotionalPerWindow != "" {
		if _, err := parseAmount(c.OrderBook.MaxNotionalPerWindow); err != nil {
			return fmt.Errorf("orderbook: MaxNotionalPerWindow: %w", err)
		}
	}
	owners, err := c.GovernanceOwners()
	if err != nil {
		return err
	}
	if len(owners) > 0 && (c.Governance.Threshold == 0 || int(c.Governance.Threshold) > len(owners)) {
		return fmt.Errorf("governance: threshold %d of %d owners", c.Governance.Threshold, len(owners))
	}
	if admin := strings.TrimSpace(c.Bootstrap.Admin); admin != "" {
		if _, err := crypto.ParseAddress(admin); err != nil {
			return fmt.Errorf("bootstrap: admin: %w", err)
		}
	}
	if c.Bootstrap.CreditReserve != "" {
		if _, err := parseAmount(c.Bootstrap.CreditReserve); err != nil {
			return fmt.Errorf("bootstrap: CreditReserve: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(c.Bootstrap.Funds))
	for _, f := range c.Bootstrap.Funds {
		id := strings.ToLower(strings.TrimSpace(f.ID))
		if id == "" || strings.TrimSpace(f.Token) == "" {
			return fmt.Errorf("bootstrap: fund needs an id and a token")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("bootstrap: duplicate fund %s", id)
		}
		seen[id] = struct{}{}
		if _, err := parseAmount(f.NAV); err != nil {
			return fmt.Errorf("bootstrap: fund %s NAV: %w", id, err)
		}
		if _, err := crypto.ParseAddress(f.Treasury); err != nil {
			return fmt.Errorf("bootstrap: fund %s treasury: %w", id, err)
		}
	}
	dsn := strings.TrimSpace(c.Audit.DSN)
	if !strings.HasPrefix(dsn, "sqlite://") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("audit: unsupported dsn %q", dsn)
	}
	if c.Backoffice.RateLimitPerSecond < 0 || c.Backoffice.RateBurst < 0 {
		return fmt.Errorf("backoffice: negative rate limit")
	}
	return nil
}
