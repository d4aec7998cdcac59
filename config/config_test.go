package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fundcore/crypto"
	"fundcore/native/credit"
	"fundcore/native/fees"
	"fundcore/native/registry"
)

var (
	ownerOne = crypto.Address{0x01}
	ownerTwo = crypto.Address{0x02}
	treasury = crypto.Address{0x7E}
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.Breaker.DefaultThresholdBps != 2_000 || cfg.Fees.VATBps != 1_900 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Pool.SpreadBps != cfg.Pool.SpreadBps || again.Audit.DSN != cfg.Audit.DSN {
		t.Fatalf("round trip mismatch")
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `DataDir = "/var/lib/fund"
Environment = "prod"

[Pool]
SpreadBps = 30
MaxReservableBps = 1500

[Credit]
MinTierA = "gold"
LossPolicy = "borrower"

[Governance]
Owners = ["`+ownerOne.String()+`", "`+ownerTwo.String()+`"]
Threshold = 2

[Pauses]
OrderBook = true

[[Bootstrap.Funds]]
ID = "alpha"
Token = "FND"
NAV = "12550000000"
Treasury = "`+treasury.Hex()+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/fund" || cfg.Pool.SpreadBps != 30 || cfg.Pool.MaxReservableBps != 1500 {
		t.Fatalf("pool: %+v", cfg.Pool)
	}
	params, err := cfg.CreditParams()
	if err != nil {
		t.Fatalf("credit params: %v", err)
	}
	if params.MinTierA != registry.TierGold || params.LossPolicy != credit.LossBorrower || params.MaxLTVBps != 7_000 {
		t.Fatalf("credit: %+v", params)
	}
	owners, err := cfg.GovernanceOwners()
	if err != nil || len(owners) != 2 || owners[0] != ownerOne {
		t.Fatalf("owners: %v %v", owners, err)
	}
	if !cfg.Pauses.IsPaused("orderbook") || cfg.Pauses.IsPaused("pool") {
		t.Fatalf("pauses: %+v", cfg.Pauses)
	}
	if len(cfg.Bootstrap.Funds) != 1 {
		t.Fatalf("funds: %+v", cfg.Bootstrap.Funds)
	}
	nav, err := cfg.Bootstrap.Funds[0].NAVAmount()
	if err != nil || nav.Int64() != 12_550_000_000 {
		t.Fatalf("nav: %v %v", nav, err)
	}
	addr, err := cfg.Bootstrap.Funds[0].TreasuryAddress()
	if err != nil || addr != treasury {
		t.Fatalf("treasury: %v %v", addr, err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "ListenAddress = \":6001\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ListenAddress") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"spread", func(c *Config) { c.Pool.SpreadBps = 10_000 }, "pool"},
		{"fee grid", func(c *Config) { c.Fees.P2PBps = []uint32{1, 2} }, "fees"},
		{"vat", func(c *Config) { c.Fees.VATBps = 10_001 }, "vat"},
		{"tier", func(c *Config) { c.Credit.MinTierB = "mythril" }, "tier"},
		{"ltv", func(c *Config) { c.Credit.LiquidationLTVBps = 6_000 }, "liquidation"},
		{"threshold", func(c *Config) {
			c.Governance.Owners = []string{ownerOne.String()}
			c.Governance.Threshold = 2
		}, "governance"},
		{"owner", func(c *Config) { c.Governance.Owners = []string{"nope"} }, "owner"},
		{"fund nav", func(c *Config) {
			c.Bootstrap.Funds = []Fund{{ID: "a", Token: "A", NAV: "-1", Treasury: treasury.Hex()}}
		}, "NAV"},
		{"duplicate fund", func(c *Config) {
			f := Fund{ID: "a", Token: "A", NAV: "1", Treasury: treasury.Hex()}
			c.Bootstrap.Funds = []Fund{f, f}
		}, "duplicate"},
		{"dsn", func(c *Config) { c.Audit.DSN = "mysql://x" }, "audit"},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestFeePolicyMirrorsGrid(t *testing.T) {
	cfg := Default()
	policy := cfg.FeePolicy()
	if _, err := policy.Quote(fees.DomainP2P, registry.TierBronze, nil); err == nil {
		t.Fatalf("bronze must be ineligible for p2p")
	}
	s, err := policy.Schedule(fees.DomainPool)
	if err != nil || s.TierBps != fees.DefaultPoolSchedule().TierBps {
		t.Fatalf("pool schedule: %+v %v", s, err)
	}
	if q := cfg.OrderQuota(); q.MaxRequestsPerWindow != 60 || q.MaxNotionalPerWindow != nil {
		t.Fatalf("quota: %+v", q)
	}
}
