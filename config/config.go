package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the process configuration of fundd.
type Config struct {
	DataDir     string      `toml:"DataDir"`
	Environment string      `toml:"Environment"`
	Pool        Pool        `toml:"Pool"`
	Fees        Fees        `toml:"Fees"`
	Tax         Tax         `toml:"Tax"`
	Oracle      Oracle      `toml:"Oracle"`
	Breaker     Breaker     `toml:"Breaker"`
	Credit      Credit      `toml:"Credit"`
	Reservation Reservation `toml:"Reservation"`
	OrderBook   OrderBook   `toml:"OrderBook"`
	Governance  Governance  `toml:"Governance"`
	Bootstrap   Bootstrap   `toml:"Bootstrap"`
	Pauses      Pauses      `toml:"Pauses"`
	Audit       Audit       `toml:"Audit"`
	Backoffice  Backoffice  `toml:"Backoffice"`
	Log         Log         `toml:"Log"`
	Telemetry   Telemetry   `toml:"Telemetry"`
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the launch configuration.
func Default() *Config {
	return &Config{
		DataDir:     "./fund-data",
		Environment: "dev",
		Pool: Pool{
			SpreadBps:        20,
			GuaranteeFundBps: 0,
			MaxReservableBps: 2_000,
		},
		Fees: Fees{
			PoolBps: []uint32{100, 90, 80, 65, 50},
			P2PBps:  []uint32{0, 75, 65, 55, 45},
			VATBps:  1_900,
		},
		Tax: Tax{
			ResidentRASBps:    1_000,
			NonResidentRASBps: 1_500,
		},
		Oracle:  Oracle{MaxAgeSeconds: 86_400},
		Breaker: Breaker{DefaultThresholdBps: 2_000},
		Credit: Credit{
			MaxLTVBps:         7_000,
			LiquidationLTVBps: 8_500,
			RateBps:           []uint32{0, 500, 450, 350, 300},
			MaxDurationDays:   []uint32{0, 90, 120, 150, 365},
			MinTierA:          "silver",
			MinTierB:          "platinum",
			GainShareBps:      2_000,
			ReferenceNAV:      "activation",
			LossPolicy:        "guarantee",
		},
		Reservation: Reservation{MaxTermDays: 30},
		OrderBook: OrderBook{
			MaxOrdersPerWindow: 60,
			WindowSeconds:      60,
		},
		Audit: Audit{DSN: "sqlite://audit.db"},
		Backoffice: Backoffice{
			ListenAddress:      "127.0.0.1:8088",
			RateLimitPerSecond: 20,
			RateBurst:          40,
		},
		Log:       Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = def.Environment
	}
	if len(c.Fees.PoolBps) == 0 {
		c.Fees.PoolBps = def.Fees.PoolBps
	}
	if len(c.Fees.P2PBps) == 0 {
		c.Fees.P2PBps = def.Fees.P2PBps
	}
	if len(c.Credit.RateBps) == 0 {
		c.Credit.RateBps = def.Credit.RateBps
	}
	if len(c.Credit.MaxDurationDays) == 0 {
		c.Credit.MaxDurationDays = def.Credit.MaxDurationDays
	}
	if strings.TrimSpace(c.Audit.DSN) == "" {
		c.Audit.DSN = def.Audit.DSN
	}
	if strings.TrimSpace(c.Backoffice.ListenAddress) == "" {
		c.Backoffice.ListenAddress = def.Backoffice.ListenAddress
	}
	if c.Governance.Owners == nil {
		c.Governance.Owners = []string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
