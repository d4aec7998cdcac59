package config

import "strings"

// Pool holds the pricing defaults of new reserves.
type Pool struct {
	SpreadBps        uint32
	GuaranteeFundBps uint32
	MaxReservableBps uint32
}

// Fees lists the per-tier rates, Bronze to Diamond.
type Fees struct {
	PoolBps []uint32
	P2PBps  []uint32
	VATBps  uint32
}

// Tax is the withholding applied to realized gains.
type Tax struct {
	ResidentRASBps    uint32
	NonResidentRASBps uint32
}

type Oracle struct {
	MaxAgeSeconds uint64
}

type Breaker struct {
	DefaultThresholdBps uint32
}

// Credit configures both credit engines.
type Credit struct {
	MaxLTVBps         uint32
	LiquidationLTVBps uint32
	RateBps           []uint32
	MaxDurationDays   []uint32
	MinTierA          string
	MinTierB          string
	GainShareBps      uint32
	ReferenceNAV      string
	LossPolicy        string
}

type Reservation struct {
	MaxTermDays uint32
}

// OrderBook rate limits order submission per maker.
type OrderBook struct {
	MaxOrdersPerWindow   uint32
	MaxNotionalPerWindow string
	WindowSeconds        uint32
}

// Governance seeds the council.
type Governance struct {
	Owners    []string
	Threshold uint32
}

// Bootstrap is applied once, on an empty ledger.
type Bootstrap struct {
	Admin         string
	CreditReserve string
	Funds         []Fund
}

// Fund describes one fund created at bootstrap. NAV is an integer with
// eight implied decimals.
type Fund struct {
	ID       string
	Name     string
	Token    string
	NAV      string
	Treasury string
}

// Pauses switches modules off. Paused modules reject mutating calls.
type Pauses struct {
	Pool        bool
	Reservation bool
	CreditA     bool
	CreditB     bool
	OrderBook   bool
	Bank        bool
}

// IsPaused reports whether module is paused.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "pool":
		return p.Pool
	case "reservation":
		return p.Reservation
	case "credit-a":
		return p.CreditA
	case "credit-b":
		return p.CreditB
	case "orderbook":
		return p.OrderBook
	case "bank":
		return p.Bank
	default:
		return false
	}
}

// Audit selects the audit store. DSN is sqlite://<path> or a postgres URL.
type Audit struct {
	DSN string
}

type Backoffice struct {
	ListenAddress      string
	RateLimitPerSecond float64
	RateBurst          int
	// ConfigFile optionally points at a YAML file overriding this section.
	ConfigFile string
}

// Log configures file output. An empty File logs to stdout only.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Telemetry configures the OTLP/HTTP exporters. Both signals are off unless
// enabled.
type Telemetry struct {
	Endpoint string
	Insecure bool
	Headers  string
	Traces   bool
	Metrics  bool
	// SampleRatio is the trace sampling ratio in (0, 1); other values
	// sample every trace.
	SampleRatio float64
}
