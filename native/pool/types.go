package pool

import (
	"math/big"

	"fundcore/crypto"
	"fundcore/native/fees"
	"fundcore/native/registry"
)

// Component is the capability-table name other engines use to reach the
// pool's privileged inventory entry points.
const Component = "pool"

// Address is the identity the pool uses when calling other components.
var Address = crypto.ModuleAddress(Component)

// MaxRatio stands in for an unbounded reserve ratio (no outstanding supply).
var MaxRatio = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Reserve is the pooled cash and inventory of one fund token.
type Reserve struct {
	Token             string
	Account           crypto.Address
	Cash              *big.Int
	ReservedInventory *big.Int
	SpreadBps         uint32
	GuaranteeFundBps  uint32
	GuaranteeFund     crypto.Address
	Treasury          crypto.Address
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	out := *r
	out.Cash = cloneInt(r.Cash)
	out.ReservedInventory = cloneInt(r.ReservedInventory)
	return &out
}

func (r *Reserve) ensureDefaults() {
	if r.Cash == nil {
		r.Cash = big.NewInt(0)
	}
	if r.ReservedInventory == nil {
		r.ReservedInventory = big.NewInt(0)
	}
}

// ReserveConfig carries the operator-chosen parameters of a reserve.
type ReserveConfig struct {
	Account          crypto.Address
	Treasury         crypto.Address
	GuaranteeFund    crypto.Address
	SpreadBps        uint32
	GuaranteeFundBps uint32
}

// Position is a holder's price-reference average (PRM): the weighted average
// acquisition price of the quantity still held.
type Position struct {
	AvgPrice *big.Int
	Quantity *big.Int
}

// Params are the engine-wide pricing parameters.
type Params struct {
	DefaultSpreadBps  uint32
	GuaranteeFundBps  uint32
	MaxReservableBps  uint32
	ResidentRASBps    uint32
	NonResidentRASBps uint32
}

// DefaultParams returns the launch parameters.
func DefaultParams() Params {
	return Params{
		DefaultSpreadBps:  20,
		GuaranteeFundBps:  0,
		MaxReservableBps:  2_000,
		ResidentRASBps:    1_000,
		NonResidentRASBps: 1_500,
	}
}

// BuyQuote is the priced outcome of a pool buy.
type BuyQuote struct {
	Token       string
	Buyer       crypto.Address
	Tier        registry.Tier
	TndIn       *big.Int
	NAV         *big.Int
	PriceClient *big.Int
	Fee         fees.Breakdown
	Skim        *big.Int
	NetTnd      *big.Int
	Minted      *big.Int
}

// SellQuote is the priced outcome of a pool sell.
type SellQuote struct {
	Token       string
	Seller      crypto.Address
	Tier        registry.Tier
	Amount      *big.Int
	NAV         *big.Int
	PriceClient *big.Int
	Gross       *big.Int
	Fee         fees.Breakdown
	Skim        *big.Int
	PRM         *big.Int
	Gain        *big.Int
	RASBps      uint32
	Tax         *big.Int
	TndOut      *big.Int
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
