package credit

import (
	"math/big"

	"fundcore/crypto"
	"fundcore/native/registry"
)

// Model selects how an advance is priced.
type Model uint8

const (
	// ModelA charges simple interest at the borrower's tier rate and allows
	// early repayment.
	ModelA Model = iota
	// ModelB charges no coupon; at maturity the borrower repays principal
	// plus a share of the collateral's appreciation.
	ModelB
)

func (m Model) String() string {
	switch m {
	case ModelA:
		return "A"
	case ModelB:
		return "B"
	default:
		return "unknown"
	}
}

// Status tracks the lifecycle of an advance.
type Status uint8

const (
	StatusRequested Status = iota
	StatusActive
	StatusClosed
	StatusLiquidated
)

func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Open reports whether the advance still holds collateral.
func (s Status) Open() bool { return s == StatusRequested || s == StatusActive }

// Advance is a collateralised cash advance against fund tokens.
type Advance struct {
	ID           uint64
	Borrower     crypto.Address
	Token        string
	Model        Model
	Tier         registry.Tier
	RateBps      uint32
	DurationDays uint32
	// Collateral is the amount still locked in escrow.
	Collateral      *big.Int
	Requested       *big.Int
	Principal       *big.Int
	PrincipalRepaid *big.Int
	// Accrued is the interest accrued up to AccruedAt; InterestPaid the
	// share of it already settled.
	Accrued      *big.Int
	InterestPaid *big.Int
	AccruedAt    uint64
	NAVAtRequest *big.Int
	NAVAtStart   *big.Int
	GainShare    *big.Int
	Shortfall    *big.Int
	RequestedAt  uint64
	StartAt      uint64
	ClosedAt     uint64
	Status       Status
}

// Clone returns a deep copy of the advance.
func (a *Advance) Clone() *Advance {
	if a == nil {
		return nil
	}
	out := *a
	out.Collateral = cloneInt(a.Collateral)
	out.Requested = cloneInt(a.Requested)
	out.Principal = cloneInt(a.Principal)
	out.PrincipalRepaid = cloneInt(a.PrincipalRepaid)
	out.Accrued = cloneInt(a.Accrued)
	out.InterestPaid = cloneInt(a.InterestPaid)
	out.NAVAtRequest = cloneInt(a.NAVAtRequest)
	out.NAVAtStart = cloneInt(a.NAVAtStart)
	out.GainShare = cloneInt(a.GainShare)
	out.Shortfall = cloneInt(a.Shortfall)
	return &out
}

func (a *Advance) ensureDefaults() {
	for _, v := range []**big.Int{
		&a.Collateral, &a.Requested, &a.Principal, &a.PrincipalRepaid, &a.Accrued,
		&a.InterestPaid, &a.NAVAtRequest, &a.NAVAtStart, &a.GainShare, &a.Shortfall,
	} {
		if *v == nil {
			*v = big.NewInt(0)
		}
	}
}

// Outstanding is the principal not yet repaid.
func (a *Advance) Outstanding() *big.Int {
	out := new(big.Int).Sub(a.Principal, a.PrincipalRepaid)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Maturity is the unix time at which the advance term ends. Zero until the
// advance is activated.
func (a *Advance) Maturity() uint64 {
	if a.StartAt == 0 {
		return 0
	}
	return a.StartAt + uint64(a.DurationDays)*secondsPerDay
}

// Repayment summarises a repayment.
type Repayment struct {
	Interest  *big.Int
	Principal *big.Int
	GainShare *big.Int
	Released  *big.Int
	Closed    bool
}

// Liquidation summarises a liquidation.
type Liquidation struct {
	Debt      *big.Int
	Seized    *big.Int
	Released  *big.Int
	Recovered *big.Int
	Shortfall *big.Int
	Covered   *big.Int
}

const secondsPerDay = 24 * 60 * 60

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
