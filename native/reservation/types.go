package reservation

import (
	"math/big"

	"fundcore/crypto"
)

// Status tracks the lifecycle of a reservation.
type Status uint8

const (
	StatusActive Status = iota
	StatusExercised
	StatusCancelled
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExercised:
		return "exercised"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s != StatusActive }

// Reservation is a forward purchase of Amount tokens at Strike, backed by a
// cash Deposit held in the reservation vault until exercise, cancellation or
// expiry.
type Reservation struct {
	ID        string
	Holder    crypto.Address
	Token     string
	Amount    *big.Int
	Strike    *big.Int
	Deposit   *big.Int
	CreatedAt uint64
	Expiry    uint64
	ClosedAt  uint64
	Status    Status
}

// Clone returns a deep copy of the reservation.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	out := *r
	out.Amount = cloneInt(r.Amount)
	out.Strike = cloneInt(r.Strike)
	out.Deposit = cloneInt(r.Deposit)
	return &out
}

// ExpiredAt reports whether an active reservation has lapsed at now.
func (r *Reservation) ExpiredAt(now uint64) bool {
	return r.Status == StatusActive && now >= r.Expiry
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
