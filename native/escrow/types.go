package escrow

import (
	"math/big"

	"fundcore/crypto"
)

// Component is the capability-table name privileged escrow callers are
// registered under.
const Component = "escrow"

// Lock is the amount of token one component holds locked for a holder.
type Lock struct {
	Caller    crypto.Address
	Holder    crypto.Address
	Token     string
	Amount    *big.Int
	UpdatedAt uint64
}

// Clone returns a deep copy of the lock.
func (l *Lock) Clone() *Lock {
	if l == nil {
		return nil
	}
	out := *l
	if l.Amount != nil {
		out.Amount = new(big.Int).Set(l.Amount)
	} else {
		out.Amount = big.NewInt(0)
	}
	return &out
}
