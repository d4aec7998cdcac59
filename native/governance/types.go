package governance

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"fundcore/crypto"
)

// Status tracks a council transaction. Executed is terminal.
type Status uint8

const (
	StatusPending Status = iota
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Council is the owner set and confirmation quorum.
type Council struct {
	Address   crypto.Address
	Owners    []crypto.Address
	Threshold uint32
}

// Clone returns a deep copy of the council.
func (c *Council) Clone() *Council {
	if c == nil {
		return nil
	}
	out := *c
	out.Owners = append([]crypto.Address(nil), c.Owners...)
	return &out
}

// IsOwner reports whether addr sits on the council.
func (c *Council) IsOwner(addr crypto.Address) bool {
	if c == nil {
		return false
	}
	for _, owner := range c.Owners {
		if owner == addr {
			return true
		}
	}
	return false
}

func validateCouncil(owners []crypto.Address, threshold uint32) error {
	if len(owners) == 0 {
		return fmt.Errorf("%w: no owners", ErrInvalidOwners)
	}
	seen := make(map[crypto.Address]struct{}, len(owners))
	for _, owner := range owners {
		if owner.IsZero() {
			return fmt.Errorf("%w: zero address", ErrInvalidOwners)
		}
		if _, dup := seen[owner]; dup {
			return fmt.Errorf("%w: duplicate %s", ErrInvalidOwners, owner)
		}
		seen[owner] = struct{}{}
	}
	if threshold == 0 || int(threshold) > len(owners) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(owners))
	}
	return nil
}

// Transaction is a call the council may execute once enough owners have
// confirmed it. To names the method in the dispatch table; Data carries its
// JSON arguments.
type Transaction struct {
	ID            uint64
	Submitter     crypto.Address
	To            string
	Value         *big.Int
	Data          []byte
	Confirmations []crypto.Address
	Status        Status
	SubmittedAt   uint64
	ExecutedAt    uint64
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	if t.Value != nil {
		out.Value = new(big.Int).Set(t.Value)
	} else {
		out.Value = big.NewInt(0)
	}
	out.Data = append([]byte(nil), t.Data...)
	out.Confirmations = append([]crypto.Address(nil), t.Confirmations...)
	return &out
}

// ConfirmedBy reports whether owner confirmed the transaction.
func (t *Transaction) ConfirmedBy(owner crypto.Address) bool {
	for _, c := range t.Confirmations {
		if c == owner {
			return true
		}
	}
	return false
}

// Executed reports whether the transaction has run.
func (t *Transaction) Executed() bool { return t.Status == StatusExecuted }

// Council self-management methods.
const (
	MethodAddOwner        = "council.addOwner"
	MethodRemoveOwner     = "council.removeOwner"
	MethodChangeThreshold = "council.changeThreshold"
)

func isCouncilMethod(method string) bool {
	return strings.HasPrefix(method, "council.")
}

// OwnerArgs is the payload of council.addOwner and council.removeOwner.
type OwnerArgs struct {
	Owner string `json:"owner"`
}

// ThresholdArgs is the payload of council.changeThreshold.
type ThresholdArgs struct {
	Threshold uint32 `json:"threshold"`
}

// EncodeArgs marshals a call payload.
func EncodeArgs(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
