package escrow

import (
	"math/big"

	"fundcore/core/types"
	"fundcore/crypto"
)

const (
	EventTypeLocked   = "escrow.locked"
	EventTypeUnlocked = "escrow.unlocked"
	EventTypeSeized   = "escrow.seized"
)

// NewLockedEvent returns the canonical payload for a lock increase.
func NewLockedEvent(l *Lock, delta *big.Int) *types.Event {
	return newLockEvent(EventTypeLocked, l, delta, crypto.Address{})
}

// NewUnlockedEvent returns the canonical payload for a release.
func NewUnlockedEvent(l *Lock, delta *big.Int) *types.Event {
	return newLockEvent(EventTypeUnlocked, l, delta, crypto.Address{})
}

// NewSeizedEvent returns the canonical payload for locked tokens transferred
// to a recipient.
func NewSeizedEvent(l *Lock, delta *big.Int, to crypto.Address) *types.Event {
	return newLockEvent(EventTypeSeized, l, delta, to)
}

func newLockEvent(kind string, l *Lock, delta *big.Int, to crypto.Address) *types.Event {
	attrs := map[string]string{
		"caller": l.Caller.String(),
		"holder": l.Holder.String(),
		"token":  l.Token,
		"amount": delta.String(),
		"locked": l.Amount.String(),
	}
	if !to.IsZero() {
		attrs["to"] = to.String()
	}
	return &types.Event{Type: kind, Attributes: attrs}
}
