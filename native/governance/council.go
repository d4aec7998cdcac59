package governance

import (
	"encoding/json"
	"fmt"

	"fundcore/crypto"
)

func (e *Engine) dispatchCouncil(method string, data []byte) error {
	switch method {
	case MethodAddOwner, MethodRemoveOwner:
		var args OwnerArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		owner, err := crypto.ParseAddress(args.Owner)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if method == MethodAddOwner {
			return e.AddOwner(Address, owner)
		}
		return e.RemoveOwner(Address, owner)
	case MethodChangeThreshold:
		var args ThresholdArgs
		if err := json.Unmarshal(data, &args); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return e.ChangeThreshold(Address, args.Threshold)
	default:
		return fmt.Errorf("%w: unknown council method %q", ErrInvalidMethod, method)
	}
}

func (e *Engine) selfCall(caller crypto.Address) (*Council, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if caller != Address {
		return nil, ErrNotCouncil
	}
	return e.Council()
}

// AddOwner seats owner. Only the council itself may call it.
func (e *Engine) AddOwner(caller, owner crypto.Address) error {
	c, err := e.selfCall(caller)
	if err != nil {
		return err
	}
	if owner.IsZero() {
		return fmt.Errorf("%w: zero address", ErrInvalidOwners)
	}
	if c.IsOwner(owner) {
		return fmt.Errorf("%w: %s", ErrOwnerExists, owner)
	}
	c.Owners = append(c.Owners, owner)
	if err := e.putCouncil(c); err != nil {
		return err
	}
	e.emit(newCouncilEvent(EventTypeOwnerAdded, c))
	return nil
}

// RemoveOwner unseats owner. The threshold must stay reachable.
func (e *Engine) RemoveOwner(caller, owner crypto.Address) error {
	c, err := e.selfCall(caller)
	if err != nil {
		return err
	}
	if !c.IsOwner(owner) {
		return fmt.Errorf("%w: %s", ErrUnknownOwner, owner)
	}
	remaining := make([]crypto.Address, 0, len(c.Owners)-1)
	for _, o := range c.Owners {
		if o != owner {
			remaining = append(remaining, o)
		}
	}
	if err := validateCouncil(remaining, c.Threshold); err != nil {
		return err
	}
	c.Owners = remaining
	if err := e.putCouncil(c); err != nil {
		return err
	}
	e.emit(newCouncilEvent(EventTypeOwnerRemoved, c))
	return nil
}

// ChangeThreshold sets the confirmation quorum.
func (e *Engine) ChangeThreshold(caller crypto.Address, threshold uint32) error {
	c, err := e.selfCall(caller)
	if err != nil {
		return err
	}
	if err := validateCouncil(c.Owners, threshold); err != nil {
		return err
	}
	if c.Threshold == threshold {
		return nil
	}
	c.Threshold = threshold
	if err := e.putCouncil(c); err != nil {
		return err
	}
	e.emit(newCouncilEvent(EventTypeThresholdChanged, c))
	return nil
}
