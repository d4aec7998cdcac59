package events

import (
	"encoding/json"
	"strconv"

	"fundcore/core/types"
	"fundcore/crypto"
)

// TypeOperation is emitted once for every committed mutating call.
const TypeOperation = "core.operation"

// Operation is the audit payload of a committed mutating call: which entity
// changed, what kind of call changed it, and the resulting state.
type Operation struct {
	Kind   string
	Entity string
	Caller crypto.Address
	State  interface{}
	At     uint64
	// Events lists the domain event types the call produced.
	Events []string
}

// EventType implements Event.
func (Operation) EventType() string { return TypeOperation }

// StateJSON renders the resulting state for persistence.
func (o Operation) StateJSON() []byte {
	if o.State == nil {
		return []byte("null")
	}
	data, err := json.Marshal(o.State)
	if err != nil {
		return []byte("null")
	}
	return data
}

// Event renders the canonical attribute form.
func (o Operation) Event() *types.Event {
	caller := ""
	if !o.Caller.IsZero() {
		caller = o.Caller.String()
	}
	return &types.Event{
		Type: TypeOperation,
		Attributes: map[string]string{
			"kind":   o.Kind,
			"entity": o.Entity,
			"caller": caller,
			"state":  string(o.StateJSON()),
			"at":     strconv.FormatUint(o.At, 10),
		},
	}
}
