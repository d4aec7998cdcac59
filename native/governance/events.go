package governance

import (
	"strconv"
	"strings"

	"fundcore/core/types"
	"fundcore/crypto"
)

const (
	EventTypeInitialized      = "council.initialized"
	EventTypeSubmitted        = "council.tx.submitted"
	EventTypeConfirmed        = "council.tx.confirmed"
	EventTypeExecuted         = "council.tx.executed"
	EventTypeOwnerAdded       = "council.owner.added"
	EventTypeOwnerRemoved     = "council.owner.removed"
	EventTypeThresholdChanged = "council.threshold.changed"
)

func newCouncilEvent(kind string, c *Council) *types.Event {
	owners := make([]string, len(c.Owners))
	for i, owner := range c.Owners {
		owners[i] = owner.String()
	}
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"address":   c.Address.String(),
			"owners":    strings.Join(owners, ","),
			"threshold": strconv.FormatUint(uint64(c.Threshold), 10),
		},
	}
}

func newTxEvent(kind string, t *Transaction, owner crypto.Address) *types.Event {
	attrs := map[string]string{
		"id":            strconv.FormatUint(t.ID, 10),
		"to":            t.To,
		"value":         t.Value.String(),
		"confirmations": strconv.Itoa(len(t.Confirmations)),
		"status":        t.Status.String(),
	}
	if !owner.IsZero() {
		attrs["owner"] = owner.String()
	}
	return &types.Event{Type: kind, Attributes: attrs}
}
