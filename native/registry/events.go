package registry

import (
	"strconv"

	"fundcore/core/types"
)

const (
	EventTypeProfileUpdated = "registry.profile.updated"
)

// NewProfileUpdatedEvent returns the canonical payload emitted when a profile
// field changes.
func NewProfileUpdatedEvent(p *Profile, field string) *types.Event {
	return &types.Event{
		Type: EventTypeProfileUpdated,
		Attributes: map[string]string{
			"address":      p.Address.String(),
			"field":        field,
			"kycLevel":     strconv.FormatUint(uint64(p.KYCLevel), 10),
			"resident":     strconv.FormatBool(p.Resident),
			"score":        strconv.FormatUint(uint64(p.Score), 10),
			"tier":         p.Tier().String(),
			"feeLevel":     p.FeeLevel().String(),
			"subscription": strconv.FormatBool(p.SubscriptionActive),
		},
	}
}
