package reservation

import (
	"strconv"

	"fundcore/core/types"
)

const (
	EventTypeCreated   = "reservation.created"
	EventTypeExercised = "reservation.exercised"
	EventTypeCancelled = "reservation.cancelled"
	EventTypeExpired   = "reservation.expired"
)

func newEvent(kind string, r *Reservation) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"id":      r.ID,
			"holder":  r.Holder.String(),
			"token":   r.Token,
			"amount":  r.Amount.String(),
			"strike":  r.Strike.String(),
			"deposit": r.Deposit.String(),
			"expiry":  strconv.FormatUint(r.Expiry, 10),
			"status":  r.Status.String(),
		},
	}
}
