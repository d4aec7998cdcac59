package credit

import (
	"strconv"

	"fundcore/core/types"
)

const (
	EventTypeRequested  = "credit.advance.requested"
	EventTypeActivated  = "credit.advance.activated"
	EventTypeRepaid     = "credit.advance.repaid"
	EventTypeClosed     = "credit.advance.closed"
	EventTypeCancelled  = "credit.advance.cancelled"
	EventTypeLiquidated = "credit.advance.liquidated"
)

func (e *Engine) advanceEvent(kind string, a *Advance) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"engine":     e.name,
			"id":         strconv.FormatUint(a.ID, 10),
			"borrower":   a.Borrower.String(),
			"token":      a.Token,
			"model":      a.Model.String(),
			"collateral": a.Collateral.String(),
			"principal":  a.Principal.String(),
			"repaid":     a.PrincipalRepaid.String(),
			"status":     a.Status.String(),
		},
	}
}
