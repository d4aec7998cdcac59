package pool

import (
	"strconv"

	"fundcore/core/types"
)

const (
	EventTypeReserveConfigured = "pool.reserve.configured"
	EventTypeLiquidityAdded    = "pool.liquidity.added"
	EventTypeBuy               = "pool.buy"
	EventTypeSell              = "pool.sell"
	EventTypeInventoryReserved = "pool.inventory.reserved"
	EventTypeInventoryReleased = "pool.inventory.released"
	EventTypeIssued            = "pool.issued"
)

func newReserveEvent(kind string, r *Reserve) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"token":             r.Token,
			"account":           r.Account.String(),
			"cash":              r.Cash.String(),
			"reservedInventory": r.ReservedInventory.String(),
			"spreadBps":         strconv.FormatUint(uint64(r.SpreadBps), 10),
			"guaranteeFundBps":  strconv.FormatUint(uint64(r.GuaranteeFundBps), 10),
		},
	}
}

// NewBuyEvent returns the canonical payload of an executed buy.
func NewBuyEvent(q *BuyQuote, r *Reserve) *types.Event {
	return &types.Event{
		Type: EventTypeBuy,
		Attributes: map[string]string{
			"token":       q.Token,
			"buyer":       q.Buyer.String(),
			"tier":        q.Tier.String(),
			"tndIn":       q.TndIn.String(),
			"priceClient": q.PriceClient.String(),
			"feeBase":     q.Fee.FeeBase.String(),
			"vat":         q.Fee.VAT.String(),
			"totalFee":    q.Fee.Total.String(),
			"skim":        q.Skim.String(),
			"netTnd":      q.NetTnd.String(),
			"minted":      q.Minted.String(),
			"reserveCash": r.Cash.String(),
		},
	}
}

// NewSellEvent returns the canonical payload of an executed sell.
func NewSellEvent(q *SellQuote, r *Reserve) *types.Event {
	return &types.Event{
		Type: EventTypeSell,
		Attributes: map[string]string{
			"token":       q.Token,
			"seller":      q.Seller.String(),
			"tier":        q.Tier.String(),
			"amount":      q.Amount.String(),
			"priceClient": q.PriceClient.String(),
			"gross":       q.Gross.String(),
			"feeBase":     q.Fee.FeeBase.String(),
			"vat":         q.Fee.VAT.String(),
			"totalFee":    q.Fee.Total.String(),
			"skim":        q.Skim.String(),
			"gain":        q.Gain.String(),
			"tax":         q.Tax.String(),
			"tndOut":      q.TndOut.String(),
			"reserveCash": r.Cash.String(),
		},
	}
}
