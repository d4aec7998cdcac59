package orderbook

import (
	"strconv"

	"fundcore/core/types"
)

const (
	EventTypeSubmitted = "orderbook.order.submitted"
	EventTypeCancelled = "orderbook.order.cancelled"
	EventTypeExpired   = "orderbook.order.expired"
	EventTypeTrade     = "orderbook.trade"
	EventTypeFallback  = "orderbook.fallback"
)

func orderEvent(kind string, o *Order) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"id":       o.ID,
			"maker":    o.Maker.String(),
			"side":     o.Side.String(),
			"token":    o.Token,
			"amount":   o.Amount.String(),
			"price":    o.Price.String(),
			"filled":   o.Filled.String(),
			"deadline": strconv.FormatUint(o.Deadline, 10),
			"status":   o.Status.String(),
		},
	}
}

func tradeEvent(t *Trade) *types.Event {
	return &types.Event{
		Type: EventTypeTrade,
		Attributes: map[string]string{
			"token":     t.Token,
			"buyOrder":  t.BuyOrder,
			"sellOrder": t.SellOrder,
			"buyer":     t.Buyer.String(),
			"seller":    t.Seller.String(),
			"amount":    t.Amount.String(),
			"price":     t.Price.String(),
			"notional":  t.Notional.String(),
			"fee":       t.Fee.Total.String(),
		},
	}
}

func fallbackEvent(o *Order) *types.Event {
	evt := orderEvent(EventTypeFallback, o)
	evt.Attributes["success"] = strconv.FormatBool(o.FallbackSuccess)
	if o.FallbackError != "" {
		evt.Attributes["error"] = o.FallbackError
	}
	return evt
}
