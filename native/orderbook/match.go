package orderbook

import (
	"fmt"
	"math/big"

	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/fees"
)

// crosses reports whether a buy limit meets a sell limit.
func crosses(buy, sell *Order) bool {
	return buy.Price.Cmp(sell.Price) >= 0
}

// match fills taker against resting orders in time priority, each fill at
// the resting order's price.
func (e *Engine) match(taker *Order, now uint64) ([]*Trade, error) {
	resting, err := e.openOrders(taker.Token)
	if err != nil {
		return nil, err
	}
	var trades []*Trade
	for _, maker := range resting {
		if taker.Remaining().Sign() == 0 {
			break
		}
		if maker.Side != taker.Side.Opposite() || maker.Maker == taker.Maker || !maker.Live(now) {
			continue
		}
		buy, sell := taker, maker
		if taker.Side == SideSell {
			buy, sell = maker, taker
		}
		if !crosses(buy, sell) {
			continue
		}
		qty := common.Min(taker.Remaining(), maker.Remaining())
		if common.Value(qty, maker.Price).Sign() == 0 {
			continue
		}
		trade, err := e.execute(buy, sell, qty, maker.Price, now)
		if err != nil {
			return nil, err
		}
		if err := e.store(maker); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// execute settles qty between buy and sell at price. It moves the tokens
// seller to buyer out of the sell lock, releases the matching share of the
// buy lock, pays notional to the seller and the buyer's P2P fee to the
// token's treasury. Positions are updated on both sides. The caller
// persists the orders.
func (e *Engine) execute(buy, sell *Order, qty, price *big.Int, now uint64) (*Trade, error) {
	reserve, err := e.pool.Reserve(buy.Token)
	if err != nil {
		return nil, err
	}
	tier, err := e.registry.FeeLevel(buy.Maker)
	if err != nil {
		return nil, err
	}
	notional := common.Value(qty, price)
	fee, err := e.policy.Quote(fees.DomainP2P, tier, notional)
	if err != nil {
		return nil, err
	}

	release := new(big.Int).Set(buy.Locked)
	if qty.Cmp(buy.Remaining()) < 0 {
		share, err := e.buyLock(qty, buy.Price, tier)
		if err != nil {
			return nil, err
		}
		release = common.Min(share, buy.Locked)
	}
	cost := new(big.Int).Add(notional, fee.Total)
	if release.Cmp(cost) < 0 {
		release = common.Min(cost, buy.Locked)
	}
	if release.Sign() > 0 {
		if err := e.escrow.Unlock(Address, buy.Maker, common.Cash, release); err != nil {
			return nil, err
		}
		buy.Locked.Sub(buy.Locked, release)
	}
	if err := e.escrow.Seize(Address, sell.Maker, sell.Token, qty, buy.Maker); err != nil {
		return nil, err
	}
	sell.Locked.Sub(sell.Locked, qty)
	if err := e.bank.Transfer(buy.Maker, sell.Maker, common.Cash, notional); err != nil {
		return nil, err
	}
	if _, err := e.router.CollectFee(Address, buy.Maker, reserve.Treasury, reserve.GuaranteeFund, fees.DomainP2P, notional, fee, reserve.GuaranteeFundBps); err != nil {
		return nil, err
	}
	if err := e.pool.RecordAcquisition(Address, buy.Maker, buy.Token, qty, price); err != nil {
		return nil, err
	}
	if err := e.pool.RecordDisposal(Address, sell.Maker, sell.Token, qty); err != nil {
		return nil, err
	}

	fill(buy, qty)
	fill(sell, qty)
	trade := &Trade{
		Token:     buy.Token,
		BuyOrder:  buy.ID,
		SellOrder: sell.ID,
		Buyer:     buy.Maker,
		Seller:    sell.Maker,
		Amount:    new(big.Int).Set(qty),
		Price:     new(big.Int).Set(price),
		Notional:  notional,
		Fee:       fee,
		At:        now,
	}
	e.emit(tradeEvent(trade))
	return trade, nil
}

// fill books qty against o. A partial fill leaves the remainder pending.
func fill(o *Order, qty *big.Int) {
	o.Filled.Add(o.Filled, qty)
	if o.Remaining().Sign() == 0 {
		o.Status = StatusSettled
	}
}

// SettleTrade executes amount between two crossing open orders at the
// earlier order's price. Operators use it to settle outside the automatic
// matching pass.
func (e *Engine) SettleTrade(caller crypto.Address, buyID, sellID string, amount *big.Int) (*Trade, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.Require(e.state, common.OpSettleTrade, caller); err != nil {
		return nil, err
	}
	if !common.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	buy, err := e.load(buyID)
	if err != nil {
		return nil, err
	}
	sell, err := e.load(sellID)
	if err != nil {
		return nil, err
	}
	if buy.Side != SideBuy || sell.Side != SideSell || buy.Token != sell.Token {
		return nil, ErrSideMismatch
	}
	if buy.Maker == sell.Maker {
		return nil, fmt.Errorf("%w: self trade", ErrSideMismatch)
	}
	now := e.now()
	for _, o := range []*Order{buy, sell} {
		if !o.Status.Open() {
			return nil, fmt.Errorf("%w: %s", ErrOrderClosed, o.ID)
		}
		if now > o.Deadline {
			return nil, fmt.Errorf("%w: %s", ErrOrderExpired, o.ID)
		}
		if amount.Cmp(o.Remaining()) > 0 {
			return nil, fmt.Errorf("%w: %s exceeds remaining %s", ErrInvalidAmount, amount, o.Remaining())
		}
	}
	if !crosses(buy, sell) {
		return nil, ErrPriceMismatch
	}
	price := buy.Price
	if sell.Seq < buy.Seq {
		price = sell.Price
	}
	if common.Value(amount, price).Sign() == 0 {
		return nil, ErrNotionalTooSmall
	}
	trade, err := e.execute(buy, sell, amount, price, now)
	if err != nil {
		return nil, err
	}
	if err := e.store(buy); err != nil {
		return nil, err
	}
	if err := e.store(sell); err != nil {
		return nil, err
	}
	return trade, nil
}
