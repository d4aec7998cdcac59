package pool

import (
	"fmt"
	"math/big"

	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/fees"
	"fundcore/native/registry"
	"fundcore/native/revenue"
)

// QuoteBuy prices a buy of token for tndIn cash without mutating state.
func (e *Engine) QuoteBuy(buyer crypto.Address, token string, tndIn *big.Int) (*BuyQuote, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if !common.Positive(tndIn) {
		return nil, ErrInvalidAmount
	}
	r, err := e.Reserve(token)
	if err != nil {
		return nil, err
	}
	profile, err := e.profiles.Profile(buyer)
	if err != nil {
		return nil, err
	}
	nav, err := e.nav.NAV(r.Token)
	if err != nil {
		return nil, err
	}
	tier := profile.FeeLevel()
	fee, err := e.policy.Quote(fees.DomainPool, tier, tndIn)
	if err != nil {
		return nil, err
	}
	price := common.ScaleBps(nav, int64(r.SpreadBps))
	net := new(big.Int).Sub(tndIn, fee.Total)
	if net.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	minted := common.Units(net, price)
	if minted.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	return &BuyQuote{
		Token:       r.Token,
		Buyer:       buyer,
		Tier:        tier,
		TndIn:       new(big.Int).Set(tndIn),
		NAV:         nav,
		PriceClient: price,
		Fee:         fee,
		Skim:        fees.Skim(fee.FeeBase, r.GuaranteeFundBps),
		NetTnd:      net,
		Minted:      minted,
	}, nil
}

// Buy executes a pool buy: the buyer pays tndIn, the fee is routed to the
// treasury and guarantee fund, the net amount joins the reserve and the
// minted tokens are credited to the buyer. Buys stay open while the breaker
// is tripped.
func (e *Engine) Buy(buyer crypto.Address, token string, tndIn *big.Int) (*BuyQuote, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if buyer.IsZero() {
		return nil, ErrInvalidAddress
	}
	profile, err := e.profiles.Profile(buyer)
	if err != nil {
		return nil, err
	}
	if !profile.Whitelisted() {
		return nil, registry.ErrNotWhitelisted
	}
	q, err := e.QuoteBuy(buyer, token, tndIn)
	if err != nil {
		return nil, err
	}
	if err := e.requireSpendable(buyer, common.Cash, tndIn); err != nil {
		return nil, err
	}
	r, err := e.Reserve(q.Token)
	if err != nil {
		return nil, err
	}
	skim, err := e.router.CollectFee(Address, buyer, r.Treasury, r.GuaranteeFund, fees.DomainPool, tndIn, q.Fee, r.GuaranteeFundBps)
	if err != nil {
		return nil, err
	}
	q.Skim = skim
	if err := e.bank.Transfer(buyer, r.Account, common.Cash, q.NetTnd); err != nil {
		return nil, err
	}
	r.Cash.Add(r.Cash, q.NetTnd)
	if err := e.state.Mint(buyer, q.Token, q.Minted); err != nil {
		return nil, err
	}
	if err := e.recordAcquisition(buyer, q.Token, q.Minted, q.PriceClient); err != nil {
		return nil, err
	}
	if err := e.putReserve(r); err != nil {
		return nil, err
	}
	e.emit(NewBuyEvent(q, r))
	return q, nil
}

// QuoteSell prices a sell of amount tokens without mutating state.
func (e *Engine) QuoteSell(seller crypto.Address, token string, amount *big.Int) (*SellQuote, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if !common.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	r, err := e.Reserve(token)
	if err != nil {
		return nil, err
	}
	profile, err := e.profiles.Profile(seller)
	if err != nil {
		return nil, err
	}
	nav, err := e.nav.NAV(r.Token)
	if err != nil {
		return nil, err
	}
	tier := profile.FeeLevel()
	price := common.ScaleBps(nav, -int64(r.SpreadBps))
	gross := common.Value(amount, price)
	fee, err := e.policy.Quote(fees.DomainPool, tier, gross)
	if err != nil {
		return nil, err
	}
	pos, err := e.Position(seller, r.Token)
	if err != nil {
		return nil, err
	}
	gain := big.NewInt(0)
	if pos.AvgPrice.Sign() > 0 && price.Cmp(pos.AvgPrice) > 0 {
		gain = common.Value(amount, new(big.Int).Sub(price, pos.AvgPrice))
	}
	rasBps := e.params.NonResidentRASBps
	if profile.Resident {
		rasBps = e.params.ResidentRASBps
	}
	tax := common.ApplyBps(gain, rasBps)
	out := new(big.Int).Sub(gross, fee.Total)
	out.Sub(out, tax)
	if out.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	return &SellQuote{
		Token:       r.Token,
		Seller:      seller,
		Tier:        tier,
		Amount:      new(big.Int).Set(amount),
		NAV:         nav,
		PriceClient: price,
		Gross:       gross,
		Fee:         fee,
		Skim:        fees.Skim(fee.FeeBase, r.GuaranteeFundBps),
		PRM:         pos.AvgPrice,
		Gain:        gain,
		RASBps:      rasBps,
		Tax:         tax,
		TndOut:      out,
	}, nil
}

// Sell executes a pool redemption. The breaker must be open; the seller's
// escrow-free balance must cover amount; the reserve must cover the gross
// proceeds. Tokens are burned, the seller receives the net proceeds, the fee
// goes to the treasury and guarantee fund and withholding to the tax vault.
func (e *Engine) Sell(seller crypto.Address, token string, amount *big.Int) (*SellQuote, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if seller.IsZero() {
		return nil, ErrInvalidAddress
	}
	symbol := state.NormalizeSymbol(token)
	if e.gate != nil {
		if err := e.gate.RequireRedemptionsOpen(symbol); err != nil {
			return nil, err
		}
	}
	profile, err := e.profiles.Profile(seller)
	if err != nil {
		return nil, err
	}
	if !profile.Whitelisted() {
		return nil, registry.ErrNotWhitelisted
	}
	if !common.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	if err := e.requireSpendable(seller, symbol, amount); err != nil {
		return nil, err
	}
	q, err := e.QuoteSell(seller, symbol, amount)
	if err != nil {
		return nil, err
	}
	r, err := e.Reserve(symbol)
	if err != nil {
		return nil, err
	}
	if r.Cash.Cmp(q.Gross) < 0 {
		return nil, fmt.Errorf("%w: cash %s gross %s", ErrInsufficientReserve, r.Cash, q.Gross)
	}
	if err := e.state.Burn(seller, symbol, amount); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(r.Account, seller, common.Cash, q.TndOut); err != nil {
		return nil, err
	}
	skim, err := e.router.CollectFee(Address, r.Account, r.Treasury, r.GuaranteeFund, fees.DomainPool, q.Gross, q.Fee, r.GuaranteeFundBps)
	if err != nil {
		return nil, err
	}
	q.Skim = skim
	if err := e.router.Route(Address, r.Account, revenue.TaxVault, q.Tax, revenue.KindRAS); err != nil {
		return nil, err
	}
	r.Cash.Sub(r.Cash, q.Gross)
	if err := e.recordDisposal(seller, symbol, amount); err != nil {
		return nil, err
	}
	if err := e.putReserve(r); err != nil {
		return nil, err
	}
	e.emit(NewSellEvent(q, r))
	return q, nil
}
