package orderbook

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/common"
	"fundcore/native/fees"
	"fundcore/native/pool"
	"fundcore/native/registry"
)

const moduleName = "orderbook"

// Address is the identity the book presents to escrow, the router and the
// pool.
var Address = crypto.ModuleAddress(moduleName)

var (
	ErrInvalidAmount    = coreerrors.New(coreerrors.KindValidation, "orderbook: amount must be positive")
	ErrInvalidPrice     = coreerrors.New(coreerrors.KindValidation, "orderbook: price must be positive")
	ErrInvalidSide      = coreerrors.New(coreerrors.KindValidation, "orderbook: invalid side")
	ErrInvalidDeadline  = coreerrors.New(coreerrors.KindValidation, "orderbook: deadline must be in the future")
	ErrNonceUsed        = coreerrors.New(coreerrors.KindValidation, "orderbook: nonce already used")
	ErrOrderNotFound    = coreerrors.New(coreerrors.KindValidation, "orderbook: order not found")
	ErrPriceMismatch    = coreerrors.New(coreerrors.KindValidation, "orderbook: prices do not cross")
	ErrSideMismatch     = coreerrors.New(coreerrors.KindValidation, "orderbook: orders are not a buy and a sell of one token")
	ErrNotionalTooSmall = coreerrors.New(coreerrors.KindValidation, "orderbook: notional rounds to zero")
	ErrUnknownToken     = coreerrors.New(coreerrors.KindValidation, "orderbook: unknown fund token")
	ErrNotMaker         = coreerrors.New(coreerrors.KindAuthorization, "orderbook: caller is not the maker")
	ErrOrderClosed      = coreerrors.New(coreerrors.KindResourceState, "orderbook: order is closed")
	ErrOrderExpired     = coreerrors.New(coreerrors.KindResourceState, "orderbook: order expired")
	ErrFallbackPrice    = coreerrors.New(coreerrors.KindResourceState, "orderbook: pool price outside the order limit")
	ErrNilState         = coreerrors.New(coreerrors.KindInternal, "orderbook: engine not wired")
)

var (
	orderPrefix = []byte("orderbook/order/")
	openPrefix  = []byte("orderbook/open/")
	noncePrefix = []byte("orderbook/nonce/")
	quotaPrefix = []byte("orderbook/quota/")
	tokensKey   = []byte("orderbook/tokens")
)

func orderKey(id string) []byte {
	return append(append([]byte(nil), orderPrefix...), id...)
}

func openKey(token string) []byte {
	return append(append([]byte(nil), openPrefix...), token...)
}

func nonceKey(maker crypto.Address, nonce uint64) []byte {
	key := append(append([]byte(nil), noncePrefix...), maker[:]...)
	return append(key, fmt.Sprintf("/%d", nonce)...)
}

func quotaKey(maker crypto.Address) []byte {
	return append(append([]byte(nil), quotaPrefix...), maker[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextSequence(name string) (uint64, error)
	HasRole(role string, addr crypto.Address) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	TokenExists(symbol string) bool
}

// Savepoints scopes a nested sub-operation that may be rolled back without
// aborting the enclosing one.
type Savepoints interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Pool is the slice of the liquidity pool the book settles and falls back
// against.
type Pool interface {
	Reserve(token string) (*pool.Reserve, error)
	BuyPrice(token string) (*big.Int, error)
	QuoteSell(seller crypto.Address, token string, amount *big.Int) (*pool.SellQuote, error)
	Buy(buyer crypto.Address, token string, tndIn *big.Int) (*pool.BuyQuote, error)
	Sell(seller crypto.Address, token string, amount *big.Int) (*pool.SellQuote, error)
	RecordAcquisition(caller, holder crypto.Address, token string, qty, price *big.Int) error
	RecordDisposal(caller, holder crypto.Address, token string, qty *big.Int) error
}

type Registry interface {
	RequireP2P(addr crypto.Address) error
	FeeLevel(addr crypto.Address) (registry.Tier, error)
}

type Escrow interface {
	Lock(caller, holder crypto.Address, token string, amount *big.Int) error
	Unlock(caller, holder crypto.Address, token string, amount *big.Int) error
	Seize(caller, holder crypto.Address, token string, amount *big.Int, to crypto.Address) error
}

type Bank interface {
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
	Spendable(addr crypto.Address, token string) (*big.Int, error)
}

type FeeRouter interface {
	CollectFee(caller, from, treasury, guarantee crypto.Address, domain string, gross *big.Int, b fees.Breakdown, skimBps uint32) (*big.Int, error)
}

// Engine is the peer-to-peer order book.
type Engine struct {
	state      engineState
	savepoints Savepoints
	pool       Pool
	registry   Registry
	escrow     Escrow
	bank       Bank
	router     FeeRouter
	pauses     common.PauseView
	emitter    events.Emitter
	policy     fees.Policy
	quota      common.Quota
	nowFn      func() time.Time
}

func NewEngine(policy fees.Policy) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, policy: policy.Clone(), nowFn: time.Now}
}

func (e *Engine) SetState(s engineState) { e.state = s }

// SetSavepoints sets the scope used for pool fallbacks.
func (e *Engine) SetSavepoints(s Savepoints) { e.savepoints = s }

func (e *Engine) SetPool(p Pool) { e.pool = p }

func (e *Engine) SetRegistry(r Registry) { e.registry = r }

func (e *Engine) SetEscrow(x Escrow) { e.escrow = x }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetRouter(r FeeRouter) { e.router = r }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) SetFeePolicy(policy fees.Policy) { e.policy = policy.Clone() }

// SetQuota limits order submissions per maker and window.
func (e *Engine) SetQuota(q common.Quota) { e.quota = q }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	e.nowFn = fn
}

func (e *Engine) now() uint64 { return uint64(e.nowFn().Unix()) }

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

func (e *Engine) wired() error {
	if e.state == nil || e.pool == nil || e.registry == nil || e.escrow == nil || e.bank == nil || e.router == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) load(id string) (*Order, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrOrderNotFound
	}
	o := new(Order)
	ok, err := e.state.KVGet(orderKey(id), o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

func (e *Engine) store(o *Order) error {
	if err := e.state.KVPut(orderKey(o.ID), o); err != nil {
		return err
	}
	if o.Status.Open() {
		return e.state.KVAppend(openKey(o.Token), []byte(o.ID))
	}
	return e.state.KVRemove(openKey(o.Token), []byte(o.ID))
}

// view reports an open order past its deadline as expired.
func view(o *Order, now uint64) *Order {
	out := o.Clone()
	if out.Status.Open() && now > out.Deadline {
		out.Status = StatusExpired
	}
	return out
}

// Order returns the order with id.
func (e *Engine) Order(id string) (*Order, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	o, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return view(o, e.now()), nil
}

func (e *Engine) openOrders(token string) ([]*Order, error) {
	var ids []string
	if err := e.state.KVGetList(openKey(token), &ids); err != nil {
		return nil, err
	}
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := e.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Snapshot returns the live orders of token in time priority.
func (e *Engine) Snapshot(token string) (*Snapshot, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	orders, err := e.openOrders(symbol)
	if err != nil {
		return nil, err
	}
	now := e.now()
	snap := &Snapshot{Token: symbol, Bids: []*Order{}, Asks: []*Order{}}
	for _, o := range orders {
		if !o.Live(now) {
			continue
		}
		if o.Side == SideBuy {
			snap.Bids = append(snap.Bids, o.Clone())
		} else {
			snap.Asks = append(snap.Asks, o.Clone())
		}
	}
	return snap, nil
}

// Tokens lists every token that has seen an order.
func (e *Engine) Tokens() ([]string, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var tokens []string
	if err := e.state.KVGetList(tokensKey, &tokens); err != nil {
		return nil, err
	}
	sort.Strings(tokens)
	return tokens, nil
}

// buyLock is the cash a buy of qty at price reserves: notional plus the
// maker's P2P fee on it.
func (e *Engine) buyLock(qty, price *big.Int, tier registry.Tier) (*big.Int, error) {
	notional := common.Value(qty, price)
	fee, err := e.policy.Quote(fees.DomainP2P, tier, notional)
	if err != nil {
		return nil, err
	}
	return notional.Add(notional, fee.Total), nil
}

func (e *Engine) consumeQuota(maker crypto.Address, notional *big.Int) error {
	if e.quota.MaxRequestsPerWindow == 0 && !common.Positive(e.quota.MaxNotionalPerWindow) {
		return nil
	}
	var prev common.QuotaNow
	if _, err := e.state.KVGet(quotaKey(maker), &prev); err != nil {
		return err
	}
	next, err := common.CheckQuota(e.quota, e.quota.Window(e.now()), prev, 1, notional)
	if err != nil {
		return err
	}
	return e.state.KVPut(quotaKey(maker), next)
}

// SubmitOrder validates, escrows and matches a new order. Sells lock the
// tokens; buys lock notional plus fee in cash. Whatever does not match
// rests on the book, unless fallback is requested and nothing matched, in
// which case the order is routed to the pool.
func (e *Engine) SubmitOrder(maker crypto.Address, side Side, token string, amount, price *big.Int, nonce, deadline uint64, fallback bool) (*Order, []*Trade, error) {
	if err := e.wired(); err != nil {
		return nil, nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if side != SideBuy && side != SideSell {
		return nil, nil, ErrInvalidSide
	}
	if !common.Positive(amount) {
		return nil, nil, ErrInvalidAmount
	}
	if !common.Positive(price) {
		return nil, nil, ErrInvalidPrice
	}
	if err := e.registry.RequireP2P(maker); err != nil {
		return nil, nil, err
	}
	now := e.now()
	if deadline <= now {
		return nil, nil, fmt.Errorf("%w: %d <= %d", ErrInvalidDeadline, deadline, now)
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) || symbol == common.Cash {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	var used bool
	if _, err := e.state.KVGet(nonceKey(maker, nonce), &used); err != nil {
		return nil, nil, err
	}
	if used {
		return nil, nil, fmt.Errorf("%w: %d", ErrNonceUsed, nonce)
	}
	notional := common.Value(amount, price)
	if notional.Sign() == 0 {
		return nil, nil, ErrNotionalTooSmall
	}
	if err := e.consumeQuota(maker, notional); err != nil {
		return nil, nil, err
	}

	o := &Order{
		ID:        OrderID(maker, nonce),
		Maker:     maker,
		Side:      side,
		Token:     symbol,
		Amount:    new(big.Int).Set(amount),
		Price:     new(big.Int).Set(price),
		Nonce:     nonce,
		Deadline:  deadline,
		CreatedAt: now,
		Filled:    big.NewInt(0),
		Status:    StatusPending,
		Fallback:  fallback,
	}
	if err := e.lockOrder(o); err != nil {
		return nil, nil, err
	}
	seq, err := e.state.NextSequence(moduleName)
	if err != nil {
		return nil, nil, err
	}
	o.Seq = seq
	if err := e.state.KVPut(nonceKey(maker, nonce), true); err != nil {
		return nil, nil, err
	}
	if err := e.state.KVAppend(tokensKey, []byte(symbol)); err != nil {
		return nil, nil, err
	}
	e.emit(orderEvent(EventTypeSubmitted, o))

	trades, err := e.match(o, now)
	if err != nil {
		return nil, nil, err
	}
	if fallback && o.Filled.Sign() == 0 {
		e.fallback(o)
	}
	if err := e.store(o); err != nil {
		return nil, nil, err
	}
	return o.Clone(), trades, nil
}

func (e *Engine) lockOrder(o *Order) error {
	if o.Side == SideSell {
		if err := e.requireSpendable(o.Maker, o.Token, o.Amount); err != nil {
			return err
		}
		if err := e.escrow.Lock(Address, o.Maker, o.Token, o.Amount); err != nil {
			return err
		}
		o.Locked = new(big.Int).Set(o.Amount)
		return nil
	}
	tier, err := e.registry.FeeLevel(o.Maker)
	if err != nil {
		return err
	}
	lock, err := e.buyLock(o.Amount, o.Price, tier)
	if err != nil {
		return err
	}
	if err := e.requireSpendable(o.Maker, common.Cash, lock); err != nil {
		return err
	}
	if err := e.escrow.Lock(Address, o.Maker, common.Cash, lock); err != nil {
		return err
	}
	o.Locked = lock
	return nil
}

func (e *Engine) lockedAsset(o *Order) string {
	if o.Side == SideSell {
		return o.Token
	}
	return common.Cash
}

func (e *Engine) unlockRemainder(o *Order) error {
	if o.Locked.Sign() > 0 {
		if err := e.escrow.Unlock(Address, o.Maker, e.lockedAsset(o), o.Locked); err != nil {
			return err
		}
	}
	o.Locked = big.NewInt(0)
	return nil
}

// CancelOrder withdraws an open order and releases its escrow. An order
// past its deadline is closed as expired instead.
func (e *Engine) CancelOrder(maker crypto.Address, id string) (*Order, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	o, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if o.Maker != maker {
		return nil, ErrNotMaker
	}
	if !o.Status.Open() {
		return nil, fmt.Errorf("%w: %s", ErrOrderClosed, o.Status)
	}
	status, kind := StatusCancelled, EventTypeCancelled
	if e.now() > o.Deadline {
		status, kind = StatusExpired, EventTypeExpired
	}
	if err := e.close(o, status); err != nil {
		return nil, err
	}
	e.emit(orderEvent(kind, o))
	return o.Clone(), nil
}

func (e *Engine) close(o *Order, status Status) error {
	if err := e.unlockRemainder(o); err != nil {
		return err
	}
	o.Status = status
	return e.store(o)
}

// ReapExpired closes every open order past its deadline at now and
// releases its escrow. Anyone may call it; now is capped at the engine
// clock.
func (e *Engine) ReapExpired(now uint64) (int, error) {
	if err := e.wired(); err != nil {
		return 0, err
	}
	if clock := e.now(); now == 0 || now > clock {
		now = clock
	}
	tokens, err := e.Tokens()
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, token := range tokens {
		orders, err := e.openOrders(token)
		if err != nil {
			return reaped, err
		}
		for _, o := range orders {
			if now <= o.Deadline {
				continue
			}
			if err := e.close(o, StatusExpired); err != nil {
				return reaped, err
			}
			e.emit(orderEvent(EventTypeExpired, o))
			reaped++
		}
	}
	return reaped, nil
}

func (e *Engine) requireSpendable(addr crypto.Address, token string, amount *big.Int) error {
	spendable, err := e.bank.Spendable(addr, token)
	if err != nil {
		return err
	}
	if spendable.Cmp(amount) >= 0 {
		return nil
	}
	balance, err := e.state.Balance(addr, token)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) >= 0 {
		return fmt.Errorf("%w: spendable %s need %s", bank.ErrEscrowLocked, spendable, amount)
	}
	return fmt.Errorf("%w: have %s need %s", state.ErrInsufficientBalance, balance, amount)
}
