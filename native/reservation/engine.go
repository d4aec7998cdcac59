package reservation

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/fees"
	"fundcore/native/pool"
	"fundcore/native/registry"
)

const moduleName = "reservation"

var (
	// Address is the identity the engine presents to the pool and router.
	Address = crypto.ModuleAddress(moduleName)
	// Vault holds reservation deposits until they are exercised or refunded.
	Vault = crypto.ModuleAddress(moduleName + "/vault")
)

var (
	ErrInvalidAmount  = coreerrors.New(coreerrors.KindValidation, "reservation: amount must be positive")
	ErrInvalidAddress = coreerrors.New(coreerrors.KindValidation, "reservation: invalid address")
	ErrInvalidExpiry  = coreerrors.New(coreerrors.KindValidation, "reservation: expiry out of range")
	ErrAmountTooSmall = coreerrors.New(coreerrors.KindValidation, "reservation: deposit rounds to zero")
	ErrNotFound       = coreerrors.New(coreerrors.KindValidation, "reservation: not found")
	ErrNotHolder      = coreerrors.New(coreerrors.KindAuthorization, "reservation: caller is not the holder")
	ErrNotActive      = coreerrors.New(coreerrors.KindResourceState, "reservation: not active")
	ErrExpired        = coreerrors.New(coreerrors.KindResourceState, "reservation: expired")
	ErrNilState       = coreerrors.New(coreerrors.KindInternal, "reservation: engine not wired")
)

var (
	recordPrefix = []byte("reservation/record/")
	activeKey    = []byte("reservation/active")
	holderPrefix = []byte("reservation/holder/")
)

func recordKey(id string) []byte {
	return append(append([]byte(nil), recordPrefix...), id...)
}

func holderKey(holder crypto.Address) []byte {
	return append(append([]byte(nil), holderPrefix...), holder[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Pool is the slice of the liquidity pool reservations draw on.
type Pool interface {
	Reserve(token string) (*pool.Reserve, error)
	BuyPrice(token string) (*big.Int, error)
	ReserveInventory(caller crypto.Address, token string, amount *big.Int) error
	ReleaseInventory(caller crypto.Address, token string, amount *big.Int) error
	CreditCash(caller, from crypto.Address, token string, amount *big.Int) error
	Issue(caller, holder crypto.Address, token string, amount, price *big.Int) error
}

type ProfileSource interface {
	Profile(addr crypto.Address) (*registry.Profile, error)
}

type Bank interface {
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
}

type FeeRouter interface {
	CollectFee(caller, from, treasury, guarantee crypto.Address, domain string, gross *big.Int, b fees.Breakdown, skimBps uint32) (*big.Int, error)
}

// Receipt describes an exercised reservation.
type Receipt struct {
	Reservation *Reservation
	Fee         fees.Breakdown
	Skim        *big.Int
}

// Engine manages forward purchase reservations against pool inventory.
type Engine struct {
	state    engineState
	pool     Pool
	profiles ProfileSource
	bank     Bank
	router   FeeRouter
	pauses   common.PauseView
	emitter  events.Emitter
	policy   fees.Policy
	maxTerm  time.Duration
	nowFn    func() time.Time
	newID    func() string
}

func NewEngine(policy fees.Policy) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		policy:  policy.Clone(),
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

func (e *Engine) SetState(s engineState) { e.state = s }

func (e *Engine) SetPool(p Pool) { e.pool = p }

func (e *Engine) SetRegistry(p ProfileSource) { e.profiles = p }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetRouter(r FeeRouter) { e.router = r }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) SetFeePolicy(policy fees.Policy) { e.policy = policy.Clone() }

// SetMaxTerm bounds how far in the future an expiry may lie. Zero disables
// the bound.
func (e *Engine) SetMaxTerm(d time.Duration) { e.maxTerm = d }

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

// SetIDFunc overrides the identifier generator.
func (e *Engine) SetIDFunc(fn func() string) {
	if fn == nil {
		fn = uuid.NewString
	}
	e.newID = fn
}

func (e *Engine) now() uint64 { return uint64(e.nowFn().Unix()) }

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

func (e *Engine) wired() error {
	if e.state == nil || e.pool == nil || e.profiles == nil || e.bank == nil || e.router == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) load(id string) (*Reservation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	r := new(Reservation)
	ok, err := e.state.KVGet(recordKey(id), r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

func (e *Engine) store(r *Reservation) error {
	return e.state.KVPut(recordKey(r.ID), r)
}

// Reservation returns the reservation with id. An active reservation past
// its expiry is reported as expired even before it is reaped.
func (e *Engine) Reservation(id string) (*Reservation, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	r, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if r.ExpiredAt(e.now()) {
		r.Status = StatusExpired
	}
	return r, nil
}

// ByHolder lists every reservation opened by holder.
func (e *Engine) ByHolder(holder crypto.Address) ([]*Reservation, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var ids []string
	if err := e.state.KVGetList(holderKey(holder), &ids); err != nil {
		return nil, err
	}
	return e.collect(ids)
}

// Active lists reservations that have not been closed yet.
func (e *Engine) Active() ([]*Reservation, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var ids []string
	if err := e.state.KVGetList(activeKey, &ids); err != nil {
		return nil, err
	}
	return e.collect(ids)
}

func (e *Engine) collect(ids []string) ([]*Reservation, error) {
	out := make([]*Reservation, 0, len(ids))
	for _, id := range ids {
		r, err := e.Reservation(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Reserve locks pool inventory for holder at the current buy price. The cash
// deposit amount*strike/1e8 moves into the reservation vault.
func (e *Engine) Reserve(holder crypto.Address, token string, amount *big.Int, expiry uint64) (*Reservation, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if holder.IsZero() {
		return nil, ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return nil, ErrInvalidAmount
	}
	profile, err := e.profiles.Profile(holder)
	if err != nil {
		return nil, err
	}
	if !profile.Whitelisted() {
		return nil, registry.ErrNotWhitelisted
	}
	now := e.now()
	if expiry <= now {
		return nil, fmt.Errorf("%w: expiry %d not after %d", ErrInvalidExpiry, expiry, now)
	}
	if e.maxTerm > 0 && expiry-now > uint64(e.maxTerm/time.Second) {
		return nil, fmt.Errorf("%w: term exceeds %s", ErrInvalidExpiry, e.maxTerm)
	}
	symbol := state.NormalizeSymbol(token)
	strike, err := e.pool.BuyPrice(symbol)
	if err != nil {
		return nil, err
	}
	deposit := common.Value(amount, strike)
	if deposit.Sign() <= 0 {
		return nil, ErrAmountTooSmall
	}
	if err := e.pool.ReserveInventory(Address, symbol, amount); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(holder, Vault, common.Cash, deposit); err != nil {
		return nil, err
	}
	r := &Reservation{
		ID:        e.newID(),
		Holder:    holder,
		Token:     symbol,
		Amount:    new(big.Int).Set(amount),
		Strike:    strike,
		Deposit:   deposit,
		CreatedAt: now,
		Expiry:    expiry,
		Status:    StatusActive,
	}
	if err := e.store(r); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(activeKey, []byte(r.ID)); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(holderKey(holder), []byte(r.ID)); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeCreated, r))
	return r.Clone(), nil
}

func (e *Engine) owned(holder crypto.Address, id string) (*Reservation, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	r, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if r.Holder != holder {
		return nil, ErrNotHolder
	}
	if r.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, r.Status)
	}
	return r, nil
}

// Exercise converts the reservation into tokens at the strike. The holder
// pays fee and VAT on the deposit on top of it; the deposit joins the
// reserve cash.
func (e *Engine) Exercise(holder crypto.Address, id string) (*Receipt, error) {
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	r, err := e.owned(holder, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if r.ExpiredAt(now) {
		return nil, ErrExpired
	}
	profile, err := e.profiles.Profile(holder)
	if err != nil {
		return nil, err
	}
	if !profile.Whitelisted() {
		return nil, registry.ErrNotWhitelisted
	}
	fee, err := e.policy.Quote(fees.DomainPool, profile.FeeLevel(), r.Deposit)
	if err != nil {
		return nil, err
	}
	reserve, err := e.pool.Reserve(r.Token)
	if err != nil {
		return nil, err
	}
	skim, err := e.router.CollectFee(Address, holder, reserve.Treasury, reserve.GuaranteeFund, fees.DomainPool, r.Deposit, fee, reserve.GuaranteeFundBps)
	if err != nil {
		return nil, err
	}
	if err := e.pool.ReleaseInventory(Address, r.Token, r.Amount); err != nil {
		return nil, err
	}
	if err := e.pool.CreditCash(Address, Vault, r.Token, r.Deposit); err != nil {
		return nil, err
	}
	if err := e.pool.Issue(Address, holder, r.Token, r.Amount, r.Strike); err != nil {
		return nil, err
	}
	if err := e.close(r, StatusExercised, now); err != nil {
		return nil, err
	}
	e.emit(newEvent(EventTypeExercised, r))
	return &Receipt{Reservation: r.Clone(), Fee: fee, Skim: skim}, nil
}

// Cancel refunds the deposit and releases the inventory. A lapsed
// reservation is closed as expired instead.
func (e *Engine) Cancel(holder crypto.Address, id string) (*Reservation, error) {
	r, err := e.owned(holder, id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	status, kind := StatusCancelled, EventTypeCancelled
	if r.ExpiredAt(now) {
		status, kind = StatusExpired, EventTypeExpired
	}
	if err := e.refund(r, status, now); err != nil {
		return nil, err
	}
	e.emit(newEvent(kind, r))
	return r.Clone(), nil
}

// ReapExpired refunds and closes every active reservation whose expiry has
// passed at now. Anyone may call it; now is capped at the engine clock.
func (e *Engine) ReapExpired(now uint64) (int, error) {
	if err := e.wired(); err != nil {
		return 0, err
	}
	if clock := e.now(); now == 0 || now > clock {
		now = clock
	}
	var ids []string
	if err := e.state.KVGetList(activeKey, &ids); err != nil {
		return 0, err
	}
	reaped := 0
	for _, id := range ids {
		r, err := e.load(id)
		if err != nil {
			return reaped, err
		}
		if !r.ExpiredAt(now) {
			continue
		}
		if err := e.refund(r, StatusExpired, now); err != nil {
			return reaped, err
		}
		e.emit(newEvent(EventTypeExpired, r))
		reaped++
	}
	return reaped, nil
}

func (e *Engine) refund(r *Reservation, status Status, now uint64) error {
	if err := e.bank.Transfer(Vault, r.Holder, common.Cash, r.Deposit); err != nil {
		return err
	}
	if err := e.pool.ReleaseInventory(Address, r.Token, r.Amount); err != nil {
		return err
	}
	return e.close(r, status, now)
}

func (e *Engine) close(r *Reservation, status Status, now uint64) error {
	r.Status = status
	r.ClosedAt = now
	if err := e.store(r); err != nil {
		return err
	}
	return e.state.KVRemove(activeKey, []byte(r.ID))
}
