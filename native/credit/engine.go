package credit

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/common"
	"fundcore/native/registry"
	"fundcore/native/revenue"
)

var (
	ErrInvalidAmount         = coreerrors.New(coreerrors.KindValidation, "credit: amount must be positive")
	ErrInvalidDuration       = coreerrors.New(coreerrors.KindValidation, "credit: duration out of range")
	ErrInvalidParams         = coreerrors.New(coreerrors.KindValidation, "credit: invalid parameters")
	ErrAdvanceNotFound       = coreerrors.New(coreerrors.KindValidation, "credit: advance not found")
	ErrTierTooLow            = coreerrors.New(coreerrors.KindEligibility, "credit: tier too low")
	ErrSubscriptionInactive  = coreerrors.New(coreerrors.KindEligibility, "credit: subscription inactive")
	ErrNotBorrower           = coreerrors.New(coreerrors.KindAuthorization, "credit: caller is not the borrower")
	ErrAdvanceOpen           = coreerrors.New(coreerrors.KindResourceState, "credit: borrower already has an open advance")
	ErrInvalidStatus         = coreerrors.New(coreerrors.KindResourceState, "credit: advance in wrong status")
	ErrWrongModel            = coreerrors.New(coreerrors.KindResourceState, "credit: operation not supported by this model")
	ErrNotMatured            = coreerrors.New(coreerrors.KindResourceState, "credit: advance has not matured")
	ErrNotLiquidatable       = coreerrors.New(coreerrors.KindResourceState, "credit: ltv below liquidation threshold")
	ErrInsufficientLiquidity = coreerrors.Transient("credit: credit reserve cannot fund the advance")
	ErrNilState              = coreerrors.New(coreerrors.KindInternal, "credit: engine not wired")
)

// MaxLTV stands in for an unbounded LTV (worthless collateral).
var MaxLTV = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextSequence(name string) (uint64, error)
	HasRole(role string, addr crypto.Address) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
}

type NAVSource interface {
	NAV(token string) (*big.Int, error)
}

type ProfileSource interface {
	Profile(addr crypto.Address) (*registry.Profile, error)
}

// Escrow is the lock ledger collateral lives in.
type Escrow interface {
	Lock(caller, holder crypto.Address, token string, amount *big.Int) error
	Unlock(caller, holder crypto.Address, token string, amount *big.Int) error
	Seize(caller, holder crypto.Address, token string, amount *big.Int, to crypto.Address) error
}

type Bank interface {
	Spendable(addr crypto.Address, token string) (*big.Int, error)
}

// Router moves cash between borrowers and revenue compartments.
type Router interface {
	Route(caller, from crypto.Address, compartment revenue.Compartment, amount *big.Int, kind revenue.Kind) error
	Disburse(caller crypto.Address, compartment revenue.Compartment, to crypto.Address, amount *big.Int, kind revenue.Kind) error
	CompartmentBalance(c revenue.Compartment) (*big.Int, error)
}

// Engine runs one credit model instance. Each instance is a distinct escrow
// and revenue caller identified by its module address.
type Engine struct {
	name     string
	address  crypto.Address
	model    Model
	params   Params
	state    engineState
	nav      NAVSource
	profiles ProfileSource
	escrow   Escrow
	bank     Bank
	router   Router
	pauses   common.PauseView
	emitter  events.Emitter
	nowFn    func() time.Time
}

func NewEngine(name string, model Model, params Params) *Engine {
	name = strings.ToLower(strings.TrimSpace(name))
	return &Engine{
		name:    name,
		address: crypto.ModuleAddress(name),
		model:   model,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
}

func (e *Engine) Name() string { return e.name }

// Address is the identity the engine presents to escrow and the router.
func (e *Engine) Address() crypto.Address { return e.address }

func (e *Engine) Model() Model { return e.model }

func (e *Engine) Params() Params { return e.params }

func (e *Engine) SetParams(p Params) { e.params = p }

func (e *Engine) SetState(s engineState) { e.state = s }

func (e *Engine) SetOracle(n NAVSource) { e.nav = n }

func (e *Engine) SetRegistry(p ProfileSource) { e.profiles = p }

func (e *Engine) SetEscrow(x Escrow) { e.escrow = x }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetRouter(r Router) { e.router = r }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

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
	if e.state == nil || e.nav == nil || e.profiles == nil || e.escrow == nil || e.bank == nil || e.router == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) advanceKey(id uint64) []byte {
	return []byte("credit/" + e.name + "/advance/" + strconv.FormatUint(id, 10))
}

func (e *Engine) openKey(borrower crypto.Address) []byte {
	return append([]byte("credit/"+e.name+"/open/"), borrower[:]...)
}

func (e *Engine) borrowerKey(borrower crypto.Address) []byte {
	return append([]byte("credit/"+e.name+"/borrower/"), borrower[:]...)
}

func (e *Engine) load(id uint64) (*Advance, error) {
	a := new(Advance)
	ok, err := e.state.KVGet(e.advanceKey(id), a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrAdvanceNotFound, e.name, id)
	}
	a.ensureDefaults()
	return a, nil
}

func (e *Engine) store(a *Advance) error {
	if err := e.state.KVPut(e.advanceKey(a.ID), a); err != nil {
		return err
	}
	if a.Status.Open() {
		return e.state.KVPut(e.openKey(a.Borrower), a.ID)
	}
	return e.state.KVDelete(e.openKey(a.Borrower))
}

// Advance returns the advance with id, with interest accrued to now.
func (e *Engine) Advance(id uint64) (*Advance, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	a.accrue(e.now())
	return a, nil
}

// OpenAdvance returns borrower's requested or active advance, if any.
func (e *Engine) OpenAdvance(borrower crypto.Address) (*Advance, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	var id uint64
	ok, err := e.state.KVGet(e.openKey(borrower), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	a, err := e.Advance(id)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// ByBorrower lists every advance borrower has taken from this engine.
func (e *Engine) ByBorrower(borrower crypto.Address) ([]*Advance, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var ids []uint64
	if err := e.state.KVGetList(e.borrowerKey(borrower), &ids); err != nil {
		return nil, err
	}
	out := make([]*Advance, 0, len(ids))
	for _, id := range ids {
		a, err := e.Advance(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (e *Engine) eligible(borrower crypto.Address) (*registry.Profile, error) {
	profile, err := e.profiles.Profile(borrower)
	if err != nil {
		return nil, err
	}
	if !profile.Whitelisted() {
		return nil, registry.ErrNotWhitelisted
	}
	level := profile.FeeLevel()
	if level < e.params.MinTier(e.model) || e.params.RateBps[level] == 0 {
		return nil, fmt.Errorf("%w: %s below %s", ErrTierTooLow, level, e.params.MinTier(e.model))
	}
	if !profile.SubscriptionActive {
		return nil, ErrSubscriptionInactive
	}
	return profile, nil
}

// RequestAdvance opens an advance against collateral tokens. Principal is
// min(requested, MaxLTVBps of the collateral value); the collateral is
// locked in escrow with the request.
func (e *Engine) RequestAdvance(borrower crypto.Address, token string, collateral, requested *big.Int, durationDays uint32) (*Advance, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, e.name); err != nil {
		return nil, err
	}
	if !common.Positive(collateral) || !common.Positive(requested) {
		return nil, ErrInvalidAmount
	}
	profile, err := e.eligible(borrower)
	if err != nil {
		return nil, err
	}
	tier := profile.FeeLevel()
	if durationDays == 0 || durationDays > e.params.MaxDurationDays[tier] {
		return nil, fmt.Errorf("%w: %d days, %s allows %d", ErrInvalidDuration, durationDays, tier, e.params.MaxDurationDays[tier])
	}
	if _, open, err := e.OpenAdvance(borrower); err != nil {
		return nil, err
	} else if open {
		return nil, ErrAdvanceOpen
	}
	symbol := state.NormalizeSymbol(token)
	nav, err := e.nav.NAV(symbol)
	if err != nil {
		return nil, err
	}
	if err := e.requireSpendable(borrower, symbol, collateral); err != nil {
		return nil, err
	}
	limit := common.ApplyBps(common.Value(collateral, nav), e.params.MaxLTVBps)
	principal := common.Min(requested, limit)
	if principal.Sign() <= 0 {
		return nil, fmt.Errorf("%w: collateral too small", ErrInvalidAmount)
	}
	id, err := e.state.NextSequence("credit/" + e.name)
	if err != nil {
		return nil, err
	}
	if err := e.escrow.Lock(e.address, borrower, symbol, collateral); err != nil {
		return nil, err
	}
	now := e.now()
	a := &Advance{
		ID:           id,
		Borrower:     borrower,
		Token:        symbol,
		Model:        e.model,
		Tier:         tier,
		RateBps:      e.params.RateBps[tier],
		DurationDays: durationDays,
		Collateral:   new(big.Int).Set(collateral),
		Requested:    new(big.Int).Set(requested),
		Principal:    principal,
		NAVAtRequest: nav,
		RequestedAt:  now,
		Status:       StatusRequested,
	}
	if e.model == ModelB {
		a.RateBps = 0
	}
	a.ensureDefaults()
	if err := e.store(a); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(e.borrowerKey(borrower), encodeID(id)); err != nil {
		return nil, err
	}
	e.emit(e.advanceEvent(EventTypeRequested, a))
	return a.Clone(), nil
}

// ActivateAdvance disburses the principal from the credit reserve.
func (e *Engine) ActivateAdvance(caller crypto.Address, id uint64) (*Advance, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, e.name); err != nil {
		return nil, err
	}
	if err := common.Require(e.state, common.OpActivateAdvance, caller); err != nil {
		return nil, err
	}
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusRequested {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}
	nav, err := e.nav.NAV(a.Token)
	if err != nil {
		return nil, err
	}
	available, err := e.router.CompartmentBalance(revenue.CreditReserve)
	if err != nil {
		return nil, err
	}
	if available.Cmp(a.Principal) < 0 {
		return nil, fmt.Errorf("%w: reserve %s principal %s", ErrInsufficientLiquidity, available, a.Principal)
	}
	if err := e.router.Disburse(e.address, revenue.CreditReserve, a.Borrower, a.Principal, revenue.KindDisbursal); err != nil {
		return nil, err
	}
	now := e.now()
	a.NAVAtStart = nav
	a.StartAt = now
	a.AccruedAt = now
	a.Status = StatusActive
	if err := e.store(a); err != nil {
		return nil, err
	}
	e.emit(e.advanceEvent(EventTypeActivated, a))
	return a.Clone(), nil
}

// CancelRequest withdraws a request that has not been funded.
func (e *Engine) CancelRequest(borrower crypto.Address, id uint64) (*Advance, error) {
	a, err := e.owned(borrower, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusRequested {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}
	if err := e.escrow.Unlock(e.address, a.Borrower, a.Token, a.Collateral); err != nil {
		return nil, err
	}
	a.Collateral = big.NewInt(0)
	a.Status = StatusClosed
	a.ClosedAt = e.now()
	if err := e.store(a); err != nil {
		return nil, err
	}
	e.emit(e.advanceEvent(EventTypeCancelled, a))
	return a.Clone(), nil
}

func (e *Engine) owned(borrower crypto.Address, id uint64) (*Advance, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, e.name); err != nil {
		return nil, err
	}
	a, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if a.Borrower != borrower {
		return nil, ErrNotBorrower
	}
	return a, nil
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

func encodeID(id uint64) []byte {
	return new(big.Int).SetUint64(id).Bytes()
}
