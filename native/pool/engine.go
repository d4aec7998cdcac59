package pool

import (
	"errors"
	"fmt"
	"math/big"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/common"
	"fundcore/native/fees"
	"fundcore/native/registry"
	"fundcore/native/revenue"
)

const moduleName = "pool"

var (
	ErrInvalidAmount         = coreerrors.New(coreerrors.KindValidation, "pool: amount must be positive")
	ErrInvalidAddress        = coreerrors.New(coreerrors.KindValidation, "pool: invalid address")
	ErrInvalidBps            = coreerrors.New(coreerrors.KindValidation, "pool: basis points out of range")
	ErrUnknownToken          = coreerrors.New(coreerrors.KindValidation, "pool: unknown token")
	ErrAmountTooSmall        = coreerrors.New(coreerrors.KindValidation, "pool: amount too small after fees")
	ErrReserveNotConfigured  = coreerrors.New(coreerrors.KindResourceState, "pool: reserve not configured")
	ErrInsufficientReserve   = coreerrors.Transient("pool: insufficient reserve cash")
	ErrInventoryExhausted    = coreerrors.Transient("pool: reservable inventory exhausted")
	ErrInventoryUnderflow    = coreerrors.New(coreerrors.KindFatal, "pool: reserved inventory underflow")
	ErrInventoryOverIssuance = coreerrors.New(coreerrors.KindFatal, "pool: reserved inventory exceeds issuance")
	ErrNilState              = coreerrors.New(coreerrors.KindInternal, "pool: engine not wired")
)

var (
	reservePrefix  = []byte("pool/reserve/")
	positionPrefix = []byte("pool/prm/")
)

func reserveKey(token string) []byte {
	return append(append([]byte(nil), reservePrefix...), token...)
}

func positionKey(holder crypto.Address, token string) []byte {
	key := append(append([]byte(nil), positionPrefix...), holder[:]...)
	return append(key, token...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr crypto.Address) bool
	IsAuthorizedCaller(component string, caller crypto.Address) bool
	TokenExists(symbol string) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	TotalSupply(symbol string) (*big.Int, error)
	Mint(addr crypto.Address, symbol string, amount *big.Int) error
	Burn(addr crypto.Address, symbol string, amount *big.Int) error
}

// NAVSource returns a fresh NAV or fails closed.
type NAVSource interface {
	NAV(token string) (*big.Int, error)
}

// ProfileSource resolves investor profiles.
type ProfileSource interface {
	Profile(addr crypto.Address) (*registry.Profile, error)
}

// RedemptionGate is the circuit breaker check sells pass through.
type RedemptionGate interface {
	RequireRedemptionsOpen(token string) error
}

// Bank moves cash honouring escrow locks.
type Bank interface {
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
	Spendable(addr crypto.Address, token string) (*big.Int, error)
}

// FeeRouter collects fees and taxes into the treasury and compartments.
type FeeRouter interface {
	CollectFee(caller, from, treasury, guarantee crypto.Address, domain string, gross *big.Int, b fees.Breakdown, skimBps uint32) (*big.Int, error)
	Route(caller, from crypto.Address, compartment revenue.Compartment, amount *big.Int, kind revenue.Kind) error
}

// Engine prices and executes buys and sells against the pooled reserve.
type Engine struct {
	state    engineState
	nav      NAVSource
	profiles ProfileSource
	gate     RedemptionGate
	bank     Bank
	router   FeeRouter
	pauses   common.PauseView
	emitter  events.Emitter
	params   Params
	policy   fees.Policy
}

func NewEngine(params Params, policy fees.Policy) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, params: params, policy: policy.Clone()}
}

func (e *Engine) SetState(s engineState) { e.state = s }

func (e *Engine) SetOracle(n NAVSource) { e.nav = n }

func (e *Engine) SetRegistry(p ProfileSource) { e.profiles = p }

func (e *Engine) SetBreaker(g RedemptionGate) { e.gate = g }

func (e *Engine) SetBank(b Bank) { e.bank = b }

func (e *Engine) SetRouter(r FeeRouter) { e.router = r }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) Params() Params { return e.params }

func (e *Engine) FeePolicy() fees.Policy { return e.policy.Clone() }

func (e *Engine) SetParams(p Params) { e.params = p }

func (e *Engine) SetFeePolicy(policy fees.Policy) { e.policy = policy.Clone() }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

func (e *Engine) wired() error {
	if e.state == nil || e.nav == nil || e.profiles == nil || e.bank == nil || e.router == nil {
		return ErrNilState
	}
	return nil
}

// Reserve returns the reserve of token.
func (e *Engine) Reserve(token string) (*Reserve, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	r := new(Reserve)
	ok, err := e.state.KVGet(reserveKey(symbol), r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReserveNotConfigured, symbol)
	}
	r.ensureDefaults()
	return r, nil
}

func (e *Engine) putReserve(r *Reserve) error {
	supply, err := e.state.TotalSupply(r.Token)
	if err != nil {
		return err
	}
	if r.ReservedInventory.Sign() < 0 {
		return ErrInventoryUnderflow
	}
	if r.ReservedInventory.Cmp(supply) > 0 {
		return fmt.Errorf("%w: reserved %s supply %s", ErrInventoryOverIssuance, r.ReservedInventory, supply)
	}
	return e.state.KVPut(reserveKey(r.Token), r)
}

// ConfigureReserve creates or reconfigures the reserve of token. Cash and
// inventory survive reconfiguration.
func (e *Engine) ConfigureReserve(caller crypto.Address, token string, cfg ReserveConfig) (*Reserve, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Require(e.state, common.OpConfigureReserve, caller); err != nil {
		return nil, err
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	if cfg.Account.IsZero() || cfg.Treasury.IsZero() {
		return nil, ErrInvalidAddress
	}
	if cfg.SpreadBps >= common.BpsDenominator || cfg.GuaranteeFundBps > common.BpsDenominator {
		return nil, ErrInvalidBps
	}
	r, err := e.Reserve(symbol)
	fresh := false
	if errors.Is(err, ErrReserveNotConfigured) {
		r = &Reserve{Token: symbol}
		r.ensureDefaults()
		fresh = true
	} else if err != nil {
		return nil, err
	}
	if cfg.GuaranteeFund.IsZero() {
		cfg.GuaranteeFund = revenue.GuaranteeFund.Account()
	}
	changed := fresh || r.Account != cfg.Account || r.Treasury != cfg.Treasury || r.GuaranteeFund != cfg.GuaranteeFund ||
		r.SpreadBps != cfg.SpreadBps || r.GuaranteeFundBps != cfg.GuaranteeFundBps
	if !changed {
		return r, nil
	}
	r.Account = cfg.Account
	r.Treasury = cfg.Treasury
	r.GuaranteeFund = cfg.GuaranteeFund
	r.SpreadBps = cfg.SpreadBps
	r.GuaranteeFundBps = cfg.GuaranteeFundBps
	if err := e.putReserve(r); err != nil {
		return nil, err
	}
	e.emit(newReserveEvent(EventTypeReserveConfigured, r))
	return r, nil
}

// SetSpread updates the spread of token.
func (e *Engine) SetSpread(caller crypto.Address, token string, bps uint32) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpSetSpread, caller); err != nil {
		return err
	}
	if bps >= common.BpsDenominator {
		return ErrInvalidBps
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	if r.SpreadBps == bps {
		return nil
	}
	r.SpreadBps = bps
	if err := e.putReserve(r); err != nil {
		return err
	}
	e.emit(newReserveEvent(EventTypeReserveConfigured, r))
	return nil
}

// SetGuaranteeFund updates the guarantee-fund account and skim of token.
func (e *Engine) SetGuaranteeFund(caller crypto.Address, token string, fund crypto.Address, bps uint32) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpSetGuaranteeFund, caller); err != nil {
		return err
	}
	if bps > common.BpsDenominator {
		return ErrInvalidBps
	}
	if fund.IsZero() {
		fund = revenue.GuaranteeFund.Account()
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	if r.GuaranteeFund == fund && r.GuaranteeFundBps == bps {
		return nil
	}
	r.GuaranteeFund = fund
	r.GuaranteeFundBps = bps
	if err := e.putReserve(r); err != nil {
		return err
	}
	e.emit(newReserveEvent(EventTypeReserveConfigured, r))
	return nil
}

// ProvideLiquidity moves cash from from into the reserve of token.
func (e *Engine) ProvideLiquidity(caller, from crypto.Address, token string, amount *big.Int) error {
	if e.state == nil || e.bank == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpProvideLiquidity, caller); err != nil {
		return err
	}
	return e.creditCash(from, token, amount, EventTypeLiquidityAdded)
}

// CreditCash moves cash from from into the reserve of token on behalf of an
// authorized component.
func (e *Engine) CreditCash(caller, from crypto.Address, token string, amount *big.Int) error {
	if e.state == nil || e.bank == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return err
	}
	return e.creditCash(from, token, amount, EventTypeLiquidityAdded)
}

func (e *Engine) creditCash(from crypto.Address, token string, amount *big.Int, kind string) error {
	if !common.Positive(amount) {
		return ErrInvalidAmount
	}
	r, err := e.Reserve(token)
	if err != nil {
		return err
	}
	if err := e.bank.Transfer(from, r.Account, common.Cash, amount); err != nil {
		return err
	}
	r.Cash.Add(r.Cash, amount)
	if err := e.putReserve(r); err != nil {
		return err
	}
	e.emit(newReserveEvent(kind, r))
	return nil
}

// BuyPrice returns the client buy price of token: vni*(10000+spread)/10000.
func (e *Engine) BuyPrice(token string) (*big.Int, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	r, err := e.Reserve(token)
	if err != nil {
		return nil, err
	}
	nav, err := e.nav.NAV(r.Token)
	if err != nil {
		return nil, err
	}
	return common.ScaleBps(nav, int64(r.SpreadBps)), nil
}

// ReserveRatioBps returns cash*10000/(supply*vni/1e8), or MaxRatio when no
// tokens are outstanding.
func (e *Engine) ReserveRatioBps(token string) (*big.Int, error) {
	if err := e.wired(); err != nil {
		return nil, err
	}
	r, err := e.Reserve(token)
	if err != nil {
		return nil, err
	}
	supply, err := e.state.TotalSupply(r.Token)
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return new(big.Int).Set(MaxRatio), nil
	}
	nav, err := e.nav.NAV(r.Token)
	if err != nil {
		return nil, err
	}
	liability := common.Value(supply, nav)
	if liability.Sign() == 0 {
		return new(big.Int).Set(MaxRatio), nil
	}
	return common.MulDiv(r.Cash, big.NewInt(common.BpsDenominator), liability), nil
}

// requireSpendable distinguishes an escrow-locked shortfall from a plain
// balance shortfall.
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
