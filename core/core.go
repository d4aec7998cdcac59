// Package core wires the settlement and risk engines over one journaled
// ledger and exposes every mutating operation as an atomic unit.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fundcore/config"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/breaker"
	"fundcore/native/common"
	"fundcore/native/credit"
	"fundcore/native/escrow"
	"fundcore/native/fees"
	"fundcore/native/funds"
	"fundcore/native/governance"
	"fundcore/native/oracle"
	"fundcore/native/orderbook"
	"fundcore/native/pool"
	"fundcore/native/registry"
	"fundcore/native/reservation"
	"fundcore/native/revenue"
	"fundcore/observability"
	"fundcore/observability/logging"
	"fundcore/observability/otel"
	"fundcore/storage"
)

// Option customises a Core at construction.
type Option func(*Core)

// WithEmitter forwards committed events (domain events followed by the
// operation record) to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *Core) {
		if emitter != nil {
			c.sink = emitter
		}
	}
}

// WithClock overrides the wall clock used by every engine.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		if now != nil {
			c.nowFn = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithReservationIDs overrides reservation id generation.
func WithReservationIDs(fn func() string) Option {
	return func(c *Core) { c.reservationIDs = fn }
}

// Core owns the ledger. Mutations are serialized; each runs against the
// shared journal and either commits as one batch or leaves no trace.
type Core struct {
	mu sync.RWMutex

	db     storage.Database
	state  *state.Manager
	buffer *events.Buffer
	sp     *savepoints
	sink   events.Emitter
	log    *slog.Logger
	nowFn  func() time.Time
	cfg    *config.Config

	reservationIDs func() string

	registry    *registry.Engine
	oracle      *oracle.Engine
	funds       *funds.Engine
	escrow      *escrow.Engine
	bank        *bank.Bank
	router      *revenue.Router
	breaker     *breaker.Engine
	pool        *pool.Engine
	reservation *reservation.Engine
	creditA     *credit.Engine
	creditB     *credit.Engine
	orderbook   *orderbook.Engine
	council     *governance.Engine
}

// New builds a Core over db configured by cfg. Structural wiring (the cash
// token and component capabilities) is committed before New returns.
func New(db storage.Database, cfg *config.Config, opts ...Option) (*Core, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	creditParams, err := cfg.CreditParams()
	if err != nil {
		return nil, err
	}

	c := &Core{
		db:     db,
		state:  state.NewManager(db),
		buffer: &events.Buffer{},
		sink:   events.NoopEmitter{},
		log:    slog.Default(),
		nowFn:  time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(slog.String("component", "core"))
	c.sp = newSavepoints(c.state, c.buffer)

	policy := cfg.FeePolicy()
	pauses := cfg.Pauses
	now := c.nowFn

	c.registry = registry.NewEngine()
	c.registry.SetState(c.state)
	c.registry.SetNowFunc(now)
	c.registry.SetEmitter(c.buffer)

	c.oracle = oracle.NewEngine()
	c.oracle.SetState(c.state)
	c.oracle.SetNowFunc(now)
	c.oracle.SetMaxAge(cfg.OracleMaxAge())
	c.oracle.SetEmitter(c.buffer)

	c.funds = funds.NewEngine()
	c.funds.SetState(c.state)
	c.funds.SetNowFunc(now)
	c.funds.SetEmitter(c.buffer)

	c.escrow = escrow.NewEngine()
	c.escrow.SetState(c.state)
	c.escrow.SetNowFunc(now)
	c.escrow.SetEmitter(c.buffer)

	c.bank = bank.New(c.state, c.escrow)
	c.bank.SetPauses(pauses)
	c.bank.SetEmitter(c.buffer)

	c.router = revenue.NewRouter()
	c.router.SetState(c.state)
	c.router.SetBank(c.bank)
	c.router.SetEmitter(c.buffer)

	c.breaker = breaker.NewEngine(cfg.Breaker.DefaultThresholdBps)
	c.breaker.SetState(c.state)
	c.breaker.SetNowFunc(now)
	c.breaker.SetEmitter(c.buffer)

	c.pool = pool.NewEngine(cfg.PoolParams(), policy)
	c.pool.SetState(c.state)
	c.pool.SetOracle(c.oracle)
	c.pool.SetRegistry(c.registry)
	c.pool.SetBreaker(c.breaker)
	c.pool.SetBank(c.bank)
	c.pool.SetRouter(c.router)
	c.pool.SetPauses(pauses)
	c.pool.SetEmitter(c.buffer)

	c.reservation = reservation.NewEngine(policy)
	c.reservation.SetState(c.state)
	c.reservation.SetPool(c.pool)
	c.reservation.SetRegistry(c.registry)
	c.reservation.SetBank(c.bank)
	c.reservation.SetRouter(c.router)
	c.reservation.SetPauses(pauses)
	c.reservation.SetMaxTerm(cfg.ReservationMaxTerm())
	c.reservation.SetNowFunc(now)
	c.reservation.SetEmitter(c.buffer)
	if c.reservationIDs != nil {
		c.reservation.SetIDFunc(c.reservationIDs)
	}

	c.creditA = c.newCredit("credit-a", credit.ModelA, creditParams, pauses)
	c.creditB = c.newCredit("credit-b", credit.ModelB, creditParams, pauses)

	c.orderbook = orderbook.NewEngine(policy)
	c.orderbook.SetState(c.state)
	c.orderbook.SetSavepoints(c.sp)
	c.orderbook.SetPool(c.pool)
	c.orderbook.SetRegistry(c.registry)
	c.orderbook.SetEscrow(c.escrow)
	c.orderbook.SetBank(c.bank)
	c.orderbook.SetRouter(c.router)
	c.orderbook.SetPauses(pauses)
	c.orderbook.SetQuota(cfg.OrderQuota())
	c.orderbook.SetNowFunc(now)
	c.orderbook.SetEmitter(c.buffer)

	c.council = governance.NewEngine()
	c.council.SetState(c.state)
	c.council.SetDispatcher(governance.DispatcherFunc(c.dispatch))
	c.council.SetNowFunc(now)
	c.council.SetEmitter(c.buffer)

	if err := c.apply("core.wire", "core", crypto.Address{}, c.wire); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Core) newCredit(name string, model credit.Model, params credit.Params, pauses common.PauseView) *credit.Engine {
	e := credit.NewEngine(name, model, params)
	e.SetState(c.state)
	e.SetOracle(c.oracle)
	e.SetRegistry(c.registry)
	e.SetEscrow(c.escrow)
	e.SetBank(c.bank)
	e.SetRouter(c.router)
	e.SetPauses(pauses)
	e.SetNowFunc(c.nowFn)
	e.SetEmitter(c.buffer)
	return e
}

// capabilities lists which component may reach which privileged entry
// point.
func (c *Core) capabilities() []struct {
	component string
	caller    crypto.Address
} {
	return []struct {
		component string
		caller    crypto.Address
	}{
		{revenue.Component, pool.Address},
		{revenue.Component, reservation.Address},
		{pool.Component, reservation.Address},
		{escrow.Component, orderbook.Address},
		{revenue.Component, orderbook.Address},
		{pool.Component, orderbook.Address},
		{escrow.Component, c.creditA.Address()},
		{revenue.Component, c.creditA.Address()},
		{escrow.Component, c.creditB.Address()},
		{revenue.Component, c.creditB.Address()},
	}
}

func (c *Core) wire() (interface{}, error) {
	if err := c.state.RegisterToken(common.Cash, "Tunisian dinar", common.Decimals); err != nil {
		return nil, err
	}
	for _, capability := range c.capabilities() {
		if _, err := c.state.AuthorizeCaller(capability.component, capability.caller); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (c *Core) now() uint64 { return uint64(c.nowFn().Unix()) }

// apply runs fn as one atomic unit. On success the journal is committed,
// buffered domain events are forwarded, and an operation record carrying
// fn's result is emitted. On failure every staged write and event is
// dropped. Units that change nothing commit nothing and emit nothing.
func (c *Core) apply(kind, entity string, caller crypto.Address, fn func() (interface{}, error)) error {
	start := time.Now()
	_, span := otel.StartOperation(context.Background(), kind, entity)

	c.mu.Lock()
	committed, err := c.applyLocked(kind, entity, caller, fn)
	c.mu.Unlock()

	otel.EndOperation(span, err)
	observability.Ledger().ObserveOperation(kind, time.Since(start), err)
	attrs := []any{
		slog.String("kind", kind),
		slog.String("entity", entity),
		logging.AddressField("caller", addressString(caller)),
		slog.Duration("elapsed", time.Since(start)),
	}
	switch {
	case err != nil:
		c.log.Warn("operation rejected", append(attrs, slog.String("outcome", observability.Outcome(err)), slog.Any("error", err))...)
	case committed:
		c.log.Info("operation committed", attrs...)
	default:
		c.log.Debug("operation had no effect", attrs...)
	}
	return err
}

func (c *Core) applyLocked(kind, entity string, caller crypto.Address, fn func() (interface{}, error)) (bool, error) {
	c.sp.reset()
	result, err := fn()
	if err != nil {
		c.rollback()
		return false, err
	}
	if !c.state.Dirty() && c.buffer.Len() == 0 {
		c.sp.reset()
		return false, nil
	}
	if err := c.state.Commit(); err != nil {
		c.rollback()
		return false, fmt.Errorf("core: commit %s: %w", kind, err)
	}
	c.sp.reset()

	pending := c.buffer.Events()
	c.buffer.Reset()
	emitted := make([]string, 0, len(pending))
	for _, evt := range pending {
		c.sink.Emit(evt)
		observability.Events().RecordEvent(evt.EventType())
		emitted = append(emitted, evt.EventType())
	}
	c.sink.Emit(events.Operation{
		Kind:   kind,
		Entity: entity,
		Caller: caller,
		State:  result,
		At:     c.now(),
		Events: emitted,
	})
	return true, nil
}

func (c *Core) rollback() {
	c.state.Discard()
	c.buffer.Reset()
	c.sp.reset()
}

func addressString(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

// FeePolicy returns the active fee schedules.
func (c *Core) FeePolicy() fees.Policy { return c.pool.FeePolicy() }

// Config returns the configuration the core was built with.
func (c *Core) Config() *config.Config { return c.cfg }
