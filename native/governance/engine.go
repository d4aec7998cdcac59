package governance

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/types"
	"fundcore/crypto"
)

const moduleName = "council"

// Address is the council's own identity. Executed calls reach their targets
// with it as the caller.
var Address = crypto.ModuleAddress(moduleName)

var (
	ErrNilState                  = coreerrors.New(coreerrors.KindInternal, "governance: state not configured")
	ErrNoDispatcher              = coreerrors.New(coreerrors.KindInternal, "governance: dispatcher not configured")
	ErrInvalidOwners             = coreerrors.New(coreerrors.KindValidation, "governance: invalid owner set")
	ErrInvalidThreshold          = coreerrors.New(coreerrors.KindValidation, "governance: invalid threshold")
	ErrInvalidMethod             = coreerrors.New(coreerrors.KindValidation, "governance: method must not be empty")
	ErrInvalidValue              = coreerrors.New(coreerrors.KindValidation, "governance: value must not be negative")
	ErrInvalidPayload            = coreerrors.New(coreerrors.KindValidation, "governance: invalid call payload")
	ErrTxNotFound                = coreerrors.New(coreerrors.KindValidation, "governance: transaction not found")
	ErrOwnerExists               = coreerrors.New(coreerrors.KindValidation, "governance: already an owner")
	ErrUnknownOwner              = coreerrors.New(coreerrors.KindValidation, "governance: not an owner")
	ErrNotOwner                  = coreerrors.New(coreerrors.KindAuthorization, "governance: caller is not a council owner")
	ErrNotCouncil                = coreerrors.New(coreerrors.KindAuthorization, "governance: caller is not the council")
	ErrAlreadyInitialized        = coreerrors.New(coreerrors.KindResourceState, "governance: council already initialized")
	ErrNotInitialized            = coreerrors.New(coreerrors.KindResourceState, "governance: council not initialized")
	ErrAlreadyExecuted           = coreerrors.New(coreerrors.KindResourceState, "governance: transaction already executed")
	ErrInsufficientConfirmations = coreerrors.New(coreerrors.KindResourceState, "governance: not enough confirmations")
)

var (
	councilKey = []byte("governance/council")
	txPrefix   = []byte("governance/tx/")
	txIndexKey = []byte("governance/txs")
)

func txKey(id uint64) []byte {
	return append(append([]byte(nil), txPrefix...), new(big.Int).SetUint64(id).Bytes()...)
}

type councilState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextSequence(name string) (uint64, error)
}

// Dispatcher performs an executed council call against the rest of the
// core.
type Dispatcher interface {
	Dispatch(caller crypto.Address, method string, value *big.Int, data []byte) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(caller crypto.Address, method string, value *big.Int, data []byte) error

func (f DispatcherFunc) Dispatch(caller crypto.Address, method string, value *big.Int, data []byte) error {
	return f(caller, method, value, data)
}

// Engine is the M-of-N council gating privileged calls.
type Engine struct {
	state      councilState
	dispatcher Dispatcher
	emitter    events.Emitter
	nowFn      func() time.Time
}

// NewEngine constructs a council engine with default no-op dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) SetState(s councilState) { e.state = s }

// SetDispatcher sets the target of executed calls other than council.*.
func (e *Engine) SetDispatcher(d Dispatcher) { e.dispatcher = d }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Typed{Evt: evt})
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().Unix())
}

// Council returns the current owner set.
func (e *Engine) Council() (*Council, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	c := new(Council)
	ok, err := e.state.KVGet(councilKey, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return c, nil
}

func (e *Engine) putCouncil(c *Council) error {
	return e.state.KVPut(councilKey, c)
}

// Init installs the owner set. It succeeds once.
func (e *Engine) Init(owners []crypto.Address, threshold uint32) (*Council, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.Council(); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	if err := validateCouncil(owners, threshold); err != nil {
		return nil, err
	}
	c := &Council{Address: Address, Owners: append([]crypto.Address(nil), owners...), Threshold: threshold}
	if err := e.putCouncil(c); err != nil {
		return nil, err
	}
	e.emit(newCouncilEvent(EventTypeInitialized, c))
	return c.Clone(), nil
}

func (e *Engine) requireOwner(owner crypto.Address) (*Council, error) {
	c, err := e.Council()
	if err != nil {
		return nil, err
	}
	if !c.IsOwner(owner) {
		return nil, ErrNotOwner
	}
	return c, nil
}

func (e *Engine) load(id uint64) (*Transaction, error) {
	t := new(Transaction)
	ok, err := e.state.KVGet(txKey(id), t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTxNotFound, id)
	}
	if t.Value == nil {
		t.Value = big.NewInt(0)
	}
	return t, nil
}

// SubmitTransaction records a pending call. The submitter does not confirm
// it implicitly.
func (e *Engine) SubmitTransaction(owner crypto.Address, to string, value *big.Int, data []byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if _, err := e.requireOwner(owner); err != nil {
		return 0, err
	}
	method := strings.TrimSpace(to)
	if method == "" {
		return 0, ErrInvalidMethod
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return 0, ErrInvalidValue
	}
	id, err := e.state.NextSequence(moduleName)
	if err != nil {
		return 0, err
	}
	t := &Transaction{
		ID:          id,
		Submitter:   owner,
		To:          method,
		Value:       new(big.Int).Set(value),
		Data:        append([]byte(nil), data...),
		Status:      StatusPending,
		SubmittedAt: e.now(),
	}
	if err := e.state.KVPut(txKey(id), t); err != nil {
		return 0, err
	}
	if err := e.state.KVAppend(txIndexKey, new(big.Int).SetUint64(id).Bytes()); err != nil {
		return 0, err
	}
	e.emit(newTxEvent(EventTypeSubmitted, t, owner))
	return id, nil
}

// ConfirmTransaction adds owner's confirmation. Confirming twice is a no-op;
// the boolean reports whether the set changed.
func (e *Engine) ConfirmTransaction(owner crypto.Address, id uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if _, err := e.requireOwner(owner); err != nil {
		return false, err
	}
	t, err := e.load(id)
	if err != nil {
		return false, err
	}
	if t.Executed() {
		return false, fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}
	if t.ConfirmedBy(owner) {
		return false, nil
	}
	t.Confirmations = append(t.Confirmations, owner)
	if err := e.state.KVPut(txKey(id), t); err != nil {
		return false, err
	}
	e.emit(newTxEvent(EventTypeConfirmed, t, owner))
	return true, nil
}

// Confirmations counts the confirmations of t held by current owners.
func (c *Council) Confirmations(t *Transaction) uint32 {
	var n uint32
	for _, owner := range t.Confirmations {
		if c.IsOwner(owner) {
			n++
		}
	}
	return n
}

// ExecuteTransaction runs a sufficiently confirmed transaction with the
// council as caller. A failing call leaves the transaction pending.
func (e *Engine) ExecuteTransaction(owner crypto.Address, id uint64) (*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	c, err := e.requireOwner(owner)
	if err != nil {
		return nil, err
	}
	t, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if t.Executed() {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}
	if got := c.Confirmations(t); got < c.Threshold {
		return nil, fmt.Errorf("%w: %d of %d", ErrInsufficientConfirmations, got, c.Threshold)
	}
	if err := e.call(t); err != nil {
		return nil, fmt.Errorf("governance: execute %d (%s): %w", id, t.To, err)
	}
	t.Status = StatusExecuted
	t.ExecutedAt = e.now()
	if err := e.state.KVPut(txKey(id), t); err != nil {
		return nil, err
	}
	e.emit(newTxEvent(EventTypeExecuted, t, owner))
	return t.Clone(), nil
}

func (e *Engine) call(t *Transaction) error {
	if isCouncilMethod(t.To) {
		return e.dispatchCouncil(t.To, t.Data)
	}
	if e.dispatcher == nil {
		return ErrNoDispatcher
	}
	return e.dispatcher.Dispatch(Address, t.To, new(big.Int).Set(t.Value), append([]byte(nil), t.Data...))
}

// Transaction returns the transaction with id.
func (e *Engine) Transaction(id uint64) (*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.load(id)
}

// List returns every transaction in submission order.
func (e *Engine) List() ([]*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	var ids []uint64
	if err := e.state.KVGetList(txIndexKey, &ids); err != nil {
		return nil, err
	}
	out := make([]*Transaction, 0, len(ids))
	for _, id := range ids {
		t, err := e.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
