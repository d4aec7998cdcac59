package escrow

import (
	"fmt"
	"math/big"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
)

var (
	ErrInvalidAmount  = coreerrors.New(coreerrors.KindValidation, "escrow: amount must be positive")
	ErrInvalidHolder  = coreerrors.New(coreerrors.KindValidation, "escrow: invalid holder")
	ErrUnknownToken   = coreerrors.New(coreerrors.KindValidation, "escrow: unknown token")
	ErrEscrowOverLock = coreerrors.New(coreerrors.KindFatal, "escrow: locks exceed holder balance")
	ErrLockUnderflow  = coreerrors.New(coreerrors.KindFatal, "escrow: release exceeds lock")
	ErrNilState       = coreerrors.New(coreerrors.KindInternal, "escrow: state not configured")
)

var (
	lockPrefix  = []byte("escrow/lock/")
	totalPrefix = []byte("escrow/total/")
	indexPrefix = []byte("escrow/index/")
)

func lockKey(caller, holder crypto.Address, token string) []byte {
	key := append([]byte(nil), lockPrefix...)
	key = append(key, token...)
	key = append(key, holder[:]...)
	return append(key, caller[:]...)
}

func totalKey(holder crypto.Address, token string) []byte {
	key := append([]byte(nil), totalPrefix...)
	key = append(key, token...)
	return append(key, holder[:]...)
}

func indexKey(holder crypto.Address) []byte {
	return append(append([]byte(nil), indexPrefix...), holder[:]...)
}

// index entries are caller||token.
func indexEntry(caller crypto.Address, token string) []byte {
	return append(append([]byte(nil), caller[:]...), token...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	IsAuthorizedCaller(component string, caller crypto.Address) bool
	TokenExists(symbol string) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	Move(from, to crypto.Address, symbol string, amount *big.Int) error
}

// Engine keeps per-holder token locks keyed by the component that placed
// them. Only components in the escrow capability table may lock, unlock or
// seize.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

func (e *Engine) SetState(s engineState) { e.state = s }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

func (e *Engine) validate(caller, holder crypto.Address, token string, amount *big.Int) (string, error) {
	if e.state == nil {
		return "", ErrNilState
	}
	if err := common.RequireCaller(e.state, Component, caller); err != nil {
		return "", err
	}
	if holder.IsZero() {
		return "", ErrInvalidHolder
	}
	if !common.Positive(amount) {
		return "", ErrInvalidAmount
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return symbol, nil
}

func (e *Engine) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := e.state.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// Locked returns the sum of every lock on holder's token balance.
func (e *Engine) Locked(holder crypto.Address, token string) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadAmount(totalKey(holder, state.NormalizeSymbol(token)))
}

// LockedBy returns the lock caller holds on holder's token balance.
func (e *Engine) LockedBy(caller, holder crypto.Address, token string) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	lock, err := e.lock(caller, holder, state.NormalizeSymbol(token))
	if err != nil {
		return nil, err
	}
	return lock.Amount, nil
}

func (e *Engine) lock(caller, holder crypto.Address, symbol string) (*Lock, error) {
	lock := new(Lock)
	ok, err := e.state.KVGet(lockKey(caller, holder, symbol), lock)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Lock{Caller: caller, Holder: holder, Token: symbol, Amount: big.NewInt(0)}, nil
	}
	if lock.Amount == nil {
		lock.Amount = big.NewInt(0)
	}
	return lock, nil
}

// Locks lists every non-zero lock placed on holder.
func (e *Engine) Locks(holder crypto.Address) ([]*Lock, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var entries [][]byte
	if err := e.state.KVGetList(indexKey(holder), &entries); err != nil {
		return nil, err
	}
	out := make([]*Lock, 0, len(entries))
	for _, entry := range entries {
		if len(entry) <= len(crypto.Address{}) {
			continue
		}
		var caller crypto.Address
		copy(caller[:], entry[:len(caller)])
		lock, err := e.lock(caller, holder, string(entry[len(caller):]))
		if err != nil {
			return nil, err
		}
		if lock.Amount.Sign() > 0 {
			out = append(out, lock)
		}
	}
	return out, nil
}

func (e *Engine) store(lock *Lock, total *big.Int) error {
	lock.UpdatedAt = uint64(e.nowFn().Unix())
	key := lockKey(lock.Caller, lock.Holder, lock.Token)
	entry := indexEntry(lock.Caller, lock.Token)
	if lock.Amount.Sign() == 0 {
		if err := e.state.KVDelete(key); err != nil {
			return err
		}
		if err := e.state.KVRemove(indexKey(lock.Holder), entry); err != nil {
			return err
		}
	} else {
		if err := e.state.KVPut(key, lock); err != nil {
			return err
		}
		if err := e.state.KVAppend(indexKey(lock.Holder), entry); err != nil {
			return err
		}
	}
	return e.state.KVPut(totalKey(lock.Holder, lock.Token), total)
}

// Lock adds amount to caller's lock on holder's token balance. Callers are
// expected to have checked spendable balance; a lock total above the balance
// is an invariant breach.
func (e *Engine) Lock(caller, holder crypto.Address, token string, amount *big.Int) error {
	symbol, err := e.validate(caller, holder, token, amount)
	if err != nil {
		return err
	}
	total, err := e.Locked(holder, symbol)
	if err != nil {
		return err
	}
	balance, err := e.state.Balance(holder, symbol)
	if err != nil {
		return err
	}
	total.Add(total, amount)
	if total.Cmp(balance) > 0 {
		return fmt.Errorf("%w: locked %s balance %s", ErrEscrowOverLock, total, balance)
	}
	lock, err := e.lock(caller, holder, symbol)
	if err != nil {
		return err
	}
	lock.Amount.Add(lock.Amount, amount)
	if err := e.store(lock, total); err != nil {
		return err
	}
	e.emit(NewLockedEvent(lock, amount))
	return nil
}

func (e *Engine) release(caller, holder crypto.Address, symbol string, amount *big.Int) (*Lock, error) {
	lock, err := e.lock(caller, holder, symbol)
	if err != nil {
		return nil, err
	}
	if lock.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: lock %s release %s", ErrLockUnderflow, lock.Amount, amount)
	}
	total, err := e.Locked(holder, symbol)
	if err != nil {
		return nil, err
	}
	if total.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: total %s release %s", ErrLockUnderflow, total, amount)
	}
	lock.Amount.Sub(lock.Amount, amount)
	total.Sub(total, amount)
	if err := e.store(lock, total); err != nil {
		return nil, err
	}
	return lock, nil
}

// Unlock releases amount from caller's own lock.
func (e *Engine) Unlock(caller, holder crypto.Address, token string, amount *big.Int) error {
	symbol, err := e.validate(caller, holder, token, amount)
	if err != nil {
		return err
	}
	lock, err := e.release(caller, holder, symbol, amount)
	if err != nil {
		return err
	}
	e.emit(NewUnlockedEvent(lock, amount))
	return nil
}

// Seize releases amount from caller's lock and transfers it to to.
func (e *Engine) Seize(caller, holder crypto.Address, token string, amount *big.Int, to crypto.Address) error {
	symbol, err := e.validate(caller, holder, token, amount)
	if err != nil {
		return err
	}
	if to.IsZero() {
		return ErrInvalidHolder
	}
	lock, err := e.release(caller, holder, symbol, amount)
	if err != nil {
		return err
	}
	if err := e.state.Move(holder, to, symbol, amount); err != nil {
		return err
	}
	e.emit(NewSeizedEvent(lock, amount, to))
	return nil
}
