package bank

import (
	"fmt"
	"math/big"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
)

const (
	EventTypeTransfer = "bank.transfer"
	moduleName        = "bank"
)

var (
	ErrInvalidAmount       = coreerrors.New(coreerrors.KindValidation, "bank: amount must be positive")
	ErrInvalidAddress      = coreerrors.New(coreerrors.KindValidation, "bank: invalid address")
	ErrUnknownToken        = coreerrors.New(coreerrors.KindValidation, "bank: unknown token")
	ErrEscrowLocked        = coreerrors.New(coreerrors.KindResourceState, "bank: transfer touches escrow-locked tokens")
	ErrInsufficientBalance = state.ErrInsufficientBalance
	ErrNilState            = coreerrors.New(coreerrors.KindInternal, "bank: state not configured")
)

type ledger interface {
	TokenExists(symbol string) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
	Move(from, to crypto.Address, symbol string, amount *big.Int) error
}

// LockView exposes escrowed amounts.
type LockView interface {
	Locked(holder crypto.Address, token string) (*big.Int, error)
}

// Bank moves balances while honouring escrow locks.
type Bank struct {
	state   ledger
	locks   LockView
	pauses  common.PauseView
	emitter events.Emitter
}

func New(s ledger, locks LockView) *Bank {
	return &Bank{state: s, locks: locks, emitter: events.NoopEmitter{}}
}

func (b *Bank) SetPauses(p common.PauseView) { b.pauses = p }

func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

// Spendable returns balance minus escrow locks.
func (b *Bank) Spendable(addr crypto.Address, token string) (*big.Int, error) {
	if b.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	balance, err := b.state.Balance(addr, symbol)
	if err != nil {
		return nil, err
	}
	if b.locks == nil {
		return balance, nil
	}
	locked, err := b.locks.Locked(addr, symbol)
	if err != nil {
		return nil, err
	}
	spendable := new(big.Int).Sub(balance, locked)
	if spendable.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return spendable, nil
}

// Transfer moves amount from one account to another. A transfer that would
// leave the sender below its escrowed amount fails with ErrEscrowLocked.
func (b *Bank) Transfer(from, to crypto.Address, token string, amount *big.Int) error {
	if b.state == nil {
		return ErrNilState
	}
	if err := common.Guard(b.pauses, moduleName); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return ErrInvalidAmount
	}
	symbol := state.NormalizeSymbol(token)
	if !b.state.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	balance, err := b.state.Balance(from, symbol)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, balance, amount)
	}
	spendable, err := b.Spendable(from, symbol)
	if err != nil {
		return err
	}
	if spendable.Cmp(amount) < 0 {
		return fmt.Errorf("%w: spendable %s need %s", ErrEscrowLocked, spendable, amount)
	}
	if err := b.state.Move(from, to, symbol, amount); err != nil {
		return err
	}
	b.emitter.Emit(events.Typed{Evt: &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"token":  symbol,
			"amount": amount.String(),
		},
	}})
	return nil
}
