package breaker

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
	"fundcore/native/common"
)

// Trigger records why a breaker tripped.
type Trigger string

const (
	TriggerNone  Trigger = ""
	TriggerRatio Trigger = "ratio"
	TriggerPanic Trigger = "panic"
)

const (
	EventTypeTripped          = "breaker.tripped"
	EventTypeReset            = "breaker.reset"
	EventTypeThresholdUpdated = "breaker.threshold.updated"
)

var (
	ErrCircuitTripped   = coreerrors.New(coreerrors.KindResourceState, "breaker: redemptions halted")
	ErrInvalidThreshold = coreerrors.New(coreerrors.KindValidation, "breaker: threshold must not exceed 10000 bps")
	ErrUnknownToken     = coreerrors.New(coreerrors.KindValidation, "breaker: unknown token")
	ErrNilState         = coreerrors.New(coreerrors.KindInternal, "breaker: state not configured")
)

var statePrefix = []byte("breaker/state/")

// State is the breaker record of one token.
type State struct {
	Token        string
	ThresholdBps uint32
	Tripped      bool
	Trigger      Trigger
	TrippedAt    uint64
	TrippedBy    crypto.Address
	Reason       string
	LastRatioBps *big.Int
	ResetAt      uint64
}

// RatioFunc returns the current reserve ratio of a token in basis points.
type RatioFunc func(token string) (*big.Int, error)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr crypto.Address) bool
	TokenExists(symbol string) bool
}

// Engine is the per-token redemption circuit breaker. Tripping happens
// automatically on a low reserve ratio or manually through the panic role;
// only governance resets it.
type Engine struct {
	state            engineState
	emitter          events.Emitter
	nowFn            func() time.Time
	defaultThreshold uint32
}

func NewEngine(defaultThresholdBps uint32) *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now, defaultThreshold: defaultThresholdBps}
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

func key(token string) []byte {
	return append(append([]byte(nil), statePrefix...), token...)
}

// State returns the breaker record of token, defaulting the threshold.
func (e *Engine) State(token string) (*State, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	st := new(State)
	ok, err := e.state.KVGet(key(symbol), st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &State{Token: symbol, ThresholdBps: e.defaultThreshold, LastRatioBps: big.NewInt(0)}, nil
	}
	if st.LastRatioBps == nil {
		st.LastRatioBps = big.NewInt(0)
	}
	return st, nil
}

func (e *Engine) put(st *State) error {
	return e.state.KVPut(key(st.Token), st)
}

func (e *Engine) load(token string) (*State, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return e.State(symbol)
}

// RequireRedemptionsOpen fails with ErrCircuitTripped while token is tripped.
func (e *Engine) RequireRedemptionsOpen(token string) error {
	st, err := e.State(token)
	if err != nil {
		return err
	}
	if st.Tripped {
		return fmt.Errorf("%w: %s (%s)", ErrCircuitTripped, st.Token, st.Trigger)
	}
	return nil
}

// SetThreshold updates the trip threshold of token.
func (e *Engine) SetThreshold(caller crypto.Address, token string, bps uint32) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpSetThreshold, caller); err != nil {
		return err
	}
	if bps > common.BpsDenominator {
		return ErrInvalidThreshold
	}
	st, err := e.load(token)
	if err != nil {
		return err
	}
	if st.ThresholdBps == bps {
		return nil
	}
	st.ThresholdBps = bps
	if err := e.put(st); err != nil {
		return err
	}
	e.emit(EventTypeThresholdUpdated, st)
	return nil
}

// CheckAndTripRedemptions trips token when its reserve ratio is below the
// threshold. Calling it on a tripped token or a healthy ratio is a no-op. The
// returned flag reports whether this call tripped the breaker.
func (e *Engine) CheckAndTripRedemptions(token string, ratio RatioFunc) (bool, error) {
	st, err := e.load(token)
	if err != nil {
		return false, err
	}
	if st.Tripped {
		return false, nil
	}
	if ratio == nil {
		return false, fmt.Errorf("breaker: ratio source not configured")
	}
	current, err := ratio(st.Token)
	if err != nil {
		return false, err
	}
	if current.Cmp(new(big.Int).SetUint64(uint64(st.ThresholdBps))) >= 0 {
		return false, nil
	}
	st.LastRatioBps = new(big.Int).Set(current)
	e.trip(st, TriggerRatio, crypto.Address{}, "reserve ratio below threshold")
	if err := e.put(st); err != nil {
		return false, err
	}
	e.emit(EventTypeTripped, st)
	return true, nil
}

// PanicTrip halts redemptions of token regardless of its ratio.
func (e *Engine) PanicTrip(caller crypto.Address, token, reason string) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpPanicTrip, caller); err != nil {
		return err
	}
	st, err := e.load(token)
	if err != nil {
		return err
	}
	if st.Tripped {
		return nil
	}
	e.trip(st, TriggerPanic, caller, reason)
	if err := e.put(st); err != nil {
		return err
	}
	e.emit(EventTypeTripped, st)
	return nil
}

func (e *Engine) trip(st *State, trigger Trigger, by crypto.Address, reason string) {
	st.Tripped = true
	st.Trigger = trigger
	st.TrippedAt = uint64(e.nowFn().Unix())
	st.TrippedBy = by
	st.Reason = strings.TrimSpace(reason)
}

// Reset re-opens redemptions of token. Only governance may reset; resetting
// an open breaker is a no-op.
func (e *Engine) Reset(caller crypto.Address, token string) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpResetBreaker, caller); err != nil {
		return err
	}
	st, err := e.load(token)
	if err != nil {
		return err
	}
	if !st.Tripped {
		return nil
	}
	prior := st.Trigger
	st.Tripped = false
	st.ResetAt = uint64(e.nowFn().Unix())
	st.Trigger = TriggerNone
	st.TrippedBy = crypto.Address{}
	st.Reason = ""
	if err := e.put(st); err != nil {
		return err
	}
	evt := *st
	evt.Trigger = prior
	e.emit(EventTypeReset, &evt)
	return nil
}

func (e *Engine) emit(kind string, st *State) {
	attrs := map[string]string{
		"token":        st.Token,
		"thresholdBps": strconv.FormatUint(uint64(st.ThresholdBps), 10),
		"tripped":      strconv.FormatBool(st.Tripped),
		"trigger":      string(st.Trigger),
	}
	if kind == EventTypeTripped {
		attrs["ratioBps"] = st.LastRatioBps.String()
		attrs["reason"] = st.Reason
		if !st.TrippedBy.IsZero() {
			attrs["by"] = st.TrippedBy.String()
		}
	}
	e.emitter.Emit(events.Typed{Evt: &types.Event{Type: kind, Attributes: attrs}})
}
