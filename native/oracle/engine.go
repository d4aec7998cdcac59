package oracle

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/state"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
)

const (
	EventTypeNAVUpdated        = "oracle.nav.updated"
	EventTypeNAVHeartbeat      = "oracle.nav.heartbeat"
	EventTypeVolatilityUpdated = "oracle.volatility.updated"
)

var (
	ErrInvalidVNI       = coreerrors.New(coreerrors.KindValidation, "oracle: vni must be positive")
	ErrInvalidBps       = coreerrors.New(coreerrors.KindValidation, "oracle: volatility must not exceed 10000 bps")
	ErrStaleUpdate      = coreerrors.New(coreerrors.KindValidation, "oracle: update older than stored nav")
	ErrUnknownToken     = coreerrors.New(coreerrors.KindValidation, "oracle: unknown token")
	ErrNAVUninitialised = coreerrors.New(coreerrors.KindResourceState, "oracle: nav not initialised")
	ErrNAVStale         = coreerrors.New(coreerrors.KindResourceState, "oracle: nav stale")
	ErrNilState         = coreerrors.New(coreerrors.KindInternal, "oracle: state not configured")
)

var navPrefix = []byte("oracle/nav/")

func navKey(token string) []byte {
	return append(append([]byte(nil), navPrefix...), []byte(token)...)
}

// Record is the NAV entry of one fund token.
type Record struct {
	Token         string
	VNI           *big.Int
	UpdatedAt     uint64
	VolatilityBps uint32
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr crypto.Address) bool
	TokenExists(symbol string) bool
}

// Engine stores NAV and volatility per token. Reads fail closed on missing
// or stale values.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
	maxAge  time.Duration
}

// NewEngine constructs an oracle with no staleness bound.
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

// SetMaxAge bounds how old a NAV may be before reads reject it. Zero
// disables the bound.
func (e *Engine) SetMaxAge(d time.Duration) { e.maxAge = d }

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

// Record returns the raw NAV entry of token. Missing entries return a zero
// record.
func (e *Engine) Record(token string) (*Record, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	symbol := state.NormalizeSymbol(token)
	rec := new(Record)
	ok, err := e.state.KVGet(navKey(symbol), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Record{Token: symbol, VNI: big.NewInt(0)}, nil
	}
	if rec.VNI == nil {
		rec.VNI = big.NewInt(0)
	}
	return rec, nil
}

// NAV returns the current vni of token. Uninitialised or stale values are
// rejected.
func (e *Engine) NAV(token string) (*big.Int, error) {
	rec, err := e.Record(token)
	if err != nil {
		return nil, err
	}
	if rec.VNI.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNAVUninitialised, rec.Token)
	}
	if e.maxAge > 0 {
		now := e.nowFn().Unix()
		if now-int64(rec.UpdatedAt) > int64(e.maxAge/time.Second) {
			return nil, fmt.Errorf("%w: %s updated at %d", ErrNAVStale, rec.Token, rec.UpdatedAt)
		}
	}
	return new(big.Int).Set(rec.VNI), nil
}

// UpdateVNI publishes a new NAV for token. at defaults to now; updates older
// than the stored timestamp are rejected. Re-publishing the stored value is a
// no-op, or a heartbeat when at is newer.
func (e *Engine) UpdateVNI(caller crypto.Address, token string, vni *big.Int, at uint64) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpUpdateVNI, caller); err != nil {
		return err
	}
	if !common.Positive(vni) {
		return ErrInvalidVNI
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	if at == 0 {
		at = uint64(e.nowFn().Unix())
	}
	rec, err := e.Record(symbol)
	if err != nil {
		return err
	}
	if at < rec.UpdatedAt {
		return fmt.Errorf("%w: %d < %d", ErrStaleUpdate, at, rec.UpdatedAt)
	}
	if rec.VNI.Cmp(vni) == 0 {
		if at == rec.UpdatedAt {
			return nil
		}
		rec.UpdatedAt = at
		if err := e.state.KVPut(navKey(symbol), rec); err != nil {
			return err
		}
		e.emit(navEvent(EventTypeNAVHeartbeat, rec))
		return nil
	}
	rec.VNI = new(big.Int).Set(vni)
	rec.UpdatedAt = at
	if err := e.state.KVPut(navKey(symbol), rec); err != nil {
		return err
	}
	e.emit(navEvent(EventTypeNAVUpdated, rec))
	return nil
}

// SetVolatility records the volatility estimate of token.
func (e *Engine) SetVolatility(caller crypto.Address, token string, bps uint32) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, common.OpSetVolatility, caller); err != nil {
		return err
	}
	if bps > common.BpsDenominator {
		return ErrInvalidBps
	}
	symbol := state.NormalizeSymbol(token)
	if !e.state.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	rec, err := e.Record(symbol)
	if err != nil {
		return err
	}
	if rec.VolatilityBps == bps {
		return nil
	}
	rec.VolatilityBps = bps
	if err := e.state.KVPut(navKey(symbol), rec); err != nil {
		return err
	}
	e.emit(navEvent(EventTypeVolatilityUpdated, rec))
	return nil
}

func navEvent(kind string, rec *Record) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"token":         rec.Token,
			"vni":           rec.VNI.String(),
			"updatedAt":     strconv.FormatUint(rec.UpdatedAt, 10),
			"volatilityBps": strconv.FormatUint(uint64(rec.VolatilityBps), 10),
		},
	}
}
