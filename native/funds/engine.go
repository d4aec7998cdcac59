package funds

import (
	"fmt"
	"sort"
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

const EventTypeFundCreated = "funds.created"

var (
	ErrInvalidFundID = coreerrors.New(coreerrors.KindValidation, "funds: invalid fund id")
	ErrInvalidToken  = coreerrors.New(coreerrors.KindValidation, "funds: invalid token symbol")
	ErrFundExists    = coreerrors.New(coreerrors.KindResourceState, "funds: fund already exists")
	ErrTokenBound    = coreerrors.New(coreerrors.KindResourceState, "funds: token already bound to a fund")
	ErrFundNotFound  = coreerrors.New(coreerrors.KindValidation, "funds: fund not found")
	ErrNilState      = coreerrors.New(coreerrors.KindInternal, "funds: state not configured")
)

var (
	fundPrefix   = []byte("funds/record/")
	byTokenKey   = []byte("funds/by-token/")
	fundIndexKey = []byte("funds/index")
)

// Fund is immutable once created.
type Fund struct {
	ID            string
	Name          string
	Token         string
	TokenAccount  crypto.Address
	PoolAccount   crypto.Address
	OracleAccount crypto.Address
	CreatedAt     uint64
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	HasRole(role string, addr crypto.Address) bool
	RegisterToken(symbol, name string, decimals uint8) error
}

// Engine is the fund registry.
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

func normalizeID(id string) string { return strings.ToLower(strings.TrimSpace(id)) }

// Accounts derives the module accounts of a fund id.
func Accounts(id string) (token, pool, oracle crypto.Address) {
	id = normalizeID(id)
	return crypto.ModuleAddress("fund/" + id + "/token"),
		crypto.ModuleAddress("fund/" + id + "/pool"),
		crypto.ModuleAddress("fund/" + id + "/oracle")
}

// CreateFund registers a fund and its token.
func (e *Engine) CreateFund(caller crypto.Address, id, name, token string) (*Fund, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if err := common.Require(e.state, common.OpCreateFund, caller); err != nil {
		return nil, err
	}
	fid := normalizeID(id)
	if fid == "" || strings.ContainsAny(fid, "/: ") {
		return nil, ErrInvalidFundID
	}
	symbol := state.NormalizeSymbol(token)
	if symbol == "" {
		return nil, ErrInvalidToken
	}
	if existing, err := e.Fund(fid); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrFundExists, fid)
	}
	if bound, err := e.FundByToken(symbol); err == nil && bound != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenBound, symbol)
	}
	if strings.TrimSpace(name) == "" {
		name = fid
	}
	if err := e.state.RegisterToken(symbol, name, common.Decimals); err != nil {
		return nil, err
	}
	tokenAcct, poolAcct, oracleAcct := Accounts(fid)
	fund := &Fund{
		ID:            fid,
		Name:          strings.TrimSpace(name),
		Token:         symbol,
		TokenAccount:  tokenAcct,
		PoolAccount:   poolAcct,
		OracleAccount: oracleAcct,
		CreatedAt:     uint64(e.nowFn().Unix()),
	}
	if err := e.state.KVPut(append(append([]byte(nil), fundPrefix...), fid...), fund); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(append(append([]byte(nil), byTokenKey...), symbol...), fid); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(fundIndexKey, []byte(fid)); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Typed{Evt: &types.Event{
		Type: EventTypeFundCreated,
		Attributes: map[string]string{
			"id":        fund.ID,
			"token":     fund.Token,
			"pool":      fund.PoolAccount.String(),
			"createdAt": strconv.FormatUint(fund.CreatedAt, 10),
		},
	}})
	return fund, nil
}

// Fund returns the fund registered under id.
func (e *Engine) Fund(id string) (*Fund, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	fid := normalizeID(id)
	fund := new(Fund)
	ok, err := e.state.KVGet(append(append([]byte(nil), fundPrefix...), fid...), fund)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFundNotFound, fid)
	}
	return fund, nil
}

// FundByToken resolves the fund that issues symbol.
func (e *Engine) FundByToken(symbol string) (*Fund, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	normalized := state.NormalizeSymbol(symbol)
	var fid string
	ok, err := e.state.KVGet(append(append([]byte(nil), byTokenKey...), normalized...), &fid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: token %s", ErrFundNotFound, normalized)
	}
	return e.Fund(fid)
}

// List returns every fund ordered by id.
func (e *Engine) List() ([]*Fund, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	var ids [][]byte
	if err := e.state.KVGetList(fundIndexKey, &ids); err != nil {
		return nil, err
	}
	out := make([]*Fund, 0, len(ids))
	for _, id := range ids {
		fund, err := e.Fund(string(id))
		if err != nil {
			return nil, err
		}
		out = append(out, fund)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
