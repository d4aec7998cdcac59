package revenue

import (
	"fmt"
	"math/big"
	"sort"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/fees"
)

// Component is the capability-table name of the router.
const Component = "revenue"

// Compartment names a segregated reserve account.
type Compartment string

const (
	LiquidityReserve Compartment = "liquidity_reserve"
	PartnerTransit   Compartment = "partner_transit"
	Revenue          Compartment = "revenue"
	GuaranteeFund    Compartment = "guarantee_fund"
	TaxVault         Compartment = "tax_vault"
	CreditReserve    Compartment = "credit_reserve"
)

// Compartments lists every compartment.
var Compartments = []Compartment{LiquidityReserve, PartnerTransit, Revenue, GuaranteeFund, TaxVault, CreditReserve}

// Account returns the module account backing c.
func (c Compartment) Account() crypto.Address {
	return crypto.ModuleAddress("revenue/" + string(c))
}

// Valid reports whether c is a known compartment.
func (c Compartment) Valid() bool {
	for _, known := range Compartments {
		if c == known {
			return true
		}
	}
	return false
}

// Kind classifies routed flows for the totals ledger.
type Kind string

const (
	KindFee       Kind = "fee"
	KindVAT       Kind = "vat"
	KindRAS       Kind = "ras"
	KindSkim      Kind = "skim"
	KindInterest  Kind = "interest"
	KindGainShare Kind = "gain_share"
	KindFunding   Kind = "funding"
	KindRecovery  Kind = "recovery"
	KindDisbursal Kind = "disbursal"
	KindRepaid    Kind = "repaid"
)

const EventTypeRoute = "revenue.routed"

var (
	ErrUnknownCompartment = coreerrors.New(coreerrors.KindValidation, "revenue: unknown compartment")
	ErrInvalidAmount      = coreerrors.New(coreerrors.KindValidation, "revenue: amount must not be negative")
	ErrInvalidAddress     = coreerrors.New(coreerrors.KindValidation, "revenue: invalid address")
	ErrNilState           = coreerrors.New(coreerrors.KindInternal, "revenue: state not configured")
)

var (
	totalsPrefix = []byte("revenue/totals/")
	feesPrefix   = []byte("revenue/fees/")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	IsAuthorizedCaller(component string, caller crypto.Address) bool
	Balance(addr crypto.Address, symbol string) (*big.Int, error)
}

// Transferer moves cash honouring escrow locks.
type Transferer interface {
	Transfer(from, to crypto.Address, token string, amount *big.Int) error
}

// Router splits collected fees, taxes and credit flows into compartments and
// keeps cumulative totals per flow kind.
type Router struct {
	state   engineState
	bank    Transferer
	emitter events.Emitter
}

func NewRouter() *Router {
	return &Router{emitter: events.NoopEmitter{}}
}

func (r *Router) SetState(s engineState) { r.state = s }

func (r *Router) SetBank(b Transferer) { r.bank = b }

func (r *Router) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Router) check(caller crypto.Address, amount *big.Int) error {
	if r.state == nil || r.bank == nil {
		return ErrNilState
	}
	if err := common.RequireCaller(r.state, Component, caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r *Router) move(from, to crypto.Address, amount *big.Int, kind Kind) error {
	if amount.Sign() == 0 {
		return nil
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if err := r.bank.Transfer(from, to, common.Cash, amount); err != nil {
		return err
	}
	if err := r.addTotal(kind, amount); err != nil {
		return err
	}
	r.emitter.Emit(events.Typed{Evt: &types.Event{
		Type: EventTypeRoute,
		Attributes: map[string]string{
			"from":   from.String(),
			"to":     to.String(),
			"kind":   string(kind),
			"amount": amount.String(),
		},
	}})
	return nil
}

// Route moves amount of cash from from into compartment.
func (r *Router) Route(caller, from crypto.Address, compartment Compartment, amount *big.Int, kind Kind) error {
	if err := r.check(caller, amount); err != nil {
		return err
	}
	if !compartment.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCompartment, compartment)
	}
	return r.move(from, compartment.Account(), amount, kind)
}

// Disburse pays amount out of compartment to to.
func (r *Router) Disburse(caller crypto.Address, compartment Compartment, to crypto.Address, amount *big.Int, kind Kind) error {
	if err := r.check(caller, amount); err != nil {
		return err
	}
	if !compartment.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCompartment, compartment)
	}
	return r.move(compartment.Account(), to, amount, kind)
}

// CollectFee routes a fee obligation paid by from: the guarantee skim of
// skimBps on the fee base goes to guarantee, the remainder of the total fee
// goes to treasury. It returns the skim.
func (r *Router) CollectFee(caller, from, treasury, guarantee crypto.Address, domain string, gross *big.Int, b fees.Breakdown, skimBps uint32) (*big.Int, error) {
	if err := r.check(caller, b.Total); err != nil {
		return nil, err
	}
	skim := fees.Skim(b.FeeBase, skimBps)
	if skim.Sign() > 0 && guarantee.IsZero() {
		guarantee = GuaranteeFund.Account()
	}
	toTreasury := new(big.Int).Sub(b.Total, skim)
	feePart := new(big.Int).Sub(b.FeeBase, skim)
	if err := r.move(from, treasury, feePart, KindFee); err != nil {
		return nil, err
	}
	if err := r.move(from, treasury, new(big.Int).Sub(toTreasury, feePart), KindVAT); err != nil {
		return nil, err
	}
	if err := r.move(from, guarantee, skim, KindSkim); err != nil {
		return nil, err
	}
	if err := r.recordFees(domain, gross, b); err != nil {
		return nil, err
	}
	return skim, nil
}

func (r *Router) addTotal(kind Kind, amount *big.Int) error {
	current, err := r.Totals(kind)
	if err != nil {
		return err
	}
	return r.state.KVPut(append(append([]byte(nil), totalsPrefix...), kind...), current.Add(current, amount))
}

func (r *Router) recordFees(domain string, gross *big.Int, b fees.Breakdown) error {
	totals, err := r.FeeTotals(domain)
	if err != nil {
		return err
	}
	totals.Add(gross, b)
	return r.state.KVPut(append(append([]byte(nil), feesPrefix...), totals.Domain...), &totals)
}

// Totals returns the cumulative amount routed for kind.
func (r *Router) Totals(kind Kind) (*big.Int, error) {
	if r.state == nil {
		return nil, ErrNilState
	}
	amount := new(big.Int)
	ok, err := r.state.KVGet(append(append([]byte(nil), totalsPrefix...), kind...), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// FeeTotals returns the fee aggregates of domain.
func (r *Router) FeeTotals(domain string) (fees.Totals, error) {
	if r.state == nil {
		return fees.Totals{}, ErrNilState
	}
	normalized := fees.NormalizeDomain(domain)
	var totals fees.Totals
	ok, err := r.state.KVGet(append(append([]byte(nil), feesPrefix...), normalized...), &totals)
	if err != nil {
		return fees.Totals{}, err
	}
	if !ok {
		totals = fees.Totals{Domain: normalized}
	}
	return totals.Clone(), nil
}

// CompartmentBalance returns the cash held by compartment.
func (r *Router) CompartmentBalance(c Compartment) (*big.Int, error) {
	if r.state == nil {
		return nil, ErrNilState
	}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompartment, c)
	}
	return r.state.Balance(c.Account(), common.Cash)
}

// Balances returns every compartment balance keyed by name.
func (r *Router) Balances() (map[Compartment]*big.Int, error) {
	out := make(map[Compartment]*big.Int, len(Compartments))
	for _, c := range Compartments {
		bal, err := r.CompartmentBalance(c)
		if err != nil {
			return nil, err
		}
		out[c] = bal
	}
	return out, nil
}

// Kinds lists the totals ledger kinds in name order.
func Kinds() []Kind {
	kinds := []Kind{KindFee, KindVAT, KindRAS, KindSkim, KindInterest, KindGainShare, KindFunding, KindRecovery, KindDisbursal, KindRepaid}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
