package reservation

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/common"
	"fundcore/native/escrow"
	"fundcore/native/fees"
	"fundcore/native/oracle"
	"fundcore/native/pool"
	"fundcore/native/registry"
	"fundcore/native/revenue"
	"fundcore/storage"
)

var (
	admin     = crypto.Address{0xAD}
	feeder    = crypto.Address{0x0F}
	validator = crypto.Address{0xA1}
	treasury  = crypto.Address{0x7E}
	alice     = crypto.Address{0x01}
	bob       = crypto.Address{0x02}
)

const (
	start  = int64(1_700_000_000)
	strike = int64(12_575_100_000)
)

type fixture struct {
	m      *state.Manager
	pool   *pool.Engine
	engine *Engine
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: time.Unix(start, 0)}
	now := func() time.Time { return f.clock }
	m := state.NewManager(storage.NewMemDB())
	f.m = m
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(m.RegisterToken(common.Cash, "Tunisian dinar", 8))
	must(m.RegisterToken("FND", "Fund", 8))
	grants := []struct {
		role common.Role
		addr crypto.Address
	}{
		{common.RoleAdmin, admin},
		{common.RoleOracle, feeder},
		{common.RoleKYCValidator, validator},
	}
	for _, g := range grants {
		_, err := m.GrantRole(string(g.role), g.addr)
		must(err)
	}
	for _, c := range []struct {
		component string
		caller    crypto.Address
	}{
		{revenue.Component, pool.Address},
		{revenue.Component, Address},
		{pool.Component, Address},
	} {
		_, err := m.AuthorizeCaller(c.component, c.caller)
		must(err)
	}

	reg := registry.NewEngine()
	reg.SetState(m)
	reg.SetNowFunc(now)
	orc := oracle.NewEngine()
	orc.SetState(m)
	orc.SetNowFunc(now)
	esc := escrow.NewEngine()
	esc.SetState(m)
	bk := bank.New(m, esc)
	router := revenue.NewRouter()
	router.SetState(m)
	router.SetBank(bk)

	p := pool.NewEngine(pool.DefaultParams(), fees.DefaultPolicy())
	p.SetState(m)
	p.SetOracle(orc)
	p.SetRegistry(reg)
	p.SetBank(bk)
	p.SetRouter(router)
	f.pool = p

	seq := 0
	e := NewEngine(fees.DefaultPolicy())
	e.SetState(m)
	e.SetPool(p)
	e.SetRegistry(reg)
	e.SetBank(bk)
	e.SetRouter(router)
	e.SetNowFunc(now)
	e.SetMaxTerm(30 * 24 * time.Hour)
	e.SetIDFunc(func() string {
		seq++
		return fmt.Sprintf("res-%d", seq)
	})
	f.engine = e

	must(orc.UpdateVNI(feeder, "FND", big.NewInt(12_550_000_000), 0))
	_, err := p.ConfigureReserve(admin, "FND", pool.ReserveConfig{
		Account:   crypto.ModuleAddress("fund/alpha/pool"),
		Treasury:  treasury,
		SpreadBps: 20,
	})
	must(err)
	for _, addr := range []crypto.Address{alice, bob} {
		must(reg.AddToWhitelist(validator, addr, registry.KYCWhite, true))
		must(m.Mint(addr, common.Cash, big.NewInt(100_000_000_000)))
	}
	// Outstanding supply makes inventory reservable.
	_, err = p.Buy(alice, "FND", big.NewInt(10_000_000_000))
	must(err)
	return f
}

func (f *fixture) balance(t *testing.T, addr crypto.Address, symbol string) *big.Int {
	t.Helper()
	bal, err := f.m.Balance(addr, symbol)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) reserved(t *testing.T) *big.Int {
	t.Helper()
	r, err := f.pool.Reserve("FND")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return r.ReservedInventory
}

var amount = big.NewInt(10_000_000)

func TestReserveTakesDepositAtStrike(t *testing.T) {
	f := newFixture(t)
	before := f.balance(t, bob, common.Cash)
	r, err := f.engine.Reserve(bob, "fnd", amount, uint64(start+3600))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if r.ID != "res-1" || r.Token != "FND" || r.Status != StatusActive {
		t.Fatalf("unexpected reservation %+v", r)
	}
	if r.Strike.Int64() != strike {
		t.Fatalf("strike %s", r.Strike)
	}
	wantDeposit := big.NewInt(1_257_510_000)
	if r.Deposit.Cmp(wantDeposit) != 0 {
		t.Fatalf("deposit %s want %s", r.Deposit, wantDeposit)
	}
	if paid := new(big.Int).Sub(before, f.balance(t, bob, common.Cash)); paid.Cmp(wantDeposit) != 0 {
		t.Fatalf("paid %s", paid)
	}
	if got := f.balance(t, Vault, common.Cash); got.Cmp(wantDeposit) != 0 {
		t.Fatalf("vault %s", got)
	}
	if got := f.reserved(t); got.Cmp(amount) != 0 {
		t.Fatalf("reserved inventory %s", got)
	}
	list, err := f.engine.ByHolder(bob)
	if err != nil || len(list) != 1 {
		t.Fatalf("by holder: %v %d", err, len(list))
	}
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		holder crypto.Address
		amount *big.Int
		expiry uint64
		want   error
	}{
		{"zero amount", bob, big.NewInt(0), uint64(start + 10), ErrInvalidAmount},
		{"past expiry", bob, amount, uint64(start), ErrInvalidExpiry},
		{"term too long", bob, amount, uint64(start + 31*24*3600), ErrInvalidExpiry},
		{"not whitelisted", crypto.Address{0x99}, amount, uint64(start + 10), registry.ErrNotWhitelisted},
		{"inventory", bob, big.NewInt(1_000_000_000_000), uint64(start + 10), pool.ErrInventoryExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.Reserve(tc.holder, "FND", tc.amount, tc.expiry); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := f.reserved(t); got.Sign() != 0 {
		t.Fatalf("rejected reservations must not hold inventory, got %s", got)
	}
}

func TestExercisePaysFeeAndIssuesAtStrike(t *testing.T) {
	f := newFixture(t)
	r, err := f.engine.Reserve(bob, "FND", amount, uint64(start+3600))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	reserveBefore, _ := f.pool.Reserve("FND")
	cashBefore := f.balance(t, bob, common.Cash)
	treasuryBefore := f.balance(t, treasury, common.Cash)

	if _, err := f.engine.Exercise(alice, r.ID); !errors.Is(err, ErrNotHolder) {
		t.Fatalf("expected not holder, got %v", err)
	}
	receipt, err := f.engine.Exercise(bob, r.ID)
	if err != nil {
		t.Fatalf("exercise: %v", err)
	}
	if receipt.Fee.FeeBase.Int64() != 12_575_100 || receipt.Fee.VAT.Int64() != 2_389_269 {
		t.Fatalf("fee %+v", receipt.Fee)
	}
	if paid := new(big.Int).Sub(cashBefore, f.balance(t, bob, common.Cash)); paid.Cmp(receipt.Fee.Total) != 0 {
		t.Fatalf("holder paid %s want fee %s on top of deposit", paid, receipt.Fee.Total)
	}
	gain := new(big.Int).Sub(f.balance(t, treasury, common.Cash), treasuryBefore)
	if gain.Cmp(receipt.Fee.Total) != 0 {
		t.Fatalf("treasury received %s", gain)
	}
	if got := f.balance(t, bob, "FND"); got.Cmp(amount) != 0 {
		t.Fatalf("tokens %s", got)
	}
	reserveAfter, _ := f.pool.Reserve("FND")
	if diff := new(big.Int).Sub(reserveAfter.Cash, reserveBefore.Cash); diff.Cmp(r.Deposit) != 0 {
		t.Fatalf("reserve cash grew by %s", diff)
	}
	if reserveAfter.ReservedInventory.Sign() != 0 {
		t.Fatalf("inventory not released: %s", reserveAfter.ReservedInventory)
	}
	if got := f.balance(t, Vault, common.Cash); got.Sign() != 0 {
		t.Fatalf("vault %s", got)
	}
	pos, _ := f.pool.Position(bob, "FND")
	if pos.AvgPrice.Int64() != strike || pos.Quantity.Cmp(amount) != 0 {
		t.Fatalf("prm %+v", pos)
	}
	if _, err := f.engine.Exercise(bob, r.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second exercise must fail, got %v", err)
	}
}

func TestCancelRefunds(t *testing.T) {
	f := newFixture(t)
	before := f.balance(t, bob, common.Cash)
	r, err := f.engine.Reserve(bob, "FND", amount, uint64(start+3600))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	closed, err := f.engine.Cancel(bob, r.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if closed.Status != StatusCancelled {
		t.Fatalf("status %s", closed.Status)
	}
	if got := f.balance(t, bob, common.Cash); got.Cmp(before) != 0 {
		t.Fatalf("refund incomplete: %s want %s", got, before)
	}
	if got := f.reserved(t); got.Sign() != 0 {
		t.Fatalf("inventory %s", got)
	}
	active, _ := f.engine.Active()
	if len(active) != 0 {
		t.Fatalf("active list not pruned: %d", len(active))
	}
}

func TestExpiryIsLazyAndReapable(t *testing.T) {
	f := newFixture(t)
	before := f.balance(t, bob, common.Cash)
	r, err := f.engine.Reserve(bob, "FND", amount, uint64(start+60))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	f.clock = f.clock.Add(2 * time.Minute)

	view, err := f.engine.Reservation(r.ID)
	if err != nil || view.Status != StatusExpired {
		t.Fatalf("expected lazily expired view, got %+v %v", view, err)
	}
	if _, err := f.engine.Exercise(bob, r.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	n, err := f.engine.ReapExpired(0)
	if err != nil || n != 1 {
		t.Fatalf("reap: %d %v", n, err)
	}
	if got := f.balance(t, bob, common.Cash); got.Cmp(before) != 0 {
		t.Fatalf("expired deposit not refunded: %s", got)
	}
	if got := f.reserved(t); got.Sign() != 0 {
		t.Fatalf("inventory %s", got)
	}
	if n, _ := f.engine.ReapExpired(0); n != 0 {
		t.Fatalf("reaping twice must be a no-op, reaped %d", n)
	}
}

func TestReapIgnoresFutureClock(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Reserve(bob, "FND", amount, uint64(start+60)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	n, err := f.engine.ReapExpired(uint64(start + 3600))
	if err != nil || n != 0 {
		t.Fatalf("a caller-supplied future time must not expire early: %d %v", n, err)
	}
}
