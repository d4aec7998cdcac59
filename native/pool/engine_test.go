package pool

import (
	"errors"
	"math/big"
	"testing"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/bank"
	"fundcore/native/breaker"
	"fundcore/native/common"
	"fundcore/native/escrow"
	"fundcore/native/fees"
	"fundcore/native/oracle"
	"fundcore/native/registry"
	"fundcore/native/revenue"
	"fundcore/storage"
)

var (
	admin     = crypto.Address{0xAD}
	council   = crypto.Address{0xC0}
	feeder    = crypto.Address{0x0F}
	validator = crypto.Address{0xA1}
	operator  = crypto.Address{0xA2}
	treasury  = crypto.Address{0x7E}
	alice     = crypto.Address{0x01}
	bob       = crypto.Address{0x02}
	lockOwner = crypto.ModuleAddress("credit-a")
	poolAcct  = crypto.ModuleAddress("fund/alpha/pool")
)

type fixture struct {
	m        *state.Manager
	pool     *Engine
	registry *registry.Engine
	oracle   *oracle.Engine
	escrow   *escrow.Engine
	breaker  *breaker.Engine
	router   *revenue.Router
}

func newFixture(t *testing.T, guaranteeBps uint32) *fixture {
	t.Helper()
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	m := state.NewManager(storage.NewMemDB())
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(m.RegisterToken(common.Cash, "Tunisian dinar", 8))
	must(m.RegisterToken("FND", "Fund", 8))
	for role, addr := range map[common.Role]crypto.Address{
		common.RoleAdmin:        admin,
		common.RoleGovernance:   council,
		common.RoleOracle:       feeder,
		common.RoleKYCValidator: validator,
		common.RoleOperator:     operator,
	} {
		_, err := m.GrantRole(string(role), addr)
		must(err)
	}
	_, err := m.AuthorizeCaller(revenue.Component, Address)
	must(err)
	_, err = m.AuthorizeCaller(escrow.Component, lockOwner)
	must(err)

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
	brk := breaker.NewEngine(2_000)
	brk.SetState(m)

	p := NewEngine(DefaultParams(), fees.DefaultPolicy())
	p.SetState(m)
	p.SetOracle(orc)
	p.SetRegistry(reg)
	p.SetBreaker(brk)
	p.SetBank(bk)
	p.SetRouter(router)

	must(orc.UpdateVNI(feeder, "FND", big.NewInt(12_550_000_000), 0))
	_, err = p.ConfigureReserve(admin, "FND", ReserveConfig{
		Account:          poolAcct,
		Treasury:         treasury,
		SpreadBps:        20,
		GuaranteeFundBps: guaranteeBps,
	})
	must(err)
	for _, addr := range []crypto.Address{alice, bob} {
		must(reg.AddToWhitelist(validator, addr, registry.KYCWhite, true))
		must(m.Mint(addr, common.Cash, big.NewInt(500_000_000_000)))
	}
	return &fixture{m: m, pool: p, registry: reg, oracle: orc, escrow: esc, breaker: brk, router: router}
}

func (f *fixture) balance(t *testing.T, addr crypto.Address, symbol string) *big.Int {
	t.Helper()
	bal, err := f.m.Balance(addr, symbol)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestQuoteBuyMatchesReferenceScenario(t *testing.T) {
	f := newFixture(t, 0)
	q, err := f.pool.QuoteBuy(alice, "FND", big.NewInt(101_190_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.PriceClient.Int64() != 12_575_100_000 {
		t.Fatalf("price: %s", q.PriceClient)
	}
	if q.Fee.FeeBase.Int64() != 1_011_900_000 || q.Fee.VAT.Int64() != 192_261_000 || q.Fee.Total.Int64() != 1_204_161_000 {
		t.Fatalf("fee: %+v", q.Fee)
	}
	want := new(big.Int).Mul(big.NewInt(101_190_000_000-1_204_161_000), common.Scale)
	want.Quo(want, big.NewInt(12_575_100_000))
	if q.Minted.Cmp(want) != 0 || q.Minted.Int64() != 795_109_692 {
		t.Fatalf("minted %s want %s", q.Minted, want)
	}
	if f.balance(t, alice, "FND").Sign() != 0 {
		t.Fatalf("quotes must not mutate state")
	}
}

func TestBuyConservationAndRoundTrip(t *testing.T) {
	f := newFixture(t, 0)
	tndIn := big.NewInt(101_190_000_000)
	before, _ := f.pool.Reserve("FND")
	cashBefore := f.balance(t, alice, common.Cash)

	q, err := f.pool.Buy(alice, "FND", tndIn)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	after, _ := f.pool.Reserve("FND")
	wantCash := new(big.Int).Add(before.Cash, new(big.Int).Sub(tndIn, q.Fee.Total))
	if after.Cash.Cmp(wantCash) != 0 {
		t.Fatalf("reserve cash %s want %s", after.Cash, wantCash)
	}
	if got := f.balance(t, treasury, common.Cash); got.Cmp(q.Fee.Total) != 0 {
		t.Fatalf("treasury %s want %s", got, q.Fee.Total)
	}
	if got := f.balance(t, alice, "FND"); got.Cmp(q.Minted) != 0 {
		t.Fatalf("minted %s want %s", got, q.Minted)
	}
	spent := new(big.Int).Sub(cashBefore, f.balance(t, alice, common.Cash))
	if spent.Cmp(tndIn) != 0 {
		t.Fatalf("buyer spent %s want %s", spent, tndIn)
	}
	pos, _ := f.pool.Position(alice, "FND")
	if pos.AvgPrice.Cmp(q.PriceClient) != 0 || pos.Quantity.Cmp(q.Minted) != 0 {
		t.Fatalf("prm %+v", pos)
	}

	sq, err := f.pool.Sell(alice, "FND", q.Minted)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sq.TndOut.Sign() <= 0 || sq.TndOut.Int64() != 98_401_612_157 {
		t.Fatalf("tnd out %s", sq.TndOut)
	}
	if sq.Tax.Sign() != 0 {
		t.Fatalf("no gain below prm, tax %s", sq.Tax)
	}
	if f.balance(t, alice, "FND").Sign() != 0 {
		t.Fatalf("seller must hold zero tokens after selling everything")
	}
	supply, _ := f.m.TotalSupply("FND")
	if supply.Sign() != 0 {
		t.Fatalf("supply %s", supply)
	}
	final, _ := f.pool.Reserve("FND")
	if got := f.balance(t, poolAcct, common.Cash); got.Cmp(final.Cash) != 0 {
		t.Fatalf("pool account %s must equal tracked cash %s", got, final.Cash)
	}
}

func TestGuaranteeSkimDivertsTreasuryShare(t *testing.T) {
	f := newFixture(t, 1_000)
	q, err := f.pool.Buy(alice, "FND", big.NewInt(101_190_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if q.Skim.Int64() != 101_190_000 {
		t.Fatalf("skim %s", q.Skim)
	}
	got := f.balance(t, treasury, common.Cash)
	guarantee, _ := f.router.CompartmentBalance(revenue.GuaranteeFund)
	if new(big.Int).Add(got, guarantee).Cmp(q.Fee.Total) != 0 {
		t.Fatalf("treasury %s + guarantee %s must equal %s", got, guarantee, q.Fee.Total)
	}
	if guarantee.Cmp(q.Skim) != 0 {
		t.Fatalf("guarantee %s", guarantee)
	}
}

func TestBuyRejections(t *testing.T) {
	f := newFixture(t, 0)
	stranger := crypto.Address{0x55}
	if _, err := f.pool.Buy(stranger, "FND", big.NewInt(1_000_000_000)); !errors.Is(err, registry.ErrNotWhitelisted) {
		t.Fatalf("expected whitelist gate, got %v", err)
	}
	if _, err := f.pool.Buy(alice, "FND", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.pool.Buy(alice, "FND", big.NewInt(10)); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected too small, got %v", err)
	}
	_, err := f.pool.Buy(alice, "FND", big.NewInt(900_000_000_000))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestSellBlockedWhileTripped(t *testing.T) {
	f := newFixture(t, 0)
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	tripped, err := f.breaker.CheckAndTripRedemptions("FND", func(string) (*big.Int, error) { return big.NewInt(0), nil })
	if err != nil || !tripped {
		t.Fatalf("trip: %v %v", tripped, err)
	}
	_, err = f.pool.Sell(alice, "FND", q.Minted)
	if !errors.Is(err, breaker.ErrCircuitTripped) {
		t.Fatalf("expected tripped, got %v", err)
	}
	if got := f.balance(t, alice, "FND"); got.Cmp(q.Minted) != 0 {
		t.Fatalf("no partial burn allowed, balance %s", got)
	}
	if _, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000)); err != nil {
		t.Fatalf("buys remain open while tripped: %v", err)
	}
	if err := f.breaker.Reset(council, "FND"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := f.pool.Sell(alice, "FND", q.Minted); err != nil {
		t.Fatalf("sell after reset: %v", err)
	}
}

func TestSellHonoursEscrowLocks(t *testing.T) {
	f := newFixture(t, 0)
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := f.escrow.Lock(lockOwner, alice, "FND", q.Minted); err != nil {
		t.Fatalf("lock: %v", err)
	}
	_, err = f.pool.Sell(alice, "FND", q.Minted)
	if !errors.Is(err, bank.ErrEscrowLocked) {
		t.Fatalf("expected escrow locked, got %v", err)
	}
}

func TestSellInsufficientReserveIsRetryable(t *testing.T) {
	f := newFixture(t, 0)
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// NAV doubles: the reserve no longer covers a full redemption.
	if err := f.oracle.UpdateVNI(feeder, "FND", big.NewInt(25_100_000_000), 1_700_000_001); err != nil {
		t.Fatalf("nav: %v", err)
	}
	_, err = f.pool.Sell(alice, "FND", q.Minted)
	if !errors.Is(err, ErrInsufficientReserve) || !coreerrors.Retryable(err) {
		t.Fatalf("expected retryable reserve shortfall, got %v", err)
	}
}

func TestSellWithholdsTaxOnGain(t *testing.T) {
	f := newFixture(t, 0)
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := f.pool.ProvideLiquidity(admin, bob, "FND", big.NewInt(100_000_000_000)); err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if err := f.oracle.UpdateVNI(feeder, "FND", big.NewInt(15_000_000_000), 1_700_000_001); err != nil {
		t.Fatalf("nav: %v", err)
	}
	sq, err := f.pool.Sell(alice, "FND", q.Minted)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	wantGain := common.Value(q.Minted, new(big.Int).Sub(sq.PriceClient, q.PriceClient))
	if sq.Gain.Cmp(wantGain) != 0 {
		t.Fatalf("gain %s want %s", sq.Gain, wantGain)
	}
	if sq.RASBps != DefaultParams().ResidentRASBps {
		t.Fatalf("resident rate expected, got %d", sq.RASBps)
	}
	vault, _ := f.router.CompartmentBalance(revenue.TaxVault)
	if vault.Cmp(sq.Tax) != 0 || vault.Sign() <= 0 {
		t.Fatalf("tax vault %s tax %s", vault, sq.Tax)
	}
	sum := new(big.Int).Add(sq.TndOut, sq.Fee.Total)
	sum.Add(sum, sq.Tax)
	if sum.Cmp(sq.Gross) != 0 {
		t.Fatalf("gross %s must split into out+fee+tax %s", sq.Gross, sum)
	}
}

func TestReserveRatio(t *testing.T) {
	f := newFixture(t, 0)
	ratio, err := f.pool.ReserveRatioBps("FND")
	if err != nil || ratio.Cmp(MaxRatio) != 0 {
		t.Fatalf("empty supply must be unbounded: %v %v", ratio, err)
	}
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	ratio, err = f.pool.ReserveRatioBps("FND")
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	liability := common.Value(q.Minted, big.NewInt(12_550_000_000))
	want := common.MulDiv(q.NetTnd, big.NewInt(10_000), liability)
	if ratio.Cmp(want) != 0 {
		t.Fatalf("ratio %s want %s", ratio, want)
	}
}

func TestInventoryBounds(t *testing.T) {
	f := newFixture(t, 0)
	reserver := crypto.ModuleAddress("reservation")
	if _, err := f.m.AuthorizeCaller(Component, reserver); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := f.pool.ReserveInventory(reserver, "FND", big.NewInt(1)); !errors.Is(err, ErrInventoryExhausted) {
		t.Fatalf("no supply means no inventory, got %v", err)
	}
	q, err := f.pool.Buy(alice, "FND", big.NewInt(10_000_000_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	capacity, _ := f.pool.ReservableCapacity("FND")
	if capacity.Cmp(common.ApplyBps(q.Minted, 2_000)) != 0 {
		t.Fatalf("capacity %s", capacity)
	}
	if err := f.pool.ReserveInventory(alice, "FND", big.NewInt(1)); !errors.Is(err, common.ErrUnauthorizedCaller) {
		t.Fatalf("expected unauthorized caller, got %v", err)
	}
	if err := f.pool.ReserveInventory(reserver, "FND", capacity); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := f.pool.ReleaseInventory(reserver, "FND", new(big.Int).Add(capacity, big.NewInt(1))); !errors.Is(err, ErrInventoryUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if err := f.pool.ReleaseInventory(reserver, "FND", capacity); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestGovernanceParameterChanges(t *testing.T) {
	f := newFixture(t, 0)
	if err := f.pool.SetSpread(admin, "FND", 30); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("admin cannot change spread, got %v", err)
	}
	if err := f.pool.SetSpread(council, "FND", 30); err != nil {
		t.Fatalf("spread: %v", err)
	}
	if err := f.pool.SetGuaranteeFund(council, "FND", crypto.Address{}, 500); err != nil {
		t.Fatalf("guarantee: %v", err)
	}
	r, _ := f.pool.Reserve("FND")
	if r.SpreadBps != 30 || r.GuaranteeFundBps != 500 || r.GuaranteeFund != revenue.GuaranteeFund.Account() {
		t.Fatalf("unexpected reserve %+v", r)
	}
}
