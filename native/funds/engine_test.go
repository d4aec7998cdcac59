package funds

import (
	"errors"
	"testing"
	"time"

	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/storage"
)

var admin = crypto.Address{0xAD}

func newTestFunds(t *testing.T) (*Engine, *state.Manager) {
	t.Helper()
	m := state.NewManager(storage.NewMemDB())
	if _, err := m.GrantRole(string(common.RoleAdmin), admin); err != nil {
		t.Fatalf("grant: %v", err)
	}
	e := NewEngine()
	e.SetState(m)
	e.SetNowFunc(func() time.Time { return time.Unix(500, 0) })
	return e, m
}

func TestCreateFund(t *testing.T) {
	e, m := newTestFunds(t)
	fund, err := e.CreateFund(admin, "Alpha", "Alpha income", "alp")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fund.ID != "alpha" || fund.Token != "ALP" || fund.CreatedAt != 500 {
		t.Fatalf("unexpected fund %+v", fund)
	}
	token, pool, oracle := Accounts("alpha")
	if fund.TokenAccount != token || fund.PoolAccount != pool || fund.OracleAccount != oracle {
		t.Fatalf("accounts must be derived from the id")
	}
	if pool == token || pool == oracle {
		t.Fatalf("derived accounts must differ")
	}
	if !m.TokenExists("ALP") {
		t.Fatalf("fund token must be registered")
	}
	byToken, err := e.FundByToken("alp")
	if err != nil || byToken.ID != "alpha" {
		t.Fatalf("by token: %v %v", byToken, err)
	}
}

func TestCreateFundRejectsDuplicatesAndStrangers(t *testing.T) {
	e, _ := newTestFunds(t)
	if _, err := e.CreateFund(crypto.Address{0x01}, "beta", "", "BET"); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := e.CreateFund(admin, "beta", "", "BET"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.CreateFund(admin, "BETA", "", "BT2"); !errors.Is(err, ErrFundExists) {
		t.Fatalf("expected fund exists, got %v", err)
	}
	if _, err := e.CreateFund(admin, "gamma", "", "bet"); !errors.Is(err, ErrTokenBound) {
		t.Fatalf("expected token bound, got %v", err)
	}
	if _, err := e.CreateFund(admin, "a/b", "", "AB"); !errors.Is(err, ErrInvalidFundID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestListOrdersByID(t *testing.T) {
	e, _ := newTestFunds(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if _, err := e.CreateFund(admin, id, "", id+"T"); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	list, err := e.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "alpha" || list[2].ID != "zeta" {
		t.Fatalf("unexpected order %v", list)
	}
	if _, err := e.Fund("missing"); !errors.Is(err, ErrFundNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
