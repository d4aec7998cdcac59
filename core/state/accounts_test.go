package state

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestRegisterTokenIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.RegisterToken(" tnd ", "Tunisian dinar", 8); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if m.Dirty() {
		t.Fatalf("identical registration should not write")
	}
	if err := m.RegisterToken("TND", "Other", 8); err == nil {
		t.Fatalf("expected conflicting metadata to fail")
	}
	if err := m.RegisterToken("  ", "Blank", 8); err == nil {
		t.Fatalf("expected empty symbol to fail")
	}
	if err := m.RegisterToken("fnd1", "Fund One", 8); err != nil {
		t.Fatalf("register fund token: %v", err)
	}
	tokens, err := m.TokenList()
	if err != nil {
		t.Fatalf("token list: %v", err)
	}
	if want := []string{"FND1", "TND"}; !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens: got %v want %v", tokens, want)
	}
	meta, err := m.Token("Fnd1")
	if err != nil || meta == nil {
		t.Fatalf("token lookup: %v %v", meta, err)
	}
	if meta.Symbol != "FND1" || meta.Decimals != 8 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestBalancesRequireRegisteredToken(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.AddBalance(testAddr(1), "XYZ", big.NewInt(1))
	if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	bal, err := m.Balance(testAddr(1), "XYZ")
	if err != nil || bal.Sign() != 0 {
		t.Fatalf("unregistered balance should read as zero: %v %v", bal, err)
	}
}

func TestMoveTransfersBalance(t *testing.T) {
	m, _ := newTestManager(t)
	from, to := testAddr(1), testAddr(2)
	if err := m.Mint(from, "TND", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Move(from, to, "tnd", big.NewInt(40)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := m.Move(from, to, "TND", big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := m.Move(from, from, "TND", big.NewInt(1_000)); err != nil {
		t.Fatalf("self move should be a no-op: %v", err)
	}
	fromBal, _ := m.Balance(from, "TND")
	toBal, _ := m.Balance(to, "TND")
	if fromBal.Int64() != 60 || toBal.Int64() != 40 {
		t.Fatalf("balances: from %s to %s", fromBal, toBal)
	}
	supply, _ := m.TotalSupply("TND")
	if supply.Int64() != 100 {
		t.Fatalf("move must not change supply, got %s", supply)
	}
}

func TestBalanceOverflowRejected(t *testing.T) {
	m, _ := newTestManager(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := m.SetBalance(testAddr(1), "TND", huge); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	var zero [20]byte
	if err := m.SetBalance(zero, "TND", big.NewInt(1)); err == nil {
		t.Fatalf("expected zero address to be rejected")
	}
}
