package state

import (
	"errors"
	"math/big"
	"testing"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
	"fundcore/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	m := NewManager(db)
	if err := m.RegisterToken("TND", "Tunisian dinar", 8); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return m, db
}

func testAddr(fill byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestCommitAppliesOverlay(t *testing.T) {
	m, db := newTestManager(t)
	before := db.Len()
	alice := testAddr(0x01)
	if err := m.AddBalance(alice, "tnd", big.NewInt(500)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if db.Len() != before {
		t.Fatalf("writes must stay in the overlay until commit")
	}
	if err := m.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	fresh := NewManager(db)
	bal, err := fresh.Balance(alice, "TND")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %s", bal)
	}
}

func TestDiscardDropsOverlay(t *testing.T) {
	m, _ := newTestManager(t)
	alice := testAddr(0x02)
	if err := m.Mint(alice, "TND", big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	m.Discard()
	bal, _ := m.Balance(alice, "TND")
	if bal.Sign() != 0 {
		t.Fatalf("discard must drop staged balance, got %s", bal)
	}
	supply, _ := m.TotalSupply("TND")
	if supply.Sign() != 0 {
		t.Fatalf("discard must drop staged supply, got %s", supply)
	}
}

func TestSnapshotRevert(t *testing.T) {
	m, _ := newTestManager(t)
	alice := testAddr(0x03)
	if err := m.AddBalance(alice, "TND", big.NewInt(100)); err != nil {
		t.Fatalf("add: %v", err)
	}
	snap := m.Snapshot()
	if err := m.AddBalance(alice, "TND", big.NewInt(50)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.GrantRole("operator", alice); err != nil {
		t.Fatalf("grant: %v", err)
	}
	m.RevertToSnapshot(snap)
	bal, _ := m.Balance(alice, "TND")
	if bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected revert to 100, got %s", bal)
	}
	if m.HasRole("operator", alice) {
		t.Fatalf("role grant after snapshot must be reverted")
	}
}

func TestNegativeAndShortBalances(t *testing.T) {
	m, _ := newTestManager(t)
	alice := testAddr(0x04)
	err := m.SetBalance(alice, "TND", big.NewInt(-1))
	if !errors.Is(err, ErrNegativeBalance) || !coreerrors.IsFatal(err) {
		t.Fatalf("expected fatal negative balance, got %v", err)
	}
	err = m.SubBalance(alice, "TND", big.NewInt(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	err = m.AddBalance(alice, "XYZ", big.NewInt(1))
	if !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	overflow := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := m.SetBalance(alice, "TND", overflow); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMintBurnTracksSupply(t *testing.T) {
	m, _ := newTestManager(t)
	alice := testAddr(0x05)
	if err := m.Mint(alice, "TND", big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := m.Burn(alice, "TND", big.NewInt(400)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := m.TotalSupply("TND")
	if supply.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected supply 600, got %s", supply)
	}
}

func TestRolesAndCallers(t *testing.T) {
	m, _ := newTestManager(t)
	alice := testAddr(0x06)
	bob := testAddr(0x07)

	changed, err := m.GrantRole("oracle", alice)
	if err != nil || !changed {
		t.Fatalf("grant: changed=%v err=%v", changed, err)
	}
	changed, err = m.GrantRole("oracle", alice)
	if err != nil || changed {
		t.Fatalf("re-grant must be a no-op: changed=%v err=%v", changed, err)
	}
	if _, err := m.GrantRole("oracle", bob); err != nil {
		t.Fatalf("grant bob: %v", err)
	}
	members, err := m.RoleMembers("oracle")
	if err != nil || len(members) != 2 {
		t.Fatalf("members: %v %v", members, err)
	}
	if _, err := m.RevokeRole("oracle", alice); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if m.HasRole("oracle", alice) {
		t.Fatalf("alice should no longer hold oracle")
	}
	members, _ = m.RoleMembers("oracle")
	if len(members) != 1 || members[0] != bob {
		t.Fatalf("unexpected members after revoke: %v", members)
	}

	if _, err := m.AuthorizeCaller("Escrow", alice); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !m.IsAuthorizedCaller("escrow", alice) {
		t.Fatalf("component names are case-insensitive")
	}
	if m.IsAuthorizedCaller("escrow", bob) {
		t.Fatalf("bob must not be authorized")
	}
}

func TestNextSequence(t *testing.T) {
	m, _ := newTestManager(t)
	for want := uint64(1); want <= 3; want++ {
		got, err := m.NextSequence("orders")
		if err != nil {
			t.Fatalf("sequence: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	other, _ := m.NextSequence("advances")
	if other != 1 {
		t.Fatalf("independent counters expected, got %d", other)
	}
}

func TestKVListHelpers(t *testing.T) {
	m, _ := newTestManager(t)
	key := []byte("index/test")
	for _, v := range []string{"a", "b", "a", "c"} {
		if err := m.KVAppend(key, []byte(v)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := m.KVRemove(key, []byte("b")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "a" || string(list[1]) != "c" {
		t.Fatalf("unexpected list %q", list)
	}
	var empty [][]byte
	if err := m.KVGetList([]byte("index/none"), &empty); err != nil || empty == nil {
		t.Fatalf("missing lists decode as empty slices: %v %v", empty, err)
	}
}
