package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/storage"
)

var feeder = crypto.Address{0x0F}

func newTestOracle(t *testing.T, now *int64) *Engine {
	t.Helper()
	m := state.NewManager(storage.NewMemDB())
	if err := m.RegisterToken("FND", "Fund token", 8); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := m.GrantRole(string(common.RoleOracle), feeder); err != nil {
		t.Fatalf("grant: %v", err)
	}
	e := NewEngine()
	e.SetState(m)
	e.SetNowFunc(func() time.Time { return time.Unix(*now, 0) })
	return e
}

func TestNAVFailsClosedWhenUninitialised(t *testing.T) {
	now := int64(1_000)
	e := newTestOracle(t, &now)
	_, err := e.NAV("FND")
	if !errors.Is(err, ErrNAVUninitialised) {
		t.Fatalf("expected uninitialised, got %v", err)
	}
}

func TestUpdateVNIValidation(t *testing.T) {
	now := int64(1_000)
	e := newTestOracle(t, &now)
	if err := e.UpdateVNI(crypto.Address{0x01}, "FND", big.NewInt(1), 0); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := e.UpdateVNI(feeder, "FND", big.NewInt(0), 0); !errors.Is(err, ErrInvalidVNI) {
		t.Fatalf("expected invalid vni, got %v", err)
	}
	if err := e.UpdateVNI(feeder, "XXX", big.NewInt(1), 0); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	if err := e.UpdateVNI(feeder, "fnd", big.NewInt(12_550_000_000), 900); err != nil {
		t.Fatalf("update: %v", err)
	}
	err := e.UpdateVNI(feeder, "FND", big.NewInt(12_600_000_000), 800)
	if !errors.Is(err, ErrStaleUpdate) || coreerrors.KindOf(err) != coreerrors.KindValidation {
		t.Fatalf("expected stale update, got %v", err)
	}
	nav, err := e.NAV("FND")
	if err != nil || nav.Int64() != 12_550_000_000 {
		t.Fatalf("nav: %v %v", nav, err)
	}
}

func TestUpdateVNIIdempotentAndHeartbeat(t *testing.T) {
	now := int64(1_000)
	e := newTestOracle(t, &now)
	vni := big.NewInt(10_000_000_000)
	if err := e.UpdateVNI(feeder, "FND", vni, 1_000); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.UpdateVNI(feeder, "FND", vni, 1_000); err != nil {
		t.Fatalf("re-apply must succeed: %v", err)
	}
	if err := e.UpdateVNI(feeder, "FND", vni, 1_500); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	rec, _ := e.Record("FND")
	if rec.UpdatedAt != 1_500 {
		t.Fatalf("heartbeat should refresh timestamp, got %d", rec.UpdatedAt)
	}
}

func TestNAVStaleness(t *testing.T) {
	now := int64(10_000)
	e := newTestOracle(t, &now)
	e.SetMaxAge(time.Hour)
	if err := e.UpdateVNI(feeder, "FND", big.NewInt(100_000_000), 10_000); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := e.NAV("FND"); err != nil {
		t.Fatalf("fresh nav: %v", err)
	}
	now += 3_601
	if _, err := e.NAV("FND"); !errors.Is(err, ErrNAVStale) {
		t.Fatalf("expected stale nav, got %v", err)
	}
}

func TestSetVolatility(t *testing.T) {
	now := int64(1_000)
	e := newTestOracle(t, &now)
	if err := e.SetVolatility(feeder, "FND", 10_001); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected invalid bps, got %v", err)
	}
	if err := e.SetVolatility(feeder, "FND", 250); err != nil {
		t.Fatalf("volatility: %v", err)
	}
	rec, _ := e.Record("FND")
	if rec.VolatilityBps != 250 || rec.VNI.Sign() != 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
}
