package common

import (
	"errors"
	"testing"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
)

type roleSet map[string]map[crypto.Address]bool

func (r roleSet) HasRole(role string, addr crypto.Address) bool { return r[role][addr] }

func TestAllowed(t *testing.T) {
	oracle := crypto.Address{1}
	gov := crypto.Address{2}
	view := roleSet{
		string(RoleOracle):     {oracle: true},
		string(RoleGovernance): {gov: true},
	}
	cases := []struct {
		name   string
		op     Operation
		caller crypto.Address
		want   bool
	}{
		{"oracle updates nav", OpUpdateVNI, oracle, true},
		{"governance cannot update nav", OpUpdateVNI, gov, false},
		{"governance resets breaker", OpResetBreaker, gov, true},
		{"oracle cannot reset breaker", OpResetBreaker, oracle, false},
		{"governance creates fund", OpCreateFund, gov, true},
		{"zero caller", OpUpdateVNI, crypto.Address{}, false},
		{"unknown operation", Operation("nope"), gov, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allowed(view, tc.op, tc.caller); got != tc.want {
				t.Fatalf("Allowed=%v want %v", got, tc.want)
			}
		})
	}
}

func TestRequireClassifiesAuthorization(t *testing.T) {
	err := Require(roleSet{}, OpPanicTrip, crypto.Address{9})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if coreerrors.KindOf(err) != coreerrors.KindAuthorization {
		t.Fatalf("expected authorization kind, got %s", coreerrors.KindOf(err))
	}
}

func TestEveryOperationHasRoles(t *testing.T) {
	for op, roles := range Permissions {
		if len(roles) == 0 {
			t.Fatalf("operation %s has no roles", op)
		}
	}
	if _, err := ParseRole("panic"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}
