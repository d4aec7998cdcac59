package common

import (
	"fmt"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
)

// ErrUnauthorized is returned when the caller holds none of the roles an
// operation requires.
var ErrUnauthorized = coreerrors.New(coreerrors.KindAuthorization, "access: caller lacks required role")

// ErrUnauthorizedCaller is returned when a component calls a privileged entry
// point it was not wired to.
var ErrUnauthorizedCaller = coreerrors.New(coreerrors.KindAuthorization, "access: component not authorized")

// Role identifies a privileged actor class.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleOracle         Role = "oracle"
	RoleKYCValidator   Role = "kyc_validator"
	RoleOperator       Role = "operator"
	RoleGovernance     Role = "governance"
	RolePanic          Role = "panic"
	RoleCreditOperator Role = "credit_operator"
	RoleKeeper         Role = "keeper"
)

// Roles lists every known role.
var Roles = []Role{
	RoleAdmin, RoleOracle, RoleKYCValidator, RoleOperator,
	RoleGovernance, RolePanic, RoleCreditOperator, RoleKeeper,
}

// ParseRole validates a role name.
func ParseRole(name string) (Role, error) {
	for _, r := range Roles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", coreerrors.New(coreerrors.KindValidation, fmt.Sprintf("access: unknown role %q", name))
}

// Operation names a privileged entry point.
type Operation string

const (
	OpUpdateVNI         Operation = "oracle.updateVNI"
	OpSetVolatility     Operation = "oracle.setVolatility"
	OpAddToWhitelist    Operation = "registry.addToWhitelist"
	OpSetResidency      Operation = "registry.setResidency"
	OpSetScore          Operation = "registry.setScore"
	OpSetSubscription   Operation = "registry.setSubscriptionActive"
	OpSyncSubscriptions Operation = "registry.syncSubscriptions"
	OpCreateFund        Operation = "funds.create"
	OpConfigureReserve  Operation = "pool.configureReserve"
	OpSetSpread         Operation = "pool.setSpread"
	OpSetGuaranteeFund  Operation = "pool.setGuaranteeFund"
	OpProvideLiquidity  Operation = "pool.provideLiquidity"
	OpSetThreshold      Operation = "breaker.setThreshold"
	OpResetBreaker      Operation = "breaker.reset"
	OpPanicTrip         Operation = "breaker.panic"
	OpActivateAdvance   Operation = "credit.activate"
	OpLiquidate         Operation = "credit.liquidate"
	OpSettleTrade       Operation = "orderbook.settle"
	OpGrantRole         Operation = "roles.grant"
	OpRevokeRole        Operation = "roles.revoke"
	OpAuthorizeCaller   Operation = "callers.authorize"
	OpFundCreditReserve Operation = "credit.fundReserve"
	OpInitCouncil       Operation = "governance.init"
	OpHandOff           Operation = "governance.handOff"
	OpSeedNAV            Operation = "oracle.seed"
)

// Permissions maps each privileged operation to the roles allowed to invoke
// it.
var Permissions = map[Operation][]Role{
	OpUpdateVNI:         {RoleOracle},
	OpSetVolatility:     {RoleOracle},
	OpAddToWhitelist:    {RoleKYCValidator},
	OpSetResidency:      {RoleKYCValidator},
	OpSetScore:          {RoleOperator},
	OpSetSubscription:   {RoleOperator},
	OpSyncSubscriptions: {RoleOperator, RoleKeeper},
	OpCreateFund:        {RoleAdmin, RoleGovernance},
	OpConfigureReserve:  {RoleAdmin, RoleGovernance},
	OpSetSpread:         {RoleGovernance},
	OpSetGuaranteeFund:  {RoleGovernance},
	OpProvideLiquidity:  {RoleAdmin, RoleGovernance, RoleOperator},
	OpSetThreshold:      {RoleGovernance},
	OpResetBreaker:      {RoleGovernance},
	OpPanicTrip:         {RolePanic},
	OpActivateAdvance:   {RoleCreditOperator},
	OpLiquidate:         {RoleCreditOperator, RoleKeeper},
	OpSettleTrade:       {RoleOperator},
	OpGrantRole:         {RoleAdmin},
	OpRevokeRole:        {RoleAdmin},
	OpAuthorizeCaller:   {RoleAdmin},
	OpFundCreditReserve: {RoleAdmin, RoleGovernance},
	OpInitCouncil:       {RoleAdmin},
	OpHandOff:           {RoleAdmin},
	OpSeedNAV:           {RoleAdmin},
}

// RoleView is the role-membership port access checks read from.
type RoleView interface {
	HasRole(role string, addr crypto.Address) bool
}

// CallerView is the capability-table port privileged component entry points
// read from.
type CallerView interface {
	IsAuthorizedCaller(component string, caller crypto.Address) bool
}

// Allowed reports whether caller holds any role permitted for op. Unknown
// operations are denied.
func Allowed(view RoleView, op Operation, caller crypto.Address) bool {
	if view == nil || caller.IsZero() {
		return false
	}
	for _, role := range Permissions[op] {
		if view.HasRole(string(role), caller) {
			return true
		}
	}
	return false
}

// Require is Allowed expressed as an error.
func Require(view RoleView, op Operation, caller crypto.Address) error {
	if Allowed(view, op, caller) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, op)
}

// RequireCaller checks the capability table of component.
func RequireCaller(view CallerView, component string, caller crypto.Address) error {
	if view != nil && view.IsAuthorizedCaller(component, caller) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnauthorizedCaller, component)
}
