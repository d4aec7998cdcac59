// Package errors classifies core failures so automated callers can decide
// whether to retry, correct their input, or stop.
package errors

import stderrors "errors"

// Kind enumerates the rejection classes surfaced by the core.
type Kind uint8

const (
	// KindInternal marks errors that were not classified by the core, such
	// as storage failures.
	KindInternal Kind = iota
	// KindValidation marks malformed input: bad address, non-positive
	// amount, unknown token.
	KindValidation
	// KindEligibility marks participant gates: KYC level, tier,
	// subscription.
	KindEligibility
	// KindResourceState marks conflicts with current state: breaker
	// tripped, escrow locked, insufficient reserve, wrong status.
	KindResourceState
	// KindAuthorization marks missing roles, unauthorized component callers
	// and unmet confirmation thresholds.
	KindAuthorization
	// KindFatal marks invariant violations. The enclosing operation is
	// aborted with no partial effect.
	KindFatal
)

// String implements fmt.Stringer for logging and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEligibility:
		return "eligibility"
	case KindResourceState:
		return "resource_state"
	case KindAuthorization:
		return "authorization"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Error is a classified sentinel. Instances are compared by identity, so
// packages declare them once at package level and wrap them with fmt.Errorf
// when adding context.
type Error struct {
	kind      Kind
	msg       string
	retryable bool
}

// New returns a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Transient returns a resource-state error that a caller may retry once the
// underlying condition (for example a reserve shortfall) clears.
func Transient(msg string) *Error {
	return &Error{kind: KindResourceState, msg: msg, retryable: true}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the rejection class.
func (e *Error) Kind() Kind { return e.kind }

// Retryable reports whether the condition may clear without caller changes.
func (e *Error) Retryable() bool { return e.retryable }

// KindOf classifies err by walking its wrap chain.
func KindOf(err error) Kind {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.kind
	}
	return KindInternal
}

// Retryable reports whether err is a transient resource-state condition.
func Retryable(err error) bool {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

// IsFatal reports whether err represents an invariant violation.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }

// Is, As and Join re-export the standard helpers so callers importing this
// package under the errors name keep access to them.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)
