package errors

import (
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	sentinel := New(KindEligibility, "registry: tier too low")
	wrapped := fmt.Errorf("request advance: %w", sentinel)

	if got := KindOf(wrapped); got != KindEligibility {
		t.Fatalf("expected eligibility, got %s", got)
	}
	if !Is(wrapped, sentinel) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if Retryable(wrapped) {
		t.Fatalf("eligibility errors are not retryable")
	}
}

func TestTransientIsRetryableResourceState(t *testing.T) {
	err := fmt.Errorf("sell: %w", Transient("pool: insufficient reserve"))
	if KindOf(err) != KindResourceState {
		t.Fatalf("transient errors are resource-state")
	}
	if !Retryable(err) {
		t.Fatalf("expected retryable")
	}
}

func TestUnclassifiedIsInternal(t *testing.T) {
	if got := KindOf(fmt.Errorf("disk full")); got != KindInternal {
		t.Fatalf("expected internal, got %s", got)
	}
	if IsFatal(nil) {
		t.Fatalf("nil is not fatal")
	}
}

func TestKindStrings(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range []Kind{KindInternal, KindValidation, KindEligibility, KindResourceState, KindAuthorization, KindFatal} {
		name := k.String()
		if seen[name] {
			t.Fatalf("duplicate kind label %q", name)
		}
		seen[name] = true
	}
}
