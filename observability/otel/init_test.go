package otel

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,, =skip, broken, tenant=fund ")
	if len(got) != 2 || got["api-key"] != "secret" || got["tenant"] != "fund" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutSignalsIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "fundd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRequiresEndpointForExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{ServiceName: "fundd", Traces: true}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}

func TestSamplerRatio(t *testing.T) {
	for ratio, want := range map[float64]string{
		0:    "AlwaysOnSampler",
		1:    "AlwaysOnSampler",
		0.25: "TraceIDRatioBased{0.25}",
	} {
		got := Config{SampleRatio: ratio}.sampler().Description()
		if !strings.Contains(got, want) {
			t.Fatalf("ratio %v: got %q want %q", ratio, got, want)
		}
	}
}

func TestOperationSpansWithoutProvider(t *testing.T) {
	ctx, span := StartOperation(context.Background(), "pool.buy", "FND")
	if ctx == nil {
		t.Fatalf("expected context")
	}
	EndOperation(span, errors.New("rejected"))
}
