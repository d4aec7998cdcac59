package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "fundd", Env: "test", Output: &buf})
	defer closer.Close()

	logger.Info("settled", slog.String("kind", "pool.buy"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	for key, want := range map[string]string{
		"message":  "settled",
		"severity": "INFO",
		"service":  "fundd",
		"env":      "test",
		"kind":     "pool.buy",
	} {
		if got, _ := record[key].(string); got != want {
			t.Fatalf("%s: expected %q, got %q", key, want, got)
		}
	}
	if _, ok := record["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", record)
	}
}

func TestSetupFansOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "fundd.log")
	logger, closer := SetupWithOptions(Options{Service: "fundd", File: path, MaxSizeMB: 1, Output: &buf})
	logger.Warn("breaker tripped")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected stdout copy")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := SetupWithOptions(Options{Service: "fundd", Level: slog.LevelWarn, Output: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("iban", "TN59 1000"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected iban to be masked, got %s", attr.Value)
	}
	if attr := MaskField("kind", "pool.sell"); attr.Value.String() != "pool.sell" {
		t.Fatalf("allowlisted key should pass through, got %s", attr.Value)
	}
	if attr := MaskField("iban", " "); attr.Value.String() != " " {
		t.Fatalf("empty values stay empty")
	}
}

func TestAddressField(t *testing.T) {
	attr := AddressField("caller", "0x00000000000000000000000000000000000000a1")
	if got := attr.Value.String(); got != "0x0000…00a1" {
		t.Fatalf("unexpected short form %q", got)
	}
	if got := AddressField("caller", "short").Value.String(); got != "short" {
		t.Fatalf("short values pass through, got %q", got)
	}
}
