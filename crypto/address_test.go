package crypto

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	var addr Address
	copy(addr[:], bytes.Repeat([]byte{0xAB}, AddressLength))

	parsed, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if parsed != addr {
		t.Fatalf("bech32 round trip mismatch: %s != %s", parsed.Hex(), addr.Hex())
	}
	parsed, err = ParseAddress(addr.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if parsed != addr {
		t.Fatalf("hex round trip mismatch")
	}
}

func TestParseAddressRejectsBadInput(t *testing.T) {
	cases := []string{"", "0x1234", "nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", "not-an-address"}
	for _, raw := range cases {
		if _, err := ParseAddress(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("revenue/tax_vault")
	b := ModuleAddress(" Revenue/Tax_Vault ")
	if a != b {
		t.Fatalf("module address should be case and whitespace insensitive")
	}
	if a == ModuleAddress("revenue/guarantee_fund") {
		t.Fatalf("distinct modules must not collide")
	}
	if a.IsZero() {
		t.Fatalf("module address must not be zero")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := ModuleAddress("pool/fcp-a")
	encoded, err := json.Marshal(struct {
		Holder Address `json:"holder"`
	}{Holder: addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Holder Address `json:"holder"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Holder != addr {
		t.Fatalf("json round trip mismatch")
	}
}
