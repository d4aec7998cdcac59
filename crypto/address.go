package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the size of an account identifier in bytes.
const AddressLength = 20

// AddressPrefix is the human-readable bech32 prefix used when rendering
// addresses for operators and backoffice consumers.
const AddressPrefix = "fc"

// Address represents a 20-byte account identifier. The zero value is the
// empty address and is never a valid participant.
type Address [AddressLength]byte

// BytesToAddress copies b into an Address. The input must be exactly 20 bytes.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("address must be %d bytes long (got %d)", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == Address{} }

// Hex renders the address as a 0x-prefixed hex string.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String renders the address using bech32 with the fc prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return a.Hex()
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		return a.Hex()
	}
	return encoded
}

// Short returns an abbreviated hex form suitable for log lines.
func (a Address) Short() string {
	h := hex.EncodeToString(a[:])
	return "0x" + h[:6] + ".." + h[len(h)-4:]
}

// MarshalText implements encoding.TextMarshaler using the bech32 form.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler accepting bech32 or hex.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes either a 0x-prefixed hex string or a bech32 string
// carrying the fc prefix.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Address{}, fmt.Errorf("invalid hex address: %w", err)
		}
		return BytesToAddress(decoded)
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// MustParseAddress is ParseAddress for static configuration and tests.
func MustParseAddress(raw string) Address {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

// ModuleAddress derives the deterministic account owned by a core component
// such as a fund pool, the tax vault or a credit reserve.
func ModuleAddress(name string) Address {
	digest := ethcrypto.Keccak256([]byte("fundcore/module/" + strings.ToLower(strings.TrimSpace(name))))
	var addr Address
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr
}

// Hash32 returns the keccak256 digest of the concatenated parts as a fixed
// array. It is used to derive order and escrow identifiers.
func Hash32(parts ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(parts...))
	return out
}
