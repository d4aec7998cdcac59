package state

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"fundcore/crypto"
)

// TokenMetadata describes a registered ledger symbol: the cash unit or a fund
// token.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// NormalizeSymbol canonicalises token symbols for storage keys.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// RegisterToken stores the metadata for a ledger symbol and records it in the
// token index. Registering the same metadata twice is a no-op.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	existing, err := m.Token(normalized)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Name == name && existing.Decimals == decimals {
			return nil
		}
		return fmt.Errorf("token %s already registered", normalized)
	}
	meta := &TokenMetadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals}
	if err := m.KVPut(tokenMetadataKey(normalized), meta); err != nil {
		return err
	}
	return m.KVAppend(tokenListKey, []byte(normalized))
}

// Token returns the metadata for symbol or nil when unregistered.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	meta := new(TokenMetadata)
	ok, err := m.KVGet(tokenMetadataKey(NormalizeSymbol(symbol)), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return meta, nil
}

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	meta, err := m.Token(symbol)
	return err == nil && meta != nil
}

// TokenList returns all registered token symbols in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	var raw [][]byte
	if err := m.KVGetList(tokenListKey, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		out = append(out, string(b))
	}
	sort.Strings(out)
	return out, nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Balance retrieves a token balance for the provided account and token.
func (m *Manager) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr, NormalizeSymbol(symbol)), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetBalance stores an account balance for the provided token. Negative or
// overflowing values are invariant violations.
func (m *Manager) SetBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	if addr.IsZero() {
		return fmt.Errorf("address must not be empty")
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	normalized := NormalizeSymbol(symbol)
	if !m.TokenExists(normalized) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, normalized)
	}
	return m.KVPut(balanceKey(addr, normalized), amount)
}

// AddBalance credits amount to addr.
func (m *Manager) AddBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	current, err := m.Balance(addr, symbol)
	if err != nil {
		return err
	}
	return m.SetBalance(addr, symbol, new(big.Int).Add(current, amount))
}

// SubBalance debits amount from addr, failing when the balance is short.
func (m *Manager) SubBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	current, err := m.Balance(addr, symbol)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return m.SetBalance(addr, symbol, new(big.Int).Sub(current, amount))
}

// Move debits from and credits to. Escrow locks are enforced one level up by
// the bank module.
func (m *Manager) Move(from, to crypto.Address, symbol string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := m.SubBalance(from, symbol, amount); err != nil {
		return err
	}
	return m.AddBalance(to, symbol, amount)
}

// TotalSupply returns the outstanding issuance of symbol.
func (m *Manager) TotalSupply(symbol string) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(supplyKey(NormalizeSymbol(symbol)), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) setSupply(symbol string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeBalance
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrBalanceOverflow
	}
	return m.KVPut(supplyKey(NormalizeSymbol(symbol)), amount)
}

// Mint credits amount to addr and increases the outstanding supply.
func (m *Manager) Mint(addr crypto.Address, symbol string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.AddBalance(addr, symbol, amount); err != nil {
		return err
	}
	supply, err := m.TotalSupply(symbol)
	if err != nil {
		return err
	}
	return m.setSupply(symbol, new(big.Int).Add(supply, amount))
}

// Burn debits amount from addr and decreases the outstanding supply.
func (m *Manager) Burn(addr crypto.Address, symbol string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.SubBalance(addr, symbol, amount); err != nil {
		return err
	}
	supply, err := m.TotalSupply(symbol)
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return ErrNegativeBalance
	}
	return m.setSupply(symbol, new(big.Int).Sub(supply, amount))
}
