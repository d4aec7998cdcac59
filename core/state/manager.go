package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
	"fundcore/storage"
)

var (
	// ErrNegativeBalance signals an attempt to persist a negative amount.
	ErrNegativeBalance = coreerrors.New(coreerrors.KindFatal, "state: negative balance not allowed")
	// ErrBalanceOverflow signals an amount that does not fit in 256 bits.
	ErrBalanceOverflow = coreerrors.New(coreerrors.KindFatal, "state: balance overflows 256 bits")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = coreerrors.New(coreerrors.KindResourceState, "state: insufficient balance")
	// ErrUnknownToken is returned for balances of unregistered symbols.
	ErrUnknownToken = coreerrors.New(coreerrors.KindValidation, "state: token not registered")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = coreerrors.New(coreerrors.KindValidation, "state: amount must not be negative")
)

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key  string
	prev entry
	had  bool
}

// Manager is the journaled view over the ledger database. Writes are staged
// in an overlay and only reach the database through Commit, which applies
// them as a single batch. Discard drops every staged write. Snapshot and
// RevertToSnapshot provide nested savepoints inside one operation.
//
// Manager is not safe for concurrent mutation; the core serializes writers.
type Manager struct {
	db      storage.Database
	dirty   map[string]entry
	journal []journalEntry
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]entry)}
}

func (m *Manager) read(key []byte) ([]byte, error) {
	if e, ok := m.dirty[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) record(key string) {
	prev, had := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, had: had})
}

func (m *Manager) write(key []byte, value []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = entry{value: append([]byte(nil), value...)}
}

func (m *Manager) remove(key []byte) {
	k := string(key)
	m.record(k)
	m.dirty[k] = entry{deleted: true}
}

// Snapshot returns a savepoint identifier for RevertToSnapshot.
func (m *Manager) Snapshot() int { return len(m.journal) }

// RevertToSnapshot undoes every write staged after the savepoint.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		j := m.journal[i]
		if j.had {
			m.dirty[j.key] = j.prev
		} else {
			delete(m.dirty, j.key)
		}
	}
	m.journal = m.journal[:id]
}

// Dirty reports whether the overlay holds uncommitted writes.
func (m *Manager) Dirty() bool { return len(m.dirty) > 0 }

// Commit flushes the overlay to the database atomically and resets the
// journal. On failure nothing is applied and the overlay is discarded.
func (m *Manager) Commit() error {
	defer m.Discard()
	if len(m.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, k := range keys {
		e := m.dirty[k]
		if e.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), e.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]entry)
	m.journal = nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 so module prefixes never collide with raw
// account keys.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.remove(kvKey(key))
	return nil
}

func (m *Manager) loadList(hashed []byte) ([][]byte, error) {
	data, err := m.read(hashed)
	if err != nil {
		return nil, err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	list, err := m.loadList(hashed)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	m.write(hashed, encoded)
	return nil
}

// KVRemove deletes value from the list stored under key, preserving order.
func (m *Manager) KVRemove(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	list, err := m.loadList(hashed)
	if err != nil {
		return err
	}
	filtered := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(list) {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	m.write(hashed, encoded)
	return nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		elem := val.Elem()
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// NextSequence increments and returns the named counter. The first value
// handed out is 1.
func (m *Manager) NextSequence(name string) (uint64, error) {
	key := append(append([]byte(nil), sequencePrefix...), []byte(strings.TrimSpace(name))...)
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	current++
	if err := m.KVPut(key, current); err != nil {
		return 0, err
	}
	return current, nil
}

// GrantRole associates an address with the specified role. The returned flag
// is false when the address already held the role.
func (m *Manager) GrantRole(role string, addr crypto.Address) (bool, error) {
	trimmed := strings.TrimSpace(role)
	if trimmed == "" {
		return false, fmt.Errorf("role must not be empty")
	}
	if addr.IsZero() {
		return false, fmt.Errorf("address must not be empty")
	}
	if m.HasRole(trimmed, addr) {
		return false, nil
	}
	if err := m.KVPut(roleKey(trimmed, addr), true); err != nil {
		return false, err
	}
	if err := m.KVAppend(roleIndexKey(trimmed), addr.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeRole removes the role from addr. The returned flag is false when the
// address did not hold the role.
func (m *Manager) RevokeRole(role string, addr crypto.Address) (bool, error) {
	trimmed := strings.TrimSpace(role)
	if !m.HasRole(trimmed, addr) {
		return false, nil
	}
	if err := m.KVDelete(roleKey(trimmed, addr)); err != nil {
		return false, err
	}
	if err := m.KVRemove(roleIndexKey(trimmed), addr.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// HasRole reports whether the provided address holds the specified role.
// Read errors result in a false return so access checks fail closed.
func (m *Manager) HasRole(role string, addr crypto.Address) bool {
	if addr.IsZero() {
		return false
	}
	var granted bool
	ok, err := m.KVGet(roleKey(strings.TrimSpace(role), addr), &granted)
	return err == nil && ok && granted
}

// RoleMembers returns all addresses assigned to the provided role in grant
// order.
func (m *Manager) RoleMembers(role string) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(roleIndexKey(strings.TrimSpace(role)), &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(raw)
}

// AuthorizeCaller records caller in the capability table of component.
func (m *Manager) AuthorizeCaller(component string, caller crypto.Address) (bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(component))
	if trimmed == "" {
		return false, fmt.Errorf("component must not be empty")
	}
	if caller.IsZero() {
		return false, fmt.Errorf("caller must not be empty")
	}
	if m.IsAuthorizedCaller(trimmed, caller) {
		return false, nil
	}
	if err := m.KVPut(callerKey(trimmed, caller), true); err != nil {
		return false, err
	}
	if err := m.KVAppend(callerIndexKey(trimmed), caller.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeCaller removes caller from the capability table of component.
func (m *Manager) RevokeCaller(component string, caller crypto.Address) (bool, error) {
	trimmed := strings.ToLower(strings.TrimSpace(component))
	if !m.IsAuthorizedCaller(trimmed, caller) {
		return false, nil
	}
	if err := m.KVDelete(callerKey(trimmed, caller)); err != nil {
		return false, err
	}
	if err := m.KVRemove(callerIndexKey(trimmed), caller.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// IsAuthorizedCaller reports whether caller may invoke the privileged entry
// points of component.
func (m *Manager) IsAuthorizedCaller(component string, caller crypto.Address) bool {
	if caller.IsZero() {
		return false
	}
	var granted bool
	ok, err := m.KVGet(callerKey(strings.ToLower(strings.TrimSpace(component)), caller), &granted)
	return err == nil && ok && granted
}

// AuthorizedCallers lists the capability table of component.
func (m *Manager) AuthorizedCallers(component string) ([]crypto.Address, error) {
	var raw [][]byte
	if err := m.KVGetList(callerIndexKey(strings.ToLower(strings.TrimSpace(component))), &raw); err != nil {
		return nil, err
	}
	return decodeAddresses(raw)
}

func decodeAddresses(raw [][]byte) ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		addr, err := crypto.BytesToAddress(b)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
