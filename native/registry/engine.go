package registry

import (
	"fmt"
	"time"

	coreerrors "fundcore/core/errors"
	"fundcore/core/events"
	"fundcore/core/types"
	"fundcore/crypto"
	"fundcore/native/common"
)

var (
	ErrInvalidAddress  = coreerrors.New(coreerrors.KindValidation, "registry: invalid address")
	ErrInvalidKYCLevel = coreerrors.New(coreerrors.KindValidation, "registry: kyc level must be 0, 1 or 2")
	ErrInvalidScore    = coreerrors.New(coreerrors.KindValidation, "registry: score must not exceed 100")
	ErrNotWhitelisted  = coreerrors.New(coreerrors.KindEligibility, "registry: account not whitelisted")
	ErrKYCLevelTooLow  = coreerrors.New(coreerrors.KindEligibility, "registry: kyc level too low")
	ErrTierTooLow      = coreerrors.New(coreerrors.KindEligibility, "registry: tier too low")
	ErrNilState        = coreerrors.New(coreerrors.KindInternal, "registry: state not configured")
)

var profilePrefix = []byte("registry/profile/")

func profileKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), profilePrefix...), addr[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr crypto.Address) bool
}

// Engine maintains investor profiles and exposes the eligibility gates other
// engines consume.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewEngine constructs a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: time.Now}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for timestamps.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil && evt != nil {
		e.emitter.Emit(events.Typed{Evt: evt})
	}
}

// Profile returns the stored profile or an empty non-whitelisted one.
func (e *Engine) Profile(addr crypto.Address) (*Profile, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	profile := new(Profile)
	ok, err := e.state.KVGet(profileKey(addr), profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Profile{Address: addr}, nil
	}
	return profile, nil
}

// FeeLevel returns the effective tier of addr.
func (e *Engine) FeeLevel(addr crypto.Address) (Tier, error) {
	p, err := e.Profile(addr)
	if err != nil {
		return TierBronze, err
	}
	return p.FeeLevel(), nil
}

// RequireWhitelisted fails unless addr passed KYC.
func (e *Engine) RequireWhitelisted(addr crypto.Address) error {
	p, err := e.Profile(addr)
	if err != nil {
		return err
	}
	if !p.Whitelisted() {
		return ErrNotWhitelisted
	}
	return nil
}

// RequireP2P enforces the peer-to-peer gate: full KYC and at least Silver.
func (e *Engine) RequireP2P(addr crypto.Address) error {
	p, err := e.Profile(addr)
	if err != nil {
		return err
	}
	if !p.Whitelisted() {
		return ErrNotWhitelisted
	}
	if p.KYCLevel < KYCWhite {
		return ErrKYCLevelTooLow
	}
	if p.FeeLevel() < TierSilver {
		return ErrTierTooLow
	}
	return nil
}

func (e *Engine) update(caller crypto.Address, op common.Operation, addr crypto.Address, field string, mutate func(*Profile) bool) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := common.Require(e.state, op, caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return ErrInvalidAddress
	}
	profile, err := e.Profile(addr)
	if err != nil {
		return err
	}
	if !mutate(profile) {
		return nil
	}
	profile.UpdatedAt = uint64(e.nowFn().Unix())
	if err := e.state.KVPut(profileKey(addr), profile); err != nil {
		return err
	}
	e.emit(NewProfileUpdatedEvent(profile, field))
	return nil
}

// AddToWhitelist records the KYC level and residency of addr. Level 0 removes
// the account from the whitelist.
func (e *Engine) AddToWhitelist(caller, addr crypto.Address, level uint8, resident bool) error {
	if level > KYCWhite {
		return ErrInvalidKYCLevel
	}
	return e.update(caller, common.OpAddToWhitelist, addr, "kyc", func(p *Profile) bool {
		if p.KYCLevel == level && p.Resident == resident {
			return false
		}
		p.KYCLevel = level
		p.Resident = resident
		return true
	})
}

// SetResidency records the tax residency of addr.
func (e *Engine) SetResidency(caller, addr crypto.Address, resident bool) error {
	return e.update(caller, common.OpSetResidency, addr, "residency", func(p *Profile) bool {
		if p.Resident == resident {
			return false
		}
		p.Resident = resident
		return true
	})
}

// SetScore records the behavioural score of addr.
func (e *Engine) SetScore(caller, addr crypto.Address, score uint8) error {
	if score > MaxScore {
		return ErrInvalidScore
	}
	return e.update(caller, common.OpSetScore, addr, "score", func(p *Profile) bool {
		if p.Score == score {
			return false
		}
		p.Score = score
		return true
	})
}

// SetSubscriptionActive toggles the subscription flag of addr.
func (e *Engine) SetSubscriptionActive(caller, addr crypto.Address, active bool) error {
	return e.update(caller, common.OpSetSubscription, addr, "subscription", func(p *Profile) bool {
		if p.SubscriptionActive == active {
			return false
		}
		p.SubscriptionActive = active
		return true
	})
}

// SyncSubscriptions applies a keeper batch and returns how many profiles
// changed. Redundant entries are no-ops.
func (e *Engine) SyncSubscriptions(caller crypto.Address, updates []SubscriptionUpdate) (int, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	if err := common.Require(e.state, common.OpSyncSubscriptions, caller); err != nil {
		return 0, err
	}
	changed := 0
	for i, u := range updates {
		if u.Address.IsZero() {
			return 0, fmt.Errorf("%w: entry %d", ErrInvalidAddress, i)
		}
		profile, err := e.Profile(u.Address)
		if err != nil {
			return 0, err
		}
		if profile.SubscriptionActive == u.Active {
			continue
		}
		profile.SubscriptionActive = u.Active
		profile.UpdatedAt = uint64(e.nowFn().Unix())
		if err := e.state.KVPut(profileKey(u.Address), profile); err != nil {
			return 0, err
		}
		e.emit(NewProfileUpdatedEvent(profile, "subscription"))
		changed++
	}
	return changed, nil
}
