package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"fundcore/core/state"
	"fundcore/crypto"
	"fundcore/native/common"
	"fundcore/native/funds"
	"fundcore/native/governance"
	"fundcore/native/pool"
	"fundcore/native/revenue"
)

var bootstrappedKey = []byte("core/bootstrapped")

// GrantRole assigns role to addr. Granting a held role is a no-op.
func (c *Core) GrantRole(caller crypto.Address, role string, addr crypto.Address) error {
	return c.apply(string(common.OpGrantRole), role, caller, func() (interface{}, error) {
		return c.grantRole(caller, role, addr)
	})
}

func (c *Core) grantRole(caller crypto.Address, role string, addr crypto.Address) (interface{}, error) {
	if err := common.Require(c.state, common.OpGrantRole, caller); err != nil {
		return nil, err
	}
	parsed, err := common.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if _, err := c.state.GrantRole(string(parsed), addr); err != nil {
		return nil, err
	}
	return roleChange{Role: string(parsed), Address: addr.String(), Granted: true}, nil
}

// RevokeRole removes role from addr. Revoking an absent role is a no-op.
func (c *Core) RevokeRole(caller crypto.Address, role string, addr crypto.Address) error {
	return c.apply(string(common.OpRevokeRole), role, caller, func() (interface{}, error) {
		return c.revokeRole(caller, role, addr)
	})
}

func (c *Core) revokeRole(caller crypto.Address, role string, addr crypto.Address) (interface{}, error) {
	if err := common.Require(c.state, common.OpRevokeRole, caller); err != nil {
		return nil, err
	}
	parsed, err := common.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if _, err := c.state.RevokeRole(string(parsed), addr); err != nil {
		return nil, err
	}
	return roleChange{Role: string(parsed), Address: addr.String()}, nil
}

// AuthorizeCaller adds addr to the capability table of component.
func (c *Core) AuthorizeCaller(caller crypto.Address, component string, addr crypto.Address) error {
	return c.apply(string(common.OpAuthorizeCaller), component, caller, func() (interface{}, error) {
		return c.authorizeCaller(caller, component, addr)
	})
}

func (c *Core) authorizeCaller(caller crypto.Address, component string, addr crypto.Address) (interface{}, error) {
	if err := common.Require(c.state, common.OpAuthorizeCaller, caller); err != nil {
		return nil, err
	}
	if _, err := c.state.AuthorizeCaller(component, addr); err != nil {
		return nil, err
	}
	return capabilityChange{Component: component, Caller: addr.String()}, nil
}

// CreateFund registers a fund. Re-creating a fund with the same token
// returns the existing record.
func (c *Core) CreateFund(caller crypto.Address, id, name, token string) (*funds.Fund, error) {
	var fund *funds.Fund
	err := c.apply(string(common.OpCreateFund), id, caller, func() (interface{}, error) {
		f, err := c.createFund(caller, id, name, token)
		fund = f
		return f, err
	})
	if err != nil {
		return nil, err
	}
	return fund, nil
}

func (c *Core) createFund(caller crypto.Address, id, name, token string) (*funds.Fund, error) {
	if existing, err := c.funds.Fund(id); err == nil {
		if err := common.Require(c.state, common.OpCreateFund, caller); err != nil {
			return nil, err
		}
		if existing.Token != state.NormalizeSymbol(token) {
			return nil, fmt.Errorf("%w: %s", funds.ErrFundExists, existing.ID)
		}
		return existing, nil
	}
	return c.funds.CreateFund(caller, id, name, token)
}

// SeedNAV publishes the opening NAV of a fund through the fund's oracle
// account.
func (c *Core) SeedNAV(caller crypto.Address, token string, nav *big.Int) error {
	return c.apply(string(common.OpSeedNAV), token, caller, func() (interface{}, error) {
		if err := common.Require(c.state, common.OpSeedNAV, caller); err != nil {
			return nil, err
		}
		fund, err := c.funds.FundByToken(token)
		if err != nil {
			return nil, err
		}
		if _, err := c.state.GrantRole(string(common.RoleOracle), fund.OracleAccount); err != nil {
			return nil, err
		}
		if err := c.oracle.UpdateVNI(fund.OracleAccount, fund.Token, nav, 0); err != nil {
			return nil, err
		}
		return c.oracle.Record(fund.Token)
	})
}

// ConfigureReserve binds the pool reserve of a fund to its pool account and
// the given treasury.
func (c *Core) ConfigureReserve(caller crypto.Address, token string, treasury crypto.Address, spreadBps, guaranteeBps uint32) (*pool.Reserve, error) {
	var reserve *pool.Reserve
	err := c.apply(string(common.OpConfigureReserve), token, caller, func() (interface{}, error) {
		fund, err := c.funds.FundByToken(token)
		if err != nil {
			return nil, err
		}
		r, err := c.pool.ConfigureReserve(caller, fund.Token, pool.ReserveConfig{
			Account:          fund.PoolAccount,
			Treasury:         treasury,
			SpreadBps:        spreadBps,
			GuaranteeFundBps: guaranteeBps,
		})
		reserve = r
		return r, err
	})
	if err != nil {
		return nil, err
	}
	return reserve, nil
}

// FundCreditReserve tops the credit reserve compartment up to target cash.
// Calls at or below the current balance change nothing.
func (c *Core) FundCreditReserve(caller crypto.Address, target *big.Int) (*big.Int, error) {
	var minted *big.Int
	err := c.apply(string(common.OpFundCreditReserve), string(revenue.CreditReserve), caller, func() (interface{}, error) {
		if err := common.Require(c.state, common.OpFundCreditReserve, caller); err != nil {
			return nil, err
		}
		if target == nil || target.Sign() < 0 {
			return nil, revenue.ErrInvalidAmount
		}
		account := revenue.CreditReserve.Account()
		current, err := c.state.Balance(account, common.Cash)
		if err != nil {
			return nil, err
		}
		minted = new(big.Int)
		if current.Cmp(target) >= 0 {
			return nil, nil
		}
		minted.Sub(target, current)
		if err := c.state.Mint(account, common.Cash, minted); err != nil {
			return nil, err
		}
		return reserveFunding{Compartment: string(revenue.CreditReserve), Minted: minted.String(), Balance: target.String()}, nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// InitCouncil creates the multisig council. Repeating the call with the same
// owners and threshold returns the existing council.
func (c *Core) InitCouncil(caller crypto.Address, owners []crypto.Address, threshold uint32) (*governance.Council, error) {
	var council *governance.Council
	err := c.apply(string(common.OpInitCouncil), "council", caller, func() (interface{}, error) {
		if err := common.Require(c.state, common.OpInitCouncil, caller); err != nil {
			return nil, err
		}
		existing, err := c.council.Council()
		if err == nil {
			if !sameCouncil(existing, owners, threshold) {
				return nil, governance.ErrAlreadyInitialized
			}
			council = existing
			return existing, nil
		}
		if !errors.Is(err, governance.ErrNotInitialized) {
			return nil, err
		}
		council, err = c.council.Init(owners, threshold)
		return council, err
	})
	if err != nil {
		return nil, err
	}
	return council, nil
}

func sameCouncil(existing *governance.Council, owners []crypto.Address, threshold uint32) bool {
	if existing.Threshold != threshold || len(existing.Owners) != len(owners) {
		return false
	}
	for _, owner := range owners {
		if !existing.IsOwner(owner) {
			return false
		}
	}
	return true
}

// HandOffToCouncil grants Admin and Governance to the council and renounces
// the caller's Admin role.
func (c *Core) HandOffToCouncil(caller crypto.Address) error {
	return c.apply(string(common.OpHandOff), "council", caller, func() (interface{}, error) {
		if err := common.Require(c.state, common.OpHandOff, caller); err != nil {
			return nil, err
		}
		council, err := c.council.Council()
		if err != nil {
			return nil, err
		}
		for _, role := range []common.Role{common.RoleAdmin, common.RoleGovernance} {
			if _, err := c.state.GrantRole(string(role), council.Address); err != nil {
				return nil, err
			}
		}
		if caller != council.Address {
			if _, err := c.state.RevokeRole(string(common.RoleAdmin), caller); err != nil {
				return nil, err
			}
		}
		return handOff{Council: council.Address.String(), Renounced: caller.String()}, nil
	})
}

// Bootstrapped reports whether ApplyBootstrap has completed on this ledger.
func (c *Core) Bootstrapped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var done bool
	ok, err := c.state.KVGet(bootstrappedKey, &done)
	return err == nil && ok && done
}

// ApplyBootstrap seeds an empty ledger from the Bootstrap and Governance
// configuration sections: admin, funds, NAVs, reserves, credit reserve and
// council. It runs once; later calls return without effect.
func (c *Core) ApplyBootstrap() error {
	if c.Bootstrapped() {
		return nil
	}
	admin, ok := c.cfg.BootstrapAdmin()
	if !ok {
		c.log.Warn("bootstrap skipped: no admin configured")
		return nil
	}
	if err := c.apply("core.genesis", "admin", admin, func() (interface{}, error) {
		members, err := c.state.RoleMembers(string(common.RoleAdmin))
		if err != nil {
			return nil, err
		}
		if len(members) > 0 {
			return nil, nil
		}
		if _, err := c.state.GrantRole(string(common.RoleAdmin), admin); err != nil {
			return nil, err
		}
		return roleChange{Role: string(common.RoleAdmin), Address: admin.String(), Granted: true}, nil
	}); err != nil {
		return err
	}

	for _, f := range c.cfg.Bootstrap.Funds {
		fund, err := c.CreateFund(admin, f.ID, f.Name, f.Token)
		if err != nil {
			return fmt.Errorf("bootstrap fund %s: %w", f.ID, err)
		}
		nav, err := f.NAVAmount()
		if err != nil {
			return fmt.Errorf("bootstrap fund %s: %w", f.ID, err)
		}
		if err := c.SeedNAV(admin, fund.Token, nav); err != nil {
			return fmt.Errorf("bootstrap fund %s: %w", f.ID, err)
		}
		treasury, err := f.TreasuryAddress()
		if err != nil {
			return fmt.Errorf("bootstrap fund %s: %w", f.ID, err)
		}
		params := c.cfg.PoolParams()
		if _, err := c.ConfigureReserve(admin, fund.Token, treasury, params.DefaultSpreadBps, params.GuaranteeFundBps); err != nil {
			return fmt.Errorf("bootstrap fund %s: %w", f.ID, err)
		}
	}

	if seed := c.cfg.CreditReserveSeed(); seed.Sign() > 0 {
		if _, err := c.FundCreditReserve(admin, seed); err != nil {
			return fmt.Errorf("bootstrap credit reserve: %w", err)
		}
	}

	owners, err := c.cfg.GovernanceOwners()
	if err != nil {
		return err
	}
	if len(owners) > 0 && c.HasRole(string(common.RoleAdmin), admin) {
		if _, err := c.InitCouncil(admin, owners, c.cfg.Governance.Threshold); err != nil {
			return fmt.Errorf("bootstrap council: %w", err)
		}
		if err := c.HandOffToCouncil(admin); err != nil {
			return fmt.Errorf("bootstrap hand-off: %w", err)
		}
	}

	if err := c.apply("core.bootstrap", "core", admin, func() (interface{}, error) {
		if err := c.state.KVPut(bootstrappedKey, true); err != nil {
			return nil, err
		}
		return bootstrapSummary{Funds: len(c.cfg.Bootstrap.Funds), Council: len(owners) > 0}, nil
	}); err != nil {
		return err
	}
	c.log.Info("bootstrap applied",
		slog.Int("funds", len(c.cfg.Bootstrap.Funds)),
		slog.Bool("council", len(owners) > 0))
	return nil
}

type roleChange struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	Granted bool   `json:"granted"`
}

type capabilityChange struct {
	Component string `json:"component"`
	Caller    string `json:"caller"`
}

type reserveFunding struct {
	Compartment string `json:"compartment"`
	Minted      string `json:"minted"`
	Balance     string `json:"balance"`
}

type handOff struct {
	Council   string `json:"council"`
	Renounced string `json:"renounced"`
}

type bootstrapSummary struct {
	Funds   int  `json:"funds"`
	Council bool `json:"council"`
}
