package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
)

// Council-executable methods outside the council's own membership calls.
const (
	MethodGrantRole        = "roles.grant"
	MethodRevokeRole       = "roles.revoke"
	MethodAuthorizeCaller  = "callers.authorize"
	MethodResetBreaker     = "breaker.reset"
	MethodSetThreshold     = "breaker.setThreshold"
	MethodSetGuaranteeFund = "pool.setGuaranteeFund"
	MethodSetSpread        = "pool.setSpread"
	MethodCreateFund       = "funds.create"
)

var (
	ErrUnknownMethod    = coreerrors.New(coreerrors.KindValidation, "core: unknown governance method")
	ErrInvalidArgs      = coreerrors.New(coreerrors.KindValidation, "core: invalid governance call arguments")
	ErrValueNotAccepted = coreerrors.New(coreerrors.KindValidation, "core: governance method does not accept value")
)

// RoleArgs is the payload of roles.grant and roles.revoke.
type RoleArgs struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

// CallerArgs is the payload of callers.authorize.
type CallerArgs struct {
	Component string `json:"component"`
	Address   string `json:"address"`
}

// TokenArgs is the payload of breaker.reset.
type TokenArgs struct {
	Token string `json:"token"`
}

// BpsArgs is the payload of breaker.setThreshold and pool.setSpread.
type BpsArgs struct {
	Token string `json:"token"`
	Bps   uint32 `json:"bps"`
}

// GuaranteeArgs is the payload of pool.setGuaranteeFund. An empty Address
// selects the guarantee compartment.
type GuaranteeArgs struct {
	Token   string `json:"token"`
	Address string `json:"address,omitempty"`
	Bps     uint32 `json:"bps"`
}

// FundArgs is the payload of funds.create.
type FundArgs struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type handler func(c *Core, caller crypto.Address, data []byte) error

var dispatchTable = map[string]handler{
	MethodGrantRole: func(c *Core, caller crypto.Address, data []byte) error {
		var args RoleArgs
		addr, err := decodeWithAddress(data, &args, func() string { return args.Address })
		if err != nil {
			return err
		}
		_, err = c.grantRole(caller, args.Role, addr)
		return err
	},
	MethodRevokeRole: func(c *Core, caller crypto.Address, data []byte) error {
		var args RoleArgs
		addr, err := decodeWithAddress(data, &args, func() string { return args.Address })
		if err != nil {
			return err
		}
		_, err = c.revokeRole(caller, args.Role, addr)
		return err
	},
	MethodAuthorizeCaller: func(c *Core, caller crypto.Address, data []byte) error {
		var args CallerArgs
		addr, err := decodeWithAddress(data, &args, func() string { return args.Address })
		if err != nil {
			return err
		}
		_, err = c.authorizeCaller(caller, args.Component, addr)
		return err
	},
	MethodResetBreaker: func(c *Core, caller crypto.Address, data []byte) error {
		var args TokenArgs
		if err := decode(data, &args); err != nil {
			return err
		}
		return c.breaker.Reset(caller, args.Token)
	},
	MethodSetThreshold: func(c *Core, caller crypto.Address, data []byte) error {
		var args BpsArgs
		if err := decode(data, &args); err != nil {
			return err
		}
		return c.breaker.SetThreshold(caller, args.Token, args.Bps)
	},
	MethodSetGuaranteeFund: func(c *Core, caller crypto.Address, data []byte) error {
		var args GuaranteeArgs
		if err := decode(data, &args); err != nil {
			return err
		}
		var fund crypto.Address
		if args.Address != "" {
			parsed, err := crypto.ParseAddress(args.Address)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
			}
			fund = parsed
		}
		return c.pool.SetGuaranteeFund(caller, args.Token, fund, args.Bps)
	},
	MethodSetSpread: func(c *Core, caller crypto.Address, data []byte) error {
		var args BpsArgs
		if err := decode(data, &args); err != nil {
			return err
		}
		return c.pool.SetSpread(caller, args.Token, args.Bps)
	},
	MethodCreateFund: func(c *Core, caller crypto.Address, data []byte) error {
		var args FundArgs
		if err := decode(data, &args); err != nil {
			return err
		}
		_, err := c.createFund(caller, args.ID, args.Name, args.Token)
		return err
	},
}

// Methods lists the methods the council can execute through the core, in
// addition to its own council.* calls.
func Methods() []string {
	out := make([]string, 0, len(dispatchTable))
	for method := range dispatchTable {
		out = append(out, method)
	}
	sort.Strings(out)
	return out
}

// dispatch runs inside the journal of the executing council transaction,
// so a failing call leaves the transaction pending.
func (c *Core) dispatch(caller crypto.Address, method string, value *big.Int, data []byte) error {
	h, ok := dispatchTable[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if value != nil && value.Sign() != 0 {
		return fmt.Errorf("%w: %s", ErrValueNotAccepted, method)
	}
	return h(c, caller, data)
}

func decode(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func decodeWithAddress(data []byte, out interface{}, field func() string) (crypto.Address, error) {
	if err := decode(data, out); err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.ParseAddress(field())
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return addr, nil
}
