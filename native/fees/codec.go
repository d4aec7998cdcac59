package fees

import (
	"fmt"
	"strings"

	"fundcore/native/registry"
)

// UnmarshalTOML accepts either a positional `tiers = [..]` array or one key
// per tier name (`bronze = 100`). Tiers omitted from the named form keep
// their current value.
func (s *Schedule) UnmarshalTOML(data interface{}) error {
	table, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("fees: schedule must decode from a table")
	}
	for key, value := range table {
		switch normalized := strings.ToLower(strings.TrimSpace(key)); normalized {
		case "tiers", "tier_bps":
			list, ok := value.([]interface{})
			if !ok || len(list) != registry.TierCount {
				return fmt.Errorf("fees: %s must list %d rates", key, registry.TierCount)
			}
			for i, raw := range list {
				bps, err := toBps(raw)
				if err != nil {
					return fmt.Errorf("fees: %s[%d]: %w", key, i, err)
				}
				s.TierBps[i] = bps
			}
		case "zero_ineligible":
			flag, ok := value.(bool)
			if !ok {
				return fmt.Errorf("fees: zero_ineligible must be a boolean")
			}
			s.ZeroIneligible = flag
		default:
			tier, ok := tierByName(normalized)
			if !ok {
				return fmt.Errorf("fees: unknown schedule key %q", key)
			}
			bps, err := toBps(value)
			if err != nil {
				return fmt.Errorf("fees: %s: %w", key, err)
			}
			s.TierBps[tier] = bps
		}
	}
	return nil
}

func tierByName(name string) (registry.Tier, bool) {
	for t := registry.TierBronze; t <= registry.TierDiamond; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func toBps(v interface{}) (uint32, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("rate must be an integer")
	}
	if n < 0 || n > 10_000 {
		return 0, ErrInvalidRate
	}
	return uint32(n), nil
}
