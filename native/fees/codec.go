package fees

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalTOML accepts both snake_case and camelCase keys so operator
// configs written either way decode into the same policy.
func (p *SplitPolicy) UnmarshalTOML(data interface{}) error {
	table, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Errorf("fees: split policy must decode from a table")
	}
	blob, err := json.Marshal(normalizeSplitTable(table))
	if err != nil {
		return err
	}
	type alias SplitPolicy
	var decoded alias
	if err := json.Unmarshal(blob, &decoded); err != nil {
		return err
	}
	*p = SplitPolicy(decoded)
	return nil
}

func normalizeSplitTable(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for key, value := range in {
		switch {
		case strings.EqualFold(key, "staking_bps"), strings.EqualFold(key, "stakingBps"):
			out["stakingBps"] = value
		case strings.EqualFold(key, "treasury_bps"), strings.EqualFold(key, "treasuryBps"):
			out["treasuryBps"] = value
		default:
			out[key] = value
		}
	}
	return out
}
