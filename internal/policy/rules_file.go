// ABOUTME: TOML rules file loading for the policy evaluator
// ABOUTME: Lets deployments override the built-in deny/warn tables without a rebuild

package policy

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// rulesFile is the serialisable shape of a policy rules override.
type rulesFile struct {
	Safe struct {
		Denied []string `toml:"denied"`
	} `toml:"safe"`
	Guarded struct {
		Warn []string `toml:"warn"`
	} `toml:"guarded"`
	MaxCostUSD float64 `toml:"max_cost_usd"`
}

// LoadRules reads a rule table from a TOML file. Lists in the file
// replace the corresponding built-in lists entirely.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy rules: %w", err)
	}

	var rf rulesFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing policy rules: %w", err)
	}

	rules := Default()
	rules.MaxCostUSD = rf.MaxCostUSD
	if len(rf.Safe.Denied) > 0 {
		rules.SafeDenied = toSet(rf.Safe.Denied)
	}
	if len(rf.Guarded.Warn) > 0 {
		rules.GuardedWarn = toSet(rf.Guarded.Warn)
	}
	return rules, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
