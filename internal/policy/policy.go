// ABOUTME: Policy evaluator for orchestration modes and requested tools
// ABOUTME: Maps a mode/tool/cost tuple to an allow/deny/warn decision

package policy

import (
	"fmt"
	"strings"
)

// Mode is an orchestration safety mode.
type Mode string

const (
	ModeSafe    Mode = "SAFE"
	ModeGuarded Mode = "GUARDED"
	ModePower   Mode = "POWER"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(s)) {
	case ModeSafe:
		return ModeSafe, nil
	case ModeGuarded:
		return ModeGuarded, nil
	case ModePower:
		return ModePower, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Decision is the outcome of a policy query.
type Decision struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Evaluator answers policy queries. The gateway consumes this interface;
// the rule evaluation itself is a pure function of its inputs.
type Evaluator interface {
	Evaluate(mode Mode, tools []string, costUSD float64) Decision
}

// Rules is a rule-table evaluator: tools denied outright in SAFE mode,
// tools that draw a warning in GUARDED mode, and an optional per-run
// cost ceiling applied in every mode.
type Rules struct {
	SafeDenied  map[string]bool
	GuardedWarn map[string]bool
	MaxCostUSD  float64 // zero means no ceiling
}

// Default returns the built-in rule table.
func Default() *Rules {
	return &Rules{
		SafeDenied: map[string]bool{
			"browserless": true,
			"playwright":  true,
			"snowflake":   true,
			"bigquery":    true,
		},
		GuardedWarn: map[string]bool{
			"modal:python": true,
			"browserless":  true,
		},
	}
}

// Evaluate implements Evaluator.
func (r *Rules) Evaluate(mode Mode, tools []string, costUSD float64) Decision {
	if r.MaxCostUSD > 0 && costUSD > r.MaxCostUSD {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Estimated cost $%.2f exceeds ceiling $%.2f", costUSD, r.MaxCostUSD),
		}
	}

	switch mode {
	case ModeSafe:
		var denied []string
		for _, tool := range tools {
			if r.SafeDenied[tool] {
				denied = append(denied, tool)
			}
		}
		if len(denied) > 0 {
			return Decision{
				Allowed: false,
				Reason:  "Denied in SAFE mode: " + strings.Join(denied, ", "),
			}
		}
	case ModeGuarded:
		var warnings []string
		for _, tool := range tools {
			if r.GuardedWarn[tool] {
				warnings = append(warnings, fmt.Sprintf("Use of %s monitored under Guarded mode.", tool))
			}
		}
		if len(warnings) > 0 {
			return Decision{Allowed: true, Warnings: warnings}
		}
	}

	return Decision{Allowed: true}
}
