// ABOUTME: Orchestration request payload passed to the worker process
// ABOUTME: Accepts the legacy "variants" wire alias for variantCount

package worker

import (
	"encoding/json"
	"errors"
)

// Request describes one orchestration run. It is serialized verbatim to
// the worker's stdin.
type Request struct {
	Task           string   `json:"task"`
	Mode           string   `json:"mode"`
	VariantCount   int      `json:"variantCount"`
	MaxDepth       int      `json:"maxDepth"`
	Temperature    float64  `json:"temperature"`
	TournamentSize int      `json:"tournamentSize"`
	Seed           *int64   `json:"seed,omitempty"`
	RequestedTools []string `json:"requestedTools,omitempty"`
}

// UnmarshalJSON accepts both variantCount and the older variants key.
func (r *Request) UnmarshalJSON(data []byte) error {
	type alias Request
	aux := struct {
		*alias
		Variants int `json:"variants"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.VariantCount == 0 && aux.Variants > 0 {
		r.VariantCount = aux.Variants
	}
	return nil
}

// Validate checks the fields required before spawning a worker.
func (r *Request) Validate() error {
	if r.Task == "" {
		return errors.New("task is required")
	}
	if r.Mode == "" {
		return errors.New("mode is required")
	}
	return nil
}
