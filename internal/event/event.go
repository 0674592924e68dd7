// ABOUTME: Typed event records for orchestration session histories
// ABOUTME: Parses worker JSONL output into a tagged union over the known event kinds

package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when a worker output line cannot be parsed
// into a known event shape. Malformed lines are dropped by callers,
// never treated as fatal to the session.
var ErrMalformed = errors.New("malformed event")

// Type identifies the kind of an event record.
type Type string

const (
	TypeGraphUpdate  Type = "graph-update"
	TypeMetricUpdate Type = "metric-update"
	TypeLog          Type = "log"
	TypePolicy       Type = "policy"
	TypeComplete     Type = "complete"
	TypeError        Type = "error"
)

// Wire aliases accepted from workers. Older runners emit the short forms.
var typeAliases = map[string]Type{
	"graph":  TypeGraphUpdate,
	"metric": TypeMetricUpdate,
}

// VersionNode is one candidate version in the tournament graph.
type VersionNode struct {
	ID        string             `json:"id"`
	ParentID  string             `json:"parentId,omitempty"`
	Title     string             `json:"title,omitempty"`
	Summary   string             `json:"summary,omitempty"`
	Status    string             `json:"status,omitempty"`
	Score     float64            `json:"score"`
	CostUSD   float64            `json:"costUsd"`
	CreatedAt string             `json:"createdAt,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Variant   int                `json:"variant,omitempty"`
}

// VersionEdge links a parent version to a derived version.
type VersionEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// VersionGraph is a full snapshot of the tournament graph.
type VersionGraph struct {
	Nodes []VersionNode `json:"nodes"`
	Edges []VersionEdge `json:"edges,omitempty"`
}

// MetricPayload carries a per-version metric delta.
type MetricPayload struct {
	VersionID string             `json:"versionId"`
	Metrics   map[string]float64 `json:"metrics"`
}

// LogPayload is a free-text line attributed to a version, or to
// "system" for worker diagnostic output.
type LogPayload struct {
	VersionID string `json:"versionId"`
	Content   string `json:"content"`
}

// SystemVersionID attributes log lines that belong to no particular version.
const SystemVersionID = "system"

// PolicyPayload is an allow/deny/warn decision emitted by the worker's
// policy guard.
type PolicyPayload struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Event is one immutable record in a session's history. Exactly one of
// the payload fields matching Type is populated.
type Event struct {
	Type      Type
	Message   string
	Timestamp time.Time

	Graph  *VersionGraph
	Metric *MetricPayload
	Log    *LogPayload
	Policy *PolicyPayload
}

// wireEvent is the JSON shape spoken on both the worker and viewer
// boundaries: one object per line.
type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Parse decodes a single worker output line into a typed event.
// Unknown types and payloads that do not match their type are reported
// as ErrMalformed.
func Parse(line []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	typ := Type(w.Type)
	if alias, ok := typeAliases[w.Type]; ok {
		typ = alias
	}

	ev := &Event{Type: typ, Message: w.Message, Timestamp: time.Now().UTC()}

	switch typ {
	case TypeGraphUpdate:
		ev.Graph = &VersionGraph{}
		if err := json.Unmarshal(w.Payload, ev.Graph); err != nil {
			return nil, fmt.Errorf("%w: graph payload: %v", ErrMalformed, err)
		}
	case TypeMetricUpdate:
		ev.Metric = &MetricPayload{}
		if err := json.Unmarshal(w.Payload, ev.Metric); err != nil {
			return nil, fmt.Errorf("%w: metric payload: %v", ErrMalformed, err)
		}
	case TypeLog:
		ev.Log = &LogPayload{}
		if err := json.Unmarshal(w.Payload, ev.Log); err != nil {
			// Some runners emit log payloads as a bare string.
			var s string
			if err2 := json.Unmarshal(w.Payload, &s); err2 != nil {
				return nil, fmt.Errorf("%w: log payload: %v", ErrMalformed, err)
			}
			ev.Log = &LogPayload{VersionID: SystemVersionID, Content: s}
		}
	case TypePolicy:
		ev.Policy = &PolicyPayload{}
		if err := json.Unmarshal(w.Payload, ev.Policy); err != nil {
			return nil, fmt.Errorf("%w: policy payload: %v", ErrMalformed, err)
		}
	case TypeComplete, TypeError:
		if ev.Message == "" && len(w.Payload) > 0 {
			var s string
			if err := json.Unmarshal(w.Payload, &s); err == nil {
				ev.Message = s
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, w.Type)
	}

	return ev, nil
}

// MarshalJSON renders the event back into its wire shape.
func (e *Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: string(e.Type), Message: e.Message}

	var payload any
	switch {
	case e.Graph != nil:
		payload = e.Graph
	case e.Metric != nil:
		payload = e.Metric
	case e.Log != nil:
		payload = e.Log
	case e.Policy != nil:
		payload = e.Policy
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		w.Payload = data
	}

	return json.Marshal(w)
}

// IsTerminal reports whether this event ends live delivery for a stream.
func (e *Event) IsTerminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Denied reports whether this is a policy event carrying a denial.
func (e *Event) Denied() bool {
	return e.Type == TypePolicy && e.Policy != nil && !e.Policy.Allowed
}

// SystemLog wraps worker diagnostic output as a log event attributed
// to the system pseudo-version.
func SystemLog(content string) *Event {
	return &Event{
		Type:      TypeLog,
		Timestamp: time.Now().UTC(),
		Log:       &LogPayload{VersionID: SystemVersionID, Content: content},
	}
}

// Errorf builds a synthetic terminal error event.
func Errorf(format string, args ...any) *Event {
	return &Event{
		Type:      TypeError,
		Timestamp: time.Now().UTC(),
		Message:   fmt.Sprintf(format, args...),
	}
}

// Completed builds a terminal complete event.
func Completed(message string) *Event {
	return &Event{Type: TypeComplete, Timestamp: time.Now().UTC(), Message: message}
}
