// ABOUTME: Archive interface and entry types for the session event audit trail
// ABOUTME: Write-mostly store; the live registry remains the source of truth

package archive

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no archived events exist for a session.
var ErrNotFound = errors.New("no archived events")

// Entry is one archived event record.
type Entry struct {
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive persists an append-only audit copy of session events. It never
// feeds the live registry; restart recovery is deliberately out of scope.
type Archive interface {
	Record(ctx context.Context, entry Entry) error
	Events(ctx context.Context, sessionID string) ([]Entry, error)
	Close() error
}
