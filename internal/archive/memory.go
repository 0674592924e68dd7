// ABOUTME: In-memory Archive implementation for tests and archive-less deployments
// ABOUTME: Mirrors the sqlite archive's observable behaviour without a database

package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Archive. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

// Record implements Archive.
func (m *Memory) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.SessionID] = append(m.entries[entry.SessionID], entry)
	return nil
}

// Events implements Archive.
func (m *Memory) Events(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.entries[sessionID]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close implements Archive.
func (m *Memory) Close() error { return nil }
