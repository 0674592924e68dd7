// ABOUTME: Background eviction of finished sessions after an idle TTL
// ABOUTME: Keeps the in-memory registry from growing without bound

package session

import (
	"context"
	"time"
)

// StartReaper evicts terminal sessions that have been idle longer than
// ttl, checking every interval. It runs until ctx is cancelled.
// Pending sessions are never reaped: a worker with no terminal event
// keeps its session open, and ending it early is the job of Close.
func (r *Registry) StartReaper(ctx context.Context, ttl, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reapOnce(ttl)
			}
		}
	}()
}

func (r *Registry) reapOnce(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)

	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		s, ok := r.get(id)
		if !ok {
			continue
		}

		s.mu.Lock()
		idle := s.lastEventAt
		if idle.IsZero() {
			idle = s.CreatedAt
		}
		expired := s.status != StatusPending && idle.Before(cutoff)
		s.mu.Unlock()

		if expired {
			r.logger.Info("reaping idle session", "session_id", id)
			_ = r.Close(id)
		}
	}
}
