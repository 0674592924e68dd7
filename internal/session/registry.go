// ABOUTME: Process-wide session registry with per-session fan-out and readiness gate
// ABOUTME: Publish appends to history then delivers live, all under one session lock

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkgart/orchestra/internal/event"
)

// ErrNotFound is returned when an operation references an unknown session.
var ErrNotFound = errors.New("session not found")

// ErrPolicyDenied is returned from AwaitReady when the worker's policy
// guard rejected the run before the first graph snapshot.
var ErrPolicyDenied = errors.New("policy denied")

// ErrReadinessTimeout is returned from AwaitReady when the worker emitted
// neither a graph snapshot nor a denial within the bound.
var ErrReadinessTimeout = errors.New("timed out waiting for initial graph")

const (
	// subscriberBufferSize is the channel buffer for each live subscriber.
	// A subscriber that falls this far behind is evicted rather than
	// skipped over, so a stream never continues past a missing event.
	subscriberBufferSize = 64

	// DefaultReadinessTimeout bounds the wait for the first graph snapshot.
	DefaultReadinessTimeout = 5 * time.Second
)

// ArchiveFunc receives every published event for audit storage.
// Implementations must not block; slow sinks should buffer internally.
type ArchiveFunc func(sessionID string, seq int, ev *event.Event)

// Registry is the process-wide directory of sessions. It owns every
// session's history log and subscriber set, and is the only component
// allowed to mutate them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
	archive  ArchiveFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithArchive attaches an audit sink invoked for every published event.
func WithArchive(fn ArchiveFunc) Option {
	return func(r *Registry) { r.archive = fn }
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending session and returns it.
func (r *Registry) Create() *Session {
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		status:    StatusPending,
		ready:     make(chan struct{}),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", s.ID)
	return s
}

// get looks up a session without locking it.
func (r *Registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Publish appends an event to the session's history then delivers it to
// every live subscriber in subscription order. Delivery never blocks:
// a subscriber whose buffer is full is evicted and its channel closed,
// so its stream ends visibly instead of resuming over a silent hole.
// A viewer that re-attaches replays the full history.
func (r *Registry) Publish(id string, ev *event.Event) error {
	s, ok := r.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	s.observeLocked(ev)
	seq := len(s.history)
	// Deliver while still holding the lock: sends are non-blocking, and
	// this rules out racing against Unsubscribe closing a channel.
	for i := 0; i < len(s.subscribers); {
		sub := s.subscribers[i]
		select {
		case sub.ch <- ev:
			i++
		default:
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub.ch)
			r.logger.Warn("evicted slow subscriber",
				"session_id", id,
				"sub_id", sub.id,
				"type", ev.Type,
				"buffered", subscriberBufferSize)
		}
	}
	s.mu.Unlock()

	if r.archive != nil {
		r.archive(id, seq, ev)
	}
	return nil
}

// History returns a snapshot copy of the session's committed events.
// Two calls separated in time return prefix-related sequences.
func (r *Registry) History(id string) ([]*event.Event, error) {
	s, ok := r.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*event.Event, len(s.history))
	copy(out, s.history)
	return out, nil
}

// UpdateStatus sets the session's lifecycle status and error message.
func (r *Registry) UpdateStatus(id string, status Status, message string) error {
	s, ok := r.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	s.status = status
	if message != "" {
		s.errorMsg = message
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns a point-in-time view of session metadata.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	s, ok := r.get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.ID,
		Status:      s.status,
		Error:       s.errorMsg,
		EventCount:  len(s.history),
		Subscribers: len(s.subscribers),
		CreatedAt:   s.CreatedAt,
	}, nil
}

// SubscribeWithReplay attaches a listener to the session's feed. The
// returned channel first yields every event already in the history, in
// append order, then live events as they are published. Registration
// happens under the same lock as Publish, so no event can fall in the
// gap between replay and live delivery, and none is delivered twice.
//
// The subscription is cleaned up when ctx is cancelled; Unsubscribe is
// also safe to call directly and is idempotent.
func (r *Registry) SubscribeWithReplay(ctx context.Context, id string) (<-chan *event.Event, string, error) {
	s, ok := r.get(id)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	subID := uuid.New().String()

	s.mu.Lock()
	// Size the buffer so the whole replay fits without blocking.
	ch := make(chan *event.Event, len(s.history)+subscriberBufferSize)
	for _, ev := range s.history {
		ch <- ev
	}
	s.subscribers = append(s.subscribers, &subscriber{id: subID, ch: ch})
	depth := len(s.history)
	s.mu.Unlock()

	r.logger.Debug("subscriber added",
		"session_id", id,
		"sub_id", subID,
		"replayed", depth)

	go func() {
		<-ctx.Done()
		r.Unsubscribe(id, subID)
	}()

	return ch, subID, nil
}

// Unsubscribe detaches a listener and closes its channel. Safe to call
// multiple times and after the session has ended or been evicted.
func (r *Registry) Unsubscribe(id, subID string) {
	s, ok := r.get(id)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub.id == subID {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub.ch)
			r.logger.Debug("subscriber removed", "session_id", id, "sub_id", subID)
			return
		}
	}
}

// SetStopper registers the function that terminates the session's
// worker process, used by Close and the reaper.
func (r *Registry) SetStopper(id string, stop func()) {
	s, ok := r.get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.stopWorker = stop
	s.mu.Unlock()
}

// AwaitReady blocks until the session's readiness gate resolves: the
// first graph snapshot (success), a policy denial, or the timeout.
// This is a condition wait on the gate's signal channel, not a poll.
// A denial recorded before the waiter wakes always takes precedence
// over a snapshot.
func (r *Registry) AwaitReady(ctx context.Context, id string, timeout time.Duration) (*event.VersionGraph, error) {
	s, ok := r.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
	case <-timer.C:
		// The gate may have resolved in the same instant; fall through
		// to the state check so a real result is never reported as a
		// timeout spuriously.
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, s.denialReason)
	}
	if s.initialGraph != nil {
		return s.initialGraph, nil
	}
	return nil, ErrReadinessTimeout
}

// Close terminates the session's worker, detaches all subscribers, and
// removes the session from the registry.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	stop := s.stopWorker
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	if stop != nil {
		stop()
	}

	r.logger.Info("session closed", "session_id", id)
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
