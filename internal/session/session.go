// ABOUTME: Session entry owning the append-only event history and subscriber set
// ABOUTME: One mutex per session serializes append, replay, and subscription changes

package session

import (
	"sync"
	"time"

	"github.com/arkgart/orchestra/internal/event"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// subscriber is one live listener on a session's event feed.
// Delivery order follows subscription order.
type subscriber struct {
	id string
	ch chan *event.Event
}

// Session is one orchestration run: a worker process, its event history,
// and the listeners attached to its feed. All fields behind mu are
// owned by the Registry; callers interact through Registry methods.
type Session struct {
	ID        string
	CreatedAt time.Time

	// mu serializes every append, status change, replay, and
	// subscription change on this session. Holding it across
	// read-history-then-subscribe is what keeps replay gap-free.
	mu sync.Mutex

	history     []*event.Event
	status      Status
	errorMsg    string
	latestGraph *event.VersionGraph
	subscribers []*subscriber
	lastEventAt time.Time

	// Readiness gate state. ready is closed exactly once when the first
	// graph snapshot or a policy denial arrives.
	ready        chan struct{}
	readyClosed  bool
	initialGraph *event.VersionGraph
	denialReason string
	denied       bool

	// stopWorker terminates the owning worker process; set by the
	// gateway after the adapter starts. May be nil in tests.
	stopWorker func()
}

// signalReadyLocked wakes any creation call blocked on the readiness
// gate. Idempotent; caller holds s.mu.
func (s *Session) signalReadyLocked() {
	if !s.readyClosed {
		close(s.ready)
		s.readyClosed = true
	}
}

// observeLocked applies an event's side effects on session state.
// Caller holds the session lock.
func (s *Session) observeLocked(ev *event.Event) {
	s.history = append(s.history, ev)
	s.lastEventAt = time.Now()

	switch ev.Type {
	case event.TypeGraphUpdate:
		s.latestGraph = ev.Graph
		if s.initialGraph == nil {
			s.initialGraph = ev.Graph
		}
		s.signalReadyLocked()
	case event.TypePolicy:
		if ev.Denied() {
			s.denied = true
			s.denialReason = ev.Policy.Reason
			s.signalReadyLocked()
		}
	case event.TypeComplete:
		s.status = StatusComplete
	case event.TypeError:
		s.status = StatusError
		s.errorMsg = ev.Message
	}
}

// Snapshot is a point-in-time copy of session metadata for API responses.
type Snapshot struct {
	ID          string    `json:"sessionId"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	EventCount  int       `json:"eventCount"`
	Subscribers int       `json:"subscribers"`
	CreatedAt   time.Time `json:"createdAt"`
}
