// Package session manages orchestration session lifecycle and event fan-out.
//
// # Overview
//
// The session package owns the process-wide Registry: one entry per
// orchestration run, each holding an append-only event history, a set of
// live subscribers, and the readiness gate that session creation blocks on.
// Everything else in the server interacts with sessions exclusively through
// Registry methods.
//
// # Registry
//
// The Registry coordinates session operations:
//
//	registry := session.NewRegistry(logger, session.WithArchive(sink))
//
// Key operations:
//
//   - Create(): Register a new pending session
//   - Publish(id, ev): Append an event and deliver it to subscribers
//   - History(id): Snapshot copy of the committed event sequence
//   - SubscribeWithReplay(ctx, id): Attach a listener, history first
//   - AwaitReady(ctx, id, timeout): Block until the readiness gate resolves
//   - Close(id): Stop the worker, detach subscribers, evict the session
//
// # Ordering and Replay
//
// One mutex per session serializes appends, status changes, and
// subscription changes. SubscribeWithReplay registers the listener under
// that same mutex after preloading the history into its channel, so no
// event can fall between replay and live delivery and none arrives twice.
//
// Delivery never blocks the publisher: a subscriber whose buffer fills is
// evicted and its channel closed. A stream therefore either carries every
// event in order or ends; it never resumes past a missing event.
//
// # Readiness Gate
//
// Each session carries a one-shot channel closed on the first graph
// snapshot or a policy denial. AwaitReady is a condition wait on that
// channel bounded by a timeout; after waking it re-checks session state
// under the lock, so a denial always takes precedence over a snapshot.
//
// # Lifecycle
//
// Sessions are evicted explicitly through Close or by the reaper, which
// periodically removes terminal sessions idle past a configured TTL.
// Pending sessions are never reaped.
package session
