// Package gateway orchestrates the orchestra-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the server. It owns
// the HTTP server and wires together the session registry, worker
// adapters, policy evaluator, and the optional event archive.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	gw := gateway.New(cfg, registry, rules, archiveStore, logger)
//	err := gw.Run(ctx)
//
// Run starts the idle-session reaper and the HTTP server, then blocks
// until ctx is cancelled and shuts down gracefully.
//
// # HTTP API
//
// Session lifecycle:
//
//   - POST /api/orchestrate: Start a run; returns once the first graph
//     snapshot arrives, the policy guard denies, or the wait times out
//   - GET /api/sessions/{id}: Session metadata
//   - GET /api/sessions/{id}/history: Full committed event history
//   - DELETE /api/sessions/{id}: Terminate the worker and evict
//
// Streaming:
//
//   - GET /api/stream?sessionId=: Server-sent events, history replay
//     first, then live, closing after a terminal event
//   - GET /ws/stream?sessionId=: Same semantics over WebSocket
//
// Reports and introspection:
//
//   - GET /api/export/best: Best-candidate JSON download
//   - GET /api/export/scoreboard: Scoreboard CSV download
//   - GET /api/sessions/{id}/audit: Archived event copies
//   - GET /api/policy?mode=: Policy preview for the default toolset
//   - GET /api/health: Liveness and session count
//
// # Error Mapping
//
// Registry and gate errors map onto HTTP statuses: unknown session is
// 404, policy denial is 403, readiness timeout is 504, malformed input
// is 400.
package gateway
