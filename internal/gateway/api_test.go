// ABOUTME: HTTP API tests for session creation, exports, policy, and lifecycle
// ABOUTME: Uses a fake worker starter so no external processes are spawned

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkgart/orchestra/internal/archive"
	"github.com/arkgart/orchestra/internal/config"
	"github.com/arkgart/orchestra/internal/event"
	"github.com/arkgart/orchestra/internal/policy"
	"github.com/arkgart/orchestra/internal/session"
	"github.com/arkgart/orchestra/internal/worker"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: ":0"},
		Worker: config.WorkerConfig{Command: "unused"},
		Sessions: config.SessionsConfig{
			ReadinessTimeout: time.Second,
			IdleTTL:          time.Hour,
			ReapInterval:     time.Hour,
		},
	}
}

// fakeWorker scripts what the "worker" publishes after being started.
type fakeWorker func(registry *session.Registry, sessionID string)

func newTestGateway(t *testing.T, fake fakeWorker) (*Gateway, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry(nil)
	g := New(testConfig(), registry, policy.Default(), nil, nil)
	g.startWorker = func(sessionID string, req *worker.Request) (func(), error) {
		if fake != nil {
			go fake(registry, sessionID)
		}
		return func() {}, nil
	}
	return g, registry
}

func postOrchestrate(t *testing.T, g *Gateway, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/orchestrate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func graphUpdate(nodeID string, score float64) *event.Event {
	return &event.Event{
		Type: event.TypeGraphUpdate,
		Graph: &event.VersionGraph{
			Nodes: []event.VersionNode{{ID: nodeID, Score: score}},
		},
	}
}

func TestOrchestrate_Success(t *testing.T) {
	g, _ := newTestGateway(t, func(r *session.Registry, id string) {
		_ = r.Publish(id, graphUpdate("v1", 0.4))
	})

	rec := postOrchestrate(t, g, `{"task":"build a parser","mode":"SAFE","variantCount":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OrchestrateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.NotNil(t, resp.InitialGraph)
}

func TestOrchestrate_GuardedModeSurfacesWarnings(t *testing.T) {
	g, _ := newTestGateway(t, func(r *session.Registry, id string) {
		_ = r.Publish(id, graphUpdate("v1", 0.4))
	})

	rec := postOrchestrate(t, g, `{"task":"t","mode":"GUARDED"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OrchestrateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "modal:python")
}

func TestOrchestrate_PreflightDenialSpawnsNothing(t *testing.T) {
	started := false
	g, registry := newTestGateway(t, nil)
	g.startWorker = func(string, *worker.Request) (func(), error) {
		started = true
		return func() {}, nil
	}

	rec := postOrchestrate(t, g, `{"task":"t","mode":"SAFE","requestedTools":["browserless"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "browserless")
	assert.False(t, started)
	assert.Equal(t, 0, registry.Len())
}

func TestOrchestrate_WorkerDenialKeepsSessionForAudit(t *testing.T) {
	g, registry := newTestGateway(t, func(r *session.Registry, id string) {
		_ = r.Publish(id, &event.Event{
			Type:   event.TypePolicy,
			Policy: &event.PolicyPayload{Allowed: false, Reason: "denied by worker guard"},
		})
	})

	rec := postOrchestrate(t, g, `{"task":"t","mode":"POWER"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "denied by worker guard")
	assert.NotContains(t, rec.Body.String(), `"sessionId"`)
	assert.Equal(t, 1, registry.Len())
}

func TestOrchestrate_ReadinessTimeout(t *testing.T) {
	g, _ := newTestGateway(t, nil)
	g.cfg.Sessions.ReadinessTimeout = 50 * time.Millisecond

	rec := postOrchestrate(t, g, `{"task":"t","mode":"SAFE"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"sessionId"`)
}

func TestOrchestrate_BadRequests(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing task", `{"mode":"SAFE"}`},
		{"missing mode", `{"task":"t"}`},
		{"unknown mode", `{"task":"t","mode":"RECKLESS"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postOrchestrate(t, g, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHistoryEndpoint(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	s := registry.Create()
	require.NoError(t, registry.Publish(s.ID, event.SystemLog("hello")))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID+"/history", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/history", nil)
	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionInfoEndpoint(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	s := registry.Create()

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, s.ID, snap.ID)
	assert.Equal(t, session.StatusPending, snap.Status)
}

func TestCloseSessionEndpoint(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	s := registry.Create()

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, registry.Len())

	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func seedReportHistory(t *testing.T, registry *session.Registry) string {
	t.Helper()
	s := registry.Create()
	require.NoError(t, registry.Publish(s.ID, &event.Event{
		Type: event.TypeGraphUpdate,
		Graph: &event.VersionGraph{Nodes: []event.VersionNode{
			{ID: "A", Score: 0.4, CostUSD: 1.2, Status: "succeeded"},
			{ID: "B", Score: 0.9, CostUSD: 0.05, Status: "failed"},
		}},
	}))
	require.NoError(t, registry.Publish(s.ID, &event.Event{
		Type:   event.TypeMetricUpdate,
		Metric: &event.MetricPayload{VersionID: "A", Metrics: map[string]float64{"compositeScore": 0.95}},
	}))
	require.NoError(t, registry.Publish(s.ID, &event.Event{
		Type:   event.TypeMetricUpdate,
		Metric: &event.MetricPayload{VersionID: "B", Metrics: map[string]float64{"compositeScore": 0.3}},
	}))
	return s.ID
}

func TestExportBest(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	id := seedReportHistory(t, registry)

	req := httptest.NewRequest(http.MethodGet, "/api/export/best?sessionId="+id, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "best-version.json")

	var resp struct {
		Metadata struct {
			SessionID  string  `json:"sessionId"`
			Score      float64 `json:"score"`
			ExportedAt string  `json:"exportedAt"`
		} `json:"metadata"`
		Node event.VersionNode `json:"node"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "A", resp.Node.ID)
	assert.Equal(t, id, resp.Metadata.SessionID)
	assert.InDelta(t, 0.95, resp.Metadata.Score, 1e-9)
	exportedAt, err := time.Parse(time.RFC3339, resp.Metadata.ExportedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), exportedAt, time.Minute)
}

func TestExportScoreboard(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	id := seedReportHistory(t, registry)

	req := httptest.NewRequest(http.MethodGet, "/api/export/scoreboard?sessionId="+id, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "version_id,score,cost_usd,status", lines[0])
	assert.Equal(t, "A,0.950,1.20,succeeded", lines[1])
	assert.Equal(t, "B,0.300,0.05,failed", lines[2])
}

func TestExport_MissingSessionID(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	for _, path := range []string{"/api/export/best", "/api/export/scoreboard"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		g.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestPolicyPreview(t *testing.T) {
	g, _ := newTestGateway(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/policy?mode=SAFE", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var decision policy.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)

	req = httptest.NewRequest(http.MethodGet, "/api/policy", nil)
	rec = httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	mem := archive.NewMemory()
	registry := session.NewRegistry(nil, session.WithArchive(func(id string, seq int, ev *event.Event) {
		payload, _ := json.Marshal(ev)
		_ = mem.Record(t.Context(), archive.Entry{
			SessionID: id, Seq: seq, Type: string(ev.Type), Payload: string(payload),
		})
	}))
	g := New(testConfig(), registry, policy.Default(), mem, nil)

	s := registry.Create()
	require.NoError(t, registry.Publish(s.ID, event.SystemLog("audited")))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+s.ID+"/audit", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "audited")
}

func TestAuditEndpoint_Disabled(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	s := registry.Create()

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sessions/%s/audit", s.ID), nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	g, registry := newTestGateway(t, nil)
	registry.Create()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}
