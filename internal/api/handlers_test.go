package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hubfleet/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("SOLVER_DEFAULTS", "")
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func solveBody(capacity float64) []byte {
	req := map[string]any{
		"tenantId": "t_test",
		"planDate": "2026-08-30",
		"hub":      map[string]any{"id": "hub", "lat": 0, "lon": 0},
		"nodes": []map[string]any{
			{"id": "L1", "lat": 0, "lon": 1, "demand": 4},
			{"id": "L2", "lat": 1, "lon": 0, "demand": -3},
		},
		"vehicles": []map[string]any{
			{"id": "v1", "capacity": capacity, "rate": 1},
		},
		"config": map[string]any{"metaheuristic": "none", "seed": 1},
	}
	b, _ := json.Marshal(req)
	return b
}

func doSolve(t *testing.T, s *Server, body []byte) (*httptest.ResponseRecorder, model.SolveResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	var resp model.SolveResponse
	if rr.Code == 200 {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode solve response: %v", err)
		}
	}
	return rr, resp
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSolveAndFetchPlan(t *testing.T) {
	s := newTestServer(t)
	rr, resp := doSolve(t, s, solveBody(10))
	if rr.Code != 200 {
		t.Fatalf("solve: got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp.Plan.Outcome != "success" || !resp.Plan.Feasible {
		t.Fatalf("unexpected outcome: %+v", resp.Plan)
	}
	if len(resp.Plan.Routes) != 1 || len(resp.Plan.Routes[0].Stops) != 2 {
		t.Fatalf("unexpected routes: %+v", resp.Plan.Routes)
	}
	if resp.Plan.Routes[0].Stops[0] != "L1" {
		t.Fatalf("hub-return stop cannot lead the route: %+v", resp.Plan.Routes[0].Stops)
	}
	if resp.Metrics.Strategy == "" || resp.Metrics.StopReason == "" {
		t.Fatalf("missing metrics: %+v", resp.Metrics)
	}

	// GET /v1/plans/{id}
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/plans/"+resp.Plan.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlanByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("get plan: got %d", rr.Code)
	}

	// GET /v1/plans
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/plans?limit=5", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlansIndexHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), resp.Plan.ID) {
		t.Fatalf("list plans: got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSolvePartialOutcome(t *testing.T) {
	s := newTestServer(t)
	rr, resp := doSolve(t, s, solveBody(3))
	if rr.Code != 200 {
		t.Fatalf("solve: got %d body=%s", rr.Code, rr.Body.String())
	}
	if resp.Plan.Outcome != "partial_infeasible" || resp.Plan.Feasible {
		t.Fatalf("expected partial outcome: %+v", resp.Plan)
	}
	found := false
	for _, id := range resp.Plan.Unassigned {
		if id == "L1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("L1 should be unassigned: %+v", resp.Plan.Unassigned)
	}
}

func TestSolveRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		mut  func(map[string]any)
	}{
		{"bad lat", func(m map[string]any) {
			m["nodes"].([]any)[0].(map[string]any)["lat"] = 91.0
		}},
		{"zero capacity", func(m map[string]any) {
			m["vehicles"].([]any)[0].(map[string]any)["capacity"] = 0.0
		}},
		{"unknown strategy", func(m map[string]any) {
			m["config"].(map[string]any)["constructionStrategy"] = "steepest-descent"
		}},
		{"bad cooling", func(m map[string]any) {
			m["config"].(map[string]any)["cooling"] = 1.2
		}},
		{"no vehicles", func(m map[string]any) {
			m["vehicles"] = []any{}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m map[string]any
			_ = json.Unmarshal(solveBody(10), &m)
			tc.mut(m)
			b, _ := json.Marshal(m)
			rr, _ := doSolve(t, s, b)
			if rr.Code != 400 {
				t.Fatalf("got %d, want 400: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSolveForbiddenForViewer(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(10)))
	req.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("got %d, want 403", rr.Code)
	}
}

func TestSolverConfigOverlay(t *testing.T) {
	s := newTestServer(t)

	// PUT tenant override as admin
	body := []byte(`{"config":{"metaheuristic":"greedy-descent","timeLimitSeconds":2}}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", bytes.NewReader(body))
	s.AdminSolverConfigHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("put config: got %d body=%s", rr.Code, rr.Body.String())
	}

	// Invalid override is rejected
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", bytes.NewReader([]byte(`{"config":{"metaheuristic":"tabu"}}`)))
	s.AdminSolverConfigHandler(rr, req)
	if rr.Code != 400 {
		t.Fatalf("bad config accepted: %d", rr.Code)
	}

	// GET /v1/solver/config reflects the override
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/solver/config", nil)
	s.SolverConfigHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "greedy-descent") {
		t.Fatalf("config overlay missing: %d %s", rr.Code, rr.Body.String())
	}

	// Non-admin cannot write
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", bytes.NewReader(body))
	req.Header.Set("X-Role", "dispatcher")
	s.AdminSolverConfigHandler(rr, req)
	if rr.Code != 403 {
		t.Fatalf("dispatcher wrote admin config: %d", rr.Code)
	}
}

func TestPlanMetricsAdmin(t *testing.T) {
	s := newTestServer(t)
	if rr, _ := doSolve(t, s, solveBody(10)); rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/plan-metrics?planDate=2026-08-30", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.PlanMetricsHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "parallel-cheapest-insertion") {
		t.Fatalf("plan metrics: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"url":"http://cb.example/hook","events":["plan.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != 201 {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != 204 {
		t.Fatalf("delete: %d", rr.Code)
	}
}

func TestSolveEmitsWebhooks(t *testing.T) {
	s := newTestServer(t)
	// Register a subscription for the solve tenant, then solve.
	body := []byte(`{"tenantId":"t_test","url":"http://cb.example/hook","events":["plan.completed"],"secret":"s"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != 201 {
		t.Fatalf("create sub: %d", rr.Code)
	}
	if rr, _ := doSolve(t, s, solveBody(10)); rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	s.WebhookDeliveriesHandler(rr, req)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "plan.completed") {
		t.Fatalf("deliveries: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPlanSSEHeartbeat(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/plans/p1/events/stream", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 50*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	s.PlanByIDHandler(rr, req)
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "event: heartbeat") {
		t.Fatalf("missing heartbeat: %s", rr.Body.String())
	}
}
