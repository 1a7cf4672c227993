package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hubfleet/internal/geo"
	"hubfleet/internal/metrics"
	"hubfleet/internal/model"
	"hubfleet/internal/solver"
	"hubfleet/internal/store"
)

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "solve request rate exceeded", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}

	prob := buildProblem(&req)
	tenantCfg, _ := s.Store.GetSolverConfig(r.Context(), req.TenantID)
	eff := s.effectiveConfig(tenantCfg, req.Config)
	cfg := toSolverConfig(eff)

	planID := req.PlanID
	if planID == "" {
		planID = uuid.New().String()
	}
	onProgress := func(evt solver.ProgressEvent) {
		s.Broker.Publish(planID, SSEEvent{Type: "plan.progress", Data: map[string]any{
			"planId":     planID,
			"phase":      string(evt.Phase),
			"iteration":  evt.Iteration,
			"bestCost":   evt.BestCost,
			"unassigned": evt.Unassigned,
		}})
	}
	res, err := solver.SolveMultiStart(r.Context(), prob, cfg, onProgress)
	if err != nil {
		var nodeErr *solver.InvalidNodeError
		var vehErr *solver.InvalidVehicleError
		if errors.As(err, &nodeErr) || errors.As(err, &vehErr) {
			writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeProblem(w, 499, "Client closed request", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), r.URL.Path)
		return
	}

	plan := planFromResult(planID, &req, prob, res)
	out := metricsFromResult(eff, res)
	metrics.Solves.WithLabelValues(out.Strategy, out.Metaheuristic, plan.Outcome).Inc()
	metrics.SolveDuration.WithLabelValues(out.Strategy, out.Metaheuristic).Observe(res.Metrics.Elapsed.Seconds())
	metrics.SolveIterations.Observe(float64(res.Metrics.Iterations))
	if err := s.Store.SavePlan(r.Context(), plan); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
		return
	}
	_ = s.Store.SavePlanMetrics(r.Context(), req.TenantID, planID, req.PlanDate, out)

	evtType := "plan.completed"
	if plan.Outcome == string(solver.StatusPartial) {
		evtType = "plan.partial"
	}
	data := map[string]any{
		"planId":     planID,
		"outcome":    plan.Outcome,
		"totalCost":  plan.TotalCost,
		"routes":     len(plan.Routes),
		"unassigned": len(plan.Unassigned),
	}
	s.Broker.Publish(planID, SSEEvent{Type: evtType, Data: data})
	s.Pub.Emit(r.Context(), req.TenantID, evtType, data)

	writeJSON(w, http.StatusOK, model.SolveResponse{Plan: plan, Metrics: out})
}

func buildProblem(req *model.SolveRequest) *solver.Problem {
	prob := &solver.Problem{
		Hub:      solver.Node{ID: req.Hub.ID, Lat: req.Hub.Lat, Lon: req.Hub.Lon},
		Stops:    make([]solver.Node, len(req.Nodes)),
		Vehicles: make([]solver.Vehicle, len(req.Vehicles)),
	}
	for i, n := range req.Nodes {
		prob.Stops[i] = solver.Node{ID: n.ID, Lat: n.Lat, Lon: n.Lon, Demand: n.Demand}
	}
	for i, v := range req.Vehicles {
		prob.Vehicles[i] = solver.Vehicle{ID: v.ID, Capacity: v.Capacity, Rate: v.Rate, FixedStopCost: v.FixedStopCost}
	}
	return prob
}

// effectiveConfig overlays server defaults with the tenant's stored
// config, then the per-request config. Zero request fields inherit.
func (s *Server) effectiveConfig(tenantCfg map[string]any, reqCfg *model.SolverConfigIn) model.SolverConfigIn {
	eff := model.SolverConfigIn{
		ConstructionStrategy: s.Defaults.ConstructionStrategy,
		Metaheuristic:        s.Defaults.Metaheuristic,
		TimeLimitSeconds:     s.Defaults.TimeLimitSeconds,
		MaxIterations:        s.Defaults.MaxIterations,
		NoImproveLimit:       s.Defaults.NoImproveLimit,
		InitialTemp:          s.Defaults.InitialTemp,
		Cooling:              s.Defaults.Cooling,
		DistanceUnit:         s.Defaults.DistanceUnit,
		Starts:               s.Defaults.Starts,
	}
	if tenantCfg != nil {
		// stored config shares the request field names
		if b, err := json.Marshal(tenantCfg); err == nil {
			_ = json.Unmarshal(b, &eff)
		}
	}
	if c := reqCfg; c != nil {
		if c.ConstructionStrategy != "" {
			eff.ConstructionStrategy = c.ConstructionStrategy
		}
		if c.Metaheuristic != "" {
			eff.Metaheuristic = c.Metaheuristic
		}
		if c.TimeLimitSeconds != 0 {
			eff.TimeLimitSeconds = c.TimeLimitSeconds
		}
		if c.MaxIterations != 0 {
			eff.MaxIterations = c.MaxIterations
		}
		if c.NoImproveLimit != 0 {
			eff.NoImproveLimit = c.NoImproveLimit
		}
		if c.Seed != 0 {
			eff.Seed = c.Seed
		}
		if c.InitialTemp != 0 {
			eff.InitialTemp = c.InitialTemp
		}
		if c.Cooling != 0 {
			eff.Cooling = c.Cooling
		}
		if c.DistanceUnit != "" {
			eff.DistanceUnit = c.DistanceUnit
		}
		if c.Starts != 0 {
			eff.Starts = c.Starts
		}
	}
	return eff
}

func toSolverConfig(c model.SolverConfigIn) solver.Config {
	return solver.Config{
		Strategy:      solver.Strategy(c.ConstructionStrategy),
		Metaheuristic: solver.Metaheuristic(c.Metaheuristic),
		TimeLimit:     time.Duration(c.TimeLimitSeconds * float64(time.Second)),
		MaxIterations: c.MaxIterations,
		NoImprove:     c.NoImproveLimit,
		Seed:          c.Seed,
		InitialTemp:   c.InitialTemp,
		Cooling:       c.Cooling,
		Unit:          geo.Unit(c.DistanceUnit),
		Starts:        c.Starts,
	}
}

func planFromResult(planID string, req *model.SolveRequest, prob *solver.Problem, res *solver.Result) model.Plan {
	plan := model.Plan{
		ID:         planID,
		TenantID:   req.TenantID,
		PlanDate:   req.PlanDate,
		Outcome:    string(res.Solution.Status),
		TotalCost:  res.Summary.TotalCost,
		Routes:     []model.RouteOut{},
		Unassigned: []string{},
		Feasible:   res.Summary.Feasible,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, rt := range res.Solution.Routes {
		if len(rt.Stops) == 0 {
			continue
		}
		out := model.RouteOut{
			VehicleID: prob.Vehicles[rt.Vehicle].ID,
			Stops:     make([]string, len(rt.Stops)),
			Cost:      res.Summary.PerRoute[i],
		}
		for j, idx := range rt.Stops {
			out.Stops[j] = prob.Stops[idx-1].ID
		}
		plan.Routes = append(plan.Routes, out)
	}
	for _, idx := range res.Solution.Unassigned {
		plan.Unassigned = append(plan.Unassigned, prob.Stops[idx-1].ID)
	}
	return plan
}

func metricsFromResult(eff model.SolverConfigIn, res *solver.Result) model.SolveMetricsOut {
	return model.SolveMetricsOut{
		Strategy:      eff.ConstructionStrategy,
		Metaheuristic: eff.Metaheuristic,
		Iterations:    res.Metrics.Iterations,
		Improvements:  res.Metrics.Improvements,
		AcceptedWorse: res.Metrics.AcceptedWorse,
		InitialCost:   res.Metrics.InitialCost,
		BestCost:      res.Metrics.BestCost,
		ElapsedMs:     res.Metrics.Elapsed.Milliseconds(),
		StopReason:    res.Metrics.StopReason,
	}
}

// PlansIndexHandler handles GET /v1/plans
func (s *Server) PlansIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/plans" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListPlans(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List plans failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} and GET /v1/plans/{id}/events/stream
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamPlanEvents(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	plan, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// streamPlanEvents serves SSE for plan progress and completion events.
func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.CanSolve() {
		writeProblem(w, 403, "Forbidden", "not authorized for plan events", r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SolverConfigHandler returns the effective solver configuration
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	eff := s.effectiveConfig(nil, nil)
	defaults := map[string]any{}
	if b, err := json.Marshal(eff); err == nil {
		_ = json.Unmarshal(b, &defaults)
	}
	// overlay tenant config if present
	cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant)
	for k, v := range cfg {
		defaults[k] = v
	}
	writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// AdminSolverConfigHandler gets/sets the tenant solver config
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solver/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant)
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		var in model.SolverConfigIn
		if b, err := json.Marshal(body.Config); err == nil {
			if err := json.Unmarshal(b, &in); err != nil {
				writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path)
				return
			}
		}
		probe := model.SolveRequest{
			Hub:      model.HubIn{},
			Nodes:    []model.NodeIn{{ID: "probe"}},
			Vehicles: []model.VehicleIn{{ID: "probe", Capacity: 1}},
			Config:   &in,
		}
		if err := validateSolveRequest(&probe); err != nil {
			writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	planDate := r.URL.Query().Get("planDate")
	items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, planDate)
	if err != nil {
		writeProblem(w, 500, "Metrics failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, 400, "Invalid subscription", "url and events required", r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = p.Tenant
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler deletes a subscription (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Not Found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
