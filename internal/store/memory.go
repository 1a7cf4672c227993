package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hubfleet/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	plans    map[string]model.Plan       // id -> plan
	plansTen map[string][]string         // tenant -> plan ids, insertion order
	cfg      map[string]map[string]any   // tenant -> solver config
	planMx   map[string][]map[string]any // tenant -> metrics rows
	subs     map[string][]model.Subscription

	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		plans:              map[string]model.Plan{},
		plansTen:           map[string][]string{},
		cfg:                map[string]map[string]any{},
		planMx:             map[string][]map[string]any{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics state.
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SavePlan(ctx context.Context, plan model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.ID]; !ok {
		m.plansTen[plan.TenantID] = append(m.plansTen[plan.TenantID], plan.ID)
	}
	m.plans[plan.ID] = plan
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok || p.TenantID != tenantID {
		return model.Plan{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.plansTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Plan{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.plans[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.cfg[tenantID]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg[tenantID] = cfg
	return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planID, planDate string, sm model.SolveMetricsOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planMx[tenantID] = append(m.planMx[tenantID], map[string]any{
		"planId":        planID,
		"planDate":      planDate,
		"strategy":      sm.Strategy,
		"metaheuristic": sm.Metaheuristic,
		"iterations":    sm.Iterations,
		"improvements":  sm.Improvements,
		"acceptedWorse": sm.AcceptedWorse,
		"initialCost":   sm.InitialCost,
		"bestCost":      sm.BestCost,
		"elapsedMs":     sm.ElapsedMs,
		"stopReason":    sm.StopReason,
	})
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, row := range m.planMx[tenantID] {
		if planDate == "" || row["planDate"] == planDate {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	found := false
	for _, s := range arr {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, lst := range m.deliveriesByTenant {
		for _, id := range lst {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil && d.TenantID == tenantID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}
