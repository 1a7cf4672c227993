package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hubfleet/internal/model"
)

// Postgres persists plans and webhook state via the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every .sql file in dir in lexical order. Statements
// are idempotent (CREATE TABLE IF NOT EXISTS), so re-running is safe.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func (p *Postgres) SavePlan(ctx context.Context, plan model.Plan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plans (id, tenant_id, plan_date, outcome, total_cost, feasible, routes, unassigned, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (id) DO UPDATE SET outcome=EXCLUDED.outcome, total_cost=EXCLUDED.total_cost,
			feasible=EXCLUDED.feasible, routes=EXCLUDED.routes, unassigned=EXCLUDED.unassigned`,
		plan.ID, plan.TenantID, plan.PlanDate, plan.Outcome, plan.TotalCost, plan.Feasible,
		toJSON(plan.Routes), toJSON(plan.Unassigned))
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	var plan model.Plan
	var routes, unassigned []byte
	var created time.Time
	row := p.db.QueryRowContext(ctx, `
		SELECT id::text, tenant_id, plan_date, outcome, total_cost, feasible, routes, unassigned, created_at
		FROM plans WHERE tenant_id=$1 AND id=$2`, tenantID, planID)
	if err := row.Scan(&plan.ID, &plan.TenantID, &plan.PlanDate, &plan.Outcome, &plan.TotalCost, &plan.Feasible, &routes, &unassigned, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return plan, ErrNotFound
		}
		return plan, err
	}
	_ = json.Unmarshal(routes, &plan.Routes)
	_ = json.Unmarshal(unassigned, &plan.Unassigned)
	plan.CreatedAt = created.UTC().Format(time.RFC3339)
	return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.Plan, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id::text, tenant_id, plan_date, outcome, total_cost, feasible, routes, unassigned, created_at
			FROM plans WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id::text, tenant_id, plan_date, outcome, total_cost, feasible, routes, unassigned, created_at
			FROM plans WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Plan{}
	var last string
	for rows.Next() {
		var plan model.Plan
		var routes, unassigned []byte
		var created time.Time
		if err := rows.Scan(&plan.ID, &plan.TenantID, &plan.PlanDate, &plan.Outcome, &plan.TotalCost, &plan.Feasible, &routes, &unassigned, &created); err != nil {
			return nil, "", err
		}
		_ = json.Unmarshal(routes, &plan.Routes)
		_ = json.Unmarshal(unassigned, &plan.Unassigned)
		plan.CreatedAt = created.UTC().Format(time.RFC3339)
		out = append(out, plan)
		last = plan.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT config FROM solver_configs WHERE tenant_id=$1`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO solver_configs (tenant_id, config, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET config=EXCLUDED.config, updated_at=now()`,
		tenantID, toJSON(cfg))
	return err
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planID, planDate string, m model.SolveMetricsOut) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO plan_metrics (plan_id, tenant_id, plan_date, metrics, created_at) VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (plan_id) DO UPDATE SET metrics=EXCLUDED.metrics`,
		planID, tenantID, planDate, toJSON(m))
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate string) ([]map[string]any, error) {
	var rows *sql.Rows
	var err error
	if planDate != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT plan_id::text, plan_date, metrics FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2 ORDER BY created_at`, tenantID, planDate)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT plan_id::text, plan_date, metrics FROM plan_metrics WHERE tenant_id=$1 ORDER BY created_at`, tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var planID, date string
		var raw []byte
		if err := rows.Scan(&planID, &date, &raw); err != nil {
			return nil, err
		}
		row := map[string]any{}
		_ = json.Unmarshal(raw, &row)
		row["planId"] = planID
		row["planDate"] = date
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		id, req.TenantID, req.URL, toJSON(req.Events), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id.String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, url, events, secret FROM subscriptions
		WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, toJSON([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &events); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New()
	var sub any
	if subscriptionID != "" {
		sub = subscriptionID
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
		id, tenantID, sub, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2,
				latency_ms=$3, delivered_at=now() WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2,
			response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
		id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2,
			response_code=$3, latency_ms=$4 WHERE id=$1`, id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		q += ` AND status=$2`
		args = append(args, status)
	}
	q += ` ORDER BY id LIMIT 500`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var id, eventType, st, url string
		var attempts int
		var lastErr sql.NullString
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &lastErr); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if lastErr.String != "" {
			item["lastError"] = lastErr.String
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out, "", rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status='pending', next_attempt_at=now()
		WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}
