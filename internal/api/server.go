package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"hubfleet/internal/auth"
	"hubfleet/internal/config"
	"hubfleet/internal/store"
	"hubfleet/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Defaults config.SolverDefaults
	limiter  *rate.Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.MigrateDir("db/migrations")
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	defaults, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Defaults: defaults,
		limiter:  newSolveLimiter(),
	}, nil
}

// newSolveLimiter builds the per-process limiter for POST /v1/solve.
// RATE_RPS=0 disables limiting.
func newSolveLimiter() *rate.Limiter {
	rps := 5.0
	burst := 10
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			rps = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	if rps == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
