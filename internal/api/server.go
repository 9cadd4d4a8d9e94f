// Package api implements the HTTP surface of the scoring service.
package api

import (
    "context"
    "os"
    "strconv"
    "strings"
    "time"

    "xcscore/internal/auth"
    "xcscore/internal/events"
    "xcscore/internal/jobs"
    "xcscore/internal/logging"
    "xcscore/internal/metrics"
    "xcscore/internal/scoring"
    "xcscore/internal/store"
    "xcscore/internal/webhooks"
)

type Server struct {
    Store  store.Store
    Jobs   *jobs.Runner
    Broker events.Broker
    Pub    *webhooks.Publisher
    Auth   *auth.Verifier
    Rules  *scoring.Registry
    Log    logging.Logger
    Limits *tenantLimiter
    // SyncBudget caps the solver time of POST /v1/score.
    SyncBudget time.Duration
    // MaxUpload is the largest accepted IGC body in bytes.
    MaxUpload int64

    closers []func() error
}

// NewServer wires the service from the environment. Without DATABASE_URL
// the store is in memory; without REDIS_URL events stay in process.
func NewServer(ctx context.Context, log logging.Logger) (*Server, error) {
    if log == nil { log = logging.Noop() }
    s := &Server{
        Auth: auth.NewVerifierFromEnv(),
        Rules: scoring.NewRegistry(),
        Log: log,
        Limits: newTenantLimiterFromEnv(),
        SyncBudget: envSeconds("SYNC_MAX_TIME", 10*time.Second),
        MaxUpload: 32 << 20,
    }
    if path := strings.TrimSpace(os.Getenv("RULES_FILE")); path != "" {
        if err := s.Rules.LoadFile(path); err != nil { return nil, err }
    }

    dsn := os.Getenv("DATABASE_URL")
    if strings.TrimSpace(dsn) == "" {
        s.Store = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.Migrate(ctx); err != nil { _ = sp.Close(); return nil, err }
        }
        s.Store = sp
        s.closers = append(s.closers, sp.Close)
    }

    s.Broker = events.NewMemory()
    if url := os.Getenv("REDIS_URL"); url != "" {
        rb, err := events.NewRedis(ctx, url)
        if err != nil {
            log.Warn(ctx, "redis broker unavailable, using in-process events", logging.Err(err))
        } else {
            s.Broker = rb
            s.closers = append(s.closers, rb.Close)
        }
    }

    s.Pub = webhooks.NewPublisher(s.Store, log)
    s.Jobs = jobs.New(s.Store, s.Broker, s.Pub, s.Rules, log, jobs.ConfigFromEnv())
    metrics.RegisterDefault()
    return s, nil
}

// Close releases the store and broker connections.
func (s *Server) Close() error {
    var first error
    for i := len(s.closers) - 1; i >= 0; i-- {
        if err := s.closers[i](); err != nil && first == nil { first = err }
    }
    return first
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Log)
}

func envSeconds(k string, d time.Duration) time.Duration {
    if v := os.Getenv(k); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { return time.Duration(n) * time.Second }
    }
    return d
}
