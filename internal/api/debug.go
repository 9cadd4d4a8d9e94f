package api

import (
    "context"
    "encoding/json"
    "net/http"
    "os"
    "time"

    "xcscore/internal/buildinfo"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    rc := s.Jobs.Config()
    info := map[string]any{
        "build": buildinfo.Info(),
        "version": buildinfo.String(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "ruleSets": s.Rules.Names(),
        "jobs": map[string]any{
            "workers": rc.Workers,
            "queue": rc.Queue,
            "cycle": rc.Cycle.String(),
            "maxTime": rc.MaxTime.String(),
            "maxSolverWorkers": rc.MaxSolverWorkers,
        },
        "config": map[string]any{
            "PORT": os.Getenv("PORT"),
            "AUTH_MODE": s.Auth.Mode,
            "RATE_RPS": os.Getenv("RATE_RPS"),
            "RATE_BURST": os.Getenv("RATE_BURST"),
            "WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
            "RULES_FILE": os.Getenv("RULES_FILE"),
            "HAS_DATABASE_URL": os.Getenv("DATABASE_URL") != "",
            "HAS_REDIS_URL": os.Getenv("REDIS_URL") != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
