//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "xcscore/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    j, err := p.CreateJob(t.Context(), model.NewJob{TenantID: "t_it", Options: model.ScoreOptions{RuleSet: "FFVL"}, Fixes: 10, Track: []byte("B...")})
    if err != nil { t.Fatalf("CreateJob: %v", err) }
    if _, err := p.StartJob(t.Context(), "t_it", j.ID); err != nil { t.Fatalf("StartJob: %v", err) }
    if err := p.UpdateProgress(t.Context(), "t_it", j.ID, model.ScoreSummary{Rule: "Triangle FAI", Score: 12.5}); err != nil { t.Fatalf("UpdateProgress: %v", err) }
    done, err := p.FinishJob(t.Context(), "t_it", j.ID, model.JobOptimal, nil, "")
    if err != nil { t.Fatalf("FinishJob: %v", err) }
    if done.Result == nil || done.Result.Score != 12.5 { t.Fatalf("result not kept: %+v", done.Result) }
    if _, _, err := p.ListJobs(t.Context(), "t_it", "", "", 1); err != nil { t.Fatalf("ListJobs: %v", err) }
}
