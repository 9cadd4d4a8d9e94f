package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "embed"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "xcscore/internal/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

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

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(schemaFS, "schema/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        b, err := schemaFS.ReadFile(name)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

const jobColumns = `id::text, tenant_id, status, options, COALESCE(pilot,''), COALESCE(flight_date,''), fixes, result, COALESCE(error,''), created_at, updated_at, started_at, finished_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(row rowScanner) (model.Job, error) {
    var j model.Job
    var status string
    var opts, result []byte
    var started, finished sql.NullTime
    if err := row.Scan(&j.ID, &j.TenantID, &status, &opts, &j.Pilot, &j.FlightDate, &j.Fixes, &result, &j.Error, &j.CreatedAt, &j.UpdatedAt, &started, &finished); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return model.Job{}, ErrNotFound }
        return model.Job{}, err
    }
    j.Status = model.JobStatus(status)
    if len(opts) > 0 {
        if err := json.Unmarshal(opts, &j.Options); err != nil { return model.Job{}, fmt.Errorf("job %s options: %w", j.ID, err) }
    }
    if len(result) > 0 {
        var s model.ScoreSummary
        if err := json.Unmarshal(result, &s); err != nil { return model.Job{}, fmt.Errorf("job %s result: %w", j.ID, err) }
        j.Result = &s
    }
    if started.Valid { t := started.Time; j.StartedAt = &t }
    if finished.Valid { t := finished.Time; j.FinishedAt = &t }
    return j, nil
}

func (p *Postgres) CreateJob(ctx context.Context, in model.NewJob) (model.Job, error) {
    id := uuid.New().String()
    opts, err := json.Marshal(in.Options)
    if err != nil { return model.Job{}, err }
    row := p.db.QueryRowContext(ctx, `INSERT INTO score_jobs (id, tenant_id, status, options, pilot, flight_date, fixes, track)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+jobColumns,
        id, in.TenantID, string(model.JobQueued), opts, nullIfEmpty(in.Pilot), nullIfEmpty(in.FlightDate), in.Fixes, in.Track)
    return scanJob(row)
}

func (p *Postgres) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Job{}, ErrNotFound }
    row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM score_jobs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    return scanJob(row)
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT ` + jobColumns + ` FROM score_jobs WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(` AND status=$%d`, len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(` AND id::text > $%d`, len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Job{}
    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil { return nil, "", err }
        out = append(out, j)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) GetTrack(ctx context.Context, tenantID, id string) ([]byte, error) {
    if _, err := uuid.Parse(id); err != nil { return nil, ErrNotFound }
    var track []byte
    err := p.db.QueryRowContext(ctx, `SELECT track FROM score_jobs WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&track)
    if errors.Is(err, sql.ErrNoRows) { return nil, ErrNotFound }
    return track, err
}

// transition runs a conditional update and tells a missing job apart from
// one in the wrong state.
func (p *Postgres) transition(ctx context.Context, tenantID, id, what, q string, args ...any) (model.Job, error) {
    j, err := scanJob(p.db.QueryRowContext(ctx, q, args...))
    if !errors.Is(err, ErrNotFound) { return j, err }
    cur, gerr := p.GetJob(ctx, tenantID, id)
    if gerr != nil { return model.Job{}, gerr }
    return model.Job{}, fmt.Errorf("%w: %s %s job", ErrJobState, what, cur.Status)
}

func (p *Postgres) StartJob(ctx context.Context, tenantID, id string) (model.Job, error) {
    return p.transition(ctx, tenantID, id, "start",
        `UPDATE score_jobs SET status=$3, started_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2 AND status=$4 RETURNING `+jobColumns,
        tenantID, id, string(model.JobRunning), string(model.JobQueued))
}

func (p *Postgres) UpdateProgress(ctx context.Context, tenantID, id string, res model.ScoreSummary) error {
    b, err := json.Marshal(res)
    if err != nil { return err }
    _, err = p.transition(ctx, tenantID, id, "progress on",
        `UPDATE score_jobs SET result=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2 AND status=$4 RETURNING `+jobColumns,
        tenantID, id, b, string(model.JobRunning))
    return err
}

func (p *Postgres) FinishJob(ctx context.Context, tenantID, id string, status model.JobStatus, res *model.ScoreSummary, errMsg string) (model.Job, error) {
    if !status.Terminal() { return model.Job{}, fmt.Errorf("%w: %s is not terminal", ErrJobState, status) }
    var result any
    if res != nil {
        b, err := json.Marshal(res)
        if err != nil { return model.Job{}, err }
        result = b
    }
    return p.transition(ctx, tenantID, id, "finish",
        `UPDATE score_jobs SET status=$3, result=COALESCE($4::jsonb, result), error=$5, finished_at=now(), updated_at=now()
        WHERE tenant_id=$1 AND id=$2 AND status IN ('queued','running') RETURNING `+jobColumns,
        tenantID, id, string(status), result, nullIfEmpty(errMsg))
}

func (p *Postgres) SaveGeoJSON(ctx context.Context, tenantID, id string, doc []byte) error {
    r, err := p.db.ExecContext(ctx, `UPDATE score_jobs SET geojson=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, id, doc)
    if err != nil { return err }
    if n, _ := r.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetGeoJSON(ctx context.Context, tenantID, id string) ([]byte, error) {
    if _, err := uuid.Parse(id); err != nil { return nil, ErrNotFound }
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT geojson FROM score_jobs WHERE tenant_id=$1 AND id=$2`, tenantID, id).Scan(&doc)
    if errors.Is(err, sql.ErrNoRows) || (err == nil && doc == nil) { return nil, ErrNotFound }
    return doc, err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    filter, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(filter))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    var out []model.Subscription
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    r, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := r.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`, id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    _, err = tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    // move to DLQ
    _, err = tx.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
    if err != nil { return err }
    return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryInfo, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    q := `SELECT id::text, COALESCE(subscription_id::text,''), event_type, status, attempts, COALESCE(last_error,''), COALESCE(response_code,0), created_at, delivered_at FROM webhook_deliveries WHERE tenant_id=$1`
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        q += fmt.Sprintf(` AND status=$%d`, len(args))
    }
    if cursor != "" {
        args = append(args, cursor)
        q += fmt.Sprintf(` AND id::text > $%d`, len(args))
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.WebhookDeliveryInfo{}
    for rows.Next() {
        var d model.WebhookDeliveryInfo
        var delivered sql.NullTime
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.Status, &d.Attempts, &d.LastError, &d.ResponseCode, &d.CreatedAt, &delivered); err != nil { return nil, "", err }
        if delivered.Valid { t := delivered.Time; d.DeliveredAt = &t }
        out = append(out, d)
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    r, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := r.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if strings.TrimSpace(s) == "" { return nil }; return s }
