package store

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "xcscore/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu    sync.Mutex
    jobs  map[string]*memJob               // id -> job
    byTen map[string][]string              // tenant -> job ids, oldest first
    subs  map[string][]model.Subscription  // tenant -> subscriptions
    // Webhooks queue state
    deliveries         map[string]*memDelivery // id -> delivery state
    deliveriesByTenant map[string][]string     // tenant -> delivery ids
    dlq                []map[string]any        // dead-lettered deliveries
}

func NewMemory() *Memory {
    return &Memory{
        jobs: map[string]*memJob{},
        byTen: map[string][]string{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dlq: []map[string]any{},
    }
}

type memJob struct {
    job     model.Job
    track   []byte
    geojson []byte
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    CreatedAt     time.Time
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) CreateJob(ctx context.Context, in model.NewJob) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now().UTC()
    j := model.Job{
        ID: uuid.New().String(), TenantID: in.TenantID, Status: model.JobQueued,
        Options: in.Options, Pilot: in.Pilot, FlightDate: in.FlightDate, Fixes: in.Fixes,
        CreatedAt: now, UpdatedAt: now,
    }
    m.jobs[j.ID] = &memJob{job: j, track: append([]byte(nil), in.Track...)}
    m.byTen[in.TenantID] = append(m.byTen[in.TenantID], j.ID)
    return j, nil
}

// lookup must be called with m.mu held.
func (m *Memory) lookup(tenantID, id string) (*memJob, error) {
    mj := m.jobs[id]
    if mj == nil || mj.job.TenantID != tenantID { return nil, ErrNotFound }
    return mj, nil
}

func (m *Memory) GetJob(ctx context.Context, tenantID, id string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return model.Job{}, err }
    return copyJob(mj.job), nil
}

func (m *Memory) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.byTen[tenantID]
    start := 0
    if cursor != "" {
        for i := range ids { if ids[i] == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    out := []model.Job{}
    next := ""
    for _, id := range ids[start:] {
        j := m.jobs[id].job
        if status != "" && string(j.Status) != status { continue }
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, copyJob(j))
    }
    return out, next, nil
}

func (m *Memory) GetTrack(ctx context.Context, tenantID, id string) ([]byte, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return nil, err }
    return append([]byte(nil), mj.track...), nil
}

func (m *Memory) StartJob(ctx context.Context, tenantID, id string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return model.Job{}, err }
    if mj.job.Status != model.JobQueued {
        return model.Job{}, fmt.Errorf("%w: start %s job", ErrJobState, mj.job.Status)
    }
    now := time.Now().UTC()
    mj.job.Status = model.JobRunning
    mj.job.StartedAt = &now
    mj.job.UpdatedAt = now
    return copyJob(mj.job), nil
}

func (m *Memory) UpdateProgress(ctx context.Context, tenantID, id string, res model.ScoreSummary) error {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return err }
    if mj.job.Status != model.JobRunning {
        return fmt.Errorf("%w: progress on %s job", ErrJobState, mj.job.Status)
    }
    mj.job.Result = copySummary(&res)
    mj.job.UpdatedAt = time.Now().UTC()
    return nil
}

func (m *Memory) FinishJob(ctx context.Context, tenantID, id string, status model.JobStatus, res *model.ScoreSummary, errMsg string) (model.Job, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return model.Job{}, err }
    if !status.Terminal() { return model.Job{}, fmt.Errorf("%w: %s is not terminal", ErrJobState, status) }
    if mj.job.Status.Terminal() {
        return model.Job{}, fmt.Errorf("%w: job already %s", ErrJobState, mj.job.Status)
    }
    now := time.Now().UTC()
    mj.job.Status = status
    if res != nil { mj.job.Result = copySummary(res) }
    mj.job.Error = errMsg
    mj.job.FinishedAt = &now
    mj.job.UpdatedAt = now
    return copyJob(mj.job), nil
}

func (m *Memory) SaveGeoJSON(ctx context.Context, tenantID, id string, doc []byte) error {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return err }
    mj.geojson = append([]byte(nil), doc...)
    return nil
}

func (m *Memory) GetGeoJSON(ctx context.Context, tenantID, id string) ([]byte, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    mj, err := m.lookup(tenantID, id)
    if err != nil { return nil, err }
    if mj.geojson == nil { return nil, ErrNotFound }
    return append([]byte(nil), mj.geojson...), nil
}

func copyJob(j model.Job) model.Job {
    j.Result = copySummary(j.Result)
    return j
}

func copySummary(s *model.ScoreSummary) *model.ScoreSummary {
    if s == nil { return nil }
    c := *s
    c.Legs = append([]model.Leg(nil), s.Legs...)
    return &c
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    if len(out) == len(arr) { return ErrNotFound }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    now := time.Now()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, Attempts: 0}, CreatedAt: now, NextAttemptAt: now}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    m.dlq = append(m.dlq, map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryInfo, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i := range ids { if ids[i] == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    out := []model.WebhookDeliveryInfo{}
    next := ""
    for _, id := range ids[start:] {
        d := m.deliveries[id]
        if d == nil { continue }
        if status != "" && d.Status != status { continue }
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, model.WebhookDeliveryInfo{
            ID: d.ID, SubscriptionID: d.SubscriptionID, EventType: d.EventType, Status: d.Status,
            Attempts: d.Attempts, LastError: d.LastError, ResponseCode: d.ResponseCode,
            CreatedAt: d.CreatedAt, DeliveredAt: d.DeliveredAt,
        })
    }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = DeliveryPending
    d.NextAttemptAt = time.Now()
    return nil
}

// helper: iterate delivery IDs by tenant order
func (m *Memory) iterDeliveryIDs() []string {
    ids := []string{}
    for _, lst := range m.deliveriesByTenant {
        ids = append(ids, lst...)
    }
    return ids
}
