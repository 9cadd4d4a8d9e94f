package store

import (
    "context"
    "errors"
    "time"

    "xcscore/internal/model"
)

// Store is the persistence interface used by the API server and the job
// runner.
type Store interface {
    // Scoring jobs
    CreateJob(ctx context.Context, in model.NewJob) (model.Job, error)
    GetJob(ctx context.Context, tenantID, id string) (model.Job, error)
    ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error)
    // GetTrack returns the raw IGC submitted with a job.
    GetTrack(ctx context.Context, tenantID, id string) ([]byte, error)
    StartJob(ctx context.Context, tenantID, id string) (model.Job, error)
    UpdateProgress(ctx context.Context, tenantID, id string, res model.ScoreSummary) error
    // FinishJob sets a terminal status, the final result (may be nil) and
    // an error message for failed jobs.
    FinishJob(ctx context.Context, tenantID, id string, status model.JobStatus, res *model.ScoreSummary, errMsg string) (model.Job, error)
    // SaveGeoJSON keeps the latest rendering of a job.
    SaveGeoJSON(ctx context.Context, tenantID, id string, doc []byte) error
    GetGeoJSON(ctx context.Context, tenantID, id string) ([]byte, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryInfo, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

// ErrJobState is returned when a job transition does not apply to the
// job's current status.
var ErrJobState = errors.New("job state conflict")
