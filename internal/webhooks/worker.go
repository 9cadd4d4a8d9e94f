package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "os"
    "strconv"
    "time"

    "xcscore/internal/logging"
    "xcscore/internal/metrics"
    "xcscore/internal/store"
)

type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Log         logging.Logger
    MaxAttempts int
    Interval    time.Duration
    Batch       int
}

func NewWorker(s store.Store, log logging.Logger) *Worker {
    attempts := 10
    if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" { if n,err := strconv.Atoi(v); err == nil && n>0 { attempts = n } }
    if log == nil { log = logging.Noop() }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Log: log, MaxAttempts: attempts, Interval: time.Second, Batch: 50}
}

// Run delivers due webhooks until ctx is done.
func (w *Worker) Run(ctx context.Context) {
    ticker := time.NewTicker(w.Interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            w.processOnce(ctx)
        }
    }
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.Batch)
    if err != nil {
        w.Log.Error(ctx, "fetch due webhooks", logging.Err(err))
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    code := 0
    lastErr := ""
    start := time.Now()
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err == nil {
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        req.Header.Set("X-Delivery-Id", it.ID)
        if it.Secret != "" {
            req.Header.Set(SignatureHeader, Sign(it.Secret, start, it.Payload))
        }
        var resp *http.Response
        resp, err = w.HTTP.Do(req)
        if err == nil {
            code = resp.StatusCode
            _ = resp.Body.Close()
            success = code >= 200 && code < 300
        }
    }
    latency := int(time.Since(start).Milliseconds())
    if err != nil {
        lastErr = err.Error()
    } else if !success {
        lastErr = "status " + strconv.Itoa(code)
    }

    outcome := store.DeliveryDelivered
    switch {
    case success:
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
    case it.Attempts+1 >= w.MaxAttempts:
        outcome = store.DeliveryFailed
        err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
    default:
        outcome = store.DeliveryRetry
        next := time.Now().Add(nextBackoff(it.Attempts))
        err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
    }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, outcome).Inc()
    metrics.WebhookLatency.WithLabelValues(it.EventType, outcome).Observe(float64(latency))
    if err != nil {
        w.Log.Error(ctx, "record webhook delivery", logging.String("delivery", it.ID), logging.Err(err))
    }
    if !success {
        w.Log.Warn(ctx, "webhook delivery failed",
            logging.String("delivery", it.ID),
            logging.String("event", it.EventType),
            logging.Int("attempt", it.Attempts+1),
            logging.String("error", lastErr))
    }
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
