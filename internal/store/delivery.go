package store

// WebhookDelivery is a queued webhook attempt as seen by the delivery
// worker.
type WebhookDelivery struct {
    ID             string
    TenantID       string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}

// Delivery statuses.
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)
