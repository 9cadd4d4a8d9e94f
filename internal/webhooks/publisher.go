package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"xcscore/internal/logging"
	"xcscore/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   logging.Logger
}

func NewPublisher(s store.Store, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Noop()
	}
	return &Publisher{Store: s, Log: log}
}

// Event is the JSON body of every webhook.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit queues an event for all subscriptions of the tenant to that event
// type and returns how many deliveries were queued. The event id doubles as
// the delivery dedup key.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil || len(subs) == 0 {
		return 0, err
	}
	body, err := json.Marshal(Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn(ctx, "webhook enqueue failed", logging.String("subscription", s.ID), logging.Err(err))
			continue
		}
		n++
	}
	return n, nil
}
