package api

import (
    "net/http"

    "xcscore/internal/metrics"
)

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
    mux := http.NewServeMux()

    // Scoring
    mux.HandleFunc("/v1/scores", s.ScoresHandler)
    mux.HandleFunc("/v1/scores/", s.ScoreByIDHandler) // includes /geojson, /stats, /events
    mux.HandleFunc("/v1/score", s.ScoreSyncHandler)
    mux.HandleFunc("/v1/rules", s.RulesHandler)
    mux.HandleFunc("/v1/ws", s.WSHandler)

    // Webhook subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

    // Health, metrics, docs
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/debug/build", s.DebugJSON)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    return mux
}

// Handler is the full middleware chain around Routes.
func (s *Server) Handler() http.Handler {
    return requestID(observe(s.Log, recoverer(s.Log, s.Routes())))
}
