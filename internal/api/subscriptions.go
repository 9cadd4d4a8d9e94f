package api

import (
    "encoding/json"
    "net/http"
    "net/url"
    "strings"

    "xcscore/internal/model"
)

var knownEvents = map[string]bool{
    model.EventScoreQueued: true, model.EventScoreProgress: true,
    model.EventScoreCompleted: true, model.EventScoreFailed: true, model.EventScoreCancelled: true,
}

func validateSubscription(req *model.SubscriptionRequest) string {
    u, err := url.Parse(req.URL)
    if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        return "url must be an absolute http(s) URL"
    }
    if len(req.Events) == 0 {
        return "events must not be empty"
    }
    for _, e := range req.Events {
        if !knownEvents[e] { return "unknown event type: " + e }
    }
    return ""
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.authorizeAdmin(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.TenantID = p.Tenant
        if msg := validateSubscription(&req); msg != "" {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", msg, r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        limit, err := intParam(r.URL.Query(), "limit")
        if err != nil { writeProblem(w, 400, "Invalid query", err.Error(), r.URL.Path); return }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), limit)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        for i := range items { items[i].Secret = "" }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete { w.WriteHeader(405); return }
    p, ok := s.authorizeAdmin(w, r)
    if !ok { return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil { s.storeProblem(w, r, err); return }
    w.WriteHeader(204)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p, ok := s.authorizeAdmin(w, r)
    if !ok { return }
    q := r.URL.Query()
    limit, err := intParam(q, "limit")
    if err != nil { writeProblem(w, 400, "Invalid query", err.Error(), r.URL.Path); return }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p, ok := s.authorizeAdmin(w, r)
    if !ok { return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil { s.storeProblem(w, r, err); return }
    writeJSON(w, 202, map[string]int{"accepted": 1})
}
