package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "xcscore/internal/auth"
    "xcscore/internal/events"
    "xcscore/internal/flight"
    "xcscore/internal/igc"
    "xcscore/internal/jobs"
    "xcscore/internal/logging"
    "xcscore/internal/model"
    "xcscore/internal/opt"
    "xcscore/internal/render"
    "xcscore/internal/scoring"
    "xcscore/internal/store"
)

// readTrack reads and parses the IGC request body.
func (s *Server) readTrack(w http.ResponseWriter, r *http.Request) ([]byte, *igc.File, bool) {
    raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxUpload))
    if err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) {
            writeProblem(w, http.StatusRequestEntityTooLarge, "Track too large", err.Error(), r.URL.Path)
        } else {
            writeProblem(w, http.StatusBadRequest, "Unreadable body", err.Error(), r.URL.Path)
        }
        return nil, nil, false
    }
    file, err := igc.Parse(bytes.NewReader(raw))
    if err != nil {
        writeProblem(w, http.StatusUnprocessableEntity, "Invalid IGC", err.Error(), r.URL.Path)
        return nil, nil, false
    }
    return raw, file, true
}

// ScoresHandler handles POST (submit) and GET (list) on /v1/scores.
func (s *Server) ScoresHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.authorize(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        s.submit(w, r, p)
    case http.MethodGet:
        q := r.URL.Query()
        limit, err := intParam(q, "limit")
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path); return }
        items, next, err := s.Store.ListJobs(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), limit)
        if err != nil { writeProblem(w, http.StatusInternalServerError, "List scores failed", err.Error(), r.URL.Path); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, p auth.Principal) {
    if !s.Limits.allow(w, r, p.Tenant) { return }
    opts, err := parseScoreOptions(r.URL.Query(), s.Rules)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid options", err.Error(), r.URL.Path)
        return
    }
    raw, file, ok := s.readTrack(w, r)
    if !ok { return }
    in := model.NewJob{TenantID: p.Tenant, Options: opts, Pilot: file.Pilot, Fixes: len(file.Fixes), Track: raw}
    if !file.Date.IsZero() { in.FlightDate = file.Date.Format("2006-01-02") }
    job, err := s.Store.CreateJob(r.Context(), in)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Create score job failed", err.Error(), r.URL.Path)
        return
    }
    if err := s.Jobs.Submit(p.Tenant, job.ID); err != nil {
        _, _ = s.Store.FinishJob(r.Context(), p.Tenant, job.ID, model.JobFailed, nil, err.Error())
        w.Header().Set("Retry-After", "5")
        writeProblem(w, http.StatusServiceUnavailable, "Scoring queue full", err.Error(), r.URL.Path)
        return
    }
    s.Log.Info(r.Context(), "score job queued",
        logging.String("job", job.ID), logging.String("tenant", p.Tenant),
        logging.String("ruleSet", opts.RuleSet), logging.Int("fixes", job.Fixes))
    w.Header().Set("Location", "/v1/scores/"+job.ID)
    writeJSON(w, http.StatusAccepted, job)
}

// ScoreByIDHandler serves /v1/scores/{id} and its /geojson, /events and
// /stats sub-resources.
func (s *Server) ScoreByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/scores/"), "/")
    parts := strings.Split(rest, "/")
    if rest == "" || len(parts) > 2 {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    p, ok := s.authorize(w, r)
    if !ok { return }
    id := parts[0]
    sub := ""
    if len(parts) == 2 { sub = parts[1] }

    switch {
    case sub == "" && r.Method == http.MethodGet:
        job, err := s.Store.GetJob(r.Context(), p.Tenant, id)
        if err != nil { s.storeProblem(w, r, err); return }
        writeJSON(w, http.StatusOK, job)
    case sub == "" && r.Method == http.MethodDelete:
        job, err := s.Jobs.Cancel(r.Context(), p.Tenant, id)
        if err != nil { s.storeProblem(w, r, err); return }
        writeJSON(w, http.StatusOK, job)
    case sub == "geojson" && r.Method == http.MethodGet:
        doc, err := s.Store.GetGeoJSON(r.Context(), p.Tenant, id)
        if err != nil { s.storeProblem(w, r, err); return }
        w.Header().Set("Content-Type", "application/geo+json")
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write(doc)
    case sub == "stats" && r.Method == http.MethodGet:
        st, found := opt.GetStats(p.Tenant, id)
        if !found { writeProblem(w, http.StatusNotFound, "No solver stats", "job has not run on this instance", r.URL.Path); return }
        writeJSON(w, http.StatusOK, st)
    case sub == "events" && r.Method == http.MethodGet:
        s.streamEvents(w, r, p, id)
    case sub == "" || sub == "geojson" || sub == "stats" || sub == "events":
        w.WriteHeader(http.StatusMethodNotAllowed)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

func (s *Server) storeProblem(w http.ResponseWriter, r *http.Request, err error) {
    switch {
    case errors.Is(err, store.ErrNotFound):
        writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
    case errors.Is(err, store.ErrJobState):
        writeProblem(w, http.StatusConflict, "Conflict", err.Error(), r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
    }
}

func terminalEvent(typ string) bool {
    return typ == model.EventScoreCompleted || typ == model.EventScoreFailed || typ == model.EventScoreCancelled
}

// streamEvents sends the job as a "snapshot" event followed by its
// progress until the job ends or the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, p auth.Principal, id string) {
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
        return
    }
    // subscribe first so nothing is lost between snapshot and stream
    ch, cancel := s.Broker.Subscribe(r.Context(), id)
    defer cancel()
    job, err := s.Store.GetJob(r.Context(), p.Tenant, id)
    if err != nil { s.storeProblem(w, r, err); return }

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    writeSSE(w, events.Event{Type: "snapshot", Data: job})
    flusher.Flush()
    if job.Status.Terminal() { return }

    heartbeat := time.NewTicker(15 * time.Second)
    defer heartbeat.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, open := <-ch:
            if !open { return }
            writeSSE(w, evt)
            flusher.Flush()
            if terminalEvent(evt.Type) { return }
        case <-heartbeat.C:
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"jobId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().UTC().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

func writeSSE(w io.Writer, evt events.Event) {
    b, _ := json.Marshal(evt.Data)
    fmt.Fprintf(w, "event: %s\n", evt.Type)
    fmt.Fprintf(w, "data: %s\n\n", b)
}

// SyncResponse is the body of POST /v1/score.
type SyncResponse struct {
    Result  model.ScoreSummary `json:"result"`
    GeoJSON json.RawMessage    `json:"geojson,omitempty"`
}

// ScoreSyncHandler scores a small track within the request, bounded by
// SyncBudget. A result that is not optimal when the budget runs out is
// returned as is.
func (s *Server) ScoreSyncHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authorize(w, r)
    if !ok { return }
    if !s.Limits.allow(w, r, p.Tenant) { return }
    opts, err := parseScoreOptions(r.URL.Query(), s.Rules)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid options", err.Error(), r.URL.Path); return }
    _, file, ok := s.readTrack(w, r)
    if !ok { return }
    rules, err := s.Rules.Lookup(opts.RuleSet)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid options", err.Error(), r.URL.Path); return }

    rc := s.Jobs.Config()
    budget := s.SyncBudget
    if b := rc.Budget(opts); b < budget { budget = b }
    ctx, cancel := context.WithTimeout(r.Context(), budget)
    defer cancel()

    res, err := opt.ScoreFixes(ctx, file.Fixes, rules, rc.SolverConfig(opts), opt.WithLogger(s.Log))
    if err != nil {
        status := http.StatusInternalServerError
        if errors.Is(err, flight.ErrTooFewFixes) || errors.Is(err, opt.ErrNoRoots) || errors.Is(err, scoring.ErrUnknownShape) {
            status = http.StatusUnprocessableEntity
        }
        writeProblem(w, status, "Scoring failed", err.Error(), r.URL.Path)
        return
    }
    out := SyncResponse{Result: jobs.Summarize(res)}
    if doc, err := render.GeoJSON(res, render.Options{NoFlight: opts.NoFlight}).MarshalJSON(); err == nil {
        out.GeoJSON = doc
    }
    writeJSON(w, http.StatusOK, out)
}

// RulesHandler lists the rule sets known to the service.
func (s *Server) RulesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if _, ok := s.authorize(w, r); !ok { return }
    out := []model.RuleSetInfo{}
    for _, name := range s.Rules.Names() {
        rules, _ := s.Rules.Lookup(name)
        info := model.RuleSetInfo{Name: name, Rules: []model.RuleInfo{}}
        for _, rl := range rules {
            info.Rules = append(info.Rules, model.RuleInfo{Name: rl.Name, Code: rl.Code, Shape: string(rl.Shape), Multiplier: rl.Multiplier, Cardinality: rl.Cardinality})
        }
        out = append(out, info)
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": out, "default": scoring.DefaultRuleSet})
}
