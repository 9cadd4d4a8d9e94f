package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "runtime/debug"
    "strconv"
    "strings"
    "time"

    "xcscore/internal/logging"
    "xcscore/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

// statusRecorder keeps the response status for logs and metrics while
// still exposing Flush and Hijack for SSE and websocket handlers.
type statusRecorder struct {
    http.ResponseWriter
    status int
    bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
    if w.status == 0 { w.status = code }
    w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
    if w.status == 0 { w.status = http.StatusOK }
    n, err := w.ResponseWriter.Write(b)
    w.bytes += n
    return n, err
}

func (w *statusRecorder) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if w.status == 0 { w.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// requestID propagates X-Request-Id, generating one when absent.
func requestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ctx := r.Context()
        var id string
        if h := strings.TrimSpace(r.Header.Get(requestIDHeader)); h != "" && len(h) <= 128 {
            id = h
            ctx = logging.ContextWithRequestID(ctx, id)
        } else {
            ctx, id = logging.EnsureRequestID(ctx)
        }
        w.Header().Set(requestIDHeader, id)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

// observe writes the access log and the HTTP metrics.
func observe(log logging.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w}
        next.ServeHTTP(rec, r)
        if rec.status == 0 { rec.status = http.StatusOK }
        dur := time.Since(start)
        route := routeLabel(r.URL.Path)
        code := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
        if route == "/healthz" || route == "/readyz" || route == "/metrics" { return }
        log.Info(r.Context(), "http request",
            logging.String("method", r.Method),
            logging.String("path", r.URL.Path),
            logging.Int("status", rec.status),
            logging.Int("bytes", rec.bytes),
            logging.Int64("duration_ms", dur.Milliseconds()),
            logging.String("remote", r.RemoteAddr))
    })
}

// recoverer turns handler panics into 500 problems.
func recoverer(log logging.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if v := recover(); v != nil {
                if v == http.ErrAbortHandler { panic(v) }
                log.Error(r.Context(), "handler panic", logging.Any("panic", v), logging.String("stack", string(debug.Stack())))
                writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "", r.URL.Path)
            }
        }()
        next.ServeHTTP(w, r)
    })
}

// routeLabel maps a request path onto its route pattern so ids do not
// blow up metric cardinality.
func routeLabel(path string) string {
    parts := strings.Split(strings.Trim(path, "/"), "/")
    switch {
    case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "scores":
        parts[2] = "{id}"
    case len(parts) >= 3 && parts[0] == "v1" && parts[1] == "subscriptions":
        parts[2] = "{id}"
    case len(parts) >= 4 && parts[0] == "v1" && parts[1] == "admin" && parts[2] == "webhook-deliveries":
        parts[3] = "{id}"
    }
    if len(parts) > 4 { parts = parts[:4] }
    return "/" + strings.Join(parts, "/")
}
