package api

import (
    "math"
    "net/http"
    "os"
    "strconv"
    "sync"
    "time"

    "golang.org/x/time/rate"
)

// tenantLimiter throttles job submissions per tenant. A nil limiter or a
// zero rate lets everything through.
type tenantLimiter struct {
    rps   rate.Limit
    burst int

    mu   sync.Mutex
    byID map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
    if rps <= 0 { return nil }
    if burst <= 0 { burst = int(math.Ceil(rps)) }
    return &tenantLimiter{rps: rate.Limit(rps), burst: burst, byID: map[string]*rate.Limiter{}}
}

// newTenantLimiterFromEnv reads RATE_RPS (submissions per second per
// tenant) and RATE_BURST.
func newTenantLimiterFromEnv() *tenantLimiter {
    rps, _ := strconv.ParseFloat(os.Getenv("RATE_RPS"), 64)
    burst, _ := strconv.Atoi(os.Getenv("RATE_BURST"))
    return newTenantLimiter(rps, burst)
}

func (l *tenantLimiter) limiter(tenant string) *rate.Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    lim := l.byID[tenant]
    if lim == nil {
        lim = rate.NewLimiter(l.rps, l.burst)
        l.byID[tenant] = lim
    }
    return lim
}

// allow reports whether tenant may submit now; otherwise it writes a 429
// with Retry-After.
func (l *tenantLimiter) allow(w http.ResponseWriter, r *http.Request, tenant string) bool {
    if l == nil { return true }
    res := l.limiter(tenant).Reserve()
    delay := res.Delay()
    if delay == 0 { return true }
    res.Cancel()
    w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
    writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "submission rate exceeded, retry in "+delay.Round(time.Millisecond).String(), r.URL.Path)
    return false
}
