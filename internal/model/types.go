package model

import "time"

// JobStatus is the lifecycle state of a scoring job.
type JobStatus string

const (
    JobQueued    JobStatus = "queued"
    JobRunning   JobStatus = "running"
    JobOptimal   JobStatus = "optimal"
    JobPartial   JobStatus = "partial" // time budget spent before optimality
    JobFailed    JobStatus = "failed"
    JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further progress will be made.
func (s JobStatus) Terminal() bool {
    switch s {
    case JobOptimal, JobPartial, JobFailed, JobCancelled:
        return true
    }
    return false
}

// Event types published to SSE/websocket subscribers and webhooks.
const (
    EventScoreQueued    = "score.queued"
    EventScoreProgress  = "score.progress"
    EventScoreCompleted = "score.completed"
    EventScoreFailed    = "score.failed"
    EventScoreCancelled = "score.cancelled"
)

// ScoreOptions are the solver options of a job, given as query parameters
// on submission.
type ScoreOptions struct {
    RuleSet       string `json:"ruleSet"`
    MaxTimeSec    int    `json:"maxTimeSec,omitempty"`
    MaxLoop       int    `json:"maxLoop,omitempty"`
    HighPrecision bool   `json:"highPrecision,omitempty"`
    Trim          bool   `json:"trim,omitempty"`
    Invalid       bool   `json:"invalid,omitempty"`
    NoFlight      bool   `json:"noFlight,omitempty"`
    Workers       int    `json:"workers,omitempty"`
}

type Leg struct {
    Name     string  `json:"name"`
    Distance float64 `json:"d"`
}

// ScoreSummary is the latest result of a job, partial until Optimal.
type ScoreSummary struct {
    Rule      string  `json:"rule"`
    Code      string  `json:"code"`
    Score     float64 `json:"score"`
    Bound     float64 `json:"bound"`
    Distance  float64 `json:"distance"`
    Penalty   float64 `json:"penalty"`
    Legs      []Leg   `json:"legs,omitempty"`
    Optimal   bool    `json:"optimal"`
    Processed int     `json:"processed"`
    Cycles    int     `json:"cycles"`
    ElapsedMs int64   `json:"elapsedMs"`
}

type Job struct {
    ID         string        `json:"id"`
    TenantID   string        `json:"tenantId"`
    Status     JobStatus     `json:"status"`
    Options    ScoreOptions  `json:"options"`
    Pilot      string        `json:"pilot,omitempty"`
    FlightDate string        `json:"flightDate,omitempty"`
    Fixes      int           `json:"fixes"`
    Result     *ScoreSummary `json:"result,omitempty"`
    Error      string        `json:"error,omitempty"`
    CreatedAt  time.Time     `json:"createdAt"`
    UpdatedAt  time.Time     `json:"updatedAt"`
    StartedAt  *time.Time    `json:"startedAt,omitempty"`
    FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// NewJob is what the API hands the store on submission.
type NewJob struct {
    TenantID   string
    Options    ScoreOptions
    Pilot      string
    FlightDate string
    Fixes      int
    Track      []byte // raw IGC
}

// ProgressEvent is emitted after every solver cycle of a job.
type ProgressEvent struct {
    JobID     string    `json:"jobId"`
    Status    JobStatus `json:"status"`
    Cycle     int       `json:"cycle"`
    Processed int       `json:"processed"`
    Score     float64   `json:"score"`
    Bound     float64   `json:"bound"`
    Optimal   bool      `json:"optimal"`
    Rule      string    `json:"rule,omitempty"`
    TS        time.Time `json:"ts"`
}

// RuleSetInfo lists one rule set for GET /v1/rules.
type RuleSetInfo struct {
    Name  string     `json:"name"`
    Rules []RuleInfo `json:"rules"`
}

type RuleInfo struct {
    Name        string  `json:"name"`
    Code        string  `json:"code"`
    Shape       string  `json:"shape"`
    Multiplier  float64 `json:"multiplier"`
    Cardinality int     `json:"cardinality"`
}

// Webhooks
type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}

// Read model for the admin deliveries listing
type WebhookDeliveryInfo struct {
    ID             string     `json:"id"`
    SubscriptionID string     `json:"subscriptionId"`
    EventType      string     `json:"eventType"`
    Status         string     `json:"status"`
    Attempts       int        `json:"attempts"`
    LastError      string     `json:"lastError,omitempty"`
    ResponseCode   int        `json:"responseCode,omitempty"`
    CreatedAt      time.Time  `json:"createdAt"`
    DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}
