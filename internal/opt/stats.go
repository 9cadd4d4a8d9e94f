package opt

import (
	"sync"
	"time"
)

// keepSnapshots is how many cycle snapshots a Stats keeps.
const keepSnapshots = 64

// Snapshot is the state of a run at the end of one cycle.
type Snapshot struct {
	Cycle     int           `json:"cycle"`
	Processed int           `json:"processed"`
	Elapsed   time.Duration `json:"elapsedNs"`
	Score     float64       `json:"score"`
	Bound     float64       `json:"bound"`
	Queue     int           `json:"queue"`
}

// Stats summarises a solver run.
type Stats struct {
	Cycles    int           `json:"cycles"`
	Processed int           `json:"processed"`
	Elapsed   time.Duration `json:"elapsedNs"`
	Score     float64       `json:"score"`
	Bound     float64       `json:"bound"`
	Queue     int           `json:"queue"`
	Optimal   bool          `json:"optimal"`
	Rule      string        `json:"rule"`
	Snapshots []Snapshot    `json:"snapshots,omitempty"`
}

func (st *Stats) record(res *Result, queue int) {
	st.Cycles = res.Cycles
	st.Processed = res.Processed
	st.Elapsed = res.Elapsed
	st.Score = res.Score
	st.Bound = res.Bound
	st.Queue = queue
	st.Optimal = res.Optimal
	st.Rule = res.Rule.Name
	st.Snapshots = append(st.Snapshots, Snapshot{
		Cycle: res.Cycles, Processed: res.Processed, Elapsed: res.Elapsed,
		Score: res.Score, Bound: res.Bound, Queue: queue,
	})
	if n := len(st.Snapshots); n > keepSnapshots {
		st.Snapshots = append(st.Snapshots[:0], st.Snapshots[n-keepSnapshots:]...)
	}
}

func (st Stats) clone() Stats {
	st.Snapshots = append([]Snapshot(nil), st.Snapshots...)
	return st
}

type key struct {
	Tenant string
	Job    string
}

var (
	mu    sync.Mutex
	store = map[key]Stats{}
)

// RecordStats keeps the latest stats of a job for the stats endpoint.
func RecordStats(tenant, job string, st Stats) {
	mu.Lock()
	store[key{Tenant: tenant, Job: job}] = st.clone()
	mu.Unlock()
}

func GetStats(tenant, job string) (Stats, bool) {
	mu.Lock()
	defer mu.Unlock()
	st, ok := store[key{Tenant: tenant, Job: job}]
	return st.clone(), ok
}

// ForgetStats drops the stats of a deleted job.
func ForgetStats(tenant, job string) {
	mu.Lock()
	delete(store, key{Tenant: tenant, Job: job})
	mu.Unlock()
}
