package jobs

import (
	"os"
	"strconv"
	"time"
)

// Config sizes the runner.
type Config struct {
	Workers int // concurrent jobs
	Queue   int // submitted jobs waiting for a worker
	// Cycle is the solver time budget between two progress updates.
	Cycle time.Duration
	// MaxTime caps the run time of a job; a job may ask for less.
	MaxTime time.Duration
	// MaxSolverWorkers caps the parallel expansion goroutines of one job.
	MaxSolverWorkers int
}

func DefaultConfig() Config {
	return Config{Workers: 2, Queue: 64, Cycle: 500 * time.Millisecond, MaxTime: 2 * time.Minute, MaxSolverWorkers: 4}
}

// ConfigFromEnv reads JOB_WORKERS, JOB_QUEUE, JOB_CYCLE, JOB_MAX_TIME and
// JOB_SOLVER_WORKERS. Durations use time.ParseDuration syntax.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	c.Workers = envInt("JOB_WORKERS", c.Workers)
	c.Queue = envInt("JOB_QUEUE", c.Queue)
	c.MaxSolverWorkers = envInt("JOB_SOLVER_WORKERS", c.MaxSolverWorkers)
	c.Cycle = envDuration("JOB_CYCLE", c.Cycle)
	c.MaxTime = envDuration("JOB_MAX_TIME", c.MaxTime)
	return c
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return d
}

func envDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := time.ParseDuration(v); err == nil && n > 0 {
			return n
		}
	}
	return d
}
