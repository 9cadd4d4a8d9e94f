// Package jobs runs scoring jobs in the background. A job is solved cycle
// by cycle: after every cycle its partial result is stored and published
// to the job's event stream, so clients can follow the score and the upper
// bound converge.
package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"xcscore/internal/events"
	"xcscore/internal/flight"
	"xcscore/internal/igc"
	"xcscore/internal/logging"
	"xcscore/internal/metrics"
	"xcscore/internal/model"
	"xcscore/internal/opt"
	"xcscore/internal/render"
	"xcscore/internal/scoring"
	"xcscore/internal/store"
	"xcscore/internal/webhooks"
)

var ErrQueueFull = errors.New("jobs: queue full")

type ref struct {
	tenant string
	id     string
}

// Runner executes submitted jobs on a fixed set of worker goroutines.
type Runner struct {
	store  store.Store
	broker events.Broker
	pub    *webhooks.Publisher
	rules  *scoring.Registry
	log    logging.Logger
	tracer trace.Tracer
	cfg    Config

	queue chan ref
	wg    sync.WaitGroup

	mu      sync.Mutex
	running map[ref]context.CancelFunc
}

func New(st store.Store, broker events.Broker, pub *webhooks.Publisher, rules *scoring.Registry, log logging.Logger, cfg Config) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		store:   st,
		broker:  broker,
		pub:     pub,
		rules:   rules,
		log:     log,
		tracer:  otel.Tracer("xcscore/internal/jobs"),
		cfg:     cfg,
		queue:   make(chan ref, cfg.Queue),
		running: map[ref]context.CancelFunc{},
	}
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Start launches the workers. They stop when ctx is done; running jobs are
// finished as cancelled with their partial result.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-r.queue:
					r.run(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until the workers have stopped.
func (r *Runner) Wait() { r.wg.Wait() }

// Submit queues a stored job.
func (r *Runner) Submit(tenantID, id string) error {
	select {
	case r.queue <- ref{tenant: tenantID, id: id}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel stops a queued or running job and returns it in its final state.
func (r *Runner) Cancel(ctx context.Context, tenantID, id string) (model.Job, error) {
	job, err := r.store.FinishJob(ctx, tenantID, id, model.JobCancelled, nil, "")
	if err != nil {
		return model.Job{}, err
	}
	r.mu.Lock()
	if cancel := r.running[ref{tenant: tenantID, id: id}]; cancel != nil {
		cancel()
	}
	r.mu.Unlock()
	metrics.Jobs.WithLabelValues(string(model.JobCancelled)).Inc()
	r.publish(ctx, id, model.EventScoreCancelled, job)
	r.log.Info(ctx, "job cancelled", logging.String("job", id), logging.String("tenant", tenantID))
	return job, nil
}

func (r *Runner) track(j ref, cancel context.CancelFunc) func() {
	r.mu.Lock()
	r.running[j] = cancel
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.running, j)
		r.mu.Unlock()
		cancel()
	}
}

func (r *Runner) run(parent context.Context, j ref) {
	ctx, span := r.tracer.Start(parent, "jobs.run", trace.WithAttributes(
		attribute.String("job.id", j.id),
		attribute.String("job.tenant", j.tenant),
	))
	defer span.End()
	log := r.log.With(logging.String("job", j.id), logging.String("tenant", j.tenant))

	job, err := r.store.StartJob(ctx, j.tenant, j.id)
	if err != nil {
		// cancelled while queued
		log.Debug(ctx, "job not started", logging.Err(err))
		return
	}
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	budget := r.cfg.Budget(job.Options)
	jobCtx, cancel := context.WithTimeout(ctx, budget)
	defer r.track(j, cancel)()

	log.Info(ctx, "job started", logging.String("ruleSet", job.Options.RuleSet), logging.Any("budget", budget))
	res, err := r.solve(jobCtx, job, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fail(ctx, job, res, err, log)
		return
	}

	status := model.JobOptimal
	switch {
	case res.Optimal:
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		status = model.JobPartial
	default:
		// Cancel already stored the final state; shutdown did not.
		status = model.JobCancelled
	}
	span.SetAttributes(attribute.String("job.status", string(status)), attribute.Float64("job.score", res.Score))
	r.complete(ctx, job, res, status, log)
}

// solve returns the last result even when it fails mid-way, nil if no
// cycle ran.
func (r *Runner) solve(ctx context.Context, job model.Job, log logging.Logger) (*opt.Result, error) {
	raw, err := r.store.GetTrack(ctx, job.TenantID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("load track: %w", err)
	}
	file, err := igc.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	rules, err := r.rules.Lookup(job.Options.RuleSet)
	if err != nil {
		return nil, err
	}
	cfg := r.cfg.SolverConfig(job.Options)
	track, err := flight.Analyze(file.Fixes, cfg.FlightOptions())
	if err != nil {
		return nil, err
	}
	s, err := opt.New(track, rules, cfg, opt.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	// progress is stored even after the last cycle ran out of time
	bg := context.WithoutCancel(ctx)
	var last *opt.Result
	for {
		res, err := s.Advance(ctx)
		if err != nil {
			return last, err
		}
		last = res
		opt.RecordStats(job.TenantID, job.ID, s.Stats())
		sum := Summarize(res)
		if err := r.store.UpdateProgress(bg, job.TenantID, job.ID, sum); err != nil {
			if errors.Is(err, store.ErrJobState) {
				// cancelled
				return res, nil
			}
			log.Warn(ctx, "store progress", logging.Err(err))
		}
		r.publish(bg, job.ID, model.EventScoreProgress, model.ProgressEvent{
			JobID: job.ID, Status: model.JobRunning, Cycle: res.Cycles, Processed: res.Processed,
			Score: res.Score, Bound: res.Bound, Optimal: res.Optimal, Rule: res.Rule.Name, TS: time.Now().UTC(),
		})
		if res.Optimal || ctx.Err() != nil {
			return res, nil
		}
	}
}

func (r *Runner) complete(ctx context.Context, job model.Job, res *opt.Result, status model.JobStatus, log logging.Logger) {
	// the rendering outlives a shutdown of the job context
	ctx = context.WithoutCancel(ctx)
	fc := render.GeoJSON(res, render.Options{NoFlight: job.Options.NoFlight})
	if doc, err := fc.MarshalJSON(); err != nil {
		log.Warn(ctx, "render geojson", logging.Err(err))
	} else if err := r.store.SaveGeoJSON(ctx, job.TenantID, job.ID, doc); err != nil {
		log.Warn(ctx, "store geojson", logging.Err(err))
	}

	sum := Summarize(res)
	done, err := r.store.FinishJob(ctx, job.TenantID, job.ID, status, &sum, "")
	if errors.Is(err, store.ErrJobState) {
		return
	}
	if err != nil {
		log.Error(ctx, "store final result", logging.Err(err))
		return
	}
	metrics.Jobs.WithLabelValues(string(status)).Inc()
	event := model.EventScoreCompleted
	if status == model.JobCancelled {
		event = model.EventScoreCancelled
	}
	if _, err := r.pub.Emit(ctx, job.TenantID, event, done); err != nil {
		log.Warn(ctx, "emit webhook", logging.Err(err))
	}
	r.publish(ctx, job.ID, event, done)
	log.Info(ctx, "job finished",
		logging.String("status", string(status)),
		logging.String("rule", sum.Rule),
		logging.Float("score", sum.Score),
		logging.Int("processed", sum.Processed))
}

func (r *Runner) fail(ctx context.Context, job model.Job, res *opt.Result, cause error, log logging.Logger) {
	ctx = context.WithoutCancel(ctx)
	var sum *model.ScoreSummary
	if res != nil {
		s := Summarize(res)
		sum = &s
	}
	done, err := r.store.FinishJob(ctx, job.TenantID, job.ID, model.JobFailed, sum, cause.Error())
	if err != nil {
		if !errors.Is(err, store.ErrJobState) {
			log.Error(ctx, "store failure", logging.Err(err))
		}
		return
	}
	metrics.Jobs.WithLabelValues(string(model.JobFailed)).Inc()
	if _, err := r.pub.Emit(ctx, job.TenantID, model.EventScoreFailed, done); err != nil {
		log.Warn(ctx, "emit webhook", logging.Err(err))
	}
	r.publish(ctx, job.ID, model.EventScoreFailed, done)
	log.Warn(ctx, "job failed", logging.Err(cause))
}

func (r *Runner) publish(ctx context.Context, jobID, typ string, data any) {
	if err := r.broker.Publish(ctx, jobID, events.Event{Type: typ, Data: data}); err != nil {
		r.log.Warn(ctx, "publish event", logging.String("job", jobID), logging.Err(err))
	}
}
