// Package scheduler runs the periodic pool refresh.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/defi-yield-agent/internal/metrics"
	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/tracing"
)

// Defaults for Options
const (
	DefaultSpec      = "0 */6 * * *"
	DefaultBatchSize = 100
)

// Cycle results
const (
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// PoolSource produces the enriched pool list for one cycle
type PoolSource interface {
	Enrich(ctx context.Context) ([]model.Pool, error)
}

// PoolWriter persists one batch of pools keyed on pool_id
type PoolWriter interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
}

// Options configures a Scheduler
type Options struct {
	// Spec is a standard five-field cron expression
	Spec      string
	BatchSize int
	Metrics   *metrics.Metrics

	// OnRefresh runs after a cycle that persisted at least one batch
	OnRefresh func(ctx context.Context)
}

// CycleReport describes one refresh cycle
type CycleReport struct {
	Result        string    `json:"result"`
	Skipped       bool      `json:"skipped"`
	Fetched       int       `json:"fetched"`
	Batches       int       `json:"batches"`
	FailedBatches int       `json:"failed_batches"`
	Upserted      int       `json:"upserted"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`

	err error
}

// Err returns the error that ended the cycle early, if any
func (r CycleReport) Err() error {
	return r.err
}

// Scheduler refreshes pools on a cron cadence. At most one cycle runs at a time;
// triggers that arrive while a cycle is in flight are dropped.
type Scheduler struct {
	source    PoolSource
	writer    PoolWriter
	spec      string
	batchSize int
	metrics   *metrics.Metrics
	onRefresh func(ctx context.Context)

	cron    *cron.Cron
	running atomic.Bool

	// held for the duration of a cycle so Stop can wait on it
	cycleMu sync.Mutex
	startWG sync.WaitGroup

	mu   sync.RWMutex
	last *CycleReport
}

// New creates a Scheduler. Nothing runs until Start or RunCycle is called.
func New(source PoolSource, writer PoolWriter, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		source:    source,
		writer:    writer,
		spec:      opts.Spec,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		onRefresh: opts.OnRefresh,
	}
}

// Start fires one cycle immediately in the background and registers the recurring trigger
func (s *Scheduler) Start() error {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(s.spec, func() {
		logrus.Info("Scheduled pool refresh triggered")
		s.RunCycle(context.Background())
	}); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	s.cron = c

	s.startWG.Add(1)
	go func() {
		defer s.startWG.Done()
		s.RunCycle(context.Background())
	}()

	c.Start()
	logrus.WithFields(logrus.Fields{
		"spec":       s.spec,
		"batch_size": s.batchSize,
	}).Info("Pool refresh scheduler started")
	return nil
}

// Stop halts the recurring trigger, waits for an in-flight cycle and resets the guard
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.startWG.Wait()

	s.cycleMu.Lock()
	s.running.Store(false)
	s.cycleMu.Unlock()

	logrus.Info("Pool refresh scheduler stopped")
}

// Running reports whether a cycle is in flight
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastReport returns the most recent non-skipped cycle
func (s *Scheduler) LastReport() (CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// RunCycle enriches and persists pools once. It returns immediately with Skipped set
// when another cycle is running. Errors are logged and reported, never returned.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport) {
	if !s.running.CompareAndSwap(false, true) {
		logrus.Info("Pool update already running, skipping")
		s.metrics.ObserveCycle(ResultSkipped, 0, 0)
		return CycleReport{Result: ResultSkipped, Skipped: true}
	}

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	defer s.running.Store(false)

	// cancelling the trigger does not abort a started cycle
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Tracer().Start(ctx, "scheduler.RunCycle")
	defer span.End()

	report.StartedAt = time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			report.err = fmt.Errorf("refresh cycle panicked: %v", r)
			report.Error = report.err.Error()
			report.Result = ResultFailed
			logrus.WithField("panic", r).Error("Pool refresh cycle panicked")
		}
		report.FinishedAt = time.Now().UTC()
		s.finish(ctx, report)
	}()

	logrus.Info("Starting pool data update")
	pools, err := s.source.Enrich(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		logrus.WithError(err).Error("Error updating pools data")
		report.err = err
		report.Error = err.Error()
		report.Result = ResultFailed
		return report
	}
	report.Fetched = len(pools)

	logrus.WithField("count", len(pools)).Info("Upserting pools to database")
	for i := 0; i < len(pools); i += s.batchSize {
		end := min(i+s.batchSize, len(pools))
		batch := pools[i:end]
		n := i/s.batchSize + 1
		report.Batches++

		if err := s.writer.UpsertPools(ctx, batch); err != nil {
			report.FailedBatches++
			logrus.WithFields(logrus.Fields{
				"batch": n,
				"size":  len(batch),
			}).WithError(err).Error("Error upserting batch")
			continue
		}
		report.Upserted += len(batch)
		logrus.WithFields(logrus.Fields{
			"batch": n,
			"size":  len(batch),
		}).Debug("Upserted batch")
	}

	switch {
	case report.FailedBatches == 0:
		report.Result = ResultOK
	case report.FailedBatches < report.Batches:
		report.Result = ResultPartial
	default:
		report.Result = ResultFailed
	}

	span.SetAttributes(
		attribute.Int("pools.fetched", report.Fetched),
		attribute.Int("pools.upserted", report.Upserted),
		attribute.Int("batches.failed", report.FailedBatches),
	)
	return report
}

func (s *Scheduler) finish(ctx context.Context, report CycleReport) {
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.metrics.ObserveCycle(report.Result, report.Upserted, report.FailedBatches)
	logrus.WithFields(logrus.Fields{
		"result":         report.Result,
		"fetched":        report.Fetched,
		"upserted":       report.Upserted,
		"failed_batches": report.FailedBatches,
		"duration":       report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Pool data update finished")

	if report.Upserted > 0 && s.onRefresh != nil {
		s.onRefresh(ctx)
	}
}
