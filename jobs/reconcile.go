package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// Committer runs a transaction body with the conflict retry policy.
type Committer interface {
	WithRetry(ctx context.Context, fn func(context.Context) error) error
}

// ReconcileResult counts visited and rewritten aggregates.
type ReconcileResult struct {
	Checked int
	Drift   map[balances.Aggregate]int
	Failed  int
}

// Drifted sums drift over every aggregate kind.
func (r ReconcileResult) Drifted() int {
	total := 0
	for _, n := range r.Drift {
		total += n
	}
	return total
}

// ReconcileJob recomputes every document and then every contact. Children
// are visited before parents so a single pass converges without fan-out.
type ReconcileJob struct {
	Source    Source
	Stores    StoreRunner
	Recompute balances.Recomputer
	Committer Committer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

type reconcileStep struct {
	agg balances.Aggregate
	fn  func(context.Context, balances.Store, int64) (balances.Outcome, error)
}

// NewReconcileJob wires the reconciliation handler.
func NewReconcileJob(source Source, stores StoreRunner, recompute balances.Recomputer, committer Committer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{
		Source:    source,
		Stores:    stores,
		Recompute: recompute,
		Committer: committer,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Handle processes TaskReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Stores == nil || j.Recompute == nil || j.Committer == nil {
		return errors.New("reconcile: handler not configured")
	}
	if _, err := decodeSweep(t); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	result, err := j.Run(ctx)
	resultErr = err
	logger := j.logger()
	if err != nil {
		logger.Error("reconcile incomplete", slog.Int("failed", result.Failed), slog.Any("error", err))
	}
	for agg, n := range result.Drift {
		j.metrics().AddDrift(string(agg), n)
	}
	logger.Info("completed reconcile",
		slog.Int("checked", result.Checked),
		slog.Int("drifted", result.Drifted()),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// Run visits invoices, estimates, purchase orders and contacts in that order.
func (j *ReconcileJob) Run(ctx context.Context) (ReconcileResult, error) {
	result := ReconcileResult{Drift: map[balances.Aggregate]int{}}
	steps := []reconcileStep{
		{balances.AggregateInvoice, j.Recompute.RecomputeInvoice},
		{balances.AggregateEstimate, j.Recompute.RecomputeEstimate},
		{balances.AggregatePurchaseOrder, j.Recompute.RecomputePurchaseOrder},
		{balances.AggregateContact, j.Recompute.RecomputeContactBalance},
	}
	var errs []error
	for _, step := range steps {
		ids, err := j.Source.AggregateIDs(ctx, step.agg)
		if err != nil {
			return result, fmt.Errorf("list %s: %w", step.agg, err)
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return result, errors.Join(append(errs, err)...)
			}
			changed, err := j.reconcile(ctx, step, id)
			if err != nil {
				j.logger().Warn("reconcile failed", slog.String("aggregate", string(step.agg)), slog.Int64("id", id), slog.Any("error", err))
				result.Failed++
				errs = append(errs, err)
				continue
			}
			result.Checked++
			if changed {
				j.logger().Warn("balance drift corrected", slog.String("aggregate", string(step.agg)), slog.Int64("id", id))
				result.Drift[step.agg]++
			}
		}
	}
	return result, errors.Join(errs...)
}

func (j *ReconcileJob) reconcile(ctx context.Context, step reconcileStep, id int64) (bool, error) {
	var changed bool
	err := j.Committer.WithRetry(ctx, func(ctx context.Context) error {
		changed = false
		return j.Stores.WithStore(ctx, func(ctx context.Context, store balances.Store) error {
			out, err := step.fn(ctx, store, id)
			if err != nil {
				return err
			}
			changed = out.Changed
			return nil
		})
	})
	return changed, err
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcile))
	}
	return slog.Default().With(slog.String("job", TaskReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
