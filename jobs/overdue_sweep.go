package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SweepResult reports what one overdue sweep touched.
type SweepResult struct {
	Invoices       int
	PurchaseOrders int
	Failed         int
}

// OverdueSweepJob recomputes pending documents whose due date passed. The
// overdue status is time-derived and no row change would flip it otherwise.
type OverdueSweepJob struct {
	Source     Source
	Stores     StoreRunner
	Dispatcher *balances.Dispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewOverdueSweepJob wires the sweep handler.
func NewOverdueSweepJob(source Source, stores StoreRunner, dispatcher *balances.Dispatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{
		Source:     source,
		Stores:     stores,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskOverdueSweep tasks.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Stores == nil || j.Dispatcher == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	payload, err := decodeSweep(t)
	if err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskOverdueSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if !payload.ScheduledFor.IsZero() {
		logger = logger.With(slog.Time("scheduled_for", payload.ScheduledFor))
	}
	start := time.Now()
	result, err := j.Run(ctx)
	resultErr = err
	if err != nil {
		logger.Error("overdue sweep incomplete", slog.Int("failed", result.Failed), slog.Any("error", err))
	}
	logger.Info("completed overdue sweep",
		slog.Int("invoices", result.Invoices),
		slog.Int("purchase_orders", result.PurchaseOrders),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// Run recomputes each candidate in its own transaction. A failing document is
// logged and skipped; the joined errors are returned so the task is retried.
func (j *OverdueSweepJob) Run(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	invoices, orders, err := j.Source.PendingPastDue(ctx, j.now())
	if err != nil {
		return result, err
	}
	var errs []error
	visit := func(ids []int64, fn func(context.Context, balances.Store, int64) error, done *int) {
		for _, id := range ids {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return
			}
			err := j.Dispatcher.WithRetry(ctx, func(ctx context.Context) error {
				return j.Stores.WithStore(ctx, func(ctx context.Context, store balances.Store) error {
					return fn(ctx, store, id)
				})
			})
			if err != nil {
				j.logger().Warn("overdue recompute failed", slog.Int64("id", id), slog.Any("error", err))
				result.Failed++
				errs = append(errs, err)
				continue
			}
			*done++
		}
	}
	visit(invoices, j.Dispatcher.RecomputeInvoice, &result.Invoices)
	visit(orders, j.Dispatcher.RecomputePurchaseOrder, &result.PurchaseOrders)
	return result, errors.Join(errs...)
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueSweep))
	}
	return slog.Default().With(slog.String("job", TaskOverdueSweep))
}

func (j *OverdueSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
