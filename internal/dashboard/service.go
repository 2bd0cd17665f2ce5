// Package dashboard assembles the back-office summary from the derived
// balances. The summary is cached per cache version and rebuilt once per
// version no matter how many requests miss concurrently.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
)

// Summary is the dashboard payload.
type Summary struct {
	Receivables      decimal.Decimal `json:"receivables"`
	Payables         decimal.Decimal `json:"payables"`
	OverdueInvoices  int             `json:"overdueInvoices"`
	OverdueAmount    decimal.Decimal `json:"overdueAmount"`
	OpenEstimates    int             `json:"openEstimates"`
	MonthlyRevenue   decimal.Decimal `json:"monthlyRevenue"`
	MonthlyExpenses  decimal.Decimal `json:"monthlyExpenses"`
	LowStockProducts int             `json:"lowStockProducts"`
	GeneratedAt      time.Time       `json:"generatedAt"`
}

// Repository runs one aggregate query per figure.
type Repository interface {
	ContactTotals(ctx context.Context) (receivables, payables decimal.Decimal, err error)
	OverdueInvoices(ctx context.Context) (count int, amount decimal.Decimal, err error)
	OpenEstimates(ctx context.Context) (int, error)
	// RevenueBetween sums approved customer payments dated in [from, to).
	RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	ExpensesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	LowStockProducts(ctx context.Context) (int, error)
}

type Service struct {
	repo   Repository
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the repository with a versioned cache. A nil cache
// disables caching.
func NewService(repo Repository, c *cache.Versioned, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger, now: time.Now}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary")
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard cache key: %w", err)
	}
	res := s.group.DoChan(key, func() (any, error) {
		var summary Summary
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), key, &summary, func(ctx context.Context) (any, error) {
			return s.build(ctx)
		})
		return summary, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return Summary{}, r.Err
		}
		return r.Val.(Summary), nil
	}
}

// Invalidate drops every cached summary. It is registered as a commit hook so
// any committed financial mutation refreshes the dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) build(ctx context.Context) (Summary, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	summary := Summary{GeneratedAt: now}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		summary.Receivables, summary.Payables, err = s.repo.ContactTotals(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary.OverdueInvoices, summary.OverdueAmount, err = s.repo.OverdueInvoices(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary.OpenEstimates, err = s.repo.OpenEstimates(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary.MonthlyRevenue, err = s.repo.RevenueBetween(ctx, monthStart, monthEnd)
		return err
	})
	g.Go(func() error {
		var err error
		summary.MonthlyExpenses, err = s.repo.ExpensesBetween(ctx, monthStart, monthEnd)
		return err
	})
	g.Go(func() error {
		var err error
		summary.LowStockProducts, err = s.repo.LowStockProducts(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return Summary{}, fmt.Errorf("build dashboard: %w", err)
	}
	return summary, nil
}
