package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-books/internal/app"
	"github.com/odyssey-erp/odyssey-books/internal/auth"
	"github.com/odyssey-erp/odyssey-books/internal/balances"
	"github.com/odyssey-erp/odyssey-books/internal/contacts"
	"github.com/odyssey-erp/odyssey-books/internal/dashboard"
	"github.com/odyssey-erp/odyssey-books/internal/estimates"
	"github.com/odyssey-erp/odyssey-books/internal/expenses"
	"github.com/odyssey-erp/odyssey-books/internal/invoices"
	"github.com/odyssey-erp/odyssey-books/internal/messages"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/portal"
	"github.com/odyssey-erp/odyssey-books/internal/products"
	"github.com/odyssey-erp/odyssey-books/internal/purchasing"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
	"github.com/odyssey-erp/odyssey-books/internal/webhook"
	"github.com/odyssey-erp/odyssey-books/jobs"
)

const sessionCookie = "odyssey_books_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && cli.IsCommand(os.Args[1]) {
		code := cli.Run(ctx, os.Args[1:], cli.Env{
			Jobs: func() (*cli.JobsCLI, error) {
				return cli.NewJobsCLI(cfg.RedisAddr), nil
			},
			Users: func(ctx context.Context) (*cli.UsersCLI, func(), error) {
				pool, err := db.New(ctx, cfg.PGDSN, 2)
				if err != nil {
					return nil, nil, err
				}
				return cli.NewUsersCLI(auth.NewService(auth.NewRepository(pool))), pool.Close, nil
			},
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		})
		stop()
		os.Exit(code)
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	dispatcher := balances.NewDispatcher(balances.NewRecalculator(nil), logger, metrics.Balances())

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool, logger)
	validate := httpx.NewValidator()

	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	dashboardService := dashboard.NewService(
		dashboard.NewRepository(dbpool),
		cache.NewVersioned(redisClient, "books", cfg.DashboardCacheTTL),
		logger,
	)
	dispatcher.OnCommit(dashboardService.Invalidate)

	authService := auth.NewService(auth.NewRepository(dbpool))
	contactsService := contacts.NewService(contacts.NewRepository(dbpool), dispatcher, auditLogger, logger)
	productsService := products.NewService(products.NewRepository(dbpool), dispatcher)
	invoicesService := invoices.NewService(invoices.NewRepository(dbpool), dispatcher, auditLogger, logger)
	estimatesService := estimates.NewService(estimates.NewRepository(dbpool), dispatcher, auditLogger, logger)
	purchasingService := purchasing.NewService(purchasing.NewRepository(dbpool), dispatcher, auditLogger, logger)
	expensesService := expenses.NewService(expenses.NewRepository(dbpool), dispatcher, auditLogger, logger)
	messagesService := messages.NewService(messages.NewRepository(dbpool), dispatcher, auditLogger, logger)
	webhookService := webhook.NewService(balances.NewPGRunner(dbpool), dispatcher, logger)
	portalService := portal.NewService(
		portal.NewRepository(dbpool),
		portal.NewTokenStore(redisClient, cfg.PortalSessionTTL),
		logger,
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is empty, /api/webhook is disabled")
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager, validate),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, rbacMiddleware),
		ContactsHandler:    contacts.NewHandler(logger, contactsService, validate, rbacMiddleware),
		ProductsHandler:    products.NewHandler(logger, productsService, validate, rbacMiddleware),
		InvoicesHandler:    invoices.NewHandler(logger, invoicesService, validate, rbacMiddleware),
		EstimatesHandler:   estimates.NewHandler(logger, estimatesService, validate, rbacMiddleware),
		PurchasingHandler:  purchasing.NewHandler(logger, purchasingService, validate, rbacMiddleware),
		ExpensesHandler:    expenses.NewHandler(logger, expensesService, validate, rbacMiddleware),
		MessagesHandler:    messages.NewHandler(logger, messagesService, validate, rbacMiddleware),
		WebhookHandler:     webhook.NewHandler(logger, webhookService, validate, cfg.WebhookSecret, cfg.WebhookInternalOnly),
		PortalHandler:      portal.NewHandler(logger, portalService, validate),
		DashboardHandler:   dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
