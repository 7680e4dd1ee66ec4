package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/salla-bridge/salla-bridge/internal/app"
	"github.com/salla-bridge/salla-bridge/internal/erp"
	"github.com/salla-bridge/salla-bridge/internal/platform/cache"
	"github.com/salla-bridge/salla-bridge/internal/platform/db"
	"github.com/salla-bridge/salla-bridge/internal/salla"
	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
	synchttp "github.com/salla-bridge/salla-bridge/internal/sync/http"
	"github.com/salla-bridge/salla-bridge/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auth := salla.NewAuth(salla.AuthConfig{
		ClientID:     cfg.SallaClientID,
		ClientSecret: cfg.SallaClientSecret,
		RedirectURI:  cfg.SallaRedirectURI,
	}, salla.NewPGTokenStore(pool), nil)

	clientOpts := []salla.ClientOption{salla.WithMaxTries(uint(cfg.SallaMaxRetries))}
	if cfg.SallaAPIBaseURL != "" {
		clientOpts = append(clientOpts, salla.WithBaseURL(cfg.SallaAPIBaseURL))
	}
	client := salla.NewClient(auth, logger, clientOpts...)

	items := erp.NewItemRepository(pool)
	categories := erp.NewCategoryRepository(pool)
	orderStatuses := erp.NewOrderStatusRepository(pool)
	salesOrders := erp.NewSalesOrderRepository(pool)
	customers := erp.NewCustomerRepository(pool)

	xrefs := syncengine.NewXrefStore(pool)
	locker := syncengine.NewRedisLocker(redisClient)

	products := syncengine.NewProductSyncManager(client, items, xrefs, locker, logger,
		syncengine.WithPerPage(cfg.SyncPageSize),
		syncengine.WithMaxFailures(cfg.SyncMaxFailures),
		syncengine.WithLanguages(cfg.SallaLang, cfg.SallaAltLang))
	categorySync := syncengine.NewCategorySyncManager(client, categories, xrefs, logger)
	orderSync := syncengine.NewOrderSyncManager(client, salesOrders, orderStatuses, xrefs, logger)
	customerSync := syncengine.NewCustomerSyncManager(client, customers, xrefs, logger)

	jobStore := jobs.NewJobStore(pool)
	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	dispatcher := jobs.NewDispatcher(queueClient.Asynq(), jobStore, logger)

	syncHandler := synchttp.NewHandler(logger, products, categorySync, orderSync, customerSync, dispatcher, jobStore, auth)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		SyncHandler: syncHandler,
		Pool:        pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
