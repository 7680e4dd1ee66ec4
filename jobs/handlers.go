package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
)

// Runner executes queued sync tasks against the sync managers and records
// each run's outcome on its job row.
type Runner struct {
	products   *syncengine.ProductSyncManager
	categories *syncengine.CategorySyncManager
	orders     *syncengine.OrderSyncManager
	customers  *syncengine.CustomerSyncManager
	store      JobStore
	logger     *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(products *syncengine.ProductSyncManager, categories *syncengine.CategorySyncManager, orders *syncengine.OrderSyncManager, customers *syncengine.CustomerSyncManager, store JobStore, logger *slog.Logger) *Runner {
	return &Runner{products: products, categories: categories, orders: orders, customers: customers, store: store, logger: logger}
}

// Handlers returns the task registrations for the worker mux.
func (r *Runner) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskProductImport, Handler: r.handleProductImport},
		{Type: TaskProductPrices, Handler: r.handleProductPrices},
		{Type: TaskProductLinks, Handler: r.handleProductLinks},
		{Type: TaskProductLinkExisting, Handler: r.handleProductLinkExisting},
		{Type: TaskCategoryImport, Handler: r.handleCategoryImport},
		{Type: TaskCategoryRefresh, Handler: r.handleCategoryRefresh},
		{Type: TaskOrderImport, Handler: r.handleOrderImport},
		{Type: TaskOrderStatuses, Handler: r.handleOrderStatuses},
		{Type: TaskCustomerImport, Handler: r.handleCustomerImport},
	}
}

func (r *Runner) handleProductImport(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, payload SyncTaskPayload) syncengine.Result {
		return r.products.ImportAll(ctx, syncengine.ImportOptions{SKUFilter: payload.SKUFilter})
	})
}

func (r *Runner) handleProductPrices(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.products.ImportPrices(ctx)
	})
}

func (r *Runner) handleProductLinks(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.products.CreateLinks(ctx)
	})
}

func (r *Runner) handleProductLinkExisting(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.products.LinkExisting(ctx)
	})
}

func (r *Runner) handleCategoryImport(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.categories.ImportAll(ctx)
	})
}

func (r *Runner) handleCategoryRefresh(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.categories.SyncAll(ctx)
	})
}

func (r *Runner) handleOrderImport(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.orders.ImportOrders(ctx)
	})
}

func (r *Runner) handleOrderStatuses(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.orders.ImportStatuses(ctx)
	})
}

func (r *Runner) handleCustomerImport(ctx context.Context, t *asynq.Task) error {
	return r.execute(ctx, t, func(ctx context.Context, _ SyncTaskPayload) syncengine.Result {
		return r.customers.ImportAll(ctx)
	})
}

// execute runs one sync pass and records its outcome. The run result is
// always written to the job row; a failed run is terminal, not retried,
// since every manager already retries transient remote errors internally.
func (r *Runner) execute(ctx context.Context, t *asynq.Task, fn func(context.Context, SyncTaskPayload) syncengine.Result) error {
	var payload SyncTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		r.logger.Error("malformed task payload", slog.String("task", t.Type()), slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := r.store.MarkRunning(ctx, payload.JobID); err != nil {
		r.logger.Error("mark job running", slog.String("job_id", payload.JobID.String()), slog.Any("error", err))
		return asynq.SkipRetry
	}

	result := fn(ctx, payload)

	status := JobStatusCompleted
	if result.Status != syncengine.StatusSuccess {
		status = JobStatusFailed
	}
	message := ""
	if status == JobStatusFailed {
		message = result.Message
	}
	if err := r.store.Finish(ctx, payload.JobID, status, result.Counts, message); err != nil {
		r.logger.Error("record job outcome", slog.String("job_id", payload.JobID.String()), slog.Any("error", err))
		return err
	}
	r.logger.Info("sync job finished",
		slog.String("job_id", payload.JobID.String()),
		slog.String("task", t.Type()),
		slog.String("status", status),
		slog.Int("created", result.Counts.Created),
		slog.Int("updated", result.Counts.Updated),
		slog.Int("linked", result.Counts.Linked),
		slog.Int("failed", result.Counts.Failed))
	return nil
}
