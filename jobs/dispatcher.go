package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
)

// DispatchError wraps a failure to enqueue a sync job. Callers can report
// the job id of the row left behind in the failed state.
type DispatchError struct {
	JobID    uuid.UUID
	TaskType string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("jobs: dispatch %s (job %s): %v", e.TaskType, e.JobID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// taskDomain maps task types to the sync domain recorded on the job row.
// Unknown task types are rejected: no worker handler would ever pick them
// up, so no job row may be written for them.
func taskDomain(taskType string) (syncengine.Domain, error) {
	switch taskType {
	case TaskProductImport, TaskProductLinks, TaskProductLinkExisting:
		return syncengine.DomainProducts, nil
	case TaskProductPrices:
		return syncengine.DomainPrices, nil
	case TaskCategoryImport, TaskCategoryRefresh:
		return syncengine.DomainCategories, nil
	case TaskOrderImport, TaskOrderStatuses:
		return syncengine.DomainOrders, nil
	case TaskCustomerImport:
		return syncengine.DomainCustomers, nil
	default:
		return "", fmt.Errorf("jobs: unknown task type %q", taskType)
	}
}

// Dispatcher records a job row and hands the task to the queue. The row is
// written first so a job id always resolves, even when the enqueue fails.
type Dispatcher struct {
	client *asynq.Client
	store  JobStore
	logger *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(client *asynq.Client, store JobStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, store: store, logger: logger}
}

// Dispatch queues one background sync run and returns its job row.
func (d *Dispatcher) Dispatch(ctx context.Context, taskType string, payload SyncTaskPayload) (SyncJob, error) {
	domain, err := taskDomain(taskType)
	if err != nil {
		return SyncJob{}, &DispatchError{TaskType: taskType, Err: err}
	}
	payload.JobID = uuid.New()
	job := SyncJob{
		ID:        payload.JobID,
		TaskType:  taskType,
		Domain:    domain,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := d.store.Create(ctx, job); err != nil {
		return SyncJob{}, &DispatchError{JobID: job.ID, TaskType: taskType, Err: err}
	}

	task, err := NewSyncTask(taskType, payload)
	if err != nil {
		return SyncJob{}, d.failDispatch(ctx, job, err)
	}
	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	if err != nil {
		return SyncJob{}, d.failDispatch(ctx, job, err)
	}

	d.logger.Info("sync job dispatched",
		slog.String("job_id", job.ID.String()),
		slog.String("task", taskType),
		slog.String("queue", info.Queue))
	return job, nil
}

func (d *Dispatcher) failDispatch(ctx context.Context, job SyncJob, cause error) error {
	if err := d.store.Finish(ctx, job.ID, JobStatusFailed, syncengine.Counts{}, cause.Error()); err != nil {
		d.logger.Error("mark dispatch failure", slog.String("job_id", job.ID.String()), slog.Any("error", err))
	}
	return &DispatchError{JobID: job.ID, TaskType: job.TaskType, Err: cause}
}
