package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/salla-bridge/salla-bridge/internal/salla"
	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
)

type memoryJobStore struct {
	jobs      map[uuid.UUID]SyncJob
	createErr error
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[uuid.UUID]SyncJob)}
}

func (s *memoryJobStore) Create(_ context.Context, job SyncJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobStore) Get(_ context.Context, id uuid.UUID) (SyncJob, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return SyncJob{}, ErrJobNotFound
}

func (s *memoryJobStore) MarkRunning(_ context.Context, id uuid.UUID) error {
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusRunning
	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) Finish(_ context.Context, id uuid.UUID, status string, counts syncengine.Counts, errorMessage string) error {
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.Counts = counts
	job.ErrorMessage = errorMessage
	s.jobs[id] = job
	return nil
}

// emptyProductSource serves an empty remote catalog.
type emptyProductSource struct{}

func (emptyProductSource) ListProducts(context.Context, salla.ListOptions) ([]salla.Product, salla.Pagination, error) {
	return nil, salla.Pagination{CurrentPage: 1, TotalPages: 1}, nil
}

func (emptyProductSource) GetProduct(context.Context, string, string) (salla.Product, error) {
	return salla.Product{}, salla.ErrNotFound
}

func (emptyProductSource) GetProductBySKU(context.Context, string) (salla.Product, error) {
	return salla.Product{}, salla.ErrNotFound
}

func (emptyProductSource) CreateProduct(context.Context, salla.ProductInput) (salla.Product, error) {
	return salla.Product{}, errors.New("not implemented")
}

func (emptyProductSource) UpdateProduct(context.Context, string, salla.ProductInput) (salla.Product, error) {
	return salla.Product{}, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestTaskDomain(t *testing.T) {
	cases := map[string]syncengine.Domain{
		TaskProductImport:   syncengine.DomainProducts,
		TaskProductLinks:    syncengine.DomainProducts,
		TaskProductPrices:   syncengine.DomainPrices,
		TaskCategoryRefresh: syncengine.DomainCategories,
		TaskOrderStatuses:   syncengine.DomainOrders,
		TaskCustomerImport:  syncengine.DomainCustomers,
	}
	for taskType, want := range cases {
		domain, err := taskDomain(taskType)
		require.NoError(t, err)
		require.Equal(t, want, domain)
	}

	_, err := taskDomain("sync:bogus:domain")
	require.Error(t, err)
}

func TestDispatchRejectsUnknownTaskType(t *testing.T) {
	store := newMemoryJobStore()
	d := NewDispatcher(nil, store, testLogger())

	_, err := d.Dispatch(context.Background(), "sync:bogus:domain", SyncTaskPayload{})
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	require.Equal(t, "sync:bogus:domain", dErr.TaskType)
	require.ErrorContains(t, err, "unknown task type")

	// No job row may be left behind for a task no worker handles.
	require.Empty(t, store.jobs)
}

func TestDispatchStoreFailure(t *testing.T) {
	store := newMemoryJobStore()
	store.createErr = errors.New("db down")
	d := NewDispatcher(nil, store, testLogger())

	_, err := d.Dispatch(context.Background(), TaskProductImport, SyncTaskPayload{})
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	require.Equal(t, TaskProductImport, dErr.TaskType)
	require.ErrorContains(t, err, "db down")
}

func TestRunnerRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	store := newMemoryJobStore()
	products := syncengine.NewProductSyncManager(emptyProductSource{}, nil, nil, syncengine.NoopLocker{}, testLogger())
	runner := NewRunner(products, nil, nil, nil, store, testLogger())

	jobID := uuid.New()
	require.NoError(t, store.Create(ctx, SyncJob{ID: jobID, TaskType: TaskProductImport, Status: JobStatusQueued}))

	task, err := NewSyncTask(TaskProductImport, SyncTaskPayload{JobID: jobID})
	require.NoError(t, err)
	require.NoError(t, runner.handleProductImport(ctx, task))

	job, err := store.Get(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, job.Status)
	require.Empty(t, job.ErrorMessage)
}

func TestRunnerSkipsMalformedPayload(t *testing.T) {
	runner := NewRunner(nil, nil, nil, nil, newMemoryJobStore(), testLogger())
	task := asynq.NewTask(TaskProductImport, []byte("{not json"))

	err := runner.handleProductImport(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRunnerSkipsUnknownJob(t *testing.T) {
	products := syncengine.NewProductSyncManager(emptyProductSource{}, nil, nil, syncengine.NoopLocker{}, testLogger())
	runner := NewRunner(products, nil, nil, nil, newMemoryJobStore(), testLogger())

	task, err := NewSyncTask(TaskProductImport, SyncTaskPayload{JobID: uuid.New()})
	require.NoError(t, err)
	require.ErrorIs(t, runner.handleProductImport(context.Background(), task), asynq.SkipRetry)
}
