package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskProductImport imports the full Salla catalog.
	TaskProductImport = "sync:products:import"
	// TaskProductPrices imports remote prices onto local items.
	TaskProductPrices = "sync:products:prices"
	// TaskProductLinks creates cross-references for local items present in Salla.
	TaskProductLinks = "sync:products:links"
	// TaskProductLinkExisting links remote products onto existing local items.
	TaskProductLinkExisting = "sync:products:link-existing"
	// TaskCategoryImport imports remote categories.
	TaskCategoryImport = "sync:categories:import"
	// TaskCategoryRefresh deep-refreshes remote categories.
	TaskCategoryRefresh = "sync:categories:refresh"
	// TaskOrderImport imports remote orders.
	TaskOrderImport = "sync:orders:import"
	// TaskOrderStatuses imports the merchant's order status definitions.
	TaskOrderStatuses = "sync:orders:statuses"
	// TaskCustomerImport imports the store's customers.
	TaskCustomerImport = "sync:customers:import"
)

// SyncTaskPayload identifies the job row a task belongs to plus the
// per-task knobs.
type SyncTaskPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	SKUFilter string    `json:"sku_filter,omitempty"`
}

// NewSyncTask constructs an Asynq task of the given type.
func NewSyncTask(taskType string, payload SyncTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
