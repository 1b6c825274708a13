package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsWarmup pre-resolves effective permission sets for a
	// tenant's users, typically after bulk role changes.
	TaskPermissionsWarmup = "permissions:warmup"
	// TaskPermissionsFlush drops the whole permission cache. Safe at any
	// time: the cache is a disposable projection of the store.
	TaskPermissionsFlush = "permissions:flush"
)

// PermissionsWarmupPayload scopes a warmup run to one tenant.
type PermissionsWarmupPayload struct {
	TenantID string `json:"tenant_id"`
}

// NewPermissionsWarmupTask constructs an Asynq task.
func NewPermissionsWarmupTask(payload PermissionsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsWarmup, data), nil
}

// NewPermissionsFlushTask constructs an Asynq task.
func NewPermissionsFlushTask() *asynq.Task {
	return asynq.NewTask(TaskPermissionsFlush, nil)
}
