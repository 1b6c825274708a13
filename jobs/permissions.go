package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/freightdesk/freightdesk/internal/access"
	jobmetrics "github.com/freightdesk/freightdesk/internal/jobs"
	"github.com/freightdesk/freightdesk/internal/users"
)

const warmupParallelism = 8

// UserLister enumerates the users of a tenant for warmup fan-out.
type UserLister interface {
	ListUsers(ctx context.Context, tenantID string) ([]users.User, error)
}

// PermissionsJob pre-warms and flushes the permission cache.
type PermissionsJob struct {
	Users    UserLister
	Resolver *access.Resolver
	Cache    access.Cache
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPermissionsJob wires dependencies for the permission cache tasks.
func NewPermissionsJob(userLister UserLister, resolver *access.Resolver, cache access.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsJob {
	return &PermissionsJob{Users: userLister, Resolver: resolver, Cache: cache, Logger: logger, Metrics: metrics}
}

// HandleWarmup resolves every user of the payload tenant so the first
// request after a bulk change does not pay the resolution cost.
func (j *PermissionsJob) HandleWarmup(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resolver == nil || j.Users == nil {
		return errors.New("permissions warmup: handler not configured")
	}
	var payload PermissionsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPermissionsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	list, err := j.Users.ListUsers(ctx, payload.TenantID)
	if err != nil {
		resultErr = err
		return resultErr
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(warmupParallelism)
	for _, u := range list {
		userID := u.ID
		group.Go(func() error {
			if _, err := j.Resolver.Resolve(groupCtx, userID); err != nil {
				j.logger().Warn("warmup resolve", slog.String("user", userID), slog.Any("error", err))
			}
			return nil
		})
	}
	resultErr = group.Wait()
	if resultErr == nil {
		j.logger().Info("permission cache warmed", slog.String("tenant", payload.TenantID), slog.Int("users", len(list)))
	}
	return resultErr
}

// HandleFlush drops the entire permission cache.
func (j *PermissionsJob) HandleFlush(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("permissions flush: handler not configured")
	}
	tracker := j.metrics().Track(TaskPermissionsFlush)
	err := tracker.End(j.Cache.Flush(ctx))
	if err == nil {
		j.logger().Info("permission cache flushed")
	}
	return err
}

func (j *PermissionsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *PermissionsJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
