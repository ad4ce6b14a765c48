// Package counters maintains incremental per-task interaction counters in
// Redis. The ingestor bumps counters as interaction events arrive, and the
// analytics service reads them as a fast path before falling back to the
// event store.
package counters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gangplankhq/gangplank/pkg/models"
)

const (
	keyPrefix = "gangplank:counters"

	// seenTTL bounds the per-event dedup keys; it only needs to outlive the
	// bus redelivery window.
	seenTTL = 24 * time.Hour
)

// Counters tracks viewed/completed tallies and time-spent sums per
// (flow, tenant, task) triple.
type Counters struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewCounters(client redis.UniversalClient, logger *slog.Logger) *Counters {
	return &Counters{
		client: client,
		logger: logger.With("module", "counters"),
	}
}

// NewClientFromEnv builds a redis client from a redis:// URL. It pings the
// server before returning so a misconfigured address fails at startup.
func NewClientFromEnv(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is not set")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func taskKey(flowID, tenantID, taskID, field string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, flowID, tenantID, taskID, field)
}

// RecordInteraction bumps the counters affected by a single interaction
// event. Events that carry no task ID and no time measurement are ignored.
// A SETNX marker per event ID keeps the bumps idempotent across bus
// redeliveries.
func (c *Counters) RecordInteraction(ctx context.Context, event *models.InteractionEvent) error {
	pipe := c.client.Pipeline()
	queued := false

	if event.TaskID != "" {
		switch event.Type {
		case models.InteractionTaskViewed:
			pipe.Incr(ctx, taskKey(event.FlowID, event.TenantID, event.TaskID, "viewed"))

			queued = true
		case models.InteractionTaskCompleted:
			pipe.Incr(ctx, taskKey(event.FlowID, event.TenantID, event.TaskID, "completed"))

			queued = true
		}

		if event.TimeSpentSeconds > 0 {
			pipe.IncrByFloat(ctx, taskKey(event.FlowID, event.TenantID, event.TaskID, "time_sum"), event.TimeSpentSeconds)
			pipe.Incr(ctx, taskKey(event.FlowID, event.TenantID, event.TaskID, "time_n"))

			queued = true
		}
	}

	if !queued {
		return nil
	}

	if event.ID != "" {
		fresh, err := c.client.SetNX(ctx, keyPrefix+":seen:"+event.ID, 1, seenTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to mark interaction as counted: %w", err)
		}

		if !fresh {
			// Already counted on an earlier delivery.
			pipe.Discard()

			return nil
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record interaction counters: %w", err)
	}

	return nil
}

// TaskCounts returns the viewed and completed tallies for a task. A missing
// key reads as zero.
func (c *Counters) TaskCounts(ctx context.Context, flowID, tenantID, taskID string) (viewed, completed int64, err error) {
	pipe := c.client.Pipeline()
	viewedCmd := pipe.Get(ctx, taskKey(flowID, tenantID, taskID, "viewed"))
	completedCmd := pipe.Get(ctx, taskKey(flowID, tenantID, taskID, "completed"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("failed to read task counters: %w", err)
	}

	viewed, err = intResult(viewedCmd)
	if err != nil {
		return 0, 0, err
	}

	completed, err = intResult(completedCmd)
	if err != nil {
		return 0, 0, err
	}

	return viewed, completed, nil
}

// AvgTimeSpentSeconds returns the mean time spent on a task, or zero when no
// time has been recorded.
func (c *Counters) AvgTimeSpentSeconds(ctx context.Context, flowID, tenantID, taskID string) (float64, error) {
	pipe := c.client.Pipeline()
	sumCmd := pipe.Get(ctx, taskKey(flowID, tenantID, taskID, "time_sum"))
	countCmd := pipe.Get(ctx, taskKey(flowID, tenantID, taskID, "time_n"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read time counters: %w", err)
	}

	sum, err := floatResult(sumCmd)
	if err != nil {
		return 0, err
	}

	count, err := intResult(countCmd)
	if err != nil {
		return 0, err
	}

	if count == 0 {
		return 0, nil
	}

	return sum / float64(count), nil
}

func intResult(cmd *redis.StringCmd) (int64, error) {
	val, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter value is not an integer: %w", err)
	}

	return n, nil
}

func floatResult(cmd *redis.StringCmd) (float64, error) {
	val, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("counter value is not a number: %w", err)
	}

	return f, nil
}
