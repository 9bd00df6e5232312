package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-rea/internal/platform/cache"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProjectionRebuild refolds a single resource and replaces its snapshot.
	TaskProjectionRebuild = "projection:rebuild"
	// TaskProjectionVerify checks snapshots against their event history.
	TaskProjectionVerify = "projection:verify"
)

// RebuildPayload names the resource whose projection must be rebuilt.
type RebuildPayload struct {
	ResourceID string `json:"resourceId"`
}

// VerifyPayload scopes a verification run. An empty ResourceID verifies every
// resource known to the event store.
type VerifyPayload struct {
	ResourceID  string `json:"resourceId,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// NewRebuildTask constructs a projection rebuild task.
func NewRebuildTask(resourceID string) (*asynq.Task, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, errors.New("jobs: rebuild requires a resource id")
	}
	data, err := json.Marshal(RebuildPayload{ResourceID: resourceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectionRebuild, data), nil
}

// NewVerifyTask constructs a verification task for one resource, or for all of
// them when resourceID is empty.
func NewVerifyTask(resourceID string, concurrency int) (*asynq.Task, error) {
	data, err := json.Marshal(VerifyPayload{ResourceID: strings.TrimSpace(resourceID), Concurrency: concurrency})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProjectionVerify, data), nil
}

// RedisOpt builds asynq connection options from a host:port pair or a
// redis:// URL, matching what the projection cache accepts.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}
