package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-rea/internal/app"
	"github.com/odyssey-erp/odyssey-rea/jobs"
)

// JobsCLI enqueues projection jobs by hand and reads queue depth.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI connects to the queue at redisAddr (host:port or redis:// URL).
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: REDIS_ADDR is not set")
	}
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close shuts both Redis connections and reports every failure.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a projection job by name. rebuild requires a resource id;
// verify without one covers every resource.
func (c *JobsCLI) Trigger(ctx context.Context, name, resourceID string, concurrency int) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case "rebuild", jobs.TaskProjectionRebuild:
		return c.client.EnqueueRebuild(ctx, resourceID, asynq.MaxRetry(3))
	case "verify", jobs.TaskProjectionVerify:
		return c.client.EnqueueVerify(ctx, resourceID, concurrency)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats counts tasks in the default queue by state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reads QueueStats from Redis.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

type jobsOptions struct {
	*RootOptions
	Concurrency int
}

// NewJobsCommand groups the queue subcommands.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &jobsOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect projection jobs",
	}

	trigger := &cobra.Command{
		Use:   "trigger <rebuild|verify> [id]",
		Short: "Enqueue a projection rebuild or verification",
		Example: `  reactl jobs trigger rebuild 0190f7a2-...
  reactl jobs trigger verify --concurrency 8`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			if (args[0] == "rebuild" || args[0] == jobs.TaskProjectionRebuild) && len(args) != 2 {
				return WrapExitError(ExitCommandError, "rebuild requires a resource id", nil)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, err := jobsFromEnv()
			if err != nil {
				return err
			}
			defer jc.Close()

			var resourceID string
			if len(args) == 2 {
				resourceID = args[1]
			}
			info, err := jc.Trigger(cmd.Context(), args[0], resourceID, opts.Concurrency)
			if err != nil {
				return WrapExitError(ExitCommandError, "enqueue job", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "parallelism for verify (0 uses the worker default)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth for the projection queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, err := jobsFromEnv()
			if err != nil {
				return err
			}
			defer jc.Close()

			stats, err := jc.InspectQueue()
			if err != nil {
				return WrapExitError(ExitCommandError, "inspect queue", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func jobsFromEnv() (*JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	jc, err := NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "connect queue", err)
	}
	return jc, nil
}
