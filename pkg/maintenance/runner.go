// Package maintenance runs the consistency tasks that repair derived state:
// worker ratings and job counts, abandoned briefings and stale jobs.
//
// Every task re-derives its target from source rows and writes through a
// guarded UPDATE, so running a task twice is harmless.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/config"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/store"
)

// Default thresholds.
const (
	DefaultBriefingInactivity = 24 * time.Hour
	DefaultStaleJobAge        = 7 * 24 * time.Hour
)

// Store is the data access the tasks need.
type Store interface {
	WorkerRatingStats(ctx context.Context) ([]store.WorkerRatingStat, error)
	SetWorkerRating(ctx context.Context, workerID string, rating float64) (bool, error)
	ListInactiveSessionIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	AbandonSessionIfInactive(ctx context.Context, id string, cutoff time.Time) (bool, error)
	ListStaleJobIDs(ctx context.Context, cutoff time.Time) ([]string, error)
	FlagJobForReview(ctx context.Context, id string, cutoff time.Time) (bool, error)
	WorkerJobCounts(ctx context.Context) ([]store.WorkerJobCount, error)
	SetWorkerJobCount(ctx context.Context, workerID string, count int) (bool, error)
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Summary reports what one task run did.
type Summary struct {
	Task      string        `json:"task"`
	Examined  int           `json:"examined"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"-"`
}

// MarshalJSON renders Duration as a Go duration string.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	return json.Marshal(struct {
		alias
		Duration string `json:"duration"`
	}{alias: alias(s), Duration: s.Duration.String()})
}

// Outcome is one task's result inside RunAll. Exactly one field is set.
type Outcome struct {
	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Runner executes registered tasks.
type Runner struct {
	store              Store
	briefingInactivity time.Duration
	staleJobAge        time.Duration

	audit  *audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithAudit records each run with r.
func WithAudit(r *audit.Recorder) Option {
	return func(rn *Runner) {
		rn.audit = r
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rn *Runner) {
		rn.logger = logger
	}
}

// WithClock overrides the time source thresholds are measured from.
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) {
		rn.now = now
	}
}

// NewRunner creates a runner over s. Zero thresholds in cfg fall back to
// the defaults.
func NewRunner(s Store, cfg config.MaintenanceConfig, opts ...Option) *Runner {
	r := &Runner{
		store:              s,
		briefingInactivity: cfg.BriefingInactivity,
		staleJobAge:        cfg.StaleJobAge,
		now:                time.Now,
	}
	if r.briefingInactivity <= 0 {
		r.briefingInactivity = DefaultBriefingInactivity
	}
	if r.staleJobAge <= 0 {
		r.staleJobAge = DefaultStaleJobAge
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns the registered tasks in run order.
func (r *Runner) List() []TaskInfo {
	infos := make([]TaskInfo, len(registry))
	for i, t := range registry {
		infos[i] = t.info
	}
	return infos
}

// Run executes the task named id. Per-row failures are counted in the
// summary; a failure of the task as a whole is returned as a TaskError.
func (r *Runner) Run(ctx context.Context, id string) (*Summary, error) {
	t, ok := lookup(id)
	if !ok {
		return nil, nimerrors.NewValidation("RunTask", fmt.Sprintf("unknown maintenance task %q", id))
	}

	start := time.Now()
	sum := &Summary{Task: id, StartedAt: r.now().UTC()}
	err := r.safeRun(ctx, t, sum)
	sum.Duration = time.Since(start)

	outcome := audit.OutcomeSuccess
	details := fmt.Sprintf("examined=%d updated=%d skipped=%d failed=%d", sum.Examined, sum.Updated, sum.Skipped, sum.Failed)
	if err != nil {
		outcome = audit.OutcomeFailure
		details = err.Error()
	}
	r.audit.Record(ctx, audit.ActionMaintenanceRun, id, "", map[string]any{
		"task":      id,
		"startedAt": sum.StartedAt,
	}, outcome, details)

	if err != nil {
		r.logWarn("maintenance task failed", "task", id, "error", err)
		return nil, nimerrors.NewTaskError(id, "task failed", err)
	}

	r.logInfo("maintenance task finished",
		"task", id,
		"examined", sum.Examined,
		"updated", sum.Updated,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"duration", sum.Duration)
	return sum, nil
}

// RunAll executes every task. A failing task does not stop the others.
func (r *Runner) RunAll(ctx context.Context) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(registry))
	for _, t := range registry {
		sum, err := r.Run(ctx, t.info.ID)
		if err != nil {
			outcomes[t.info.ID] = Outcome{Error: nimerrors.FormatUserError(err)}
			continue
		}
		outcomes[t.info.ID] = Outcome{Summary: sum}
	}
	return outcomes
}

// safeRun converts a panicking task into an error.
func (r *Runner) safeRun(ctx context.Context, t task, sum *Summary) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = nimerrors.Newf("panic: %v", p)
		}
	}()
	return t.run(ctx, r, sum)
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Runner) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
