package maintenance

import (
	"context"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Task ids. These are part of the external API and must not change.
const (
	TaskAggregateWorkerRatings   = "aggregate-worker-ratings"
	TaskCleanupAbandonedBriefing = "cleanup-abandoned-briefings"
	TaskFlagStaleJobs            = "flag-stale-jobs"
	TaskSyncWorkerJobCounts      = "sync-worker-job-counts"
)

type task struct {
	info TaskInfo
	run  func(ctx context.Context, r *Runner, sum *Summary) error
}

var registry = []task{
	{
		info: TaskInfo{
			ID:          TaskAggregateWorkerRatings,
			Name:        "Aggregate worker ratings",
			Description: "Recompute each worker's average rating from the ratings of their completed jobs.",
		},
		run: aggregateWorkerRatings,
	},
	{
		info: TaskInfo{
			ID:          TaskCleanupAbandonedBriefing,
			Name:        "Cleanup abandoned briefings",
			Description: "Mark briefing sessions abandoned when they have been inactive longer than the configured window.",
		},
		run: cleanupAbandonedBriefings,
	},
	{
		info: TaskInfo{
			ID:          TaskFlagStaleJobs,
			Name:        "Flag stale jobs",
			Description: "Flag in-progress jobs for review when their status has not changed within the configured age.",
		},
		run: flagStaleJobs,
	},
	{
		info: TaskInfo{
			ID:          TaskSyncWorkerJobCounts,
			Name:        "Sync worker job counts",
			Description: "Recount each worker's open jobs and correct the stored count.",
		},
		run: syncWorkerJobCounts,
	},
}

func lookup(id string) (task, bool) {
	for _, t := range registry {
		if t.info.ID == id {
			return t, true
		}
	}
	return task{}, false
}

// record tallies the result of one guarded write.
func (r *Runner) record(sum *Summary, subject string, changed bool, err error) {
	switch {
	case err != nil:
		sum.Failed++
		r.logWarn("maintenance row failed", "task", sum.Task, "subject", subject, "error", err)
	case changed:
		sum.Updated++
	default:
		sum.Skipped++
	}
}

func aggregateWorkerRatings(ctx context.Context, r *Runner, sum *Summary) error {
	stats, err := r.store.WorkerRatingStats(ctx)
	if err != nil {
		return nimerrors.Wrap(err, "load worker ratings")
	}
	for _, st := range stats {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Examined++
		if st.RatedJobs == 0 {
			sum.Skipped++
			continue
		}
		changed, err := r.store.SetWorkerRating(ctx, st.WorkerID, st.Mean)
		r.record(sum, st.WorkerID, changed, err)
	}
	return nil
}

func cleanupAbandonedBriefings(ctx context.Context, r *Runner, sum *Summary) error {
	cutoff := r.now().Add(-r.briefingInactivity)
	ids, err := r.store.ListInactiveSessionIDs(ctx, cutoff)
	if err != nil {
		return nimerrors.Wrap(err, "list inactive sessions")
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Examined++
		changed, err := r.store.AbandonSessionIfInactive(ctx, id, cutoff)
		r.record(sum, id, changed, err)
		if changed {
			r.audit.Record(ctx, audit.ActionSessionAbandoned, id, "",
				map[string]any{"reason": "inactive", "cutoff": cutoff}, audit.OutcomeSuccess, "")
		}
	}
	return nil
}

func flagStaleJobs(ctx context.Context, r *Runner, sum *Summary) error {
	cutoff := r.now().Add(-r.staleJobAge)
	ids, err := r.store.ListStaleJobIDs(ctx, cutoff)
	if err != nil {
		return nimerrors.Wrap(err, "list stale jobs")
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Examined++
		changed, err := r.store.FlagJobForReview(ctx, id, cutoff)
		r.record(sum, id, changed, err)
	}
	return nil
}

func syncWorkerJobCounts(ctx context.Context, r *Runner, sum *Summary) error {
	counts, err := r.store.WorkerJobCounts(ctx)
	if err != nil {
		return nimerrors.Wrap(err, "count worker jobs")
	}
	for _, c := range counts {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Examined++
		if c.Stored == c.Live {
			sum.Skipped++
			continue
		}
		changed, err := r.store.SetWorkerJobCount(ctx, c.WorkerID, c.Live)
		r.record(sum, c.WorkerID, changed, err)
	}
	return nil
}
