/*-------------------------------------------------------------------------
 *
 * sync.go
 *    Analysis statistics synchronizer for NeuronHive
 *
 * Rebuilds analysis_stats aggregates from the job table under the
 * per-analysis sync lock. The lock is claimed by a conditional update so
 * that of any number of concurrent coordinators, exactly one observes
 * rows_affected=1 and runs the rebuild.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/queen/sync.go
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"fmt"
	"time"

	"github.com/neurondb/NeuronHive/internal/db"
	"github.com/neurondb/NeuronHive/internal/metrics"
)

/* SafeSynchronizeStats is the guarded synchronization entry point. It
 * fast-returns the stats untouched when syncing is pointless or unsafe:
 * no analysis, already being synced, already finished, or fresh enough.
 * Otherwise it claims the sync lock and rebuilds. */
func (qn *Queen) SafeSynchronizeStats(ctx context.Context, stats *db.AnalysisStats) (*db.AnalysisStats, error) {
	if stats == nil || stats.AnalysisID == 0 {
		return stats, nil
	}
	if (stats.Status == db.AnalysisSynching && !stats.SyncLock) || stats.Status == db.AnalysisDone {
		return stats, nil
	}
	if stats.SyncLock {
		/* A lock this stale belongs to a coordinator that crashed
		 * mid-sync; take it over instead of honouring it forever. */
		if qn.lockLooksAbandoned(stats) {
			reclaimed, err := qn.queries.Stats().ReclaimStaleSyncLock(ctx, stats.AnalysisID, int64(qn.syncLockTTL.Seconds()))
			if err != nil {
				return stats, err
			}
			if reclaimed {
				return qn.SynchronizeStats(ctx, stats)
			}
		}
		metrics.RecordSyncLockContention()
		return stats, nil
	}
	if stats.Status == db.AnalysisWorking && stats.WhenUpdated != nil &&
		time.Since(*stats.WhenUpdated) < workingFreshness {
		return stats, nil
	}

	claimed, err := qn.queries.Stats().ClaimSyncLock(ctx, stats.AnalysisID)
	if err != nil {
		return stats, err
	}
	if !claimed {
		metrics.RecordSyncLockContention()
		return stats, nil
	}

	return qn.SynchronizeStats(ctx, stats)
}

func (qn *Queen) lockLooksAbandoned(stats *db.AnalysisStats) bool {
	return stats.WhenUpdated == nil || time.Since(*stats.WhenUpdated) > qn.syncLockTTL
}

/* SynchronizeStats rebuilds one analysis' aggregates. In trigger mode
 * the database maintains the live counts and only num_required_workers
 * is recomputed; otherwise the counts come from a GROUP BY over the job
 * table. Persisting the row releases the sync lock. */
func (qn *Queen) SynchronizeStats(ctx context.Context, stats *db.AnalysisStats) (*db.AnalysisStats, error) {
	fresh, err := qn.queries.Stats().FetchByAnalysisID(ctx, stats.AnalysisID)
	if err != nil {
		return stats, err
	}

	if !qn.countTriggers {
		counts, err := qn.queries.Jobs().CountsByStatus(ctx, fresh.AnalysisID)
		if err != nil {
			return stats, err
		}

		var total int64
		for _, n := range counts {
			total += n
		}
		fresh.TotalJobCount = total
		fresh.ReadyJobCount = counts[db.JobReady]
		fresh.SemaphoredJobCount = counts[db.JobSemaphored]
		fresh.FailedJobCount = counts[db.JobFailed]
		fresh.DoneJobCount = counts[db.JobDone] + counts[db.JobPassedOn]
	}

	fresh.NumRequiredWorkers = requiredWorkers(fresh)

	/* Blocking is an operator decision, not derivable from counts: a
	 * BLOCKED analysis stays BLOCKED through a sync (the claim itself
	 * rewrote the row to SYNCHING, so judge the caller's view). */
	if stats.Status == db.AnalysisBlocked || fresh.Status == db.AnalysisBlocked {
		fresh.Status = db.AnalysisBlocked
	} else {
		fresh.Status = determineStatus(fresh)
	}

	fresh.SyncLock = false
	if err := qn.queries.Stats().Update(ctx, fresh); err != nil {
		metrics.RecordSyncPass("error")
		return stats, err
	}

	now := time.Now()
	fresh.WhenUpdated = &now
	metrics.RecordSyncPass("ok")
	return fresh, nil
}

/* requiredWorkers derives how many more workers the analysis needs:
 * ceil(ready/batch_size), clamped for capacity-bounded analyses by the
 * capacity not yet consumed by running workers, never negative. A
 * hive_capacity of 0 disables the clamp. */
func requiredWorkers(stats *db.AnalysisStats) int64 {
	batch := stats.BatchSize
	if batch < 1 {
		batch = 1
	}
	required := (stats.ReadyJobCount + batch - 1) / batch

	if stats.HiveCapacity > 0 {
		unfulfilled := stats.HiveCapacity - stats.NumRunningWorkers
		if unfulfilled < required {
			required = unfulfilled
		}
	}
	if required < 0 {
		required = 0
	}
	return required
}

/* determineStatus derives the visible status from the counts */
func determineStatus(stats *db.AnalysisStats) db.AnalysisStatus {
	switch {
	case stats.TotalJobCount == 0:
		return db.AnalysisReady
	case stats.DoneJobCount == stats.TotalJobCount:
		return db.AnalysisDone
	case stats.DoneJobCount+stats.FailedJobCount == stats.TotalJobCount:
		return db.AnalysisFailed
	case stats.ReadyJobCount == 0 && stats.SemaphoredJobCount == 0:
		return db.AnalysisAllClaimed
	case stats.NumRunningWorkers > 0:
		return db.AnalysisWorking
	default:
		return db.AnalysisReady
	}
}

/* SynchronizeHive syncs every analysis, or just the given one, emitting
 * one progress character per analysis: x for BLOCKED, o otherwise. */
func (qn *Queen) SynchronizeHive(ctx context.Context, filter *db.Analysis) error {
	var analyses []db.Analysis
	if filter != nil {
		analyses = []db.Analysis{*filter}
	} else {
		var err error
		analyses, err = qn.queries.Analyses().FetchAllSuitable(ctx, 0)
		if err != nil {
			return err
		}
	}

	for i := range analyses {
		stats, err := qn.queries.Stats().FetchByAnalysisID(ctx, analyses[i].AnalysisID)
		if err != nil {
			return err
		}
		stats, err = qn.SafeSynchronizeStats(ctx, stats)
		if err != nil {
			return err
		}
		if stats.Status == db.AnalysisBlocked {
			fmt.Fprint(qn.progress, "x")
		} else {
			fmt.Fprint(qn.progress, "o")
		}
	}
	fmt.Fprintln(qn.progress)
	return nil
}

/* HiveCurrentLoad reports the hive's fractional fullness and mirrors it
 * to the load gauge. */
func (qn *Queen) HiveCurrentLoad(ctx context.Context) (float64, error) {
	load, err := qn.queries.Stats().HiveCurrentLoad(ctx)
	if err != nil {
		return 0, err
	}
	metrics.SetHiveLoad(load)
	return load, nil
}
