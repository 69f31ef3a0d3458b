/*-------------------------------------------------------------------------
 *
 * stats_queries.go
 *    analysis_stats adaptor for NeuronHive
 *
 * The stats row is the only place two coordinators can collide, so every
 * mutation here is an update-where: the sync lock claim reports whether
 * exactly one row changed, and the counter adjustments clamp at zero on
 * the SQL side.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/stats_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	getStatsByAnalysisIDQuery = `SELECT * FROM analysis_stats WHERE analysis_id = ?`

	/* when_updated is stamped at claim time so the lock TTL measures
	 * from the claim, not from the previous sync */
	claimSyncLockQuery = `
		UPDATE analysis_stats
		SET status = 'SYNCHING', sync_lock = 1, when_updated = %s
		WHERE analysis_id = ? AND sync_lock = 0`

	updateStatsQuery = `
		UPDATE analysis_stats
		SET status = ?, total_job_count = ?, ready_job_count = ?,
			semaphored_job_count = ?, done_job_count = ?, failed_job_count = ?,
			num_required_workers = ?, sync_lock = 0, when_updated = %s
		WHERE analysis_id = ?`

	updateStatsStatusQuery = `UPDATE analysis_stats SET status = ? WHERE analysis_id = ?`

	increaseRequiredWorkersQuery = `
		UPDATE analysis_stats
		SET num_required_workers = num_required_workers + ?
		WHERE analysis_id = ?`

	decreaseRequiredWorkersQuery = `
		UPDATE analysis_stats
		SET num_required_workers = CASE
			WHEN num_required_workers > ? THEN num_required_workers - ?
			ELSE 0 END
		WHERE analysis_id = ?`

	increaseRunningWorkersQuery = `
		UPDATE analysis_stats
		SET num_running_workers = num_running_workers + 1
		WHERE analysis_id = ?`

	decreaseRunningWorkersQuery = `
		UPDATE analysis_stats
		SET num_running_workers = CASE
			WHEN num_running_workers > 0 THEN num_running_workers - 1
			ELSE 0 END
		WHERE analysis_id = ?`

	hiveCurrentLoadQuery = `
		SELECT COALESCE(SUM(1.0 / s.hive_capacity), 0)
		FROM worker w
		JOIN analysis_stats s ON s.analysis_id = w.analysis_id
		WHERE w.died IS NULL AND s.hive_capacity > 0`
)

type StatsQueries struct {
	q *Queries
}

func (s *StatsQueries) FetchByAnalysisID(ctx context.Context, analysisID int64) (*AnalysisStats, error) {
	var stats AnalysisStats
	err := s.q.DB.GetContext(ctx, &stats, getStatsByAnalysisIDQuery, analysisID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis stats not found on %s: analysis_id=%d", s.q.getConnInfoString(), analysisID)
	}
	if err != nil {
		return nil, s.q.formatQueryError("SELECT", getStatsByAnalysisIDQuery, 1, "analysis_stats", err)
	}
	return &stats, nil
}

/* ClaimSyncLock attempts the conditional sync lock claim. Exactly one
 * coordinator observes rows_affected=1; everyone else gets false. */
func (s *StatsQueries) ClaimSyncLock(ctx context.Context, analysisID int64) (bool, error) {
	query := fmt.Sprintf(claimSyncLockQuery, s.q.dialect.Now())
	result, err := s.q.DB.ExecContext(ctx, query, analysisID)
	if err != nil {
		return false, s.q.formatQueryError("UPDATE", query, 1, "analysis_stats", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for sync lock claim on %s: analysis_id=%d, error=%w",
			s.q.getConnInfoString(), analysisID, err)
	}
	return affected == 1, nil
}

/* ReclaimStaleSyncLock takes over a lock whose holder stopped updating the
 * row more than ttlSeconds ago (a coordinator that crashed mid-sync). The
 * takeover restamps when_updated, so only one coordinator reclaims it. */
func (s *StatsQueries) ReclaimStaleSyncLock(ctx context.Context, analysisID int64, ttlSeconds int64) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE analysis_stats
		SET status = 'SYNCHING', when_updated = %s
		WHERE analysis_id = ? AND sync_lock = 1
		  AND (when_updated IS NULL OR %s > ?)`,
		s.q.dialect.Now(), s.q.dialect.SecondsSince("when_updated"))
	result, err := s.q.DB.ExecContext(ctx, query, analysisID, ttlSeconds)
	if err != nil {
		return false, s.q.formatQueryError("UPDATE", query, 2, "analysis_stats", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for stale lock reclaim on %s: analysis_id=%d, error=%w",
			s.q.getConnInfoString(), analysisID, err)
	}
	return affected == 1, nil
}

/* Update persists the recomputed counts and status; writing the row with
 * sync_lock = 0 is what releases the lock. */
func (s *StatsQueries) Update(ctx context.Context, stats *AnalysisStats) error {
	query := fmt.Sprintf(updateStatsQuery, s.q.dialect.Now())
	params := []interface{}{stats.Status, stats.TotalJobCount, stats.ReadyJobCount,
		stats.SemaphoredJobCount, stats.DoneJobCount, stats.FailedJobCount,
		stats.NumRequiredWorkers, stats.AnalysisID}
	if _, err := s.q.DB.ExecContext(ctx, query, params...); err != nil {
		return s.q.formatQueryError("UPDATE", query, len(params), "analysis_stats", err)
	}
	return nil
}

func (s *StatsQueries) UpdateStatus(ctx context.Context, analysisID int64, status AnalysisStatus) error {
	if _, err := s.q.DB.ExecContext(ctx, updateStatsStatusQuery, status, analysisID); err != nil {
		return s.q.formatQueryError("UPDATE", updateStatsStatusQuery, 2, "analysis_stats", err)
	}
	return nil
}

func (s *StatsQueries) IncreaseRequiredWorkers(ctx context.Context, analysisID int64, delta int64) error {
	if _, err := s.q.DB.ExecContext(ctx, increaseRequiredWorkersQuery, delta, analysisID); err != nil {
		return s.q.formatQueryError("UPDATE", increaseRequiredWorkersQuery, 2, "analysis_stats", err)
	}
	return nil
}

func (s *StatsQueries) DecreaseRequiredWorkers(ctx context.Context, analysisID int64, delta int64) error {
	if _, err := s.q.DB.ExecContext(ctx, decreaseRequiredWorkersQuery, delta, delta, analysisID); err != nil {
		return s.q.formatQueryError("UPDATE", decreaseRequiredWorkersQuery, 3, "analysis_stats", err)
	}
	return nil
}

func (s *StatsQueries) IncreaseRunningWorkers(ctx context.Context, analysisID int64) error {
	if _, err := s.q.DB.ExecContext(ctx, increaseRunningWorkersQuery, analysisID); err != nil {
		return s.q.formatQueryError("UPDATE", increaseRunningWorkersQuery, 1, "analysis_stats", err)
	}
	return nil
}

func (s *StatsQueries) DecreaseRunningWorkers(ctx context.Context, analysisID int64) error {
	if _, err := s.q.DB.ExecContext(ctx, decreaseRunningWorkersQuery, analysisID); err != nil {
		return s.q.formatQueryError("UPDATE", decreaseRunningWorkersQuery, 1, "analysis_stats", err)
	}
	return nil
}

/* HiveCurrentLoad sums 1/hive_capacity over live workers of
 * capacity-bounded analyses; 1.0 means the hive is full. */
func (s *StatsQueries) HiveCurrentLoad(ctx context.Context) (float64, error) {
	var load float64
	if err := s.q.DB.GetContext(ctx, &load, hiveCurrentLoadQuery); err != nil {
		return 0, s.q.formatQueryError("SELECT", hiveCurrentLoadQuery, 0, "worker", err)
	}
	return load, nil
}
