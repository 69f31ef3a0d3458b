/*-------------------------------------------------------------------------
 *
 * worker_queries.go
 *    Worker adaptor for NeuronHive
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/worker_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	insertWorkerQuery = `
		INSERT INTO worker (meadow_type, meadow_name, host, process_id, resource_class_id, beekeeper_id, status)
		VALUES (?, ?, ?, ?, ?, ?, 'READY')`

	getWorkerByIDQuery = `SELECT * FROM worker WHERE worker_id = ?`

	updateWorkerLogDirQuery = `UPDATE worker SET log_dir = ? WHERE worker_id = ?`

	bindWorkerToAnalysisQuery = `UPDATE worker SET analysis_id = ? WHERE worker_id = ?`

	checkInWorkerQuery = `
		UPDATE worker SET last_check_in = %s, status = ?, work_done = ?
		WHERE worker_id = ?`

	/* The died IS NULL guard makes death registration idempotent: the
	 * second caller affects zero rows and must not touch counters. */
	registerWorkerDeathQuery = `
		UPDATE worker
		SET died = %s, last_check_in = %s, status = 'DEAD', work_done = ?, cause_of_death = ?
		WHERE worker_id = ? AND died IS NULL`

	listAliveWorkersQuery = `SELECT * FROM worker WHERE status != 'DEAD' ORDER BY worker_id`

	countAliveWorkersQuery = `SELECT COUNT(*) FROM worker WHERE died IS NULL`

	listBuriedInHasteQuery = `
		SELECT DISTINCT w.* FROM worker w
		JOIN job j ON j.worker_id = w.worker_id
		WHERE w.status = 'DEAD'
		  AND j.status NOT IN ('DONE', 'READY', 'FAILED', 'PASSED_ON')
		ORDER BY w.worker_id`

	listWorkerIntervalsQuery = `
		SELECT w.analysis_id, a.logic_name, w.born, w.died
		FROM worker w
		JOIN analysis_base a ON a.analysis_id = w.analysis_id
		WHERE w.analysis_id IS NOT NULL
		  AND w.born < ?
		  AND (w.died IS NULL OR w.died > ?)`

	/* LIMIT 1 over ordered columns instead of MIN()/MAX(): the sqlite
	 * driver only type-maps declared columns, not aggregate expressions. */
	minBornQuery      = `SELECT born FROM worker ORDER BY born ASC LIMIT 1`
	maxDiedQuery      = `SELECT died FROM worker WHERE died IS NOT NULL ORDER BY died DESC LIMIT 1`
	countWorkersQuery = `SELECT COUNT(*) FROM worker`
)

type WorkerQueries struct {
	q *Queries
}

/* Insert creates a worker row with born and last_check_in assigned by the
 * database, then reads the full row back so the handle carries them. */
func (w *WorkerQueries) Insert(ctx context.Context, worker *Worker) error {
	params := []interface{}{worker.MeadowType, worker.MeadowName, worker.Host,
		worker.ProcessID, worker.ResourceClassID, worker.BeekeeperID}
	result, err := w.q.DB.ExecContext(ctx, insertWorkerQuery, params...)
	if err != nil {
		return w.q.formatQueryError("INSERT", insertWorkerQuery, len(params), "worker", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read worker id after insert on %s: %w", w.q.getConnInfoString(), err)
	}

	fetched, err := w.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	*worker = *fetched
	return nil
}

func (w *WorkerQueries) FetchByID(ctx context.Context, id int64) (*Worker, error) {
	var worker Worker
	err := w.q.DB.GetContext(ctx, &worker, getWorkerByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker not found on %s: worker_id=%d", w.q.getConnInfoString(), id)
	}
	if err != nil {
		return nil, w.q.formatQueryError("SELECT", getWorkerByIDQuery, 1, "worker", err)
	}
	return &worker, nil
}

func (w *WorkerQueries) UpdateLogDir(ctx context.Context, workerID int64, logDir string) error {
	if _, err := w.q.DB.ExecContext(ctx, updateWorkerLogDirQuery, logDir, workerID); err != nil {
		return w.q.formatQueryError("UPDATE", updateWorkerLogDirQuery, 2, "worker", err)
	}
	return nil
}

func (w *WorkerQueries) BindToAnalysis(ctx context.Context, workerID, analysisID int64) error {
	if _, err := w.q.DB.ExecContext(ctx, bindWorkerToAnalysisQuery, analysisID, workerID); err != nil {
		return w.q.formatQueryError("UPDATE", bindWorkerToAnalysisQuery, 2, "worker", err)
	}
	return nil
}

/* CheckIn refreshes last_check_in, status and work_done in one update */
func (w *WorkerQueries) CheckIn(ctx context.Context, workerID int64, status WorkerStatus, workDone int64) error {
	query := fmt.Sprintf(checkInWorkerQuery, w.q.dialect.Now())
	if _, err := w.q.DB.ExecContext(ctx, query, status, workDone, workerID); err != nil {
		return w.q.formatQueryError("UPDATE", query, 3, "worker", err)
	}
	return nil
}

/* RegisterDeath marks the worker DEAD; returns false when the worker was
 * already dead and nothing changed. */
func (w *WorkerQueries) RegisterDeath(ctx context.Context, workerID int64, workDone int64, cause WorkerCause) (bool, error) {
	now := w.q.dialect.Now()
	query := fmt.Sprintf(registerWorkerDeathQuery, now, now)
	result, err := w.q.DB.ExecContext(ctx, query, workDone, cause, workerID)
	if err != nil {
		return false, w.q.formatQueryError("UPDATE", query, 3, "worker", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for worker death on %s: worker_id=%d, error=%w",
			w.q.getConnInfoString(), workerID, err)
	}
	return affected == 1, nil
}

/* FetchAllAlive lists every worker not yet marked DEAD */
func (w *WorkerQueries) FetchAllAlive(ctx context.Context) ([]Worker, error) {
	var workers []Worker
	if err := w.q.DB.SelectContext(ctx, &workers, listAliveWorkersQuery); err != nil {
		return nil, w.q.formatQueryError("SELECT", listAliveWorkersQuery, 0, "worker", err)
	}
	return workers, nil
}

func (w *WorkerQueries) CountAlive(ctx context.Context) (int64, error) {
	var count int64
	if err := w.q.DB.GetContext(ctx, &count, countAliveWorkersQuery); err != nil {
		return 0, w.q.formatQueryError("SELECT", countAliveWorkersQuery, 0, "worker", err)
	}
	return count, nil
}

/* FetchBuriedInHaste lists DEAD workers that still own non-terminal jobs */
func (w *WorkerQueries) FetchBuriedInHaste(ctx context.Context) ([]Worker, error) {
	var workers []Worker
	if err := w.q.DB.SelectContext(ctx, &workers, listBuriedInHasteQuery); err != nil {
		return nil, w.q.formatQueryError("SELECT", listBuriedInHasteQuery, 0, "worker", err)
	}
	return workers, nil
}

/* FetchIntervals lists worker lifetimes overlapping [start, end) for the
 * activity profiler. */
func (w *WorkerQueries) FetchIntervals(ctx context.Context, start, end time.Time) ([]WorkerInterval, error) {
	var intervals []WorkerInterval
	if err := w.q.DB.SelectContext(ctx, &intervals, listWorkerIntervalsQuery, end, start); err != nil {
		return nil, w.q.formatQueryError("SELECT", listWorkerIntervalsQuery, 2, "worker", err)
	}
	return intervals, nil
}

/* LifetimeBounds derives the profiling range from the worker table:
 * earliest birth and latest death (now when any worker is still alive). */
func (w *WorkerQueries) LifetimeBounds(ctx context.Context) (time.Time, time.Time, error) {
	var total int64
	if err := w.q.DB.GetContext(ctx, &total, countWorkersQuery); err != nil {
		return time.Time{}, time.Time{}, w.q.formatQueryError("SELECT", countWorkersQuery, 0, "worker", err)
	}
	if total == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("no workers recorded on %s", w.q.getConnInfoString())
	}

	var minBorn time.Time
	if err := w.q.DB.GetContext(ctx, &minBorn, minBornQuery); err != nil {
		return time.Time{}, time.Time{}, w.q.formatQueryError("SELECT", minBornQuery, 0, "worker", err)
	}

	var maxDied sql.NullTime
	if err := w.q.DB.GetContext(ctx, &maxDied, maxDiedQuery); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, time.Time{}, w.q.formatQueryError("SELECT", maxDiedQuery, 0, "worker", err)
	}

	var alive int64
	if err := w.q.DB.GetContext(ctx, &alive, countAliveWorkersQuery); err != nil {
		return time.Time{}, time.Time{}, w.q.formatQueryError("SELECT", countAliveWorkersQuery, 0, "worker", err)
	}

	end := time.Now()
	if alive == 0 && maxDied.Valid {
		end = maxDied.Time
	}
	return minBorn, end, nil
}
