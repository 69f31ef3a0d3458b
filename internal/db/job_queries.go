/*-------------------------------------------------------------------------
 *
 * job_queries.go
 *    Job adaptor for NeuronHive
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/job_queries.go
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
	getJobByIDQuery = `SELECT * FROM job WHERE job_id = ?`

	insertJobQuery = `
		INSERT INTO job (analysis_id, status, input_id, semaphored_job_id, semaphore_count)
		VALUES (?, ?, ?, ?, ?)`

	/* Atomic reset-or-grab: the status guard re-checks that nobody took
	 * the job between our read and this write. */
	grabJobForWorkerQuery = `
		UPDATE job
		SET status = 'CLAIMED', worker_id = ?
		WHERE job_id = ?
		  AND status NOT IN ('CLAIMED', 'PRE_CLEANUP', 'FETCH_INPUT', 'RUN', 'WRITE_OUTPUT', 'POST_CLEANUP')`

	incrementSemaphoreQuery = `
		UPDATE job
		SET semaphore_count = semaphore_count + 1,
			status = CASE WHEN status = 'READY' THEN 'SEMAPHORED' ELSE status END
		WHERE job_id = ?`

	releaseUndoneJobsQuery = `
		UPDATE job
		SET status = 'READY', worker_id = NULL
		WHERE worker_id = ?
		  AND status IN ('CLAIMED', 'PRE_CLEANUP', 'FETCH_INPUT', 'RUN', 'WRITE_OUTPUT', 'POST_CLEANUP')`

	jobCountsByStatusQuery = `
		SELECT status, COUNT(*) AS job_count
		FROM job
		WHERE analysis_id = ?
		GROUP BY status`
)

type JobQueries struct {
	q *Queries
}

func (j *JobQueries) FetchByID(ctx context.Context, id int64) (*Job, error) {
	var job Job
	err := j.q.DB.GetContext(ctx, &job, getJobByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found on %s: job_id=%d", j.q.getConnInfoString(), id)
	}
	if err != nil {
		return nil, j.q.formatQueryError("SELECT", getJobByIDQuery, 1, "job", err)
	}
	return &job, nil
}

func (j *JobQueries) Insert(ctx context.Context, job *Job) error {
	if job.Status == "" {
		job.Status = JobReady
	}
	params := []interface{}{job.AnalysisID, job.Status, job.InputID, job.SemaphoredJobID, job.SemaphoreCount}
	result, err := j.q.DB.ExecContext(ctx, insertJobQuery, params...)
	if err != nil {
		return j.q.formatQueryError("INSERT", insertJobQuery, len(params), "job", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read job id after insert on %s: %w", j.q.getConnInfoString(), err)
	}
	job.JobID = id
	return nil
}

/* GrabForWorker atomically claims the job for the worker; returns false
 * when another worker holds it in flight. */
func (j *JobQueries) GrabForWorker(ctx context.Context, jobID, workerID int64) (bool, error) {
	result, err := j.q.DB.ExecContext(ctx, grabJobForWorkerQuery, workerID, jobID)
	if err != nil {
		return false, j.q.formatQueryError("UPDATE", grabJobForWorkerQuery, 2, "job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for job grab on %s: job_id=%d, error=%w",
			j.q.getConnInfoString(), jobID, err)
	}
	return affected == 1, nil
}

/* IncrementSemaphore re-blocks a parent job whose semaphore had been
 * decremented by a child that is about to be re-run. */
func (j *JobQueries) IncrementSemaphore(ctx context.Context, jobID int64) error {
	if _, err := j.q.DB.ExecContext(ctx, incrementSemaphoreQuery, jobID); err != nil {
		return j.q.formatQueryError("UPDATE", incrementSemaphoreQuery, 1, "job", err)
	}
	return nil
}

/* ReleaseUndoneJobsFromWorker returns every in-flight job held by the
 * worker to READY; reports how many were released. */
func (j *JobQueries) ReleaseUndoneJobsFromWorker(ctx context.Context, workerID int64) (int64, error) {
	result, err := j.q.DB.ExecContext(ctx, releaseUndoneJobsQuery, workerID)
	if err != nil {
		return 0, j.q.formatQueryError("UPDATE", releaseUndoneJobsQuery, 1, "job", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected for job release on %s: worker_id=%d, error=%w",
			j.q.getConnInfoString(), workerID, err)
	}
	return affected, nil
}

/* CountsByStatus rebuilds one analysis' job counts from the job table */
func (j *JobQueries) CountsByStatus(ctx context.Context, analysisID int64) (map[JobStatus]int64, error) {
	rows := []struct {
		Status   JobStatus `db:"status"`
		JobCount int64     `db:"job_count"`
	}{}
	if err := j.q.DB.SelectContext(ctx, &rows, jobCountsByStatusQuery, analysisID); err != nil {
		return nil, j.q.formatQueryError("SELECT", jobCountsByStatusQuery, 1, "job", err)
	}
	counts := make(map[JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.JobCount
	}
	return counts, nil
}
