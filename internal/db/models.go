/*-------------------------------------------------------------------------
 *
 * models.go
 *    Database models for NeuronHive
 *
 * Defines row structures for analyses, analysis statistics, workers,
 * jobs, resource classes, beekeepers, and monitor samples.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/models.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"time"
)

/* AnalysisStatus is the lifecycle state of one analysis' statistics row */
type AnalysisStatus string

const (
	AnalysisLoading    AnalysisStatus = "LOADING"
	AnalysisBlocked    AnalysisStatus = "BLOCKED"
	AnalysisSynching   AnalysisStatus = "SYNCHING"
	AnalysisReady      AnalysisStatus = "READY"
	AnalysisWorking    AnalysisStatus = "WORKING"
	AnalysisAllClaimed AnalysisStatus = "ALL_CLAIMED"
	AnalysisDone       AnalysisStatus = "DONE"
	AnalysisFailed     AnalysisStatus = "FAILED"
)

/* WorkerStatus is the lifecycle state of one worker process */
type WorkerStatus string

const (
	WorkerReady       WorkerStatus = "READY"
	WorkerClaimed     WorkerStatus = "CLAIMED"
	WorkerPreCleanup  WorkerStatus = "PRE_CLEANUP"
	WorkerFetchInput  WorkerStatus = "FETCH_INPUT"
	WorkerRun         WorkerStatus = "RUN"
	WorkerWriteOutput WorkerStatus = "WRITE_OUTPUT"
	WorkerPostCleanup WorkerStatus = "POST_CLEANUP"
	WorkerDead        WorkerStatus = "DEAD"
)

/* WorkerCause is the recorded cause of a worker's death */
type WorkerCause string

const (
	CauseNoWork       WorkerCause = "NO_WORK"
	CauseJobLimit     WorkerCause = "JOB_LIMIT"
	CauseLifespan     WorkerCause = "LIFESPAN"
	CauseHiveOverload WorkerCause = "HIVE_OVERLOAD"
	CauseMemlimit     WorkerCause = "MEMLIMIT"
	CauseRunlimit     WorkerCause = "RUNLIMIT"
	CauseKilledByUser WorkerCause = "KILLED_BY_USER"
	CauseSeeMsg       WorkerCause = "SEE_MSG"
	CauseContaminated WorkerCause = "CONTAMINATED"
	CauseUnknown      WorkerCause = "UNKNOWN"
)

/* ReleasesJobs reports whether a death with this cause releases the
 * worker's in-flight jobs back to READY. Self-inflicted exits (NO_WORK,
 * JOB_LIMIT, LIFESPAN, HIVE_OVERLOAD) leave no unfinished jobs behind. */
func (c WorkerCause) ReleasesJobs() bool {
	switch c {
	case CauseUnknown, CauseMemlimit, CauseRunlimit, CauseKilledByUser, CauseSeeMsg, CauseContaminated:
		return true
	}
	return false
}

/* JobStatus is the lifecycle state of one job row */
type JobStatus string

const (
	JobReady       JobStatus = "READY"
	JobSemaphored  JobStatus = "SEMAPHORED"
	JobClaimed     JobStatus = "CLAIMED"
	JobPreCleanup  JobStatus = "PRE_CLEANUP"
	JobFetchInput  JobStatus = "FETCH_INPUT"
	JobRun         JobStatus = "RUN"
	JobWriteOutput JobStatus = "WRITE_OUTPUT"
	JobPostCleanup JobStatus = "POST_CLEANUP"
	JobDone        JobStatus = "DONE"
	JobFailed      JobStatus = "FAILED"
	JobPassedOn    JobStatus = "PASSED_ON"
)

/* InFlight reports whether the job is currently being executed by a worker */
func (s JobStatus) InFlight() bool {
	switch s {
	case JobClaimed, JobPreCleanup, JobFetchInput, JobRun, JobWriteOutput, JobPostCleanup:
		return true
	}
	return false
}

/* Terminal reports whether no worker holds the job: it is finished
 * (DONE, FAILED, PASSED_ON) or back in READY */
func (s JobStatus) Terminal() bool {
	switch s {
	case JobDone, JobReady, JobFailed, JobPassedOn:
		return true
	}
	return false
}

type Analysis struct {
	AnalysisID      int64  `db:"analysis_id"`
	LogicName       string `db:"logic_name"`
	ResourceClassID int64  `db:"resource_class_id"`
	Priority        int    `db:"priority"`
}

type AnalysisStats struct {
	AnalysisID         int64          `db:"analysis_id"`
	Status             AnalysisStatus `db:"status"`
	TotalJobCount      int64          `db:"total_job_count"`
	ReadyJobCount      int64          `db:"ready_job_count"`
	SemaphoredJobCount int64          `db:"semaphored_job_count"`
	DoneJobCount       int64          `db:"done_job_count"`
	FailedJobCount     int64          `db:"failed_job_count"`
	NumRequiredWorkers int64          `db:"num_required_workers"`
	NumRunningWorkers  int64          `db:"num_running_workers"`
	HiveCapacity       int64          `db:"hive_capacity"`
	BatchSize          int64          `db:"batch_size"`
	AvgMsecPerJob      *int64         `db:"avg_msec_per_job"`
	SyncLock           bool           `db:"sync_lock"`
	WhenUpdated        *time.Time     `db:"when_updated"`
}

type Worker struct {
	WorkerID        int64        `db:"worker_id"`
	MeadowType      string       `db:"meadow_type"`
	MeadowName      string       `db:"meadow_name"`
	Host            string       `db:"host"`
	ProcessID       string       `db:"process_id"`
	ResourceClassID int64        `db:"resource_class_id"`
	AnalysisID      *int64       `db:"analysis_id"`
	BeekeeperID     *string      `db:"beekeeper_id"`
	Born            time.Time    `db:"born"`
	LastCheckIn     time.Time    `db:"last_check_in"`
	Died            *time.Time   `db:"died"`
	Status          WorkerStatus `db:"status"`
	WorkDone        int64        `db:"work_done"`
	CauseOfDeath    *WorkerCause `db:"cause_of_death"`
	LogDir          *string      `db:"log_dir"`
}

type Job struct {
	JobID           int64      `db:"job_id"`
	AnalysisID      int64      `db:"analysis_id"`
	WorkerID        *int64     `db:"worker_id"`
	Status          JobStatus  `db:"status"`
	InputID         string     `db:"input_id"`
	SemaphoredJobID *int64     `db:"semaphored_job_id"`
	SemaphoreCount  int64      `db:"semaphore_count"`
	RetryCount      int64      `db:"retry_count"`
	WhenCompleted   *time.Time `db:"when_completed"`
}

type ResourceClass struct {
	ResourceClassID int64  `db:"resource_class_id"`
	Name            string `db:"name"`
}

type Beekeeper struct {
	BeekeeperID  string     `db:"beekeeper_id"`
	Host         string     `db:"host"`
	ProcessID    string     `db:"process_id"`
	Options      string     `db:"options"`
	WhenStarted  time.Time  `db:"when_started"`
	WhenDied     *time.Time `db:"when_died"`
	CauseOfDeath *string    `db:"cause_of_death"`
}

type MonitorSample struct {
	WhenSampled    time.Time `db:"when_sampled"`
	WorkersRunning int64     `db:"workers_running"`
	HiveLoad       float64   `db:"hive_load"`
}

/* WorkerInterval is one worker's lifetime slice used by the activity profiler */
type WorkerInterval struct {
	AnalysisID int64      `db:"analysis_id"`
	LogicName  string     `db:"logic_name"`
	Born       time.Time  `db:"born"`
	Died       *time.Time `db:"died"`
}
