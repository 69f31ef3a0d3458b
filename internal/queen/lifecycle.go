/*-------------------------------------------------------------------------
 *
 * lifecycle.go
 *    Worker lifecycle operations for NeuronHive
 *
 * Birth, specialization, check-in and death of workers. Check-in and
 * death registration are row-level update-wheres, so a beekeeper retry
 * of either cannot double-count.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/queen/lifecycle.go
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/neurondb/NeuronHive/internal/db"
	"github.com/neurondb/NeuronHive/internal/metrics"
)

/* the hive refuses new specializations above this load */
const overloadThreshold = 1.1

type CreateWorkerOptions struct {
	MeadowType        string
	MeadowName        string
	Host              string
	ProcessID         string
	ResourceClassID   int64
	ResourceClassName string
	BeekeeperID       *string

	/* when set, a per-worker log directory is created beneath it */
	LogBaseDir string
}

/* CreateNewWorker registers a worker's birth. The database assigns the
 * worker id and the born / last_check_in timestamps; the returned handle
 * carries them. Resource class lookup failure, insertion failure and log
 * directory failure are all fatal: no partial row survives this call. */
func (qn *Queen) CreateNewWorker(ctx context.Context, opts CreateWorkerOptions) (*db.Worker, error) {
	rcID := opts.ResourceClassID
	if opts.ResourceClassName != "" {
		rc, err := qn.queries.ResourceClasses().FetchByName(ctx, opts.ResourceClassName)
		if err != nil {
			return nil, err
		}
		rcID = rc.ResourceClassID
	} else if rcID != 0 {
		if _, err := qn.queries.ResourceClasses().FetchByID(ctx, rcID); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("cannot create a worker without a resource class")
	}

	worker := &db.Worker{
		MeadowType:      opts.MeadowType,
		MeadowName:      opts.MeadowName,
		Host:            opts.Host,
		ProcessID:       opts.ProcessID,
		ResourceClassID: rcID,
		BeekeeperID:     opts.BeekeeperID,
	}
	if err := qn.queries.Workers().Insert(ctx, worker); err != nil {
		return nil, err
	}

	if opts.LogBaseDir != "" {
		logDir, err := createWorkerLogDir(opts.LogBaseDir, worker.WorkerID)
		if err != nil {
			return nil, fmt.Errorf("failed to create log directory for worker %d: %w", worker.WorkerID, err)
		}
		if err := qn.queries.Workers().UpdateLogDir(ctx, worker.WorkerID, logDir); err != nil {
			return nil, err
		}
		worker.LogDir = &logDir
	}

	metrics.RecordWorkerCreated(worker.MeadowType)
	metrics.InfoWithContext(metrics.WithWorkerID(ctx, worker.WorkerID), "Worker born", map[string]interface{}{
		"meadow_type":    worker.MeadowType,
		"host":           worker.Host,
		"process_id":     worker.ProcessID,
		"resource_class": rcID,
	})
	return worker, nil
}

/* createWorkerLogDir fans worker directories out over 256 buckets so no
 * single directory collects millions of siblings. */
func createWorkerLogDir(baseDir string, workerID int64) (string, error) {
	fanout := fmt.Sprintf("%03d", workerID%256)
	dir := filepath.Join(baseDir, fanout, fmt.Sprintf("worker_id_%d", workerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

/* SpecializationTarget selects how a fresh worker is bound to an
 * analysis. At most one selector may be set; all zero lets the scheduler
 * choose. */
type SpecializationTarget struct {
	AnalysisID int64
	LogicName  string
	JobID      int64
}

func (t SpecializationTarget) selectorCount() int {
	n := 0
	if t.AnalysisID != 0 {
		n++
	}
	if t.LogicName != "" {
		n++
	}
	if t.JobID != 0 {
		n++
	}
	return n
}

/* SpecializationResult reports how the worker was bound. A job-targeted
 * specialization returns the pre-grabbed job as a special batch that
 * bypasses scheduler accounting; otherwise SpecialBatch is nil. */
type SpecializationResult struct {
	Analysis     *db.Analysis
	SpecialBatch []db.Job
}

func (r *SpecializationResult) IsSpecialBatch() bool {
	return len(r.SpecialBatch) > 0
}

/* SpecializeWorker binds a freshly created worker to exactly one
 * analysis, by job, by analysis, or by the scheduler's choice. */
func (qn *Queen) SpecializeWorker(ctx context.Context, worker *db.Worker, target SpecializationTarget, force bool) (*SpecializationResult, error) {
	if target.selectorCount() > 1 {
		return nil, fmt.Errorf("at most one of analysis_id, logic_name and job_id may be given when specializing worker %d", worker.WorkerID)
	}

	if target.JobID != 0 {
		return qn.specializeToJob(ctx, worker, target.JobID, force)
	}

	var analysis *db.Analysis
	var err error
	switch {
	case target.AnalysisID != 0:
		analysis, err = qn.queries.Analyses().FetchByID(ctx, target.AnalysisID)
	case target.LogicName != "":
		analysis, err = qn.queries.Analyses().FetchByLogicName(ctx, target.LogicName)
	default:
		analysis, err = qn.SuggestAnalysisToSpecialize(ctx, worker.ResourceClassID)
	}
	if err != nil {
		return nil, err
	}

	if target.AnalysisID != 0 || target.LogicName != "" {
		if analysis.ResourceClassID != worker.ResourceClassID {
			return nil, fmt.Errorf("analysis %q wants resource class %d but worker %d carries %d",
				analysis.LogicName, analysis.ResourceClassID, worker.WorkerID, worker.ResourceClassID)
		}
		if err := qn.checkAnalysisAccepting(ctx, analysis, force); err != nil {
			return nil, err
		}
	}

	if err := qn.bindWorker(ctx, worker, analysis, true); err != nil {
		return nil, err
	}
	return &SpecializationResult{Analysis: analysis}, nil
}

/* specializeToJob is the job-targeted path: reset-or-grab one specific
 * job for this worker and derive the analysis from it. */
func (qn *Queen) specializeToJob(ctx context.Context, worker *db.Worker, jobID int64, force bool) (*SpecializationResult, error) {
	job, err := qn.queries.Jobs().FetchByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.InFlight() {
		return nil, fmt.Errorf("job %d is %s and being worked on; cannot re-run it", jobID, job.Status)
	}
	if (job.Status == db.JobDone || job.Status == db.JobSemaphored) && !force {
		return nil, fmt.Errorf("job %d is %s; re-running it requires force", jobID, job.Status)
	}

	/* A DONE job decremented its parent's semaphore on completion; put
	 * the decrement back so the parent stays blocked while this job
	 * re-runs. */
	if job.Status == db.JobDone && job.SemaphoredJobID != nil {
		if err := qn.queries.Jobs().IncrementSemaphore(ctx, *job.SemaphoredJobID); err != nil {
			return nil, err
		}
	}

	grabbed, err := qn.queries.Jobs().GrabForWorker(ctx, jobID, worker.WorkerID)
	if err != nil {
		return nil, err
	}
	if !grabbed {
		return nil, fmt.Errorf("job %d was claimed by another worker before worker %d could grab it", jobID, worker.WorkerID)
	}

	analysis, err := qn.queries.Analyses().FetchByID(ctx, job.AnalysisID)
	if err != nil {
		return nil, err
	}

	if err := qn.bindWorker(ctx, worker, analysis, false); err != nil {
		return nil, err
	}

	grabbedJob, err := qn.queries.Jobs().FetchByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &SpecializationResult{Analysis: analysis, SpecialBatch: []db.Job{*grabbedJob}}, nil
}

/* checkAnalysisAccepting enforces the refusal rules of analysis-targeted
 * specialization; force bypasses all of them. */
func (qn *Queen) checkAnalysisAccepting(ctx context.Context, analysis *db.Analysis, force bool) error {
	stats, err := qn.queries.Stats().FetchByAnalysisID(ctx, analysis.AnalysisID)
	if err != nil {
		return err
	}
	stats, err = qn.SafeSynchronizeStats(ctx, stats)
	if err != nil {
		return err
	}

	if force {
		return nil
	}

	load, err := qn.HiveCurrentLoad(ctx)
	if err != nil {
		return err
	}
	if load >= overloadThreshold {
		return refuse(db.CauseHiveOverload, "hive load %.2f is at or above %.2f", load, overloadThreshold)
	}
	if stats.Status == db.AnalysisBlocked {
		return refuse(db.CauseNoWork, "analysis %q is BLOCKED", analysis.LogicName)
	}
	if stats.NumRequiredWorkers <= 0 {
		if stats.HiveCapacity > 0 && stats.NumRunningWorkers >= stats.HiveCapacity {
			return refuse(db.CauseHiveOverload, "analysis %q is at its hive_capacity of %d",
				analysis.LogicName, stats.HiveCapacity)
		}
		return refuse(db.CauseNoWork, "analysis %q requires no more workers", analysis.LogicName)
	}
	if stats.Status == db.AnalysisDone {
		return refuse(db.CauseNoWork, "analysis %q is DONE", analysis.LogicName)
	}
	return nil
}

/* bindWorker persists the analysis binding and adjusts the accounting.
 * Scheduler-accounted bindings consume one required worker and move the
 * analysis to WORKING; a special batch bypasses that. */
func (qn *Queen) bindWorker(ctx context.Context, worker *db.Worker, analysis *db.Analysis, schedulerAccounted bool) error {
	if err := qn.queries.Workers().BindToAnalysis(ctx, worker.WorkerID, analysis.AnalysisID); err != nil {
		return err
	}
	worker.AnalysisID = &analysis.AnalysisID

	if schedulerAccounted {
		if err := qn.queries.Stats().UpdateStatus(ctx, analysis.AnalysisID, db.AnalysisWorking); err != nil {
			return err
		}
		if err := qn.queries.Stats().DecreaseRequiredWorkers(ctx, analysis.AnalysisID, 1); err != nil {
			return err
		}
	}
	if !qn.countTriggers {
		if err := qn.queries.Stats().IncreaseRunningWorkers(ctx, analysis.AnalysisID); err != nil {
			return err
		}
	}

	metrics.InfoWithContext(metrics.WithAnalysisID(metrics.WithWorkerID(ctx, worker.WorkerID), analysis.AnalysisID),
		"Worker specialized", map[string]interface{}{
			"logic_name":    analysis.LogicName,
			"special_batch": !schedulerAccounted,
		})
	return nil
}

/* SuggestAnalysisToSpecialize walks analyses in suitability order for the
 * resource class and returns the first that can take a worker. */
func (qn *Queen) SuggestAnalysisToSpecialize(ctx context.Context, resourceClassID int64) (*db.Analysis, error) {
	analyses, err := qn.queries.Analyses().FetchAllSuitable(ctx, resourceClassID)
	if err != nil {
		return nil, err
	}

	for i := range analyses {
		analysis := &analyses[i]
		stats, err := qn.queries.Stats().FetchByAnalysisID(ctx, analysis.AnalysisID)
		if err != nil {
			return nil, err
		}
		stats, err = qn.SafeSynchronizeStats(ctx, stats)
		if err != nil {
			return nil, err
		}
		if stats.Status != db.AnalysisBlocked && stats.NumRequiredWorkers > 0 {
			return analysis, nil
		}
	}
	return nil, refuse(db.CauseNoWork, "no analysis suitable for resource class %d needs workers", resourceClassID)
}

/* CheckInWorker records a worker heartbeat: last_check_in, status and
 * work_done in one idempotent row update. */
func (qn *Queen) CheckInWorker(ctx context.Context, worker *db.Worker) error {
	return qn.queries.Workers().CheckIn(ctx, worker.WorkerID, worker.Status, worker.WorkDone)
}

/* RegisterWorkerDeath finalizes a worker and repairs the analysis
 * accounting it leaves behind. Calling it again for the same worker is a
 * no-op: the conditional update touches nothing the second time. */
func (qn *Queen) RegisterWorkerDeath(ctx context.Context, worker *db.Worker, cause db.WorkerCause) error {
	if cause == "" {
		cause = db.CauseUnknown
	}

	changed, err := qn.queries.Workers().RegisterDeath(ctx, worker.WorkerID, worker.WorkDone, cause)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	worker.Status = db.WorkerDead
	worker.CauseOfDeath = &cause
	metrics.RecordWorkerDeath(string(cause))

	if worker.AnalysisID == nil {
		return nil
	}
	analysisID := *worker.AnalysisID

	if !qn.countTriggers {
		if err := qn.queries.Stats().DecreaseRunningWorkers(ctx, analysisID); err != nil {
			return err
		}
	}

	if cause == db.CauseNoWork {
		if err := qn.queries.Stats().UpdateStatus(ctx, analysisID, db.AnalysisAllClaimed); err != nil {
			return err
		}
	}

	if cause.ReleasesJobs() {
		released, err := qn.queries.Jobs().ReleaseUndoneJobsFromWorker(ctx, worker.WorkerID)
		if err != nil {
			return err
		}
		if released > 0 {
			metrics.RecordJobsReleased(int(released))
			metrics.InfoWithContext(metrics.WithWorkerID(ctx, worker.WorkerID), "Released jobs of dead worker",
				map[string]interface{}{"released": released, "cause": cause})
		}
	}

	stats, err := qn.queries.Stats().FetchByAnalysisID(ctx, analysisID)
	if err != nil {
		return err
	}
	stats, err = qn.SafeSynchronizeStats(ctx, stats)
	if err != nil {
		return err
	}

	/* The sync above counted this worker among the living (its row went
	 * DEAD only just now from the stats row's point of view); request one
	 * replacement unless the analysis finished. */
	if stats.Status != db.AnalysisDone {
		if err := qn.queries.Stats().IncreaseRequiredWorkers(ctx, analysisID, 1); err != nil {
			return err
		}
	}
	return nil
}
