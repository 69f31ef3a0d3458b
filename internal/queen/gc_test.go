/*-------------------------------------------------------------------------
 *
 * gc_test.go
 *    Tests for dead worker detection
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronHive/internal/db"
)

/* a vanished process buries the worker and frees its job */
func TestCheckForDeadWorkersReleasesJobs(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 1)
	worker := seedWorker(t, qn, rc, analysis, "1000")

	if _, err := queries.DB.ExecContext(ctx,
		`UPDATE job SET status = 'RUN', worker_id = ? WHERE job_id = 1`, worker.WorkerID); err != nil {
		t.Fatalf("failed to assign job: %v", err)
	}
	worker.Status = db.WorkerRun
	if err := qn.CheckInWorker(ctx, worker); err != nil {
		t.Fatalf("CheckInWorker() error = %v", err)
	}

	/* the meadow no longer sees the process */
	fake := newFakeMeadow()
	report, err := qn.CheckForDeadWorkers(ctx, testValley(t, fake), false)
	if err != nil {
		t.Fatalf("CheckForDeadWorkers() error = %v", err)
	}
	if report.Lost != 1 {
		t.Errorf("report.Lost = %d, want 1", report.Lost)
	}

	fetched, err := queries.Workers().FetchByID(ctx, worker.WorkerID)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if fetched.Status != db.WorkerDead {
		t.Errorf("worker status = %s, want DEAD", fetched.Status)
	}
	if fetched.CauseOfDeath == nil || *fetched.CauseOfDeath != db.CauseUnknown {
		t.Error("cause_of_death should default to UNKNOWN")
	}

	job, err := queries.Jobs().FetchByID(ctx, 1)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if job.Status != db.JobReady {
		t.Errorf("job status = %s, want READY", job.Status)
	}
	if job.WorkerID != nil {
		t.Error("released job still carries a worker_id")
	}
}

func TestCheckForDeadWorkersSparesRunning(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 1)
	worker := seedWorker(t, qn, rc, analysis, "1000")

	fake := newFakeMeadow()
	fake.statuses[worker.ProcessID] = "RUN"

	report, err := qn.CheckForDeadWorkers(ctx, testValley(t, fake), false)
	if err != nil {
		t.Fatalf("CheckForDeadWorkers() error = %v", err)
	}
	if report.Lost != 0 || report.Running != 1 {
		t.Errorf("report = %+v, want 1 running and 0 lost", report)
	}

	fetched, err := queries.Workers().FetchByID(ctx, worker.WorkerID)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if fetched.Status == db.WorkerDead {
		t.Error("a running worker was buried")
	}
}

/* a worker on a meadow outside this valley is UNREACHABLE, not dead */
func TestCheckForDeadWorkersUnreachableMeadow(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 1)
	worker := seedWorker(t, qn, rc, analysis, "1000")

	other := newFakeMeadow()
	other.typ = "ELSEWHERE"

	report, err := qn.CheckForDeadWorkers(ctx, testValley(t, other), false)
	if err != nil {
		t.Fatalf("CheckForDeadWorkers() error = %v", err)
	}
	if report.Unreachable != 1 || report.Lost != 0 {
		t.Errorf("report = %+v, want 1 unreachable and 0 lost", report)
	}

	fetched, err := queries.Workers().FetchByID(ctx, worker.WorkerID)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if fetched.Status == db.WorkerDead {
		t.Error("a worker on an unreachable meadow was buried on suspicion")
	}
}

func TestCheckForDeadWorkersUsesPostMortemCauses(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 1)
	worker := seedWorker(t, qn, rc, analysis, "1000")

	fake := &fakeMeadowWithCauses{newFakeMeadow()}
	fake.causes = map[string]db.WorkerCause{worker.ProcessID: db.CauseMemlimit}

	if _, err := qn.CheckForDeadWorkers(ctx, testValley(t, fake), false); err != nil {
		t.Fatalf("CheckForDeadWorkers() error = %v", err)
	}

	fetched, err := queries.Workers().FetchByID(ctx, worker.WorkerID)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if fetched.CauseOfDeath == nil || *fetched.CauseOfDeath != db.CauseMemlimit {
		t.Error("post-mortem cause MEMLIMIT was not recorded")
	}
}

/* the integrity pass rescues jobs of workers buried without cleanup */
func TestCheckForDeadWorkersBuriedInHaste(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 1)
	worker := seedWorker(t, qn, rc, analysis, "1000")

	if _, err := queries.DB.ExecContext(ctx,
		`UPDATE job SET status = 'RUN', worker_id = ? WHERE job_id = 1`, worker.WorkerID); err != nil {
		t.Fatalf("failed to assign job: %v", err)
	}

	/* bury the worker at the row level, skipping the job release */
	if _, err := queries.Workers().RegisterDeath(ctx, worker.WorkerID, 0, db.CauseKilledByUser); err != nil {
		t.Fatalf("RegisterDeath() error = %v", err)
	}

	report, err := qn.CheckForDeadWorkers(ctx, testValley(t, newFakeMeadow()), true)
	if err != nil {
		t.Fatalf("CheckForDeadWorkers() error = %v", err)
	}
	if report.BuriedReleased != 1 {
		t.Errorf("report.BuriedReleased = %d, want 1", report.BuriedReleased)
	}

	job, err := queries.Jobs().FetchByID(ctx, 1)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if job.Status != db.JobReady || job.WorkerID != nil {
		t.Errorf("buried-in-haste job not rescued: status=%s", job.Status)
	}
	_ = analysis
}
