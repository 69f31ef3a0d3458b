/*-------------------------------------------------------------------------
 *
 * queries_test.go
 *    Tests for the hive database adaptors
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Queries {
	t.Helper()

	database, err := Connect("sqlite://"+filepath.Join(t.TempDir(), "hive.db"), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Bootstrap(context.Background()); err != nil {
		t.Fatalf("failed to bootstrap schema: %v", err)
	}
	return NewQueries(database)
}

func seed(t *testing.T, q *Queries) (*Analysis, *ResourceClass) {
	t.Helper()
	ctx := context.Background()

	rc := &ResourceClass{Name: "small"}
	if err := q.ResourceClasses().Insert(ctx, rc); err != nil {
		t.Fatalf("failed to insert resource class: %v", err)
	}
	analysis := &Analysis{LogicName: "blast", ResourceClassID: rc.ResourceClassID}
	if err := q.Analyses().Insert(ctx, analysis, 0, 1); err != nil {
		t.Fatalf("failed to insert analysis: %v", err)
	}
	return analysis, rc
}

func TestBootstrapIsIdempotent(t *testing.T) {
	database, err := Connect("sqlite://"+filepath.Join(t.TempDir(), "hive.db"), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("first Bootstrap() error = %v", err)
	}
	if err := database.Bootstrap(ctx); err != nil {
		t.Fatalf("second Bootstrap() error = %v", err)
	}
}

func TestWorkerInsertPopulatesRow(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	_, rc := seed(t, q)

	worker := &Worker{MeadowType: "LOCAL", Host: "node-1", ProcessID: "99", ResourceClassID: rc.ResourceClassID}
	if err := q.Workers().Insert(ctx, worker); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if worker.WorkerID == 0 {
		t.Error("worker_id not assigned by the database")
	}
	if worker.Born.IsZero() {
		t.Error("born not assigned by the database")
	}
	if worker.Status != WorkerReady {
		t.Errorf("status = %s, want READY", worker.Status)
	}
}

/* the died IS NULL guard makes the second death a no-op */
func TestRegisterDeathRowLevelIdempotence(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	_, rc := seed(t, q)

	worker := &Worker{MeadowType: "LOCAL", ResourceClassID: rc.ResourceClassID}
	if err := q.Workers().Insert(ctx, worker); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	first, err := q.Workers().RegisterDeath(ctx, worker.WorkerID, 3, CauseLifespan)
	if err != nil {
		t.Fatalf("first RegisterDeath() error = %v", err)
	}
	second, err := q.Workers().RegisterDeath(ctx, worker.WorkerID, 3, CauseUnknown)
	if err != nil {
		t.Fatalf("second RegisterDeath() error = %v", err)
	}

	if !first {
		t.Error("first death registration should change the row")
	}
	if second {
		t.Error("second death registration should change nothing")
	}

	fetched, err := q.Workers().FetchByID(ctx, worker.WorkerID)
	if err != nil {
		t.Fatalf("FetchByID() error = %v", err)
	}
	if fetched.CauseOfDeath == nil || *fetched.CauseOfDeath != CauseLifespan {
		t.Error("the first cause of death must survive the second call")
	}
}

func TestGrabForWorkerIsExclusive(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	analysis, rc := seed(t, q)

	job := &Job{AnalysisID: analysis.AnalysisID}
	if err := q.Jobs().Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	var workers []int64
	for _, pid := range []string{"1", "2"} {
		w := &Worker{MeadowType: "LOCAL", ProcessID: pid, ResourceClassID: rc.ResourceClassID}
		if err := q.Workers().Insert(ctx, w); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		workers = append(workers, w.WorkerID)
	}

	first, err := q.Jobs().GrabForWorker(ctx, job.JobID, workers[0])
	if err != nil {
		t.Fatalf("first GrabForWorker() error = %v", err)
	}
	second, err := q.Jobs().GrabForWorker(ctx, job.JobID, workers[1])
	if err != nil {
		t.Fatalf("second GrabForWorker() error = %v", err)
	}

	if !first || second {
		t.Errorf("grab results = (%v, %v), want exactly the first to win", first, second)
	}
}

func TestCountsByStatus(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	analysis, _ := seed(t, q)

	for _, status := range []JobStatus{JobReady, JobReady, JobDone, JobFailed, JobSemaphored} {
		job := &Job{AnalysisID: analysis.AnalysisID, Status: status}
		if err := q.Jobs().Insert(ctx, job); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	counts, err := q.Jobs().CountsByStatus(ctx, analysis.AnalysisID)
	if err != nil {
		t.Fatalf("CountsByStatus() error = %v", err)
	}
	if counts[JobReady] != 2 || counts[JobDone] != 1 || counts[JobFailed] != 1 || counts[JobSemaphored] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCountFailedComparesIDs(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	analysis, rc := seed(t, q)

	other := &Analysis{LogicName: "align", ResourceClassID: rc.ResourceClassID}
	if err := q.Analyses().Insert(ctx, other, 0, 1); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := q.Stats().UpdateStatus(ctx, analysis.AnalysisID, AnalysisFailed); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := q.Stats().UpdateStatus(ctx, other.AnalysisID, AnalysisFailed); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	all, err := q.Analyses().CountFailed(ctx, 0)
	if err != nil {
		t.Fatalf("CountFailed() error = %v", err)
	}
	if all != 2 {
		t.Errorf("CountFailed(0) = %d, want 2", all)
	}

	one, err := q.Analyses().CountFailed(ctx, analysis.AnalysisID)
	if err != nil {
		t.Fatalf("CountFailed() error = %v", err)
	}
	if one != 1 {
		t.Errorf("CountFailed(%d) = %d, want 1", analysis.AnalysisID, one)
	}
}

func TestLifetimeBounds(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()
	analysis, rc := seed(t, q)

	born := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	died := born.Add(2 * time.Hour)
	if _, err := q.DB.ExecContext(ctx, `
		INSERT INTO worker (meadow_type, resource_class_id, analysis_id, born, last_check_in, died, status)
		VALUES ('LOCAL', ?, ?, ?, ?, ?, 'DEAD')`,
		rc.ResourceClassID, analysis.AnalysisID, born, born, died); err != nil {
		t.Fatalf("failed to insert worker: %v", err)
	}

	gotStart, gotEnd, err := q.Workers().LifetimeBounds(ctx)
	if err != nil {
		t.Fatalf("LifetimeBounds() error = %v", err)
	}
	if !gotStart.Equal(born) {
		t.Errorf("start = %s, want %s", gotStart, born)
	}
	if !gotEnd.Equal(died) {
		t.Errorf("end = %s, want %s", gotEnd, died)
	}
}
