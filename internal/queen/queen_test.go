/*-------------------------------------------------------------------------
 *
 * queen_test.go
 *    Shared test fixtures for the Queen
 *
 * Tests run against a real sqlite hive in a temporary directory, through
 * the same adaptors production code uses.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neurondb/NeuronHive/internal/db"
	"github.com/neurondb/NeuronHive/internal/meadow"
)

func openTestHive(t *testing.T) (*db.DB, *db.Queries) {
	t.Helper()

	url := "sqlite://" + filepath.Join(t.TempDir(), "hive.db")
	database, err := db.Connect(url, db.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("failed to open test hive: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Bootstrap(context.Background()); err != nil {
		t.Fatalf("failed to bootstrap test hive: %v", err)
	}
	return database, db.NewQueries(database)
}

/* seedAnalysis creates a resource class, an analysis bound to it, and
 * readyJobs READY jobs. */
func seedAnalysis(t *testing.T, queries *db.Queries, logicName string, hiveCapacity, batchSize int64, readyJobs int) (*db.Analysis, *db.ResourceClass) {
	t.Helper()
	ctx := context.Background()

	rc := &db.ResourceClass{Name: logicName + "_rc"}
	if err := queries.ResourceClasses().Insert(ctx, rc); err != nil {
		t.Fatalf("failed to seed resource class: %v", err)
	}

	analysis := &db.Analysis{LogicName: logicName, ResourceClassID: rc.ResourceClassID}
	if err := queries.Analyses().Insert(ctx, analysis, hiveCapacity, batchSize); err != nil {
		t.Fatalf("failed to seed analysis: %v", err)
	}

	for i := 0; i < readyJobs; i++ {
		job := &db.Job{AnalysisID: analysis.AnalysisID, Status: db.JobReady}
		if err := queries.Jobs().Insert(ctx, job); err != nil {
			t.Fatalf("failed to seed job: %v", err)
		}
	}
	return analysis, rc
}

/* seedWorker births a worker on the FAKE meadow and optionally
 * specializes it into the analysis by force. */
func seedWorker(t *testing.T, qn *Queen, rc *db.ResourceClass, analysis *db.Analysis, pid string) *db.Worker {
	t.Helper()
	ctx := context.Background()

	worker, err := qn.CreateNewWorker(ctx, CreateWorkerOptions{
		MeadowType:      fakeMeadowType,
		MeadowName:      "fake",
		Host:            "testhost",
		ProcessID:       pid,
		ResourceClassID: rc.ResourceClassID,
	})
	if err != nil {
		t.Fatalf("failed to seed worker: %v", err)
	}

	if analysis != nil {
		if _, err := qn.SpecializeWorker(ctx, worker, SpecializationTarget{AnalysisID: analysis.AnalysisID}, true); err != nil {
			t.Fatalf("failed to specialize seeded worker: %v", err)
		}
	}
	return worker
}

func fetchStats(t *testing.T, queries *db.Queries, analysisID int64) *db.AnalysisStats {
	t.Helper()
	stats, err := queries.Stats().FetchByAnalysisID(context.Background(), analysisID)
	if err != nil {
		t.Fatalf("failed to fetch stats: %v", err)
	}
	return stats
}

const fakeMeadowType = "FAKE"

/* fakeMeadow is a scriptable in-memory meadow driver */
type fakeMeadow struct {
	typ      string
	statuses map[string]meadow.ProcessStatus
	causes   map[string]db.WorkerCause
	pending  map[string]int
	slots    int

	submitted map[string]int
}

func newFakeMeadow() *fakeMeadow {
	return &fakeMeadow{
		typ:       fakeMeadowType,
		statuses:  map[string]meadow.ProcessStatus{},
		pending:   map[string]int{},
		slots:     100,
		submitted: map[string]int{},
	}
}

func (m *fakeMeadow) Type() string { return m.typ }
func (m *fakeMeadow) Name() string { return "fake" }

func (m *fakeMeadow) StatusOfAllOurWorkers(ctx context.Context) (map[string]meadow.ProcessStatus, error) {
	return m.statuses, nil
}

func (m *fakeMeadow) SubmitWorkers(ctx context.Context, rcName string, count int) error {
	m.submitted[rcName] += count
	return nil
}

func (m *fakeMeadow) PendingWorkerCounts(ctx context.Context) (map[string]int, error) {
	return m.pending, nil
}

func (m *fakeMeadow) AvailableWorkerSlots(ctx context.Context) (int, error) {
	return m.slots, nil
}

/* fakeMeadowWithCauses adds the optional post-mortem capability */
type fakeMeadowWithCauses struct {
	*fakeMeadow
}

func (m *fakeMeadowWithCauses) FindOutCauses(ctx context.Context, pids []string) (map[string]db.WorkerCause, error) {
	causes := make(map[string]db.WorkerCause)
	for _, pid := range pids {
		if c, ok := m.causes[pid]; ok {
			causes[pid] = c
		}
	}
	return causes, nil
}

func testValley(t *testing.T, m meadow.Meadow) *meadow.Valley {
	t.Helper()
	valley, err := meadow.NewValley([]meadow.Meadow{m}, m.Type(), 50)
	if err != nil {
		t.Fatalf("failed to build test valley: %v", err)
	}
	return valley
}
