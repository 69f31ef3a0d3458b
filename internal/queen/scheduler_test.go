/*-------------------------------------------------------------------------
 *
 * scheduler_test.go
 *    Tests for the worker submission scheduler
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

func setRequired(t *testing.T, queries *db.Queries, analysisID, required int64) {
	t.Helper()
	if _, err := queries.DB.ExecContext(context.Background(),
		`UPDATE analysis_stats SET num_required_workers = ? WHERE analysis_id = ?`,
		required, analysisID); err != nil {
		t.Fatalf("failed to set num_required_workers: %v", err)
	}
}

func paramsFor(analysis *db.Analysis, rc *db.ResourceClass, submitLimit, slots int, pending map[string]int) ScheduleParams {
	return ScheduleParams{
		Analysis:          analysis,
		SubmitLimit:       submitLimit,
		SlotsByMeadow:     map[string]int{fakeMeadowType: slots},
		PendingByMeadowRC: map[string]map[string]int{fakeMeadowType: pending},
		RCNames:           map[int64]string{rc.ResourceClassID: rc.Name},
		DefaultMeadowType: fakeMeadowType,
	}
}

/* pending workers already in the queue are not submitted twice */
func TestScheduleWorkersRespectsPending(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 5)
	setRequired(t, queries, analysis.AnalysisID, 5)

	params := paramsFor(analysis, rc, 10, 100, map[string]int{rc.Name: 3})
	schedule, err := qn.ScheduleWorkers(ctx, params)
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}

	if got := schedule.Counts[fakeMeadowType][rc.Name]; got != 2 {
		t.Errorf("scheduled %d workers, want 2 (5 required minus 3 pending)", got)
	}
	if schedule.Total != 2 {
		t.Errorf("total = %d, want 2", schedule.Total)
	}
	if remaining := params.PendingByMeadowRC[fakeMeadowType][rc.Name]; remaining != 0 {
		t.Errorf("pending ledger = %d after deduction, want 0", remaining)
	}
}

/* the same pending ledger is not subtracted twice across analyses */
func TestScheduleWorkersPendingLedgerSharedAcrossAnalyses(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)

	rc := &db.ResourceClass{Name: "shared_rc"}
	if err := queries.ResourceClasses().Insert(ctx, rc); err != nil {
		t.Fatalf("failed to seed resource class: %v", err)
	}
	var analyses []*db.Analysis
	for _, name := range []string{"blast", "align"} {
		a := &db.Analysis{LogicName: name, ResourceClassID: rc.ResourceClassID}
		if err := queries.Analyses().Insert(ctx, a, 0, 1); err != nil {
			t.Fatalf("failed to seed analysis: %v", err)
		}
		setRequired(t, queries, a.AnalysisID, 4)
		analyses = append(analyses, a)
	}

	params := ScheduleParams{
		SubmitLimit:       100,
		SlotsByMeadow:     map[string]int{fakeMeadowType: 100},
		PendingByMeadowRC: map[string]map[string]int{fakeMeadowType: {rc.Name: 3}},
		RCNames:           map[int64]string{rc.ResourceClassID: rc.Name},
		DefaultMeadowType: fakeMeadowType,
	}
	schedule, err := qn.ScheduleWorkers(ctx, params)
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}

	/* first analysis absorbs all 3 pending (4-3=1), second gets its full 4 */
	if schedule.Total != 5 {
		t.Errorf("total = %d, want 5", schedule.Total)
	}
	_ = analyses
}

func TestScheduleWorkersRespectsSubmitLimit(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 20)
	setRequired(t, queries, analysis.AnalysisID, 20)

	schedule, err := qn.ScheduleWorkers(ctx, paramsFor(analysis, rc, 7, 100, nil))
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}
	if schedule.Total != 7 {
		t.Errorf("total = %d, want submit limit 7", schedule.Total)
	}
}

func TestScheduleWorkersRespectsMeadowSlots(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 20)
	setRequired(t, queries, analysis.AnalysisID, 20)

	schedule, err := qn.ScheduleWorkers(ctx, paramsFor(analysis, rc, 100, 4, nil))
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}
	if schedule.Total != 4 {
		t.Errorf("total = %d, want 4 free slots", schedule.Total)
	}
}

func TestScheduleWorkersSkipsBlocked(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 5)
	setRequired(t, queries, analysis.AnalysisID, 5)
	if _, err := queries.DB.ExecContext(ctx,
		`UPDATE analysis_stats SET status = 'BLOCKED' WHERE analysis_id = ?`, analysis.AnalysisID); err != nil {
		t.Fatalf("failed to block analysis: %v", err)
	}

	schedule, err := qn.ScheduleWorkers(ctx, paramsFor(analysis, rc, 10, 100, nil))
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}
	if schedule.Total != 0 {
		t.Errorf("total = %d for a BLOCKED analysis, want 0", schedule.Total)
	}
}

/* a capacity-bounded analysis only gets its share of the load budget */
func TestScheduleWorkersHonoursCapacityShare(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 4, 1, 10)

	/* two live workers consume half the capacity: load 0.5 */
	seedWorker(t, qn, rc, analysis, "1000")
	seedWorker(t, qn, rc, analysis, "1001")
	setRequired(t, queries, analysis.AnalysisID, 5)

	/* freshen the row so the scheduler trusts it as-is */
	if _, err := queries.DB.ExecContext(ctx,
		`UPDATE analysis_stats SET status = 'WORKING' WHERE analysis_id = ?`, analysis.AnalysisID); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}

	schedule, err := qn.ScheduleWorkers(ctx, paramsFor(analysis, rc, 100, 100, nil))
	if err != nil {
		t.Fatalf("ScheduleWorkers() error = %v", err)
	}

	/* floor(available_load 0.5 × capacity 4) = 2 */
	if schedule.Total != 2 {
		t.Errorf("total = %d, want 2 (half the capacity already spoken for)", schedule.Total)
	}
}

/* stale counts plus lost workers would deadlock the hive forever; the
 * resync wrapper breaks it */
func TestScheduleWorkersResyncIfNecessary(t *testing.T) {
	_, queries := openTestHive(t)
	ctx := context.Background()
	qn := NewQueen(queries)
	analysis, rc := seedAnalysis(t, queries, "blast", 0, 1, 10)

	for _, pid := range []string{"1000", "1001", "1002"} {
		seedWorker(t, qn, rc, analysis, pid)
	}

	/* stale view: three registered workers, nothing required */
	if _, err := queries.DB.ExecContext(ctx,
		`UPDATE analysis_stats SET num_required_workers = 0, num_running_workers = 3, status = 'WORKING'
		 WHERE analysis_id = ?`, analysis.AnalysisID); err != nil {
		t.Fatalf("failed to plant stale stats: %v", err)
	}

	/* all three processes are gone from the meadow */
	fake := newFakeMeadow()
	valley := testValley(t, fake)

	schedule, err := qn.ScheduleWorkersResyncIfNecessary(ctx, valley, analysis)
	if err != nil {
		t.Fatalf("ScheduleWorkersResyncIfNecessary() error = %v", err)
	}
	if schedule.Total == 0 {
		t.Fatal("the deadlock breaker did not produce a schedule")
	}

	var dead int
	if err := queries.DB.GetContext(ctx, &dead,
		`SELECT COUNT(*) FROM worker WHERE status = 'DEAD'`); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if dead != 3 {
		t.Errorf("%d workers buried by the breaker, want 3", dead)
	}

	stats := fetchStats(t, queries, analysis.AnalysisID)
	if stats.NumRequiredWorkers < 1 {
		t.Errorf("num_required_workers = %d after resync, want >= 1", stats.NumRequiredWorkers)
	}
}
