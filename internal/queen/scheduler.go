/*-------------------------------------------------------------------------
 *
 * scheduler.go
 *    Worker submission scheduler for NeuronHive
 *
 * Decides how many workers of which resource class each meadow should
 * receive. Analyses are visited in the suitability order the adaptor
 * provides and are never re-sorted; the first analysis reached exhausts
 * its allowance before the next is considered. Fairness emerges across
 * repeated rounds, not within one.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/queen/scheduler.go
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"fmt"

	"github.com/neurondb/NeuronHive/internal/db"
	"github.com/neurondb/NeuronHive/internal/meadow"
	"github.com/neurondb/NeuronHive/internal/metrics"
)

/* ScheduleParams is one scheduling round's input */
type ScheduleParams struct {
	/* Analysis restricts the round to one analysis; nil considers all */
	Analysis *db.Analysis

	/* SubmitLimit caps total submissions this round */
	SubmitLimit int

	/* SlotsByMeadow maps meadow type to free submission slots; negative
	 * means unlimited */
	SlotsByMeadow map[string]int

	/* PendingByMeadowRC maps meadow type and resource class name to
	 * workers already queued. The scheduler deducts from this ledger as
	 * it assigns, so one pending worker is only ever counted once. */
	PendingByMeadowRC map[string]map[string]int

	/* RCNames maps resource_class_id to resource class name */
	RCNames map[int64]string

	/* DefaultMeadowType is the meadow every analysis in the round is
	 * scheduled onto */
	DefaultMeadowType string
}

/* Schedule is one round's decision: meadow type → rc name → workers */
type Schedule struct {
	Counts map[string]map[string]int
	Total  int
}

func (s *Schedule) add(meadowType, rcName string, count int) {
	if s.Counts[meadowType] == nil {
		s.Counts[meadowType] = make(map[string]int)
	}
	s.Counts[meadowType][rcName] += count
	s.Total += count
}

/* ScheduleWorkers computes how many new workers to submit per meadow and
 * resource class, spending a running load budget of 1.0 − current load. */
func (qn *Queen) ScheduleWorkers(ctx context.Context, p ScheduleParams) (*Schedule, error) {
	metrics.RecordSchedulerRound()
	schedule := &Schedule{Counts: make(map[string]map[string]int)}

	var candidates []db.Analysis
	if p.Analysis != nil {
		candidates = []db.Analysis{*p.Analysis}
	} else {
		var err error
		candidates, err = qn.queries.Analyses().FetchAllSuitable(ctx, 0)
		if err != nil {
			return nil, err
		}
	}

	load, err := qn.HiveCurrentLoad(ctx)
	if err != nil {
		return nil, err
	}
	availableLoad := 1.0 - load

	submitLimit := p.SubmitLimit

	for i := range candidates {
		analysis := &candidates[i]

		if availableLoad <= 0 {
			break
		}

		meadowType := p.DefaultMeadowType
		slots, haveSlots := p.SlotsByMeadow[meadowType]
		if !haveSlots {
			slots = 0
		}
		effectiveLimit := submitLimit
		if slots >= 0 && slots < effectiveLimit {
			effectiveLimit = slots
		}
		if effectiveLimit <= 0 {
			break
		}

		stats, err := qn.queries.Stats().FetchByAnalysisID(ctx, analysis.AnalysisID)
		if err != nil {
			return nil, err
		}
		switch stats.Status {
		case db.AnalysisLoading, db.AnalysisBlocked, db.AnalysisAllClaimed:
			/* these can be stale views; refresh before judging */
			stats, err = qn.SafeSynchronizeStats(ctx, stats)
			if err != nil {
				return nil, err
			}
		}
		if stats.Status == db.AnalysisBlocked {
			continue
		}

		workers := stats.NumRequiredWorkers
		if workers <= 0 {
			continue
		}

		if workers > int64(effectiveLimit) {
			workers = int64(effectiveLimit)
		}
		submitLimit -= int(workers)
		if slots >= 0 {
			p.SlotsByMeadow[meadowType] = slots - int(workers)
		}

		if stats.HiveCapacity > 0 {
			capacityShare := int64(availableLoad * float64(stats.HiveCapacity))
			if workers > capacityShare {
				workers = capacityShare
			}
			if workers <= 0 {
				continue
			}
			availableLoad -= float64(workers) / float64(stats.HiveCapacity)
		}

		rcName, ok := p.RCNames[analysis.ResourceClassID]
		if !ok {
			return nil, fmt.Errorf("no resource class name known for resource_class_id=%d of analysis %q",
				analysis.ResourceClassID, analysis.LogicName)
		}

		if pending := p.PendingByMeadowRC[meadowType][rcName]; pending > 0 {
			deducted := pending
			if workers < int64(deducted) {
				deducted = int(workers)
			}
			workers -= int64(deducted)
			p.PendingByMeadowRC[meadowType][rcName] = pending - deducted
			if workers <= 0 {
				continue
			}
		}

		schedule.add(meadowType, rcName, int(workers))
	}

	return schedule, nil
}

/* ScheduleWorkersResyncIfNecessary wraps ScheduleWorkers with the
 * idle-deadlock breaker: when nothing is scheduled while the hive is
 * unloaded and no worker is actually running in any meadow, stale counts
 * are the likely culprit — garbage-collect, resync, and try once more. */
func (qn *Queen) ScheduleWorkersResyncIfNecessary(ctx context.Context, valley *meadow.Valley, analysis *db.Analysis) (*Schedule, error) {
	params := qn.scheduleParamsFromValley(ctx, valley, analysis)
	schedule, err := qn.ScheduleWorkers(ctx, params)
	if err != nil {
		return nil, err
	}
	if schedule.Total > 0 {
		return schedule, nil
	}

	load, err := qn.HiveCurrentLoad(ctx)
	if err != nil {
		return nil, err
	}
	if load > 0 || qn.countRunningInValley(ctx, valley) > 0 {
		return schedule, nil
	}

	metrics.InfoWithContext(ctx, "Hive looks idle but unscheduled; garbage collecting and resyncing", nil)

	if _, err := qn.CheckForDeadWorkers(ctx, valley, true); err != nil {
		return nil, err
	}
	if err := qn.SynchronizeHive(ctx, analysis); err != nil {
		return nil, err
	}

	params = qn.scheduleParamsFromValley(ctx, valley, analysis)
	return qn.ScheduleWorkers(ctx, params)
}

func (qn *Queen) scheduleParamsFromValley(ctx context.Context, valley *meadow.Valley, analysis *db.Analysis) ScheduleParams {
	return ScheduleParams{
		Analysis:          analysis,
		SubmitLimit:       valley.SubmitWorkersMax(),
		SlotsByMeadow:     valley.AvailableWorkerSlotsByMeadowType(ctx),
		PendingByMeadowRC: valley.PendingWorkerCountsByMeadowTypeRCName(ctx),
		RCNames:           qn.resourceClassNames(ctx),
		DefaultMeadowType: valley.DefaultMeadow().Type(),
	}
}

func (qn *Queen) resourceClassNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	rcs, err := qn.queries.ResourceClasses().FetchAll(ctx)
	if err != nil {
		metrics.ErrorWithContext(ctx, "Failed to list resource classes", err, nil)
		return names
	}
	for _, rc := range rcs {
		names[rc.ResourceClassID] = rc.Name
	}
	return names
}

/* countRunningInValley counts worker processes the meadows can actually
 * see; unreachable meadows contribute nothing. */
func (qn *Queen) countRunningInValley(ctx context.Context, valley *meadow.Valley) int {
	total := 0
	for _, driver := range valley.AvailableMeadows() {
		statusCtx, cancel := context.WithTimeout(ctx, meadowCallTimeout)
		statuses, err := driver.StatusOfAllOurWorkers(statusCtx)
		cancel()
		if err != nil {
			continue
		}
		total += len(statuses)
	}
	return total
}
