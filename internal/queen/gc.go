/*-------------------------------------------------------------------------
 *
 * gc.go
 *    Dead worker detection for NeuronHive
 *
 * Compares the database's view of living workers against what the
 * meadows actually run. A worker on an unreachable meadow is left alone:
 * absence of evidence is not death.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/queen/gc.go
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"context"
	"time"

	"github.com/neurondb/NeuronHive/internal/db"
	"github.com/neurondb/NeuronHive/internal/meadow"
	"github.com/neurondb/NeuronHive/internal/metrics"
)

/* meadow drivers talk to external systems; bound every call so one hung
 * backend cannot stall a whole scheduling cycle */
const meadowCallTimeout = time.Minute

/* GCReport summarizes one garbage collection pass */
type GCReport struct {
	Checked        int
	Running        int
	Unreachable    int
	Lost           int
	BuriedReleased int64
}

/* CheckForDeadWorkers finds workers whose process disappeared from their
 * meadow and registers their deaths, asking the meadow for a post-mortem
 * cause when it supports one. With alsoCheckBuriedInHaste, already-DEAD
 * workers still owning non-terminal jobs get those jobs released too —
 * an integrity pass independent of meadow state. */
func (qn *Queen) CheckForDeadWorkers(ctx context.Context, valley *meadow.Valley, alsoCheckBuriedInHaste bool) (*GCReport, error) {
	report := &GCReport{}

	workers, err := qn.queries.Workers().FetchAllAlive(ctx)
	if err != nil {
		return nil, err
	}
	report.Checked = len(workers)

	byMeadowType := make(map[string][]db.Worker)
	for _, w := range workers {
		byMeadowType[w.MeadowType] = append(byMeadowType[w.MeadowType], w)
	}

	for meadowType, group := range byMeadowType {
		driver, ok := valley.MeadowForType(meadowType)
		if !ok {
			report.Unreachable += len(group)
			metrics.WarnWithContext(ctx, "Meadow not in this valley, skipping its workers",
				map[string]interface{}{"meadow_type": meadowType, "workers": len(group)})
			continue
		}

		statusCtx, cancel := context.WithTimeout(ctx, meadowCallTimeout)
		statuses, err := driver.StatusOfAllOurWorkers(statusCtx)
		cancel()
		if err != nil {
			report.Unreachable += len(group)
			metrics.ErrorWithContext(ctx, "Meadow unreachable, not judging its workers", err,
				map[string]interface{}{"meadow_type": meadowType, "workers": len(group)})
			continue
		}

		var lost []db.Worker
		for _, w := range group {
			if _, alive := statuses[w.ProcessID]; alive {
				report.Running++
				continue
			}
			lost = append(lost, w)
		}
		if len(lost) == 0 {
			continue
		}

		causes := qn.findOutCauses(ctx, driver, lost)

		for i := range lost {
			w := &lost[i]
			cause, known := causes[w.ProcessID]
			if !known {
				cause = db.CauseUnknown
			}
			if err := qn.RegisterWorkerDeath(ctx, w, cause); err != nil {
				return report, err
			}
			report.Lost++
		}
	}

	if alsoCheckBuriedInHaste {
		released, err := qn.releaseBuriedInHaste(ctx)
		if err != nil {
			return report, err
		}
		report.BuriedReleased = released
	}

	return report, nil
}

/* findOutCauses asks the driver for post-mortem causes when it can; a
 * driver without the capability, or a failing one, yields no causes. */
func (qn *Queen) findOutCauses(ctx context.Context, driver meadow.Meadow, lost []db.Worker) map[string]db.WorkerCause {
	finder, ok := driver.(meadow.CauseFinder)
	if !ok {
		return nil
	}

	pids := make([]string, len(lost))
	for i, w := range lost {
		pids[i] = w.ProcessID
	}

	causeCtx, cancel := context.WithTimeout(ctx, meadowCallTimeout)
	causes, err := finder.FindOutCauses(causeCtx, pids)
	cancel()
	if err != nil {
		metrics.WarnWithContext(ctx, "Post-mortem lookup failed, defaulting causes to UNKNOWN",
			map[string]interface{}{"meadow_type": driver.Type(), "error": err.Error()})
		return nil
	}
	return causes
}

/* releaseBuriedInHaste rescues jobs still owned by workers that were
 * marked DEAD without their jobs being released. */
func (qn *Queen) releaseBuriedInHaste(ctx context.Context) (int64, error) {
	buried, err := qn.queries.Workers().FetchBuriedInHaste(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, w := range buried {
		released, err := qn.queries.Jobs().ReleaseUndoneJobsFromWorker(ctx, w.WorkerID)
		if err != nil {
			return total, err
		}
		total += released
	}
	if total > 0 {
		metrics.RecordJobsReleased(int(total))
		metrics.InfoWithContext(ctx, "Released jobs of workers buried in haste",
			map[string]interface{}{"workers": len(buried), "released": total})
	}
	return total, nil
}
