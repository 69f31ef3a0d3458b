/*-------------------------------------------------------------------------
 *
 * meadow.go
 *    Meadow driver contract for NeuronHive
 *
 * A meadow is one compute backend workers run on. Drivers vary in what
 * they can do, so the optional capabilities are separate interfaces
 * checked with type assertions rather than a wide base interface.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/meadow/meadow.go
 *
 *-------------------------------------------------------------------------
 */

package meadow

import (
	"context"

	"github.com/neurondb/NeuronHive/internal/db"
)

/* ProcessStatus is a meadow-level view of one worker process */
type ProcessStatus string

const (
	ProcessRunning   ProcessStatus = "RUN"
	ProcessPending   ProcessStatus = "PEND"
	ProcessSuspended ProcessStatus = "SUSP"
)

/* Meadow is the capability set every driver must provide */
type Meadow interface {
	/* Type identifies the backend kind (LOCAL, LSF, ...) */
	Type() string

	/* Name identifies this particular meadow instance */
	Name() string

	/* StatusOfAllOurWorkers maps live process ids to their status */
	StatusOfAllOurWorkers(ctx context.Context) (map[string]ProcessStatus, error)

	/* SubmitWorkers submits count workers of the given resource class */
	SubmitWorkers(ctx context.Context, rcName string, count int) error

	/* PendingWorkerCounts maps resource class names to queued-not-yet-running counts */
	PendingWorkerCounts(ctx context.Context) (map[string]int, error)

	/* AvailableWorkerSlots reports free submission slots; negative means unlimited */
	AvailableWorkerSlots(ctx context.Context) (int, error)
}

/* CauseFinder is the optional post-mortem capability. Callers must guard
 * with a type assertion; most drivers cannot tell why a process died. */
type CauseFinder interface {
	FindOutCauses(ctx context.Context, processIDs []string) (map[string]db.WorkerCause, error)
}
