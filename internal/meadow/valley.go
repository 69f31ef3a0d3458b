/*-------------------------------------------------------------------------
 *
 * valley.go
 *    Meadow federation for NeuronHive
 *
 * The valley is one beekeeper's view of every meadow it can reach. A
 * meadow that stops answering is reported per query, never fatal: the
 * garbage collector must not mark workers dead on suspicion.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/meadow/valley.go
 *
 *-------------------------------------------------------------------------
 */

package meadow

import (
	"context"
	"fmt"

	"github.com/neurondb/NeuronHive/internal/db"
)

type Valley struct {
	meadows          map[string]Meadow
	defaultType      string
	submitWorkersMax int
}

/* NewValley federates the given meadows; the first becomes the default
 * unless defaultType names another. submitWorkersMax caps one scheduling
 * round's submissions across the whole valley. */
func NewValley(meadows []Meadow, defaultType string, submitWorkersMax int) (*Valley, error) {
	if len(meadows) == 0 {
		return nil, fmt.Errorf("a valley needs at least one meadow")
	}

	byType := make(map[string]Meadow, len(meadows))
	for _, m := range meadows {
		if _, dup := byType[m.Type()]; dup {
			return nil, fmt.Errorf("duplicate meadow type %q in valley", m.Type())
		}
		byType[m.Type()] = m
	}

	if defaultType == "" {
		defaultType = meadows[0].Type()
	}
	if _, ok := byType[defaultType]; !ok {
		return nil, fmt.Errorf("default meadow type %q is not in this valley", defaultType)
	}

	if submitWorkersMax <= 0 {
		submitWorkersMax = 50
	}

	return &Valley{meadows: byType, defaultType: defaultType, submitWorkersMax: submitWorkersMax}, nil
}

/* AvailableMeadows returns the federated drivers keyed by meadow type */
func (v *Valley) AvailableMeadows() map[string]Meadow {
	return v.meadows
}

/* MeadowForType returns the driver for a meadow type, if reachable */
func (v *Valley) MeadowForType(meadowType string) (Meadow, bool) {
	m, ok := v.meadows[meadowType]
	return m, ok
}

/* MeadowResponsibleFor finds the driver that submitted the worker */
func (v *Valley) MeadowResponsibleFor(worker *db.Worker) (Meadow, bool) {
	return v.MeadowForType(worker.MeadowType)
}

/* DefaultMeadow returns the meadow new work goes to when nothing narrows
 * the choice. */
func (v *Valley) DefaultMeadow() Meadow {
	return v.meadows[v.defaultType]
}

/* SubmitWorkersMax is the per-round submission cap for this valley */
func (v *Valley) SubmitWorkersMax() int {
	return v.submitWorkersMax
}

/* AvailableWorkerSlotsByMeadowType collects free slots per meadow type.
 * Unreachable meadows are omitted; the scheduler treats absence as zero. */
func (v *Valley) AvailableWorkerSlotsByMeadowType(ctx context.Context) map[string]int {
	slots := make(map[string]int, len(v.meadows))
	for mtype, m := range v.meadows {
		n, err := m.AvailableWorkerSlots(ctx)
		if err != nil {
			continue
		}
		slots[mtype] = n
	}
	return slots
}

/* PendingWorkerCountsByMeadowTypeRCName collects queued worker counts per
 * (meadow type, resource class name). Unreachable meadows are omitted. */
func (v *Valley) PendingWorkerCountsByMeadowTypeRCName(ctx context.Context) map[string]map[string]int {
	pending := make(map[string]map[string]int, len(v.meadows))
	for mtype, m := range v.meadows {
		counts, err := m.PendingWorkerCounts(ctx)
		if err != nil {
			continue
		}
		pending[mtype] = counts
	}
	return pending
}
