/*-------------------------------------------------------------------------
 *
 * queen.go
 *    The hive coordinator for NeuronHive
 *
 * The Queen regulates worker creation, specialization, accounting and
 * death, keeps analysis_stats aggregates in step with the job and worker
 * tables, and decides how many new workers each meadow receives. All
 * coordination between concurrent Queens goes through the database; a
 * Queen holds no state worth sharing.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/queen/queen.go
 *
 *-------------------------------------------------------------------------
 */

package queen

import (
	"fmt"
	"io"
	"time"

	"github.com/neurondb/NeuronHive/internal/db"
)

const (
	/* a WORKING analysis synced this recently is left alone */
	workingFreshness = 3 * time.Minute

	/* a sync lock untouched for this long belongs to a dead coordinator */
	defaultSyncLockTTL = 10 * time.Minute
)

type Queen struct {
	queries     *db.Queries
	syncLockTTL time.Duration

	/* progress receives the one-character-per-analysis sync trace */
	progress io.Writer

	/* trigger mode: the database maintains live job counts itself and
	 * the synchronizer only recomputes num_required_workers */
	countTriggers bool
}

type Option func(*Queen)

/* WithSyncLockTTL overrides how long an abandoned sync lock is honoured */
func WithSyncLockTTL(ttl time.Duration) Option {
	return func(q *Queen) { q.syncLockTTL = ttl }
}

/* WithProgressWriter directs the synchronize_hive progress trace */
func WithProgressWriter(w io.Writer) Option {
	return func(q *Queen) { q.progress = w }
}

/* WithCountTriggers declares that the schema carries count-maintaining
 * triggers, switching the synchronizer to trigger mode. */
func WithCountTriggers() Option {
	return func(q *Queen) { q.countTriggers = true }
}

func NewQueen(queries *db.Queries, opts ...Option) *Queen {
	q := &Queen{
		queries:     queries,
		syncLockTTL: defaultSyncLockTTL,
		progress:    io.Discard,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

/* SpecializationError is a refused specialization together with the
 * cause_of_death the refused worker is expected to die with. */
type SpecializationError struct {
	Cause  db.WorkerCause
	Reason string
}

func (e *SpecializationError) Error() string {
	return fmt.Sprintf("specialization refused (%s): %s", e.Cause, e.Reason)
}

func refuse(cause db.WorkerCause, format string, args ...interface{}) *SpecializationError {
	return &SpecializationError{Cause: cause, Reason: fmt.Sprintf(format, args...)}
}
