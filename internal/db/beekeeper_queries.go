/*-------------------------------------------------------------------------
 *
 * beekeeper_queries.go
 *    Beekeeper registration and monitor sampling for NeuronHive
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/beekeeper_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"fmt"
)

const (
	registerBeekeeperQuery = `
		INSERT INTO beekeeper (beekeeper_id, host, process_id, options)
		VALUES (?, ?, ?, ?)`

	markBeekeeperDeadQuery = `
		UPDATE beekeeper SET when_died = %s, cause_of_death = ?
		WHERE beekeeper_id = ? AND when_died IS NULL`

	appendMonitorSampleQuery = `
		INSERT INTO monitor (workers_running, hive_load)
		VALUES (?, ?)`
)

type BeekeeperQueries struct {
	q *Queries
}

func (b *BeekeeperQueries) Register(ctx context.Context, bk *Beekeeper) error {
	params := []interface{}{bk.BeekeeperID, bk.Host, bk.ProcessID, bk.Options}
	if _, err := b.q.DB.ExecContext(ctx, registerBeekeeperQuery, params...); err != nil {
		return b.q.formatQueryError("INSERT", registerBeekeeperQuery, len(params), "beekeeper", err)
	}
	return nil
}

func (b *BeekeeperQueries) MarkDead(ctx context.Context, beekeeperID, cause string) error {
	query := fmt.Sprintf(markBeekeeperDeadQuery, b.q.dialect.Now())
	if _, err := b.q.DB.ExecContext(ctx, query, cause, beekeeperID); err != nil {
		return b.q.formatQueryError("UPDATE", query, 2, "beekeeper", err)
	}
	return nil
}

type MonitorQueries struct {
	q *Queries
}

/* AppendSample records one throughput sample; the monitor table is
 * append-only. */
func (m *MonitorQueries) AppendSample(ctx context.Context, workersRunning int64, hiveLoad float64) error {
	if _, err := m.q.DB.ExecContext(ctx, appendMonitorSampleQuery, workersRunning, hiveLoad); err != nil {
		return m.q.formatQueryError("INSERT", appendMonitorSampleQuery, 2, "monitor", err)
	}
	return nil
}
