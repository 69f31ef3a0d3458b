/*-------------------------------------------------------------------------
 *
 * queries.go
 *    Query carrier for NeuronHive adaptors
 *
 * The per-entity adaptors (analysis, stats, worker, job, ...) share one
 * Queries carrier holding the pool, the dialect, and the error helpers.
 * Each adaptor exposes a narrow operation set per entity; callers receive
 * the adaptors, never raw SQL.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

type Queries struct {
	DB       *sqlx.DB
	dialect  Dialect
	connInfo func() string
}

func NewQueries(database *DB) *Queries {
	return &Queries{
		DB:      database.DB,
		dialect: database.dialect,
		connInfo: func() string {
			return database.ConnInfoString()
		},
	}
}

/* Dialect returns the SQL dialect queries are built for */
func (q *Queries) Dialect() Dialect {
	return q.dialect
}

/* Analyses returns the analysis adaptor */
func (q *Queries) Analyses() *AnalysisQueries {
	return &AnalysisQueries{q}
}

/* Stats returns the analysis_stats adaptor */
func (q *Queries) Stats() *StatsQueries {
	return &StatsQueries{q}
}

/* Workers returns the worker adaptor */
func (q *Queries) Workers() *WorkerQueries {
	return &WorkerQueries{q}
}

/* Jobs returns the job adaptor */
func (q *Queries) Jobs() *JobQueries {
	return &JobQueries{q}
}

/* ResourceClasses returns the resource_class adaptor */
func (q *Queries) ResourceClasses() *ResourceClassQueries {
	return &ResourceClassQueries{q}
}

/* Beekeepers returns the beekeeper adaptor */
func (q *Queries) Beekeepers() *BeekeeperQueries {
	return &BeekeeperQueries{q}
}

/* Monitor returns the monitor adaptor */
func (q *Queries) Monitor() *MonitorQueries {
	return &MonitorQueries{q}
}

func (q *Queries) getConnInfoString() string {
	if q.connInfo != nil {
		return q.connInfo()
	}
	return "unknown hive database"
}

/* formatQueryError formats a detailed query error message */
func (q *Queries) formatQueryError(operation string, query string, paramCount int, table string, err error) error {
	return fmt.Errorf("query execution failed on %s: operation=%s, table=%s, params=%d, query=%q, error=%w",
		q.getConnInfoString(), operation, table, paramCount, firstLine(query), err)
}
