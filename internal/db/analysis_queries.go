/*-------------------------------------------------------------------------
 *
 * analysis_queries.go
 *    Analysis and resource class adaptors for NeuronHive
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/analysis_queries.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	getAnalysisByIDQuery = `SELECT * FROM analysis_base WHERE analysis_id = ?`

	getAnalysisByLogicNameQuery = `SELECT * FROM analysis_base WHERE logic_name = ?`

	/* Suitability ordering for scheduling and specialization: higher
	 * priority first, then stable by id. The scheduler never re-sorts. */
	listSuitableAnalysesQuery = `
		SELECT a.* FROM analysis_base a
		WHERE (? = 0 OR a.resource_class_id = ?)
		ORDER BY a.priority DESC, a.analysis_id ASC`

	countFailedAnalysesQuery = `
		SELECT COUNT(*) FROM analysis_stats
		WHERE status = 'FAILED' AND (? = 0 OR analysis_id = ?)`

	getResourceClassByIDQuery   = `SELECT * FROM resource_class WHERE resource_class_id = ?`
	getResourceClassByNameQuery = `SELECT * FROM resource_class WHERE name = ?`
	listResourceClassesQuery    = `SELECT * FROM resource_class ORDER BY resource_class_id`

	insertResourceClassQuery = `INSERT INTO resource_class (name) VALUES (?)`

	insertAnalysisQuery = `
		INSERT INTO analysis_base (logic_name, resource_class_id, priority)
		VALUES (?, ?, ?)`

	insertAnalysisStatsQuery = `
		INSERT INTO analysis_stats (analysis_id, status, hive_capacity, batch_size)
		VALUES (?, 'READY', ?, ?)`
)

type AnalysisQueries struct {
	q *Queries
}

func (a *AnalysisQueries) FetchByID(ctx context.Context, id int64) (*Analysis, error) {
	var analysis Analysis
	err := a.q.DB.GetContext(ctx, &analysis, getAnalysisByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis not found on %s: analysis_id=%d", a.q.getConnInfoString(), id)
	}
	if err != nil {
		return nil, a.q.formatQueryError("SELECT", getAnalysisByIDQuery, 1, "analysis_base", err)
	}
	return &analysis, nil
}

func (a *AnalysisQueries) FetchByLogicName(ctx context.Context, logicName string) (*Analysis, error) {
	var analysis Analysis
	err := a.q.DB.GetContext(ctx, &analysis, getAnalysisByLogicNameQuery, logicName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis not found on %s: logic_name=%q", a.q.getConnInfoString(), logicName)
	}
	if err != nil {
		return nil, a.q.formatQueryError("SELECT", getAnalysisByLogicNameQuery, 1, "analysis_base", err)
	}
	return &analysis, nil
}

/* FetchAllSuitable lists analyses in scheduling suitability order,
 * optionally scoped to one resource class (0 means any). */
func (a *AnalysisQueries) FetchAllSuitable(ctx context.Context, resourceClassID int64) ([]Analysis, error) {
	var analyses []Analysis
	err := a.q.DB.SelectContext(ctx, &analyses, listSuitableAnalysesQuery, resourceClassID, resourceClassID)
	if err != nil {
		return nil, a.q.formatQueryError("SELECT", listSuitableAnalysesQuery, 2, "analysis_base", err)
	}
	return analyses, nil
}

/* CountFailed counts FAILED analyses, optionally restricted to one
 * analysis id (0 means all). Both sides of the restriction are ids. */
func (a *AnalysisQueries) CountFailed(ctx context.Context, filterAnalysisID int64) (int, error) {
	var count int
	err := a.q.DB.GetContext(ctx, &count, countFailedAnalysesQuery, filterAnalysisID, filterAnalysisID)
	if err != nil {
		return 0, a.q.formatQueryError("SELECT", countFailedAnalysesQuery, 2, "analysis_stats", err)
	}
	return count, nil
}

/* Insert creates an analysis together with its empty stats row */
func (a *AnalysisQueries) Insert(ctx context.Context, analysis *Analysis, hiveCapacity, batchSize int64) error {
	result, err := a.q.DB.ExecContext(ctx, insertAnalysisQuery, analysis.LogicName, analysis.ResourceClassID, analysis.Priority)
	if err != nil {
		return a.q.formatQueryError("INSERT", insertAnalysisQuery, 3, "analysis_base", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read analysis id after insert on %s: %w", a.q.getConnInfoString(), err)
	}
	analysis.AnalysisID = id

	if batchSize < 1 {
		batchSize = 1
	}
	if _, err := a.q.DB.ExecContext(ctx, insertAnalysisStatsQuery, id, hiveCapacity, batchSize); err != nil {
		return a.q.formatQueryError("INSERT", insertAnalysisStatsQuery, 3, "analysis_stats", err)
	}
	return nil
}

type ResourceClassQueries struct {
	q *Queries
}

func (r *ResourceClassQueries) FetchByID(ctx context.Context, id int64) (*ResourceClass, error) {
	var rc ResourceClass
	err := r.q.DB.GetContext(ctx, &rc, getResourceClassByIDQuery, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource class not found on %s: resource_class_id=%d", r.q.getConnInfoString(), id)
	}
	if err != nil {
		return nil, r.q.formatQueryError("SELECT", getResourceClassByIDQuery, 1, "resource_class", err)
	}
	return &rc, nil
}

func (r *ResourceClassQueries) FetchByName(ctx context.Context, name string) (*ResourceClass, error) {
	var rc ResourceClass
	err := r.q.DB.GetContext(ctx, &rc, getResourceClassByNameQuery, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource class not found on %s: name=%q", r.q.getConnInfoString(), name)
	}
	if err != nil {
		return nil, r.q.formatQueryError("SELECT", getResourceClassByNameQuery, 1, "resource_class", err)
	}
	return &rc, nil
}

/* FetchAll lists every resource class; callers key maps by id or name */
func (r *ResourceClassQueries) FetchAll(ctx context.Context) ([]ResourceClass, error) {
	var rcs []ResourceClass
	if err := r.q.DB.SelectContext(ctx, &rcs, listResourceClassesQuery); err != nil {
		return nil, r.q.formatQueryError("SELECT", listResourceClassesQuery, 0, "resource_class", err)
	}
	return rcs, nil
}

func (r *ResourceClassQueries) Insert(ctx context.Context, rc *ResourceClass) error {
	result, err := r.q.DB.ExecContext(ctx, insertResourceClassQuery, rc.Name)
	if err != nil {
		return r.q.formatQueryError("INSERT", insertResourceClassQuery, 1, "resource_class", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read resource class id after insert on %s: %w", r.q.getConnInfoString(), err)
	}
	rc.ResourceClassID = id
	return nil
}
