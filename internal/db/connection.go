/*-------------------------------------------------------------------------
 *
 * connection.go
 *    Database connection management for NeuronHive
 *
 * Provides dialect-aware connection pooling with retry logic, health
 * checks, and schema bootstrap for the hive database.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/db/connection.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/neurondb/NeuronHive/internal/metrics"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_mysql.sql
var schemaMySQL string

const schemaVersion = "1"

/* DB manages the hive database connection pool */
type DB struct {
	*sqlx.DB
	dialect  Dialect
	url      string
	poolConf PoolConfig
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

/* DefaultPoolConfig returns the pool settings used when none are configured */
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

/* Connect opens the hive database named by a sqlite:// or mysql:// URL */
func Connect(rawURL string, poolConf PoolConfig) (*DB, error) {
	return ConnectWithRetry(rawURL, poolConf, 3, 2*time.Second)
}

/* ConnectWithRetry opens the hive database with bounded, jittered retry */
func ConnectWithRetry(rawURL string, poolConf PoolConfig, maxRetries int, retryDelay time.Duration) (*DB, error) {
	dialect, dsn, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	var conn *sqlx.DB
	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err = sqlx.Connect(dialect.DriverName(), dsn)
		if err == nil {
			conn.SetMaxOpenConns(poolConf.MaxOpenConns)
			conn.SetMaxIdleConns(poolConf.MaxIdleConns)
			conn.SetConnMaxLifetime(poolConf.ConnMaxLifetime)
			conn.SetConnMaxIdleTime(poolConf.ConnMaxIdleTime)
			return &DB{DB: conn, dialect: dialect, url: rawURL, poolConf: poolConf}, nil
		}

		if attempt < maxRetries-1 {
			/* jitter of ±25% to keep concurrent beekeepers from retrying in step */
			delay := retryDelay
			jitter := float64(delay) * 0.25
			delay += time.Duration(jitter * (rand.Float64()*2 - 1))

			metrics.WarnWithContext(context.Background(), "Hive database connection failed, retrying", map[string]interface{}{
				"attempt":     attempt + 1,
				"max_retries": maxRetries,
				"retry_delay": delay.String(),
				"error":       err.Error(),
			})

			time.Sleep(delay)
			retryDelay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to hive database %s after %d attempts: %w", redactURL(rawURL), maxRetries, err)
}

/* Dialect returns the SQL dialect the pool speaks */
func (d *DB) Dialect() Dialect {
	return d.dialect
}

/* ConnInfoString returns a redacted description of the connection for error messages */
func (d *DB) ConnInfoString() string {
	return redactURL(d.url)
}

/* HealthCheck tests the database connection */
func (d *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := d.DB.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check failed on %s: query='SELECT 1', error=%w", d.ConnInfoString(), err)
	}
	return nil
}

/* Bootstrap creates the hive schema when absent and records its version */
func (d *DB) Bootstrap(ctx context.Context) error {
	schema := schemaSQLite
	if d.dialect == DialectMySQL {
		schema = schemaMySQL
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed on %s: statement=%q, error=%w", d.ConnInfoString(), firstLine(stmt), err)
		}
	}

	var existing string
	err := d.DB.GetContext(ctx, &existing, "SELECT meta_value FROM hive_meta WHERE meta_key = ?", "hive_sql_schema_version")
	if err != nil {
		_, err = d.DB.ExecContext(ctx, "INSERT INTO hive_meta (meta_key, meta_value) VALUES (?, ?)",
			"hive_sql_schema_version", schemaVersion)
		if err != nil {
			return fmt.Errorf("failed to record schema version on %s: %w", d.ConnInfoString(), err)
		}
		return nil
	}
	if existing != schemaVersion {
		return fmt.Errorf("hive database %s has schema version %s, this build expects %s", d.ConnInfoString(), existing, schemaVersion)
	}
	return nil
}

/* GetPoolStats returns connection pool statistics */
func (d *DB) GetPoolStats() (openConns, idleConns, inUse int) {
	stats := d.DB.Stats()
	return stats.OpenConnections, stats.Idle, stats.InUse
}

/* Close closes the connection pool */
func (d *DB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

func redactURL(rawURL string) string {
	if at := strings.LastIndex(rawURL, "@"); at >= 0 {
		if scheme := strings.Index(rawURL, "://"); scheme >= 0 {
			return rawURL[:scheme+3] + "***" + rawURL[at:]
		}
	}
	return rawURL
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
