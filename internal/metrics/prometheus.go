/*-------------------------------------------------------------------------
 *
 * prometheus.go
 *    Prometheus metrics for NeuronHive
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/metrics/prometheus.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Worker lifecycle metrics */
	workersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronhive_workers_created_total",
			Help: "Total number of workers registered at birth",
		},
		[]string{"meadow_type"},
	)

	workerDeathsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronhive_worker_deaths_total",
			Help: "Total number of worker deaths by cause",
		},
		[]string{"cause"},
	)

	jobsReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuronhive_jobs_released_total",
			Help: "Total number of in-flight jobs released back to READY",
		},
	)

	/* Synchronizer metrics */
	syncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronhive_sync_passes_total",
			Help: "Total number of analysis_stats synchronization passes",
		},
		[]string{"result"},
	)

	syncLockContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuronhive_sync_lock_contention_total",
			Help: "Total number of sync passes skipped because another process held the lock",
		},
	)

	/* Scheduler metrics */
	schedulerRoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuronhive_scheduler_rounds_total",
			Help: "Total number of scheduling rounds",
		},
	)

	workersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronhive_workers_submitted_total",
			Help: "Total number of workers submitted to meadows",
		},
		[]string{"meadow_type", "resource_class"},
	)

	hiveLoadGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuronhive_hive_load",
			Help: "Current fractional hive load (1.0 means full)",
		},
	)
)

/* RecordWorkerCreated records a worker birth */
func RecordWorkerCreated(meadowType string) {
	workersCreatedTotal.WithLabelValues(meadowType).Inc()
}

/* RecordWorkerDeath records a worker death with its cause */
func RecordWorkerDeath(cause string) {
	workerDeathsTotal.WithLabelValues(cause).Inc()
}

/* RecordJobsReleased records jobs released back to READY */
func RecordJobsReleased(count int) {
	jobsReleasedTotal.Add(float64(count))
}

/* RecordSyncPass records one synchronization pass outcome */
func RecordSyncPass(result string) {
	syncPassesTotal.WithLabelValues(result).Inc()
}

/* RecordSyncLockContention records a skipped sync due to lock contention */
func RecordSyncLockContention() {
	syncLockContentionTotal.Inc()
}

/* RecordSchedulerRound records one scheduling round */
func RecordSchedulerRound() {
	schedulerRoundsTotal.Inc()
}

/* RecordWorkersSubmitted records workers submitted to a meadow */
func RecordWorkersSubmitted(meadowType, resourceClass string, count int) {
	workersSubmittedTotal.WithLabelValues(meadowType, resourceClass).Add(float64(count))
}

/* SetHiveLoad updates the hive load gauge */
func SetHiveLoad(load float64) {
	hiveLoadGauge.Set(load)
}

/* Handler returns the prometheus scrape handler */
func Handler() http.Handler {
	return promhttp.Handler()
}
