package dtp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtp_ingest_documents_total",
			Help: "Buffered documents handled by the driver, by outcome",
		},
		[]string{"status"}, // processed, errored
	)

	incidentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtp_ingest_incidents_total",
			Help: "Incidents expanded and written to the entity tables",
		},
	)

	incidentsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtp_ingest_incidents_skipped_total",
			Help: "Incidents skipped for content defects (missing KartId, bad shape)",
		},
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dtp_ingest_run_duration_seconds",
			Help:    "Duration of one full ingestion run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
