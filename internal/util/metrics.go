package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of pipeline runs by final status",
	}, []string{"status"})

	PipelineRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_seconds",
		Help:    "Wall time of a full pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Latency of each engine and collaborator stage",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	PipelineRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_records_total",
		Help: "Records processed by outcome (input, accepted, rejected)",
	}, []string{"outcome"})

	PipelineRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rejections_total",
		Help: "Records excluded from the model by reason",
	}, []string{"reason"})

	PipelineFlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_flags_total",
		Help: "Records flagged by rule",
	}, []string{"flag"})

	PipelineDimensionRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_table_rows",
		Help: "Row count of each modeled table after the last successful run",
	}, []string{"table"})

	PipelineConsistencyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_consistency_failures_total",
		Help: "Runs aborted by an internal consistency violation",
	}, []string{"invariant"})

	ExportFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_export_files_total",
		Help: "Files written by the export stage",
	}, []string{"format"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
