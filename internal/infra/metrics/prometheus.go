package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "motion_job_stage_duration_seconds",
		Help:    "Duration of movement analysis pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motion_frames_decoded_total",
		Help: "Total number of frames decoded across all jobs",
	})

	PairsClassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_pairs_classified_total",
		Help: "Total number of frame pairs classified, by label",
	}, []string{"label"})

	FitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_fit_failures_total",
		Help: "Total number of frame pairs whose homography fit failed, by reason",
	}, []string{"reason"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motion_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
