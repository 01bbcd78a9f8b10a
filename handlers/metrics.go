package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictionsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rossmann_api_predictions_served_total",
		Help: "Total number of predictions returned.",
	})
	predictionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rossmann_api_predictions_failed_total",
		Help: "Total number of rejected prediction requests, by reason.",
	}, []string{"reason"})
	predictionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rossmann_api_prediction_cache_hits_total",
		Help: "Total number of predictions answered from Redis.",
	})
	predictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rossmann_api_prediction_duration_seconds",
		Help:    "Time spent running the pipeline for one request.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
	modelReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rossmann_api_model_reloads_total",
		Help: "Total number of model reload attempts, by outcome.",
	}, []string{"outcome"})
)

// ObserveReload counts a reload attempt; it matches the callback shape of
// ModelRegistry.Watch and Poll.
func ObserveReload(changed bool, err error) {
	switch {
	case err != nil:
		modelReloads.WithLabelValues("error").Inc()
	case changed:
		modelReloads.WithLabelValues("changed").Inc()
	default:
		modelReloads.WithLabelValues("unchanged").Inc()
	}
}
