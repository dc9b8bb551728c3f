/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	applyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slipway_apply_total",
		Help: "Total number of resource apply operations",
	}, []string{"result", "kind"})

	applyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slipway_apply_duration_seconds",
		Help:    "Duration of resource apply operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"kind"})

	readinessChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slipway_readiness_checks_total",
		Help: "Total number of readiness status queries",
	}, []string{"result", "kind"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slipway_stage_duration_seconds",
		Help:    "Duration of deployment stages, apply through readiness",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5min
	}, []string{"stage"})
)

func init() {
	metrics.Registry.MustRegister(
		applyTotal,
		applyDuration,
		readinessChecks,
		stageDuration,
	)
}

// Handler returns an HTTP handler exposing the registry at /metrics,
// for the CLI's opt-in metrics listener.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// RecordApply records an apply operation outcome and duration.
func RecordApply(result, kind string, seconds float64) {
	applyTotal.WithLabelValues(result, kind).Inc()
	applyDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordReadinessCheck records a single readiness status query.
func RecordReadinessCheck(result, kind string) {
	readinessChecks.WithLabelValues(result, kind).Inc()
}

// RecordStage records the wall-clock duration of one deployment stage.
func RecordStage(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}
