/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/datazip-inc/apisync/utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "apisync"

// Metrics are the sync engine's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	records    *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	streams    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	partitions prometheus.Gauge
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Records emitted per stream.",
		}, []string{"stream"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_attempts_total",
			Help:      "Page request attempts per stream and outcome class.",
		}, []string{"stream", "outcome"}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_finished_total",
			Help:      "Streams finished per terminal phase.",
		}, []string{"phase"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Wall time spent per stream.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"stream"}),
		partitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partitions_in_flight",
			Help:      "Partitions currently being read.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(m.records, m.attempts, m.streams, m.duration, m.partitions)
	}
	return m
}

func (m *Metrics) RecordEmitted(stream string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stream).Inc()
}

func (m *Metrics) Attempt(stream, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(stream, outcome).Inc()
}

func (m *Metrics) StreamFinished(stream, phase string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(phase).Inc()
	m.duration.WithLabelValues(stream).Observe(elapsed.Seconds())
}

func (m *Metrics) PartitionStarted() {
	if m == nil {
		return
	}
	m.partitions.Inc()
}

func (m *Metrics) PartitionDone() {
	if m == nil {
		return
	}
	m.partitions.Dec()
}

// Handler routes /metrics to the gatherer and answers liveness on /healthz
func Handler(gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

// Serve exposes Handler on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	server := &http.Server{Addr: addr, Handler: Handler(gatherer), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infof("serving metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
