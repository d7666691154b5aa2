// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides Prometheus metrics for retrieval, generation and
// refinement sessions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	SearchesTotal      prometheus.Counter
	SearchDuration     prometheus.Histogram
	PassagesReturned   prometheus.Histogram
	ResolveFailures    *prometheus.CounterVec
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	StepRetriesTotal   *prometheus.CounterVec
	SessionsTotal      *prometheus.CounterVec
	SessionIterations  prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdesk_searches_total",
			Help: "Total number of retrieval searches",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_search_duration_seconds",
			Help:    "Duration of retrieval searches, embedding included",
			Buckets: prometheus.DefBuckets,
		}),
		PassagesReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_search_passages",
			Help:    "Number of passages returned per search",
			Buckets: prometheus.LinearBuckets(0, 2, 10),
		}),
		ResolveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_resolve_failures_total",
			Help: "Search hits dropped because their text could not be resolved",
		}, []string{"reason"}),
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_generations_total",
			Help: "Generation calls by provider and outcome",
		}, []string{"provider", "status"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdesk_generation_duration_seconds",
			Help:    "Duration of generation calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		StepRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_step_retries_total",
			Help: "Retried refinement steps",
		}, []string{"step"}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdesk_sessions_total",
			Help: "Finished refinement sessions by terminal state",
		}, []string{"state"}),
		SessionIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdesk_session_iterations",
			Help:    "Drafts produced per session",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}

	reg.MustRegister(
		m.SearchesTotal, m.SearchDuration, m.PassagesReturned, m.ResolveFailures,
		m.GenerationsTotal, m.GenerationDuration, m.StepRetriesTotal,
		m.SessionsTotal, m.SessionIterations,
	)
	return m
}

// ObserveSearch records one finished search.
func (m *Metrics) ObserveSearch(d time.Duration, passages int) {
	if m == nil {
		return
	}
	m.SearchesTotal.Inc()
	m.SearchDuration.Observe(d.Seconds())
	m.PassagesReturned.Observe(float64(passages))
}

// ResolveFailed records a dropped hit.
func (m *Metrics) ResolveFailed(reason string) {
	if m == nil {
		return
	}
	m.ResolveFailures.WithLabelValues(reason).Inc()
}

// ObserveGeneration records one generation call.
func (m *Metrics) ObserveGeneration(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GenerationsTotal.WithLabelValues(provider, status).Inc()
	m.GenerationDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// StepRetried records a retried refinement step.
func (m *Metrics) StepRetried(step string) {
	if m == nil {
		return
	}
	m.StepRetriesTotal.WithLabelValues(step).Inc()
}

// SessionFinished records a session's terminal state and draft count.
func (m *Metrics) SessionFinished(state string, drafts int) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(state).Inc()
	m.SessionIterations.Observe(float64(drafts))
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
