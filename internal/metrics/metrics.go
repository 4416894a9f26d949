// Package metrics exposes pipeline counters and stage timings.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "scenechain"

// Metrics holds all pipeline metrics.
type Metrics struct {
	JobsTotal      *prometheus.CounterVec
	ScenesTotal    *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	TrackingFrames *prometheus.CounterVec
}

// New registers the metrics on reg. A nil reg uses a private registry so
// repeated construction in tests never collides.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		JobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Jobs finished, by terminal status",
			},
			[]string{"status"},
		),
		ScenesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenes_total",
				Help:      "Scenes attempted, by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		TrackingFrames: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_frames_total",
				Help:      "Frames processed by the tracking overlay, by result",
			},
			[]string{"result"},
		),
	}
}

// Noop returns metrics bound to a throwaway registry.
func Noop() *Metrics {
	return New(nil)
}

func (m *Metrics) RecordJob(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordScene(outcome string) {
	m.ScenesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTrackingFrame(result string) {
	m.TrackingFrames.WithLabelValues(result).Inc()
}

// ObserveStage returns a func that records the elapsed time when called.
func (m *Metrics) ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, logger zerolog.Logger, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
