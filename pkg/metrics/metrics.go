package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set shared by the ingest and publish paths.
type Metrics struct {
	registry *prometheus.Registry

	IngestsTotal      *prometheus.CounterVec
	PublishesTotal    *prometheus.CounterVec
	VideoPollAttempts prometheus.Histogram
}

// New builds the metric set on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: reg,
		IngestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mediapost_ingests_total",
			Help: "Media ingests by class and outcome.",
		}, []string{"class", "outcome"}),
		PublishesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mediapost_publishes_total",
			Help: "Publish operations by platform and outcome.",
		}, []string{"platform", "outcome"}),
		VideoPollAttempts: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mediapost_video_poll_attempts",
			Help:    "Status polls needed per video publish job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
