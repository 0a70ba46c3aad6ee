package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/helpdesk/pkg/session"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics are the client-side counters for a chat process.
type Metrics struct {
	QueriesTotal       *prometheus.CounterVec
	QueryRoundTrip     prometheus.Histogram
	BackendProcessing  prometheus.Histogram
	ConnectivityProbes *prometheus.CounterVec
	Online             prometheus.Gauge
	MessagesTotal      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_queries_total",
				Help: "Chat queries by outcome",
			},
			[]string{"outcome"}, // success, transport, application, malformed
		),
		QueryRoundTrip: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_query_round_trip_seconds",
			Help:    "Time from submission to settled reply",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		BackendProcessing: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_backend_processing_seconds",
			Help:    "Processing time reported by the backend",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		ConnectivityProbes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_connectivity_results_total",
				Help: "Resolved health probes by result",
			},
			[]string{"result"},
		),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_backend_online",
			Help: "1 when the last health probe succeeded",
		}),
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_messages_total",
				Help: "Messages appended to transcripts by role",
			},
			[]string{"role"},
		),
	}
}

// HandleEvent updates the collectors from a session event.
func (m *Metrics) HandleEvent(_ context.Context, ev session.Event) error {
	switch ev.Type {
	case session.EventMessageAppended:
		if ev.Message == nil {
			return nil
		}
		m.MessagesTotal.WithLabelValues(string(ev.Message.Role)).Inc()
		if ev.Message.ProcessingSeconds != nil {
			m.BackendProcessing.Observe(*ev.Message.ProcessingSeconds)
		}
	case session.EventQueryFinished:
		m.QueriesTotal.WithLabelValues(ev.Outcome).Inc()
		m.QueryRoundTrip.Observe((time.Duration(ev.ElapsedMs) * time.Millisecond).Seconds())
	case session.EventConnectivityChanged:
		switch ev.Connectivity {
		case session.ConnectivityOnline:
			m.ConnectivityProbes.WithLabelValues("online").Inc()
			m.Online.Set(1)
		case session.ConnectivityOffline:
			m.ConnectivityProbes.WithLabelValues("offline").Inc()
			m.Online.Set(0)
		case session.ConnectivityChecking:
		}
	case session.EventQueryStarted:
	}
	return nil
}

// Serve exposes gatherer on addr until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "metrics").Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server failed")
	}
	return nil
}
