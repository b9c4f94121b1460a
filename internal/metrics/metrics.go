package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

const namespace = "mention_tracker"

// Collector exposes Prometheus metrics for inbound HTTP requests and the
// polling scheduler.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	pollTotal     *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	mentionsTotal prometheus.Counter
	tickDuration  prometheus.Histogram
	tickAccounts  prometheus.Gauge
	refreshTotal  *prometheus.CounterVec
}

// New constructs a collector on its own registry.
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "polls_total",
			Help:      "Account polls by outcome.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a single account poll.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		mentionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "mentions_ingested_total",
			Help:      "Mentions inserted by polls.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full scheduler tick.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		tickAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "tick_accounts",
			Help:      "Active accounts visited by the last tick.",
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "proactive_refresh_total",
			Help:      "Proactive token refresh attempts by result.",
		}, []string{"result"}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.pollTotal,
		c.pollDuration,
		c.mentionsTotal,
		c.tickDuration,
		c.tickAccounts,
		c.refreshTotal,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
// Requests routed by chi are labelled with the route pattern.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObservePoll records the outcome of one account poll
func (c *Collector) ObservePoll(kind entity.OutcomeKind, d time.Duration) {
	c.pollTotal.WithLabelValues(string(kind)).Inc()
	c.pollDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// AddMentions counts newly ingested mentions
func (c *Collector) AddMentions(n int) {
	if n > 0 {
		c.mentionsTotal.Add(float64(n))
	}
}

// ObserveTick records a completed scheduler tick
func (c *Collector) ObserveTick(accounts int, d time.Duration) {
	c.tickAccounts.Set(float64(accounts))
	c.tickDuration.Observe(d.Seconds())
}

// ObserveRefresh records a proactive refresh attempt
func (c *Collector) ObserveRefresh(result string) {
	c.refreshTotal.WithLabelValues(result).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
