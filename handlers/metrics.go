package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exposed on /metrics
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	injections  *prometheus.CounterVec
	injectTime  *prometheus.HistogramVec
	uploadBytes prometheus.Counter
}

// NewMetrics returns Metrics registered on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "injector_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		injections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "injector_injections_total",
			Help: "Tag injections by file extension and result.",
		}, []string{"format", "result"}),
		injectTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "injector_injection_duration_seconds",
			Help:    "Time spent writing tags into a file.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"format"}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "injector_upload_bytes_total",
			Help: "Bytes received in uploads.",
		}),
	}
}

func (m *Metrics) observeInject(format string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.injections.WithLabelValues(format, result).Inc()
	m.injectTime.WithLabelValues(format).Observe(took.Seconds())
}

// instrument counts every request by its route pattern
func (m *Metrics) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the collected metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
