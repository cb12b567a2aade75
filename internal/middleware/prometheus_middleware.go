package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath путь, по которому отдаются метрики. Сами запросы к нему не учитываются.
const MetricsPath = "/metrics"

// PrometheusMiddleware HTTP-метрики API:
//
//	<service>_http_request_duration_seconds{method,path,status}
//	<service>_http_response_size_bytes{method,path}
//	<service>_http_requests_inflight
//	<service>_http_request_errors_total{method,path,status} (4xx/5xx)
//
// path - шаблон маршрута gin, для неизвестных маршрутов "unmatched".
type PrometheusMiddleware struct {
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inflight prometheus.Gauge
	errors   *prometheus.CounterVec
	skip     map[string]bool
}

// NewPrometheusMiddleware создаёт middleware и регистрирует метрики в reg.
// Запросы к skipPaths (и к MetricsPath) не измеряются.
func NewPrometheusMiddleware(service string, reg prometheus.Registerer, skipPaths ...string) *PrometheusMiddleware {
	pm := &PrometheusMiddleware{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность HTTP-запросов.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"method", "path", "status"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_response_size_bytes",
			Help:      "Размер тела ответа.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 6),
		}, []string{"method", "path"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросы в обработке.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Запросы, завершившиеся статусом 4xx/5xx.",
		}, []string{"method", "path", "status"}),
		skip: map[string]bool{MetricsPath: true},
	}
	for _, p := range skipPaths {
		pm.skip[p] = true
	}

	reg.MustRegister(pm.duration, pm.size, pm.inflight, pm.errors)
	return pm
}

// Handler возвращает gin.HandlerFunc для router.Use()
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if pm.skip[path] {
			c.Next()
			return
		}
		if path == "" {
			path = "unmatched"
		}

		start := time.Now()
		pm.inflight.Inc()
		c.Next()
		pm.inflight.Dec()

		method := c.Request.Method
		code := c.Writer.Status()
		status := strconv.Itoa(code)
		pm.duration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			pm.size.WithLabelValues(method, path).Observe(float64(n))
		}
		if code >= 400 {
			pm.errors.WithLabelValues(method, path, status).Inc()
		}
	}
}

// RegisterMetricsEndpoint добавляет GET MetricsPath для указанного реестра
func RegisterMetricsEndpoint(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET(MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
