package obs

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the process's Prometheus registrations.
type MetricsCollector struct {
	serviceName string

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge

	CameraStatus       *prometheus.GaugeVec // labels: camera_id, status
	CameraRestarts     *prometheus.CounterVec
	SessionActive      prometheus.Gauge
	RecordingBytes     *prometheus.GaugeVec // labels: camera_id
	MixerTransitions   *prometheus.CounterVec
	DiskFreeBytes      prometheus.Gauge
	ModeSwitchTotal    *prometheus.CounterVec
	RegistryUnreachable prometheus.Counter
}

// NewMetricsCollector registers the standard HTTP metrics plus the
// supervisor's business metrics for a given service name.
func NewMetricsCollector(serviceName string) *MetricsCollector {
	mc := &MetricsCollector{serviceName: serviceName}

	mc.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: serviceName + "_http_requests_total",
		Help: "Total HTTP requests served",
	}, []string{"method", "endpoint", "status"})

	mc.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    serviceName + "_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	mc.activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: serviceName + "_active_connections",
		Help: "Active HTTP connections",
	})

	mc.CameraStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: serviceName + "_camera_status",
		Help: "1 if the camera is currently in the labeled status",
	}, []string{"camera_id", "status"})

	mc.CameraRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: serviceName + "_camera_restarts_total",
		Help: "Cumulative ingest pipeline restarts per camera",
	}, []string{"camera_id"})

	mc.SessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: serviceName + "_recording_session_active",
		Help: "1 if a recording session is currently active",
	})

	mc.RecordingBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: serviceName + "_recording_bytes_produced",
		Help: "Bytes produced by the active recording pipeline per camera",
	}, []string{"camera_id"})

	mc.MixerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: serviceName + "_mixer_transitions_total",
		Help: "Scene transitions applied by the mixer engine",
	}, []string{"kind"})

	mc.DiskFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: serviceName + "_disk_free_bytes",
		Help: "Free bytes on the recording storage volume",
	})

	mc.ModeSwitchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: serviceName + "_mode_switch_total",
		Help: "Mode arbiter switch attempts",
	}, []string{"target", "result"})

	mc.RegistryUnreachable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: serviceName + "_registry_unreachable_total",
		Help: "Stream registry calls that failed or timed out",
	})

	for _, c := range []prometheus.Collector{
		mc.httpRequestsTotal, mc.httpRequestDuration, mc.activeConnections,
		mc.CameraStatus, mc.CameraRestarts, mc.SessionActive, mc.RecordingBytes,
		mc.MixerTransitions, mc.DiskFreeBytes, mc.ModeSwitchTotal, mc.RegistryUnreachable,
	} {
		prometheus.MustRegister(c)
	}

	return mc
}

// MetricsMiddleware records standard HTTP metrics for every request.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		mc.httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the /metrics endpoint.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) { handler.ServeHTTP(c.Writer, c.Request) }
}
