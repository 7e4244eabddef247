package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinship_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kinship_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Connections counts open push channel sockets.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kinship_ws_active_connections",
		Help: "Active websocket connections",
	})

	pushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinship_push_events_total",
			Help: "Events enqueued to websocket connections, by event name",
		},
		[]string{"event"},
	)

	droppedConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinship_ws_dropped_connections_total",
		Help: "Connections dropped because their send buffer was full",
	})
)

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// PushEvent records n deliveries of event.
func PushEvent(event string, n int) {
	if n > 0 {
		pushEventsTotal.WithLabelValues(event).Add(float64(n))
	}
}

func DroppedConnection() {
	droppedConnectionsTotal.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
