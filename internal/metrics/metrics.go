package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abduss/swiftshare/internal/share"
)

const namespace = "swiftshare"

var (
	initOnce sync.Once

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// InitMetrics registers the HTTP collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration)
	})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// Collector exports share lifecycle events.
type Collector struct {
	created     *prometheus.CounterVec
	createdSize prometheus.Histogram
	retrieved   *prometheus.CounterVec
	deleted     *prometheus.CounterVec
	sweeps      prometheus.Counter
	skipped     prometheus.Counter
	sweepItems  *prometheus.CounterVec
	sweepTime   prometheus.Histogram
}

var _ share.Observer = (*Collector)(nil)

// NewCollector builds the share collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_created_total",
			Help:      "Shares created by conversion type.",
		}, []string{"category"}),
		createdSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "share_size_bytes",
			Help:      "Size of stored artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		retrieved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_retrievals_total",
			Help:      "Retrieval attempts by result.",
		}, []string{"result"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares_deleted_total",
			Help:      "Deleted shares and reclaimed objects by reason.",
		}, []string{"reason"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweep passes.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_skipped_total",
			Help:      "Sweep triggers dropped because a pass was running.",
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Items handled by sweep passes by kind.",
		}, []string{"kind"}),
		sweepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweep passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, col := range []prometheus.Collector{
		c.created, c.createdSize, c.retrieved, c.deleted,
		c.sweeps, c.skipped, c.sweepItems, c.sweepTime,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ShareCreated(category string, sizeBytes int64) {
	c.created.WithLabelValues(category).Inc()
	c.createdSize.Observe(float64(sizeBytes))
}

func (c *Collector) ShareRetrieved(found bool) {
	result := "hit"
	if !found {
		result = "miss"
	}
	c.retrieved.WithLabelValues(result).Inc()
}

func (c *Collector) ShareDeleted(reason string) {
	c.deleted.WithLabelValues(reason).Inc()
}

func (c *Collector) SweepFinished(r share.SweepReport) {
	c.sweeps.Inc()
	c.sweepItems.WithLabelValues("expired").Add(float64(r.Expired))
	c.sweepItems.WithLabelValues("dangling").Add(float64(r.DanglingRecords))
	c.sweepItems.WithLabelValues("orphan").Add(float64(r.OrphanObjects))
	c.sweepItems.WithLabelValues("partial").Add(float64(r.PartialFiles))
	c.sweepItems.WithLabelValues("failure").Add(float64(r.Failures))
	c.sweepTime.Observe(r.Duration.Seconds())
}

func (c *Collector) SweepSkipped() {
	c.skipped.Inc()
}
