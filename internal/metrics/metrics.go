package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesCompleted  prometheus.Counter
	salesRejected   *prometheus.CounterVec
	revenue         prometheus.Counter
	saleDuration    prometheus.Histogram
}

// New registers the collectors on reg. A nil registerer yields a no-op Metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spis",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spis",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		salesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spis",
			Name:      "sales_completed_total",
			Help:      "Sales committed.",
		}),
		salesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spis",
			Name:      "sales_rejected_total",
			Help:      "Sales rolled back, by reason.",
		}, []string{"reason"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spis",
			Name:      "sales_revenue_total",
			Help:      "Sum of committed sale totals.",
		}),
		saleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spis",
			Name:      "sale_transaction_duration_seconds",
			Help:      "Time spent in the sale transaction, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.salesCompleted, m.salesRejected, m.revenue, m.saleDuration)
	return m
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) SaleCompleted(total decimal.Decimal, d time.Duration) {
	if m == nil {
		return
	}
	m.salesCompleted.Inc()
	m.revenue.Add(total.InexactFloat64())
	m.saleDuration.Observe(d.Seconds())
}

func (m *Metrics) SaleRejected(reason string, d time.Duration) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.salesRejected.WithLabelValues(reason).Inc()
	m.saleDuration.Observe(d.Seconds())
}
