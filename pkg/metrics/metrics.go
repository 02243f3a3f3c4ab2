// Package metrics exposes Prometheus counters for storefront and
// back-office activity. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "giftshop"

type Metrics struct {
	OrdersSubmitted    prometheus.Counter
	OrderDecisions     *prometheus.CounterVec
	ApprovalsRejected  *prometheus.CounterVec
	CommissionPoints   prometheus.Counter
	HTTPRequestSeconds *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid clashing on the default one.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders created by storefront checkout",
		}),
		OrderDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_decisions_total",
			Help:      "Orders approved or declined by admins",
		}, []string{"decision"}),
		ApprovalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_rejected_total",
			Help:      "Approval attempts refused without a state change",
		}, []string{"reason"}),
		CommissionPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_points_total",
			Help:      "Commission points deducted from admin wallets",
		}),
		HTTPRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.OrdersSubmitted,
		m.OrderDecisions,
		m.ApprovalsRejected,
		m.CommissionPoints,
		m.HTTPRequestSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) OrderSubmitted() {
	if m == nil {
		return
	}
	m.OrdersSubmitted.Inc()
}

func (m *Metrics) OrderDecided(decision string, commission float64) {
	if m == nil {
		return
	}
	m.OrderDecisions.WithLabelValues(decision).Inc()
	if commission > 0 {
		m.CommissionPoints.Add(commission)
	}
}

func (m *Metrics) ApprovalRejected(reason string) {
	if m == nil {
		return
	}
	m.ApprovalsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestSeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
