package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "card_bridge"

// Service 签名桥的 prometheus 指标，使用独立的 Registry
type Service struct {
	Registry *prometheus.Registry

	Outcomes           *prometheus.CounterVec
	Superseded         prometheus.Counter
	PendingRequests    prometheus.Gauge
	TapDuration        prometheus.Histogram
	CounterRegressions prometheus.Counter
	SessionRequests    *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() (*Service, error) {
	s := &Service{
		Registry: prometheus.NewRegistry(),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Signing outcomes by request kind and result.",
		}, []string{"kind", "outcome"}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_total",
			Help:      "Pending requests replaced by a newer request before a tap.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "1 while a request is waiting for a card tap.",
		}),
		TapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tap_duration_seconds",
			Help:      "Time spent in the card signing pipeline per tap.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		CounterRegressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_regressions_total",
			Help:      "Signatures whose card counters did not increase.",
		}),
		SessionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_requests_total",
			Help:      "Pairing protocol messages by method.",
		}, []string{"method"}),
	}

	for _, c := range []prometheus.Collector{
		s.Outcomes,
		s.Superseded,
		s.PendingRequests,
		s.TapDuration,
		s.CounterRegressions,
		s.SessionRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.Registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics collector")
		}
	}

	return s, nil
}
