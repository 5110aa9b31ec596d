package sync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics 是副本使用的计数器。
// Merges 与 Deltas 带 "type" 标签，Rejected 带 "reason"，Prepared 与 Received 带 "kind"。
type Metrics struct {
	Merges   metrics.Counter
	Deltas   metrics.Counter
	Rejected metrics.Counter
	Prepared metrics.Counter
	Received metrics.Counter
}

// NewDiscardMetrics 返回丢弃所有观测值的计数器。
func NewDiscardMetrics() *Metrics {
	return &Metrics{
		Merges:   discard.NewCounter(),
		Deltas:   discard.NewCounter(),
		Rejected: discard.NewCounter(),
		Prepared: discard.NewCounter(),
		Received: discard.NewCounter(),
	}
}

// NewPrometheusMetrics 在 reg 上注册计数器，子系统固定为 "sync"。
func NewPrometheusMetrics(reg prom.Registerer, namespace string) (*Metrics, error) {
	vec := func(name, help, label string) (*prom.CounterVec, error) {
		cv := prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		}, []string{label})
		if err := reg.Register(cv); err != nil {
			return nil, err
		}
		return cv, nil
	}

	specs := []struct {
		name, help, label string
	}{
		{"merges_total", "Number of full states merged", "type"},
		{"deltas_applied_total", "Number of deltas applied", "type"},
		{"payloads_rejected_total", "Number of rejected messages", "reason"},
		{"messages_prepared_total", "Number of messages prepared for peers", "kind"},
		{"messages_received_total", "Number of messages accepted from peers", "kind"},
	}
	counters := make([]metrics.Counter, len(specs))
	for i, s := range specs {
		cv, err := vec(s.name, s.help, s.label)
		if err != nil {
			return nil, err
		}
		counters[i] = kitprometheus.NewCounter(cv)
	}

	return &Metrics{
		Merges:   counters[0],
		Deltas:   counters[1],
		Rejected: counters[2],
		Prepared: counters[3],
		Received: counters[4],
	}, nil
}
