package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "escrow"

var (
	actionsTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "State-changing agreement actions by outcome.",
	}, []string{"action", "outcome"})

	readsTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "reads_total",
		Help:      "Agreement snapshot reads by result.",
	}, []string{"result"})

	rpcCallsTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_calls_total",
		Help:      "Upstream ledger calls by method.",
	}, []string{"method"})

	finalitySeconds = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "finality_wait_seconds",
		Help:      "Time between submission and a final receipt.",
		Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
	})

	pendingGauge = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_transactions",
		Help:      "Submitted requests still awaiting finality.",
	})
)

func init() {
	prom.MustRegister(actionsTotal, readsTotal, rpcCallsTotal, finalitySeconds, pendingGauge)
}

// RecordAction counts a finished (or abandoned) action.
func RecordAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordRead counts a snapshot read. result is one of "ok", "error", "stale".
func RecordRead(result string) {
	readsTotal.WithLabelValues(result).Inc()
}

func CountRPCCall(method string) {
	rpcCallsTotal.WithLabelValues(method).Inc()
}

func ObserveFinality(d time.Duration) {
	finalitySeconds.Observe(d.Seconds())
}

func SetPending(n int) {
	pendingGauge.Set(float64(n))
}
