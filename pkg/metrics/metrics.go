package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	AcquireTotal *prometheus.CounterVec // result=success|conflict|error
	RenewTotal   *prometheus.CounterVec // result=success|lost|error
	ReleaseTotal *prometheus.CounterVec // result=released|noop|error

	LocksHeld    prometheus.Gauge
	SweptTotal   prometheus.Counter
	OpLatencyMS  *prometheus.HistogramVec // op=acquire|renew|release|status
	Connections  prometheus.Gauge
	Broadcasts   *prometheus.CounterVec // event
	DroppedSends prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		AcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsline_lock_acquire_total",
				Help: "Total acquire attempts by result",
			},
			[]string{"result"},
		),
		RenewTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsline_lock_renew_total",
				Help: "Total renew attempts by result",
			},
			[]string{"result"},
		),
		ReleaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsline_lock_release_total",
				Help: "Total release attempts by result",
			},
			[]string{"result"},
		),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsline_locks_held",
			Help: "Number of currently held (unexpired) locks",
		}),
		SweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsline_locks_swept_total",
			Help: "Total expired lock rows removed by the sweeper",
		}),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsline_lock_op_latency_ms",
				Help:    "Latency of lock operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"op"},
		),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsline_ws_connections",
			Help: "Current number of live websocket connections",
		}),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsline_ws_broadcast_total",
				Help: "Total broadcast events by event name",
			},
			[]string{"event"},
		),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsline_ws_dropped_sends_total",
			Help: "Events dropped because a connection send buffer was full",
		}),
	}

	prometheus.MustRegister(
		m.AcquireTotal,
		m.RenewTotal,
		m.ReleaseTotal,
		m.LocksHeld,
		m.SweptTotal,
		m.OpLatencyMS,
		m.Connections,
		m.Broadcasts,
		m.DroppedSends,
	)

	return m
}
