package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"factorysim.ai/internal/sim/world"
)

const (
	namespace = "factorysim"
	subsystem = "world"
)

// Source is what the collector samples after every tick.
type Source interface {
	Metrics() world.WorldMetrics
}

// Collector mirrors world runtime signals into Prometheus. It is a world.TickSink:
// gauges are sampled from Source, counters are driven by the tick's events.
type Collector struct {
	src Source

	// Gauges
	tick       prometheus.Gauge
	structures prometheus.Gauge
	porters    prometheus.Gauge
	grids      prometheus.Gauge
	unpowered  prometheus.Gauge
	routes     prometheus.Gauge
	inboxDepth prometheus.Gauge

	// Counters
	delivered *prometheus.CounterVec
	lost      *prometheus.CounterVec
	fuses     prometheus.Counter
	rejected  *prometheus.CounterVec
	cycles    *prometheus.CounterVec

	stepSeconds prometheus.Histogram

	mu sync.Mutex
}

func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "tick",
			Help: "Next tick the world will simulate",
		}),
		structures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "structures",
			Help: "Live structures on the map",
		}),
		porters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "porters_in_flight",
			Help: "Porters currently walking a route",
		}),
		grids: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "power_grids",
			Help: "Number of power grids",
		}),
		unpowered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "unpowered_structures",
			Help: "Power-capable structures whose grid is tripped",
		}),
		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "routes",
			Help: "Routes in the current route table",
		}),
		inboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "inbox_depth",
			Help: "Commands waiting for the next tick",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "porters_delivered_total",
			Help: "Porters that reached their destination",
		}, []string{"resource"}),
		lost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "porters_lost_total",
			Help: "Porters lost before delivery",
		}, []string{"reason"}),
		fuses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "fuses_blown_total",
			Help: "Grids tripped by overload",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "commands_rejected_total",
			Help: "Commands rejected at intake",
		}, []string{"code"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cycles_completed_total",
			Help: "Production cycles completed",
		}, []string{"recipe"}),
		stepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "step_duration_seconds",
			Help:    "Wall time spent simulating one tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// Register adds every metric to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	all := []prometheus.Collector{
		c.tick,
		c.structures,
		c.porters,
		c.grids,
		c.unpowered,
		c.routes,
		c.inboxDepth,
		c.delivered,
		c.lost,
		c.fuses,
		c.rejected,
		c.cycles,
		c.stepSeconds,
	}
	for _, m := range all {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) WriteTick(e world.TickLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range e.Events {
		switch ev.Type {
		case world.EventPorterArrived:
			c.delivered.WithLabelValues(ev.Resource).Inc()
		case world.EventPorterLost:
			c.lost.WithLabelValues(ev.Reason).Inc()
		case world.EventFuseBlown:
			c.fuses.Inc()
		case world.EventCommandRejected:
			c.rejected.WithLabelValues(ev.Code).Inc()
		case world.EventCycleCompleted:
			c.cycles.WithLabelValues(ev.Recipe).Inc()
		}
	}

	if c.src == nil {
		return nil
	}
	m := c.src.Metrics()
	c.tick.Set(float64(m.Tick))
	c.structures.Set(float64(m.Structures))
	c.porters.Set(float64(m.Porters))
	c.grids.Set(float64(m.Grids))
	c.unpowered.Set(float64(m.Unpowered))
	c.routes.Set(float64(m.Routes))
	c.inboxDepth.Set(float64(m.InboxDepth))
	c.stepSeconds.Observe(m.StepMS / 1000)
	return nil
}
