// Package metrics exports loop, processor and persistence measurements to
// Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volundmush/moonsilver/internal/core/engine"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
)

const namespace = "moonsilver"

// Collector observes the engine, the scheduler, the event bus and the
// persistence writer. It satisfies engine.Observer, systems.Observer,
// bus.Observer and storage.FlushObserver.
type Collector struct {
	ticks         prometheus.Counter
	overruns      prometheus.Counter
	gatewayErrors prometheus.Counter
	tickDuration  prometheus.Histogram
	sleep         prometheus.Histogram
	delta         prometheus.Gauge

	processorRuns     *prometheus.CounterVec
	processorErrors   *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec

	events *prometheus.CounterVec

	flushed      prometheus.Counter
	flushErrors  prometheus.Counter
	flushDropped prometheus.Counter

	interval time.Duration
}

// New builds a Collector and registers it on reg. Collectors already present
// on reg are reused, so New may be called more than once per process.
func New(reg prometheus.Registerer, interval time.Duration, logger log.Log) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = log.Nop()
	}
	c := &Collector{
		interval: interval,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticks run by the game loop.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_overruns_total",
			Help:      "Iterations that exceeded the update interval before the tick started.",
		}),
		gatewayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_update_errors_total",
			Help:      "Session updates that returned an error.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent running all processors of one tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		sleep: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_sleep_seconds",
			Help:      "Time the loop slept before a tick.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		delta: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_delta_seconds",
			Help:      "Delta passed to the most recent tick.",
		}),
		processorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_runs_total",
			Help:      "Processor invocations.",
		}, []string{"processor"}),
		processorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_errors_total",
			Help:      "Processor invocations that failed or panicked.",
		}, []string{"processor"}),
		processorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_duration_seconds",
			Help:      "Processor run time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"processor"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "World events published, by type.",
		}, []string{"type"}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_records_flushed_total",
			Help:      "Component records written to the storage backend.",
		}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_flush_errors_total",
			Help:      "Batches the storage backend failed to write.",
		}),
		flushDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_batches_deferred_total",
			Help:      "Batches deferred to a later tick because the write queue was full.",
		}),
	}

	c.ticks = register(reg, logger, c.ticks)
	c.overruns = register(reg, logger, c.overruns)
	c.gatewayErrors = register(reg, logger, c.gatewayErrors)
	c.tickDuration = register(reg, logger, c.tickDuration)
	c.sleep = register(reg, logger, c.sleep)
	c.delta = register(reg, logger, c.delta)
	c.processorRuns = register(reg, logger, c.processorRuns)
	c.processorErrors = register(reg, logger, c.processorErrors)
	c.processorDuration = register(reg, logger, c.processorDuration)
	c.events = register(reg, logger, c.events)
	c.flushed = register(reg, logger, c.flushed)
	c.flushErrors = register(reg, logger, c.flushErrors)
	c.flushDropped = register(reg, logger, c.flushDropped)
	return c
}

func register[C prometheus.Collector](reg prometheus.Registerer, logger log.Log, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.Warn("metric registration failed", log.Error(err))
	}
	return c
}

func (c *Collector) OnIteration(it engine.Iteration) {
	c.ticks.Inc()
	c.tickDuration.Observe(it.Report.Took.Seconds())
	c.sleep.Observe(it.Sleep.Seconds())
	c.delta.Set(it.Delta.Seconds())
	if c.interval > 0 && it.Overrun(c.interval) {
		c.overruns.Inc()
	}
	if it.GatewayErr != nil {
		c.gatewayErrors.Inc()
	}
}

func (c *Collector) OnProcessed(name string, took time.Duration, err error) {
	c.processorRuns.WithLabelValues(name).Inc()
	c.processorDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		c.processorErrors.WithLabelValues(name).Inc()
	}
}

func (c *Collector) OnDelivered(eventType string, _ int, _ error, _ time.Duration) {
	c.events.WithLabelValues(eventType).Inc()
}

func (c *Collector) OnFlush(records int, err error) {
	if err != nil {
		c.flushErrors.Inc()
		return
	}
	c.flushed.Add(float64(records))
}

func (c *Collector) OnDeferred() { c.flushDropped.Inc() }

// Handler serves the metrics gathered by g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
