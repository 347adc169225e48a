package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-thread-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "threadrunner"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	ScopeBuckets    []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds  *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	queueDepth           *prom.GaugeVec
	batchSize            *prom.GaugeVec
	ticksTotal           *prom.CounterVec
	tickDeltaSeconds     *prom.GaugeVec
	scopeDurationSeconds *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	scopeBuckets := opts.ScopeBuckets
	if len(scopeBuckets) == 0 {
		// 10µs .. ~80ms, sized for per-tick work
		scopeBuckets = prom.ExponentialBuckets(0.00001, 2, 14)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of recovered task panics.",
	}, []string{"worker"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending tasks seen at the last drain.",
	}, []string{"worker"})
	batchSizeVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "batch_size",
		Help:      "Tasks transferred by the last drain.",
	}, []string{"worker"})
	ticksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Total number of fixed-cadence steps.",
	}, []string{"worker"})
	tickDeltaVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tick_delta_seconds",
		Help:      "Delta reported by the last step.",
	}, []string{"worker"})
	scopeVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "scope_duration_seconds",
		Help:      "Duration of profiled worker loop scopes in seconds.",
		Buckets:   scopeBuckets,
	}, []string{"worker", "scope"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if batchSizeVec, err = registerCollector(reg, batchSizeVec); err != nil {
		return nil, err
	}
	if ticksVec, err = registerCollector(reg, ticksVec); err != nil {
		return nil, err
	}
	if tickDeltaVec, err = registerCollector(reg, tickDeltaVec); err != nil {
		return nil, err
	}
	if scopeVec, err = registerCollector(reg, scopeVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:  durationVec,
		taskPanicTotal:       panicVec,
		queueDepth:           queueDepthVec,
		batchSize:            batchSizeVec,
		ticksTotal:           ticksVec,
		tickDeltaSeconds:     tickDeltaVec,
		scopeDurationSeconds: scopeVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(workerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(workerName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(workerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(workerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(workerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(workerName, "unknown")).Set(float64(depth))
}

// RecordBatchSize records how many tasks one drain moved.
func (m *MetricsExporter) RecordBatchSize(workerName string, size int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(normalizeLabel(workerName, "unknown")).Set(float64(size))
}

// RecordTick counts a step and keeps its delta.
func (m *MetricsExporter) RecordTick(workerName string, delta float64) {
	if m == nil {
		return
	}
	name := normalizeLabel(workerName, "unknown")
	m.ticksTotal.WithLabelValues(name).Inc()
	m.tickDeltaSeconds.WithLabelValues(name).Set(delta)
}

// RecordScopeDuration records a profiled scope.
func (m *MetricsExporter) RecordScopeDuration(workerName string, scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scopeDurationSeconds.WithLabelValues(normalizeLabel(workerName, "unknown"), normalizeLabel(scope, "unknown")).Observe(duration.Seconds())
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
