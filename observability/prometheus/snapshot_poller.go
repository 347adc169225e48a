package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-thread-runner/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// WorkerSnapshotProvider provides current worker stats snapshots.
// *core.TickWorker and *core.TaskWorker both satisfy it.
type WorkerSnapshotProvider interface {
	Stats() core.WorkerStats
}

// SnapshotPoller periodically exports worker Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	workersMu sync.RWMutex
	workers   map[string]WorkerSnapshotProvider

	workerPending       *prom.GaugeVec
	workerExecuting     *prom.GaugeVec
	workerRunning       *prom.GaugeVec
	workerStopRequested *prom.GaugeVec
	workerTasksExecuted *prom.GaugeVec
	workerTicks         *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	labels := []string{"worker", "type"}
	workerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_pending",
		Help:      "Tasks enqueued and not yet completed per worker.",
	}, labels)
	workerExecuting := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_executing",
		Help:      "Tasks left in the batch being executed per worker.",
	}, labels)
	workerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_running",
		Help:      "Worker loop state (1=running, 0=stopped).",
	}, labels)
	workerStopRequested := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_stop_requested",
		Help:      "Worker stop flag (1=requested, 0=not requested).",
	}, labels)
	workerTasksExecuted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_tasks_executed",
		Help:      "Worker completed task count snapshot.",
	}, labels)
	workerTicks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: defaultNamespace,
		Name:      "worker_ticks",
		Help:      "Worker step count snapshot; zero for draining workers.",
	}, labels)

	var err error
	if workerPending, err = registerCollector(reg, workerPending); err != nil {
		return nil, err
	}
	if workerExecuting, err = registerCollector(reg, workerExecuting); err != nil {
		return nil, err
	}
	if workerRunning, err = registerCollector(reg, workerRunning); err != nil {
		return nil, err
	}
	if workerStopRequested, err = registerCollector(reg, workerStopRequested); err != nil {
		return nil, err
	}
	if workerTasksExecuted, err = registerCollector(reg, workerTasksExecuted); err != nil {
		return nil, err
	}
	if workerTicks, err = registerCollector(reg, workerTicks); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:            interval,
		workers:             make(map[string]WorkerSnapshotProvider),
		workerPending:       workerPending,
		workerExecuting:     workerExecuting,
		workerRunning:       workerRunning,
		workerStopRequested: workerStopRequested,
		workerTasksExecuted: workerTasksExecuted,
		workerTicks:         workerTicks,
	}, nil
}

// AddWorker adds or replaces a worker snapshot provider by name.
func (p *SnapshotPoller) AddWorker(name string, provider WorkerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "worker")
	p.workersMu.Lock()
	p.workers[name] = provider
	p.workersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.workersMu.RLock()
	defer p.workersMu.RUnlock()

	for name, provider := range p.workers {
		stats := provider.Stats()
		typeLabel := normalizeLabel(stats.Type, "unknown")
		p.workerPending.WithLabelValues(name, typeLabel).Set(float64(stats.Pending))
		p.workerExecuting.WithLabelValues(name, typeLabel).Set(float64(stats.Executing))
		p.workerRunning.WithLabelValues(name, typeLabel).Set(boolGauge(stats.Running))
		p.workerStopRequested.WithLabelValues(name, typeLabel).Set(boolGauge(stats.StopRequested))
		p.workerTasksExecuted.WithLabelValues(name, typeLabel).Set(float64(stats.TasksExecuted))
		p.workerTicks.WithLabelValues(name, typeLabel).Set(float64(stats.Ticks))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
