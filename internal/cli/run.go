package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	threadrunner "github.com/Swind/go-thread-runner"
	"github.com/Swind/go-thread-runner/core"
	"github.com/Swind/go-thread-runner/internal/config"
	obs "github.com/Swind/go-thread-runner/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and task threads under load",
		Long: `Starts the simulation thread and the task threads, runs producer goroutines
that post work to the task threads with replies to the simulation thread,
and stops on SIGINT/SIGTERM or after --duration. Per-worker stats are
printed on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoad(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}
}

// loadSimulation is stepped by the simulation thread. Replies from the task
// threads are applied to it on that thread, so it needs no locking.
type loadSimulation struct {
	logger    core.Logger
	simulated float64
	applied   int
}

func (s *loadSimulation) Update(delta float64) { s.simulated += delta }

func (s *loadSimulation) Teardown() {
	s.logger.Info("simulation torn down",
		core.F("simulated_seconds", s.simulated),
		core.F("replies_applied", s.applied))
}

// runLoad runs the configured threads until ctx ends or the configured
// duration elapses, then shuts them down and writes a stats table to out.
func runLoad(ctx context.Context, c config.Config, zl zerolog.Logger, out io.Writer) error {
	if c.Load.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Load.Duration)
		defer cancel()
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("", reg, obs.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("create metrics exporter: %w", err)
	}
	poller, err := obs.NewSnapshotPoller(reg, c.PollInterval)
	if err != nil {
		return fmt.Errorf("create snapshot poller: %w", err)
	}

	log := core.NewZerologLogger(zl)
	group := threadrunner.NewGroup("threadrunner")
	group.SetLogger(log)

	sim := &loadSimulation{logger: log}
	game := core.NewTickWorker(
		core.NewThreadID(c.Simulation.Name, config.Priority(c.Simulation.Priority)),
		sim,
		&core.TickWorkerConfig{
			WorkerConfig:   core.WorkerConfig{Logger: log, Metrics: exporter, HistorySize: c.Simulation.HistorySize},
			TicksPerSecond: c.Simulation.TicksPerSecond,
			FreeRunning:    c.Simulation.FreeRunning,
			IdleSleep:      c.Simulation.IdleSleep,
		})
	if err := group.Add(game); err != nil {
		return err
	}
	poller.AddWorker(game.Name(), game)

	taskWorkers := make([]*core.TaskWorker, 0, len(c.TaskThreads))
	for _, tc := range c.TaskThreads {
		w := core.NewTaskWorker(core.NewThreadID(tc.Name, config.Priority(tc.Priority)), &core.TaskWorkerConfig{
			WorkerConfig: core.WorkerConfig{Logger: log, Metrics: exporter, HistorySize: tc.HistorySize},
			FlushOnStop:  tc.FlushOnStop,
		})
		if err := group.Add(w); err != nil {
			return err
		}
		poller.AddWorker(w.Name(), w)
		taskWorkers = append(taskWorkers, w)
	}

	if err := group.Start(); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	poller.Start(ctx)
	defer poller.Stop()

	eg, egCtx := errgroup.WithContext(ctx)
	if c.MetricsAddr != "" {
		if _, err := serveMetrics(egCtx, eg, c.MetricsAddr, reg, zl); err != nil {
			_ = group.Shutdown(context.Background())
			return err
		}
	}
	for p := range c.Load.Producers {
		eg.Go(func() error {
			produce(egCtx, p, c.Load, taskWorkers, game.Scheduler(), sim)
			return nil
		})
	}

	runErr := eg.Wait()
	if runErr == nil {
		<-ctx.Done()
	}
	zl.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Task threads drain first so the replies their final flush posts are
	// queued before the simulation runs its own final flush.
	tasks := make([]threadrunner.Runnable, 0, len(taskWorkers))
	for _, w := range taskWorkers {
		tasks = append(tasks, w)
	}
	if err := shutdownStages(shutdownCtx, tasks, []threadrunner.Runnable{game}); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	group.Stop()

	printStats(out, group.Stats(), sim)
	return runErr
}

// shutdownStages stops and joins each stage in turn; a stage is only told
// to stop once every worker of the previous one has exited. On error the
// remaining stages are left for the caller to stop.
func shutdownStages(ctx context.Context, stages ...[]threadrunner.Runnable) error {
	for _, stage := range stages {
		for _, w := range stage {
			w.Stop()
		}
		for _, w := range stage {
			if err := w.Join(ctx); err != nil && !errors.Is(err, core.ErrWorkerNotStarted) {
				return fmt.Errorf("join %s: %w", w.Name(), err)
			}
		}
	}
	return nil
}

// produce posts tasksPerProducer tasks round-robin over the task threads.
// Each reply is applied to the simulation on its own thread.
func produce(ctx context.Context, producer int, load config.LoadConfig, workers []*core.TaskWorker, replyTo *core.Scheduler, sim *loadSimulation) {
	if len(workers) == 0 {
		return
	}
	for i := range load.TasksPerProducer {
		if ctx.Err() != nil {
			return
		}
		target := workers[(producer+i)%len(workers)]
		core.PostTaskAndReply(target.Scheduler(),
			func(context.Context) { spin(load.TaskCost) },
			func(context.Context) { sim.applied++ },
			replyTo)
	}
}

// spin keeps the calling thread busy for d.
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// serveMetrics binds addr and serves /metrics on eg until ctx ends. It
// returns the bound address.
func serveMetrics(ctx context.Context, eg *errgroup.Group, addr string, reg *prom.Registry, zl zerolog.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	eg.Go(func() error {
		zl.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return ln.Addr(), nil
}

func printStats(out io.Writer, stats []core.WorkerStats, sim *loadSimulation) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tTYPE\tPRIORITY\tTASKS\tTICKS\tPENDING")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", s.Name, s.Type, s.Priority, s.TasksExecuted, s.Ticks, s.Pending)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "simulated %.2fs, applied %d replies\n", sim.simulated, sim.applied)
}
