// Package config loads the threadrunner command's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Swind/go-thread-runner/core"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of the threadrunner command.
type Config struct {
	LogLevel     string        `yaml:"log_level"`     // debug, info, warn, error
	LogFormat    string        `yaml:"log_format"`    // console, json
	MetricsAddr  string        `yaml:"metrics_addr"`  // empty disables the /metrics endpoint
	PollInterval time.Duration `yaml:"poll_interval"` // worker stats snapshot period

	Simulation  SimulationConfig `yaml:"simulation"`
	TaskThreads []ThreadConfig   `yaml:"task_threads"`
	Load        LoadConfig       `yaml:"load"`
}

// SimulationConfig describes the fixed-cadence worker.
type SimulationConfig struct {
	Name           string        `yaml:"name"`
	Priority       string        `yaml:"priority"`
	TicksPerSecond float64       `yaml:"ticks_per_second"`
	FreeRunning    bool          `yaml:"free_running"`
	IdleSleep      time.Duration `yaml:"idle_sleep"`
	HistorySize    int           `yaml:"history_size"`
}

// ThreadConfig describes one draining task worker.
type ThreadConfig struct {
	Name        string `yaml:"name"`
	Priority    string `yaml:"priority"` // empty means normal
	FlushOnStop bool   `yaml:"flush_on_stop"`
	HistorySize int    `yaml:"history_size"`
}

// LoadConfig drives the built-in producer goroutines.
type LoadConfig struct {
	Producers        int           `yaml:"producers"`
	TasksPerProducer int           `yaml:"tasks_per_producer"`
	TaskCost         time.Duration `yaml:"task_cost"` // busy time per task
	Duration         time.Duration `yaml:"duration"`  // 0 runs until interrupted
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		LogLevel:     "info",
		LogFormat:    "console",
		MetricsAddr:  ":9090",
		PollInterval: time.Second,
		Simulation: SimulationConfig{
			Name:           "game",
			Priority:       "high",
			TicksPerSecond: 60,
			IdleSleep:      time.Millisecond,
		},
		TaskThreads: []ThreadConfig{
			{Name: "task", Priority: "normal", FlushOnStop: true},
		},
		Load: LoadConfig{
			Producers:        4,
			TasksPerProducer: 1000,
			TaskCost:         50 * time.Microsecond,
			Duration:         5 * time.Second,
		},
	}
}

// Load reads path over the defaults. Fields missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined into one error.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown format %q", c.LogFormat))
	}
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll_interval: must not be negative"))
	}

	names := map[string]bool{}
	checkThread := func(field, name, priority string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", field))
		} else if names[name] {
			errs = append(errs, fmt.Errorf("%s: duplicate thread name %q", field, name))
		}
		names[name] = true
		if priority == "" {
			return
		}
		if _, err := core.ParseThreadPriority(priority); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	checkThread("simulation", c.Simulation.Name, c.Simulation.Priority)
	if c.Simulation.TicksPerSecond < 0 {
		errs = append(errs, errors.New("simulation.ticks_per_second: must not be negative"))
	}
	if c.Simulation.IdleSleep < 0 {
		errs = append(errs, errors.New("simulation.idle_sleep: must not be negative"))
	}

	if len(c.TaskThreads) == 0 {
		errs = append(errs, errors.New("task_threads: at least one thread is required"))
	}
	for i, t := range c.TaskThreads {
		checkThread(fmt.Sprintf("task_threads[%d]", i), t.Name, t.Priority)
	}

	if c.Load.Producers < 0 || c.Load.TasksPerProducer < 0 {
		errs = append(errs, errors.New("load: producers and tasks_per_producer must not be negative"))
	}
	if c.Load.TaskCost < 0 || c.Load.Duration < 0 {
		errs = append(errs, errors.New("load: task_cost and duration must not be negative"))
	}

	return errors.Join(errs...)
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Priority returns the parsed priority, or normal if name is empty or
// does not parse.
func Priority(name string) core.ThreadPriority {
	p, err := core.ParseThreadPriority(name)
	if err != nil {
		return core.ThreadPriorityNormal
	}
	return p
}
