// Package scheduler runs one independent periodic loop per (device,
// collector) pairing. A loop collects, hands the metrics to the exporter
// without waiting for delivery, sleeps for its interval and repeats. A
// collector error ends that loop only; every other loop keeps running.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vpbank/netpaca/models"
	"github.com/vpbank/netpaca/pkg/netpaca/collector"
	"github.com/vpbank/netpaca/pkg/netpaca/config"
	"github.com/vpbank/netpaca/pkg/netpaca/device"
	"github.com/vpbank/netpaca/pkg/netpaca/telemetry"
)

// Errors returned by Schedule.
var (
	ErrIntervalTooShort = errors.New("scheduler: interval below minimum")
	ErrDuplicate        = errors.New("scheduler: collector already scheduled for device")
)

// ─────────────────────────────────────────────────────────────────────────────
// Exporter
// ─────────────────────────────────────────────────────────────────────────────

// Exporter is the subset of export.Pipeline consumed by the scheduler.
// Export must not return before it has delivered or given up, and must
// handle its own failures.
type Exporter interface {
	Export(ctx context.Context, dev *device.Device, metrics []models.Metric)
}

// ─────────────────────────────────────────────────────────────────────────────
// Task
// ─────────────────────────────────────────────────────────────────────────────

// State is the lifecycle state of a Task.
type State int32

const (
	Scheduled State = iota
	Running
	Sleeping
	Terminated
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Spec identifies the collector a task runs and its options.
type Spec struct {
	Collector      string
	ExpectsMetrics bool
	Config         config.CollectorOptions
}

// Task is one scheduled (device, collector) pairing.
type Task struct {
	Device   *device.Device
	Spec     Spec
	Interval time.Duration

	fn     collector.Func
	state  atomic.Int32
	cycles atomic.Int64
	done   chan struct{}
}

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Cycles returns the number of completed collection cycles.
func (t *Task) Cycles() int64 { return t.cycles.Load() }

// Done is closed once the task has terminated.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }

type taskKey struct {
	device    string
	collector string
}

func (t *Task) key() taskKey { return taskKey{t.Device.Name, t.Spec.Collector} }

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Options configures a Scheduler. Zero values use the defaults.
type Options struct {
	// MinInterval is the shortest accepted interval. Default: 30s.
	MinInterval time.Duration

	// Telemetry receives cycle and task counts. May be nil.
	Telemetry *telemetry.Metrics
}

// Scheduler owns the task loops and the in-flight exports.
type Scheduler struct {
	exporter Exporter
	opts     Options
	logger   *slog.Logger

	mu    sync.Mutex
	tasks map[taskKey]*Task

	loops   conc.WaitGroup
	exports conc.WaitGroup
}

// New creates a Scheduler. Nothing runs until Schedule is called.
func New(exporter Exporter, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Duration(config.MinIntervalSeconds) * time.Second
	}
	return &Scheduler{
		exporter: exporter,
		opts:     opts,
		logger:   logger,
		tasks:    make(map[taskKey]*Task),
	}
}

// Schedule registers the pairing and starts its loop. The first cycle runs
// immediately. The loop ends when ctx is cancelled or the collector fails.
func (s *Scheduler) Schedule(ctx context.Context, dev *device.Device, spec Spec, fn collector.Func, interval time.Duration) (*Task, error) {
	if interval < s.opts.MinInterval {
		return nil, fmt.Errorf("%w: %s < %s (%s/%s)", ErrIntervalTooShort, interval, s.opts.MinInterval, dev.Name, spec.Collector)
	}
	t := &Task{
		Device:   dev,
		Spec:     spec,
		Interval: interval,
		fn:       fn,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if _, dup := s.tasks[t.key()]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicate, dev.Name, spec.Collector)
	}
	s.tasks[t.key()] = t
	s.mu.Unlock()

	s.opts.Telemetry.TaskStarted()
	s.logger.Info("scheduler: task scheduled",
		"device", dev.Name,
		"collector", spec.Collector,
		"interval", interval.String(),
	)
	s.loops.Go(func() { s.run(ctx, t) })
	return t, nil
}

// Tasks returns a snapshot of the live tasks ordered by device then collector.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key(), out[j].key()
		if a.device != b.device {
			return a.device < b.device
		}
		return a.collector < b.collector
	})
	return out
}

// Active returns the number of live tasks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Wait blocks until every loop and every in-flight export has returned.
// The caller cancels the context given to Schedule first.
func (s *Scheduler) Wait() {
	s.loops.Wait()
	s.exports.Wait()
}

// ─────────────────────────────────────────────────────────────────────────────
// Task loop
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) run(ctx context.Context, t *Task) {
	defer s.deregister(t)

	log := s.logger.With("device", t.Device.Name, "collector", t.Spec.Collector)
	for {
		if ctx.Err() != nil {
			return
		}

		t.setState(Running)
		started := time.Now()
		metrics, err := s.collect(ctx, t, models.NowMillis())
		elapsed := time.Since(started)

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.opts.Telemetry.CycleDone(t.Spec.Collector, telemetry.ResultError, elapsed)
			log.Error("scheduler: collection failed, task stopped", "error", err.Error())
			return
		}

		switch {
		case len(metrics) > 0:
			s.opts.Telemetry.CycleDone(t.Spec.Collector, telemetry.ResultOK, elapsed)
			s.export(ctx, t, metrics)
		case t.Spec.ExpectsMetrics:
			s.opts.Telemetry.CycleDone(t.Spec.Collector, telemetry.ResultEmpty, elapsed)
			log.Warn("scheduler: collector returned no metrics")
		default:
			s.opts.Telemetry.CycleDone(t.Spec.Collector, telemetry.ResultEmpty, elapsed)
		}
		t.cycles.Add(1)
		log.Debug("scheduler: cycle complete",
			"metrics", len(metrics),
			"elapsed", elapsed.String(),
		)

		t.setState(Sleeping)
		timer := time.NewTimer(t.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		t.setState(Scheduled)
	}
}

// collect runs the collector, turning a panic into an error.
func (s *Scheduler) collect(ctx context.Context, t *Task, ts int64) (metrics []models.Metric, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		metrics, err = t.fn(ctx, t.Device, ts, t.Spec.Config)
	})
	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("collector panic: %w", r.AsError())
	}
	return metrics, err
}

// export hands metrics to the exporter on its own goroutine.
func (s *Scheduler) export(ctx context.Context, t *Task, metrics []models.Metric) {
	s.exports.Go(func() {
		var pc panics.Catcher
		pc.Try(func() { s.exporter.Export(ctx, t.Device, metrics) })
		if r := pc.Recovered(); r != nil {
			s.logger.Error("scheduler: export panic",
				"device", t.Device.Name,
				"collector", t.Spec.Collector,
				"error", r.AsError().Error(),
			)
		}
	})
}

func (s *Scheduler) deregister(t *Task) {
	t.setState(Terminated)
	s.mu.Lock()
	delete(s.tasks, t.key())
	s.mu.Unlock()
	s.opts.Telemetry.TaskStopped()
	close(t.done)
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
