//go:build amd64

package coroed

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
)

// Config holds the Scheduler's compile-time-in-spirit parameters: table
// capacity, worker count, per-task stack size, and the next_task retry
// budget/sleep. Built via NewScheduler's functional Options rather than
// literal compile-time constants, since a Go library can't ask its
// embedder to recompile it for a different worker count.
type Config struct {
	tableCapacity int
	workers       int
	stackSize     int
	retryBudget   int
	retrySleep    time.Duration
	logger        zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		tableCapacity: 64,
		workers:       8,
		stackSize:     defaultStackSize,
		retryBudget:   8,
		retrySleep:    time.Second,
		logger:        zerolog.New(os.Stderr).With().Timestamp().Str("component", "coroed").Logger(),
	}
}

// Option configures a Scheduler at construction time.
type Option func(*Config)

// WithCapacity overrides the task table's fixed size (default 64).
func WithCapacity(n int) Option { return func(c *Config) { c.tableCapacity = n } }

// WithWorkers overrides the number of dispatch-loop workers spawned by
// Start (default 8).
func WithWorkers(n int) Option { return func(c *Config) { c.workers = n } }

// WithStackSize overrides each task's stack size in bytes, rounded up to
// a whole number of pages (default 1 MiB).
func WithStackSize(n int) Option { return func(c *Config) { c.stackSize = n } }

// WithRetryBudget overrides next_task's outer retry attempts before a
// worker treats the table as quiescent (default 8).
func WithRetryBudget(n int) Option { return func(c *Config) { c.retryBudget = n } }

// WithRetrySleep overrides the pause between retry attempts (default 1s).
func WithRetrySleep(d time.Duration) Option { return func(c *Config) { c.retrySleep = d } }

// WithLogger overrides the zerolog.Logger used for lifecycle and fatal
// diagnostics (default: a timestamped stderr logger).
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.logger = l } }

// Scheduler is the task table: a fixed-size array of TaskSlots plus the
// configuration governing how workers dispatch them. It is the container
// submit, start, destroy, and the dispatch loop internals all hang off.
type Scheduler struct {
	cfg   Config
	tasks []Task // fixed-size; never appended to after NewScheduler
}

// NewScheduler builds a Scheduler with every slot ZOMBIE, UT null, and
// spinlock free, validating the supplied configuration.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tableCapacity <= 0 {
		return nil, errors.New("coroed: table capacity must be positive")
	}
	if cfg.workers <= 0 {
		return nil, errors.New("coroed: worker count must be positive")
	}
	if cfg.retryBudget <= 0 {
		return nil, errors.New("coroed: retry budget must be positive")
	}

	s := &Scheduler{cfg: cfg, tasks: make([]Task, cfg.tableCapacity)}
	for i := range s.tasks {
		s.tasks[i].index = i
		s.tasks[i].sched = s
		s.tasks[i].state = stateZombie
	}
	return s, nil
}

// Submit scans the task table in index order for a claimable slot: one
// whose spinlock it can acquire and which is ZOMBIE. It installs entry
// and arg, marks the slot RUNNABLE, and returns its handle. If every slot
// is exhausted after a full pass, Submit logs a fatal diagnostic and
// terminates the process — this is a minimal runtime with no
// backpressure primitive.
func (s *Scheduler) Submit(entry func(), arg unsafe.Pointer) *Task {
	for i := range s.tasks {
		task := &s.tasks[i]

		if !task.lock.TryLock() {
			continue
		}

		if task.ut == nil {
			ut, err := Allocate(s.cfg.stackSize)
			if err != nil {
				task.lock.Unlock()
				s.cfg.logger.Fatal().Err(err).Int("slot", i).Msg("coroed: uthread allocation failed")
			}
			task.ut = ut
		}

		claimed := task.state == stateZombie
		if claimed {
			task.ut.Reset()
			task.ut.SetEntry(taskTrampolineAddr())
			task.ut.SetArg0(uintptr(unsafe.Pointer(task)))
			task.ut.SetArg1(uintptr(arg))
			task.entry = entry
			task.argument = arg
			task.state = stateRunnable
		}

		task.lock.Unlock()
		if claimed {
			s.cfg.logger.Debug().Int("slot", i).Msg("coroed: task submitted")
			return task
		}
	}

	s.cfg.logger.Fatal().Int("capacity", s.cfg.tableCapacity).Msg("coroed: task table exhausted")
	panic("coroed: unreachable, logger.Fatal terminates the process")
}

// Start spawns Config.workers dispatch-loop goroutines, each pinned to
// its own OS thread, and blocks until every one of them has observed an
// empty task table across its retry budget (or ctx is cancelled while a
// worker is idle between attempts — see SPEC_FULL.md §4.3).
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(s.cfg.workers)
	for i := 0; i < s.cfg.workers; i++ {
		w := &Worker{sched: s}
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}
	wg.Wait()
}

// Destroy releases every allocated UserThread's stack. It must only be
// called when no worker is active.
func (s *Scheduler) Destroy() {
	for i := range s.tasks {
		task := &s.tasks[i]
		task.lock.Lock()
		if task.ut != nil {
			task.ut.Free()
			task.ut = nil
		}
		task.lock.Unlock()
	}
}
