// Package engine drives the world: it runs setup loaders once, then paces
// ticks against wall-clock time, letting the session gateway apply player
// commands before every tick's processors run.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/systems"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Gateway applies pending session commands and advances action queues.
// Update must not touch the world after it returns.
type Gateway interface {
	Update(ctx context.Context, e *Engine, delta time.Duration) error
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, e *Engine, delta time.Duration) error

func (f GatewayFunc) Update(ctx context.Context, e *Engine, delta time.Duration) error {
	return f(ctx, e, delta)
}

// Loaders populate the world during Setup, in field order. Nil hooks are skipped.
// StaticWorld and DatabaseWorld run inside the world's exclusive context.
type Loaders struct {
	StaticAssets   func() error
	StaticWorld    func(w *world.World) error
	DatabaseAssets func(ctx context.Context) error
	DatabaseWorld  func(w *world.World) error
}

// Iteration describes one pass of the game loop.
type Iteration struct {
	Tick  uint64
	Delta time.Duration
	// Elapsed is the time since the previous tick started, measured after the gateway.
	Elapsed    time.Duration
	Sleep      time.Duration
	GatewayErr error
	Report     systems.TickReport
}

// Overrun reports whether the iteration fell behind the pacing target.
func (it Iteration) Overrun(interval time.Duration) bool { return it.Elapsed > interval }

// Observer is notified after every loop iteration.
type Observer interface {
	OnIteration(it Iteration)
}

type Options struct {
	Interval   time.Duration
	Gateway    Gateway
	Scheduler  *systems.Scheduler
	Processors []systems.Processor
	Loaders    Loaders
	Clock      Clock
	Logger     log.Log
	Observers  []Observer
}

type Engine struct {
	world     *world.World
	interval  time.Duration
	gateway   Gateway
	scheduler *systems.Scheduler
	procs     []systems.Processor
	loaders   Loaders
	clock     Clock
	logger    log.Log
	observers []Observer

	setupMu  sync.Mutex
	setupErr error
	state    atomic.Int32
	running  atomic.Bool
}

func New(w *world.World, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = systems.NewScheduler(opts.Logger)
	}
	if opts.Gateway == nil {
		opts.Gateway = GatewayFunc(func(context.Context, *Engine, time.Duration) error { return nil })
	}
	return &Engine{
		world:     w,
		interval:  opts.Interval,
		gateway:   opts.Gateway,
		scheduler: opts.Scheduler,
		procs:     opts.Processors,
		loaders:   opts.Loaders,
		clock:     opts.Clock,
		logger:    opts.Logger.With(log.String("component", "engine")),
		observers: opts.Observers,
	}
}

func (e *Engine) World() *world.World           { return e.world }
func (e *Engine) Scheduler() *systems.Scheduler { return e.scheduler }
func (e *Engine) Interval() time.Duration       { return e.interval }
func (e *Engine) State() State                  { return State(e.state.Load()) }

// Ticks returns how many ticks have run.
func (e *Engine) Ticks() uint64 { return e.scheduler.Ticks() }

// Do runs fn with exclusive access to the world. Diagnostics and other
// out-of-loop callers must use it instead of touching the world directly.
func (e *Engine) Do(fn func(w *world.World) error) error {
	return e.world.Exclusive(fn)
}

// Setup registers processors and runs the loaders in order. It runs once:
// later calls return the first outcome. Any failure is a *SetupError.
func (e *Engine) Setup(ctx context.Context) error {
	e.setupMu.Lock()
	defer e.setupMu.Unlock()

	switch e.State() {
	case StateIdle:
	case StateSetup:
		return nil
	default:
		return fmt.Errorf("%w: setup while %s", ErrInvalidState, e.State())
	}
	if e.setupErr != nil {
		return e.setupErr
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"processors", func() error { return e.scheduler.Add(e.procs...) }},
		{"static_assets", func() error {
			if e.loaders.StaticAssets == nil {
				return nil
			}
			return e.loaders.StaticAssets()
		}},
		{"static_world", func() error { return e.load(e.loaders.StaticWorld) }},
		{"database_assets", func() error {
			if e.loaders.DatabaseAssets == nil {
				return nil
			}
			return e.loaders.DatabaseAssets(ctx)
		}},
		{"database_world", func() error { return e.load(e.loaders.DatabaseWorld) }},
	}

	for _, step := range steps {
		start := e.clock.Now()
		if err := step.run(); err != nil {
			e.setupErr = &SetupError{Step: step.name, Err: err}
			e.logger.Error("setup failed", log.String("step", step.name), log.Error(err))
			return e.setupErr
		}
		e.logger.Debug("setup step done",
			log.String("step", step.name),
			log.Duration("took", e.clock.Now().Sub(start)),
		)
	}

	e.state.Store(int32(StateSetup))
	e.logger.Info("setup complete",
		log.Strings("processors", e.scheduler.ExecutionOrder()),
		log.Int("entities", e.world.Entities()),
	)
	return nil
}

func (e *Engine) load(fn func(w *world.World) error) error {
	if fn == nil {
		return nil
	}
	return e.world.Exclusive(fn)
}

// Start runs the game loop until Stop is called or ctx is cancelled. Both are
// observed only at the top of an iteration, so the iteration in flight always
// completes, tick included.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateSetup), int32(StateRunning)) {
		if e.setupErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, e.setupErr)
		}
		return fmt.Errorf("%w: start while %s", ErrInvalidState, e.State())
	}
	e.running.Store(true)
	defer e.state.Store(int32(StateStopped))

	e.logger.Info("game loop started", log.Duration("interval", e.interval))

	last := e.clock.Now()
	current := last
	lastTick := last
	for e.running.Load() && ctx.Err() == nil {
		delta := max(current.Sub(last), 0)
		last = current
		it := Iteration{Delta: delta}

		if err := e.updateGateway(ctx, delta); err != nil {
			it.GatewayErr = err
			e.logger.Warn("session update failed", log.Error(err))
		}

		it.Elapsed = max(e.clock.Now().Sub(lastTick), 0)
		if remaining := e.interval - it.Elapsed; remaining > 0 {
			it.Sleep = remaining
			// A cancelled sleep still runs the tick below.
			_ = e.clock.Sleep(ctx, remaining)
		} else if it.Overrun(e.interval) {
			e.logger.Debug("tick behind schedule", log.Duration("lag", it.Elapsed-e.interval))
		}

		lastTick = e.clock.Now()
		_ = e.world.Exclusive(func(w *world.World) error {
			it.Report = e.scheduler.RunTick(w, delta)
			return nil
		})
		it.Tick = it.Report.Tick

		for _, o := range e.observers {
			o.OnIteration(it)
		}
		current = e.clock.Now()
	}

	e.logger.Info("game loop stopped", log.Uint64("ticks", e.scheduler.Ticks()))
	return nil
}

// updateGateway keeps a panicking gateway from tearing down the loop.
func (e *Engine) updateGateway(ctx context.Context, delta time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrGatewayPanic, r)
		}
	}()
	return e.gateway.Update(ctx, e, delta)
}

// Stop asks the loop to halt after the iteration in flight.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether the loop will start another iteration.
func (e *Engine) Running() bool { return e.running.Load() }
