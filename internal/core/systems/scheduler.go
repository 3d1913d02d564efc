package systems

import (
	"fmt"
	"slices"
	"time"

	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Observer is notified after every processor run. Implementations export
// metrics and must return quickly.
type Observer interface {
	OnProcessed(name string, took time.Duration, err error)
}

type entry struct {
	proc     Processor
	seq      int
	disabled bool
	metrics  Metrics
}

// Scheduler runs registered processors once per tick in ascending priority
// order; equal priorities keep registration order.
//
// A Scheduler is owned by the game loop and is not safe for concurrent use.
type Scheduler struct {
	logger    log.Log
	observers []Observer

	entries []*entry
	byName  map[string]*entry
	seq     int
	tick    uint64
	now     func() time.Time
}

func NewScheduler(logger log.Log, observers ...Observer) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		logger:    logger.With(log.String("component", "scheduler")),
		observers: observers,
		byName:    make(map[string]*entry),
		now:       time.Now,
	}
}

// Add registers processors, keeping the run order sorted. If any name is
// already taken, or repeated within procs, nothing is registered.
func (s *Scheduler) Add(procs ...Processor) error {
	batch := make(map[string]struct{}, len(procs))
	for _, p := range procs {
		if _, ok := s.byName[p.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateProcessor, p.Name())
		}
		if _, ok := batch[p.Name()]; ok {
			return fmt.Errorf("%w: %s repeated in batch", ErrDuplicateProcessor, p.Name())
		}
		batch[p.Name()] = struct{}{}
	}

	for _, p := range procs {
		e := &entry{proc: p, seq: s.seq}
		s.seq++
		s.byName[p.Name()] = e
		s.entries = append(s.entries, e)
	}
	slices.SortStableFunc(s.entries, func(a, b *entry) int {
		if a.proc.Priority() != b.proc.Priority() {
			if a.proc.Priority() < b.proc.Priority() {
				return -1
			}
			return 1
		}
		return a.seq - b.seq
	})
	return nil
}

// Remove unregisters a processor by name.
func (s *Scheduler) Remove(name string) error {
	e, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	delete(s.byName, name)
	s.entries = slices.DeleteFunc(s.entries, func(x *entry) bool { return x == e })
	return nil
}

// SetEnabled toggles a processor without changing its position.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	e, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	e.disabled = !enabled
	return nil
}

// ExecutionOrder lists processor names in the order RunTick calls them.
func (s *Scheduler) ExecutionOrder() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.proc.Name()
	}
	return out
}

func (s *Scheduler) Len() int { return len(s.entries) }

// Ticks returns how many times RunTick has run.
func (s *Scheduler) Ticks() uint64 { return s.tick }

func (s *Scheduler) Metrics(name string) (Metrics, bool) {
	e, ok := s.byName[name]
	if !ok {
		return Metrics{}, false
	}
	return e.metrics, true
}

// TickReport summarizes one RunTick call.
type TickReport struct {
	Tick     uint64
	Ran      int
	Failures []*ProcessorError
	Took     time.Duration
}

// RunTick invokes every enabled processor exactly once, sequentially. A failing
// processor is logged and skipped for the rest of the tick; the others still run.
// The caller must hold the world's exclusive context.
func (s *Scheduler) RunTick(w *world.World, delta time.Duration) TickReport {
	s.tick++
	report := TickReport{Tick: s.tick}
	start := s.now()

	// Snapshot so processors added mid-tick only run from the next tick.
	entries := slices.Clone(s.entries)
	for _, e := range entries {
		if e.disabled {
			continue
		}
		report.Ran++
		if perr := s.run(e, w, delta); perr != nil {
			report.Failures = append(report.Failures, perr)
		}
	}

	report.Took = s.now().Sub(start)
	return report
}

func (s *Scheduler) run(e *entry, w *world.World, delta time.Duration) (perr *ProcessorError) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			perr = &ProcessorError{Processor: e.proc.Name(), Priority: e.proc.Priority(), Tick: s.tick, Panicked: true, Err: err}
		}

		took := s.now().Sub(start)
		var err error
		if perr != nil {
			err = perr
			s.logger.Error("processor failed",
				log.String("processor", perr.Processor),
				log.Int("priority", int(perr.Priority)),
				log.Uint64("tick", perr.Tick),
				log.Bool("panic", perr.Panicked),
				log.Error(perr.Err),
			)
		}
		e.metrics.observe(start, took, err)
		for _, o := range s.observers {
			o.OnProcessed(e.proc.Name(), took, err)
		}
	}()

	if err := e.proc.Process(w, delta); err != nil {
		return &ProcessorError{Processor: e.proc.Name(), Priority: e.proc.Priority(), Tick: s.tick, Err: err}
	}
	return nil
}
