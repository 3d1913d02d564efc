package systems

import (
	"time"

	"github.com/volundmush/moonsilver/internal/core/world"
)

// Processor is a unit of per-tick behaviour. Process receives exclusive access
// to the world and the time elapsed since the previous loop iteration.
// A returned error or a panic fails only this processor for this tick.
type Processor interface {
	Name() string
	Priority() Priority
	Process(w *world.World, delta time.Duration) error
}

// Priority orders processors within a tick; lower values run first.
type Priority int

// Common priorities
const (
	PriorityFirst   Priority = -1000
	PriorityEarly   Priority = -100
	PriorityNormal  Priority = 0
	PriorityLate    Priority = 100
	PriorityPersist Priority = 1000
)

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc struct {
	ID    string
	Order Priority
	Fn    func(w *world.World, delta time.Duration) error
}

func (p ProcessorFunc) Name() string       { return p.ID }
func (p ProcessorFunc) Priority() Priority { return p.Order }

func (p ProcessorFunc) Process(w *world.World, delta time.Duration) error {
	if p.Fn == nil {
		return nil
	}
	return p.Fn(w, delta)
}

// withPriority overrides the priority of a wrapped processor.
type withPriority struct {
	Processor
	priority Priority
}

func (p withPriority) Priority() Priority { return p.priority }

// WithPriority returns p reporting priority instead of its own.
func WithPriority(p Processor, priority Priority) Processor {
	if p.Priority() == priority {
		return p
	}
	return withPriority{Processor: p, priority: priority}
}

// Metrics provides runtime metrics for a processor
type Metrics struct {
	ExecutionCount       uint64
	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration
	MaxExecutionTime     time.Duration
	MinExecutionTime     time.Duration
	ErrorCount           uint64
	LastError            error
	LastExecutionTime    time.Time
}

func (m *Metrics) observe(at time.Time, took time.Duration, err error) {
	m.ExecutionCount++
	m.TotalExecutionTime += took
	m.AverageExecutionTime = m.TotalExecutionTime / time.Duration(m.ExecutionCount)
	if took > m.MaxExecutionTime {
		m.MaxExecutionTime = took
	}
	if m.ExecutionCount == 1 || took < m.MinExecutionTime {
		m.MinExecutionTime = took
	}
	m.LastExecutionTime = at
	if err != nil {
		m.ErrorCount++
		m.LastError = err
	}
}
