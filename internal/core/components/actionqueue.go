package components

import (
	"time"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Action is a pending timed deed of an entity, e.g. a spell being cast.
type Action interface {
	Name() string
	// Delay is how long the action waits in front of the queue before it fires.
	Delay() time.Duration
	Run(w *world.World, actor models.EntityID) error
}

// ActionQueue holds an entity's pending actions. Remaining counts down each
// tick and the head action fires once it reaches zero.
type ActionQueue struct {
	models.Base

	Queue     []Action
	Delay     time.Duration
	Remaining time.Duration
}

func NewActionQueue() *ActionQueue {
	return &ActionQueue{Queue: make([]Action, 0, 4)}
}

func (*ActionQueue) Kind() models.Kind { return KindActionQueue }

// Push appends an action. An idle queue arms its countdown from the new head.
func (q *ActionQueue) Push(a Action) {
	q.Queue = append(q.Queue, a)
	if len(q.Queue) == 1 {
		q.Delay = a.Delay()
		q.Remaining = q.Delay
	}
	q.MarkDirty()
}

// Clear drops every pending action.
func (q *ActionQueue) Clear() {
	q.Queue = q.Queue[:0]
	q.Delay, q.Remaining = 0, 0
	q.MarkDirty()
}

// Advance counts down by elapsed and returns the actions that became due, in
// order. Each newly armed action starts from its full delay; zero-delay
// actions behind a due one fire in the same call.
func (q *ActionQueue) Advance(elapsed time.Duration) []Action {
	if len(q.Queue) == 0 || elapsed < 0 {
		return nil
	}
	q.Remaining -= elapsed
	var due []Action
	for len(q.Queue) > 0 && q.Remaining <= 0 {
		head := q.Queue[0]
		q.Queue[0] = nil
		q.Queue = q.Queue[1:]
		due = append(due, head)

		q.Delay, q.Remaining = 0, 0
		if len(q.Queue) > 0 {
			q.Delay = q.Queue[0].Delay()
			q.Remaining = q.Delay
		}
	}
	q.MarkDirty()
	return due
}

func (q *ActionQueue) Export() models.Export {
	names := make([]string, len(q.Queue))
	for i, a := range q.Queue {
		names[i] = a.Name()
	}
	return models.Export{
		"queue":     names,
		"delay":     q.Delay.Milliseconds(),
		"remaining": q.Remaining.Milliseconds(),
	}
}
