package session

import (
	"fmt"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Command is one parsed player input, applied inside the exclusive context.
type Command interface {
	Name() string
	Apply(w *world.World, s Session) error
}

// CommandFunc adapts a function to Command.
type CommandFunc struct {
	ID string
	Fn func(w *world.World, s Session) error
}

func (c CommandFunc) Name() string { return c.ID }

func (c CommandFunc) Apply(w *world.World, s Session) error { return c.Fn(w, s) }

// Move walks the puppet through the exit of its room in Direction.
type Move struct {
	Direction string
}

func (Move) Name() string { return "move" }

func (m Move) Apply(w *world.World, s Session) error {
	if s.Entity.IsNone() {
		return ErrNoPuppet
	}
	loc, ok := world.Get[*components.RoomLocation](w, s.Entity)
	if !ok {
		return fmt.Errorf("%w: entity %d is not in a room", ErrNoExit, s.Entity)
	}
	room, ok := world.Get[*components.Room](w, loc.Room)
	if !ok {
		return fmt.Errorf("%w: room %d is gone", ErrNoExit, loc.Room)
	}
	exit, ok := room.Exits[m.Direction]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoExit, m.Direction)
	}
	if !components.Traversable(w, exit) {
		return fmt.Errorf("%w: %q", ErrExitBlocked, m.Direction)
	}
	e, _ := world.Get[*components.Exit](w, exit)
	return components.PlaceInRoom(w, s.Entity, e.Destination)
}

// Queue appends Action to the puppet's action queue, creating the queue on
// first use.
type Queue struct {
	Action components.Action
}

func (Queue) Name() string { return "queue" }

func (c Queue) Apply(w *world.World, s Session) error {
	if s.Entity.IsNone() {
		return ErrNoPuppet
	}
	return Push(w, s.Entity, c.Action)
}

// Push appends a to id's action queue.
func Push(w *world.World, id models.EntityID, a components.Action) error {
	q, ok := world.Get[*components.ActionQueue](w, id)
	if !ok {
		q = components.NewActionQueue()
		if err := w.Attach(id, q); err != nil {
			return err
		}
	}
	q.Push(a)
	return nil
}
