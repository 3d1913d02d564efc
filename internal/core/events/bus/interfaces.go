package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// Event is a notification about something that happened in the world.
// Events are published from the game loop, inside the world's exclusive
// context, so handlers may read and mutate the world.
type Event interface {
	Type() string
}

// Event types published by the session gateway.
const (
	TypeSessionDisconnected = "session.disconnected"
	TypeCommandFailed       = "command.failed"
	TypeActionFired         = "action.fired"
)

type SessionDisconnected struct {
	Session uuid.UUID
	Entity  models.EntityID
}

type CommandFailed struct {
	Session uuid.UUID
	Command string
	Err     error
}

type ActionFired struct {
	Entity models.EntityID
	Action string
	Err    error
}

func (SessionDisconnected) Type() string { return TypeSessionDisconnected }
func (CommandFailed) Type() string       { return TypeCommandFailed }
func (ActionFired) Type() string         { return TypeActionFired }

// Handler is invoked per delivered event. Errors are joined and returned from Publish.
type Handler func(event Event) error

// Subscription is a registered handler. Cancel is safe to call more than once.
type Subscription struct {
	id        string
	eventType string
	bus       *Bus
}

func (s *Subscription) ID() string        { return s.id }
func (s *Subscription) EventType() string { return s.eventType }

func (s *Subscription) Cancel() {
	if s != nil && s.bus != nil {
		s.bus.unsubscribe(s)
	}
}

// Observer is notified after every delivery. Observers should return quickly.
type Observer interface {
	OnDelivered(eventType string, handlers int, err error, took time.Duration)
}

// Metrics are counters updated on every Publish.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
}
