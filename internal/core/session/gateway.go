// Package session applies queued player commands to the world once per loop
// iteration, before the tick's processors run.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/engine"
	"github.com/volundmush/moonsilver/internal/core/events/bus"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Session is one connected player. Entity is the puppet its commands act on.
type Session struct {
	ID          uuid.UUID
	Entity      models.EntityID
	ConnectedAt time.Time
}

type envelope struct {
	session uuid.UUID
	cmd     Command
}

// Gateway buffers commands from network goroutines and applies them on the
// loop. Connect, Enqueue and Disconnect are safe for concurrent use.
type Gateway struct {
	logger log.Log
	events *bus.Bus

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	inbox    []envelope
	leaving  []uuid.UUID

	// OnDisconnect runs inside the exclusive context when a session leaves.
	OnDisconnect func(w *world.World, s Session) error

	applied atomic.Uint64
	failed  atomic.Uint64
}

// New returns a gateway publishing to events, which may be nil.
func New(logger log.Log, events *bus.Bus) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gateway{
		logger:   logger.With(log.String("component", "session")),
		events:   events,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Connect opens a session controlling entity.
func (g *Gateway) Connect(entity models.EntityID) uuid.UUID {
	s := &Session{ID: uuid.New(), Entity: entity, ConnectedAt: time.Now()}
	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()
	g.logger.Info("session connected", log.String("session", s.ID.String()), log.Uint64("entity", uint64(entity)))
	return s.ID
}

// Enqueue queues cmd for the next update. Commands apply in arrival order.
func (g *Gateway) Enqueue(id uuid.UUID, cmd Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	g.inbox = append(g.inbox, envelope{session: id, cmd: cmd})
	return nil
}

// Disconnect schedules the session's removal. Commands it already queued
// still apply in the next update.
func (g *Gateway) Disconnect(id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	if !slices.Contains(g.leaving, id) {
		g.leaving = append(g.leaving, id)
	}
	return nil
}

func (g *Gateway) Session(id uuid.UUID) (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Processed returns how many commands applied cleanly and how many failed.
func (g *Gateway) Processed() (applied, failed uint64) {
	return g.applied.Load(), g.failed.Load()
}

// Update drains the inbox, handles disconnects and counts down action queues,
// all within one exclusive section. A failing or panicking command or action
// is logged, published and skipped.
func (g *Gateway) Update(ctx context.Context, e *engine.Engine, delta time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	inbox, leaving := g.inbox, g.leaving
	g.inbox, g.leaving = nil, nil
	sessions := make(map[uuid.UUID]Session, len(g.sessions))
	for id, s := range g.sessions {
		sessions[id] = *s
	}
	g.mu.Unlock()

	err := e.Do(func(w *world.World) error {
		for _, env := range inbox {
			s, ok := sessions[env.session]
			if !ok {
				continue
			}
			g.apply(w, s, env.cmd)
		}
		for _, id := range leaving {
			g.disconnect(w, sessions[id])
		}
		g.advanceQueues(w, delta)
		return nil
	})

	if len(leaving) > 0 {
		g.mu.Lock()
		for _, id := range leaving {
			delete(g.sessions, id)
		}
		g.mu.Unlock()
	}
	return err
}

// recovered runs fn and turns a panic into an error wrapping ErrPanicked.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn()
}

func (g *Gateway) apply(w *world.World, s Session, cmd Command) {
	if err := recovered(func() error { return cmd.Apply(w, s) }); err != nil {
		g.failed.Add(1)
		g.logger.Warn("command failed",
			log.String("session", s.ID.String()),
			log.String("command", cmd.Name()),
			log.Error(err),
		)
		g.publish(bus.CommandFailed{Session: s.ID, Command: cmd.Name(), Err: err})
		return
	}
	g.applied.Add(1)
}

func (g *Gateway) publish(ev bus.Event) {
	if err := g.events.Publish(ev); err != nil {
		g.logger.Warn("event handler failed", log.String("event", ev.Type()), log.Error(err))
	}
}

func (g *Gateway) disconnect(w *world.World, s Session) {
	if g.OnDisconnect != nil {
		if err := recovered(func() error { return g.OnDisconnect(w, s) }); err != nil {
			g.logger.Warn("disconnect hook failed", log.String("session", s.ID.String()), log.Error(err))
		}
	}
	g.logger.Info("session disconnected", log.String("session", s.ID.String()))
	g.publish(bus.SessionDisconnected{Session: s.ID, Entity: s.Entity})
}

// advanceQueues fires due actions in entity order.
func (g *Gateway) advanceQueues(w *world.World, delta time.Duration) {
	ids := w.Query(components.KindActionQueue).Collect()
	slices.Sort(ids)
	for _, id := range ids {
		q, ok := world.Get[*components.ActionQueue](w, id)
		if !ok {
			continue
		}
		for _, a := range q.Advance(delta) {
			err := recovered(func() error { return a.Run(w, id) })
			if err != nil {
				g.logger.Warn("action failed",
					log.Uint64("entity", uint64(id)),
					log.String("action", a.Name()),
					log.Error(err),
				)
			}
			g.publish(bus.ActionFired{Entity: id, Action: a.Name(), Err: err})
		}
	}
}
