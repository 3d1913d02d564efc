package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/engine"
	"github.com/volundmush/moonsilver/internal/core/events/bus"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

type fixture struct {
	w          *world.World
	e          *engine.Engine
	hall, yard models.EntityID
	door       models.EntityID
	hero       models.EntityID
	gw         *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{w: components.NewWorld(), gw: New(nil, nil)}
	f.e = engine.New(f.w, engine.Options{Interval: time.Millisecond})
	require.NoError(t, f.e.Do(func(w *world.World) error {
		s, _ := w.Create()
		require.NoError(t, w.Attach(s, components.NewStructure(models.None)))
		f.hall, _ = w.Create()
		require.NoError(t, w.Attach(f.hall, components.NewRoom(s, "hall")))
		f.yard, _ = w.Create()
		require.NoError(t, w.Attach(f.yard, components.NewRoom(s, "yard")))

		f.door, _ = w.Create()
		require.NoError(t, w.Attach(f.door, components.NewGateway(s)))
		north, _ := w.Create()
		exit := components.NewExit(f.hall, "north", f.yard)
		exit.Gateway = f.door
		require.NoError(t, w.Attach(north, exit))

		f.hero, _ = w.Create()
		require.NoError(t, w.Attach(f.hero, components.NewObject("hero")))
		return components.PlaceInRoom(w, f.hero, f.hall)
	}))
	return f
}

func (f *fixture) update(t *testing.T, delta time.Duration) {
	t.Helper()
	require.NoError(t, f.gw.Update(context.Background(), f.e, delta))
}

func (f *fixture) room(t *testing.T) models.EntityID {
	t.Helper()
	loc, ok := world.Get[*components.RoomLocation](f.w, f.hero)
	require.True(t, ok)
	return loc.Room
}

func TestCommandsApplyInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	id := f.gw.Connect(f.hero)
	var order []string
	for _, name := range []string{"look", "north", "look"} {
		require.NoError(t, f.gw.Enqueue(id, CommandFunc{ID: name, Fn: func(w *world.World, s Session) error {
			order = append(order, name)
			assert.True(t, w.InContext())
			assert.Equal(t, f.hero, s.Entity)
			return nil
		}}))
	}
	f.update(t, 0)
	assert.Equal(t, []string{"look", "north", "look"}, order)

	f.update(t, 0)
	assert.Len(t, order, 3, "inbox is drained once")
}

func TestMoveThroughExit(t *testing.T) {
	f := newFixture(t)
	id := f.gw.Connect(f.hero)

	require.NoError(t, f.gw.Enqueue(id, Move{Direction: "south"}))
	require.NoError(t, f.gw.Enqueue(id, Move{Direction: "north"}))
	f.update(t, 0)

	assert.Equal(t, f.yard, f.room(t))
	applied, failed := f.gw.Processed()
	assert.Equal(t, uint64(1), applied)
	assert.Equal(t, uint64(1), failed)
}

func TestLockedGatewayBlocksMove(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.e.Do(func(w *world.World) error {
		g, _ := world.Get[*components.Gateway](w, f.door)
		return g.SetState(f.door, components.GatewayLocked)
	}))
	require.NoError(t, f.e.Do(func(w *world.World) error {
		err := Move{Direction: "north"}.Apply(w, Session{Entity: f.hero})
		assert.ErrorIs(t, err, ErrExitBlocked)
		return nil
	}))
	assert.Equal(t, f.hall, f.room(t))
}

func TestFailingCommandDoesNotAbortUpdate(t *testing.T) {
	f := newFixture(t)
	id := f.gw.Connect(f.hero)
	ran := false
	require.NoError(t, f.gw.Enqueue(id, CommandFunc{ID: "bad", Fn: func(*world.World, Session) error { return errors.New("typo") }}))
	require.NoError(t, f.gw.Enqueue(id, CommandFunc{ID: "good", Fn: func(*world.World, Session) error { ran = true; return nil }}))
	f.update(t, 0)
	assert.True(t, ran)
}

func TestPanickingCommandIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.gw.events = bus.New()
	var failures []bus.CommandFailed
	f.gw.events.Subscribe(bus.TypeCommandFailed, func(ev bus.Event) error {
		failures = append(failures, ev.(bus.CommandFailed))
		return nil
	})
	id := f.gw.Connect(f.hero)
	require.NoError(t, f.gw.Enqueue(id, CommandFunc{ID: "crash", Fn: func(*world.World, Session) error { panic("bad input") }}))
	require.NoError(t, f.gw.Enqueue(id, Move{Direction: "north"}))

	require.NotPanics(t, func() { f.update(t, 0) })
	assert.Equal(t, f.yard, f.room(t))
	applied, failed := f.gw.Processed()
	assert.Equal(t, uint64(1), applied)
	assert.Equal(t, uint64(1), failed)
	require.Len(t, failures, 1)
	assert.Equal(t, "crash", failures[0].Command)
	assert.ErrorIs(t, failures[0].Err, ErrPanicked)
	assert.Contains(t, failures[0].Err.Error(), "bad input")

	// The world is still usable afterwards.
	require.NoError(t, f.e.Do(func(w *world.World) error {
		_, err := w.Create()
		return err
	}))
}

type crashAction struct{}

func (crashAction) Name() string         { return "crash" }
func (crashAction) Delay() time.Duration { return 0 }

func (crashAction) Run(*world.World, models.EntityID) error { panic("fizzle") }

func TestPanickingActionIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.gw.events = bus.New()
	var fired []bus.ActionFired
	f.gw.events.Subscribe(bus.TypeActionFired, func(ev bus.Event) error {
		fired = append(fired, ev.(bus.ActionFired))
		return nil
	})
	id := f.gw.Connect(f.hero)
	var ran []string
	require.NoError(t, f.gw.Enqueue(id, Queue{Action: crashAction{}}))
	require.NoError(t, f.gw.Enqueue(id, Queue{Action: stepAction{"bow", 0, &ran}}))

	require.NotPanics(t, func() { f.update(t, 0) })
	assert.Equal(t, []string{"bow"}, ran)
	require.Len(t, fired, 2)
	assert.ErrorIs(t, fired[0].Err, ErrPanicked)
	assert.NoError(t, fired[1].Err)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	events := bus.New()
	f.gw.events = events
	var published []bus.SessionDisconnected
	events.Subscribe(bus.TypeSessionDisconnected, func(ev bus.Event) error {
		published = append(published, ev.(bus.SessionDisconnected))
		return nil
	})
	var left []uuid.UUID
	f.gw.OnDisconnect = func(w *world.World, s Session) error {
		left = append(left, s.ID)
		return w.Destroy(s.Entity)
	}
	id := f.gw.Connect(f.hero)
	ran := false
	require.NoError(t, f.gw.Enqueue(id, CommandFunc{ID: "last", Fn: func(*world.World, Session) error { ran = true; return nil }}))
	require.NoError(t, f.gw.Disconnect(id))
	require.NoError(t, f.gw.Disconnect(id))

	_, ok := f.gw.Session(id)
	assert.True(t, ok, "session stays until the next update")
	f.update(t, 0)

	assert.True(t, ran)
	assert.Equal(t, []uuid.UUID{id}, left)
	require.Len(t, published, 1)
	assert.Equal(t, f.hero, published[0].Entity)
	assert.False(t, f.w.Exists(f.hero))
	assert.Equal(t, 0, f.gw.Len())
	assert.ErrorIs(t, f.gw.Enqueue(id, Move{}), ErrSessionNotFound)
	assert.ErrorIs(t, f.gw.Disconnect(id), ErrSessionNotFound)
	assert.ErrorIs(t, f.gw.Enqueue(uuid.New(), Move{}), ErrSessionNotFound)
}

type stepAction struct {
	name  string
	delay time.Duration
	log   *[]string
}

func (a stepAction) Name() string         { return a.name }
func (a stepAction) Delay() time.Duration { return a.delay }

func (a stepAction) Run(w *world.World, actor models.EntityID) error {
	*a.log = append(*a.log, a.name)
	return nil
}

func TestUpdateCountsDownActionQueues(t *testing.T) {
	f := newFixture(t)
	f.gw.events = bus.New()
	var announced []string
	f.gw.events.Subscribe(bus.TypeActionFired, func(ev bus.Event) error {
		announced = append(announced, ev.(bus.ActionFired).Action)
		return nil
	})
	id := f.gw.Connect(f.hero)
	var fired []string
	require.NoError(t, f.gw.Enqueue(id, Queue{Action: stepAction{"cast", 250 * time.Millisecond, &fired}}))
	require.NoError(t, f.gw.Enqueue(id, Queue{Action: stepAction{"bow", 0, &fired}}))
	f.update(t, 0)

	q, ok := world.Get[*components.ActionQueue](f.w, f.hero)
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, q.Remaining)

	f.update(t, 100*time.Millisecond)
	f.update(t, 100*time.Millisecond)
	assert.Empty(t, fired)
	assert.Equal(t, 50*time.Millisecond, q.Remaining)

	f.update(t, 100*time.Millisecond)
	assert.Equal(t, []string{"cast", "bow"}, fired)
	assert.Equal(t, fired, announced)
	assert.Empty(t, q.Queue)
}

func TestUpdateHonorsCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.gw.Update(ctx, f.e, 0), context.Canceled)
}

func TestConcurrentEnqueue(t *testing.T) {
	f := newFixture(t)
	id := f.gw.Connect(f.hero)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = f.gw.Enqueue(id, CommandFunc{ID: "noop", Fn: func(*world.World, Session) error { return nil }})
			}
		}()
	}
	wg.Wait()
	f.update(t, 0)
	applied, _ := f.gw.Processed()
	assert.Equal(t, uint64(200), applied)
}
