package world

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/pkg/sequence"
)

// Hooks attach kind-specific behaviour to a storage.
//
// Validate runs before a component is stored and may reject it; it must not
// mutate anything. OnAttach and OnDetach maintain derived indexes on other
// components and must not fail.
type Hooks struct {
	Validate func(w *World, id models.EntityID, c models.Component) error
	OnAttach func(w *World, id models.EntityID, c models.Component)
	OnDetach func(w *World, id models.EntityID, c models.Component)
}

type registration struct {
	store store
	hooks Hooks
}

// World owns every entity and component of the running game.
//
// The World returned by New never mutates: its Create, Attach and friends
// always fail with ErrNotInTickContext. Exclusive hands its callback a
// separate handle that carries mutation rights until the callback returns.
// Reads are not synchronized; callers outside the game loop must read
// through Exclusive as well.
type World struct {
	*state
	held *atomic.Bool
}

type state struct {
	mu sync.Mutex

	nextID   models.EntityID
	entities map[models.EntityID]struct{}

	kinds map[models.Kind]*registration
	order []models.Kind
}

func New() *World {
	return &World{state: &state{
		entities: make(map[models.EntityID]struct{}, 256),
		kinds:    make(map[models.Kind]*registration),
	}}
}

// Register adds typed storage for T. The kind is taken from T's Kind method,
// which must not dereference its receiver.
func Register[T models.Component](w *World, hooks Hooks) error {
	var zero T
	k := zero.Kind()
	if _, ok := w.kinds[k]; ok {
		return fmt.Errorf("%w: %s", ErrKindRegistered, k)
	}
	w.kinds[k] = &registration{store: newStorage[T](k), hooks: hooks}
	w.order = append(w.order, k)
	return nil
}

// StorageOf returns the typed storage for T, or nil if T was never registered.
func StorageOf[T models.Component](w *World) *Storage[T] {
	var zero T
	r, ok := w.kinds[zero.Kind()]
	if !ok {
		return nil
	}
	s, _ := r.store.(*Storage[T])
	return s
}

// Get returns the component of type T attached to id.
func Get[T models.Component](w *World, id models.EntityID) (T, bool) {
	if s := StorageOf[T](w); s != nil {
		return s.Get(id)
	}
	var zero T
	return zero, false
}

// Exclusive runs fn with a handle that may mutate the world. Calls are
// serialized and must not be nested. The handle loses its rights when fn
// returns, so it must not be retained.
func (w *World) Exclusive(fn func(w *World) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx := &World{state: w.state, held: new(atomic.Bool)}
	tx.held.Store(true)
	defer tx.held.Store(false)
	return fn(tx)
}

// InContext reports whether w is a handle inside its Exclusive call.
func (w *World) InContext() bool { return w.held != nil && w.held.Load() }

func (w *World) guard() error {
	if !w.InContext() {
		return ErrNotInTickContext
	}
	return nil
}

// Create allocates a fresh entity. Identifiers are never reused.
func (w *World) Create() (models.EntityID, error) {
	if err := w.guard(); err != nil {
		return models.None, err
	}
	w.nextID++
	id := w.nextID
	w.entities[id] = struct{}{}
	return id, nil
}

// Destroy detaches every component of id, newest kind first, and forgets the entity.
func (w *World) Destroy(id models.EntityID) error {
	if err := w.guard(); err != nil {
		return err
	}
	if !w.Exists(id) {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	for i := len(w.order) - 1; i >= 0; i-- {
		r := w.kinds[w.order[i]]
		if c, ok := r.store.lookup(id); ok {
			w.detach(r, id, c)
		}
	}
	delete(w.entities, id)
	return nil
}

func (w *World) Exists(id models.EntityID) bool {
	_, ok := w.entities[id]
	return ok
}

// Attach stores c on id. It fails with ErrDuplicateComponent if id already
// holds a component of the same kind, or with an *InvariantViolation if the
// kind's validator rejects it. On failure the world is unchanged.
func (w *World) Attach(id models.EntityID, c models.Component) error {
	if err := w.guard(); err != nil {
		return err
	}
	r, err := w.prepare(id, c)
	if err != nil {
		return err
	}
	if r.store.has(id) {
		return fmt.Errorf("%w: %s on %d", ErrDuplicateComponent, c.Kind(), id)
	}
	if r.hooks.Validate != nil {
		if err := r.hooks.Validate(w, id, c); err != nil {
			return err
		}
	}
	w.attach(r, id, c)
	return nil
}

// Detach removes the component of kind k from id.
func (w *World) Detach(id models.EntityID, k models.Kind) error {
	if err := w.guard(); err != nil {
		return err
	}
	r, ok := w.kinds[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	c, ok := r.store.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s on %d", ErrComponentNotFound, k, id)
	}
	w.detach(r, id, c)
	return nil
}

// Replace detaches the component of kind old and attaches c as one step. If c
// is rejected the old component is restored and the error returned.
func (w *World) Replace(id models.EntityID, old models.Kind, c models.Component) error {
	if err := w.guard(); err != nil {
		return err
	}
	nr, err := w.prepare(id, c)
	if err != nil {
		return err
	}
	or, ok := w.kinds[old]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, old)
	}
	prev, ok := or.store.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s on %d", ErrComponentNotFound, old, id)
	}
	if old != c.Kind() && nr.store.has(id) {
		return fmt.Errorf("%w: %s on %d", ErrDuplicateComponent, c.Kind(), id)
	}

	w.detach(or, id, prev)
	if nr.hooks.Validate != nil {
		if err := nr.hooks.Validate(w, id, c); err != nil {
			w.restore(or, id, prev)
			return err
		}
	}
	w.attach(nr, id, c)
	return nil
}

func (w *World) prepare(id models.EntityID, c models.Component) (*registration, error) {
	if !w.Exists(id) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchEntity, id)
	}
	r, ok := w.kinds[c.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind())
	}
	if !r.store.accepts(c) {
		return nil, fmt.Errorf("%w: %T for %s", ErrKindMismatch, c, c.Kind())
	}
	return r, nil
}

func (w *World) attach(r *registration, id models.EntityID, c models.Component) {
	r.store.put(id, c)
	c.MarkDirty()
	if r.hooks.OnAttach != nil {
		r.hooks.OnAttach(w, id, c)
	}
}

// restore puts back a component detached by a failed mutation without
// touching its dirty marker.
func (w *World) restore(r *registration, id models.EntityID, c models.Component) {
	r.store.put(id, c)
	if r.hooks.OnAttach != nil {
		r.hooks.OnAttach(w, id, c)
	}
}

func (w *World) detach(r *registration, id models.EntityID, c models.Component) {
	if r.hooks.OnDetach != nil {
		r.hooks.OnDetach(w, id, c)
	}
	r.store.remove(id)
}

// Component returns the component of kind k on id without type information.
func (w *World) Component(id models.EntityID, k models.Kind) (models.Component, bool) {
	r, ok := w.kinds[k]
	if !ok {
		return nil, false
	}
	return r.store.lookup(id)
}

func (w *World) Has(id models.EntityID, k models.Kind) bool {
	r, ok := w.kinds[k]
	return ok && r.store.has(id)
}

// Kinds lists the kinds attached to id in registration order.
func (w *World) Kinds(id models.EntityID) []models.Kind {
	var out []models.Kind
	for _, k := range w.order {
		if w.kinds[k].store.has(id) {
			out = append(out, k)
		}
	}
	return out
}

// Registered lists every registered kind in registration order.
func (w *World) Registered() []models.Kind {
	return slices.Clone(w.order)
}

func (w *World) Count(k models.Kind) int {
	r, ok := w.kinds[k]
	if !ok {
		return 0
	}
	return r.store.size()
}

// Entities returns the number of live entities.
func (w *World) Entities() int { return len(w.entities) }

// Query lazily yields the entities holding every listed kind, in unspecified
// order. With no kinds it yields every live entity. Components attached while
// the sequence is consumed may or may not be observed.
func (w *World) Query(kinds ...models.Kind) *sequence.Iterator[models.EntityID] {
	if len(kinds) == 0 {
		return sequence.FromSeq(func(yield func(models.EntityID) bool) {
			for id := range w.entities {
				if !yield(id) {
					return
				}
			}
		})
	}

	stores := make([]store, 0, len(kinds))
	for _, k := range kinds {
		r, ok := w.kinds[k]
		if !ok {
			return sequence.From[models.EntityID](nil)
		}
		stores = append(stores, r.store)
	}
	// Drive iteration from the smallest storage.
	slices.SortFunc(stores, func(a, b store) int { return a.size() - b.size() })

	return sequence.FromSeq(func(yield func(models.EntityID) bool) {
	next:
		for id := range stores[0].ids() {
			for _, s := range stores[1:] {
				if !s.has(id) {
					continue next
				}
			}
			if !yield(id) {
				return
			}
		}
	})
}
