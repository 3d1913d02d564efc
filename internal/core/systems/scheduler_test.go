package systems

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volundmush/moonsilver/internal/config"
	"github.com/volundmush/moonsilver/internal/core/world"
)

type recorder struct {
	calls []string
}

func (r *recorder) proc(name string, prio Priority, fn func() error) Processor {
	return ProcessorFunc{ID: name, Order: prio, Fn: func(*world.World, time.Duration) error {
		r.calls = append(r.calls, name)
		if fn != nil {
			return fn()
		}
		return nil
	}}
}

type countingObserver struct {
	runs, errs int
}

func (o *countingObserver) OnProcessed(_ string, _ time.Duration, err error) {
	o.runs++
	if err != nil {
		o.errs++
	}
}

func TestRunTickOrdersByPriority(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		rec := &recorder{}
		s := NewScheduler(nil)
		high := rec.proc("ten", 10, nil)
		low := rec.proc("five", 5, nil)
		if reversed {
			require.NoError(t, s.Add(low, high))
		} else {
			require.NoError(t, s.Add(high, low))
		}
		s.RunTick(world.New(), 0)
		assert.Equal(t, []string{"five", "ten"}, rec.calls)
	}
}

func TestEqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(nil)
	require.NoError(t, s.Add(rec.proc("b", 1, nil), rec.proc("a", 1, nil)))
	require.NoError(t, s.Add(rec.proc("first", 0, nil), rec.proc("c", 1, nil)))

	assert.Equal(t, []string{"first", "b", "a", "c"}, s.ExecutionOrder())
	s.RunTick(world.New(), 0)
	assert.Equal(t, s.ExecutionOrder(), rec.calls)
}

func TestFailingProcessorIsIsolated(t *testing.T) {
	rec := &recorder{}
	obs := &countingObserver{}
	s := NewScheduler(nil, obs)
	boom := errors.New("boom")
	require.NoError(t, s.Add(
		rec.proc("a", 0, nil),
		rec.proc("fails", 1, func() error { return boom }),
		rec.proc("panics", 2, func() error { panic("kaboom") }),
		rec.proc("z", 3, nil),
	))

	w := world.New()
	for tick := 1; tick <= 2; tick++ {
		rec.calls = nil
		report := s.RunTick(w, time.Millisecond)
		assert.Equal(t, []string{"a", "fails", "panics", "z"}, rec.calls)
		assert.Equal(t, 4, report.Ran)
		assert.Equal(t, uint64(tick), report.Tick)
		require.Len(t, report.Failures, 2)

		assert.ErrorIs(t, report.Failures[0], boom)
		assert.ErrorIs(t, report.Failures[0], ErrProcessor)
		assert.Equal(t, "fails", report.Failures[0].Processor)
		assert.True(t, report.Failures[1].Panicked)
		assert.Contains(t, report.Failures[1].Error(), "kaboom")
	}

	m, ok := s.Metrics("fails")
	require.True(t, ok)
	assert.Equal(t, uint64(2), m.ExecutionCount)
	assert.Equal(t, uint64(2), m.ErrorCount)
	assert.ErrorIs(t, m.LastError, boom)
	assert.Equal(t, 8, obs.runs)
	assert.Equal(t, 4, obs.errs)
}

func TestDisableAndRemove(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(nil)
	require.NoError(t, s.Add(rec.proc("a", 0, nil), rec.proc("b", 1, nil)))
	assert.ErrorIs(t, s.Add(rec.proc("a", 5, nil)), ErrDuplicateProcessor)

	require.NoError(t, s.SetEnabled("a", false))
	report := s.RunTick(world.New(), 0)
	assert.Equal(t, []string{"b"}, rec.calls)
	assert.Equal(t, 1, report.Ran)

	require.NoError(t, s.Remove("b"))
	assert.Equal(t, []string{"a"}, s.ExecutionOrder())
	assert.ErrorIs(t, s.Remove("b"), ErrUnknownProcessor)
	assert.ErrorIs(t, s.SetEnabled("b", true), ErrUnknownProcessor)
}

func TestRejectedBatchRegistersNothing(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(nil)
	require.NoError(t, s.Add(rec.proc("ten", 10, nil)))

	assert.ErrorIs(t, s.Add(rec.proc("one", 1, nil), rec.proc("ten", 99, nil)), ErrDuplicateProcessor)
	assert.ErrorIs(t, s.Add(rec.proc("two", 2, nil), rec.proc("two", 3, nil)), ErrDuplicateProcessor)
	assert.Equal(t, []string{"ten"}, s.ExecutionOrder())

	require.NoError(t, s.Add(rec.proc("one", 1, nil)))
	s.RunTick(world.New(), 0)
	assert.Equal(t, []string{"one", "ten"}, rec.calls)
}

func TestProcessorAddedMidTickRunsNextTick(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(nil)
	added := false
	require.NoError(t, s.Add(rec.proc("adder", 0, func() error {
		if !added {
			added = true
			return s.Add(rec.proc("late", 1, nil))
		}
		return nil
	})))

	s.RunTick(world.New(), 0)
	assert.Equal(t, []string{"adder"}, rec.calls)
	s.RunTick(world.New(), 0)
	assert.Equal(t, []string{"adder", "adder", "late"}, rec.calls)
}

func TestRegistryBuild(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry()
	require.NoError(t, r.Register("movement", func() (Processor, error) { return rec.proc("movement", 50, nil), nil }))
	require.NoError(t, r.Register("combat", func() (Processor, error) { return rec.proc("combat", 10, nil), nil }))
	require.NoError(t, r.Register("broken", func() (Processor, error) { return nil, errors.New("nope") }))
	assert.ErrorIs(t, r.Register("combat", nil), ErrDuplicateProcessor)
	assert.Equal(t, []string{"broken", "combat", "movement"}, r.Names())

	five, off := 5, false
	procs, err := r.Build([]config.ProcessorConfig{
		{Name: "combat"},
		{Name: "movement", Priority: &five},
		{Name: "broken", Enabled: &off},
	})
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, Priority(5), procs[1].Priority())
	assert.Equal(t, "movement", procs[1].Name())

	s := NewScheduler(nil)
	require.NoError(t, s.Add(procs...))
	assert.Equal(t, []string{"movement", "combat"}, s.ExecutionOrder())

	_, err = r.Build([]config.ProcessorConfig{{Name: "missing"}})
	assert.ErrorIs(t, err, ErrUnknownProcessor)
	_, err = r.Build([]config.ProcessorConfig{{Name: "broken"}})
	assert.Error(t, err)
}
