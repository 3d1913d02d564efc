package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volundmush/moonsilver/internal/config"
	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// populate creates a persisted object, a transient object and returns the
// persisted entity.
func populate(t *testing.T, w *world.World, backend models.Backend) models.EntityID {
	t.Helper()
	var id models.EntityID
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		id, err = w.Create()
		require.NoError(t, err)
		meta := components.NewMeta("core", "sword")
		meta.DatabaseMode = backend
		meta.DatabaseKey = "obj:sword"
		require.NoError(t, w.Attach(id, meta))
		require.NoError(t, w.Attach(id, components.NewObject("a sword")))

		loose, err := w.Create()
		require.NoError(t, err)
		require.NoError(t, w.Attach(loose, components.NewMeta("core", "rock")))
		return w.Attach(loose, components.NewObject("a rock"))
	}))
	return id
}

func TestCollectOnlyDirtyPersistedComponents(t *testing.T) {
	w := components.NewWorld()
	id := populate(t, w, models.BackendMemory)

	recs := Collect(w)
	require.Len(t, recs, 2)
	assert.Equal(t, components.KindMeta, recs[0].Kind)
	assert.Equal(t, components.KindObject, recs[1].Kind)
	for _, r := range recs {
		assert.Equal(t, id, r.Entity)
		assert.Equal(t, models.BackendMemory, r.Backend)
		assert.Equal(t, "obj:sword", r.Key)
	}
	assert.Equal(t, "a sword", recs[1].Export["name"])

	obj, _ := world.Get[*components.Object](w, id)
	obj.ClearDirty()
	assert.Len(t, Collect(w), 1)
}

func TestSyncClearsDirtyMarkers(t *testing.T) {
	w := components.NewWorld()
	id := populate(t, w, models.BackendMemory)
	sink := NewMemory()

	var n int
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		n, err = Sync(context.Background(), w, sink)
		return err
	}))
	assert.Equal(t, 2, n)
	assert.Empty(t, Collect(w))

	exp, err := sink.Read(context.Background(), "obj:sword", components.KindObject)
	require.NoError(t, err)
	assert.Equal(t, "a sword", exp["name"])
	_, err = sink.Read(context.Background(), "obj:rock", components.KindObject)
	assert.ErrorIs(t, err, ErrNotFound)

	obj, _ := world.Get[*components.Object](w, id)
	obj.Name = "a blunt sword"
	obj.MarkDirty()
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		n, err = Sync(context.Background(), w, sink)
		return err
	}))
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, sink.Writes())
}

type failingSink struct{ Memory }

func (*failingSink) Write(context.Context, []Record) error { return errors.New("disk full") }

// flakySink fails its first writes, then behaves like Memory.
type flakySink struct {
	*Memory
	mu    sync.Mutex
	fails int
	tries int
}

func (f *flakySink) Write(ctx context.Context, recs []Record) error {
	f.mu.Lock()
	f.tries++
	fail := f.tries <= f.fails
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Memory.Write(ctx, recs)
}

func (f *flakySink) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tries
}

func TestSyncKeepsDirtyOnFailure(t *testing.T) {
	w := components.NewWorld()
	populate(t, w, models.BackendMemory)
	_, err := Sync(context.Background(), w, &failingSink{})
	assert.Error(t, err)
	assert.Len(t, Collect(w), 2)
}

func TestRouterDispatchesByBackend(t *testing.T) {
	mem := NewMemory()
	r := NewRouter(mem)
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, []Record{{Kind: "object", Backend: models.BackendMemory, Key: "k", Export: models.Export{"a": 1}}}))
	assert.Equal(t, 1, mem.Writes())

	err := r.Write(ctx, []Record{{Kind: "object", Backend: models.BackendRedis, Key: "k"}})
	assert.ErrorIs(t, err, ErrNoSink)

	exp, err := r.Read(ctx, "k", "object")
	require.NoError(t, err)
	assert.Equal(t, 1, exp["a"])
	require.NoError(t, r.Close())
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StorageConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BackendMemory, s.Backend())

	s, err = Open(ctx, config.StorageConfig{Backend: ""}, nil)
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)

	s, err = Open(ctx, config.StorageConfig{Backend: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BackendSQLite, s.Backend())
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StorageConfig{Backend: "tape"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func testSinkRoundTrip(t *testing.T, sink Sink) {
	t.Helper()
	ctx := context.Background()
	recs := []Record{
		{Entity: 7, Kind: components.KindObject, Backend: sink.Backend(), Key: "obj:7", Export: models.Export{"name": "lamp", "key_words": []string{"brass", "lamp"}}},
		{Entity: 7, Kind: components.KindMeta, Backend: sink.Backend(), Key: "obj:7", Export: models.Export{"bundle": "core"}},
	}
	require.NoError(t, sink.Write(ctx, recs))

	exp, err := sink.Read(ctx, "obj:7", components.KindObject)
	require.NoError(t, err)
	assert.Equal(t, "lamp", exp["name"])
	assert.Equal(t, []any{"brass", "lamp"}, exp["key_words"])

	recs[0].Export = models.Export{"name": "lit lamp"}
	require.NoError(t, sink.Write(ctx, recs[:1]))
	exp, err = sink.Read(ctx, "obj:7", components.KindObject)
	require.NoError(t, err)
	assert.Equal(t, "lit lamp", exp["name"])

	_, err = sink.Read(ctx, "obj:8", components.KindObject)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteSink(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()

	testSinkRoundTrip(t, s)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteSinkOnDisk(t *testing.T) {
	path := t.TempDir() + "/world/components.db"
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	testSinkRoundTrip(t, s)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	exp, err := s.Read(context.Background(), "obj:7", components.KindMeta)
	require.NoError(t, err)
	assert.Equal(t, "core", exp["bundle"])
}

func TestBadgerSink(t *testing.T) {
	b, err := OpenBadger("", nil)
	require.NoError(t, err)
	defer b.Close()
	testSinkRoundTrip(t, b)
}

type flushCounter struct {
	flushed, failed, deferred int
}

func (f *flushCounter) OnFlush(n int, err error) {
	if err != nil {
		f.failed++
		return
	}
	f.flushed += n
}

func (f *flushCounter) OnDeferred() { f.deferred++ }

func TestFlushProcessorDefersWhenQueueFull(t *testing.T) {
	w := components.NewWorld()
	populate(t, w, models.BackendMemory)
	sink := NewMemory()
	obs := &flushCounter{}
	writer := NewWriter(sink, 1, nil, obs)
	require.True(t, writer.Enqueue([]Record{{Key: "filler", Backend: models.BackendMemory}}))

	proc := NewFlushProcessor(writer)
	assert.Equal(t, "persistence", proc.Name())
	require.NoError(t, w.Exclusive(func(w *world.World) error { return proc.Process(w, 0) }))
	assert.Len(t, Collect(w), 2, "dirty markers survive a full queue")
	assert.Equal(t, 1, obs.deferred)

	writer.Start(context.Background())
	require.Eventually(t, func() bool { return sink.Writes() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, w.Exclusive(func(w *world.World) error { return proc.Process(w, 0) }))
	assert.Empty(t, Collect(w))
	require.NoError(t, writer.Close())

	assert.Equal(t, 3, sink.Writes())
	assert.Equal(t, 3, obs.flushed)
	assert.ErrorIs(t, writer.Close(), ErrWriterClosed)
	assert.False(t, writer.Enqueue(nil))
}

func TestWriterReportsSinkFailure(t *testing.T) {
	obs := &flushCounter{}
	writer := NewWriter(&failingSink{}, 4, nil, obs)
	writer.Start(context.Background())
	require.True(t, writer.Enqueue([]Record{{Key: "a"}}))
	require.NoError(t, writer.Close())
	assert.Equal(t, 1, obs.failed)
	assert.Equal(t, 0, writer.Reclaim(), "plain records carry no components")
}

func TestFailedFlushIsCollectedAgain(t *testing.T) {
	w := components.NewWorld()
	populate(t, w, models.BackendMemory)
	obs := &flushCounter{}
	writer := NewWriter(&failingSink{}, 4, nil, obs)
	writer.Start(context.Background())

	proc := NewFlushProcessor(writer)
	require.NoError(t, w.Exclusive(func(w *world.World) error { return proc.Process(w, 0) }))
	assert.Empty(t, Collect(w), "markers clear once the batch is queued")
	require.NoError(t, writer.Close())
	assert.Equal(t, 1, obs.failed)

	require.NoError(t, w.Exclusive(func(w *world.World) error {
		assert.Equal(t, 2, writer.Reclaim())
		return nil
	}))
	recs := Collect(w)
	require.Len(t, recs, 2)
	assert.Equal(t, "obj:sword", recs[0].Key)

	// A final synchronous flush now writes what the writer lost.
	sink := NewMemory()
	var n int
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		n, err = Sync(context.Background(), w, sink)
		return err
	}))
	assert.Equal(t, 2, n)
	assert.Empty(t, Collect(w))
}

func TestFlushProcessorRetriesFailedBatch(t *testing.T) {
	w := components.NewWorld()
	populate(t, w, models.BackendMemory)
	sink := &flakySink{Memory: NewMemory(), fails: 1}
	writer := NewWriter(sink, 4, nil)
	writer.Start(context.Background())
	proc := NewFlushProcessor(writer)

	require.Eventually(t, func() bool {
		assert.NoError(t, w.Exclusive(func(w *world.World) error { return proc.Process(w, 0) }))
		return sink.Writes() == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, writer.Close())

	assert.Equal(t, 2, sink.Writes())
	assert.GreaterOrEqual(t, sink.attempts(), 2)
	assert.Empty(t, Collect(w))
}

func TestDigestTracksExports(t *testing.T) {
	a := components.NewWorld()
	b := components.NewWorld()
	populate(t, a, models.BackendMemory)
	id := populate(t, b, models.BackendMemory)

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	obj, _ := world.Get[*components.Object](b, id)
	obj.Name = "a different sword"
	db, err = Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	// Dirty markers are not part of the exported state.
	obj.Name = "a sword"
	obj.ClearDirty()
	db, err = Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestRedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := OpenRedis(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer r.Close()

	testSinkRoundTrip(t, r)
	fields, err := mr.HKeys("test:obj:7")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{string(components.KindObject), string(components.KindMeta)}, fields)
}

func TestOpenRedisFailsWithoutServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	_, err = OpenRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}

type unreadableSink struct{ Memory }

func (*unreadableSink) Read(context.Context, string, models.Kind) (models.Export, error) {
	return nil, errors.New("connection refused")
}

func TestRestoreAppliesStoredExports(t *testing.T) {
	ctx := context.Background()
	sink := NewMemory()
	require.NoError(t, sink.Write(ctx, []Record{{
		Kind: components.KindObject, Key: "obj:sword",
		Export: models.Export{"name": "a notched sword", "key_words": []any{"sword", "notched"}},
	}}))

	w := components.NewWorld()
	id := populate(t, w, models.BackendMemory)
	var n int
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		n, err = Restore(ctx, w, sink)
		return err
	}))
	assert.Equal(t, 1, n)

	obj, _ := world.Get[*components.Object](w, id)
	assert.Equal(t, "a notched sword", obj.Name)
	assert.Equal(t, []string{"notched", "sword"}, obj.KeyWords.Sorted())

	for rock := range w.Query(components.KindObject).Seq() {
		if rock != id {
			o, _ := world.Get[*components.Object](w, rock)
			assert.Equal(t, "a rock", o.Name)
		}
	}
}

func TestRestoreRejectsMalformedRecord(t *testing.T) {
	ctx := context.Background()
	sink := NewMemory()
	require.NoError(t, sink.Write(ctx, []Record{{Kind: components.KindObject, Key: "obj:sword", Export: models.Export{"name": 3}}}))

	w := components.NewWorld()
	populate(t, w, models.BackendMemory)
	hook := DatabaseWorld(ctx, sink, log.Nop())
	err := w.Exclusive(hook)
	assert.ErrorIs(t, err, models.ErrMalformedExport)

	err = w.Exclusive(DatabaseWorld(ctx, &unreadableSink{}, log.Nop()))
	assert.ErrorContains(t, err, "connection refused")
}

func TestReadyReportsUnreadableSink(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Ready(NewMemory())(ctx))
	assert.Error(t, Ready(&unreadableSink{})(ctx))
}

func TestRouterReadReportsFailingSink(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Write(ctx, []Record{{Kind: "object", Key: "k", Export: models.Export{"a": 1}}}))

	_, err := NewRouter(&unreadableSink{}).Read(ctx, "k", "object")
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = NewRouter(mem).Read(ctx, "missing", "object")
	assert.ErrorIs(t, err, ErrNotFound)
}
