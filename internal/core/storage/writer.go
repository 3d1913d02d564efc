package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
)

// FlushObserver is notified about writer activity.
type FlushObserver interface {
	// OnFlush reports one batch written to the sink, or failed.
	OnFlush(records int, err error)
	// OnDeferred reports a batch left dirty because the queue was full.
	OnDeferred()
}

type job struct {
	recs []Record
	// comps are the components the records were exported from, if known.
	comps []models.Component
}

// Writer owns the goroutine that writes batches to a sink. Enqueue never blocks
// the tick. Components of batches the sink rejected are kept until Reclaim.
type Writer struct {
	sink      Sink
	logger    log.Log
	observers []FlushObserver

	mu     sync.Mutex
	queue  chan job
	closed bool
	group  *errgroup.Group
	failed []models.Component
}

func NewWriter(sink Sink, size int, logger log.Log, observers ...FlushObserver) *Writer {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Writer{
		sink:      sink,
		logger:    logger.With(log.String("component", "storage_writer")),
		observers: observers,
		queue:     make(chan job, size),
	}
}

// Start launches the write loop. Batches still queued when ctx is cancelled
// are written with a fresh context before the loop exits.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group != nil {
		return
	}
	w.group = &errgroup.Group{}
	w.group.Go(func() error {
		for {
			select {
			case j, ok := <-w.queue:
				if !ok {
					return nil
				}
				w.write(ctx, j)
			case <-ctx.Done():
				w.drain()
				return nil
			}
		}
	})
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case j, ok := <-w.queue:
			if !ok {
				return
			}
			w.write(ctx, j)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, j job) {
	err := w.sink.Write(ctx, j.recs)
	if err != nil {
		w.logger.Error("flush failed", log.Int("records", len(j.recs)), log.Error(err))
		w.mu.Lock()
		w.failed = append(w.failed, j.comps...)
		w.mu.Unlock()
	}
	for _, o := range w.observers {
		o.OnFlush(len(j.recs), err)
	}
}

// Enqueue hands batch to the write loop. It reports false when the queue is
// full or the writer is closed; the caller keeps the batch dirty.
func (w *Writer) Enqueue(batch []Record) bool {
	return w.enqueue(job{recs: batch})
}

func (w *Writer) enqueuePending(ps []pending) bool {
	j := job{recs: make([]Record, len(ps)), comps: make([]models.Component, len(ps))}
	for i, p := range ps {
		j.recs[i] = p.Record
		j.comps[i] = p.c
	}
	return w.enqueue(j)
}

func (w *Writer) enqueue(j job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- j:
		return true
	default:
		for _, o := range w.observers {
			o.OnDeferred()
		}
		return false
	}
}

// Reclaim marks the components of failed batches dirty again so the next
// collection picks them up, and returns how many it marked. It must run
// inside the world's exclusive context.
func (w *Writer) Reclaim() int {
	w.mu.Lock()
	failed := w.failed
	w.failed = nil
	w.mu.Unlock()

	for _, c := range failed {
		c.MarkDirty()
	}
	return len(failed)
}

// Close stops accepting batches and waits for queued ones to be written.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.closed = true
	close(w.queue)
	group := w.group
	w.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}
