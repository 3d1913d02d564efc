package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/volundmush/moonsilver/internal/config"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
)

// Sink stores records for one backend.
type Sink interface {
	Backend() models.Backend
	Write(ctx context.Context, recs []Record) error
	// Read returns the stored export of (key, kind) or ErrNotFound.
	Read(ctx context.Context, key string, kind models.Kind) (models.Export, error)
	Close() error
}

// Open connects the sink selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig, logger log.Log) (Sink, error) {
	b, ok := models.ParseBackend(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	switch b {
	case models.BackendNone:
		return Discard{}, nil
	case models.BackendMemory:
		return NewMemory(), nil
	case models.BackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case models.BackendBadger:
		return OpenBadger(cfg.Path, logger)
	case models.BackendRedis:
		return OpenRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, b)
}

// Router dispatches each record to the sink of its backend.
type Router struct {
	sinks map[models.Backend]Sink

	closeOnce sync.Once
	closeErr  error
}

func NewRouter(sinks ...Sink) *Router {
	r := &Router{sinks: make(map[models.Backend]Sink, len(sinks))}
	for _, s := range sinks {
		r.sinks[s.Backend()] = s
	}
	return r
}

func (r *Router) Backend() models.Backend { return models.BackendNone }

func (r *Router) Write(ctx context.Context, recs []Record) error {
	groups := make(map[models.Backend][]Record)
	for _, rec := range recs {
		groups[rec.Backend] = append(groups[rec.Backend], rec)
	}
	for b, group := range groups {
		s, ok := r.sinks[b]
		if !ok {
			return fmt.Errorf("%w: %s (%d records)", ErrNoSink, b, len(group))
		}
		if err := s.Write(ctx, group); err != nil {
			return fmt.Errorf("write %s: %w", b, err)
		}
	}
	return nil
}

// Read looks the record up in every sink. A failing sink is reported only
// when no other sink has the record.
func (r *Router) Read(ctx context.Context, key string, kind models.Kind) (models.Export, error) {
	failure := ErrNotFound
	for _, s := range r.sinks {
		exp, err := s.Read(ctx, key, kind)
		switch {
		case err == nil:
			return exp, nil
		case !errors.Is(err, ErrNotFound):
			failure = fmt.Errorf("%s: %w", s.Backend(), err)
		}
	}
	return nil, failure
}

// Close closes every sink once; later calls return the first result.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		for _, s := range r.sinks {
			if err := s.Close(); err != nil && r.closeErr == nil {
				r.closeErr = err
			}
		}
	})
	return r.closeErr
}

// Discard drops every record.
type Discard struct{}

func (Discard) Backend() models.Backend               { return models.BackendNone }
func (Discard) Write(context.Context, []Record) error { return nil }
func (Discard) Close() error                          { return nil }

func (Discard) Read(context.Context, string, models.Kind) (models.Export, error) {
	return nil, ErrNotFound
}

// Memory keeps the latest export per (key, kind) in process.
type Memory struct {
	mu   sync.RWMutex
	data map[string]models.Export
	n    int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]models.Export)}
}

func (m *Memory) Backend() models.Backend { return models.BackendMemory }

func (m *Memory) Write(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		m.data[recordKey(rec.Key, rec.Kind)] = maps.Clone(rec.Export)
	}
	m.n += len(recs)
	return nil
}

func (m *Memory) Read(_ context.Context, key string, kind models.Kind) (models.Export, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.data[recordKey(key, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(exp), nil
}

// Writes returns the number of records written so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

func (m *Memory) Close() error { return nil }

func recordKey(key string, kind models.Kind) string {
	return key + "/" + string(kind)
}
