package injector

import (
	"context"
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/volundmush/moonsilver/internal/config"
	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/engine"
	"github.com/volundmush/moonsilver/internal/core/events/bus"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/observability/metrics"
	"github.com/volundmush/moonsilver/internal/core/session"
	"github.com/volundmush/moonsilver/internal/core/storage"
	"github.com/volundmush/moonsilver/internal/core/systems"
	"github.com/volundmush/moonsilver/internal/core/world"
	"github.com/volundmush/moonsilver/internal/loader"
	"github.com/volundmush/moonsilver/internal/server"
)

// ConfigPath is the YAML configuration file; empty falls back to the environment.
type ConfigPath string

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideWorld,
	ProvideCollector,
	ProvideMetricsHandler,
	ProvideSink,
	ProvideWriter,
	ProvideEvents,
	ProvideGateway,
	ProvideRegistry,
	ProvideEngine,
	server.New,
)

func ProvideConfig(path ConfigPath) (*config.Config, error) {
	return config.Load(string(path))
}

func ProvideLogger(cfg *config.Config) log.Log {
	level, _ := log.ParseLevel(cfg.Log.Level)
	return log.New(level, log.Options{Encoding: cfg.Log.Encoding})
}

func ProvideWorld() (*world.World, error) {
	w := world.New()
	if err := components.Register(w); err != nil {
		return nil, err
	}
	return w, nil
}

func ProvideCollector(cfg *config.Config, logger log.Log) *metrics.Collector {
	return metrics.New(prometheus.DefaultRegisterer, cfg.Engine.UpdateInterval, logger)
}

func ProvideMetricsHandler() http.Handler {
	return metrics.Handler(nil)
}

// ProvideSink opens the configured backend behind a router, so records are
// dispatched by the backend named in their Meta.
func ProvideSink(ctx context.Context, cfg *config.Config, logger log.Log) (storage.Sink, func(), error) {
	sink, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	router := storage.NewRouter(sink)
	// Server.Run closes the sink; the cleanup covers runs that never happen.
	return router, func() { _ = router.Close() }, nil
}

func ProvideWriter(cfg *config.Config, sink storage.Sink, logger log.Log, c *metrics.Collector) *storage.Writer {
	return storage.NewWriter(sink, cfg.Storage.QueueSize, logger, c)
}

func ProvideEvents(c *metrics.Collector) *bus.Bus {
	return bus.New(c)
}

func ProvideGateway(logger log.Log, events *bus.Bus) *session.Gateway {
	return session.New(logger, events)
}

// ProvideRegistry lists every processor the server can build by name.
func ProvideRegistry(writer *storage.Writer) (*systems.Registry, error) {
	r := systems.NewRegistry()
	if err := r.Register(storage.ProcessorName, storage.Factory(writer)); err != nil {
		return nil, err
	}
	return r, nil
}

// ProvideEngine loads the static world marked for the configured backend and
// then restores whatever that backend already holds for it.
func ProvideEngine(ctx context.Context, cfg *config.Config, w *world.World, gw *session.Gateway, reg *systems.Registry, c *metrics.Collector, sink storage.Sink, logger log.Log) (*engine.Engine, error) {
	procs, err := reg.Build(cfg.Processors)
	if err != nil {
		return nil, err
	}
	return engine.New(w, engine.Options{
		Interval:   cfg.Engine.UpdateInterval,
		Gateway:    gw,
		Scheduler:  systems.NewScheduler(logger, c),
		Processors: procs,
		Loaders: engine.Loaders{
			StaticWorld:    loader.StaticWorld(cfg.World.StaticPath, cfg.StorageBackend()),
			DatabaseAssets: storage.Ready(sink),
			DatabaseWorld:  storage.DatabaseWorld(ctx, sink, logger),
		},
		Logger:    logger,
		Observers: []engine.Observer{c},
	}), nil
}
