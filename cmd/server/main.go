package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration (default $MOONSILVER_CONFIG)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, cleanup, err := injector.InitializeServer(ctx, injector.ConfigPath(*configPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing server:", err)
		os.Exit(1)
	}
	defer cleanup()

	logger := log.Provide()
	defer func() { _ = logger.Sync() }()

	// The first signal stops the loop after its current iteration.
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", log.Error(err))
		_ = logger.Sync()
		cleanup()
		os.Exit(1)
	}
}
