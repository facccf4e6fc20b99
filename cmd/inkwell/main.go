package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"inkwell/internal/api"
	"inkwell/internal/config"
	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/settings"
	"inkwell/internal/version"
	"inkwell/internal/watcher"
	"inkwell/internal/workspace"
)

const (
	httpShutdownTimeout   = 5 * time.Second
	httpReadHeaderTimeout = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if cfg.ShowVersion {
		fmt.Fprintln(os.Stdout, version.Get().String())
		return 0
	}

	logger := logging.NewLogger(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel)
	defer logger.Close()
	logStartup(logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopWatching := watchShutdownSignals(logger, cancel, signals)
	defer stopWatching()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("inkwell stopped", map[string]string{
			"error": err.Error(),
		})
		return 1
	}
	return 0
}

// serve wires the workspace and blocks until ctx is cancelled or the HTTP
// server fails.
func serve(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := settings.Open(filepath.Join(cfg.DataDir, settings.FileName))
	if err != nil {
		logger.Warn("workspace state unreadable; starting fresh", map[string]string{
			"path":  store.Path(),
			"error": err.Error(),
		})
	}

	registry := metrics.Default
	bus := event.NewBus[workspace.ChangeEvent](ctx, event.BusOptions{
		Name:        "workspace",
		HistorySize: 16,
		Registry:    registry,
		Logger:      logger,
	})
	settle := cfg.WatchSettle
	if settle == 0 {
		settle = watcher.NoSettle
	}
	slot := watcher.NewSlot(watcher.Options{
		Logger:   logger,
		Registry: registry,
		Settle:   settle,
	})
	state, err := workspace.NewState(cfg.InternalRoot)
	if err != nil {
		return err
	}
	service, err := workspace.NewService(workspace.ServiceOptions{
		State:     state,
		Publisher: bus,
		Watchers:  slot,
		Recorder:  store,
		Logger:    logger,
		Registry:  registry,
	})
	if err != nil {
		return err
	}

	root, err := restoreRoot(service, store, cfg.Root, logger)
	if err != nil {
		_ = service.Close()
		bus.Close()
		return fmt.Errorf("initialize workspace root: %w", err)
	}
	logger.Info("workspace ready", map[string]string{
		"root": root.Path,
		"kind": string(root.Kind),
	})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.RouteOptions{
		Workspace: service,
		Events:    bus,
		Recent:    store,
		Watchers:  slot,
		Registry:  registry,
		Logger:    logger,
		AuthToken: cfg.Token,
	})

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = service.Close()
		bus.Close()
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}
	logger.Info("inkwell listening", map[string]string{
		"addr":    listener.Addr().String(),
		"version": version.Version,
	})

	shutdown := newShutdownCoordinator(logger)
	shutdown.Add("http", server.Shutdown)
	shutdown.Add("workspace", func(context.Context) error {
		return service.Close()
	})
	shutdown.Add("events", func(context.Context) error {
		bus.Close()
		return nil
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return shutdown.Run(shutdownCtx)
	})
	return group.Wait()
}

func logStartup(logger *logging.Logger, cfg config.Config) {
	info := version.Get()
	logger.Info("inkwell starting", map[string]string{
		"version":    info.Version,
		"go_version": info.GoVersion,
		"data_dir":   cfg.DataDir,
	})
	if !logger.Enabled(logging.LevelDebug) {
		return
	}
	keys := make([]string, 0, len(cfg.Sources))
	for key := range cfg.Sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		logger.Debug("config source", map[string]string{
			"key":    key,
			"source": string(cfg.Sources[key]),
		})
	}
}
