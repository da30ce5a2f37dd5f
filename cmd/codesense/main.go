package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strob0t/CodeSense/internal/adapter/diskcache"
	csmcp "github.com/Strob0t/CodeSense/internal/adapter/mcp"
	otelAdapter "github.com/Strob0t/CodeSense/internal/adapter/otel"
	"github.com/Strob0t/CodeSense/internal/adapter/ristretto"
	"github.com/Strob0t/CodeSense/internal/adapter/tiered"
	"github.com/Strob0t/CodeSense/internal/config"
	"github.com/Strob0t/CodeSense/internal/logger"
	portcache "github.com/Strob0t/CodeSense/internal/port/cache"
	"github.com/Strob0t/CodeSense/internal/project"
	"github.com/Strob0t/CodeSense/internal/service"
)

const (
	serverName    = "codesense"
	serverVersion = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)
	log.Info("config loaded", "path", cfgPath, "log_level", cfg.Logging.Level)

	root := "."
	if flags.Root != nil {
		root = *flags.Root
	}
	provider, err := project.NewDir(root, nil)
	if err != nil {
		return fmt.Errorf("project root: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otelAdapter.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otelAdapter.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	responses, closeCache, err := buildResponseCache(cfg)
	if err != nil {
		return fmt.Errorf("response cache: %w", err)
	}
	defer closeCache()

	rt := service.NewRuntime(cfg, provider, responses, metrics, nil, log)
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.LSP.ShutdownTimeout)
		defer cancel()
		if err := rt.Close(shCtx); err != nil {
			log.Warn("runtime shutdown failed", "error", err)
		}
	}()

	// Warm servers in the background so the protocol surface is available
	// immediately; sessions gate requests on their own readiness.
	go func() {
		if err := rt.StartServers(ctx, nil); err != nil {
			log.Warn("server warmup failed", "error", err)
		}
	}()

	srv := csmcp.NewServer(csmcp.ServerConfig{
		Addr:    cfg.MCP.HTTPAddr,
		APIKey:  cfg.MCP.APIKey,
		Name:    serverName,
		Version: serverVersion,
	}, csmcp.ServerDeps{Intel: rt, Logger: log})

	if cfg.MCP.HTTPAddr != "" {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("mcp http: %w", err)
		}
		log.Info("mcp server listening", "addr", cfg.MCP.HTTPAddr)
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shCtx)
	}

	log.Info("mcp server on stdio", "root", provider.Root())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// buildResponseCache assembles the L1 in-process cache, optionally tiered
// over an on-disk L2.
func buildResponseCache(cfg *config.Config) (portcache.Cache, func(), error) {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Cache.L2Dir == "" {
		return l1, l1.Close, nil
	}

	l2, err := diskcache.New(cfg.Cache.L2Dir)
	if err != nil {
		l1.Close()
		return nil, nil, err
	}
	return tiered.New(l1, l2, cfg.Cache.L1Expire), l1.Close, nil
}
