package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/api-vault-mcp/internal/config"
	"github.com/jkaninda/api-vault-mcp/internal/gateway"
	"github.com/jkaninda/api-vault-mcp/internal/gateway/httpapi"
	"github.com/jkaninda/api-vault-mcp/internal/gateway/mcpgw"
	"github.com/jkaninda/api-vault-mcp/internal/observability"
	"github.com/jkaninda/api-vault-mcp/internal/ratelimit"
	"github.com/jkaninda/api-vault-mcp/internal/tools"
)

var (
	serveTransport string
	serveListen    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the credential tools over MCP (stdio or streamable HTTP)",
	RunE:  runServe,
}

func init() {
	// Registered on both root and serve so that `api-vault-mcp --transport http`
	// and `api-vault-mcp serve --transport http` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveTransport, "transport", "", "override transport: stdio or http")
		cmd.Flags().StringVar(&serveListen, "listen", "", "override MCP HTTP listen address (e.g. 127.0.0.1:8790)")
	}
}

// runServe serves the credential tools until a signal or the first gateway exit.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	if err := applyServeOverrides(cfg, serveTransport, serveListen); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting api-vault-mcp",
		slog.String("config", path),
		slog.String("transport", cfg.Server.TransportName()),
		slog.String("version", version),
	)

	sc, err := initShared(cfg, logger, true)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	metrics := sc.Obs.MetricsOrNil()
	tracer := sc.Obs.TracerOrNil()
	reg := tools.NewRegistry()
	if err := tools.RegisterCredentialTools(reg,
		observability.NewInstrumentedStore(sc.Store, metrics, tracer),
		observability.NewInstrumentedLog(sc.AccessLog, metrics, tracer),
	); err != nil {
		return err
	}
	mcpServer := tools.NewBridge(reg, metrics, logger).
		WithRateLimiter(newLimiter(cfg.Server.RateLimit)).
		NewMCPServer(version)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gateways []gateway.Gateway
	switch cfg.Server.TransportName() {
	case "http":
		gateways = append(gateways, mcpgw.NewHTTP(mcpServer, cfg.Server.Addr(), logger))
	default:
		gateways = append(gateways, mcpgw.NewStdio(mcpServer, logger))
	}
	if cfg.Admin != nil && cfg.Admin.Enabled {
		gateways = append(gateways, newAdminGateway(cfg, sc))
	}

	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or the first gateway exit. A stdio client closing
	// stdin ends the session.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
			runErr = err
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		return fmt.Errorf("serving: %w", runErr)
	}
	return nil
}

// applyServeOverrides applies the --transport and --listen flags and
// re-validates the result.
func applyServeOverrides(cfg *config.Config, transport, listen string) error {
	if transport != "" {
		cfg.Server.Transport = transport
	}
	if listen != "" {
		cfg.Server.ListenAddr = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func newLimiter(rl config.RateLimitConfig) *ratelimit.Limiter {
	if rl.RequestsPerMinute <= 0 {
		return nil
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.BurstSize,
	})
}

func newAdminGateway(cfg *config.Config, sc *SharedComponents) *httpapi.Gateway {
	gwCfg := httpapi.Config{
		ListenAddr:    cfg.Admin.Addr(),
		APIKey:        cfg.Admin.APIKey,
		Limiter:       newLimiter(cfg.Admin.RateLimit),
		HealthChecker: sc.Obs.Health,
		Metrics:       sc.Obs.MetricsOrNil(),
	}
	if m := sc.Obs.MetricsOrNil(); m != nil {
		gwCfg.MetricsRegistry = m.Registry
		if mc := cfg.Observability.Metrics; mc != nil {
			gwCfg.MetricsPath = mc.Path
		}
	}
	if ts := sc.Obs.TracerOrNil(); ts != nil {
		gwCfg.Tracer = ts.Tracer()
	}
	return httpapi.NewGateway(gwCfg, sc.AccessLog, sc.Logger)
}
