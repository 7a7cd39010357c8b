package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/polisai/polis-relay/pkg/config"
	"github.com/polisai/polis-relay/pkg/logging"
	"github.com/polisai/polis-relay/pkg/proxy"
	"github.com/polisai/polis-relay/pkg/router"
	"github.com/polisai/polis-relay/pkg/server"
	"github.com/polisai/polis-relay/pkg/telemetry"
)

const (
	defaultServiceName       = "polis-relay"
	telemetryShutdownTimeout = 5 * time.Second
	gracefulShutdownTimeout  = 10 * time.Second
)

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, _ []string) error {
	cliConfig, err := parseCLIConfig(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	logger := logging.SetupLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run orchestrates the relay lifecycle until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := server.NewMetrics()

	telemetryShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName:  defaultServiceName,
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Environment:  cfg.Telemetry.Environment,
		Insecure:     cfg.Telemetry.Insecure,
		Headers:      cfg.Telemetry.Headers,
		ResourceTags: cfg.Telemetry.ResourceTags,
		Registerer:   metrics.Registerer(),
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer shutdownTelemetry(telemetryShutdown, logger)

	routes, err := cfg.RouteTable()
	if err != nil {
		return err
	}

	handler := server.NewHandler(server.Options{
		Routes: routes,
		Secret: cfg.Auth.Password,
		Forwarder: proxy.NewForwarder(proxy.Config{
			Timeout: cfg.Upstream.Timeout,
			Logger:  &logger,
		}),
		Static:  &server.StaticFiles{Dir: cfg.Server.PublicDir},
		Pages:   &server.Pages{AvatarURL: cfg.Server.AvatarURL, Domain: cfg.Server.Domain},
		Metrics: metrics,
	}, logger)

	// No WriteTimeout: upstream responses are streamed for as long as
	// the upstream keeps sending.
	dataServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", dataServer.Addr)
	if err != nil {
		return fmt.Errorf("data plane listen on %s: %w", dataServer.Addr, err)
	}

	logStartup(logger, cfg, routes)

	var adminServer *http.Server
	if cfg.Server.AdminAddress != "" {
		adminServer = startAdminServer(cfg.Server.AdminAddress, metrics, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", ln.Addr().String()).Msg("data plane server listening")
		if err := dataServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("data plane server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal, initiating graceful shutdown")
	}

	if adminServer != nil {
		shutdownServer(adminServer, "admin", logger)
	}
	shutdownServer(dataServer, "data plane", logger)
	logger.Info().Msg("relay stopped")
	return nil
}

// logStartup prints the startup banner: listen port, domain, auth state
// and every proxied endpoint.
func logStartup(logger zerolog.Logger, cfg *config.Config, routes *router.Table) {
	logger.Info().
		Int("port", cfg.Server.Port).
		Str("domain", cfg.Server.Domain).
		Bool("auth_enabled", cfg.AuthEnabled()).
		Dur("upstream_timeout", cfg.Upstream.Timeout).
		Msg("server starting")

	for _, route := range routes.Routes() {
		logger.Info().
			Str("endpoint", "https://"+cfg.Server.Domain+route.Prefix).
			Str("upstream", route.Upstream.String()).
			Msg("proxy endpoint")
	}

	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}
	logger.Warn().Msgf("ensure the relay is accessed via HTTPS: https://%s/", cfg.Server.Domain)
}

// startAdminServer initializes and starts the admin server.
func startAdminServer(addr string, metrics *server.Metrics, logger zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewAdminHandler(metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error().Err(err).Msg("admin server listen error")
			return
		}
		logger.Info().Str("address", ln.Addr().String()).Msg("admin server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	return srv
}

// shutdownServer drains srv within the graceful shutdown window.
func shutdownServer(srv *http.Server, name string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Str("server", name).Msg("server shutdown error")
	}
}

func shutdownTelemetry(shutdown func(context.Context) error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown error")
	}
}
