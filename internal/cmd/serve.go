package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wingmanhq/dispatch/internal/config"
	"github.com/wingmanhq/dispatch/internal/dispatch"
	errwrap "github.com/wingmanhq/dispatch/internal/errors"
	"github.com/wingmanhq/dispatch/internal/health"
	"github.com/wingmanhq/dispatch/internal/metrics"
	"github.com/wingmanhq/dispatch/internal/observability"
	"github.com/wingmanhq/dispatch/internal/ratelimit"
	"github.com/wingmanhq/dispatch/internal/server"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server, stop the health
monitor, and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return errwrap.NewConfigInvalidError(err.Error())
		}

		observability.InitServerLogger(appName, cfg.Logging.Level)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(appName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.NewInternalError("metrics initialization failed: " + err.Error())
			}
		}

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host = serverHost
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}

		logger.Info("Initializing server",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.Int("models", len(cfg.Models)))

		collector := metrics.NewCollector(cfg.Metrics.MaxSamples)

		limiter := ratelimit.New()
		for key, limit := range cfg.RateLimits {
			err := limiter.Configure(key, ratelimit.Config{
				MaxRequests: limit.MaxRequests,
				Window:      limit.Window,
				BurstSize:   limit.BurstSize,
				Strategy:    ratelimit.Strategy(limit.Strategy),
			})
			if err != nil {
				return errwrap.NewConfigInvalidError(err.Error())
			}
		}

		dispatcher := dispatch.New(
			&dispatch.OpenAIExecutor{},
			limiter,
			collector,
			&dispatch.LogSink{Logger: logger},
			dispatch.Options{
				FailureThreshold: cfg.Dispatch.FailureThreshold,
				BackoffBase:      cfg.Dispatch.BackoffBase,
				BackoffCap:       cfg.Dispatch.BackoffCap,
				MaxAttempts:      cfg.Dispatch.MaxAttempts,
				CallTimeout:      cfg.Dispatch.CallTimeout,
			},
		)
		if err := registerModels(dispatcher, cfg); err != nil {
			return err
		}

		monitor := health.NewMonitor(collector, logger, cfg.Health.Interval)
		if err := registerChecks(monitor, collector, cfg); err != nil {
			return errwrap.NewInternalError(err.Error())
		}

		srv := server.New(host, port, server.Deps{
			Dispatcher: dispatcher,
			Limiter:    limiter,
			Monitor:    monitor,
			AppName:    appName,
			Version:    versionInfo.Version,
			Commit:     versionInfo.Commit,
			BuildDate:  versionInfo.BuildDate,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 30 * time.Second
		}

		if cfg.Health.Enabled {
			monitor.Start(cmd.Context())
		}

		// Shutdown handlers run LIFO: HTTP server first, then the health
		// monitor, then the log flush.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping health monitor...")
			if cfg.Health.Enabled {
				monitor.Stop()
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.NewInternalError("server shutdown failed: " + err.Error())
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.NewConfigInvalidError("config reload failed: " + err.Error())
			}

			logger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))

			// Endpoint pools and limits are immutable per process; a restart
			// is required to apply them.
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", host),
				zap.Int("port", port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.NewInternalError("server error: " + err.Error())
		}
		return nil
	},
}

// registerModels builds the endpoint pools from config, resolving API keys
// from the environment.
func registerModels(d *dispatch.Dispatcher, cfg *config.Config) error {
	for model, pool := range cfg.Models {
		endpoints := make([]dispatch.EndpointConfig, 0, len(pool.Endpoints))
		for _, ep := range pool.Endpoints {
			credential, err := ep.ResolveCredential()
			if err != nil {
				return errwrap.NewConfigInvalidError(err.Error())
			}
			endpoints = append(endpoints, dispatch.EndpointConfig{
				ID:         ep.ID,
				BaseURL:    ep.BaseURL,
				Model:      ep.Model,
				Credential: credential,
			})
		}
		if err := d.RegisterModel(model, endpoints); err != nil {
			return errwrap.NewConfigInvalidError(err.Error())
		}
	}
	return nil
}

func registerChecks(m *health.Monitor, collector *metrics.Collector, cfg *config.Config) error {
	h := cfg.Health
	if err := m.RegisterCheck("memory", health.MemoryCheck(h.MemoryDegradedPercent, h.MemoryUnhealthyPercent)); err != nil {
		return err
	}
	if err := m.RegisterCheck("disk", health.DiskCheck(h.DiskPath, h.DiskDegradedPercent, h.DiskUnhealthyPercent)); err != nil {
		return err
	}
	return m.RegisterCheck("error_rate", health.ErrorRateCheck(collector, h.ErrorRateMinSamples, h.ErrorRateDegraded, h.ErrorRateUnhealthy))
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}
