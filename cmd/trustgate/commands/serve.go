package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trustgate/trustgate/internal/advisor"
	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/evidence"
	"github.com/trustgate/trustgate/internal/ledger"
	"github.com/trustgate/trustgate/internal/safety"
	"github.com/trustgate/trustgate/internal/sanitize"
	"github.com/trustgate/trustgate/internal/schema"
	"github.com/trustgate/trustgate/internal/server"
	"github.com/trustgate/trustgate/internal/upstream"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind string
	var trace bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the trustgate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				// Fall back to defaults if no config file
				cfg = config.Defaults()
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			level := new(slog.LevelVar)
			level.Set(parseLogLevel(cfg.Server.LogLevel))
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if trace {
				shutdown, err := server.InitTracing(os.Stderr, "trustgate")
				if err != nil {
					return err
				}
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(flushCtx); err != nil {
						logger.Error("trace shutdown failed", "error", err)
					}
				}()
			}

			var sink ledger.Sink
			switch cfg.Ledger.Backend {
			case "sqlite":
				s, err := ledger.NewSQLiteSink(cfg.Ledger.Path, logger)
				if err != nil {
					return fmt.Errorf("opening ledger db: %w", err)
				}
				sink = s
			case "postgres":
				s, err := ledger.NewPostgresSink(ctx, cfg.Ledger.DSN, logger)
				if err != nil {
					return fmt.Errorf("connecting ledger db: %w", err)
				}
				sink = s
			}

			l := ledger.New(sink, logger)
			defer func() {
				if err := l.Close(); err != nil {
					logger.Error("ledger close failed", "error", err)
				}
			}()

			var cache upstream.Cache
			if cfg.Cache.RedisAddr != "" {
				cache = upstream.NewRedisCache(
					cfg.Cache.RedisAddr,
					time.Duration(cfg.Cache.TTLSeconds)*time.Second,
					logger,
				)
				logger.Info("degraded-response cache enabled", "addr", cfg.Cache.RedisAddr)
			}

			transport, err := upstream.NewMCPTransport(ctx, cfg.Upstream, logger)
			if err != nil {
				return fmt.Errorf("connecting upstream: %w", err)
			}

			client := upstream.NewClient(transport, l, cache, upstream.Options{
				MaxAttempts:      cfg.Upstream.MaxAttempts,
				BaseBackoff:      time.Duration(cfg.Upstream.BackoffMS) * time.Millisecond,
				MaxBackoff:       time.Duration(cfg.Upstream.BackoffMaxMS) * time.Millisecond,
				CallTimeout:      time.Duration(cfg.Upstream.TimeoutS) * time.Second,
				FailureThreshold: cfg.Upstream.FailureThreshold,
				Cooldown:         time.Duration(cfg.Upstream.CooldownS) * time.Second,
			}, logger)
			defer func() { _ = client.Close() }()

			gate := safety.NewGate()
			adv := advisor.New(
				sanitize.New(logger),
				client,
				gate,
				evidence.NewBuilder(l),
				schema.NewValidator(gate),
				l,
				logger,
			)

			srv, err := server.NewServer(cfg, adv, logger)
			if err != nil {
				return err
			}

			// Hot-reload the log level when the config file changes.
			if _, err := os.Stat(cfgFile); err == nil {
				closeWatch, werr := config.Watch(cfgFile, logger, func(next *config.Config) {
					level.Set(parseLogLevel(next.Server.LogLevel))
				})
				if werr != nil {
					logger.Warn("config watch disabled", "error", werr)
				} else {
					defer func() { _ = closeWatch() }()
				}
			}

			printBanner(cfg)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().BoolVar(&trace, "trace", false, "emit request traces to stderr")
	return cmd
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(cfg *config.Config) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	fmt.Println()
	fmt.Println("  trustgate")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  API:        http://%s:%d/v1/advise\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Metrics:    http://%s:%d/metrics\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Health:     http://%s:%d/health\n", bindAddr, cfg.Server.Port)
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Ledger: %s  |  Upstream: %s\n", cfg.Ledger.Backend, cfg.Upstream.Transport)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}
