package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/callrelay/common/logging"
	"github.com/telhawk-systems/callrelay/common/messaging"
	"github.com/telhawk-systems/callrelay/common/middleware"
	"github.com/telhawk-systems/callrelay/relay/internal/config"
	"github.com/telhawk-systems/callrelay/relay/internal/handlers"
	"github.com/telhawk-systems/callrelay/relay/internal/journal"
	"github.com/telhawk-systems/callrelay/relay/internal/mirror"
	"github.com/telhawk-systems/callrelay/relay/internal/ratelimit"
	"github.com/telhawk-systems/callrelay/relay/internal/server"
	"github.com/telhawk-systems/callrelay/relay/internal/service"
	"github.com/telhawk-systems/callrelay/relay/internal/store"
	"github.com/telhawk-systems/callrelay/relay/internal/upstream"

	natsclient "github.com/telhawk-systems/callrelay/common/messaging/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.New(
		logging.EffectiveLevel(cfg.Logging.Level, cfg.Debug),
		cfg.Logging.Format,
	).With(logging.Service("relay"))
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	// Streams derive their context from base so shutdown ends them.
	base, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     app.router,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		BaseContext: func(net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay listening",
			slog.String("addr", srv.Addr),
			logging.Upstream(cfg.Upstream.APIBase),
			slog.Bool("credential", cfg.Upstream.AuthToken != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down relay")
	cancelStreams()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logging.Error(err))
		return err
	}

	logger.Info("Relay stopped")
	return nil
}

// app holds the wired components and the resources that need releasing.
type app struct {
	router  http.Handler
	journal journal.Writer
	limiter ratelimit.RateLimiter
	bus     *natsclient.Client
	logger  *logging.Logger
}

func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{logger: logger}

	st := store.New(logger)

	a.journal = journal.NoOp{}
	if cfg.Journal.Enabled {
		fj, err := journal.Open(cfg.Journal.Dir, cfg.Journal.Buffer, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.journal = fj
		logger.Info("Journal enabled", slog.String("dir", cfg.Journal.Dir))
	}

	var m mirror.Mirror = mirror.NoOp{}
	var bus messaging.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.Token = cfg.NATS.Token
		natsCfg.Logger = logger.Logger
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			// Mirroring is optional; the relay runs without it.
			logger.Warn("NATS unavailable, event mirroring disabled", logging.Error(err))
		} else {
			a.bus = client
			bus = client
			m = mirror.New(client, cfg.NATS.SubjectPrefix, logger)
			logger.Info("Event mirroring enabled",
				slog.String("url", cfg.NATS.URL),
				slog.String("subject_prefix", cfg.NATS.SubjectPrefix))
		}
	}

	var backend string
	a.limiter, backend = newRateLimiter(cfg, logger)

	svc := service.NewRelayService(st, a.journal, m, logger)
	relay := handlers.NewRelayHandler(svc, handlers.RelayOptions{
		APIBase:        cfg.Upstream.APIBase,
		MaxBodyBytes:   cfg.Ingestion.MaxBodyBytes,
		Keepalive:      cfg.Stream.KeepaliveInterval,
		AllowedOrigins: []string{cfg.CORS.Origin},
		Bus:            bus,
		Logger:         logger,
	})
	proxy := handlers.NewProxyHandler(
		upstream.New(cfg.Upstream.APIBase, cfg.Upstream.AuthToken, cfg.Upstream.Timeout, logger),
		cfg.Ingestion.MaxBodyBytes,
		logger,
	)

	var limit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limit = ratelimit.Middleware(a.limiter, backend, cfg.RateLimit.TrustProxy, logger)
	}

	a.router = server.NewRouter(server.RouterConfig{
		Relay:     relay,
		Proxy:     proxy,
		CORS:      middleware.RelayCORSConfig(cfg.CORS.Origin),
		RateLimit: limit,
	})
	return a, nil
}

// newRateLimiter returns the limiter and the backend actually in use. A
// redis backend that cannot be reached falls back to the local one.
func newRateLimiter(cfg *config.Config, logger *logging.Logger) (ratelimit.RateLimiter, string) {
	if !cfg.RateLimit.Enabled {
		return &ratelimit.NoOpRateLimiter{}, ""
	}

	if cfg.RateLimit.Backend == ratelimit.BackendRedis {
		limiter, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			logger.Warn("Redis rate limiter unavailable, falling back to local", logging.Error(err))
		} else {
			logger.Info("Rate limiting enabled",
				slog.String("backend", ratelimit.BackendRedis),
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window))
			return limiter, ratelimit.BackendRedis
		}
	}

	logger.Info("Rate limiting enabled",
		slog.String("backend", ratelimit.BackendLocal),
		slog.Int("requests", cfg.RateLimit.Requests),
		slog.Duration("window", cfg.RateLimit.Window))
	return ratelimit.NewLocalRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), ratelimit.BackendLocal
}

// close flushes the journal and releases external connections.
func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		a.logger.Error("Failed to close journal", logging.Error(err))
	}
	if a.bus != nil {
		if err := a.bus.Drain(); err != nil {
			a.logger.Warn("Failed to drain NATS connection", logging.Error(err))
		}
	}
	if err := a.limiter.Close(); err != nil {
		a.logger.Warn("Failed to close rate limiter", logging.Error(err))
	}
}
