package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
	"github.com/ekaya-inc/ekaya-streams/pkg/dispatcher"
	"github.com/ekaya-inc/ekaya-streams/pkg/handlers"
	"github.com/ekaya-inc/ekaya-streams/pkg/logging"
	"github.com/ekaya-inc/ekaya-streams/pkg/metrics"
	"github.com/ekaya-inc/ekaya-streams/pkg/middleware"

	// Engine adapters register themselves by URL scheme.
	_ "github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource/sqlite"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve streams over websocket and TCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Root().Version)
		if err != nil {
			return err
		}
		defer func() { _ = a.logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.serve(ctx)
	},
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Strings("databases", cfg.DatabaseIDs()),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Int("streams", len(a.streams.IDs())))

	engines, err := datasource.OpenEngines(ctx, cfg.Databases, cfg.PoolOptions(), logger)
	if err != nil {
		return err
	}
	defer engines.Close()

	validator, err := auth.NewJWTValidator(ctx, cfg.ValidatorConfig())
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	defer validator.Close()
	authService := auth.NewAuthService(validator, cfg.Auth.AnonymousRoles, logger)

	promRegistry := metrics.NewRegistry()
	dispatcherMetrics, err := metrics.NewDispatcherMetrics(promRegistry.Registerer())
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := promRegistry.Registerer().Register(metrics.NewPoolCollector(engines.Stats)); err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}

	d := dispatcher.New(a.streams, engines.Binds(), authService, dispatcherMetrics, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, engines, logger).RegisterRoutes(mux)
	handlers.NewStreamsHandler(d, cfg.AllowedOrigins, logger).RegisterRoutes(mux, auth.NewMiddleware(authService, logger))
	mux.Handle("GET /metrics", promRegistry.Handler())

	var tcpListener net.Listener
	if cfg.TCPAddr != "" {
		tcpListener, err = net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.TCPAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket connections end when the server stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info("Starting ekaya-streams",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if tcpListener != nil {
		logger.Info("Accepting TCP connections", zap.String("addr", tcpListener.Addr().String()))
		g.Go(func() error { return d.ServeListener(gctx, tcpListener) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", zap.String("error", logging.SanitizeError(err)))
		}
		return nil
	})

	return g.Wait()
}
