// Command jobstored runs a worker pool and the admin API over one store.
//
// All settings come from JOBSTORE_* environment variables; see config.go.
// Job handlers are registered by programs that embed the engine package.
// jobstored itself registers none, so its pool only reaps expired leases
// while the API serves inspection, cancellation and dead-letter replay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/jobstore/api"
	audithook "github.com/xraph/jobstore/audit_hook"
	"github.com/xraph/jobstore/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "jobstored:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := s.Ping(ctx); err != nil {
		return err
	}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}

	opts := []engine.Option{
		engine.WithConfig(cfg.Config),
		engine.WithLogger(logger),
		engine.WithCodec(cfg.payloadCodec),
	}
	if cfg.Audit {
		opts = append(opts, engine.WithExtension(audithook.New(audithook.SlogRecorder(logger.With(slog.String("component", "audit"))))))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, engine.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))))
	}
	eng, err := engine.New(s, opts...)
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.New(eng, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("admin api listening", slog.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin api: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if srv != nil {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		errs = append(errs, eng.Stop(shutdownCtx))
		return errors.Join(errs...)
	})

	return g.Wait()
}
