package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadp "loan-submission-queue/internal/adapter/http"
	idemp "loan-submission-queue/internal/adapter/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, job dispatcher and connectivity trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, log)
		if err != nil {
			log.Error("startup failed", zap.Error(err))
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.serve(ctx)
	},
}

func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			a.log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(idemp.NewIdempotency(a.rdb, a.cfg.IdempotencyTTL(), a.session, a.log.Named("idempotency")).Middleware())

	httpadp.RegisterRoutes(e, httpadp.Routes{
		Health:        httpadp.NewHandler(a.healthChecks()...),
		Submissions:   httpadp.NewSubmissionHandler(a.manager),
		Uploads:       httpadp.NewUploadHandler(a.uploads),
		Session:       httpadp.NewSessionHandler(a.session, a.manager),
		Notifications: httpadp.NewNotificationHandler(a.sink, a.session),
	})
	return e
}

func (a *app) healthChecks() []httpadp.Check {
	return []httpadp.Check{
		{Name: "db", Ping: func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Ping: func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }},
	}
}

func (a *app) serve(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	// jobs left behind by a previous process
	if n, err := a.manager.TriggerPendingSubmissions(ctx); err != nil {
		a.log.Warn("startup sweep incomplete", zap.Int("scheduled", n), zap.Error(err))
	}

	start(func() { _ = a.queue.Run(ctx) })
	start(func() { a.trigger.Run(ctx, a.prober.Watch(ctx)) })
	start(func() { a.housekeep(ctx) })

	e := a.router()
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.AppPort
		a.log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.log.Error("http server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	a.log.Info("stopped")
	return runErr
}

// housekeep periodically re-schedules stale work and prunes finished uploads.
func (a *app) housekeep(ctx context.Context) {
	t := time.NewTicker(a.cfg.RetrySweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweepOnce(ctx)
		}
	}
}

func (a *app) sweepOnce(ctx context.Context) {
	if n, err := a.manager.RetryStale(ctx, a.cfg.BackoffBase); err != nil {
		a.log.Warn("stale submission sweep", zap.Error(err))
	} else if n > 0 {
		a.log.Info("stale submissions rescheduled", zap.Int("count", n))
	}
	if n, err := a.uploads.RetryStale(ctx, a.cfg.BackoffBase); err != nil {
		a.log.Warn("stale upload sweep", zap.Error(err))
	} else if n > 0 {
		a.log.Info("stale uploads rescheduled", zap.Int("count", n))
	}
	if n, err := a.uploads.CleanupCompleted(ctx, a.cfg.CleanupAfter); err != nil {
		a.log.Warn("upload cleanup", zap.Error(err))
	} else if n > 0 {
		a.log.Info("completed uploads cleaned", zap.Int("count", n))
	}
}
