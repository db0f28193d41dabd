package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShadowAlejo/parqueadero/config"
	"github.com/ShadowAlejo/parqueadero/cron"
	"github.com/ShadowAlejo/parqueadero/handlers"
	"github.com/ShadowAlejo/parqueadero/routes"
	"github.com/ShadowAlejo/parqueadero/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled passes and the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	loc := a.settings.Hours.Location

	var stopTrigger func()
	switch a.cfg.TriggerMode {
	case "cron":
		s, err := cron.NewScheduler(a.service, loc, a.cfg.FinalizeSchedule, a.cfg.RecomputeSchedule, logger)
		if err != nil {
			return err
		}
		s.Start()
		stopTrigger = func() {
			sctx, cancel := context.WithTimeout(context.Background(), a.settings.Timeout+5*time.Second)
			defer cancel()
			s.Stop(sctx)
		}
	case "queue":
		q, err := cron.InitQueueTrigger(a.cfg, loc, a.service, logger)
		if err != nil {
			return err
		}
		if err := q.Start(); err != nil {
			return err
		}
		stopTrigger = q.Stop
	case "none":
		logger.Info("no trigger configured; passes run only on demand")
		stopTrigger = func() {}
	default:
		return fmt.Errorf("unknown TRIGGER_MODE %q", a.cfg.TriggerMode)
	}
	defer stopTrigger()

	monitor := utils.NewHealthMonitor(a.health, time.Minute, logger)
	monitor.Start(ctx)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	hb := &handlers.HandlerBundle{
		HealthHandler:  handlers.NewHealthHandler(monitor),
		AdminTokenHash: a.cfg.AdminTokenHash,
		RunRatePerMin:  a.cfg.RunRatePerMin,
	}
	if a.runs != nil {
		runHandler := handlers.NewRunHandler(a.service, a.runs)
		hb.LastRunHandler = runHandler.LastRunHandler
		hb.RunHistoryHandler = runHandler.RunHistoryHandler
		hb.TriggerRunHandler = runHandler.TriggerRunHandler
	} else {
		unavailable := func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run reports unavailable"})
		}
		hb.LastRunHandler = unavailable
		hb.RunHistoryHandler = unavailable
		hb.TriggerRunHandler = handlers.NewRunHandler(a.service, nil).TriggerRunHandler
	}
	router := routes.SetupRouter(hb, a.cfg.AllowedOrigins(), logger)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + a.cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting ops API", zap.String("addr", srv.Addr), zap.String("trigger", a.cfg.TriggerMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
