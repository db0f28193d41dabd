package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/services/reconcile"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers both passes in-process on cron specs.
type Scheduler struct {
	cron   *robfig.Cron
	runner reconcile.Runner
	clock  func() time.Time
	logger *zap.Logger
}

// NewScheduler builds a Scheduler evaluating specs in loc. A tick still
// running when its next one fires causes the later tick to be skipped.
func NewScheduler(runner reconcile.Runner, loc *time.Location, finalizeSpec, recomputeSpec string, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Named("cron").Sugar()}
	s := &Scheduler{
		cron: robfig.New(
			robfig.WithLocation(loc),
			robfig.WithLogger(cl),
			robfig.WithChain(robfig.Recover(cl), robfig.SkipIfStillRunning(cl)),
		),
		runner: runner,
		clock:  time.Now,
		logger: logger,
	}

	for pass, spec := range map[reconcile.Pass]string{
		reconcile.PassFinalize:  finalizeSpec,
		reconcile.PassRecompute: recomputeSpec,
	} {
		pass := pass
		if _, err := s.cron.AddFunc(spec, func() { s.fire(pass) }); err != nil {
			return nil, fmt.Errorf("invalid %s schedule %q: %w", pass, spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) fire(pass reconcile.Pass) {
	// Errors are already logged and recorded by the service.
	_, _ = s.runner.Run(context.Background(), reconcile.Tick{Pass: pass, Now: s.clock()})
}

// Start begins firing ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron trigger started", zap.Int("entries", len(s.cron.Entries())))
}

// Stop prevents further ticks and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("cron trigger stop timed out with a pass still running")
	}
}

// cronLogger adapts a sugared zap logger to robfig's Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
