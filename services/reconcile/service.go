package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tick is one invocation of a pass. Now is sampled once by the trigger and is
// the only clock the pass reads.
type Tick struct {
	Pass Pass
	Now  time.Time
}

// RunRecorder persists run reports.
type RunRecorder interface {
	Record(ctx context.Context, report models.RunReport) error
}

// Runner executes reconciliation passes.
type Runner interface {
	Run(ctx context.Context, tick Tick) (models.RunReport, error)
}

// Service wires the gate, finalizer and recomputer into the two passes.
type Service struct {
	settings   Settings
	logger     *zap.Logger
	recorder   RunRecorder
	finalizer  *Finalizer
	recomputer *Recomputer
	newRunID   func() string
}

// NewService builds a Service. recorder may be nil.
func NewService(store Store, settings Settings, logger *zap.Logger, recorder RunRecorder) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconcile settings: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	recomputer := &Recomputer{Store: store, Settings: settings, Logger: logger.Named("recomputer")}
	return &Service{
		settings:   settings,
		logger:     logger,
		recorder:   recorder,
		finalizer:  &Finalizer{Store: store, Settings: settings, Recomputer: recomputer, Logger: logger.Named("finalizer")},
		recomputer: recomputer,
		newRunID:   func() string { return uuid.New().String() },
	}, nil
}

// Settings returns the settings the service was built with.
func (s *Service) Settings() Settings {
	return s.settings
}

// Run dispatches tick to its pass. A skipped tick is not an error.
func (s *Service) Run(ctx context.Context, tick Tick) (models.RunReport, error) {
	started := time.Now()
	now := tick.Now.In(s.settings.Hours.Location)
	report := models.RunReport{
		RunID:    s.newRunID(),
		Pass:     string(tick.Pass),
		TickTime: now,
	}
	logger := s.logger.With(
		zap.String("pass", string(tick.Pass)),
		zap.String("run_id", report.RunID),
		zap.Time("now", now))

	window := s.settings.Window(tick.Pass)
	if !window.Allows(now, s.settings.Hours.Location) {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("outside window %s", window)
		logger.Info("pass skipped by gate", zap.String("window", window.String()))
		return s.finish(ctx, logger, started, report, nil)
	}

	if s.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
	}

	var err error
	switch tick.Pass {
	case PassFinalize:
		err = s.runFinalize(ctx, logger, now, &report)
	case PassRecompute:
		err = s.runRecompute(ctx, logger, now, &report)
	default:
		err = fmt.Errorf("unknown pass %q", tick.Pass)
	}
	return s.finish(ctx, logger, started, report, err)
}

// RunFinalize runs the finalize pass for now.
func (s *Service) RunFinalize(ctx context.Context, now time.Time) (models.RunReport, error) {
	return s.Run(ctx, Tick{Pass: PassFinalize, Now: now})
}

// RunRecompute runs the cancellation-driven recompute pass for now.
func (s *Service) RunRecompute(ctx context.Context, now time.Time) (models.RunReport, error) {
	return s.Run(ctx, Tick{Pass: PassRecompute, Now: now})
}

func (s *Service) runFinalize(ctx context.Context, logger *zap.Logger, now time.Time, report *models.RunReport) error {
	rc := *s.recomputer
	rc.Logger = logger
	fin := *s.finalizer
	fin.Logger = logger
	fin.Recomputer = &rc
	fres, err := fin.Finalize(ctx, now)
	report.Candidates = fres.Candidates
	report.Malformed = fres.Malformed
	report.Deferred = fres.Deferred + fres.Spaces.Deferred
	report.Finalized = fres.Finalized
	report.ResourcesChecked = fres.Spaces.Checked
	report.ResourcesWritten = fres.Spaces.Written
	return err
}

func (s *Service) runRecompute(ctx context.Context, logger *zap.Logger, now time.Time, report *models.RunReport) error {
	rc := *s.recomputer
	rc.Logger = logger
	keys, malformed, err := rc.DetectChanged(ctx, now)
	report.Malformed = malformed
	if err != nil {
		return err
	}
	report.Candidates = len(keys)
	if len(keys) == 0 {
		logger.Info("no cancellations today, nothing to recompute")
		return nil
	}
	rres, err := rc.Recompute(ctx, now, keys)
	report.ResourcesChecked = rres.Checked
	report.ResourcesWritten = rres.Written
	report.Deferred = rres.Deferred
	return err
}

func (s *Service) finish(ctx context.Context, logger *zap.Logger, started time.Time, report models.RunReport, err error) (models.RunReport, error) {
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(started)
	if err != nil {
		report.Error = err.Error()
		logger.Error("pass failed",
			zap.Int("candidates", report.Candidates),
			zap.Int("finalized", report.Finalized),
			zap.Error(err))
	} else if !report.Skipped {
		logger.Info("pass completed",
			zap.Int("candidates", report.Candidates),
			zap.Int("finalized", report.Finalized),
			zap.Int("checked", report.ResourcesChecked),
			zap.Int("written", report.ResourcesWritten),
			zap.Int("malformed", report.Malformed))
	}
	if s.recorder != nil && !report.Skipped {
		// Record even when the pass context has expired.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := s.recorder.Record(rctx, report); rerr != nil {
			logger.Warn("failed to record run report", zap.Error(rerr))
		}
	}
	return report, err
}
