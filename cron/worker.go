package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/config"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeFinalize  = "reconcile:finalize"
	TypeRecompute = "reconcile:recompute"
)

// TaskPayload is the body of a reconcile task. Now pins the tick time for
// manual replays; scheduled tasks leave it empty and use the wall clock.
type TaskPayload struct {
	Now *time.Time `json:"now,omitempty"`
}

// TaskType returns the queue task type of pass.
func TaskType(pass reconcile.Pass) string {
	if pass == reconcile.PassRecompute {
		return TypeRecompute
	}
	return TypeFinalize
}

// NewReconcileTask builds a task for pass. now may be nil.
func NewReconcileTask(pass reconcile.Pass, now *time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{Now: now})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskType(pass), payload), nil
}

// HandleReconcileTask runs pass for each delivered task. Failures are not
// retried by the queue; the next scheduled tick is the retry.
func HandleReconcileTask(runner reconcile.Runner, pass reconcile.Pass, clock func() time.Time, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p TaskPayload
		if len(task.Payload()) > 0 {
			if err := json.Unmarshal(task.Payload(), &p); err != nil {
				logger.Error("invalid reconcile payload", zap.String("type", task.Type()), zap.Error(err))
				return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
			}
		}
		now := clock()
		if p.Now != nil {
			now = *p.Now
		}

		report, err := runner.Run(ctx, reconcile.Tick{Pass: pass, Now: now})
		if err != nil {
			return fmt.Errorf("run %s %s: %v: %w", pass, report.RunID, err, asynq.SkipRetry)
		}
		return nil
	}
}

// QueueTrigger enqueues reconcile tasks on a cron schedule through asynq and
// consumes them in-process.
type QueueTrigger struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

// InitQueueTrigger registers both passes with the asynq scheduler and builds
// the consuming server on REDIS_QUEUE_DB.
func InitQueueTrigger(cfg config.Config, loc *time.Location, runner reconcile.Runner, logger *zap.Logger) (*QueueTrigger, error) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
	sugar := logger.Named("asynq").Sugar()

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{
		Location: loc,
		Logger:   sugar,
	})
	schedules := map[reconcile.Pass]string{
		reconcile.PassFinalize:  cfg.FinalizeSchedule,
		reconcile.PassRecompute: cfg.RecomputeSchedule,
	}
	for pass, spec := range schedules {
		task, err := NewReconcileTask(pass, nil)
		if err != nil {
			return nil, err
		}
		// Unique keeps a backlog from piling up while the consumer is down.
		entryID, err := scheduler.Register(spec, task,
			asynq.MaxRetry(0),
			asynq.Timeout(cfg.PassTimeout+10*time.Second),
			asynq.Unique(time.Minute))
		if err != nil {
			return nil, fmt.Errorf("register %s schedule %q: %w", pass, spec, err)
		}
		logger.Info("registered reconcile schedule",
			zap.String("pass", string(pass)),
			zap.String("spec", spec),
			zap.String("entry_id", entryID))
	}

	server := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"default": 1,
		},
		Logger: sugar,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeFinalize, HandleReconcileTask(runner, reconcile.PassFinalize, time.Now, logger))
	mux.HandleFunc(TypeRecompute, HandleReconcileTask(runner, reconcile.PassRecompute, time.Now, logger))

	return &QueueTrigger{scheduler: scheduler, server: server, mux: mux, logger: logger}, nil
}

// Start launches the consuming server and the scheduler.
func (q *QueueTrigger) Start() error {
	if err := q.server.Start(q.mux); err != nil {
		return fmt.Errorf("start queue worker: %w", err)
	}
	if err := q.scheduler.Start(); err != nil {
		q.server.Shutdown()
		return fmt.Errorf("start queue scheduler: %w", err)
	}
	q.logger.Info("queue trigger started")
	return nil
}

// Stop shuts the scheduler down before draining the worker.
func (q *QueueTrigger) Stop() {
	q.scheduler.Shutdown()
	q.server.Shutdown()
	q.logger.Info("queue trigger stopped")
}
