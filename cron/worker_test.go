package cron

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/ShadowAlejo/parqueadero/services/reconcile"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu    sync.Mutex
	ticks []reconcile.Tick
	err   error
}

func (f *fakeRunner) Run(_ context.Context, tick reconcile.Tick) (models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, tick)
	return models.RunReport{RunID: "run-1", Pass: string(tick.Pass)}, f.err
}

func (f *fakeRunner) Ticks() []reconcile.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconcile.Tick(nil), f.ticks...)
}

var wallClock = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return wallClock }

func TestNewReconcileTask(t *testing.T) {
	pinned := time.Date(2026, 3, 10, 20, 30, 0, 0, time.UTC)

	task, err := NewReconcileTask(reconcile.PassRecompute, &pinned)
	require.NoError(t, err)
	assert.Equal(t, TypeRecompute, task.Type())

	var p TaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.NotNil(t, p.Now)
	assert.True(t, pinned.Equal(*p.Now))

	task, err = NewReconcileTask(reconcile.PassFinalize, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeFinalize, task.Type())
	assert.JSONEq(t, `{}`, string(task.Payload()))
}

func TestHandleReconcileTask_UsesClockWithoutPinnedTime(t *testing.T) {
	runner := &fakeRunner{}
	handler := HandleReconcileTask(runner, reconcile.PassFinalize, fixedClock, zap.NewNop())

	task, err := NewReconcileTask(reconcile.PassFinalize, nil)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	ticks := runner.Ticks()
	require.Len(t, ticks, 1)
	assert.Equal(t, reconcile.PassFinalize, ticks[0].Pass)
	assert.Equal(t, wallClock, ticks[0].Now)
}

func TestHandleReconcileTask_PinnedTime(t *testing.T) {
	runner := &fakeRunner{}
	handler := HandleReconcileTask(runner, reconcile.PassRecompute, fixedClock, zap.NewNop())
	pinned := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)

	task, err := NewReconcileTask(reconcile.PassRecompute, &pinned)
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	ticks := runner.Ticks()
	require.Len(t, ticks, 1)
	assert.True(t, pinned.Equal(ticks[0].Now))
}

func TestHandleReconcileTask_FailureSkipsRetry(t *testing.T) {
	runner := &fakeRunner{err: errors.New("deadline exceeded")}
	handler := HandleReconcileTask(runner, reconcile.PassFinalize, fixedClock, zap.NewNop())

	err := handler(context.Background(), asynq.NewTask(TypeFinalize, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestHandleReconcileTask_InvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	handler := HandleReconcileTask(runner, reconcile.PassFinalize, fixedClock, zap.NewNop())

	err := handler(context.Background(), asynq.NewTask(TypeFinalize, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, runner.Ticks())
}
