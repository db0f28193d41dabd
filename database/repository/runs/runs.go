package runsRepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/models"
	"github.com/go-redis/redis/v8"
)

// historyLen bounds the per-pass history list.
const historyLen = 50

// ErrNoRuns is returned when a pass has no recorded report.
var ErrNoRuns = errors.New("no runs recorded")

// RunRepository stores run reports per pass.
type RunRepository interface {
	Record(ctx context.Context, report models.RunReport) error
	Last(ctx context.Context, pass string) (*models.RunReport, error)
	Recent(ctx context.Context, pass string, n int) ([]models.RunReport, error)
}

type redisRunRepo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRunRepo constructs a Redis-backed RunRepository.
func NewRedisRunRepo(client *redis.Client, prefix string, ttl time.Duration) RunRepository {
	return &redisRunRepo{client: client, prefix: prefix, ttl: ttl}
}

func (r *redisRunRepo) lastKey(pass string) string {
	return fmt.Sprintf("%sruns:%s:last", r.prefix, pass)
}

func (r *redisRunRepo) historyKey(pass string) string {
	return fmt.Sprintf("%sruns:%s:history", r.prefix, pass)
}

// Record stores report as the pass's latest run and prepends it to history.
func (r *redisRunRepo) Record(ctx context.Context, report models.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.lastKey(report.Pass), data, r.ttl)
	pipe.LPush(ctx, r.historyKey(report.Pass), data)
	pipe.LTrim(ctx, r.historyKey(report.Pass), 0, historyLen-1)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.historyKey(report.Pass), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run report: %w", err)
	}
	return nil
}

// Last returns the most recent report for pass.
func (r *redisRunRepo) Last(ctx context.Context, pass string) (*models.RunReport, error) {
	data, err := r.client.Get(ctx, r.lastKey(pass)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	var report models.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
	}
	return &report, nil
}

// Recent returns up to n reports for pass, newest first.
func (r *redisRunRepo) Recent(ctx context.Context, pass string, n int) ([]models.RunReport, error) {
	if n <= 0 || n > historyLen {
		n = historyLen
	}
	items, err := r.client.LRange(ctx, r.historyKey(pass), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	reports := make([]models.RunReport, 0, len(items))
	for _, item := range items {
		var report models.RunReport
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
