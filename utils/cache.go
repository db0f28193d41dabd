// File: utils/cache.go
package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/ShadowAlejo/parqueadero/config"
	"github.com/go-redis/redis/v8"
)

// ReportClient is the Redis client holding run reports.
var ReportClient *redis.Client

// InitReportCache connects the run-report Redis client using REDIS_REPORT_DB.
func InitReportCache() error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisReportDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis (reports): %w", err)
	}
	ReportClient = client
	return nil
}

// GetReportClient returns the run-report client, or nil before InitReportCache.
func GetReportClient() *redis.Client {
	return ReportClient
}
