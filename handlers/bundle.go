// File: parqueadero/handlers/bundle.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the ops API endpoint handlers into one struct.
type HandlerBundle struct {
	// Health endpoint
	HealthHandler gin.HandlerFunc

	// Run endpoints
	LastRunHandler    gin.HandlerFunc
	RunHistoryHandler gin.HandlerFunc
	TriggerRunHandler gin.HandlerFunc

	// Admin authorization and manual trigger throttling
	AdminTokenHash string
	RunRatePerMin  int
}
