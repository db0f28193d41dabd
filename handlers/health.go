package handlers

import (
	"net/http"

	"github.com/ShadowAlejo/parqueadero/utils"
	"github.com/gin-gonic/gin"
)

// NewHealthHandler reports the last health snapshot; 503 when any
// dependency is down.
func NewHealthHandler(monitor *utils.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := monitor.Status()
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	}
}
