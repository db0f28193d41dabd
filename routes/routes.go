package routes

import (
	"time"

	"github.com/ShadowAlejo/parqueadero/handlers"
	"github.com/ShadowAlejo/parqueadero/middleware"
	"github.com/ShadowAlejo/parqueadero/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterHealthRoute registers the health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterRunRoutes registers the admin-only run report and manual tick
// endpoints.
func RegisterRunRoutes(r *gin.Engine, hb *handlers.HandlerBundle, logger *zap.Logger) {
	api := r.Group("/api/runs")
	{
		api.Use(middleware.AdminAuthMiddleware(hb.AdminTokenHash))
		api.GET("/:pass", hb.LastRunHandler)
		api.GET("/:pass/history", hb.RunHistoryHandler)
		api.POST("/:pass", middleware.RateLimitMiddleware(hb.RunRatePerMin, logger), hb.TriggerRunHandler)
	}
}

// SetupRouter builds the ops API engine.
func SetupRouter(hb *handlers.HandlerBundle, allowedOrigins []string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(utils.ErrorHandler(logger))
	router.Use(middleware.RequestLogger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	RegisterHealthRoute(router, hb)
	RegisterRunRoutes(router, hb, logger)
	return router
}
