package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/hydraproxy/internal/api/handlers"
	"github.com/jroosing/hydraproxy/internal/api/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/hydraproxy/internal/api/docs" // swagger docs
)

// RegisterRoutes mounts the API, the metrics endpoint and the Swagger UI.
// apiKey protects every route except health and the Swagger UI when non-empty.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, apiKey string, metrics http.Handler) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.RequireAPIKey(apiKey)

	if metrics != nil {
		r.GET("/metrics", auth, gin.WrapH(metrics))
	}

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)

	protected := api.Group("", auth)
	protected.GET("/stats", h.Stats)
	protected.GET("/config", h.GetConfig)
	protected.GET("/querylog", h.QueryLog)
}
