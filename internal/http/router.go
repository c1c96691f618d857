package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agroclim/era5-extract/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(pipeline *usecase.Pipeline, outDir string) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable.
	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(pipeline, outDir)

	// API v1 routes.
	v1 := router.Group("/v1")
	extractions := v1.Group("/extractions")
	extractions.POST("/polygon", handler.ExtractPolygon)
	extractions.POST("/point", handler.ExtractPoint)

	// Variable catalog.
	v1.GET("/variables", handler.GetVariables)

	// Health check.
	router.GET("/healthz", handler.HealthCheck)

	return router
}
