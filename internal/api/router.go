// Package api wires the HTTP routes of the pairing service.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mrarosh/Pear-code/internal/api/handlers"
	"github.com/mrarosh/Pear-code/internal/api/middleware"
	"github.com/mrarosh/Pear-code/internal/metrics"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Pairer         handlers.Pairer
	AllowedOrigins []string
	Started        time.Time
}

// NewRouter returns the gin engine serving every route.
func NewRouter(deps Deps) *gin.Engine {
	metrics.RegisterMetrics()

	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	// Logging middleware
	router.Use(middleware.LoggingMiddleware())

	codeHandler := handlers.NewCodeHandler(deps.Pairer)
	healthHandler := handlers.NewHealthHandler(deps.Started)

	router.GET("/", handlers.Index)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	code := router.Group("/code")
	{
		code.GET("", codeHandler.GetCode)
		code.GET("/health", codeHandler.GetHealth)
		code.GET("/qr", codeHandler.GetQR)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
