package main

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"travelorch/internal/config"
	"travelorch/internal/logging"
	"travelorch/internal/middleware"
	"travelorch/internal/orchestrator"
)

type turnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type editRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Command   string `json:"command" binding:"required"`
}

type explainRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Question  string `json:"question" binding:"required"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		// absence of a .env file is expected in deployed environments
	}

	cfg := config.GetConfig()
	log := logging.New(cfg.Environment)
	defer log.Sync()

	services := orchestrator.New(context.Background(), cfg, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.ErrorHandlingMiddleware(log))
	router.Use(middleware.RateLimitMiddleware(5, 10))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "travelorch", "version": "1.0.0"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/turn", func(c *gin.Context) {
			var req turnRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result := services.Turn(c.Request.Context(), req.SessionID, req.Message)
			c.JSON(http.StatusOK, result)
		})

		v1.POST("/edit", func(c *gin.Context) {
			var req editRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result := services.Edit(c.Request.Context(), req.SessionID, req.Command)
			c.JSON(http.StatusOK, result)
		})

		v1.POST("/explain", func(c *gin.Context) {
			var req explainRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result := services.Explain(c.Request.Context(), req.SessionID, req.Question)
			c.JSON(http.StatusOK, result)
		})
	}

	log.Infow("starting travelorch", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalw("server exited", "error", err)
	}
}
