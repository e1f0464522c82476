package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/api/handlers"
	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/config"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/ratelimit"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, logger *zap.Logger, h *handlers.Handler, auth middleware.Authenticator, limiter ratelimit.Limiter) (*gin.Engine, error) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := handlers.RegisterValidators(v); err != nil {
			return nil, fmt.Errorf("failed to register validators: %w", err)
		}
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimit(limiter, logger))
	router.Use(middleware.SecurityHeaders())

	// Health endpoints (no auth required)
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)

	api := router.Group("/api")
	api.Use(middleware.Auth(auth))
	{
		tickets := api.Group("/tickets")
		{
			tickets.POST("", h.CreateTicket)
			tickets.GET("", h.ListTickets)
			tickets.PUT("", h.UpdateTicketStatus)
			tickets.GET("/:id", h.GetTicket)
			tickets.GET("/:id/history", h.GetTicketHistory)
		}

		// Categorization edits, one route per project kind
		for _, kind := range []models.ProjectKind{models.ProjectKindAMS, models.ProjectKindBuild} {
			api.PATCH("/"+kind.RouteSegment()+"/tickets/:id", h.EditCategorization(kind))
		}

		messages := api.Group("/messages")
		{
			messages.POST("", h.CreateMessage)
			messages.GET("", h.ListMessages)
			messages.PATCH("/:id", h.UpdateMessage)
			messages.DELETE("/:id", h.DeleteMessage)
		}

		api.POST("/attachment", h.UploadAttachment)
		api.GET("/download", h.Download)

		resources := api.Group("/ticket-resources")
		{
			resources.GET("", h.ListResources)
			resources.POST("/link", h.LinkResource)
			resources.PUT("", h.SetMainResource)
			resources.DELETE("", h.UnlinkResource)
		}

		hours := api.Group("/ticket-hours")
		{
			hours.POST("", h.LogHours)
			hours.GET("", h.ListHours)
		}

		api.GET("/dashboard/hours", h.HoursDashboard)

		api.GET("/projects", h.ListProjects)
		api.GET("/lookups/:field", h.ListLookups)
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":       "NOT_FOUND",
				"message":    "The requested resource was not found",
				"request_id": c.GetString("request_id"),
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			},
		})
	})

	return router, nil
}
