package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"org-service/internal/handler"
	"org-service/internal/middleware"
	"org-service/pkg/config"
	"org-service/pkg/database"
	"org-service/pkg/jwtutil"
	"org-service/pkg/logger"
	"org-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting organization service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&jwtutil.Config{
		SigningKey:      cfg.JWT.SigningKey,
		ExpirationHours: cfg.JWT.ExpirationHours,
	})
	log.Info("JWT utility initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/login", handler.Login)
	auth.POST("/register", handler.Register)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Organization membership surface consumed by session cores
	orgs := api.Group("/organizations")
	orgs.POST("", handler.CreateOrganization)
	orgs.GET("", handler.ListUserOrganizations)
	orgs.PUT("/current", handler.SetCurrentOrganization)
	orgs.GET("/:id", handler.GetOrganization)
	orgs.GET("/:id/membership", handler.GetMembership)

	// Organization switching - issues a token with the new context
	orgAuth := api.Group("/org-auth")
	orgAuth.POST("/switch", handler.SwitchOrganization)

	// Organization user management - requires organization context
	orgUsers := api.Group("/organization-users")
	orgUsers.Use(middleware.RequireOrganizationContext)
	orgUsers.POST("", handler.AddUserToOrganization)
	orgUsers.DELETE("/:org_id/:user_id", handler.RemoveUserFromOrganization)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
