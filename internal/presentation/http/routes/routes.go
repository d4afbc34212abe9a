// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/splittest-go/internal/application/container"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/splittest-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	settings := container.Settings
	if settings.GinMode != "" {
		gin.SetMode(settings.GinMode)
	}

	r := gin.Default()
	r.Use(otelgin.Middleware(settings.ServiceName))
	r.Use(middleware.CORSMiddleware(settings.CORSAllowedOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.AuthService, settings.AuthCookieName, container.Logger)
	experimentHandlers := handlers.NewExperimentHandlers(container.ExperimentService, container.ActiveSetService, container.Logger)
	splitTestHandlers := handlers.NewSplitTestHandlers()

	// API routes with tenant middleware
	api := r.Group("/api/v1")
	api.Use(middleware.TenantMiddleware(container.TenantManager))
	api.Use(middleware.DomainValidationMiddleware(container.TenantManager.GetDetector()))
	api.Use(middleware.AuthMiddleware(container.AuthService, settings.AuthCookieName))
	{
		api.GET("/health", handlers.GetHealth)

		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandlers.PostLogin)
			auth.POST("/logout", authHandlers.PostLogout)
			auth.GET("/status", authHandlers.GetAuthStatus)
		}

		api.GET("/split-tests",
			middleware.SessionMiddleware(container.SessionService, settings),
			middleware.SplitTestMiddleware(container.RequestCoordinator, container.Logger),
			splitTestHandlers.GetAssignments,
		)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireStaff())
		{
			admin.GET("/experiments", experimentHandlers.GetAllExperiments)
			admin.POST("/experiments", experimentHandlers.CreateExperiment)
			admin.GET("/experiments/:uuid", experimentHandlers.GetExperimentByUUID)
			admin.PUT("/experiments/:uuid", experimentHandlers.UpdateExperiment)
			admin.DELETE("/experiments/:uuid", experimentHandlers.DeleteExperiment)
			admin.POST("/experiments/:uuid/cohorts", experimentHandlers.CreateCohort)

			admin.PUT("/cohorts/:uuid", experimentHandlers.UpdateCohort)
			admin.DELETE("/cohorts/:uuid", experimentHandlers.DeleteCohort)

			admin.POST("/cache/rebuild", experimentHandlers.PostRebuildCache)
			admin.GET("/active-set", experimentHandlers.GetActiveSet)
		}
	}

	return r
}
