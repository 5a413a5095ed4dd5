// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/akabaki/saas-ui/internal/organization"
	"github.com/akabaki/saas-ui/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	// BaseContext scopes background batches; cancelled on shutdown.
	BaseContext   context.Context
	Workspace     Workspace
	History       HistoryStore // nil when persistence is disabled
	Organizations organization.Store
	Settings      SettingsStore
	Artifacts     storage.Store
	Notifications NotificationSource
	Notifier      Notifier

	AllowArtifactDeletion bool
	ProgressInterval      time.Duration
	WebSocketMaxMessage   int64
	Version               string
}

// Handlers holds all handler instances
type Handlers struct {
	Health        HealthHandler
	Files         FileHandler
	Jobs          JobHandler
	Artifacts     ArtifactHandler
	Notifications NotificationHandler
	Organizations OrganizationHandler
	Settings      SettingsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:        NewHealthHandler(deps.Version),
		Files:         NewFileHandler(deps.Workspace),
		Jobs:          NewJobHandler(deps.BaseContext, deps.Workspace, deps.History, deps.Organizations, deps.ProgressInterval),
		Artifacts:     NewArtifactHandler(deps.Artifacts, deps.AllowArtifactDeletion),
		Notifications: NewNotificationHandler(deps.Notifications, deps.WebSocketMaxMessage),
		Organizations: NewOrganizationHandler(deps.Organizations, deps.Notifier),
		Settings:      NewSettingsHandler(deps.Settings, deps.Notifier),
	}
}

// RegisterRoutes registers all API routes under /api
func RegisterRoutes(e *echo.Echo, handlers *Handlers, mws ...echo.MiddlewareFunc) {
	apiGroup := e.Group("/api", mws...)

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Upload list and preview
	apiGroup.POST("/files", handlers.Files.HandleUploadFiles)
	apiGroup.POST("/files/json", handlers.Files.HandleUploadJSON)
	apiGroup.GET("/files", handlers.Files.HandleListFiles)
	apiGroup.DELETE("/files/:index", handlers.Files.HandleRemoveFile)
	apiGroup.GET("/preview", handlers.Files.HandleGetPreview)
	apiGroup.PUT("/format", handlers.Files.HandleSelectFormat)

	// Conversion
	apiGroup.POST("/convert", handlers.Jobs.HandleConvert)
	apiGroup.GET("/jobs", handlers.Jobs.HandleListJobs)
	apiGroup.GET("/jobs/msgpack", handlers.Jobs.HandleListJobsMsgpack)
	apiGroup.GET("/jobs/progress", handlers.Jobs.HandleJobProgressStream)
	apiGroup.GET("/jobs/:id", handlers.Jobs.HandleGetJob)
	apiGroup.GET("/jobs/:id/download", handlers.Jobs.HandleDownload)
	apiGroup.GET("/history", handlers.Jobs.HandleHistory)
	apiGroup.GET("/dashboard/stats", handlers.Jobs.HandleDashboardStats)

	// Artifacts
	apiGroup.GET("/artifacts", handlers.Artifacts.HandleListArtifacts)
	apiGroup.GET("/artifacts/:id", handlers.Artifacts.HandleGetArtifact)
	apiGroup.DELETE("/artifacts/:id", handlers.Artifacts.HandleDeleteArtifact)

	// Notifications
	apiGroup.GET("/notifications", handlers.Notifications.HandleListNotifications)
	apiGroup.GET("/ws/notifications", handlers.Notifications.HandleNotificationSocket)

	// Organizations
	orgGroup := apiGroup.Group("/organizations")
	orgGroup.GET("", handlers.Organizations.HandleListOrganizations)
	orgGroup.POST("", handlers.Organizations.HandleCreateOrganization)
	orgGroup.GET("/:id", handlers.Organizations.HandleGetOrganization)
	orgGroup.PUT("/:id", handlers.Organizations.HandleUpdateOrganization)
	orgGroup.PUT("/:id/status", handlers.Organizations.HandleSetOrganizationStatus)
	orgGroup.DELETE("/:id", handlers.Organizations.HandleDeleteOrganization)

	// Settings
	apiGroup.GET("/settings", handlers.Settings.HandleGetSettings)
	apiGroup.PUT("/settings", handlers.Settings.HandleUpdateSettings)
	apiGroup.POST("/settings/reset", handlers.Settings.HandleResetSettings)
}

// MiddlewareConfig carries the config values the middleware stack needs
type MiddlewareConfig struct {
	EnableRequestLogging bool
	RequestTimeout       time.Duration
	BodyLimit            string
	EnableCORS           bool
	AllowOrigins         string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      cfg.RequestTimeout,
			Skipper:      isStreamingRequest,
			ErrorMessage: "Request timeout",
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := splitOrigins(cfg.AllowOrigins)
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}))
	}
}

// TokenAuth requires "Authorization: Bearer <token>" on every route except health.
func TokenAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/health")
		},
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	})
}

func isStreamingRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasSuffix(path, "/progress") ||
		strings.Contains(path, "/ws/") ||
		c.Request().Header.Get("Accept") == "text/event-stream"
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
