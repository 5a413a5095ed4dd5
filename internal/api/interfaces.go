// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/conversion"
	"github.com/akabaki/saas-ui/internal/history"
	"github.com/akabaki/saas-ui/internal/models"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// FileHandler handles the upload list, preview and format selection
type FileHandler interface {
	HandleUploadFiles(c echo.Context) error
	HandleUploadJSON(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleGetPreview(c echo.Context) error
	HandleSelectFormat(c echo.Context) error
}

// JobHandler handles conversion batches and their jobs
type JobHandler interface {
	HandleConvert(c echo.Context) error
	HandleListJobs(c echo.Context) error
	HandleListJobsMsgpack(c echo.Context) error
	HandleGetJob(c echo.Context) error
	HandleJobProgressStream(c echo.Context) error
	HandleDownload(c echo.Context) error
	HandleHistory(c echo.Context) error
	HandleDashboardStats(c echo.Context) error
}

// ArtifactHandler exposes stored conversion outputs
type ArtifactHandler interface {
	HandleListArtifacts(c echo.Context) error
	HandleGetArtifact(c echo.Context) error
	HandleDeleteArtifact(c echo.Context) error
}

// NotificationHandler handles notification history and streaming
type NotificationHandler interface {
	HandleListNotifications(c echo.Context) error
	HandleNotificationSocket(c echo.Context) error
}

// OrganizationHandler handles organization management
type OrganizationHandler interface {
	HandleListOrganizations(c echo.Context) error
	HandleCreateOrganization(c echo.Context) error
	HandleGetOrganization(c echo.Context) error
	HandleUpdateOrganization(c echo.Context) error
	HandleSetOrganizationStatus(c echo.Context) error
	HandleDeleteOrganization(c echo.Context) error
}

// SettingsHandler handles application settings
type SettingsHandler interface {
	HandleGetSettings(c echo.Context) error
	HandleUpdateSettings(c echo.Context) error
	HandleResetSettings(c echo.Context) error
}

// Workspace defines the conversion workspace used by the handlers.
// This allows mocking in tests
type Workspace interface {
	AddFiles(files []models.UploadedFile) ([]models.UploadedFile, []string)
	RemoveFile(index int) error
	Files() []models.UploadedFile
	Preview() *models.Preview
	SelectFormat(name string) (models.OutputFormat, error)
	OutputFormat() models.OutputFormat
	StartBatch(ctx context.Context, orgID string) (string, error)
	Jobs() []models.ConversionJob
	Job(id string) (models.ConversionJob, error)
	Download(id string) (*conversion.Download, error)
	Stats() models.WorkspaceStats
	Processing() bool
}

// HistoryStore is the persisted job history.
type HistoryStore interface {
	List(ctx context.Context, params history.ListParams) ([]models.ConversionJob, int, error)
	Stats(ctx context.Context) (*models.DashboardStats, error)
}

// SettingsStore holds the editable application settings.
type SettingsStore interface {
	Get() models.Settings
	Update(next models.Settings) (models.Settings, error)
	Reset() (models.Settings, error)
}

// Notifier publishes user-facing notifications.
type Notifier interface {
	Notify(level models.NotificationLevel, title, description string, duration time.Duration) models.Notification
}

// NotificationSource is the notification hub read side.
type NotificationSource interface {
	Recent() []models.Notification
	Subscribe(buffer int) (<-chan models.Notification, func())
}
