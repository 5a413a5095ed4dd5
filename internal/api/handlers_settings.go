// handlers_settings.go - Settings handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/models"
)

const settingsNotificationDuration = 3 * time.Second

// SettingsHandlerImpl implements the SettingsHandler interface
type SettingsHandlerImpl struct {
	store    SettingsStore
	notifier Notifier
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore, notifier Notifier) SettingsHandler {
	return &SettingsHandlerImpl{store: store, notifier: notifier}
}

// HandleGetSettings returns the current settings
func (h *SettingsHandlerImpl) HandleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Get())
}

// HandleUpdateSettings merges the request body over the current settings and saves them
func (h *SettingsHandlerImpl) HandleUpdateSettings(c echo.Context) error {
	next := h.store.Get()
	if err := c.Bind(&next); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	saved, err := h.store.Update(next)
	if err != nil {
		return mapDomainError(err, "settings", "")
	}

	h.notify(models.LevelSuccess, "Settings saved", "Your settings have been updated successfully.")
	return c.JSON(http.StatusOK, saved)
}

// HandleResetSettings restores the default settings
func (h *SettingsHandlerImpl) HandleResetSettings(c echo.Context) error {
	saved, err := h.store.Reset()
	if err != nil {
		return NewInternalError("failed to reset settings", err)
	}

	h.notify(models.LevelInfo, "Settings reset", "All settings have been reset to default values.")
	return c.JSON(http.StatusOK, saved)
}

func (h *SettingsHandlerImpl) notify(level models.NotificationLevel, title, description string) {
	if h.notifier != nil {
		h.notifier.Notify(level, title, description, settingsNotificationDuration)
	}
}
