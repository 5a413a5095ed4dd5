// handlers_organizations.go - Organization management handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/organization"
)

const orgNotificationDuration = 3 * time.Second

// OrganizationHandlerImpl implements the OrganizationHandler interface
type OrganizationHandlerImpl struct {
	store    organization.Store
	notifier Notifier
}

// NewOrganizationHandler creates a new organization handler
func NewOrganizationHandler(store organization.Store, notifier Notifier) OrganizationHandler {
	return &OrganizationHandlerImpl{store: store, notifier: notifier}
}

// HandleListOrganizations returns every organization
func (h *OrganizationHandlerImpl) HandleListOrganizations(c echo.Context) error {
	orgs, err := h.store.List(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list organizations", err)
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	return c.JSON(http.StatusOK, orgs)
}

// HandleCreateOrganization validates and stores a new organization
func (h *OrganizationHandlerImpl) HandleCreateOrganization(c echo.Context) error {
	var in models.OrganizationInput
	if err := c.Bind(&in); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	org, err := h.store.Create(c.Request().Context(), in)
	if err != nil {
		return mapDomainError(err, "organization", "")
	}

	h.notify(models.LevelSuccess, "Organization added", "New organization has been added successfully.")
	return c.JSON(http.StatusCreated, org)
}

// HandleGetOrganization returns one organization
func (h *OrganizationHandlerImpl) HandleGetOrganization(c echo.Context) error {
	id := c.Param("id")
	org, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return mapDomainError(err, "organization", id)
	}
	return c.JSON(http.StatusOK, org)
}

// HandleUpdateOrganization replaces the editable fields of an organization
func (h *OrganizationHandlerImpl) HandleUpdateOrganization(c echo.Context) error {
	id := c.Param("id")
	var in models.OrganizationInput
	if err := c.Bind(&in); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	org, err := h.store.Update(c.Request().Context(), id, in)
	if err != nil {
		return mapDomainError(err, "organization", id)
	}

	h.notify(models.LevelSuccess, "Organization updated", "Organization details have been updated successfully.")
	return c.JSON(http.StatusOK, org)
}

// HandleSetOrganizationStatus activates or deactivates an organization
func (h *OrganizationHandlerImpl) HandleSetOrganizationStatus(c echo.Context) error {
	id := c.Param("id")
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	status, err := organization.ParseStatus(req.Status)
	if err != nil {
		return NewValidationError("status")
	}

	org, err := h.store.SetStatus(c.Request().Context(), id, status)
	if err != nil {
		return mapDomainError(err, "organization", id)
	}

	h.notify(models.LevelSuccess, "Organization updated", "Organization details have been updated successfully.")
	return c.JSON(http.StatusOK, org)
}

// HandleDeleteOrganization removes an organization
func (h *OrganizationHandlerImpl) HandleDeleteOrganization(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return mapDomainError(err, "organization", id)
	}

	h.notify(models.LevelInfo, "Organization deleted", "Organization has been removed successfully.")
	return c.NoContent(http.StatusNoContent)
}

func (h *OrganizationHandlerImpl) notify(level models.NotificationLevel, title, description string) {
	if h.notifier != nil {
		h.notifier.Notify(level, title, description, orgNotificationDuration)
	}
}
