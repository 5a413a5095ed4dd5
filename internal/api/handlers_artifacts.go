// handlers_artifacts.go - Stored conversion output handlers
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/storage"
)

// ArtifactHandlerImpl implements the ArtifactHandler interface
type ArtifactHandlerImpl struct {
	store       storage.Store
	allowDelete bool
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(store storage.Store, allowDelete bool) ArtifactHandler {
	return &ArtifactHandlerImpl{store: store, allowDelete: allowDelete}
}

// HandleListArtifacts returns the most recent artifacts
func (h *ArtifactHandlerImpl) HandleListArtifacts(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list artifacts", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetArtifact streams an artifact
func (h *ArtifactHandlerImpl) HandleGetArtifact(c echo.Context) error {
	id := c.Param("id")
	rc, info, err := h.store.Open(id)
	if err != nil {
		return mapDomainError(err, "artifact", id)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", info.Name))
	return c.Stream(http.StatusOK, info.ContentType, rc)
}

// HandleDeleteArtifact removes an artifact
func (h *ArtifactHandlerImpl) HandleDeleteArtifact(c echo.Context) error {
	if !h.allowDelete {
		return NewForbiddenError("artifact deletion is disabled")
	}

	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return mapDomainError(err, "artifact", id)
	}
	return c.NoContent(http.StatusNoContent)
}
