// handlers_files.go - Upload list, preview and output format handlers
package api

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/models"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	workspace Workspace
}

// NewFileHandler creates a new file handler
func NewFileHandler(workspace Workspace) FileHandler {
	return &FileHandlerImpl{workspace: workspace}
}

type fileEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

type uploadResponse struct {
	Accepted []string        `json:"accepted"`
	Rejected []string        `json:"rejected"`
	Files    []fileEntry     `json:"files"`
	Preview  *models.Preview `json:"preview"`
}

// HandleUploadFiles accepts one or more files in the multipart "files" field
func (h *FileHandlerImpl) HandleUploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("multipart form required", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	files := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return NewBadRequestError("failed to open uploaded file", err)
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return NewBadRequestError("failed to read uploaded file", err)
		}
		files = append(files, models.NewUploadedFile(fh.Filename, content))
	}

	return h.add(c, files)
}

// HandleUploadJSON accepts files as base64 JSON
func (h *FileHandlerImpl) HandleUploadJSON(c echo.Context) error {
	var req struct {
		Files []struct {
			Name string `json:"name"`
			Data string `json:"data"` // Base64-encoded file content
		} `json:"files"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.Files) == 0 {
		return NewValidationError("files")
	}

	files := make([]models.UploadedFile, 0, len(req.Files))
	for i, f := range req.Files {
		if f.Name == "" {
			return NewValidationError(fmt.Sprintf("files[%d].name", i))
		}
		decoded, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return NewBadRequestError("invalid base64 data", err)
		}
		files = append(files, models.NewUploadedFile(f.Name, decoded))
	}

	return h.add(c, files)
}

func (h *FileHandlerImpl) add(c echo.Context, files []models.UploadedFile) error {
	accepted, rejected := h.workspace.AddFiles(files)

	names := make([]string, 0, len(accepted))
	for _, f := range accepted {
		names = append(names, f.Name)
	}
	if rejected == nil {
		rejected = []string{}
	}

	status := http.StatusCreated
	if len(accepted) == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, uploadResponse{
		Accepted: names,
		Rejected: rejected,
		Files:    h.entries(),
		Preview:  h.workspace.Preview(),
	})
}

func (h *FileHandlerImpl) entries() []fileEntry {
	files := h.workspace.Files()
	out := make([]fileEntry, len(files))
	for i, f := range files {
		out[i] = fileEntry{Index: i, Name: f.Name, Size: f.Size}
	}
	return out
}

// HandleListFiles returns the pending upload list
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, h.entries())
}

// HandleRemoveFile removes the file at the given index
func (h *FileHandlerImpl) HandleRemoveFile(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError("index")
	}
	if err := h.workspace.RemoveFile(index); err != nil {
		return mapDomainError(err, "file", c.Param("index"))
	}
	return c.JSON(http.StatusOK, h.entries())
}

// HandleGetPreview returns the current preview, or 204 when there is none
func (h *FileHandlerImpl) HandleGetPreview(c echo.Context) error {
	p := h.workspace.Preview()
	if p == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, p)
}

// HandleSelectFormat changes the output format for the next batch
func (h *FileHandlerImpl) HandleSelectFormat(c echo.Context) error {
	var req struct {
		Format string `json:"format"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Format == "" {
		return NewValidationError("format")
	}

	format, err := h.workspace.SelectFormat(req.Format)
	if err != nil {
		return mapDomainError(err, "format", req.Format)
	}
	return c.JSON(http.StatusOK, map[string]string{"format": string(format)})
}
