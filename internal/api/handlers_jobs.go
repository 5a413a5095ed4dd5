// handlers_jobs.go - Conversion batch, job and dashboard handlers
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/akabaki/saas-ui/internal/history"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/organization"
)

const (
	defaultProgressInterval = 500 * time.Millisecond
	progressStreamTimeout   = 30 * time.Minute
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	workspace Workspace
	history   HistoryStore
	orgs      organization.Store

	// baseCtx outlives the request that starts a batch.
	baseCtx          context.Context
	progressInterval time.Duration
}

// NewJobHandler creates a new job handler. history and orgs may be nil.
func NewJobHandler(baseCtx context.Context, workspace Workspace, hist HistoryStore, orgs organization.Store, progressInterval time.Duration) JobHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	return &JobHandlerImpl{
		workspace:        workspace,
		history:          hist,
		orgs:             orgs,
		baseCtx:          baseCtx,
		progressInterval: progressInterval,
	}
}

// HandleConvert starts a batch over every pending file
func (h *JobHandlerImpl) HandleConvert(c echo.Context) error {
	var req struct {
		OrganizationID string `json:"organizationId"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if req.OrganizationID != "" && h.orgs != nil {
		if _, err := h.orgs.Get(c.Request().Context(), req.OrganizationID); err != nil {
			return mapDomainError(err, "organization", req.OrganizationID)
		}
	}

	batchID, err := h.workspace.StartBatch(h.baseCtx, req.OrganizationID)
	if err != nil {
		return mapDomainError(err, "batch", "")
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"batchId":  batchID,
		"format":   h.workspace.OutputFormat(),
		"progress": "/api/jobs/progress",
	})
}

// HandleListJobs returns the workspace job list in creation order
func (h *JobHandlerImpl) HandleListJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs())
}

// HandleListJobsMsgpack returns the workspace job list encoded as msgpack
func (h *JobHandlerImpl) HandleListJobsMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(map[string]interface{}{
		"jobs":  h.jobs(),
		"stats": h.workspace.Stats(),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *JobHandlerImpl) jobs() []models.ConversionJob {
	jobs := h.workspace.Jobs()
	if jobs == nil {
		jobs = []models.ConversionJob{}
	}
	return jobs
}

// HandleGetJob returns a single job
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("id")
	job, err := h.workspace.Job(id)
	if err != nil {
		return mapDomainError(err, "job", id)
	}
	return c.JSON(http.StatusOK, job)
}

type progressEvent struct {
	Processing bool                   `json:"processing"`
	Jobs       []models.ConversionJob `json:"jobs"`
	Stats      models.WorkspaceStats  `json:"stats"`
}

// HandleJobProgressStream streams the job list via SSE until no batch is running
func (h *JobHandlerImpl) HandleJobProgressStream(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	// The stream lives as long as the batch, past the server write timeout.
	_ = http.NewResponseController(c.Response().Writer).SetWriteDeadline(time.Time{})
	c.Response().WriteHeader(http.StatusOK)

	h.sendProgress(c)
	if !h.workspace.Processing() {
		return nil
	}

	ticker := time.NewTicker(h.progressInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(progressStreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			processing := h.sendProgress(c)
			if !processing {
				return nil
			}

		case <-c.Request().Context().Done():
			return nil

		case <-timeout.C:
			sendSSEData(c, map[string]string{"error": "stream timeout"})
			return nil
		}
	}
}

func (h *JobHandlerImpl) sendProgress(c echo.Context) bool {
	processing := h.workspace.Processing()
	sendSSEData(c, progressEvent{
		Processing: processing,
		Jobs:       h.jobs(),
		Stats:      h.workspace.Stats(),
	})
	return processing
}

func sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

// HandleDownload sends the converted output of a completed job
func (h *JobHandlerImpl) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	dl, err := h.workspace.Download(id)
	if err != nil {
		return mapDomainError(err, "job", id)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.FileName))
	return c.Blob(http.StatusOK, dl.ContentType, dl.Data)
}

// HandleHistory returns persisted jobs with optional filters
func (h *JobHandlerImpl) HandleHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("history persistence is disabled")
	}

	status := models.JobStatus(c.QueryParam("status"))
	switch status {
	case "", models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusError:
	default:
		return NewValidationError("status")
	}

	params := history.ListParams{
		Status:         status,
		OutputFormat:   strings.ToUpper(c.QueryParam("format")),
		OrganizationID: c.QueryParam("organizationId"),
		Search:         c.QueryParam("search"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		params.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("offset")
		}
		params.Offset = n
	}

	jobs, total, err := h.history.List(c.Request().Context(), params)
	if err != nil {
		return NewInternalError("failed to query history", err)
	}
	if jobs == nil {
		jobs = []models.ConversionJob{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"total": total,
	})
}

// HandleDashboardStats aggregates history, live batch state and organizations
func (h *JobHandlerImpl) HandleDashboardStats(c echo.Context) error {
	ctx := c.Request().Context()
	live := h.workspace.Stats()

	var stats *models.DashboardStats
	if h.history != nil {
		s, err := h.history.Stats(ctx)
		if err != nil {
			return NewInternalError("failed to compute stats", err)
		}
		stats = s
		stats.Processing = live.Processing
	} else {
		stats = statsFromJobs(h.workspace.Jobs())
	}

	if h.orgs != nil {
		n, err := h.orgs.Count(ctx)
		if err != nil {
			return NewInternalError("failed to count organizations", err)
		}
		stats.Organizations = n
	}
	return c.JSON(http.StatusOK, stats)
}

func statsFromJobs(jobs []models.ConversionJob) *models.DashboardStats {
	stats := &models.DashboardStats{ByFormat: map[string]int{}}
	for _, j := range jobs {
		stats.TotalJobs++
		stats.ByFormat[j.OutputFormat]++
		switch j.Status {
		case models.JobStatusCompleted:
			stats.Completed++
			stats.TotalRecords += int64(j.RecordCount)
		case models.JobStatusError:
			stats.Failed++
		case models.JobStatusProcessing:
			stats.Processing++
		}
	}
	return stats
}
