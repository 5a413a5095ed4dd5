package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/akabaki/saas-ui/internal/conversion"
	"github.com/akabaki/saas-ui/internal/convert"
	"github.com/akabaki/saas-ui/internal/history"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/notify"
	"github.com/akabaki/saas-ui/internal/organization"
	"github.com/akabaki/saas-ui/internal/parser"
	"github.com/akabaki/saas-ui/internal/settings"
	"github.com/akabaki/saas-ui/internal/testutil"
)

type testEnv struct {
	e         *echo.Echo
	handlers  *Handlers
	manager   *conversion.Manager
	notifier  *testutil.MockNotifier
	artifacts *testutil.MockStorage
	orgs      *organization.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg := parser.NewRegistry()
	notifier := testutil.NewMockNotifier()
	artifacts := testutil.NewMockStorage()
	orgs := organization.NewMemoryStore()
	settingsStore, err := settings.Open("")
	require.NoError(t, err)

	mgr := conversion.NewManager(reg, convert.NewConverter(reg),
		conversion.WithArtifactStore(artifacts),
		conversion.WithNotifier(notifier),
	)

	handlers := NewHandlers(&Dependencies{
		BaseContext:           context.Background(),
		Workspace:             mgr,
		Organizations:         orgs,
		Settings:              settingsStore,
		Artifacts:             artifacts,
		Notifications:         notify.NewHub(10),
		Notifier:              notifier,
		AllowArtifactDeletion: false,
		ProgressInterval:      10 * time.Millisecond,
		Version:               "test",
	})

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, handlers)

	return &testEnv{
		e:         e,
		handlers:  handlers,
		manager:   mgr,
		notifier:  notifier,
		artifacts: artifacts,
		orgs:      orgs,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (env *testEnv) upload(t *testing.T, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func asAPIError(t *testing.T, err error) *APIError {
	t.Helper()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	return apiErr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version":"test"`)
}

func TestUploadFiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, map[string]string{
		"people.csv": "name,age\nalice,30\nbob,25\n",
		"notes.txt":  "ignored",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"people.csv"}, resp.Accepted)
	assert.Equal(t, []string{"notes.txt"}, resp.Rejected)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, int64(len("name,age\nalice,30\nbob,25\n")), resp.Files[0].Size)
	require.NotNil(t, resp.Preview)
	assert.Equal(t, "people.csv", resp.Preview.FileName)
	assert.Equal(t, []models.PreviewRow{
		{"name": "alice", "age": "30"},
		{"name": "bob", "age": "25"},
	}, resp.Preview.Rows)

	rec = env.do(t, http.MethodGet, "/api/preview", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fileName":"people.csv"`)
}

func TestUploadFiles_OnlyRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, map[string]string{"image.png": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.manager.Files())

	rec = env.do(t, http.MethodGet, "/api/preview", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUploadJSON(t *testing.T) {
	env := newTestEnv(t)
	data := base64.StdEncoding.EncodeToString([]byte("a,b\n1,2\n"))

	rec := env.do(t, http.MethodPost, "/api/files/json", `{"files":[{"name":"x.csv","data":"`+data+`"}]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, env.manager.Files(), 1)

	req := httptest.NewRequest(http.MethodPost, "/api/files/json", strings.NewReader(`{"files":[{"name":"x.csv","data":"%%%"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := env.e.NewContext(req, httptest.NewRecorder())
	err := env.handlers.Files.HandleUploadJSON(c)
	assert.Equal(t, http.StatusBadRequest, asAPIError(t, err).Status)

	req = httptest.NewRequest(http.MethodPost, "/api/files/json", strings.NewReader(`{"files":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = env.e.NewContext(req, httptest.NewRecorder())
	err = env.handlers.Files.HandleUploadJSON(c)
	assert.Equal(t, "VALIDATION_ERROR", asAPIError(t, err).Code)
}

func TestRemoveFile(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, map[string]string{"a.csv": "x\n1\n"})

	rec := env.do(t, http.MethodDelete, "/api/files/3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/files/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = env.do(t, http.MethodDelete, "/api/files/0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSelectFormat(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/format", `{"format":"XML"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.FormatXML, env.manager.OutputFormat())

	rec = env.do(t, http.MethodPut, "/api/format", `{"format":"yaml"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.FormatXML, env.manager.OutputFormat())
}

func TestConvertAndDownload(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, map[string]string{"people.csv": "name,age\nalice,30\nbob,25\n"})

	rec := env.do(t, http.MethodPost, "/api/convert", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"batchId"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.manager.Wait(ctx))

	rec = env.do(t, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []models.ConversionJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, 2, jobs[0].RecordCount)
	assert.Equal(t, "JSON", jobs[0].OutputFormat)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobs[0].ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobs[0].ID+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="people.json"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Contains(t, rec.Body.String(), `"name": "alice"`)

	assert.Equal(t, []string{"Conversion completed", "Download started"}, env.notifier.Titles())
	assert.Empty(t, env.manager.Files())
	assert.Equal(t, 1, env.artifacts.GetFileCount())
}

func TestConvert_NoFiles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/convert", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"No files selected"}, env.notifier.Titles())
}

func TestConvert_UnknownOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, map[string]string{"a.csv": "x\n1\n"})

	rec := env.do(t, http.MethodPost, "/api/convert", `{"organizationId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.manager.Processing())
}

func TestJobNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/jobs/nope/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsMsgpack(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, map[string]string{"a.csv": "x\n1\n", "b.csv": ""})
	_, err := env.manager.RunBatch(context.Background(), "")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/jobs/msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var decoded struct {
		Jobs []models.ConversionJob `msgpack:"jobs"`
	}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Len(t, decoded.Jobs, 2)

	statuses := map[models.JobStatus]int{}
	for _, j := range decoded.Jobs {
		statuses[j.Status]++
	}
	assert.Equal(t, 1, statuses[models.JobStatusCompleted])
	assert.Equal(t, 1, statuses[models.JobStatusError])
}

func TestJobProgressStream_Idle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/jobs/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "data: "))
	assert.Contains(t, rec.Body.String(), `"processing":false`)
}

func TestHistory_Disabled(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeHistory struct {
	got   history.ListParams
	jobs  []models.ConversionJob
	stats models.DashboardStats
}

func (f *fakeHistory) List(ctx context.Context, params history.ListParams) ([]models.ConversionJob, int, error) {
	f.got = params
	return f.jobs, len(f.jobs), nil
}

func (f *fakeHistory) Stats(ctx context.Context) (*models.DashboardStats, error) {
	s := f.stats
	return &s, nil
}

func TestHistory_Filters(t *testing.T) {
	env := newTestEnv(t)
	hist := &fakeHistory{jobs: []models.ConversionJob{{ID: "j1", Status: models.JobStatusCompleted}}}
	h := NewJobHandler(context.Background(), env.manager, hist, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/history?status=completed&format=xml&search=sales&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if assert.NoError(t, h.HandleHistory(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":1`)
	}
	assert.Equal(t, history.ListParams{
		Status:       models.JobStatusCompleted,
		OutputFormat: "XML",
		Search:       "sales",
		Limit:        10,
		Offset:       20,
	}, hist.got)

	for _, query := range []string{"limit=-1", "offset=x", "status=done"} {
		req = httptest.NewRequest(http.MethodGet, "/api/history?"+query, nil)
		c = env.e.NewContext(req, httptest.NewRecorder())
		assert.Equal(t, "VALIDATION_ERROR", asAPIError(t, h.HandleHistory(c)).Code, query)
	}
}

func TestDashboardStats_FromHistory(t *testing.T) {
	env := newTestEnv(t)
	hist := &fakeHistory{stats: models.DashboardStats{
		TotalJobs:    7,
		Completed:    6,
		Failed:       1,
		TotalRecords: 1200,
		ByFormat:     map[string]int{"JSON": 4, "XML": 3},
	}}
	h := NewJobHandler(context.Background(), env.manager, hist, env.orgs, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	require.NoError(t, h.HandleDashboardStats(c))

	var stats models.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.TotalJobs)
	assert.Equal(t, int64(1200), stats.TotalRecords)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 0, stats.Organizations)
}

func TestDashboardStats_FromWorkspace(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, map[string]string{"a.csv": "x\n1\n2\n", "b.csv": ""})
	_, err := env.manager.RunBatch(context.Background(), "")
	require.NoError(t, err)
	_, err = env.orgs.Create(context.Background(), models.OrganizationInput{
		Name: "Acme", Email: "ops@acme.test", ContactPerson: "Ann",
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/dashboard/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, int64(2), stats.TotalRecords)
	assert.Equal(t, map[string]int{"JSON": 2}, stats.ByFormat)
	assert.Equal(t, 1, stats.Organizations)
}
