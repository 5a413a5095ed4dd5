package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akabaki/saas-ui/internal/convert"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/parser"
)

type recordedNotification struct {
	Level       models.NotificationLevel
	Title       string
	Description string
	Duration    time.Duration
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (f *fakeNotifier) Notify(level models.NotificationLevel, title, description string, d time.Duration) models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recordedNotification{level, title, description, d})
	return models.Notification{Level: level, Title: title, Description: description, DurationMs: d.Milliseconds()}
}

func (f *fakeNotifier) all() []recordedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedNotification(nil), f.sent...)
}

// funcConverter adapts a function to the Converter interface.
type funcConverter func(ctx context.Context, file models.UploadedFile, format models.OutputFormat) (*convert.Result, error)

func (f funcConverter) Convert(ctx context.Context, file models.UploadedFile, format models.OutputFormat) (*convert.Result, error) {
	return f(ctx, file, format)
}

type memArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
	seq  int
}

func (a *memArtifacts) SaveBytes(name string, data []byte) (*models.FileInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data == nil {
		a.data = make(map[string][]byte)
	}
	a.seq++
	id := fmt.Sprintf("art-%d-%s", a.seq, name)
	a.data[id] = data
	return &models.FileInfo{ID: id, Name: name, Size: int64(len(data))}, nil
}

func (a *memArtifacts) ReadBytes(id string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.data[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (a *memArtifacts) Delete(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.data[id]; !ok {
		return errors.New("not found")
	}
	delete(a.data, id)
	return nil
}

func (a *memArtifacts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.data)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	reg := parser.NewRegistry()
	opts = append([]Option{WithNotifier(n)}, opts...)
	return NewManager(reg, convert.NewConverter(reg), opts...), n
}

func TestManager_ConvertWithNoFiles(t *testing.T) {
	m, n := newTestManager(t)
	before := m.Snapshot()

	_, err := m.RunBatch(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = m.StartBatch(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoFiles)

	assert.Equal(t, before, m.Snapshot())
	assert.Equal(t, []recordedNotification{
		{models.LevelWarning, "No files selected", "Please upload at least one file to convert.", 3 * time.Second},
		{models.LevelWarning, "No files selected", "Please upload at least one file to convert.", 3 * time.Second},
	}, n.all())
}

func TestManager_AddFiles(t *testing.T) {
	m, _ := newTestManager(t)

	accepted, rejected := m.AddFiles([]models.UploadedFile{
		file("notes.txt", "x"),
		file("people.csv", "name,age\nalice,30\n, \nbob,25"),
		file("book.XLSX", "not really a workbook"),
		file("second.csv", "other,header\n1,2"),
	})

	assert.Equal(t, []string{"people.csv", "book.XLSX", "second.csv"}, names(accepted))
	assert.Equal(t, []string{"notes.txt"}, rejected)
	assert.Equal(t, 3, m.Stats().FilesReady)

	p := m.Preview()
	require.NotNil(t, p)
	assert.Equal(t, "people.csv", p.FileName)
	assert.Equal(t, []string{"name", "age"}, p.Columns)
	assert.Equal(t, []models.PreviewRow{
		{"name": "alice", "age": "30"},
		{"name": "bob", "age": "25"},
	}, p.Rows)
}

func TestManager_AddFilesPreviewsFirstOfEachDrop(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1")})
	m.AddFiles([]models.UploadedFile{file("b.csv", "b\n2"), file("c.csv", "c\n3")})

	assert.Equal(t, "b.csv", m.Preview().FileName)
	assert.Equal(t, []models.PreviewRow{{"b": "2"}}, m.Preview().Rows)
}

func TestManager_AddFilesOnlyRejected(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1")})

	accepted, rejected := m.AddFiles([]models.UploadedFile{file("b.json", "{}")})
	assert.Empty(t, accepted)
	assert.Equal(t, []string{"b.json"}, rejected)
	assert.Equal(t, "a.csv", m.Preview().FileName)
}

func TestManager_PreviewDisabled(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetPreviewEnabled(false)
	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1")})
	assert.Nil(t, m.Preview())
}

func TestManager_QuotedPreview(t *testing.T) {
	m, _ := newTestManager(t, WithQuotedPreview(true))
	m.AddFiles([]models.UploadedFile{file("a.csv", "name,city\n\"Doe, J\",Paris")})
	assert.Equal(t, "Doe, J", m.Preview().Rows[0]["name"])
}

func TestManager_RemoveFile(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1"), file("b.csv", "b\n2"), file("c.csv", "c\n3")})

	require.NoError(t, m.RemoveFile(1))
	assert.NotNil(t, m.Preview())
	assert.Equal(t, []string{"a.csv", "c.csv"}, names(m.Files()))

	require.NoError(t, m.RemoveFile(0))
	assert.Nil(t, m.Preview())
	assert.Equal(t, []string{"c.csv"}, names(m.Files()))

	assert.ErrorIs(t, m.RemoveFile(5), ErrInvalidIndex)
	assert.ErrorIs(t, m.RemoveFile(-1), ErrInvalidIndex)
}

func TestManager_SelectFormat(t *testing.T) {
	m, _ := newTestManager(t)

	f, err := m.SelectFormat("XML")
	require.NoError(t, err)
	assert.Equal(t, models.FormatXML, f)
	assert.Equal(t, models.FormatXML, m.OutputFormat())

	_, err = m.SelectFormat("yaml")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, models.FormatXML, m.OutputFormat())
}

func TestManager_RunBatch(t *testing.T) {
	m, n := newTestManager(t)
	m.AddFiles([]models.UploadedFile{
		file("customers.csv", "id,name\n1,ann\n2,ben\n3,cat"),
		file("orders.csv", "order\nA-1"),
	})
	_, err := m.SelectFormat("json")
	require.NoError(t, err)

	batchID, err := m.RunBatch(context.Background(), "org-1")
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "customers.csv", jobs[0].FileName)
	assert.Equal(t, "orders.csv", jobs[1].FileName)
	for _, j := range jobs {
		assert.Equal(t, models.JobStatusCompleted, j.Status)
		assert.Equal(t, "CSV", j.InputFormat)
		assert.Equal(t, "JSON", j.OutputFormat)
		assert.Equal(t, batchID, j.BatchID)
		assert.Equal(t, "org-1", j.OrganizationID)
		assert.NotNil(t, j.CompletedAt)
	}
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
	assert.Equal(t, 3, jobs[0].RecordCount)
	assert.Equal(t, 1, jobs[1].RecordCount)

	assert.Empty(t, m.Files())
	assert.Nil(t, m.Preview())
	assert.False(t, m.Processing())

	assert.Equal(t, []recordedNotification{
		{models.LevelSuccess, "Conversion completed", "Successfully converted 2 file(s) to JSON.", 5 * time.Second},
	}, n.all())
}

func TestManager_FailingFileDoesNotStopBatch(t *testing.T) {
	var hooked []models.ConversionJob
	m, n := newTestManager(t, WithCompletionHook(func(j models.ConversionJob) {
		hooked = append(hooked, j)
	}))
	m.AddFiles([]models.UploadedFile{
		file("good.csv", "a\n1"),
		file("empty.csv", ""),
		file("legacy.xls", "\xd0\xcf"),
		file("also-good.csv", "b\n2\n3"),
	})

	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)

	jobs := m.Jobs()
	require.Len(t, jobs, 4)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, models.JobStatusError, jobs[1].Status)
	assert.Contains(t, jobs[1].Error, parser.ErrEmptyFile.Error())
	assert.Equal(t, models.JobStatusError, jobs[2].Status)
	assert.Contains(t, jobs[2].Error, parser.ErrUnsupportedFormat.Error())
	assert.Equal(t, models.JobStatusCompleted, jobs[3].Status)
	assert.Equal(t, 2, jobs[3].RecordCount)

	require.Len(t, hooked, 4)
	for i := range hooked {
		assert.Equal(t, jobs[i], hooked[i])
	}

	assert.Equal(t, models.WorkspaceStats{TotalJobs: 4, Completed: 2, Failed: 2}, m.Stats())
	assert.Equal(t, []recordedNotification{
		{models.LevelWarning, "Conversion finished with errors", "Converted 2 of 4 file(s) to JSON; 2 failed.", 5 * time.Second},
	}, n.all())
}

func TestManager_OversizedFileFails(t *testing.T) {
	n := &fakeNotifier{}
	reg := parser.NewRegistry()
	m := NewManager(reg, convert.NewConverter(reg, convert.WithMaxFileSize(8)), WithNotifier(n))
	m.AddFiles([]models.UploadedFile{file("big.csv", "a,b,c\n1,2,3\n4,5,6")})

	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusError, m.Jobs()[0].Status)
	assert.Contains(t, m.Jobs()[0].Error, convert.ErrFileTooLarge.Error())
}

func TestManager_JobsRunStrictlyInOrder(t *testing.T) {
	var m *Manager
	var violations []string
	conv := funcConverter(func(ctx context.Context, f models.UploadedFile, format models.OutputFormat) (*convert.Result, error) {
		jobs := m.Jobs()
		for i, j := range jobs[:len(jobs)-1] {
			if !j.Status.Terminal() {
				violations = append(violations, fmt.Sprintf("job %d still %s while converting %s", i, j.Status, f.Name))
			}
		}
		if last := jobs[len(jobs)-1]; last.FileName != f.Name || last.Status != models.JobStatusProcessing {
			violations = append(violations, "unexpected current job "+last.FileName)
		}
		return &convert.Result{RecordCount: 1, Data: []byte("[]")}, nil
	})
	m = NewManager(parser.NewRegistry(), conv)
	m.AddFiles([]models.UploadedFile{file("1.csv", "a"), file("2.csv", "a"), file("3.csv", "a")})

	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Len(t, m.Jobs(), 3)
}

func TestManager_PanicMarksJobError(t *testing.T) {
	conv := funcConverter(func(ctx context.Context, f models.UploadedFile, format models.OutputFormat) (*convert.Result, error) {
		if f.Name == "boom.csv" {
			panic("bad input")
		}
		return &convert.Result{RecordCount: 1, Data: []byte("[]")}, nil
	})
	m := NewManager(parser.NewRegistry(), conv)
	m.AddFiles([]models.UploadedFile{file("boom.csv", "a"), file("ok.csv", "a")})

	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)

	jobs := m.Jobs()
	assert.Equal(t, models.JobStatusError, jobs[0].Status)
	assert.Contains(t, jobs[0].Error, "bad input")
	assert.Equal(t, models.JobStatusCompleted, jobs[1].Status)
}

func TestManager_DownloadOnlyWhenCompleted(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	conv := funcConverter(func(ctx context.Context, f models.UploadedFile, format models.OutputFormat) (*convert.Result, error) {
		started <- struct{}{}
		<-release
		return &convert.Result{RecordCount: 2, Data: []byte("<records/>"), ContentType: "application/xml"}, nil
	})
	n := &fakeNotifier{}
	m := NewManager(parser.NewRegistry(), conv, WithNotifier(n), WithArtifactStore(&memArtifacts{}))
	m.AddFiles([]models.UploadedFile{file("customers.csv", "a\n1")})
	_, err := m.SelectFormat("xml")
	require.NoError(t, err)

	_, err = m.StartBatch(context.Background(), "")
	require.NoError(t, err)
	<-started

	jobs := m.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusProcessing, jobs[0].Status)
	assert.True(t, m.Processing())

	_, err = m.Download(jobs[0].ID)
	assert.ErrorIs(t, err, ErrNotDownloadable)

	_, err = m.StartBatch(context.Background(), "")
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.ErrorIs(t, m.RemoveFile(0), ErrBatchInProgress)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))

	d, err := m.Download(jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "customers.xml", d.FileName)
	assert.Equal(t, "application/xml", d.ContentType)
	assert.Equal(t, "<records/>", string(d.Data))

	sent := n.all()
	require.Len(t, sent, 2)
	assert.Equal(t, recordedNotification{models.LevelInfo, "Download started", "Downloading customers.csv", 3 * time.Second}, sent[1])

	_, err = m.Download("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_DownloadWithoutArtifactStore(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddFiles([]models.UploadedFile{file("people.csv", "name\nann")})
	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)

	d, err := m.Download(m.Jobs()[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "people.json", d.FileName)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(d.Data, &rows))
	assert.Equal(t, []map[string]string{{"name": "ann"}}, rows)
}

func TestManager_CancelledBatchKeepsRemainingFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &fakeNotifier{}
	reg := parser.NewRegistry()
	m := NewManager(reg, convert.NewConverter(reg), WithNotifier(n), WithCompletionHook(func(models.ConversionJob) {
		cancel()
	}))
	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1"), file("b.csv", "b\n2"), file("c.csv", "c\n3")})

	_, err := m.RunBatch(ctx, "")
	require.NoError(t, err)

	assert.Len(t, m.Jobs(), 1)
	assert.Equal(t, []string{"b.csv", "c.csv"}, names(m.Files()))
	assert.False(t, m.Processing())

	sent := n.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Conversion cancelled", sent[0].Title)
}

func TestManager_CleanupOldJobs(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1")})
	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(10 * time.Minute) }
	assert.Equal(t, 0, m.CleanupOldJobs(time.Hour))
	assert.Len(t, m.Jobs(), 1)

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 1, m.CleanupOldJobs(time.Hour))
	assert.Empty(t, m.Jobs())
	assert.Empty(t, m.outputs)
}

func TestManager_CleanupOldJobsDeletesArtifacts(t *testing.T) {
	store := &memArtifacts{}
	m, _ := newTestManager(t, WithArtifactStore(store))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.AddFiles([]models.UploadedFile{file("a.csv", "a\n1"), file("b.csv", "b\n2")})
	_, err := m.RunBatch(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 2, store.count())

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Equal(t, 2, m.CleanupOldJobs(time.Hour))
	assert.Zero(t, store.count())
}
