package conversion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akabaki/saas-ui/internal/convert"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/parser"
)

var (
	ErrNoFiles         = errors.New("no files selected")
	ErrBatchInProgress = errors.New("a conversion batch is already running")
	ErrJobNotFound     = errors.New("job not found")
	ErrNotDownloadable = errors.New("job is not downloadable")
	ErrInvalidFormat   = errors.New("invalid output format")
	ErrInvalidIndex    = errors.New("file index out of range")
)

// Notification texts and durations shown to the user.
const (
	noFilesTitle       = "No files selected"
	noFilesDescription = "Please upload at least one file to convert."
	noFilesDuration    = 3 * time.Second

	completedTitle    = "Conversion completed"
	partialTitle      = "Conversion finished with errors"
	cancelledTitle    = "Conversion cancelled"
	summaryDuration   = 5 * time.Second
	downloadTitle     = "Download started"
	downloadDuration  = 3 * time.Second
	maxRejectedLogged = 10
)

// Converter turns one uploaded file into the requested output format.
type Converter interface {
	Convert(ctx context.Context, file models.UploadedFile, format models.OutputFormat) (*convert.Result, error)
}

// ArtifactStore persists converted outputs.
type ArtifactStore interface {
	SaveBytes(name string, data []byte) (*models.FileInfo, error)
	ReadBytes(id string) ([]byte, error)
	Delete(id string) error
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(level models.NotificationLevel, title, description string, duration time.Duration) models.Notification
}

// CompletionHook is called once for every job that reaches a terminal status.
type CompletionHook func(job models.ConversionJob)

// Download is the content of a completed job's output.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Manager owns the workspace state and runs conversion batches one at a time.
type Manager struct {
	mu    sync.RWMutex
	state State
	idle  chan struct{}

	registry  *parser.Registry
	converter Converter
	artifacts ArtifactStore
	notifier  Notifier
	hooks     []CompletionHook

	allowed        []string
	previewEnabled bool
	quotedPreview  bool

	// outputs holds converted data by job id when no ArtifactStore is configured.
	outputs map[string][]byte
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithArtifactStore(s ArtifactStore) Option {
	return func(m *Manager) { m.artifacts = s }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithCompletionHook(h CompletionHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

// WithAllowedExtensions replaces the intake allow-list.
func WithAllowedExtensions(exts []string) Option {
	return func(m *Manager) {
		if len(exts) > 0 {
			m.allowed = normalizeExtensions(exts)
		}
	}
}

// WithQuotedPreview previews text files with the CSV tokenizer instead of a literal split.
func WithQuotedPreview(quoted bool) Option {
	return func(m *Manager) { m.quotedPreview = quoted }
}

// WithOutputFormat sets the initially selected output format.
func WithOutputFormat(f models.OutputFormat) Option {
	return func(m *Manager) { m.state.OutputFormat = f }
}

// NewManager creates a workspace manager.
func NewManager(registry *parser.Registry, converter Converter, opts ...Option) *Manager {
	m := &Manager{
		state:          NewState(models.FormatJSON),
		registry:       registry,
		converter:      converter,
		allowed:        normalizeExtensions(parser.DefaultAcceptedExtensions),
		previewEnabled: true,
		outputs:        make(map[string][]byte),
		now:            time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) dispatch(e Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Reduce(m.state, e)
	return m.state
}

// Snapshot returns a copy of the current workspace state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// SetPreviewEnabled turns previews on or off for subsequent uploads.
func (m *Manager) SetPreviewEnabled(enabled bool) {
	m.mu.Lock()
	m.previewEnabled = enabled
	m.mu.Unlock()
}

// AddFiles appends the files whose extension is on the allow-list and returns the
// names of rejected files. The preview is rebuilt from the first accepted file.
func (m *Manager) AddFiles(files []models.UploadedFile) (accepted []models.UploadedFile, rejected []string) {
	accepted = make([]models.UploadedFile, 0, len(files))
	rejected = make([]string, 0)
	for _, f := range files {
		if m.isAllowed(f.Name) {
			accepted = append(accepted, f)
		} else {
			rejected = append(rejected, f.Name)
		}
	}
	if len(rejected) > 0 {
		shown := rejected
		if len(shown) > maxRejectedLogged {
			shown = shown[:maxRejectedLogged]
		}
		fmt.Printf("[Workspace] Rejected %d file(s): %s\n", len(rejected), strings.Join(shown, ", "))
	}
	if len(accepted) == 0 {
		return accepted, rejected
	}

	m.mu.RLock()
	enabled, quoted := m.previewEnabled, m.quotedPreview
	m.mu.RUnlock()

	var preview *models.Preview
	if enabled {
		preview = m.buildPreview(accepted[0], quoted)
	}

	m.dispatch(FilesAdded{Files: accepted, Preview: preview})
	fmt.Printf("[Workspace] Added %d file(s)\n", len(accepted))
	return accepted, rejected
}

func (m *Manager) buildPreview(file models.UploadedFile, quoted bool) *models.Preview {
	p, err := parser.PreviewFile(m.registry, file, quoted)
	if err != nil {
		fmt.Printf("[Workspace] Preview unavailable for %s: %v\n", file.Name, err)
		return &models.Preview{FileName: file.Name, Columns: []string{}, Rows: []models.PreviewRow{}}
	}
	return p
}

func (m *Manager) isAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range m.allowed {
		if a == ext {
			return true
		}
	}
	return false
}

// RemoveFile drops the pending file at index.
func (m *Manager) RemoveFile(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Processing {
		return ErrBatchInProgress
	}
	if index < 0 || index >= len(m.state.Files) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	m.state = Reduce(m.state, FileRemoved{Index: index})
	return nil
}

// SelectFormat sets the output format for the next batch.
func (m *Manager) SelectFormat(name string) (models.OutputFormat, error) {
	f, err := models.ParseOutputFormat(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, name)
	}
	m.dispatch(FormatSelected{Format: f})
	return f, nil
}

// Files returns the pending uploads.
func (m *Manager) Files() []models.UploadedFile {
	return m.Snapshot().Files
}

// Preview returns the current preview, or nil.
func (m *Manager) Preview() *models.Preview {
	return m.Snapshot().Preview
}

// OutputFormat returns the selected output format.
func (m *Manager) OutputFormat() models.OutputFormat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.OutputFormat
}

// Jobs returns the job history in creation order.
func (m *Manager) Jobs() []models.ConversionJob {
	return m.Snapshot().Jobs
}

// Job returns one job by id.
func (m *Manager) Job(id string) (models.ConversionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.state.Jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return models.ConversionJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// Stats returns the workspace counters.
func (m *Manager) Stats() models.WorkspaceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Stats()
}

// Processing reports whether a batch is running.
func (m *Manager) Processing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Processing
}

type batch struct {
	id     string
	files  []models.UploadedFile
	format models.OutputFormat
	orgID  string
	done   chan struct{}
}

// begin applies the convert guards and marks a batch as running.
func (m *Manager) begin(orgID string) (*batch, error) {
	m.mu.Lock()
	if len(m.state.Files) == 0 {
		m.mu.Unlock()
		m.notify(models.LevelWarning, noFilesTitle, noFilesDescription, noFilesDuration)
		return nil, ErrNoFiles
	}
	if m.state.Processing {
		m.mu.Unlock()
		return nil, ErrBatchInProgress
	}

	b := &batch{
		id:     uuid.New().String(),
		files:  append([]models.UploadedFile(nil), m.state.Files...),
		format: m.state.OutputFormat,
		orgID:  orgID,
		done:   make(chan struct{}),
	}
	m.idle = b.done
	m.state = Reduce(m.state, BatchStarted{BatchID: b.id})
	m.mu.Unlock()
	return b, nil
}

// StartBatch converts every pending file in the background and returns the batch id.
func (m *Manager) StartBatch(ctx context.Context, orgID string) (string, error) {
	b, err := m.begin(orgID)
	if err != nil {
		return "", err
	}
	go m.runBatch(ctx, b)
	return b.id, nil
}

// RunBatch converts every pending file and returns when the batch is finished.
func (m *Manager) RunBatch(ctx context.Context, orgID string) (string, error) {
	b, err := m.begin(orgID)
	if err != nil {
		return "", err
	}
	m.runBatch(ctx, b)
	return b.id, nil
}

// Wait blocks until no batch is running or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.RLock()
	idle := m.idle
	processing := m.state.Processing
	m.mu.RUnlock()
	if !processing || idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runBatch(ctx context.Context, b *batch) {
	start := time.Now()
	format := strings.ToUpper(string(b.format))
	fmt.Printf("[Batch %s] Starting %d file(s) -> %s\n", shortID(b.id), len(b.files), format)

	consumed, completed, failed := 0, 0, 0
	defer func() {
		m.dispatch(BatchFinished{Consumed: consumed})
		fmt.Printf("[Batch %s] Finished in %v: %d completed, %d failed, %d skipped\n",
			shortID(b.id), time.Since(start).Round(time.Millisecond), completed, failed, len(b.files)-consumed)
		m.notifySummary(b, format, completed, failed, consumed)
		close(b.done)
	}()

	for _, file := range b.files {
		if err := ctx.Err(); err != nil {
			fmt.Printf("[Batch %s] Stopping: %v\n", shortID(b.id), err)
			return
		}

		job := models.NewConversionJob(uuid.New().String(), b.id, file.Name, b.format, m.now())
		job.OrganizationID = b.orgID
		m.dispatch(JobStarted{Job: job})

		finished := m.runJob(ctx, job, file)
		consumed++
		if finished.Status == models.JobStatusCompleted {
			completed++
		} else {
			failed++
		}
		for _, h := range m.hooks {
			h(finished)
		}
	}
}

// runJob converts one file and moves its job to a terminal status.
func (m *Manager) runJob(ctx context.Context, job models.ConversionJob, file models.UploadedFile) (result models.ConversionJob) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Job %s] PANIC recovered: %v\n", shortID(job.ID), r)
			result = m.failJob(job.ID, fmt.Sprintf("conversion panicked: %v", r))
		}
	}()

	fmt.Printf("[Job %s] Converting %s (%d bytes) to %s\n", shortID(job.ID), file.Name, file.Size, job.OutputFormat)

	res, err := m.converter.Convert(ctx, file, models.OutputFormat(strings.ToLower(job.OutputFormat)))
	if err != nil {
		return m.failJob(job.ID, err.Error())
	}

	artifactID, err := m.storeOutput(job, res.Data)
	if err != nil {
		return m.failJob(job.ID, fmt.Sprintf("storing output: %v", err))
	}

	fmt.Printf("[Job %s] Completed: %d records\n", shortID(job.ID), res.RecordCount)
	return m.completeJob(job.ID, res.RecordCount, artifactID)
}

func (m *Manager) storeOutput(job models.ConversionJob, data []byte) (string, error) {
	if m.artifacts == nil {
		m.mu.Lock()
		m.outputs[job.ID] = data
		m.mu.Unlock()
		return job.ID, nil
	}
	info, err := m.artifacts.SaveBytes(DownloadFileName(job.FileName, job.OutputFormat), data)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (m *Manager) completeJob(id string, records int, artifactID string) models.ConversionJob {
	s := m.dispatch(JobCompleted{JobID: id, RecordCount: records, ArtifactID: artifactID, At: m.now()})
	return findJob(s.Jobs, id)
}

func (m *Manager) failJob(id, msg string) models.ConversionJob {
	fmt.Printf("[Job %s] Error: %s\n", shortID(id), msg)
	s := m.dispatch(JobFailed{JobID: id, Err: msg, At: m.now()})
	return findJob(s.Jobs, id)
}

func (m *Manager) notifySummary(b *batch, format string, completed, failed, consumed int) {
	total := len(b.files)
	switch {
	case consumed < total:
		m.notify(models.LevelWarning, cancelledTitle,
			fmt.Sprintf("Converted %d of %d file(s) to %s before the batch was cancelled.", completed, total, format),
			summaryDuration)
	case failed > 0:
		m.notify(models.LevelWarning, partialTitle,
			fmt.Sprintf("Converted %d of %d file(s) to %s; %d failed.", completed, total, format, failed),
			summaryDuration)
	default:
		m.notify(models.LevelSuccess, completedTitle,
			fmt.Sprintf("Successfully converted %d file(s) to %s.", total, format),
			summaryDuration)
	}
}

// Download returns the output of a completed job.
func (m *Manager) Download(id string) (*Download, error) {
	job, err := m.Job(id)
	if err != nil {
		return nil, err
	}
	if !job.Downloadable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotDownloadable, job.Status)
	}

	data, err := m.readOutput(job)
	if err != nil {
		return nil, err
	}

	m.notify(models.LevelInfo, downloadTitle, "Downloading "+job.FileName, downloadDuration)
	return &Download{
		FileName:    DownloadFileName(job.FileName, job.OutputFormat),
		ContentType: ContentTypeFor(job.OutputFormat),
		Data:        data,
	}, nil
}

func (m *Manager) readOutput(job models.ConversionJob) ([]byte, error) {
	if m.artifacts != nil {
		data, err := m.artifacts.ReadBytes(job.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %s: %w", job.ArtifactID, err)
		}
		return data, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.outputs[job.ArtifactID]
	if !ok {
		return nil, fmt.Errorf("output for job %s is no longer available", job.ID)
	}
	return data, nil
}

// CleanupOldJobs removes finished jobs older than maxAge from the history
// together with their stored outputs.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	before := m.state.Jobs
	m.state = Reduce(m.state, JobsPruned{Before: cutoff})

	kept := make(map[string]struct{}, len(m.state.Jobs))
	for _, j := range m.state.Jobs {
		kept[j.ID] = struct{}{}
	}
	var artifacts []string
	for _, j := range before {
		if _, ok := kept[j.ID]; ok {
			continue
		}
		if j.ArtifactID != "" && m.artifacts != nil {
			artifacts = append(artifacts, j.ArtifactID)
		}
	}
	for id := range m.outputs {
		if _, ok := kept[id]; !ok {
			delete(m.outputs, id)
		}
	}
	removed := len(before) - len(m.state.Jobs)
	m.mu.Unlock()

	for _, id := range artifacts {
		if err := m.artifacts.Delete(id); err != nil {
			fmt.Printf("[Cleanup] Failed to delete artifact %s: %v\n", id, err)
		}
	}
	return removed
}

func (m *Manager) notify(level models.NotificationLevel, title, description string, d time.Duration) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(level, title, description, d)
}

func findJob(jobs []models.ConversionJob, id string) models.ConversionJob {
	for _, j := range jobs {
		if j.ID == id {
			return j
		}
	}
	return models.ConversionJob{ID: id}
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
