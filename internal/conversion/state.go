// Package conversion tracks uploaded files and conversion jobs for a workspace.
//
// All workspace state lives in a State value that only changes through Reduce.
// Manager owns one State, serializes access to it and runs conversion batches.
package conversion

import (
	"time"

	"github.com/akabaki/saas-ui/internal/models"
)

// State is the complete workspace: pending uploads, the current preview,
// the job history, the selected output format and whether a batch is running.
type State struct {
	Files        []models.UploadedFile
	Preview      *models.Preview
	Jobs         []models.ConversionJob
	OutputFormat models.OutputFormat
	Processing   bool
	BatchID      string
}

// NewState returns an empty workspace with the given output format selected.
func NewState(format models.OutputFormat) State {
	return State{
		Files:        []models.UploadedFile{},
		Jobs:         []models.ConversionJob{},
		OutputFormat: format,
	}
}

// Event is a state transition understood by Reduce.
type Event interface {
	isEvent()
}

// FilesAdded appends accepted files. A non-nil Preview replaces the current one.
type FilesAdded struct {
	Files   []models.UploadedFile
	Preview *models.Preview
}

// FileRemoved drops the file at Index. Removing index 0 clears the preview.
type FileRemoved struct {
	Index int
}

// FormatSelected changes the output format for the next batch.
type FormatSelected struct {
	Format models.OutputFormat
}

// BatchStarted marks a batch as running.
type BatchStarted struct {
	BatchID string
}

// JobStarted appends a job to the history.
type JobStarted struct {
	Job models.ConversionJob
}

// JobCompleted moves a processing job to completed.
type JobCompleted struct {
	JobID       string
	RecordCount int
	ArtifactID  string
	At          time.Time
}

// JobFailed moves a processing job to error.
type JobFailed struct {
	JobID string
	Err   string
	At    time.Time
}

// BatchFinished ends the running batch. The first Consumed files were converted
// and leave the upload list. The preview survives only if it shows a file that
// is still in the list, such as one dropped while the batch ran.
type BatchFinished struct {
	Consumed int
}

// JobsPruned removes terminal jobs that finished before Before.
type JobsPruned struct {
	Before time.Time
}

func (FilesAdded) isEvent()     {}
func (FileRemoved) isEvent()    {}
func (FormatSelected) isEvent() {}
func (BatchStarted) isEvent()   {}
func (JobStarted) isEvent()     {}
func (JobCompleted) isEvent()   {}
func (JobFailed) isEvent()      {}
func (BatchFinished) isEvent()  {}
func (JobsPruned) isEvent()     {}

// Reduce returns the state that results from applying e to s.
// s is never modified; slices that change are copied first.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case FilesAdded:
		if len(ev.Files) == 0 {
			return s
		}
		files := make([]models.UploadedFile, 0, len(s.Files)+len(ev.Files))
		files = append(files, s.Files...)
		s.Files = append(files, ev.Files...)
		if ev.Preview != nil {
			s.Preview = ev.Preview
		}

	case FileRemoved:
		if ev.Index < 0 || ev.Index >= len(s.Files) {
			return s
		}
		files := make([]models.UploadedFile, 0, len(s.Files)-1)
		files = append(files, s.Files[:ev.Index]...)
		s.Files = append(files, s.Files[ev.Index+1:]...)
		if ev.Index == 0 {
			s.Preview = nil
		}

	case FormatSelected:
		s.OutputFormat = ev.Format

	case BatchStarted:
		s.Processing = true
		s.BatchID = ev.BatchID

	case JobStarted:
		jobs := make([]models.ConversionJob, 0, len(s.Jobs)+1)
		jobs = append(jobs, s.Jobs...)
		s.Jobs = append(jobs, ev.Job)

	case JobCompleted:
		s.Jobs = updateJob(s.Jobs, ev.JobID, func(j *models.ConversionJob) {
			at := ev.At
			j.Status = models.JobStatusCompleted
			j.RecordCount = ev.RecordCount
			j.ArtifactID = ev.ArtifactID
			j.CompletedAt = &at
		})

	case JobFailed:
		s.Jobs = updateJob(s.Jobs, ev.JobID, func(j *models.ConversionJob) {
			at := ev.At
			j.Status = models.JobStatusError
			j.Error = ev.Err
			j.CompletedAt = &at
		})

	case BatchFinished:
		n := ev.Consumed
		if n > len(s.Files) {
			n = len(s.Files)
		}
		if n < 0 {
			n = 0
		}
		files := make([]models.UploadedFile, 0, len(s.Files)-n)
		s.Files = append(files, s.Files[n:]...)
		if s.Preview != nil && !hasFile(s.Files, s.Preview.FileName) {
			s.Preview = nil
		}
		s.Processing = false
		s.BatchID = ""

	case JobsPruned:
		jobs := make([]models.ConversionJob, 0, len(s.Jobs))
		for _, j := range s.Jobs {
			if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(ev.Before) {
				continue
			}
			jobs = append(jobs, j)
		}
		s.Jobs = jobs
	}
	return s
}

// updateJob copies jobs and applies fn to the non-terminal job with id.
// Terminal jobs never change.
func hasFile(files []models.UploadedFile, name string) bool {
	for _, f := range files {
		if f.Name == name {
			return true
		}
	}
	return false
}

func updateJob(jobs []models.ConversionJob, id string, fn func(*models.ConversionJob)) []models.ConversionJob {
	idx := -1
	for i := range jobs {
		if jobs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || jobs[idx].Status.Terminal() {
		return jobs
	}
	out := make([]models.ConversionJob, len(jobs))
	copy(out, jobs)
	fn(&out[idx])
	return out
}

// Stats derives the workspace counters shown on the convert page.
func (s State) Stats() models.WorkspaceStats {
	st := models.WorkspaceStats{
		FilesReady: len(s.Files),
		TotalJobs:  len(s.Jobs),
	}
	for _, j := range s.Jobs {
		switch j.Status {
		case models.JobStatusCompleted:
			st.Completed++
		case models.JobStatusProcessing:
			st.Processing++
		case models.JobStatusError:
			st.Failed++
		}
	}
	return st
}

// Clone returns a copy of s that shares no slices with it.
func (s State) Clone() State {
	out := s
	out.Files = append([]models.UploadedFile(nil), s.Files...)
	out.Jobs = append([]models.ConversionJob(nil), s.Jobs...)
	if out.Files == nil {
		out.Files = []models.UploadedFile{}
	}
	if out.Jobs == nil {
		out.Jobs = []models.ConversionJob{}
	}
	if s.Preview != nil {
		p := *s.Preview
		out.Preview = &p
	}
	return out
}
