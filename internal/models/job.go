package models

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the status of a conversion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transition can happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// OutputFormat is the target serialization selected by the user.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatXML  OutputFormat = "xml"
)

// ParseOutputFormat normalizes a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXML:
		return FormatXML, nil
	}
	return "", fmt.Errorf("unsupported output format: %q", s)
}

// InputFormatCSV is the input tag carried by every job.
const InputFormatCSV = "CSV"

// ConversionJob represents one file's progress through conversion.
type ConversionJob struct {
	ID             string     `json:"id" msgpack:"id"`
	BatchID        string     `json:"batchId" msgpack:"batchId"`
	FileName       string     `json:"fileName" msgpack:"fileName"`
	Status         JobStatus  `json:"status" msgpack:"status"`
	InputFormat    string     `json:"inputFormat" msgpack:"inputFormat"`
	OutputFormat   string     `json:"outputFormat" msgpack:"outputFormat"` // uppercased
	RecordCount    int        `json:"recordCount" msgpack:"recordCount"`
	CreatedAt      time.Time  `json:"createdAt" msgpack:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`
	ArtifactID     string     `json:"artifactId,omitempty" msgpack:"artifactId,omitempty"`
	OrganizationID string     `json:"organizationId,omitempty" msgpack:"organizationId,omitempty"`
	Error          string     `json:"error,omitempty" msgpack:"error,omitempty"`
}

// NewConversionJob creates a job for fileName in processing status.
func NewConversionJob(id, batchID, fileName string, format OutputFormat, now time.Time) ConversionJob {
	return ConversionJob{
		ID:           id,
		BatchID:      batchID,
		FileName:     fileName,
		Status:       JobStatusProcessing,
		InputFormat:  InputFormatCSV,
		OutputFormat: strings.ToUpper(string(format)),
		CreatedAt:    now,
	}
}

// Downloadable reports whether the job output may be downloaded.
func (j ConversionJob) Downloadable() bool {
	return j.Status == JobStatusCompleted
}
