// Package models contains domain types for the data conversion backend.
package models

import (
	"path/filepath"
	"strings"
)

// UploadedFile is a user-supplied file held in memory for the current workspace.
// It is never persisted.
type UploadedFile struct {
	Name    string `json:"name" msgpack:"name"`
	Size    int64  `json:"size" msgpack:"size"`
	Content []byte `json:"-" msgpack:"-"`
}

// NewUploadedFile wraps raw content with its name and size.
func NewUploadedFile(name string, content []byte) UploadedFile {
	return UploadedFile{
		Name:    name,
		Size:    int64(len(content)),
		Content: content,
	}
}

// Ext returns the lowercased file extension including the dot.
func (f UploadedFile) Ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}
