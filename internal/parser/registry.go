package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Registry holds all available readers and provides detection by file name.
type Registry struct {
	readers []Reader
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		readers: []Reader{
			NewCSVReader(),
			NewXLSXReader(),
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// FindReader detects the correct reader for a file name.
// Files with an accepted extension but no reader yield ErrUnsupportedFormat.
func (r *Registry) FindReader(fileName string) (Reader, error) {
	for _, rd := range r.readers {
		if rd.CanRead(fileName) {
			return rd, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, strings.ToLower(filepath.Ext(fileName)))
}
