package parser

import (
	"errors"
	"io"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for accepted file types that have no reader (legacy .xls).
	ErrUnsupportedFormat = errors.New("unsupported input format")
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("file has no header row")
)

// Table is the tabular content of an input file.
type Table struct {
	Header  []string
	Records [][]string
}

// Reader defines the interface for tabular input readers.
type Reader interface {
	// Name returns the unique name of the reader.
	Name() string
	// CanRead returns true if this reader handles the given file name.
	CanRead(fileName string) bool
	// Read parses the entire input into a Table.
	Read(r io.Reader) (*Table, error)
}

// DefaultAcceptedExtensions is the intake allow-list.
var DefaultAcceptedExtensions = []string{".csv", ".xls", ".xlsx"}

// Common utilities for tabular content

// trimAll trims every token in place and returns the slice.
func trimAll(tokens []string) []string {
	for i, t := range tokens {
		tokens[i] = strings.TrimSpace(t)
	}
	return tokens
}

// IsBlankRecord reports whether every field is empty after trimming.
func IsBlankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// UniqueColumns returns header names without duplicates, in first-appearance order.
func UniqueColumns(header []string) []string {
	seen := make(map[string]struct{}, len(header))
	cols := make([]string, 0, len(header))
	for _, h := range header {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		cols = append(cols, h)
	}
	return cols
}

// Field returns record[i], or "" for short rows.
func Field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
