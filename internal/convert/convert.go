// Package convert turns tabular input files into JSON or XML documents.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/parser"
)

var (
	// ErrFileTooLarge is returned when the input exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrUnknownFormat is returned when no writer exists for the requested output format.
	ErrUnknownFormat = errors.New("unknown output format")
)

// Result is the outcome of converting one file.
type Result struct {
	RecordCount int
	Data        []byte
	ContentType string
}

// Converter reads an input file with a parser.Reader and serializes it with a Writer.
type Converter struct {
	registry *parser.Registry
	writers  map[models.OutputFormat]Writer

	// maxBytes is changed by settings updates while batches run.
	maxBytes atomic.Int64
}

// Option configures a Converter.
type Option func(*Converter)

// WithMaxFileSize rejects inputs larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(c *Converter) {
		if n >= 0 {
			c.maxBytes.Store(n)
		}
	}
}

// NewConverter creates a converter with the JSON and XML writers.
func NewConverter(registry *parser.Registry, opts ...Option) *Converter {
	c := &Converter{
		registry: registry,
		writers: map[models.OutputFormat]Writer{
			models.FormatJSON: NewJSONWriter(),
			models.FormatXML:  NewXMLWriter(),
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetMaxFileSize changes the size limit for subsequent conversions.
func (c *Converter) SetMaxFileSize(n int64) {
	c.maxBytes.Store(n)
}

// Convert reads file and serializes its records in the requested format.
func (c *Converter) Convert(ctx context.Context, file models.UploadedFile, format models.OutputFormat) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit := c.maxBytes.Load(); limit > 0 && file.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes > %d bytes", ErrFileTooLarge, file.Size, limit)
	}

	w, ok := c.writers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	rd, err := c.registry.FindReader(file.Name)
	if err != nil {
		return nil, err
	}

	table, err := rd.Read(bytes.NewReader(file.Content))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file.Name, err)
	}

	var buf bytes.Buffer
	if err := w.Write(&buf, table); err != nil {
		return nil, fmt.Errorf("writing %s: %w", format, err)
	}

	return &Result{
		RecordCount: len(table.Records),
		Data:        buf.Bytes(),
		ContentType: w.ContentType(),
	}, nil
}

// columns resolves the unique output columns and, for each, the index of the
// last header position carrying that name.
func columns(header []string) ([]string, []int) {
	cols := parser.UniqueColumns(header)
	last := make(map[string]int, len(header))
	for i, h := range header {
		last[h] = i
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = last[c]
	}
	return cols, idx
}
