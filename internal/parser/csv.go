package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const utf8BOM = "\ufeff"

// CSVReader handles comma-separated input with RFC 4180 quoting.
// Rows may be ragged; short rows are padded by the consumer.
type CSVReader struct {
	comma rune
}

func NewCSVReader() *CSVReader {
	return &CSVReader{comma: ','}
}

func (p *CSVReader) Name() string {
	return "csv"
}

func (p *CSVReader) CanRead(fileName string) bool {
	return strings.EqualFold(filepath.Ext(fileName), ".csv")
}

func (p *CSVReader) Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = p.comma
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	header = trimAll(header)

	records := make([][]string, 0)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		if IsBlankRecord(rec) {
			continue
		}
		records = append(records, trimAll(rec))
	}

	return &Table{Header: header, Records: records}, nil
}
