package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReader reads the first worksheet of an Office Open XML workbook.
type XLSXReader struct{}

func NewXLSXReader() *XLSXReader {
	return &XLSXReader{}
}

func (p *XLSXReader) Name() string {
	return "xlsx"
}

func (p *XLSXReader) CanRead(fileName string) bool {
	return strings.EqualFold(filepath.Ext(fileName), ".xlsx")
}

func (p *XLSXReader) Read(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 || IsBlankRecord(rows[0]) {
		return nil, ErrEmptyFile
	}

	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if IsBlankRecord(row) {
			continue
		}
		records = append(records, trimAll(row))
	}

	return &Table{Header: trimAll(rows[0]), Records: records}, nil
}
