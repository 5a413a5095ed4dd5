package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/akabaki/saas-ui/internal/models"
)

// MaxPreviewRows bounds the number of data lines sampled for a preview.
const MaxPreviewRows = 5

// Preview builds preview rows from raw text content.
// Lines are split on '\n' and fields on a literal comma; quoting is not honored.
// Only the first MaxPreviewRows lines after the header are sampled, and rows whose
// cells are all blank are dropped.
func Preview(content string) []models.PreviewRow {
	lines := strings.Split(content, "\n")
	header := trimAll(strings.Split(lines[0], ","))

	end := 1 + MaxPreviewRows
	if end > len(lines) {
		end = len(lines)
	}

	rows := make([]models.PreviewRow, 0, MaxPreviewRows)
	for _, line := range lines[1:end] {
		row := zipRow(header, strings.Split(line, ","))
		if blankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// HeaderColumns returns the unique trimmed header names of raw text content.
func HeaderColumns(content string) []string {
	first, _, _ := strings.Cut(content, "\n")
	if strings.TrimSpace(first) == "" {
		return []string{}
	}
	return UniqueColumns(trimAll(strings.Split(first, ",")))
}

// PreviewQuoted is Preview with a real CSV tokenizer: quoted fields, escaped quotes
// and embedded newlines are honored. The sampling window is the same physical lines
// as Preview, so both agree on input without quotes.
func PreviewQuoted(r io.Reader) ([]models.PreviewRow, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []models.PreviewRow{}, []string{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	header = trimAll(header)
	headerLine, _ := cr.FieldPos(0)
	lastLine := headerLine + MaxPreviewRows

	rows := make([]models.PreviewRow, 0, MaxPreviewRows)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) && perr.StartLine > lastLine {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading record: %w", err)
		}
		if line, _ := cr.FieldPos(0); line > lastLine {
			break
		}
		row := zipRow(header, record)
		if blankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, UniqueColumns(header), nil
}

// PreviewTable samples a Table already read by a Reader, with the same rules.
func PreviewTable(t *Table) []models.PreviewRow {
	rows := make([]models.PreviewRow, 0, MaxPreviewRows)
	if t == nil {
		return rows
	}
	records := t.Records
	if len(records) > MaxPreviewRows {
		records = records[:MaxPreviewRows]
	}
	for _, rec := range records {
		row := zipRow(t.Header, rec)
		if blankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// zipRow pairs values with headers positionally. Missing values become "";
// surplus values are ignored; later duplicate headers overwrite earlier ones.
func zipRow(header, values []string) models.PreviewRow {
	row := make(models.PreviewRow, len(header))
	for i, h := range header {
		row[h] = strings.TrimSpace(Field(values, i))
	}
	return row
}

func blankRow(row models.PreviewRow) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// PreviewFile builds the preview for an uploaded file. XLSX workbooks are sampled
// from their first sheet; everything else is treated as text. When quoted is set,
// text content goes through the CSV tokenizer instead of the literal comma split.
func PreviewFile(reg *Registry, file models.UploadedFile, quoted bool) (*models.Preview, error) {
	preview := &models.Preview{FileName: file.Name}

	switch file.Ext() {
	case ".xlsx":
		rd, err := reg.FindReader(file.Name)
		if err != nil {
			return nil, err
		}
		table, err := rd.Read(bytes.NewReader(file.Content))
		if err != nil {
			return nil, err
		}
		preview.Columns = UniqueColumns(table.Header)
		preview.Rows = PreviewTable(table)
	case ".xls":
		return nil, fmt.Errorf("%w: .xls preview", ErrUnsupportedFormat)
	default:
		if quoted {
			rows, cols, err := PreviewQuoted(bytes.NewReader(file.Content))
			if err != nil {
				return nil, err
			}
			preview.Columns, preview.Rows = cols, rows
		} else {
			content := string(file.Content)
			preview.Columns = HeaderColumns(content)
			preview.Rows = Preview(content)
		}
	}
	return preview, nil
}
