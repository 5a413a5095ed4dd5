package models

// PreviewRow maps a column header to its cell value.
type PreviewRow map[string]string

// Preview is the bounded sample of a file's tabular content shown before conversion.
type Preview struct {
	FileName string       `json:"fileName"`
	Columns  []string     `json:"columns"` // unique headers, first-appearance order
	Rows     []PreviewRow `json:"rows"`
}

// Empty reports whether the preview has no rows.
func (p *Preview) Empty() bool {
	return p == nil || len(p.Rows) == 0
}
