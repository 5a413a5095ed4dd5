package convert

import (
	"encoding/json"
	"encoding/xml"
	"io"

	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/parser"
)

// Writer serializes a table into one output format.
type Writer interface {
	Format() models.OutputFormat
	ContentType() string
	Write(w io.Writer, t *parser.Table) error
}

// JSONWriter writes an array of objects whose keys follow header order.
type JSONWriter struct{}

func NewJSONWriter() *JSONWriter {
	return &JSONWriter{}
}

func (jw *JSONWriter) Format() models.OutputFormat {
	return models.FormatJSON
}

func (jw *JSONWriter) ContentType() string {
	return "application/json"
}

func (jw *JSONWriter) Write(w io.Writer, t *parser.Table) error {
	cols, idx := columns(t.Header)

	// Keys are written by hand so that object fields keep header order.
	keys := make([][]byte, len(cols))
	for i, c := range cols {
		k, err := json.Marshal(c)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	bw := &errWriter{w: w}
	if len(t.Records) == 0 {
		bw.write([]byte("[]\n"))
		return bw.err
	}

	bw.write([]byte("[\n"))
	for r, rec := range t.Records {
		bw.write([]byte("  {"))
		for i := range cols {
			if i > 0 {
				bw.write([]byte(", "))
			}
			v, err := json.Marshal(parser.Field(rec, idx[i]))
			if err != nil {
				return err
			}
			bw.write(keys[i])
			bw.write([]byte(": "))
			bw.write(v)
		}
		if r < len(t.Records)-1 {
			bw.write([]byte("},\n"))
		} else {
			bw.write([]byte("}\n"))
		}
	}
	bw.write([]byte("]\n"))
	return bw.err
}

// XMLWriter writes <records><record><field name="col">value</field></record></records>.
type XMLWriter struct{}

func NewXMLWriter() *XMLWriter {
	return &XMLWriter{}
}

func (xw *XMLWriter) Format() models.OutputFormat {
	return models.FormatXML
}

func (xw *XMLWriter) ContentType() string {
	return "application/xml"
}

type xmlField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlRecord struct {
	Fields []xmlField `xml:"field"`
}

type xmlDocument struct {
	XMLName xml.Name    `xml:"records"`
	Count   int         `xml:"count,attr"`
	Records []xmlRecord `xml:"record"`
}

func (xw *XMLWriter) Write(w io.Writer, t *parser.Table) error {
	cols, idx := columns(t.Header)

	doc := xmlDocument{
		Count:   len(t.Records),
		Records: make([]xmlRecord, 0, len(t.Records)),
	}
	for _, rec := range t.Records {
		fields := make([]xmlField, len(cols))
		for i, c := range cols {
			fields[i] = xmlField{Name: c, Value: parser.Field(rec, idx[i])}
		}
		doc.Records = append(doc.Records, xmlRecord{Fields: fields})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// errWriter keeps the first write error so call sites stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) write(p []byte) {
	if ew.err != nil {
		return
	}
	_, ew.err = ew.w.Write(p)
}
