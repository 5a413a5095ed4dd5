package conversion

import (
	"strings"

	"github.com/akabaki/saas-ui/internal/models"
)

// strippedExtensions are removed from the end of a file name before the output
// extension is appended.
var strippedExtensions = []string{".csv", ".xlsx", ".xls"}

// DownloadFileName derives the name of a job's output file:
// "customers.csv" converted to XML downloads as "customers.xml".
func DownloadFileName(fileName, outputFormat string) string {
	base := fileName
	lower := strings.ToLower(fileName)
	for _, ext := range strippedExtensions {
		if strings.HasSuffix(lower, ext) {
			base = fileName[:len(fileName)-len(ext)]
			break
		}
	}
	return base + "." + strings.ToLower(outputFormat)
}

// ContentTypeFor returns the MIME type of an output format name.
func ContentTypeFor(outputFormat string) string {
	switch models.OutputFormat(strings.ToLower(outputFormat)) {
	case models.FormatJSON:
		return "application/json"
	case models.FormatXML:
		return "application/xml"
	}
	return "application/octet-stream"
}
