package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/yildizm/notedex/internal/csvcache"
)

// csvFormatter formats output as CSV
type csvFormatter struct{}

// NewCSV creates a new CSV formatter
func NewCSV() Formatter {
	return &csvFormatter{}
}

func (f *csvFormatter) FormatResult(result *Result) ([]byte, error) {
	records := [][]string{{"Path", "Tags", "Links", "Modified", "Size"}}
	for _, doc := range result.Documents {
		records = append(records, []string{
			doc.Path,
			strings.Join(doc.ExactTags, " "),
			fmt.Sprintf("%d", len(doc.Links)),
			formatCSVTime(doc.Stat.ModTime),
			fmt.Sprintf("%d", doc.Stat.Size),
		})
	}
	return writeCSV(records)
}

func (f *csvFormatter) FormatReport(report *Report) ([]byte, error) {
	st := report.Stats
	records := [][]string{
		{"Metric", "Value"},
		{"root", report.Root},
		{"revision", fmt.Sprintf("%d", st.Revision)},
		{"files", fmt.Sprintf("%d", st.Files)},
		{"documents", fmt.Sprintf("%d", st.Documents)},
		{"tags", fmt.Sprintf("%d", st.Tags)},
		{"links", fmt.Sprintf("%d", st.Links)},
		{"csv_tables", fmt.Sprintf("%d", st.CSVTables)},
		{"parsed", fmt.Sprintf("%d", st.Importer.Completed)},
		{"failed", fmt.Sprintf("%d", st.Importer.Failed)},
		{"deduplicated", fmt.Sprintf("%d", st.Importer.Deduplicated)},
	}
	for _, t := range report.TopTags {
		records = append(records, []string{"tag:" + t.Tag, fmt.Sprintf("%d", t.Count)})
	}
	return writeCSV(records)
}

func (f *csvFormatter) FormatTable(table *csvcache.Table) ([]byte, error) {
	records := make([][]string, 0, len(table.Rows)+1)
	records = append(records, table.Headers)
	for _, row := range table.Rows {
		record := make([]string, len(table.Headers))
		for i, h := range table.Headers {
			record[i] = row[h]
		}
		records = append(records, record)
	}
	return writeCSV(records)
}

func writeCSV(records [][]string) ([]byte, error) {
	var b bytes.Buffer
	writer := csv.NewWriter(&b)

	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return b.Bytes(), nil
}

// formatCSVTime formats time for CSV output
func formatCSVTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
