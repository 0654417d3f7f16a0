package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/yildizm/notedex/internal/csvcache"
)

// markdownFormatter formats output as Markdown
type markdownFormatter struct {
	now func() time.Time
}

// NewMarkdown creates a new Markdown formatter
func NewMarkdown() Formatter {
	return &markdownFormatter{now: time.Now}
}

func (f *markdownFormatter) FormatResult(result *Result) ([]byte, error) {
	var b strings.Builder

	b.WriteString("# Query Results\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", f.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Source**: `%s`\n\n", result.Source)
	if result.Origin != "" {
		fmt.Fprintf(&b, "**Origin**: %s\n\n", result.Origin)
	}
	fmt.Fprintf(&b, "**Matches**: %d (revision %d)\n\n", len(result.Documents), result.Revision)

	if len(result.Documents) == 0 {
		b.WriteString("_No matching documents._\n")
		return []byte(b.String()), nil
	}

	b.WriteString("| Path | Tags | Links |\n")
	b.WriteString("|------|------|-------|\n")
	for _, doc := range result.Documents {
		fmt.Fprintf(&b, "| %s | %s | %d |\n",
			escapeMarkdownCell(doc.Path),
			escapeMarkdownCell(strings.Join(doc.ExactTags, " ")),
			len(doc.Links))
	}

	return []byte(b.String()), nil
}

func (f *markdownFormatter) FormatReport(report *Report) ([]byte, error) {
	var b strings.Builder

	b.WriteString("# Index Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", f.now().Format("2006-01-02 15:04:05"))

	f.writeSummaryTable(&b, report)
	f.writeTagSection(&b, report.TopTags)

	b.WriteString("\n---\n")
	b.WriteString("*Report generated by notedex*\n")

	return []byte(b.String()), nil
}

func (f *markdownFormatter) FormatTable(table *csvcache.Table) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", table.Path)
	if len(table.Headers) == 0 {
		b.WriteString("_Empty table._\n")
		return []byte(b.String()), nil
	}

	cells := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		cells[i] = escapeMarkdownCell(h)
	}
	b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(table.Headers)) + "\n")

	for _, row := range table.Rows {
		for i, h := range table.Headers {
			cells[i] = escapeMarkdownCell(row[h])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return []byte(b.String()), nil
}

// writeSummaryTable writes the index counters as a two column table
func (f *markdownFormatter) writeSummaryTable(b *strings.Builder, report *Report) {
	b.WriteString("## Summary\n\n")

	st := report.Stats
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(b, "| Root | %s |\n", escapeMarkdownCell(report.Root))
	fmt.Fprintf(b, "| Documents | %s |\n", formatNumber(st.Documents))
	fmt.Fprintf(b, "| Files | %s |\n", formatNumber(st.Files))
	fmt.Fprintf(b, "| Tags | %s |\n", formatNumber(st.Tags))
	fmt.Fprintf(b, "| Links | %s |\n", formatNumber(st.Links))
	fmt.Fprintf(b, "| CSV Tables | %s |\n", formatNumber(st.CSVTables))
	fmt.Fprintf(b, "| Revision | %d |\n", st.Revision)
	fmt.Fprintf(b, "| Parse Failures | %d |\n", st.Importer.Failed)
	if report.Elapsed > 0 {
		fmt.Fprintf(b, "| Elapsed | %s |\n", report.Elapsed)
	}
	b.WriteString("\n")
}

// writeTagSection lists tags by usage
func (f *markdownFormatter) writeTagSection(b *strings.Builder, tags []TagCount) {
	if len(tags) == 0 {
		return
	}

	b.WriteString("## Tags\n\n")
	for i, t := range sortTags(tags) {
		fmt.Fprintf(b, "%d. `%s` (%d)\n", i+1, t.Tag, t.Count)
	}
}
