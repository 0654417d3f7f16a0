package formatter

import (
	"fmt"
	"strings"

	"github.com/yildizm/go-termfmt"
	"github.com/yildizm/notedex/internal/csvcache"
	"github.com/yildizm/notedex/internal/docstore"
)

// maxTopTags bounds the tag section of the text report
const maxTopTags = 5

// terminalFormatter formats output as plain text for terminal display using go-termfmt
type terminalFormatter struct {
	opts *termfmt.TerminalOptions
}

// NewTerminal creates a new terminal formatter with optional color support
func NewTerminal(color bool) Formatter {
	opts := termfmt.DefaultOptions()
	opts.Color = color
	opts.Emoji = true
	return &terminalFormatter{opts: opts}
}

func (f *terminalFormatter) FormatReport(report *Report) ([]byte, error) {
	var b strings.Builder

	f.writeHeader(&b, "Index Summary")
	f.writeStatistics(&b, report)
	f.writeTopTags(&b, report.TopTags)
	f.writeImporter(&b, report)

	return []byte(b.String()), nil
}

func (f *terminalFormatter) FormatResult(result *Result) ([]byte, error) {
	var b strings.Builder

	f.writeHeader(&b, "Query Results")

	symbol := f.symbol("target", "[>]")
	fmt.Fprintf(&b, "%s %s\n", symbol, result.Source)
	if result.Origin != "" {
		fmt.Fprintf(&b, "   from %s\n", result.Origin)
	}
	fmt.Fprintf(&b, "   %d document(s) at revision %d\n\n", len(result.Documents), result.Revision)

	if len(result.Documents) == 0 {
		b.WriteString("No matching documents\n")
		return []byte(b.String()), nil
	}

	tree := termfmt.TreeViewWithOptions(f.documentItems(result.Documents), f.opts)
	b.WriteString(tree + "\n")

	return []byte(b.String()), nil
}

func (f *terminalFormatter) FormatTable(table *csvcache.Table) ([]byte, error) {
	var b strings.Builder

	f.writeHeader(&b, table.Path)
	fmt.Fprintf(&b, "%d row(s), columns: %s\n\n", len(table.Rows), strings.Join(table.Headers, ", "))

	if len(table.Rows) == 0 {
		return []byte(b.String()), nil
	}

	items := make([]termfmt.TreeItem, 0, len(table.Rows))
	for i, row := range table.Rows {
		children := make([]termfmt.TreeItem, 0, len(table.Headers))
		for j, h := range table.Headers {
			children = append(children, termfmt.TreeItem{
				Label: h,
				Value: singleLine(row[h], 80),
				Last:  j == len(table.Headers)-1,
			})
		}
		items = append(items, termfmt.TreeItem{
			Label:    fmt.Sprintf("Row %d", i+1),
			Children: children,
			Last:     i == len(table.Rows)-1,
		})
	}

	b.WriteString(termfmt.TreeViewWithOptions(items, f.opts) + "\n")
	return []byte(b.String()), nil
}

// documentItems builds one tree item per document with its tags and links below
func (f *terminalFormatter) documentItems(docs []*docstore.Facts) []termfmt.TreeItem {
	items := make([]termfmt.TreeItem, 0, len(docs))
	for i, doc := range docs {
		var children []termfmt.TreeItem
		if len(doc.ExactTags) > 0 {
			children = append(children, termfmt.TreeItem{Label: "Tags", Value: strings.Join(doc.ExactTags, " ")})
		}
		if len(doc.Links) > 0 {
			children = append(children, termfmt.TreeItem{Label: "Links", Value: formatNumber(len(doc.Links))})
		}
		if len(children) > 0 {
			children[len(children)-1].Last = true
		}

		items = append(items, termfmt.TreeItem{
			Label:    doc.Path,
			Children: children,
			Last:     i == len(docs)-1,
		})
	}
	return items
}

// writeStatistics writes statistics with tree-style formatting using go-termfmt
func (f *terminalFormatter) writeStatistics(b *strings.Builder, report *Report) {
	symbol := termfmt.GetEmoji("statistics", f.opts)
	b.WriteString(symbol + " Statistics\n")

	stats := report.Stats
	items := []termfmt.TreeItem{
		{Label: "Root", Value: report.Root},
		{Label: "Documents", Value: fmt.Sprintf("%s of %s files", formatNumber(stats.Documents), formatNumber(stats.Files))},
		{Label: "Tags", Value: formatNumber(stats.Tags)},
		{Label: "Links", Value: formatNumber(stats.Links)},
		{Label: "CSV Tables", Value: formatNumber(stats.CSVTables)},
		{Label: "Revision", Value: fmt.Sprintf("%d", stats.Revision)},
	}
	if report.Elapsed > 0 {
		items = append(items, termfmt.TreeItem{Label: "Elapsed", Value: report.Elapsed.String()})
	}
	items[len(items)-1].Last = true

	tree := termfmt.TreeViewWithOptions(items, f.opts)
	b.WriteString(tree + "\n\n")
}

// writeTopTags writes the most used tags, highest count first
func (f *terminalFormatter) writeTopTags(b *strings.Builder, tags []TagCount) {
	symbol := f.symbol("tag", "[TAG]")
	b.WriteString(symbol + " Top Tags\n")

	top := sortTags(tags)
	if len(top) > maxTopTags {
		top = top[:maxTopTags]
	}

	for i, t := range top {
		if i == len(top)-1 {
			fmt.Fprintf(b, "└─ %s (%d)\n", t.Tag, t.Count)
		} else {
			fmt.Fprintf(b, "├─ %s (%d)\n", t.Tag, t.Count)
		}
	}
	b.WriteString("\n")
}

// writeImporter writes the scheduler counters of the import pipeline
func (f *terminalFormatter) writeImporter(b *strings.Builder, report *Report) {
	symbol := f.symbol("insights", "[IMP]")
	b.WriteString(symbol + " Importer\n")

	st := report.Stats.Importer
	items := []termfmt.TreeItem{
		{Label: "Workers", Value: fmt.Sprintf("%d (%d busy)", st.Workers, st.Busy)},
		{Label: "Queued", Value: formatNumber(st.Queued)},
		{Label: "Parsed", Value: fmt.Sprintf("%d (%d failed)", st.Completed, st.Failed)},
		{Label: "Deduplicated", Value: fmt.Sprintf("%d", st.Deduplicated), Last: true},
	}
	b.WriteString(termfmt.TreeViewWithOptions(items, f.opts) + "\n")
}

// writeHeader writes a header with box drawing
func (f *terminalFormatter) writeHeader(b *strings.Builder, header string) {
	width := len([]rune(header))

	b.WriteString("╔" + strings.Repeat("═", width+2) + "╗\n")
	b.WriteString("║ " + header + " ║\n")
	b.WriteString("╚" + strings.Repeat("═", width+2) + "╝\n\n")
}

func (f *terminalFormatter) symbol(key, fallback string) string {
	if s := termfmt.GetEmoji(key, f.opts); s != "" {
		return s
	}
	return fallback
}
