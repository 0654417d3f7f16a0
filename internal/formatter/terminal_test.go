package formatter

import (
	"strings"
	"testing"

	"github.com/yildizm/go-termfmt"
	"github.com/yildizm/notedex/internal/docstore"
)

func newTestTerminal() *terminalFormatter {
	opts := termfmt.DefaultOptions()
	opts.Color = false
	opts.Emoji = false
	return &terminalFormatter{opts: opts}
}

func TestWriteTopTags_Sorting(t *testing.T) {
	formatter := newTestTerminal()

	// Test data with various counts
	tags := []TagCount{
		{Tag: "#error", Count: 5},
		{Tag: "#warning", Count: 10},
		{Tag: "#info", Count: 2},
		{Tag: "#debug", Count: 8},
		{Tag: "#fatal", Count: 1},
	}

	var b strings.Builder
	formatter.writeTopTags(&b, tags)

	output := b.String()

	warningPos := strings.Index(output, "#warning")
	debugPos := strings.Index(output, "#debug")
	errorPos := strings.Index(output, "#error")
	infoPos := strings.Index(output, "#info")
	fatalPos := strings.Index(output, "#fatal")

	// Should be sorted by count: warning(10) > debug(8) > error(5) > info(2) > fatal(1)
	if warningPos > debugPos {
		t.Errorf("#warning should appear before #debug in sorted output")
	}
	if debugPos > errorPos {
		t.Errorf("#debug should appear before #error in sorted output")
	}
	if errorPos > infoPos {
		t.Errorf("#error should appear before #info in sorted output")
	}
	if infoPos > fatalPos {
		t.Errorf("#info should appear before #fatal in sorted output")
	}
}

func TestWriteTopTags_MaxFive(t *testing.T) {
	formatter := newTestTerminal()

	tags := []TagCount{
		{Tag: "#tag1", Count: 10},
		{Tag: "#tag2", Count: 9},
		{Tag: "#tag3", Count: 8},
		{Tag: "#tag4", Count: 7},
		{Tag: "#tag5", Count: 6},
		{Tag: "#tag6", Count: 5},
		{Tag: "#tag7", Count: 4},
	}

	var b strings.Builder
	formatter.writeTopTags(&b, tags)

	output := b.String()
	lines := strings.Split(output, "\n")

	// Count non-empty lines excluding the header
	nonEmptyLines := 0
	for i, line := range lines {
		if i > 0 && strings.TrimSpace(line) != "" {
			nonEmptyLines++
		}
	}

	if nonEmptyLines != 5 {
		t.Errorf("Expected 5 tag lines, got %d", nonEmptyLines)
	}

	if strings.Contains(output, "#tag6") || strings.Contains(output, "#tag7") {
		t.Errorf("Should not include lowest count tags when more than 5 exist")
	}
}

func TestWriteTopTags_EmptyInput(t *testing.T) {
	formatter := newTestTerminal()

	var b strings.Builder
	formatter.writeTopTags(&b, nil)

	output := b.String()

	if !strings.Contains(output, "Top Tags") {
		t.Errorf("Should contain header even with empty input")
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 1 {
		t.Errorf("Should only have header line with empty input, got %d lines", len(lines))
	}
}

func TestWriteTopTags_TiesAreAlphabetical(t *testing.T) {
	formatter := newTestTerminal()

	var b strings.Builder
	formatter.writeTopTags(&b, []TagCount{{Tag: "#b", Count: 3}, {Tag: "#a", Count: 3}})

	output := b.String()
	if strings.Index(output, "#a") > strings.Index(output, "#b") {
		t.Errorf("Expected #a before #b on equal counts, got:\n%s", output)
	}
}

func TestTerminalFormatResult(t *testing.T) {
	formatter := newTestTerminal()

	result := &Result{
		Source:   "#project",
		Origin:   "Daily/2024-01-01.md",
		Revision: 7,
		Documents: []*docstore.Facts{
			{Path: "Projects/X.md", ExactTags: []string{"#project"}, Links: []string{"Y"}},
			{Path: "Projects/Y.md"},
		},
	}

	data, err := formatter.FormatResult(result)
	if err != nil {
		t.Fatalf("FormatResult failed: %v", err)
	}
	output := string(data)

	for _, want := range []string{"Query Results", "#project", "Daily/2024-01-01.md", "2 document(s) at revision 7", "Projects/X.md", "Projects/Y.md"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestTerminalFormatResult_Empty(t *testing.T) {
	formatter := newTestTerminal()

	data, err := formatter.FormatResult(&Result{Source: "#none"})
	if err != nil {
		t.Fatalf("FormatResult failed: %v", err)
	}
	if !strings.Contains(string(data), "No matching documents") {
		t.Errorf("Expected empty marker, got:\n%s", data)
	}
}

func TestWriteHeader(t *testing.T) {
	formatter := newTestTerminal()

	var b strings.Builder
	formatter.writeHeader(&b, "Notes")

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 header lines, got %d", len(lines))
	}
	if lines[1] != "║ Notes ║" {
		t.Errorf("Expected boxed title, got %q", lines[1])
	}
	if lines[0] != "╔═══════╗" {
		t.Errorf("Expected top border to match title width, got %q", lines[0])
	}
}
