package formatter

import (
	"fmt"
	"time"

	"github.com/yildizm/notedex/internal/csvcache"
	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/index"
)

// Formatter defines the interface for output formatting
type Formatter interface {
	FormatResult(result *Result) ([]byte, error)
	FormatReport(report *Report) ([]byte, error)
	FormatTable(table *csvcache.Table) ([]byte, error)
}

// Result is the outcome of resolving one source against an index
type Result struct {
	Source    string            `json:"source"`
	Origin    string            `json:"origin,omitempty"`
	Revision  uint64            `json:"revision"`
	Documents []*docstore.Facts `json:"documents"`
}

// Report describes an index after it settled
type Report struct {
	Root    string        `json:"root"`
	Stats   index.Stats   `json:"stats"`
	TopTags []TagCount    `json:"top_tags"`
	Elapsed time.Duration `json:"-"`
}

// TagCount is the number of documents carrying a tag
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// New returns the formatter registered for format
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "", "text":
		return NewTerminal(color), nil
	case "json":
		return NewJSON(), nil
	case "csv":
		return NewCSV(), nil
	case "markdown", "md":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (must be one of: text, json, csv, markdown)", format)
	}
}
