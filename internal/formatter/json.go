package formatter

import (
	"encoding/json"
	"fmt"

	"github.com/yildizm/notedex/internal/csvcache"
	"github.com/yildizm/notedex/internal/docstore"
)

// jsonFormatter formats output as JSON
type jsonFormatter struct{}

// NewJSON creates a new JSON formatter
func NewJSON() Formatter {
	return &jsonFormatter{}
}

// ResultOutput is the JSON shape of a query result
type ResultOutput struct {
	*Result
	Count int `json:"count"`
}

// ReportOutput is the JSON shape of an index report
type ReportOutput struct {
	*Report
	Elapsed string `json:"elapsed,omitempty"`
}

func (f *jsonFormatter) FormatResult(result *Result) ([]byte, error) {
	out := &ResultOutput{Result: result, Count: len(result.Documents)}
	if result.Documents == nil {
		cp := *result
		cp.Documents = []*docstore.Facts{}
		out.Result = &cp
	}
	return marshal(out)
}

func (f *jsonFormatter) FormatReport(report *Report) ([]byte, error) {
	out := &ReportOutput{Report: report}
	if report.Elapsed > 0 {
		out.Elapsed = report.Elapsed.String()
	}
	return marshal(out)
}

func (f *jsonFormatter) FormatTable(table *csvcache.Table) ([]byte, error) {
	return marshal(table)
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}
