package docstore

import (
	"reflect"
	"testing"
)

func TestChangeType_String(t *testing.T) {
	tests := []struct {
		name     string
		ct       ChangeType
		expected string
	}{
		{"Created", ChangeCreated, "created"},
		{"Modified", ChangeModified, "modified"},
		{"Renamed", ChangeRenamed, "renamed"},
		{"Deleted", ChangeDeleted, "deleted"},
		{"Unknown", ChangeType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.ct.String()
			if result != tt.expected {
				t.Errorf("ChangeType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestChangeType_Structural(t *testing.T) {
	if ChangeModified.Structural() {
		t.Error("Expected modify to be non-structural")
	}
	for _, ct := range []ChangeType{ChangeCreated, ChangeRenamed, ChangeDeleted} {
		if !ct.Structural() {
			t.Errorf("Expected %s to be structural", ct)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"a.md", "a.md"},
		{"/Daily/x.md", "Daily/x.md"},
		{"Daily//x.md", "Daily/x.md"},
		{"Daily/./sub/../x.md", "Daily/x.md"},
		{`Daily\x.md`, "Daily/x.md"},
		{"../../etc/passwd", "etc/passwd"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"Log", "#log"},
		{"#Log/Daily", "#log/daily"},
		{"#project/", "#project"},
	}

	for _, tt := range tests {
		if got := NormalizeTag(tt.in); got != tt.want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandTag(t *testing.T) {
	got := ExpandTag("#a/b/c")
	want := []string{"#a", "#a/b", "#a/b/c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandTag = %v, want %v", got, want)
	}

	if got := ExpandTag(""); got != nil {
		t.Errorf("Expected nil for empty tag, got %v", got)
	}
}

func TestTransitiveTags(t *testing.T) {
	got := TransitiveTags([]string{"#log/daily", "#log/weekly", "#todo"})
	want := []string{"#log", "#log/daily", "#log/weekly", "#todo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TransitiveTags = %v, want %v", got, want)
	}
}

func TestPathKinds(t *testing.T) {
	if !IsMarkdownPath("a/b.md") || !IsMarkdownPath("a/B.MARKDOWN") {
		t.Error("Expected markdown paths to be recognised")
	}
	if IsMarkdownPath("a/b.csv") || IsMarkdownPath("a/b") {
		t.Error("Expected non-markdown paths to be rejected")
	}
	if !IsCSVPath("data/Table.CSV") {
		t.Error("Expected CSV path to be recognised")
	}
}

func TestFacts_WithPath(t *testing.T) {
	orig := &Facts{Path: "a.md", Tags: []string{"#x"}}
	moved := orig.WithPath("b.md")

	if moved.Path != "b.md" {
		t.Errorf("Expected path b.md, got %s", moved.Path)
	}
	if orig.Path != "a.md" {
		t.Errorf("Expected original to be unchanged, got %s", orig.Path)
	}
	if !reflect.DeepEqual(moved.Tags, orig.Tags) {
		t.Errorf("Expected tags to carry over, got %v", moved.Tags)
	}
}
