package docstore

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Stat is the file metadata carried alongside raw content
type Stat struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	CTime   time.Time `json:"ctime"`
}

// Entry is one item of a store enumeration
type Entry struct {
	Path   string `json:"path"`
	Folder bool   `json:"folder"`
	Stat   Stat   `json:"stat"`
}

// Facts is the structured output of parsing one document. A Facts value is
// an immutable snapshot; a reparse produces a new value.
type Facts struct {
	Path string `json:"path"`

	// Tags holds every exact tag plus all of its ancestors ("#a/b" implies "#a").
	Tags []string `json:"tags"`
	// ExactTags holds only the tags written in the document.
	ExactTags []string `json:"exact_tags"`
	// Links holds the raw outgoing link targets, normalized but not resolved.
	Links []string `json:"links"`

	Aliases     []string               `json:"aliases,omitempty"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	Stat        Stat                   `json:"stat"`
}

// WithPath returns a copy of the facts attached to another path
func (f *Facts) WithPath(p string) *Facts {
	cp := *f
	cp.Path = p
	return &cp
}

// DocumentChange represents a structural or content change reported by a store
type DocumentChange struct {
	Type      ChangeType `json:"type"`
	Path      string     `json:"path"`
	OldPath   string     `json:"old_path,omitempty"`
	Folder    bool       `json:"folder"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChangeType represents the type of document change
type ChangeType int

const (
	ChangeCreated ChangeType = iota
	ChangeModified
	ChangeRenamed
	ChangeDeleted
)

func (ct ChangeType) String() string {
	switch ct {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeRenamed:
		return "renamed"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Structural reports whether the change alters path topology
func (ct ChangeType) Structural() bool {
	return ct == ChangeCreated || ct == ChangeRenamed || ct == ChangeDeleted
}

// IsMarkdownPath reports whether p names a markdown document
func IsMarkdownPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}

// IsCSVPath reports whether p names a CSV file
func IsCSVPath(p string) bool {
	return strings.EqualFold(path.Ext(p), ".csv")
}

// NormalizePath converts p into the canonical store form: slash separated,
// no leading slash, no "." or ".." segments.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// NormalizeTag lower-cases a tag and ensures the leading '#'
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimRight(tag, "/")
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return strings.ToLower(tag)
}

// ExpandTag returns the tag and all of its hierarchical ancestors
func ExpandTag(tag string) []string {
	tag = NormalizeTag(tag)
	if tag == "" {
		return nil
	}
	var out []string
	for i := 1; i < len(tag); i++ {
		if tag[i] == '/' {
			out = append(out, tag[:i])
		}
	}
	return append(out, tag)
}

// TransitiveTags expands every exact tag and returns the sorted, de-duplicated result
func TransitiveTags(exact []string) []string {
	seen := make(map[string]struct{})
	for _, t := range exact {
		for _, e := range ExpandTag(t) {
			seen[e] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
