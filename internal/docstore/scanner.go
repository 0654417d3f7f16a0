package docstore

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	fencePattern      = regexp.MustCompile("(?ms)^(```|~~~).*?^(```|~~~)[ \t]*$")
	inlineCodePattern = regexp.MustCompile("`[^`\n]*`")
	inlineTagPattern  = regexp.MustCompile(`(?:^|[\s,;(])#([\p{L}\p{N}_/\-]+)`)
	wikiLinkPattern   = regexp.MustCompile(`!?\[\[([^\[\]]+?)\]\]`)
	mdLinkPattern     = regexp.MustCompile(`\[[^\[\]]*\]\(\s*(<[^>]+>|[^)\s]+)(?:\s+"[^"]*")?\s*\)`)
	numericTagPattern = regexp.MustCompile(`^[0-9/]+$`)
)

// MarkdownParser turns raw markdown into Facts. It is stateless and safe
// for concurrent use by several workers.
type MarkdownParser struct {
	tagKeys   []string
	aliasKeys []string
}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		tagKeys:   []string{"tags", "tag"},
		aliasKeys: []string{"aliases", "alias"},
	}
}

// Parse extracts frontmatter, tags and outgoing links from a document
func (mp *MarkdownParser) Parse(p string, content []byte, stat Stat, meta map[string]interface{}) (*Facts, error) {
	frontmatter, body, err := mp.ExtractFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p, err)
	}

	body = stripCode(body)

	exact := make(map[string]struct{})
	for _, t := range mp.frontmatterStrings(frontmatter, mp.tagKeys) {
		if tag := NormalizeTag(t); tag != "" && validTag(tag) {
			exact[tag] = struct{}{}
		}
	}
	for _, m := range inlineTagPattern.FindAllStringSubmatch(body, -1) {
		if tag := NormalizeTag(m[1]); validTag(tag) {
			exact[tag] = struct{}{}
		}
	}

	links := make(map[string]struct{})
	for _, m := range wikiLinkPattern.FindAllStringSubmatch(body, -1) {
		if target := normalizeWikiTarget(m[1]); target != "" {
			links[target] = struct{}{}
		}
	}
	for _, m := range mdLinkPattern.FindAllStringSubmatch(body, -1) {
		if target := normalizeMarkdownTarget(m[1]); target != "" {
			links[target] = struct{}{}
		}
	}

	exactTags := sortedKeys(exact)
	return &Facts{
		Path:        p,
		Tags:        TransitiveTags(exactTags),
		ExactTags:   exactTags,
		Links:       sortedKeys(links),
		Aliases:     mp.frontmatterStrings(frontmatter, mp.aliasKeys),
		Frontmatter: frontmatter,
		Meta:        meta,
		Stat:        stat,
	}, nil
}

// ExtractFrontmatter splits YAML frontmatter from markdown content
func (mp *MarkdownParser) ExtractFrontmatter(content string) (map[string]interface{}, string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, "---") {
		return nil, content, nil
	}

	lines := strings.Split(content, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return nil, content, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "---" || trimmed == "..." {
			end = i
			break
		}
	}
	if end < 0 {
		// An unterminated block is ordinary content
		return nil, content, nil
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &data); err != nil {
		return nil, "", fmt.Errorf("failed to parse YAML frontmatter: %w", err)
	}

	body := strings.Join(lines[end+1:], "\n")
	return data, strings.TrimLeft(body, "\n"), nil
}

// Helper methods

// frontmatterStrings reads the first present key as a list or a
// comma/space separated string
func (mp *MarkdownParser) frontmatterStrings(frontmatter map[string]interface{}, keys []string) []string {
	if frontmatter == nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := frontmatter[key]
		if !ok || raw == nil {
			continue
		}
		var out []string
		switch v := raw.(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		case string:
			out = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
		}
		return out
	}
	return nil
}

func stripCode(body string) string {
	body = fencePattern.ReplaceAllString(body, "")
	return inlineCodePattern.ReplaceAllString(body, "")
}

func validTag(tag string) bool {
	name := strings.TrimPrefix(tag, "#")
	return name != "" && !numericTagPattern.MatchString(name)
}

func normalizeWikiTarget(raw string) string {
	target := raw
	if i := strings.Index(target, "|"); i >= 0 {
		target = target[:i]
	}
	if i := strings.IndexAny(target, "#^"); i >= 0 {
		target = target[:i]
	}
	return strings.TrimSpace(target)
}

func normalizeMarkdownTarget(raw string) string {
	target := strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	if strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:") || strings.HasPrefix(target, "#") {
		return ""
	}
	if i := strings.Index(target, "#"); i >= 0 {
		target = target[:i]
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	return strings.TrimSpace(target)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
