package formatter

import (
	"fmt"
	"sort"
	"strings"
)

// formatNumber formats numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return addCommas(fmt.Sprintf("%d", n))
}

// addCommas adds commas to number strings
func addCommas(s string) string {
	if len(s) <= 3 {
		return s
	}
	return addCommas(s[:len(s)-3]) + "," + s[len(s)-3:]
}

// TopTags returns the n most used tags, ties broken alphabetically. A
// non-positive n returns every tag.
func TopTags(counts map[string]int, n int) []TagCount {
	tags := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, TagCount{Tag: tag, Count: count})
	}
	tags = sortTags(tags)
	if n > 0 && len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// sortTags returns a copy of tags ordered by count, then name
func sortTags(tags []TagCount) []TagCount {
	sorted := make([]TagCount, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Tag < sorted[j].Tag
	})
	return sorted
}

// singleLine flattens s and truncates it to max runes
func singleLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	r := []rune(s)
	if max > 3 && len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

// escapeMarkdownCell makes s safe inside a markdown table cell
func escapeMarkdownCell(s string) string {
	return strings.ReplaceAll(singleLine(s, 0), "|", `\|`)
}
