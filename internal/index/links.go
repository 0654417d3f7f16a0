package index

import (
	"path"
	"sort"
	"strings"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/pathset"
)

// ResolveLink maps a link as written in origin to a document path
func (fi *FullIndex) ResolveLink(link, origin string) (string, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.resolveLinkLocked(link, docstore.NormalizePath(origin))
}

// resolveLinkLocked tries the host resolver, then the exact path, the path
// with ".md", both relative to origin's folder, and finally a unique match
// on the file name where the shortest path wins
func (fi *FullIndex) resolveLinkLocked(link, origin string) (string, bool) {
	link = strings.TrimSpace(link)
	link = strings.TrimSuffix(strings.TrimPrefix(link, "[["), "]]")
	if link == "" {
		return "", false
	}
	if fi.linker != nil {
		if p, ok := fi.linker.ResolveLink(link, origin); ok {
			return docstore.NormalizePath(p), true
		}
	}

	target := docstore.NormalizePath(link)
	candidates := []string{target, target + ".md"}
	if dir := path.Dir(origin); origin != "" && dir != "." && !strings.HasPrefix(link, "/") {
		rel := docstore.NormalizePath(dir + "/" + link)
		candidates = append(candidates, rel, rel+".md")
	}
	for _, c := range candidates {
		if fi.isFileLocked(c) {
			return c, true
		}
	}

	return fi.matchNameLocked(target)
}

func (fi *FullIndex) matchNameLocked(target string) (string, bool) {
	want := strings.ToLower(strings.TrimSuffix(target, path.Ext(target)))
	if !docstore.IsMarkdownPath(target) && path.Ext(target) != "" {
		// "data.csv" keeps its extension in the match
		want = strings.ToLower(target)
	}

	var matches []string
	for p := range fi.names.GetInverse(linkName(target)) {
		candidate := strings.ToLower(p)
		if docstore.IsMarkdownPath(p) {
			candidate = strings.TrimSuffix(candidate, strings.ToLower(path.Ext(p)))
		}
		if candidate == want || strings.HasSuffix(candidate, "/"+want) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches[0], true
}

func (fi *FullIndex) isFileLocked(p string) bool {
	return fi.tree.PathExists(p) && !fi.tree.NodeExists(p)
}

// resolvedLocked returns the resolved outgoing links of every indexed
// document, rebuilding the table when the revision or the folder tree has
// moved. The caller holds at least the read lock and must not modify the
// result.
func (fi *FullIndex) resolvedLocked() map[string]pathset.Set {
	fi.resolvedMu.Lock()
	defer fi.resolvedMu.Unlock()

	if fi.resolved != nil && fi.resolvedRev == fi.revision && fi.resolvedStructure == fi.structure {
		return fi.resolved
	}

	table := make(map[string]pathset.Set, len(fi.pages))
	for p, facts := range fi.pages {
		targets := pathset.New()
		for _, link := range facts.Links {
			if target, ok := fi.resolveLinkLocked(link, p); ok {
				targets.Add(target)
			}
		}
		table[p] = targets
	}
	fi.resolved = table
	fi.resolvedRev = fi.revision
	fi.resolvedStructure = fi.structure
	return table
}

// linkName is the key of the names relation: the lower-cased file name,
// without the extension for markdown documents
func linkName(p string) string {
	base := path.Base(p)
	if docstore.IsMarkdownPath(base) {
		base = strings.TrimSuffix(base, path.Ext(base))
	}
	return strings.ToLower(base)
}

// view is the resolver's read-only window on the index. It is only valid
// while the read lock is held.
type view struct {
	fi       *FullIndex
	resolved map[string]pathset.Set
}

func (fi *FullIndex) viewLocked() *view {
	return &view{fi: fi}
}

func (v *view) Tagged(tag string) pathset.Set {
	return v.fi.tags.GetInverse(tag).Clone()
}

func (v *view) FilesUnder(prefix string, filter func(string) bool) pathset.Set {
	return v.fi.tree.Get(prefix, filter)
}

func (v *view) Documents() pathset.Set {
	return v.fi.tree.Get("", docstore.IsMarkdownPath)
}

func (v *view) PathExists(p string) bool {
	return v.fi.tree.PathExists(p)
}

func (v *view) NodeExists(prefix string) bool {
	return v.fi.tree.NodeExists(prefix)
}

func (v *view) ResolveRelative(p, origin string) string {
	return v.fi.tree.ResolveRelative(p, origin)
}

func (v *view) ResolveLink(link, origin string) (string, bool) {
	return v.fi.resolveLinkLocked(link, origin)
}

func (v *view) IncomingLinks(p string) pathset.Set {
	out := pathset.New()
	for src, targets := range v.table() {
		if targets.Contains(p) {
			out.Add(src)
		}
	}
	return out
}

func (v *view) OutgoingLinks(p string) (pathset.Set, bool) {
	targets, ok := v.table()[p]
	if !ok {
		return nil, false
	}
	return targets.Clone(), true
}

func (v *view) RawLinkSources(link string) pathset.Set {
	return v.fi.links.GetInverse(link).Clone()
}

// table builds the resolved-links table on first use only, so queries
// without link sources never pay for it
func (v *view) table() map[string]pathset.Set {
	if v.resolved == nil {
		v.resolved = v.fi.resolvedLocked()
	}
	return v.resolved
}
