package source

import (
	"fmt"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/pathset"
)

// Index is the read side of the document index that resolution needs.
// Implementations must return sets the caller is free to modify.
type Index interface {
	// Tagged returns the documents carrying tag, directly or through a subtag
	Tagged(tag string) pathset.Set
	// FilesUnder returns the files below a folder that pass filter
	FilesUnder(prefix string, filter func(string) bool) pathset.Set
	// Documents returns every markdown document path
	Documents() pathset.Set

	PathExists(path string) bool
	NodeExists(prefix string) bool
	ResolveRelative(path, origin string) string

	// ResolveLink applies the host link rules; ok is false when nothing matches
	ResolveLink(link, origin string) (path string, ok bool)
	// IncomingLinks scans the resolved link table for documents linking to path
	IncomingLinks(path string) pathset.Set
	// OutgoingLinks reports the resolved targets of path; ok is false when
	// path has no entry in the table
	OutgoingLinks(path string) (targets pathset.Set, ok bool)
	// RawLinkSources returns documents whose unresolved link text equals link
	RawLinkSources(link string) pathset.Set
}

// ResolveError reports a source that cannot be resolved. Unknown tags and
// missing folders are not errors; they resolve to an empty set.
type ResolveError struct {
	Source  Source
	Message string
}

func (e *ResolveError) Error() string {
	return e.Message
}

// Resolve evaluates src against idx. origin is the path of the document the
// query runs from, or "" for none.
func Resolve(src Source, idx Index, origin string) (pathset.Set, error) {
	switch s := src.(type) {
	case nil:
		return pathset.New(), nil
	case Empty:
		return pathset.New(), nil
	case Tag:
		return idx.Tagged(docstore.NormalizeTag(s.Tag)), nil
	case CSV:
		p := s.Path
		if origin != "" {
			p = idx.ResolveRelative(p, origin)
		}
		return pathset.New(p), nil
	case Folder:
		return resolveFolder(s, idx), nil
	case Link:
		return resolveLink(s, idx, origin)
	case Negate:
		child, err := Resolve(s.Child, idx, origin)
		if err != nil {
			return nil, err
		}
		return pathset.Difference(idx.Documents(), child), nil
	case BinaryOp:
		left, err := Resolve(s.Left, idx, origin)
		if err != nil {
			return nil, err
		}
		right, err := Resolve(s.Right, idx, origin)
		if err != nil {
			return nil, err
		}
		if s.Op == Or {
			return pathset.Union(left, right), nil
		}
		return pathset.Intersect(left, right), nil
	default:
		return nil, &ResolveError{Source: src, Message: fmt.Sprintf("unrecognized source type %T", src)}
	}
}

// resolveFolder tries, in order, a folder, an exact file and the file with
// ".md" appended
func resolveFolder(s Folder, idx Index) pathset.Set {
	prefix := docstore.NormalizePath(s.Prefix)
	switch {
	case idx.NodeExists(prefix):
		return idx.FilesUnder(prefix, docstore.IsMarkdownPath)
	case idx.PathExists(prefix):
		return pathset.New(prefix)
	case idx.PathExists(prefix + ".md"):
		return pathset.New(prefix + ".md")
	default:
		return pathset.New()
	}
}

func resolveLink(s Link, idx Index, origin string) (pathset.Set, error) {
	target, resolved := idx.ResolveLink(s.File, origin)

	if s.Direction == Incoming {
		if !resolved {
			// Broken links are still recorded by their raw text
			return idx.RawLinkSources(s.File), nil
		}
		return idx.IncomingLinks(target), nil
	}

	if !resolved {
		target = s.File
	}
	out, ok := idx.OutgoingLinks(target)
	if !ok {
		return nil, &ResolveError{
			Source:  s,
			Message: fmt.Sprintf("could not find file %q during link lookup - does it exist?", s.File),
		}
	}
	return out, nil
}
