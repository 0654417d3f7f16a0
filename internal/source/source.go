// Package source defines query source expressions and resolves them to
// sets of document paths.
package source

import (
	"fmt"
	"strings"
)

// Source is a query source expression. The set of implementations is closed;
// every variant is declared in this file.
type Source interface {
	fmt.Stringer
	isSource()
}

// Direction selects which side of a link relation a Link source follows
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "outgoing"
	}
	return "incoming"
}

// Op combines two sources
type Op int

const (
	And Op = iota
	Or
)

func (o Op) String() string {
	if o == Or {
		return "or"
	}
	return "and"
}

// Empty matches nothing
type Empty struct{}

// Tag matches documents carrying the tag or any tag below it
type Tag struct {
	Tag string
}

// CSV names an external table
type CSV struct {
	Path string
}

// Folder matches markdown documents under a folder, or a single file
type Folder struct {
	Prefix string
}

// Link matches the documents linking to File (Incoming) or linked from it (Outgoing)
type Link struct {
	File      string
	Direction Direction
}

// Negate matches every document its child does not
type Negate struct {
	Child Source
}

// BinaryOp combines two sources with an intersection or a union
type BinaryOp struct {
	Left  Source
	Op    Op
	Right Source
}

func (Empty) isSource()    {}
func (Tag) isSource()      {}
func (CSV) isSource()      {}
func (Folder) isSource()   {}
func (Link) isSource()     {}
func (Negate) isSource()   {}
func (BinaryOp) isSource() {}

func (Empty) String() string { return "<empty>" }

func (s Tag) String() string { return s.Tag }

func (s CSV) String() string { return fmt.Sprintf("csv(%q)", s.Path) }

func (s Folder) String() string { return fmt.Sprintf("%q", s.Prefix) }

func (s Link) String() string {
	if s.Direction == Outgoing {
		return fmt.Sprintf("outgoing([[%s]])", s.File)
	}
	return fmt.Sprintf("[[%s]]", s.File)
}

func (s Negate) String() string { return "-" + groupString(s.Child) }

func (s BinaryOp) String() string {
	return fmt.Sprintf("%s %s %s", groupString(s.Left), s.Op, groupString(s.Right))
}

func groupString(s Source) string {
	if s == nil {
		return "<nil>"
	}
	if _, ok := s.(BinaryOp); ok {
		return "(" + s.String() + ")"
	}
	return s.String()
}

// AndOf folds sources into a left-leaning intersection; no sources gives Empty
func AndOf(sources ...Source) Source {
	return fold(And, sources)
}

// OrOf folds sources into a left-leaning union; no sources gives Empty
func OrOf(sources ...Source) Source {
	return fold(Or, sources)
}

func fold(op Op, sources []Source) Source {
	if len(sources) == 0 {
		return Empty{}
	}
	out := sources[0]
	for _, s := range sources[1:] {
		out = BinaryOp{Left: out, Op: op, Right: s}
	}
	return out
}

// Not negates a source
func Not(s Source) Source {
	return Negate{Child: s}
}

// ParseScalar interprets shorthand: "#tag" is a tag, "[[File]]" an
// incoming link, "" nothing, and anything else a folder.
func ParseScalar(s string) Source {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Empty{}
	case strings.HasPrefix(s, "#"):
		return Tag{Tag: s}
	case strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]"):
		return Link{File: strings.TrimSpace(s[2 : len(s)-2]), Direction: Incoming}
	default:
		return Folder{Prefix: s}
	}
}
