// Package pathset provides the path set type shared by the index structures
// and the source resolver.
package pathset

import "sort"

// Set is an unordered set of document paths.
//
// A nil Set is a valid empty set for every read operation.
type Set map[string]struct{}

// New creates a set holding the given paths
func New(paths ...string) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts a path
func (s Set) Add(path string) {
	s[path] = struct{}{}
}

// Contains reports whether path is in the set
func (s Set) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// Len returns the number of paths
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy. Cloning a nil set yields an empty, writable set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the paths in lexical order
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold exactly the same paths
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if _, ok := other[p]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new set with every path from a and b
func Union(a, b Set) Set {
	out := make(Set, len(a)+len(b))
	for p := range a {
		out[p] = struct{}{}
	}
	for p := range b {
		out[p] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the paths present in both a and b
func Intersect(a, b Set) Set {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	out := make(Set)
	for p := range small {
		if _, ok := large[p]; ok {
			out[p] = struct{}{}
		}
	}
	return out
}

// Difference returns a new set with the paths of a that are not in b
func Difference(a, b Set) Set {
	out := make(Set, len(a))
	for p := range a {
		if _, ok := b[p]; !ok {
			out[p] = struct{}{}
		}
	}
	return out
}
