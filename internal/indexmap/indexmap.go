// Package indexmap implements a bidirectional multimap used for the tag and
// link relations of the index.
package indexmap

import (
	"github.com/yildizm/notedex/internal/pathset"
)

// IndexMap maps a key to a set of values and keeps the transposed relation
// (value to set of keys) in step.
//
// The forward and inverse maps are exact transposes of each other and never
// store an empty set. IndexMap is not safe for concurrent use; the owner
// serializes access.
type IndexMap struct {
	forward map[string]pathset.Set
	inverse map[string]pathset.Set
}

// New creates an empty IndexMap
func New() *IndexMap {
	return &IndexMap{
		forward: make(map[string]pathset.Set),
		inverse: make(map[string]pathset.Set),
	}
}

// Set replaces the whole value set of key. An empty set deletes the key.
func (m *IndexMap) Set(key string, values pathset.Set) {
	if len(values) == 0 {
		m.Delete(key)
		return
	}

	next := values.Clone()
	if old, ok := m.forward[key]; ok {
		for v := range old {
			if !next.Contains(v) {
				m.unlink(v, key)
			}
		}
	}

	m.forward[key] = next
	for v := range next {
		keys, ok := m.inverse[v]
		if !ok {
			keys = make(pathset.Set)
			m.inverse[v] = keys
		}
		keys.Add(key)
	}
}

// Get returns a copy of the values stored under key
func (m *IndexMap) Get(key string) pathset.Set {
	return m.forward[key].Clone()
}

// GetInverse returns the keys holding value. The returned set is shared with
// the map and must not be modified; an absent value yields a nil (empty) set.
func (m *IndexMap) GetInverse(value string) pathset.Set {
	return m.inverse[value]
}

// Has reports whether key has any values
func (m *IndexMap) Has(key string) bool {
	_, ok := m.forward[key]
	return ok
}

// Rename moves every value of oldKey to newKey, replacing whatever newKey held.
// It reports false and changes nothing when oldKey has no values.
func (m *IndexMap) Rename(oldKey, newKey string) bool {
	values, ok := m.forward[oldKey]
	if !ok {
		return false
	}
	if oldKey == newKey {
		return true
	}

	m.Delete(oldKey)
	m.Set(newKey, values)
	return true
}

// Delete removes key and every inverse reference to it
func (m *IndexMap) Delete(key string) bool {
	values, ok := m.forward[key]
	if !ok {
		return false
	}

	for v := range values {
		m.unlink(v, key)
	}
	delete(m.forward, key)
	return true
}

// Clear drops all entries
func (m *IndexMap) Clear() {
	m.forward = make(map[string]pathset.Set)
	m.inverse = make(map[string]pathset.Set)
}

// Keys returns the number of keys with at least one value
func (m *IndexMap) Keys() int {
	return len(m.forward)
}

// Values returns the number of distinct values
func (m *IndexMap) Values() int {
	return len(m.inverse)
}

// EachValue calls fn for every distinct value until fn returns false
func (m *IndexMap) EachValue(fn func(value string, keys pathset.Set) bool) {
	for v, keys := range m.inverse {
		if !fn(v, keys) {
			return
		}
	}
}

func (m *IndexMap) unlink(value, key string) {
	keys, ok := m.inverse[value]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(m.inverse, value)
	}
}
