// Package prefix maintains a tree mirroring the folder hierarchy of a
// document store, answering folder membership and path existence queries.
package prefix

import (
	"path"
	"strings"
	"sync"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/pathset"
)

type node struct {
	name     string
	path     string
	folder   bool
	children map[string]*node
}

func newNode(name, fullPath string, folder bool) *node {
	n := &node{name: name, path: fullPath, folder: folder}
	if folder {
		n.children = make(map[string]*node)
	}
	return n
}

// Index is the path prefix tree. It only reacts to structural changes;
// content edits never reach it.
type Index struct {
	mu   sync.RWMutex
	root *node
	size int
}

// New creates an empty index containing only the root folder
func New() *Index {
	return &Index{root: newNode("", "", true)}
}

// Load replaces the tree with the given enumeration
func (x *Index) Load(entries []docstore.Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.root = newNode("", "", true)
	x.size = 0
	for _, e := range entries {
		x.addLocked(docstore.NormalizePath(e.Path), e.Folder)
	}
}

// Add inserts a file path, creating any missing parent folders
func (x *Index) Add(p string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(docstore.NormalizePath(p), false)
}

// AddFolder inserts a folder path
func (x *Index) AddFolder(p string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(docstore.NormalizePath(p), true)
}

// Remove deletes a file or a folder subtree; it reports whether anything was removed
func (x *Index) Remove(p string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.detachLocked(docstore.NormalizePath(p)) != nil
}

// Rename moves a file or folder subtree to a new path. A missing source is a no-op.
func (x *Index) Rename(oldPath, newPath string) bool {
	oldPath = docstore.NormalizePath(oldPath)
	newPath = docstore.NormalizePath(newPath)
	if oldPath == "" || newPath == "" || oldPath == newPath {
		return false
	}
	if strings.HasPrefix(newPath, oldPath+"/") {
		return false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	n := x.detachLocked(oldPath)
	if n == nil {
		return false
	}
	// Whatever sat at the destination is replaced
	x.detachLocked(newPath)

	parent := x.ensureFolderLocked(parentDir(newPath))
	n.name = path.Base(newPath)
	repath(n, newPath)
	parent.children[n.name] = n
	x.size += count(n)
	return true
}

// Get returns every file strictly below the folder prefix ("" is the root)
// that passes filter. A nil filter accepts everything. A prefix that is not
// a folder yields an empty set.
func (x *Index) Get(prefix string, filter func(string) bool) pathset.Set {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := pathset.New()
	n := x.findLocked(docstore.NormalizePath(prefix))
	if n == nil || !n.folder {
		return out
	}
	collect(n, filter, out)
	return out
}

// PathExists reports whether p names a file or folder in the tree
func (x *Index) PathExists(p string) bool {
	p = docstore.NormalizePath(p)
	if p == "" {
		return false
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.findLocked(p) != nil
}

// NodeExists reports whether prefix names a folder; files do not count
func (x *Index) NodeExists(prefix string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.findLocked(docstore.NormalizePath(prefix))
	return n != nil && n.folder
}

// ResolveRelative resolves p against the folder containing origin. A
// leading "/" marks p as already absolute. If the relative candidate does
// not exist the literal path is returned.
func (x *Index) ResolveRelative(p, origin string) string {
	if origin == "" {
		return p
	}
	if strings.HasPrefix(p, "/") {
		return p[1:]
	}

	dir := parentDir(docstore.NormalizePath(origin))
	if dir == "" {
		return p
	}
	candidate := docstore.NormalizePath(dir + "/" + p)
	if x.PathExists(candidate) {
		return candidate
	}
	return p
}

// Len returns the number of files in the tree
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// OnDocumentChanged implements docstore.ChangeListener. Modified events are
// ignored since they never change path topology.
func (x *Index) OnDocumentChanged(change *docstore.DocumentChange) {
	switch change.Type {
	case docstore.ChangeCreated:
		if change.Folder {
			x.AddFolder(change.Path)
		} else {
			x.Add(change.Path)
		}
	case docstore.ChangeDeleted:
		x.Remove(change.Path)
	case docstore.ChangeRenamed:
		x.Rename(change.OldPath, change.Path)
	}
}

// Helper methods

func (x *Index) findLocked(p string) *node {
	if p == "" {
		return x.root
	}
	n := x.root
	for _, seg := range strings.Split(p, "/") {
		if !n.folder {
			return nil
		}
		child, ok := n.children[seg]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (x *Index) ensureFolderLocked(p string) *node {
	if p == "" {
		return x.root
	}
	n := x.root
	var built string
	for _, seg := range strings.Split(p, "/") {
		if built == "" {
			built = seg
		} else {
			built += "/" + seg
		}
		child, ok := n.children[seg]
		if !ok || !child.folder {
			if ok {
				x.size -= count(child)
			}
			child = newNode(seg, built, true)
			n.children[seg] = child
		}
		n = child
	}
	return n
}

func (x *Index) addLocked(p string, folder bool) {
	if p == "" {
		return
	}
	if folder {
		x.ensureFolderLocked(p)
		return
	}

	parent := x.ensureFolderLocked(parentDir(p))
	name := path.Base(p)
	if existing, ok := parent.children[name]; ok {
		if !existing.folder {
			return
		}
		x.size -= count(existing)
	}
	parent.children[name] = newNode(name, p, false)
	x.size++
}

func (x *Index) detachLocked(p string) *node {
	if p == "" {
		return nil
	}
	parent := x.findLocked(parentDir(p))
	if parent == nil || !parent.folder {
		return nil
	}
	n, ok := parent.children[path.Base(p)]
	if !ok {
		return nil
	}
	delete(parent.children, n.name)
	x.size -= count(n)
	return n
}

func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

func repath(n *node, p string) {
	n.path = p
	for name, child := range n.children {
		repath(child, p+"/"+name)
	}
}

func count(n *node) int {
	if !n.folder {
		return 1
	}
	total := 0
	for _, child := range n.children {
		total += count(child)
	}
	return total
}

func collect(n *node, filter func(string) bool, out pathset.Set) {
	for _, child := range n.children {
		if child.folder {
			collect(child, filter, out)
			continue
		}
		if filter == nil || filter(child.path) {
			out.Add(child.path)
		}
	}
}
