package docstore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

type memFile struct {
	content []byte
	stat    Stat
}

// MemoryStore is an in-memory implementation of DocumentStore.
//
// Folders are created implicitly for every file parent. Listeners are
// notified synchronously after the store lock is released, so a listener
// may call back into the store.
type MemoryStore struct {
	mu        sync.RWMutex
	files     map[string]*memFile
	folders   map[string]struct{}
	metadata  map[string]map[string]interface{}
	listeners listenerSet
	closed    bool
	now       func() time.Time
}

// NewMemoryStore creates a new in-memory document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]*memFile),
		folders:  make(map[string]struct{}),
		metadata: make(map[string]map[string]interface{}),
		now:      time.Now,
	}
}

// Put creates or replaces a file
func (ms *MemoryStore) Put(p string, content string) error {
	p = NormalizePath(p)
	if p == "" {
		return fmt.Errorf("document path cannot be empty")
	}

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return ErrClosed
	}
	if _, isFolder := ms.folders[p]; isFolder {
		ms.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIsFolder, p)
	}

	now := ms.now()
	changes := ms.ensureParentsLocked(p, now)

	existing, exists := ms.files[p]
	stat := Stat{Size: int64(len(content)), ModTime: now, CTime: now}
	changeType := ChangeCreated
	if exists {
		changeType = ChangeModified
		stat.CTime = existing.stat.CTime
	}
	ms.files[p] = &memFile{content: []byte(content), stat: stat}
	changes = append(changes, &DocumentChange{Type: changeType, Path: p, Timestamp: now})

	listeners := ms.listeners.snapshot()
	ms.mu.Unlock()

	notifyListeners(listeners, changes)
	return nil
}

// Mkdir creates a folder and any missing parents
func (ms *MemoryStore) Mkdir(p string) error {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return ErrClosed
	}
	if _, isFile := ms.files[p]; isFile {
		ms.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, p)
	}

	now := ms.now()
	changes := ms.ensureParentsLocked(p, now)
	if _, ok := ms.folders[p]; !ok {
		ms.folders[p] = struct{}{}
		changes = append(changes, &DocumentChange{Type: ChangeCreated, Path: p, Folder: true, Timestamp: now})
	}

	listeners := ms.listeners.snapshot()
	ms.mu.Unlock()

	notifyListeners(listeners, changes)
	return nil
}

// Remove deletes a file, or a folder with everything below it
func (ms *MemoryStore) Remove(p string) error {
	p = NormalizePath(p)

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return ErrClosed
	}

	change := &DocumentChange{Type: ChangeDeleted, Path: p, Timestamp: ms.now()}
	switch {
	case ms.files[p] != nil:
		delete(ms.files, p)
		delete(ms.metadata, p)
	case ms.hasFolderLocked(p):
		prefix := p + "/"
		for fp := range ms.files {
			if strings.HasPrefix(fp, prefix) {
				delete(ms.files, fp)
				delete(ms.metadata, fp)
			}
		}
		for dp := range ms.folders {
			if dp == p || strings.HasPrefix(dp, prefix) {
				delete(ms.folders, dp)
			}
		}
		change.Folder = true
	default:
		ms.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	listeners := ms.listeners.snapshot()
	ms.mu.Unlock()

	notifyListeners(listeners, []*DocumentChange{change})
	return nil
}

// Rename moves a file or folder to a new path
func (ms *MemoryStore) Rename(oldPath, newPath string) error {
	oldPath = NormalizePath(oldPath)
	newPath = NormalizePath(newPath)
	if newPath == "" {
		return fmt.Errorf("document path cannot be empty")
	}

	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return ErrClosed
	}
	if ms.files[newPath] != nil || ms.hasFolderLocked(newPath) {
		ms.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, newPath)
	}
	if strings.HasPrefix(newPath, oldPath+"/") {
		ms.mu.Unlock()
		return fmt.Errorf("cannot move %s into itself", oldPath)
	}
	if ms.files[oldPath] == nil && !ms.hasFolderLocked(oldPath) {
		ms.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, oldPath)
	}

	now := ms.now()
	changes := ms.ensureParentsLocked(newPath, now)
	change := &DocumentChange{Type: ChangeRenamed, Path: newPath, OldPath: oldPath, Timestamp: now}

	if ms.files[oldPath] != nil {
		ms.files[newPath] = ms.files[oldPath]
		delete(ms.files, oldPath)
		if meta, ok := ms.metadata[oldPath]; ok {
			ms.metadata[newPath] = meta
			delete(ms.metadata, oldPath)
		}
	} else {
		prefix := oldPath + "/"
		var files, folders []string
		for fp := range ms.files {
			if strings.HasPrefix(fp, prefix) {
				files = append(files, fp)
			}
		}
		for dp := range ms.folders {
			if dp == oldPath || strings.HasPrefix(dp, prefix) {
				folders = append(folders, dp)
			}
		}
		for _, fp := range files {
			moved := newPath + "/" + strings.TrimPrefix(fp, prefix)
			ms.files[moved] = ms.files[fp]
			delete(ms.files, fp)
			if meta, ok := ms.metadata[fp]; ok {
				ms.metadata[moved] = meta
				delete(ms.metadata, fp)
			}
		}
		for _, dp := range folders {
			delete(ms.folders, dp)
		}
		for _, dp := range folders {
			ms.folders[newPath+strings.TrimPrefix(dp, oldPath)] = struct{}{}
		}
		change.Folder = true
	}
	changes = append(changes, change)

	listeners := ms.listeners.snapshot()
	ms.mu.Unlock()

	notifyListeners(listeners, changes)
	return nil
}

// SetMetadata attaches host metadata to a file
func (ms *MemoryStore) SetMetadata(p string, meta map[string]interface{}) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.metadata[NormalizePath(p)] = meta
}

// Metadata implements MetadataProvider
func (ms *MemoryStore) Metadata(p string) map[string]interface{} {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.metadata[p]
}

// Enumerate lists folders first, then files, each in lexical order
func (ms *MemoryStore) Enumerate(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, ErrClosed
	}

	entries := make([]Entry, 0, len(ms.folders)+len(ms.files))
	for p := range ms.folders {
		entries = append(entries, Entry{Path: p, Folder: true})
	}
	for p, f := range ms.files {
		entries = append(entries, Entry{Path: p, Stat: f.stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Folder != entries[j].Folder {
			return entries[i].Folder
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Read returns a copy of the file content
func (ms *MemoryStore) Read(ctx context.Context, p string) ([]byte, Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stat{}, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, Stat{}, ErrClosed
	}
	f, ok := ms.files[p]
	if !ok {
		if ms.hasFolderLocked(p) {
			return nil, Stat{}, fmt.Errorf("%w: %s", ErrIsFolder, p)
		}
		return nil, Stat{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return content, f.stat, nil
}

// AddChangeListener adds a change listener
func (ms *MemoryStore) AddChangeListener(listener ChangeListener) func() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	id := ms.listeners.add(listener)
	return func() {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		ms.listeners.remove(id)
	}
}

// Close closes the store and releases resources
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.closed = true
	ms.files = nil
	ms.folders = nil
	ms.metadata = nil
	ms.listeners = listenerSet{}
	return nil
}

// Helper methods

func (ms *MemoryStore) hasFolderLocked(p string) bool {
	_, ok := ms.folders[p]
	return ok
}

// ensureParentsLocked creates the missing parent folders of p, outermost first
func (ms *MemoryStore) ensureParentsLocked(p string, now time.Time) []*DocumentChange {
	var missing []string
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if ms.hasFolderLocked(dir) {
			break
		}
		missing = append(missing, dir)
	}

	changes := make([]*DocumentChange, 0, len(missing))
	for i := len(missing) - 1; i >= 0; i-- {
		ms.folders[missing[i]] = struct{}{}
		changes = append(changes, &DocumentChange{Type: ChangeCreated, Path: missing[i], Folder: true, Timestamp: now})
	}
	return changes
}
