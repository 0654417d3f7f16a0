package docstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSStore implements DocumentStore over a directory tree. Change events are
// produced by Watch; without it the store is a static snapshot reader.
type FSStore struct {
	root            string
	includePatterns []string
	excludePatterns []string
	debounce        time.Duration

	mu        sync.Mutex
	listeners listenerSet
	folders   map[string]struct{} // known folders, needed to classify removals
	pending   map[string]time.Time
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}

	// OnError receives watcher errors; nil drops them
	OnError func(err error)
}

// FSOption configures an FSStore
type FSOption func(*FSStore)

// WithPatterns overrides the include (file glob) and exclude (directory glob) patterns
func WithPatterns(include, exclude []string) FSOption {
	return func(s *FSStore) {
		if len(include) > 0 {
			s.includePatterns = include
		}
		if len(exclude) > 0 {
			s.excludePatterns = exclude
		}
	}
}

// WithDebounce sets how long a file must be quiet before a modify event is emitted
func WithDebounce(d time.Duration) FSOption {
	return func(s *FSStore) { s.debounce = d }
}

// NewFSStore creates a store rooted at dir
func NewFSStore(dir string, opts ...FSOption) (*FSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	s := &FSStore{
		root:            abs,
		includePatterns: []string{"*.md", "*.markdown", "*.csv"},
		excludePatterns: []string{".git", ".obsidian", ".trash", "node_modules"},
		debounce:        250 * time.Millisecond,
		folders:         make(map[string]struct{}),
		pending:         make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute store root
func (s *FSStore) Root() string {
	return s.root
}

// Enumerate walks the tree and lists every included file and non-excluded folder
func (s *FSStore) Enumerate(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	folders := make(map[string]struct{})

	err := filepath.WalkDir(s.root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if fp == s.root {
			return nil
		}

		rel, err := s.relative(fp)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if s.excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			folders[rel] = struct{}{}
			entries = append(entries, Entry{Path: rel, Folder: true})
			return nil
		}

		if !s.included(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// Vanished between listing and stat
			return nil
		}
		entries = append(entries, Entry{Path: rel, Stat: statOf(info)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", s.root, err)
	}

	s.mu.Lock()
	s.folders = folders
	s.mu.Unlock()

	return entries, nil
}

// Read reads a file relative to the store root
func (s *FSStore) Read(ctx context.Context, p string) ([]byte, Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stat{}, err
	}

	abs, err := s.safePath(p)
	if err != nil {
		return nil, Stat{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stat{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, Stat{}, fmt.Errorf("failed to stat file %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, Stat{}, fmt.Errorf("%w: %s", ErrIsFolder, p)
	}

	content, err := os.ReadFile(abs) //nolint:gosec // path is confined to the store root by safePath
	if err != nil {
		return nil, Stat{}, fmt.Errorf("failed to read file %s: %w", p, err)
	}
	return content, statOf(info), nil
}

// AddChangeListener adds a change listener
func (s *FSStore) AddChangeListener(listener ChangeListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.listeners.add(listener)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners.remove(id)
	}
}

// Watch starts delivering change events until ctx is cancelled or Close is called
func (s *FSStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.mu.Unlock()
		_ = watcher.Close()
		return fmt.Errorf("store is already being watched")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.addRecursive(watcher, s.root); err != nil {
		cancel()
		s.mu.Lock()
		s.watcher, s.cancel, s.done = nil, nil, nil
		s.mu.Unlock()
		_ = watcher.Close()
		return err
	}

	go s.processEvents(ctx, watcher)
	return nil
}

// Close stops watching and releases resources
func (s *FSStore) Close() error {
	s.mu.Lock()
	watcher, cancel, done := s.watcher, s.cancel, s.done
	s.watcher = nil
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	cancel()
	<-done
	return watcher.Close()
}

// processEvents turns fsnotify events into DocumentChanges. Writes are
// debounced; structural events are emitted immediately.
func (s *FSStore) processEvents(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(s.done)

	ticker := time.NewTicker(s.tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if s.OnError != nil {
				s.OnError(err)
			}

		case now := <-ticker.C:
			s.flushPending(now)
		}
	}
}

func (s *FSStore) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := s.relative(event.Name)
	if err != nil || rel == "" {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		s.handleCreate(watcher, event.Name, rel)
	case event.Has(fsnotify.Write):
		if s.included(filepath.Base(rel)) {
			s.mu.Lock()
			s.pending[rel] = time.Now()
			s.mu.Unlock()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// fsnotify reports the old name of a rename without the new one; the
		// new name arrives as a separate Create.
		s.handleRemove(rel)
	}
}

func (s *FSStore) handleCreate(watcher *fsnotify.Watcher, abs, rel string) {
	info, err := os.Stat(abs)
	if err != nil {
		return
	}

	if !info.IsDir() {
		if s.included(info.Name()) {
			s.emit(&DocumentChange{Type: ChangeCreated, Path: rel, Timestamp: time.Now()})
		}
		return
	}
	if s.excludedDir(info.Name()) {
		return
	}

	// A directory moved in from elsewhere arrives with its contents, which
	// produce no events of their own.
	var changes []*DocumentChange
	_ = filepath.WalkDir(abs, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		r, err := s.relative(fp)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if fp != abs && s.excludedDir(d.Name()) {
				return filepath.SkipDir
			}
			s.mu.Lock()
			s.folders[r] = struct{}{}
			s.mu.Unlock()
			_ = watcher.Add(fp)
			changes = append(changes, &DocumentChange{Type: ChangeCreated, Path: r, Folder: true, Timestamp: time.Now()})
			return nil
		}
		if s.included(d.Name()) {
			changes = append(changes, &DocumentChange{Type: ChangeCreated, Path: r, Timestamp: time.Now()})
		}
		return nil
	})
	s.emit(changes...)
}

func (s *FSStore) handleRemove(rel string) {
	s.mu.Lock()
	_, folder := s.folders[rel]
	if folder {
		prefix := rel + "/"
		for f := range s.folders {
			if f == rel || strings.HasPrefix(f, prefix) {
				delete(s.folders, f)
			}
		}
	}
	delete(s.pending, rel)
	s.mu.Unlock()

	if !folder && !s.included(filepath.Base(rel)) {
		return
	}
	s.emit(&DocumentChange{Type: ChangeDeleted, Path: rel, Folder: folder, Timestamp: time.Now()})
}

// flushPending emits modify events for files that have been quiet for the debounce window
func (s *FSStore) flushPending(now time.Time) {
	s.mu.Lock()
	var ready []*DocumentChange
	for p, changed := range s.pending {
		if now.Sub(changed) >= s.debounce {
			ready = append(ready, &DocumentChange{Type: ChangeModified, Path: p, Timestamp: now})
			delete(s.pending, p)
		}
	}
	s.mu.Unlock()

	s.emit(ready...)
}

func (s *FSStore) emit(changes ...*DocumentChange) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	listeners := s.listeners.snapshot()
	s.mu.Unlock()

	notifyListeners(listeners, changes)
}

// addRecursive adds a directory and all its subdirectories to the watch list
func (s *FSStore) addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			if fp == dir {
				return fmt.Errorf("failed to watch %s: %w", fp, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if fp != dir && s.excludedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(fp); err != nil {
			return fmt.Errorf("failed to watch %s: %w", fp, err)
		}
		if fp != s.root {
			if rel, err := s.relative(fp); err == nil {
				s.mu.Lock()
				s.folders[rel] = struct{}{}
				s.mu.Unlock()
			}
		}
		return nil
	})
}

// Helper methods

func (s *FSStore) tick() time.Duration {
	if s.debounce <= 0 {
		return 50 * time.Millisecond
	}
	if s.debounce < 100*time.Millisecond {
		return s.debounce
	}
	return 100 * time.Millisecond
}

func (s *FSStore) relative(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// safePath resolves a store path against the root and rejects anything
// that escapes it
func (s *FSStore) safePath(p string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(NormalizePath(p)))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}
	return abs, nil
}

func (s *FSStore) included(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	for _, pattern := range s.includePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func (s *FSStore) excludedDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range s.excludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func statOf(info os.FileInfo) Stat {
	return Stat{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		CTime:   info.ModTime(),
	}
}
