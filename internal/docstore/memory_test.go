package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recorder collects change events in delivery order
type recorder struct {
	mu      sync.Mutex
	changes []DocumentChange
}

func (r *recorder) OnDocumentChanged(change *DocumentChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, *change)
}

func (r *recorder) all() []DocumentChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DocumentChange, len(r.changes))
	copy(out, r.changes)
	return out
}

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestMemoryStore_PutAndRead(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put("Daily/2024-01-01.md", "hello"); err != nil {
		t.Fatalf("Failed to put document: %v", err)
	}

	content, stat, err := store.Read(context.Background(), "Daily/2024-01-01.md")
	if err != nil {
		t.Fatalf("Failed to read document: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected content %q, got %q", "hello", content)
	}
	if stat.Size != 5 {
		t.Errorf("Expected size 5, got %d", stat.Size)
	}

	// Mutating the returned slice must not leak into the store
	content[0] = 'X'
	again, _, _ := store.Read(context.Background(), "Daily/2024-01-01.md")
	if string(again) != "hello" {
		t.Errorf("Expected stored content to be unchanged, got %q", again)
	}
}

func TestMemoryStore_ReadErrors(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put("A/b.md", "x"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := store.Read(context.Background(), "missing.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Read(context.Background(), "A"); !errors.Is(err, ErrIsFolder) {
		t.Errorf("Expected ErrIsFolder, got %v", err)
	}
}

func TestMemoryStore_PutEmitsEvents(t *testing.T) {
	store := newTestStore(t)
	rec := &recorder{}
	store.AddChangeListener(rec)

	if err := store.Put("a/b/c.md", "one"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("a/b/c.md", "two"); err != nil {
		t.Fatal(err)
	}

	changes := rec.all()
	expected := []struct {
		ct     ChangeType
		path   string
		folder bool
	}{
		{ChangeCreated, "a", true},
		{ChangeCreated, "a/b", true},
		{ChangeCreated, "a/b/c.md", false},
		{ChangeModified, "a/b/c.md", false},
	}
	if len(changes) != len(expected) {
		t.Fatalf("Expected %d changes, got %d: %+v", len(expected), len(changes), changes)
	}
	for i, e := range expected {
		if changes[i].Type != e.ct || changes[i].Path != e.path || changes[i].Folder != e.folder {
			t.Errorf("Change %d: expected %s %s (folder=%v), got %s %s (folder=%v)",
				i, e.ct, e.path, e.folder, changes[i].Type, changes[i].Path, changes[i].Folder)
		}
	}
}

func TestMemoryStore_RenameFile(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put("Daily/a.md", "x"); err != nil {
		t.Fatal(err)
	}
	store.SetMetadata("Daily/a.md", map[string]interface{}{"k": "v"})

	rec := &recorder{}
	store.AddChangeListener(rec)

	if err := store.Rename("Daily/a.md", "Archive/a.md"); err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}

	if _, _, err := store.Read(context.Background(), "Daily/a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old path to be gone, got %v", err)
	}
	if _, _, err := store.Read(context.Background(), "Archive/a.md"); err != nil {
		t.Errorf("Expected new path to be readable: %v", err)
	}
	if store.Metadata("Archive/a.md")["k"] != "v" {
		t.Error("Expected metadata to follow the rename")
	}

	changes := rec.all()
	last := changes[len(changes)-1]
	if last.Type != ChangeRenamed || last.Path != "Archive/a.md" || last.OldPath != "Daily/a.md" {
		t.Errorf("Unexpected rename event: %+v", last)
	}
	if changes[0].Type != ChangeCreated || changes[0].Path != "Archive" {
		t.Errorf("Expected parent folder creation first, got %+v", changes[0])
	}
}

func TestMemoryStore_RenameFolder(t *testing.T) {
	store := newTestStore(t)
	for _, p := range []string{"P/a.md", "P/sub/b.md", "Q.md"} {
		if err := store.Put(p, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Rename("P", "R"); err != nil {
		t.Fatalf("Failed to rename folder: %v", err)
	}

	entries, err := store.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Path)
	}
	want := []string{"R", "R/sub", "Q.md", "R/a.md", "R/sub/b.md"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if err := store.Rename("R", "R/sub/inner"); err == nil {
		t.Error("Expected moving a folder into itself to fail")
	}
}

func TestMemoryStore_RenameConflicts(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put("a.md", "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("b.md", "b"); err != nil {
		t.Fatal(err)
	}

	if err := store.Rename("a.md", "b.md"); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists, got %v", err)
	}
	if err := store.Rename("missing.md", "c.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_RemoveFolder(t *testing.T) {
	store := newTestStore(t)
	for _, p := range []string{"P/a.md", "P/sub/b.md", "Q.md"} {
		if err := store.Put(p, p); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	store.AddChangeListener(rec)

	if err := store.Remove("P"); err != nil {
		t.Fatalf("Failed to remove folder: %v", err)
	}

	changes := rec.all()
	if len(changes) != 1 || !changes[0].Folder || changes[0].Type != ChangeDeleted {
		t.Fatalf("Expected one folder delete event, got %+v", changes)
	}

	entries, _ := store.Enumerate(context.Background())
	if len(entries) != 1 || entries[0].Path != "Q.md" {
		t.Errorf("Expected only Q.md to remain, got %+v", entries)
	}
}

func TestMemoryStore_RemoveListener(t *testing.T) {
	store := newTestStore(t)
	rec := &recorder{}
	remove := store.AddChangeListener(rec)

	if err := store.Put("a.md", "x"); err != nil {
		t.Fatal(err)
	}
	remove()
	if err := store.Put("b.md", "y"); err != nil {
		t.Fatal(err)
	}

	if n := len(rec.all()); n != 1 {
		t.Errorf("Expected 1 change before removal, got %d", n)
	}
}

func TestMemoryStore_ListenerMayReenter(t *testing.T) {
	store := newTestStore(t)
	var read string
	store.AddChangeListener(ChangeListenerFunc(func(change *DocumentChange) {
		if change.Type == ChangeCreated && !change.Folder {
			content, _, err := store.Read(context.Background(), change.Path)
			if err == nil {
				read = string(content)
			}
		}
	}))

	if err := store.Put("a.md", "body"); err != nil {
		t.Fatal(err)
	}
	if read != "body" {
		t.Errorf("Expected listener to read %q, got %q", "body", read)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.Put("a.md", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := store.Enumerate(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
