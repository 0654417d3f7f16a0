package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrIsFolder   = errors.New("path is a folder")
	ErrExists     = errors.New("path already exists")
	ErrClosed     = errors.New("store closed")
	ErrPathEscape = errors.New("path escapes store root")
)

// DocumentStore is the source of documents for the index
type DocumentStore interface {
	// Enumerate lists every folder and file currently in the store
	Enumerate(ctx context.Context) ([]Entry, error)

	// Read returns the raw content and stat of a file
	Read(ctx context.Context, path string) ([]byte, Stat, error)

	// AddChangeListener registers a listener for lifecycle events and
	// returns a function that removes it again
	AddChangeListener(listener ChangeListener) func()

	// Close releases resources
	Close() error
}

// MetadataProvider is implemented by stores that attach host metadata to documents
type MetadataProvider interface {
	Metadata(path string) map[string]interface{}
}

// ChangeListener is called when documents change
type ChangeListener interface {
	OnDocumentChanged(change *DocumentChange)
}

// ChangeListenerFunc adapts a function to ChangeListener
type ChangeListenerFunc func(change *DocumentChange)

// OnDocumentChanged calls f(change)
func (f ChangeListenerFunc) OnDocumentChanged(change *DocumentChange) {
	f(change)
}

// listenerSet is the listener bookkeeping shared by the store implementations
type listenerSet struct {
	next      int
	listeners map[int]ChangeListener
}

func (ls *listenerSet) add(l ChangeListener) int {
	if ls.listeners == nil {
		ls.listeners = make(map[int]ChangeListener)
	}
	ls.next++
	ls.listeners[ls.next] = l
	return ls.next
}

func (ls *listenerSet) remove(id int) {
	delete(ls.listeners, id)
}

func (ls *listenerSet) snapshot() []ChangeListener {
	out := make([]ChangeListener, 0, len(ls.listeners))
	for i := 1; i <= ls.next; i++ {
		if l, ok := ls.listeners[i]; ok {
			out = append(out, l)
		}
	}
	return out
}

func notifyListeners(listeners []ChangeListener, changes []*DocumentChange) {
	for _, change := range changes {
		for _, l := range listeners {
			l.OnDocumentChanged(change)
		}
	}
}
