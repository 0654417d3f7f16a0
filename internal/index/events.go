package index

import (
	"strings"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/logger"
	"github.com/yildizm/notedex/internal/pathset"
)

// update collects what a store event requires once the index lock is
// released. Reloads must never be issued under the lock: the pipeline's
// hooks take it from the control goroutine.
type update struct {
	touched   bool
	revision  uint64
	documents int
	reload    []string
	csv       []string
	purge     bool
}

// handleChange applies a store event to the tree and the relations
func (fi *FullIndex) handleChange(change *docstore.DocumentChange) {
	var u update

	fi.mu.Lock()
	switch change.Type {
	case docstore.ChangeCreated:
		fi.createdLocked(change, &u)
	case docstore.ChangeModified:
		fi.modifiedLocked(change, &u)
	case docstore.ChangeDeleted:
		fi.deletedLocked(change, &u)
	case docstore.ChangeRenamed:
		fi.renamedLocked(change, &u)
	}
	if change.Type != docstore.ChangeModified {
		fi.structure++
	}
	if u.touched {
		u.revision, u.documents = fi.touchLocked()
	}
	fi.mu.Unlock()

	fi.log.DebugWithFields("store change", []logger.Field{
		logger.F("type", change.Type.String()),
		logger.Path(change.Path),
	})

	if u.purge {
		fi.cache.Purge()
	}
	for _, p := range u.csv {
		fi.cache.Invalidate(p)
	}
	if u.touched {
		fi.notify(u.revision, u.documents)
	}
	for _, p := range u.reload {
		fi.pipeline.Reload(p)
	}
}

func (fi *FullIndex) createdLocked(change *docstore.DocumentChange, u *update) {
	fi.tree.OnDocumentChanged(change)
	if change.Folder {
		return
	}

	p := change.Path
	fi.names.Set(p, pathset.New(linkName(p)))
	switch {
	case docstore.IsMarkdownPath(p):
		// The revision moves when the facts land
		u.reload = append(u.reload, p)
	case docstore.IsCSVPath(p):
		u.csv = append(u.csv, p)
		u.touched = true
	default:
		u.touched = true
	}
}

func (fi *FullIndex) modifiedLocked(change *docstore.DocumentChange, u *update) {
	p := change.Path
	switch {
	case change.Folder:
	case docstore.IsMarkdownPath(p):
		u.reload = append(u.reload, p)
	case docstore.IsCSVPath(p):
		u.csv = append(u.csv, p)
		u.touched = true
	}
}

func (fi *FullIndex) deletedLocked(change *docstore.DocumentChange, u *update) {
	p := change.Path
	files := []string{p}
	if change.Folder || fi.tree.NodeExists(p) {
		files = fi.tree.Get(p, nil).Sorted()
		u.purge = true
	}

	// Unknown paths are a no-op; a removed empty folder still changes Folder results
	changed := fi.tree.Remove(p)
	for _, f := range files {
		fi.names.Delete(f)
		delete(fi.states, f)
		if fi.dropLocked(f) {
			changed = true
		}
		if docstore.IsCSVPath(f) {
			u.csv = append(u.csv, f)
		}
	}
	u.touched = changed
}

func (fi *FullIndex) renamedLocked(change *docstore.DocumentChange, u *update) {
	oldPath, newPath := change.OldPath, change.Path

	moves := map[string]string{oldPath: newPath}
	if change.Folder || fi.tree.NodeExists(oldPath) {
		moves = make(map[string]string)
		for f := range fi.tree.Get(oldPath, nil) {
			moves[f] = newPath + strings.TrimPrefix(f, oldPath)
		}
		u.purge = true
	}

	if !fi.tree.Rename(oldPath, newPath) {
		// Never seen: treat the destination as new
		fi.tree.OnDocumentChanged(&docstore.DocumentChange{Type: docstore.ChangeCreated, Path: newPath, Folder: change.Folder})
		if !change.Folder {
			fi.names.Set(newPath, pathset.New(linkName(newPath)))
			if docstore.IsMarkdownPath(newPath) {
				u.reload = append(u.reload, newPath)
			}
		}
		u.touched = true
		return
	}
	u.touched = true

	for from, to := range moves {
		fi.moveLocked(from, to, u)
	}
}

// moveLocked migrates one file's facts and relations to its new path in a
// single step, so readers never see it under neither path
func (fi *FullIndex) moveLocked(from, to string, u *update) {
	fi.names.Delete(from)
	fi.names.Set(to, pathset.New(linkName(to)))
	if docstore.IsCSVPath(from) {
		u.csv = append(u.csv, from)
	}

	_, pending := fi.states[from]
	delete(fi.states, from)

	facts, indexed := fi.pages[from]
	fi.dropLocked(to)

	switch {
	case !docstore.IsMarkdownPath(to):
		fi.dropLocked(from)
	case !indexed:
		u.reload = append(u.reload, to)
	default:
		delete(fi.pages, from)
		fi.pages[to] = facts.WithPath(to)
		fi.tags.Rename(from, to)
		fi.etags.Rename(from, to)
		fi.links.Rename(from, to)
		if pending {
			// The in-flight parse of the old path will be discarded
			u.reload = append(u.reload, to)
		}
	}
}

// onResult runs on the pipeline's control goroutine before the waiters of
// p are released
func (fi *FullIndex) onResult(p string, facts *docstore.Facts, err error) {
	fi.mu.Lock()
	delete(fi.states, p)

	if err != nil || facts == nil {
		// The previous snapshot, if any, stays visible
		fi.mu.Unlock()
		return
	}
	if !fi.tree.PathExists(p) || fi.tree.NodeExists(p) {
		fi.mu.Unlock()
		fi.log.DebugWithFields("discarding facts of a vanished document", []logger.Field{logger.Path(p)})
		return
	}

	if facts.Path != p {
		facts = facts.WithPath(p)
	}
	fi.installLocked(p, facts)
	revision, documents := fi.touchLocked()
	fi.mu.Unlock()

	fi.notify(revision, documents)
}
