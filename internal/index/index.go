// Package index maintains the queryable document index: parsed facts per
// document, the tag and link relations, the folder tree and the CSV cache,
// kept current by the import pipeline and the store's change events.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yildizm/notedex/internal/csvcache"
	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/importer"
	"github.com/yildizm/notedex/internal/indexmap"
	"github.com/yildizm/notedex/internal/logger"
	"github.com/yildizm/notedex/internal/pathset"
	"github.com/yildizm/notedex/internal/prefix"
	"github.com/yildizm/notedex/internal/source"
)

// State is the indexing state of one document
type State int

const (
	Unindexed State = iota
	Queued
	Parsing
	Indexed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Parsing:
		return "parsing"
	case Indexed:
		return "indexed"
	default:
		return "unindexed"
	}
}

// Observer receives index events; internal/metrics implements it
type Observer interface {
	Touched(revision uint64, documents int)
}

// LinkResolver is the host's link resolution. It is consulted before the
// built-in rules and must not call back into the index.
type LinkResolver interface {
	ResolveLink(link, origin string) (string, bool)
}

// LinkResolverFunc adapts a function to LinkResolver
type LinkResolverFunc func(link, origin string) (string, bool)

// ResolveLink calls f
func (f LinkResolverFunc) ResolveLink(link, origin string) (string, bool) {
	return f(link, origin)
}

// Stats summarizes the index
type Stats struct {
	Revision  uint64         `json:"revision"`
	Files     int            `json:"files"`
	Documents int            `json:"documents"`
	Tags      int            `json:"tags"`
	Links     int            `json:"links"`
	CSVTables int            `json:"csv_tables"`
	Importer  importer.Stats `json:"importer"`
}

// FullIndex is the document index of one store. All state is guarded by mu;
// the pipeline's result hook and store events take the write lock, queries
// take the read lock.
type FullIndex struct {
	store    docstore.DocumentStore
	parser   importer.Parser
	workers  int
	cache    *csvcache.Cache
	observer Observer
	linker   LinkResolver
	onChange func(revision uint64)
	log      *logger.Logger

	mu       sync.RWMutex
	pages    map[string]*docstore.Facts
	states   map[string]State
	tags     *indexmap.IndexMap
	etags    *indexmap.IndexMap
	links    *indexmap.IndexMap
	names    *indexmap.IndexMap
	tree     *prefix.Index
	revision uint64
	// structure moves with every tree or names change; link resolution
	// depends on both even when no facts changed
	structure uint64

	resolvedMu        sync.Mutex
	resolved          map[string]pathset.Set
	resolvedRev       uint64
	resolvedStructure uint64

	pipeline    *importer.Pipeline
	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a FullIndex
type Option func(*FullIndex)

// WithWorkers sets the import pool size
func WithWorkers(n int) Option {
	return func(fi *FullIndex) { fi.workers = n }
}

// WithParser replaces the markdown parser
func WithParser(p importer.Parser) Option {
	return func(fi *FullIndex) {
		if p != nil {
			fi.parser = p
		}
	}
}

// WithCache replaces the default store-backed CSV cache
func WithCache(c *csvcache.Cache) Option {
	return func(fi *FullIndex) { fi.cache = c }
}

// WithObserver attaches an observer. If it also implements
// importer.Observer it is handed to the pipeline.
func WithObserver(o Observer) Option {
	return func(fi *FullIndex) { fi.observer = o }
}

// WithLinkResolver installs host link resolution
func WithLinkResolver(r LinkResolver) Option {
	return func(fi *FullIndex) { fi.linker = r }
}

// WithOnChange registers a callback invoked once per revision bump, after
// the index lock is released. It may run on the pipeline's control
// goroutine, so it must not wait on a Reload.
func WithOnChange(fn func(revision uint64)) Option {
	return func(fi *FullIndex) { fi.onChange = fn }
}

// WithLogger sets the index logger; the pipeline logs under a child component
func WithLogger(l *logger.Logger) Option {
	return func(fi *FullIndex) {
		if l != nil {
			fi.log = l
		}
	}
}

// New creates an index over store and starts its import pipeline. The
// index is empty until Initialize runs.
func New(store docstore.DocumentStore, opts ...Option) (*FullIndex, error) {
	if store == nil {
		return nil, errors.New("index requires a document store")
	}

	fi := &FullIndex{
		store:  store,
		parser: docstore.NewMarkdownParser(),
		log:    logger.Discard(),
		pages:  make(map[string]*docstore.Facts),
		states: make(map[string]State),
		tags:   indexmap.New(),
		etags:  indexmap.New(),
		links:  indexmap.New(),
		names:  indexmap.New(),
		tree:   prefix.New(),
	}
	for _, opt := range opts {
		opt(fi)
	}

	if fi.cache == nil {
		var cacheOpts []csvcache.Option
		if o, ok := fi.observer.(csvcache.Observer); ok {
			cacheOpts = append(cacheOpts, csvcache.WithObserver(o))
		}
		cache, err := csvcache.New(csvcache.NewStoreLoader(store), csvcache.DefaultCapacity, cacheOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create CSV cache: %w", err)
		}
		fi.cache = cache
	}

	pipelineOpts := []importer.Option{
		importer.WithWorkers(fi.workers),
		importer.WithLogger(fi.log.WithComponent("importer")),
		importer.WithHooks(importer.Hooks{
			OnQueue:    func(p string) { fi.setState(p, Queued) },
			OnDispatch: func(p string) { fi.setState(p, Parsing) },
			OnResult:   fi.onResult,
		}),
	}
	if o, ok := fi.observer.(importer.Observer); ok {
		pipelineOpts = append(pipelineOpts, importer.WithObserver(o))
	}
	if mp, ok := store.(docstore.MetadataProvider); ok {
		pipelineOpts = append(pipelineOpts, importer.WithMetadata(mp.Metadata))
	}

	pipeline, err := importer.New(fi.parser, store, pipelineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start import pipeline: %w", err)
	}
	fi.pipeline = pipeline
	return fi, nil
}

// Initialize subscribes to store changes, loads the folder tree from a full
// enumeration and queues every markdown document for parsing. It returns
// without waiting for the parses; queries see a partially populated index
// until Settle returns.
func (fi *FullIndex) Initialize(ctx context.Context) error {
	if fi.unsubscribe != nil {
		return errors.New("index already initialized")
	}
	fi.unsubscribe = fi.store.AddChangeListener(docstore.ChangeListenerFunc(fi.handleChange))

	entries, err := fi.store.Enumerate(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate store: %w", err)
	}

	var documents []string
	fi.mu.Lock()
	fi.tree.Load(entries)
	fi.structure++
	for _, e := range entries {
		if e.Folder {
			continue
		}
		p := docstore.NormalizePath(e.Path)
		fi.names.Set(p, pathset.New(linkName(p)))
		if docstore.IsMarkdownPath(p) {
			documents = append(documents, p)
		}
	}
	fi.mu.Unlock()

	for _, p := range documents {
		fi.pipeline.Reload(p)
	}
	fi.log.InfoWithFields("index initialized", []logger.Field{logger.Count(len(documents)), logger.F("entries", len(entries))})
	return nil
}

// Settle blocks until every queued document has been parsed
func (fi *FullIndex) Settle(ctx context.Context) error {
	return fi.pipeline.Idle(ctx)
}

// Reload queues path for a reparse and returns the pending result
func (fi *FullIndex) Reload(p string) *importer.Future {
	return fi.pipeline.Reload(docstore.NormalizePath(p))
}

// Query resolves a source expression against the current revision. origin
// is the document the query runs from, or "".
func (fi *FullIndex) Query(src source.Source, origin string) (pathset.Set, error) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return source.Resolve(src, fi.viewLocked(), docstore.NormalizePath(origin))
}

// CSV returns the table at p, resolved relative to origin when given
func (fi *FullIndex) CSV(ctx context.Context, p, origin string) (*csvcache.Table, error) {
	if !csvcache.IsRemote(p) {
		if origin != "" {
			fi.mu.RLock()
			p = fi.tree.ResolveRelative(p, docstore.NormalizePath(origin))
			fi.mu.RUnlock()
		}
		p = docstore.NormalizePath(p)
	}
	return fi.cache.Get(ctx, p)
}

// Page returns the facts of an indexed document
func (fi *FullIndex) Page(p string) (*docstore.Facts, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	facts, ok := fi.pages[docstore.NormalizePath(p)]
	return facts, ok
}

// Documents returns the paths of every indexed document
func (fi *FullIndex) Documents() pathset.Set {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	out := make(pathset.Set, len(fi.pages))
	for p := range fi.pages {
		out.Add(p)
	}
	return out
}

// State reports where a document is in the indexing lifecycle
func (fi *FullIndex) State(p string) State {
	p = docstore.NormalizePath(p)
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	if s, ok := fi.states[p]; ok {
		return s
	}
	if _, ok := fi.pages[p]; ok {
		return Indexed
	}
	return Unindexed
}

// Revision returns the change counter
func (fi *FullIndex) Revision() uint64 {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.revision
}

// TagCounts returns the number of documents under each transitive tag
func (fi *FullIndex) TagCounts() map[string]int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	out := make(map[string]int, fi.tags.Values())
	fi.tags.EachValue(func(tag string, docs pathset.Set) bool {
		out[tag] = docs.Len()
		return true
	})
	return out
}

// Stats returns a summary of the index and its pipeline
func (fi *FullIndex) Stats() Stats {
	fi.mu.RLock()
	stats := Stats{
		Revision:  fi.revision,
		Files:     fi.tree.Len(),
		Documents: len(fi.pages),
		Tags:      fi.tags.Values(),
		Links:     fi.links.Values(),
	}
	fi.mu.RUnlock()

	stats.CSVTables = fi.cache.Len()
	stats.Importer = fi.pipeline.Stats()
	return stats
}

// Close detaches from the store and stops the pipeline. The store itself
// is left open.
func (fi *FullIndex) Close() error {
	fi.closeOnce.Do(func() {
		if fi.unsubscribe != nil {
			fi.unsubscribe()
		}
		fi.pipeline.Close()
		fi.cache.Purge()
	})
	return nil
}

// Helper methods

func (fi *FullIndex) setState(p string, s State) {
	fi.mu.Lock()
	fi.states[p] = s
	fi.mu.Unlock()
}

// installLocked replaces every relation of p with the given facts
func (fi *FullIndex) installLocked(p string, facts *docstore.Facts) {
	fi.pages[p] = facts
	fi.tags.Set(p, pathset.New(facts.Tags...))
	fi.etags.Set(p, pathset.New(facts.ExactTags...))
	fi.links.Set(p, pathset.New(facts.Links...))
}

// dropLocked removes p from every relation and reports whether it was indexed
func (fi *FullIndex) dropLocked(p string) bool {
	_, ok := fi.pages[p]
	delete(fi.pages, p)
	fi.tags.Delete(p)
	fi.etags.Delete(p)
	fi.links.Delete(p)
	return ok
}

// touchLocked bumps the revision; the caller must call notify with the
// result once the lock is released
func (fi *FullIndex) touchLocked() (uint64, int) {
	fi.revision++
	return fi.revision, len(fi.pages)
}

func (fi *FullIndex) notify(revision uint64, documents int) {
	fi.log.DebugWithFields("index touched", []logger.Field{logger.Revision(revision), logger.Count(documents)})
	if fi.observer != nil {
		fi.observer.Touched(revision, documents)
	}
	if fi.onChange != nil {
		fi.onChange(revision)
	}
}
