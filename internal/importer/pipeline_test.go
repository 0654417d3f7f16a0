package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yildizm/notedex/internal/docstore"
)

const waitFor = 5 * time.Second

// gatedParser blocks every parse until the gate is closed
type gatedParser struct {
	gate      chan struct{}
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func newGatedParser() *gatedParser {
	return &gatedParser{gate: make(chan struct{})}
}

func (g *gatedParser) Parse(path string, content []byte, _ docstore.Stat, _ map[string]interface{}) (*docstore.Facts, error) {
	g.calls.Add(1)
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxActive.Load()
		if n <= m || g.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	<-g.gate
	return &docstore.Facts{Path: path, Tags: []string{"#" + string(content)}}, nil
}

func storeWith(t *testing.T, paths ...string) *docstore.MemoryStore {
	t.Helper()
	store := docstore.NewMemoryStore()
	for _, p := range paths {
		require.NoError(t, store.Put(p, "x"))
	}
	return store
}

func newPipeline(t *testing.T, parser Parser, reader Reader, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(parser, reader, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func wait(t *testing.T, f *Future) (*docstore.Facts, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	facts, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future never resolved")
	return facts, err
}

func TestReloadDeduplicates(t *testing.T) {
	parser := newGatedParser()
	p := newPipeline(t, parser, storeWith(t, "a.md"))

	first := p.Reload("a.md")
	second := p.Reload("a.md")
	close(parser.gate)

	f1, err := wait(t, first)
	require.NoError(t, err)
	f2, err := wait(t, second)
	require.NoError(t, err)

	assert.Same(t, f1, f2, "both callers must receive the same facts")
	assert.Equal(t, int32(1), parser.calls.Load())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Dispatched)
	assert.Equal(t, uint64(1), stats.Deduplicated)
	assert.Equal(t, uint64(1), stats.Completed)
}

func TestPoolLiveness(t *testing.T) {
	const workers, docs = 3, 20

	paths := make([]string, docs)
	for i := range paths {
		paths[i] = fmt.Sprintf("doc-%02d.md", i)
	}
	parser := newGatedParser()
	p := newPipeline(t, parser, storeWith(t, paths...), WithWorkers(workers))

	futures := make([]*Future, docs)
	for i, path := range paths {
		futures[i] = p.Reload(path)
	}

	// Every worker is busy while the rest wait in the queue
	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Busy == workers && s.Queued == docs-workers && parser.active.Load() == workers
	}, waitFor, 5*time.Millisecond)

	close(parser.gate)
	for i, f := range futures {
		facts, err := wait(t, f)
		require.NoError(t, err)
		assert.Equal(t, paths[i], facts.Path)
	}

	assert.Equal(t, int32(workers), parser.maxActive.Load())
	assert.Equal(t, int32(docs), parser.calls.Load())

	require.NoError(t, p.Idle(context.Background()))
	stats := p.Stats()
	assert.Equal(t, 0, stats.Busy)
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, uint64(docs), stats.Completed)
}

func TestErrorDoesNotStallWorker(t *testing.T) {
	gate := make(chan struct{})
	parser := ParserFunc(func(path string, content []byte, _ docstore.Stat, _ map[string]interface{}) (*docstore.Facts, error) {
		<-gate
		if path == "bad.md" {
			return nil, errors.New("unterminated frontmatter")
		}
		return &docstore.Facts{Path: path}, nil
	})
	p := newPipeline(t, parser, storeWith(t, "bad.md", "good.md"), WithWorkers(1))

	bad := p.Reload("bad.md")
	bad2 := p.Reload("bad.md")
	good := p.Reload("good.md")
	close(gate)

	_, err := wait(t, bad)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.md", perr.Path)
	assert.Contains(t, perr.Message, "unterminated frontmatter")

	_, err2 := wait(t, bad2)
	assert.Same(t, err, err2, "every waiter gets the same error")

	facts, err := wait(t, good)
	require.NoError(t, err)
	assert.Equal(t, "good.md", facts.Path)
	assert.Equal(t, uint64(1), p.Stats().Failed)
}

func TestPanicIsRecovered(t *testing.T) {
	parser := ParserFunc(func(path string, _ []byte, _ docstore.Stat, _ map[string]interface{}) (*docstore.Facts, error) {
		if path == "panic.md" {
			panic("index out of range")
		}
		return &docstore.Facts{Path: path}, nil
	})
	p := newPipeline(t, parser, storeWith(t, "panic.md", "ok.md"), WithWorkers(1))

	_, err := wait(t, p.Reload("panic.md"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "panic")

	facts, err := wait(t, p.Reload("ok.md"))
	require.NoError(t, err)
	assert.Equal(t, "ok.md", facts.Path)
}

func TestNilFactsIsAnError(t *testing.T) {
	parser := ParserFunc(func(string, []byte, docstore.Stat, map[string]interface{}) (*docstore.Facts, error) {
		return nil, nil
	})
	p := newPipeline(t, parser, storeWith(t, "a.md"))

	_, err := wait(t, p.Reload("a.md"))
	assert.Error(t, err)
}

func TestReadFailure(t *testing.T) {
	parser := newGatedParser()
	close(parser.gate)
	p := newPipeline(t, parser, storeWith(t, "a.md"), WithWorkers(1))

	_, err := wait(t, p.Reload("missing.md"))
	require.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Equal(t, int32(0), parser.calls.Load())
	assert.Equal(t, uint64(0), p.Stats().Failed)
	assert.Equal(t, uint64(1), p.Stats().Vanished)

	_, err = wait(t, p.Reload("a.md"))
	require.NoError(t, err)
}

func TestRequestCarriesMetadata(t *testing.T) {
	var got atomic.Value
	parser := ParserFunc(func(path string, content []byte, stat docstore.Stat, meta map[string]interface{}) (*docstore.Facts, error) {
		got.Store(meta)
		return &docstore.Facts{Path: path, Stat: stat}, nil
	})
	store := storeWith(t, "a.md")
	store.SetMetadata("a.md", map[string]interface{}{"pinned": true})

	p := newPipeline(t, parser, store, WithMetadata(store.Metadata))
	facts, err := wait(t, p.Reload("a.md"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), facts.Stat.Size)
	meta := got.Load().(map[string]interface{})
	assert.Equal(t, true, meta["pinned"])
}

func TestHooksRunBeforeWaiters(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
		early  bool
		fut    *Future
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	parser := newGatedParser()
	hooks := Hooks{
		OnQueue:    func(path string) { record("queue " + path) },
		OnDispatch: func(path string) { record("dispatch " + path) },
		OnResult: func(path string, facts *docstore.Facts, err error) {
			record("result " + path)
			mu.Lock()
			defer mu.Unlock()
			select {
			case <-fut.Done():
				early = true
			default:
			}
		},
	}
	p := newPipeline(t, parser, storeWith(t, "a.md"), WithHooks(hooks))

	mu.Lock()
	fut = p.Reload("a.md")
	mu.Unlock()
	close(parser.gate)

	_, err := wait(t, fut)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"queue a.md", "dispatch a.md", "result a.md"}, events)
	assert.False(t, early, "waiters must be released after the result hook")
}

func TestCloseFailsPendingWaiters(t *testing.T) {
	parser := newGatedParser()
	p, err := New(parser, storeWith(t, "a.md", "b.md"), WithWorkers(1))
	require.NoError(t, err)

	running := p.Reload("a.md")
	queued := p.Reload("b.md")
	require.Eventually(t, func() bool { return p.Stats().Busy == 1 }, waitFor, 5*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	_, err = wait(t, queued)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = wait(t, running)
	assert.ErrorIs(t, err, ErrClosed)

	// The in-flight parse still has to finish before Close returns
	close(parser.gate)
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}

	_, err = wait(t, p.Reload("a.md"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Idle(context.Background()), ErrClosed)
}

func TestIdleRespectsContext(t *testing.T) {
	parser := newGatedParser()
	p := newPipeline(t, parser, storeWith(t, "a.md"))
	p.Reload("a.md")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Idle(ctx), context.DeadlineExceeded)

	close(parser.gate)
	require.NoError(t, p.Idle(context.Background()))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, docstore.NewMemoryStore())
	assert.Error(t, err)
	_, err = New(newGatedParser(), nil)
	assert.Error(t, err)
}
