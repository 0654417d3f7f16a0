package csvcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yildizm/notedex/internal/docstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingLoader struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (l *countingLoader) Load(_ context.Context, path string) ([]byte, error) {
	l.calls.Add(1)
	if l.fail.Load() {
		return nil, errors.New("boom")
	}
	return []byte("name,qty\napple,3\npear,5\n"), nil
}

func newCache(t *testing.T, loader Loader, clock *fakeClock) *Cache {
	t.Helper()
	c, err := New(loader, 8, WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func TestGetCachesWithinExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	loader := &countingLoader{}
	c := newCache(t, loader, clock)

	table, err := c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "qty"}, table.Headers)
	assert.Equal(t, []Row{{"name": "apple", "qty": "3"}, {"name": "pear", "qty": "5"}}, table.Rows)

	clock.Advance(DefaultExpiry - time.Second)
	_, err = c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load(), "access before expiry must not reload")
}

func TestGetReloadsOnceAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	loader := &countingLoader{}
	c := newCache(t, loader, clock)

	_, err := c.Get(context.Background(), "data.csv")
	require.NoError(t, err)

	clock.Advance(DefaultExpiry + time.Second)
	_, err = c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "data.csv")
	require.NoError(t, err)

	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestSweepDropsOtherExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newCache(t, &countingLoader{}, clock)

	_, err := c.Get(context.Background(), "a.csv")
	require.NoError(t, err)
	clock.Advance(DefaultExpiry / 2)
	_, err = c.Get(context.Background(), "b.csv")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	// a.csv has now expired, b.csv has not; touching b sweeps a
	clock.Advance(DefaultExpiry/2 + time.Second)
	_, err = c.Get(context.Background(), "b.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestFailuresAreNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	loader := &countingLoader{}
	loader.fail.Store(true)
	c := newCache(t, loader, clock)

	_, err := c.Get(context.Background(), "data.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.csv")
	assert.Equal(t, 0, c.Len())

	loader.fail.Store(false)
	table, err := c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestInvalidate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	loader := &countingLoader{}
	c := newCache(t, loader, clock)

	_, err := c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.True(t, c.Invalidate("data.csv"))
	assert.False(t, c.Invalidate("data.csv"))

	_, err = c.Get(context.Background(), "data.csv")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	loader := LoaderFunc(func(ctx context.Context, path string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("a\n1\n"), nil
	})
	c, err := New(loader, 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "x.csv")
			assert.NoError(t, err)
		}()
	}
	// Give every goroutine a chance to join the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

// blockingLoader serves "h\nold" from its first load, which blocks until
// release is closed, and "h\nnew" afterwards
type blockingLoader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingLoader() *blockingLoader {
	return &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
}

func (l *blockingLoader) Load(ctx context.Context, path string) ([]byte, error) {
	if l.calls.Add(1) > 1 {
		return []byte("h\nnew\n"), nil
	}
	close(l.started)
	<-l.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("h\nold\n"), nil
}

func TestInvalidationDuringLoad(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *Cache)
	}{
		{name: "invalidate", invalidate: func(c *Cache) { c.Invalidate("a.csv") }},
		{name: "purge", invalidate: func(c *Cache) { c.Purge() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newBlockingLoader()
			c, err := New(loader, 8)
			require.NoError(t, err)

			done := make(chan *Table)
			go func() {
				table, err := c.Get(context.Background(), "a.csv")
				assert.NoError(t, err)
				done <- table
			}()

			<-loader.started
			tt.invalidate(c)
			close(loader.release)

			// The caller that started the load still gets its result
			assert.Equal(t, []Row{{"h": "old"}}, (<-done).Rows)
			assert.Equal(t, 0, c.Len())

			table, err := c.Get(context.Background(), "a.csv")
			require.NoError(t, err)
			assert.Equal(t, []Row{{"h": "new"}}, table.Rows)
			assert.Equal(t, int32(2), loader.calls.Load())
		})
	}
}

func TestGetAfterInvalidateDoesNotJoinOlderLoad(t *testing.T) {
	loader := newBlockingLoader()
	c, err := New(loader, 8)
	require.NoError(t, err)

	go func() { _, _ = c.Get(context.Background(), "a.csv") }()
	<-loader.started
	c.Invalidate("a.csv")

	table, err := c.Get(context.Background(), "a.csv")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"h": "new"}}, table.Rows)
	close(loader.release)
}

func TestCancelledCallerLeavesSharedLoadRunning(t *testing.T) {
	loader := newBlockingLoader()
	c, err := New(loader, 8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error)
	go func() {
		_, err := c.Get(ctx, "a.csv")
		first <- err
	}()
	<-loader.started

	second := make(chan *Table)
	go func() {
		table, err := c.Get(context.Background(), "a.csv")
		assert.NoError(t, err)
		second <- table
	}()
	// Give the second caller a chance to join the in-flight load
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(loader.release)
	assert.Equal(t, []Row{{"h": "old"}}, (<-second).Rows)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestParse(t *testing.T) {
	table, err := Parse("t.csv", []byte("\ufeff id , name\n1,one,extra\n2\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, table.Headers)
	assert.Equal(t, []Row{{"id": "1", "name": "one"}, {"id": "2"}}, table.Rows)

	empty, err := Parse("e.csv", nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)

	_, err = Parse("bad.csv", []byte("a,\"b\nc"))
	assert.Error(t, err)
}

func TestStoreLoaderLocal(t *testing.T) {
	store := docstore.NewMemoryStore()
	require.NoError(t, store.Put("data/t.csv", "k,v\nx,1\n"))

	c, err := New(NewStoreLoader(store), 4)
	require.NoError(t, err)

	table, err := c.Get(context.Background(), "data/t.csv")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"k": "x", "v": "1"}}, table.Rows)

	_, err = c.Get(context.Background(), "data/missing.csv")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStoreLoaderRemote(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "city,pop\nOslo,700000\n")
	}))
	defer srv.Close()

	loader := NewStoreLoader(nil, WithHTTPClient(srv.Client()), WithFetchRate(0, 0))
	c, err := New(loader, 4)
	require.NoError(t, err)

	table, err := c.Get(context.Background(), srv.URL+"/cities.csv")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"city": "Oslo", "pop": "700000"}}, table.Rows)

	_, err = c.Get(context.Background(), srv.URL+"/cities.csv")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.Get(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Equal(t, "failed to load "+srv.URL+"/missing.csv: unexpected status 404 Not Found", err.Error())

	_, err = c.Get(context.Background(), "local.csv")
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/a.csv"))
	assert.True(t, IsRemote("HTTP://example.com/a.csv"))
	assert.False(t, IsRemote("data/a.csv"))
}
