package csvcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yildizm/notedex/internal/docstore"
)

const maxRemoteSize = 32 << 20

var ErrNoStore = errors.New("no document store configured for local paths")

// Loader fetches the raw bytes behind a CSV path
type Loader interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, path string) ([]byte, error)

// Load calls f(ctx, path)
func (f LoaderFunc) Load(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// StoreLoader reads local paths from a document store and fetches http(s)
// paths over the network, throttled by a token bucket.
type StoreLoader struct {
	store   docstore.DocumentStore
	client  *http.Client
	limiter *rate.Limiter
}

// LoaderOption configures a StoreLoader
type LoaderOption func(*StoreLoader)

// WithHTTPClient replaces the client used for remote fetches
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *StoreLoader) { l.client = client }
}

// WithFetchRate limits remote fetches to perSecond with the given burst.
// A non-positive rate disables throttling.
func WithFetchRate(perSecond float64, burst int) LoaderOption {
	return func(l *StoreLoader) {
		if perSecond <= 0 {
			l.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewStoreLoader creates a loader; store may be nil when only remote paths are used
func NewStoreLoader(store docstore.DocumentStore, opts ...LoaderOption) *StoreLoader {
	l := &StoreLoader{
		store:   store,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Loader
func (l *StoreLoader) Load(ctx context.Context, p string) ([]byte, error) {
	if IsRemote(p) {
		return l.fetch(ctx, p)
	}
	if l.store == nil {
		return nil, ErrNoStore
	}
	content, _, err := l.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (l *StoreLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxRemoteSize {
		return nil, fmt.Errorf("body exceeds %d bytes", maxRemoteSize)
	}
	return body, nil
}

// IsRemote reports whether p is fetched over the network
func IsRemote(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
