package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yildizm/notedex/internal/config"
	"github.com/yildizm/notedex/internal/csvcache"
	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/formatter"
	"github.com/yildizm/notedex/internal/index"
	"github.com/yildizm/notedex/internal/logger"
	"github.com/yildizm/notedex/internal/metrics"
	"github.com/yildizm/notedex/internal/source"
)

// vault is an open directory store with its index
type vault struct {
	root  string
	store *docstore.FSStore
	index *index.FullIndex
	log   *logger.Logger
}

// vaultOptions carries what differs between the commands opening a vault
type vaultOptions struct {
	registry prometheus.Registerer
	onChange func(revision uint64)
}

// openVault builds the store, CSV cache and index for dir from cfg and
// queues the initial parse. An empty dir falls back to the configured root.
func openVault(ctx context.Context, dir string, cfg *config.Config, vo vaultOptions) (*vault, error) {
	if dir == "" {
		dir = cfg.Vault.Root
	}
	log := logger.NewWithCallback("notedex", isVerbose)

	store, err := docstore.NewFSStore(dir,
		docstore.WithPatterns(cfg.Vault.Include, cfg.Vault.Exclude),
		docstore.WithDebounce(cfg.Index.WatchDebounce))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	store.OnError = func(err error) {
		log.WarnWithFields("watcher error", []logger.Field{logger.Error(err)})
	}

	collector, err := metrics.New(vo.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	loader := csvcache.NewStoreLoader(store,
		csvcache.WithHTTPClient(&http.Client{Timeout: cfg.Cache.FetchTimeout}),
		csvcache.WithFetchRate(cfg.Cache.FetchRate, cfg.Cache.FetchBurst))
	cache, err := csvcache.New(loader, cfg.Cache.Capacity,
		csvcache.WithExpiry(cfg.Cache.Expiry),
		csvcache.WithLoadTimeout(cfg.Cache.FetchTimeout),
		csvcache.WithObserver(collector))
	if err != nil {
		return nil, err
	}

	opts := []index.Option{
		index.WithWorkers(cfg.Index.Workers),
		index.WithCache(cache),
		index.WithObserver(collector),
		index.WithLogger(log.WithComponent("index")),
	}
	if vo.onChange != nil {
		opts = append(opts, index.WithOnChange(vo.onChange))
	}
	idx, err := index.New(store, opts...)
	if err != nil {
		return nil, err
	}

	if err := idx.Initialize(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}

	return &vault{
		root:  store.Root(),
		store: store,
		index: idx,
		log:   log,
	}, nil
}

// settle waits for the queued parses, bounded by timeout when it is positive
func (v *vault) settle(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := v.index.Settle(ctx); err != nil {
		return fmt.Errorf("index did not settle: %w", err)
	}
	return nil
}

// report summarizes the index
func (v *vault) report(elapsed time.Duration) *formatter.Report {
	return &formatter.Report{
		Root:    v.root,
		Stats:   v.index.Stats(),
		TopTags: formatter.TopTags(v.index.TagCounts(), 0),
		Elapsed: elapsed,
	}
}

// query resolves src and attaches the facts of every matching document
func (v *vault) query(src source.Source, origin string) (*formatter.Result, error) {
	revision := v.index.Revision()
	set, err := v.index.Query(src, origin)
	if err != nil {
		return nil, err
	}

	docs := make([]*docstore.Facts, 0, set.Len())
	for _, p := range set.Sorted() {
		if facts, ok := v.index.Page(p); ok {
			docs = append(docs, facts)
		} else {
			docs = append(docs, &docstore.Facts{Path: p})
		}
	}

	return &formatter.Result{
		Source:    src.String(),
		Origin:    origin,
		Revision:  revision,
		Documents: docs,
	}, nil
}

func (v *vault) Close() error {
	idxErr := v.index.Close()
	if err := v.store.Close(); err != nil {
		return err
	}
	return idxErr
}

// parseSource reads a source expression from a flag value or a file. Tag
// and link shorthands bypass YAML, which reads them as a comment and a
// nested list.
func parseSource(expr, file string) (source.Source, error) {
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file) // #nosec G304 - user supplied source file
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read source file: %w", err)
		}
		return source.Decode(data)
	}

	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "#") || strings.HasPrefix(expr, "[[") {
		return source.ParseScalar(expr), nil
	}
	return source.Decode([]byte(expr))
}

// newFormatter returns the formatter for the configured output format
func newFormatter() (formatter.Formatter, error) {
	return formatter.New(getOutputFormat(), useColor())
}

// writeOutput writes formatted bytes followed by a newline when missing
func writeOutput(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err := io.WriteString(w, "\n")
		return err
	}
	return nil
}
