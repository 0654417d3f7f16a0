package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/yildizm/notedex/internal/formatter"
	"github.com/yildizm/notedex/internal/logger"
	"github.com/yildizm/notedex/internal/pathset"
	"github.com/yildizm/notedex/internal/source"
)

var (
	watchSource      string
	watchSourceFile  string
	watchOrigin      string
	watchMetrics     bool
	watchMetricsAddr string
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Keep the index current while the directory changes",
		Long: `Index a directory and keep the index current using file system
notifications. Press Ctrl+C to stop watching.

Without a source, a line is printed for every index revision. With a
source, the matching documents are printed again whenever they change.

Examples:
  notedex watch ~/notes
  notedex watch ~/notes --source '#todo'
  notedex watch ~/notes --metrics --metrics-addr 127.0.0.1:9464`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().StringVarP(&watchSource, "source", "s", "", "source expression to keep resolving")
	cmd.Flags().StringVarP(&watchSourceFile, "source-file", "f", "", "read the source expression from a YAML file")
	cmd.Flags().StringVar(&watchOrigin, "origin", "", "document the source is evaluated from")
	cmd.Flags().BoolVar(&watchMetrics, "metrics", false, "serve Prometheus metrics (default: metrics.enabled)")
	cmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "metrics listen address (default: metrics.address)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := GetGlobalConfig()
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled = watchMetrics
	}
	if watchMetricsAddr != "" {
		cfg.Metrics.Address = watchMetricsAddr
	}

	var src source.Source
	if watchSource != "" || watchSourceFile != "" {
		var err error
		if src, err = parseSource(watchSource, watchSourceFile); err != nil {
			return err
		}
	}

	f, err := newFormatter()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.NewWithCallback("watch", isVerbose)

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// One pending signal is enough: every wakeup reads the latest revision.
	revisions := make(chan uint64, 1)
	onChange := func(revision uint64) {
		select {
		case revisions <- revision:
		default:
		}
	}

	vo := vaultOptions{onChange: onChange}
	if registry != nil {
		vo.registry = registry
	}
	v, err := openVault(ctx, dirArg(args), cfg, vo)
	if err != nil {
		return err
	}
	defer closeVault(v)

	if err := v.store.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", v.root, err)
	}

	if registry != nil {
		shutdown := serveMetrics(cfg.Metrics.Address, registry, log)
		defer shutdown()
	}

	if err := v.settle(ctx, cfg.Index.SettleTimeout); err != nil {
		return err
	}

	w := &watchLoop{vault: v, formatter: f, src: src, origin: watchOrigin, out: cmd.OutOrStdout()}
	if err := w.emit(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Watching %s (press Ctrl+C to stop)\n", v.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-revisions:
			if err := w.emit(); err != nil {
				log.WarnWithFields("failed to refresh output", []logger.Field{logger.Error(err)})
			}
		}
	}
}

// watchLoop prints the index state after each revision
type watchLoop struct {
	vault     *vault
	formatter formatter.Formatter
	src       source.Source
	origin    string
	out       io.Writer

	last     pathset.Set
	revision uint64
}

// emit prints the query result when its documents changed, or a one line
// summary when no source is being watched
func (w *watchLoop) emit() error {
	idx := w.vault.index
	revision := idx.Revision()
	if revision == w.revision && w.last != nil {
		return nil
	}
	w.revision = revision

	if w.src == nil {
		if w.last == nil {
			w.last = pathset.New()
			data, err := w.formatter.FormatReport(w.vault.report(0))
			if err != nil {
				return err
			}
			return writeOutput(w.out, data)
		}
		st := idx.Stats()
		_, err := fmt.Fprintf(w.out, "[%s] revision %d: %d documents, %d tags, %d links\n",
			time.Now().Format("15:04:05"), st.Revision, st.Documents, st.Tags, st.Links)
		return err
	}

	result, err := w.vault.query(w.src, w.origin)
	if err != nil {
		return err
	}
	current := pathset.New()
	for _, doc := range result.Documents {
		current.Add(doc.Path)
	}
	if w.last != nil && current.Equal(w.last) {
		return nil
	}
	w.last = current

	data, err := w.formatter.FormatResult(result)
	if err != nil {
		return err
	}
	return writeOutput(w.out, data)
}

// serveMetrics serves the registry on addr until the returned function is called
func serveMetrics(addr string, registry *prometheus.Registry, log *logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WarnWithFields("metrics server stopped", []logger.Field{logger.Error(err)})
		}
	}()
	log.InfoWithFields("serving metrics", []logger.Field{logger.F("address", addr)})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
