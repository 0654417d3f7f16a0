package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yildizm/notedex/internal/docstore"
	"github.com/yildizm/notedex/internal/logger"
)

const DefaultWorkers = 2

type reloadCmd struct {
	path   string
	future *Future
}

type worker struct {
	id       int
	requests chan Request
	busy     bool
	path     string
}

// Pipeline is the background import pool
type Pipeline struct {
	parser   Parser
	reader   Reader
	metadata func(path string) map[string]interface{}
	hooks    Hooks
	observer Observer
	log      *logger.Logger
	size     int

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan reloadCmd
	results   chan Response
	idleReqs  chan chan struct{}
	loopDone  chan struct{}
	workerWG  sync.WaitGroup
	closeOnce sync.Once

	// Owned by the control goroutine
	workers     []*worker
	queue       []string
	reloadSet   map[string]struct{}
	waiters     map[string][]*Future
	idleWaiters []chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithWorkers sets the pool size; values below one select the default
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithMetadata supplies host metadata for each request
func WithMetadata(fn func(path string) map[string]interface{}) Option {
	return func(p *Pipeline) { p.metadata = fn }
}

// WithHooks installs scheduling hooks
func WithHooks(h Hooks) Option {
	return func(p *Pipeline) { p.hooks = h }
}

// WithObserver attaches an event observer
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the pipeline logger
func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New starts a pipeline with its workers. Close must be called to stop it.
func New(parser Parser, reader Reader, opts ...Option) (*Pipeline, error) {
	if parser == nil {
		return nil, errors.New("import pipeline requires a parser")
	}
	if reader == nil {
		return nil, errors.New("import pipeline requires a reader")
	}

	p := &Pipeline{
		parser:    parser,
		reader:    reader,
		log:       logger.Discard(),
		size:      DefaultWorkers,
		cmds:      make(chan reloadCmd),
		idleReqs:  make(chan chan struct{}),
		loopDone:  make(chan struct{}),
		reloadSet: make(map[string]struct{}),
		waiters:   make(map[string][]*Future),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	// Each worker holds at most one outstanding response, so this never blocks a worker
	p.results = make(chan Response, p.size)
	p.workers = make([]*worker, p.size)
	for i := range p.workers {
		w := &worker{id: i, requests: make(chan Request, 1)}
		p.workers[i] = w
		p.workerWG.Add(1)
		go p.runWorker(w)
	}
	p.stats.Workers = p.size

	go p.run()
	return p, nil
}

// Reload schedules path for parsing. Concurrent reloads of a path that is
// already queued or being parsed share that single parse and its result.
func (p *Pipeline) Reload(path string) *Future {
	fut := newFuture()
	select {
	case p.cmds <- reloadCmd{path: path, future: fut}:
		return fut
	case <-p.ctx.Done():
		return failedFuture(ErrClosed)
	}
}

// Idle blocks until the queue is empty and every worker is free
func (p *Pipeline) Idle(ctx context.Context) error {
	ch := make(chan struct{})
	select {
	case p.idleReqs <- ch:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.loopDone:
		return ErrClosed
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.loopDone:
		return ErrClosed
	}
}

// Stats returns a snapshot of the scheduler
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Close stops the control goroutine and the workers. In-flight parses run
// to completion; every pending waiter fails with ErrClosed.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.loopDone
		p.workerWG.Wait()
	})
	return nil
}

// run is the control goroutine
func (p *Pipeline) run() {
	defer close(p.loopDone)

	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return
		case cmd := <-p.cmds:
			p.enqueue(cmd)
		case resp := <-p.results:
			p.complete(resp)
		case ch := <-p.idleReqs:
			p.idleWaiters = append(p.idleWaiters, ch)
		}
		p.schedule()
		p.publish()
	}
}

func (p *Pipeline) enqueue(cmd reloadCmd) {
	if _, ok := p.reloadSet[cmd.path]; ok {
		p.waiters[cmd.path] = append(p.waiters[cmd.path], cmd.future)
		p.statsMu.Lock()
		p.stats.Deduplicated++
		p.statsMu.Unlock()
		if p.observer != nil {
			p.observer.Deduplicated()
		}
		p.log.DebugWithFields("reload joined pending parse", []logger.Field{logger.Path(cmd.path)})
		return
	}

	p.reloadSet[cmd.path] = struct{}{}
	p.waiters[cmd.path] = []*Future{cmd.future}
	p.queue = append(p.queue, cmd.path)
	if p.hooks.OnQueue != nil {
		p.hooks.OnQueue(cmd.path)
	}
}

// schedule hands the queue head to free workers until one of them runs out
func (p *Pipeline) schedule() {
	for len(p.queue) > 0 {
		w := p.freeWorker()
		if w == nil {
			return
		}
		path := p.queue[0]
		p.queue[0] = ""
		p.queue = p.queue[1:]

		req, err := p.prepare(path)
		if err != nil {
			p.finish(path, err)
			continue
		}

		w.busy = true
		w.path = path
		p.statsMu.Lock()
		p.stats.Dispatched++
		p.statsMu.Unlock()
		if p.hooks.OnDispatch != nil {
			p.hooks.OnDispatch(path)
		}
		p.log.DebugWithFields("dispatched", []logger.Field{logger.Path(path), logger.F("worker", w.id)})
		w.requests <- req
	}
}

func (p *Pipeline) prepare(path string) (Request, error) {
	content, stat, err := p.reader.Read(p.ctx, path)
	if err != nil {
		return Request{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	req := Request{Path: path, Content: content, Stat: stat}
	if p.metadata != nil {
		req.Meta = p.metadata(path)
	}
	return req, nil
}

func (p *Pipeline) complete(resp Response) {
	w := p.workers[resp.worker]
	w.busy = false
	w.path = ""

	// The freed worker takes the next document before any waiter runs
	var err error
	if resp.Err != "" {
		err = &ParseError{Path: resp.Path, Message: resp.Err}
	}
	delete(p.reloadSet, resp.Path)
	waiters := p.waiters[resp.Path]
	delete(p.waiters, resp.Path)
	p.schedule()

	p.resolve(resp.Path, waiters, resp.Facts, err, resp.Duration)
}

// finish resolves a path that never reached a worker
func (p *Pipeline) finish(path string, err error) {
	delete(p.reloadSet, path)
	waiters := p.waiters[path]
	delete(p.waiters, path)
	p.resolve(path, waiters, nil, err, 0)
}

func (p *Pipeline) resolve(path string, waiters []*Future, facts *docstore.Facts, err error, d time.Duration) {
	// A document renamed or deleted while queued was never parsed
	vanished := errors.Is(err, docstore.ErrNotFound)

	p.statsMu.Lock()
	switch {
	case vanished:
		p.stats.Vanished++
	case err != nil:
		p.stats.Failed++
	default:
		p.stats.Completed++
	}
	p.statsMu.Unlock()

	if p.observer != nil && !vanished {
		p.observer.Parsed(d, err)
	}
	switch {
	case vanished:
		p.log.DebugWithFields("document vanished before import", []logger.Field{logger.Path(path)})
	case err != nil:
		p.log.WarnWithFields("import failed", []logger.Field{logger.Path(path), logger.Error(err)})
	default:
		p.log.DebugWithFields("imported", []logger.Field{logger.Path(path), logger.Duration(d), logger.Count(len(waiters))})
	}

	if p.hooks.OnResult != nil {
		p.hooks.OnResult(path, facts, err)
	}
	for _, f := range waiters {
		f.resolve(facts, err)
	}
}

func (p *Pipeline) freeWorker() *worker {
	for _, w := range p.workers {
		if !w.busy {
			return w
		}
	}
	return nil
}

// publish refreshes the stats snapshot and releases idle waiters
func (p *Pipeline) publish() {
	busy := 0
	for _, w := range p.workers {
		if w.busy {
			busy++
		}
	}

	p.statsMu.Lock()
	p.stats.Busy = busy
	p.stats.Queued = len(p.queue)
	p.stats.InFlight = len(p.reloadSet)
	p.statsMu.Unlock()

	if p.observer != nil {
		p.observer.QueueDepth(len(p.queue))
		p.observer.BusyWorkers(busy)
	}

	if busy == 0 && len(p.queue) == 0 {
		for _, ch := range p.idleWaiters {
			close(ch)
		}
		p.idleWaiters = nil
	}
}

func (p *Pipeline) shutdown() {
	for _, w := range p.workers {
		close(w.requests)
	}
	for path, waiters := range p.waiters {
		for _, f := range waiters {
			f.resolve(nil, ErrClosed)
		}
		delete(p.waiters, path)
	}
	p.queue = nil
	p.reloadSet = make(map[string]struct{})
}

func (p *Pipeline) runWorker(w *worker) {
	defer p.workerWG.Done()
	for req := range w.requests {
		p.results <- process(w.id, p.parser, req)
	}
}

// process runs one parse. A panicking parser is reported like any other
// failure so the worker stays available.
func process(id int, parser Parser, req Request) (resp Response) {
	start := time.Now()
	resp = Response{Path: req.Path, worker: id}
	defer func() {
		if r := recover(); r != nil {
			resp.Facts = nil
			resp.Err = fmt.Sprintf("parser panic: %v", r)
		}
		resp.Duration = time.Since(start)
	}()

	facts, err := parser.Parse(req.Path, req.Content, req.Stat, req.Meta)
	if err != nil {
		resp.Err = err.Error()
		return resp
	}
	if facts == nil {
		resp.Err = "parser returned no facts"
		return resp
	}
	resp.Facts = facts
	return resp
}
