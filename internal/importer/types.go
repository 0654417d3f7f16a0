// Package importer parses documents on a fixed pool of background workers.
//
// A single control goroutine owns all scheduling state: the FIFO queue, the
// set of queued or in-flight paths, the per-path waiters and the busy flag
// of each worker. Workers receive typed requests on their own channel and
// answer on a shared results channel, so the control goroutine is the only
// place the scheduling state is ever touched.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yildizm/notedex/internal/docstore"
)

var ErrClosed = errors.New("import pipeline closed")

// Parser turns raw content into facts. Implementations must be safe for
// concurrent use and free of side effects.
type Parser interface {
	Parse(path string, content []byte, stat docstore.Stat, meta map[string]interface{}) (*docstore.Facts, error)
}

// ParserFunc adapts a function to Parser
type ParserFunc func(path string, content []byte, stat docstore.Stat, meta map[string]interface{}) (*docstore.Facts, error)

// Parse calls f
func (f ParserFunc) Parse(path string, content []byte, stat docstore.Stat, meta map[string]interface{}) (*docstore.Facts, error) {
	return f(path, content, stat, meta)
}

// Reader supplies raw document content
type Reader interface {
	Read(ctx context.Context, path string) ([]byte, docstore.Stat, error)
}

// Request is the message sent to a worker
type Request struct {
	Path    string
	Content []byte
	Stat    docstore.Stat
	Meta    map[string]interface{}
}

// Response is the message a worker sends back. Err is plain text so that a
// failure crosses the worker boundary as data.
type Response struct {
	Path     string
	Facts    *docstore.Facts
	Err      string
	Duration time.Duration

	worker int
}

// ParseError is returned to every waiter of a failed parse
type ParseError struct {
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to import %s: %s", e.Path, e.Message)
}

// Observer receives pipeline events; internal/metrics implements it
type Observer interface {
	QueueDepth(n int)
	BusyWorkers(n int)
	Deduplicated()
	Parsed(d time.Duration, err error)
}

// Hooks are called on the control goroutine. OnResult runs before any
// waiter of that path is released.
type Hooks struct {
	OnQueue    func(path string)
	OnDispatch func(path string)
	OnResult   func(path string, facts *docstore.Facts, err error)
}

// Stats is a snapshot of the scheduler
type Stats struct {
	Workers      int    `json:"workers"`
	Busy         int    `json:"busy"`
	Queued       int    `json:"queued"`
	InFlight     int    `json:"in_flight"`
	Dispatched   uint64 `json:"dispatched"`
	Deduplicated uint64 `json:"deduplicated"`
	Completed    uint64 `json:"completed"`
	Failed       uint64 `json:"failed"`
	Vanished     uint64 `json:"vanished"`
}

// Future is the pending result of a Reload
type Future struct {
	done  chan struct{}
	facts *docstore.Facts
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

func (f *Future) resolve(facts *docstore.Facts, err error) {
	f.facts = facts
	f.err = err
	close(f.done)
}

// Done is closed once the result is available
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends
func (f *Future) Wait(ctx context.Context) (*docstore.Facts, error) {
	select {
	case <-f.done:
		return f.facts, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
