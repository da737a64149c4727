// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch runs the map step of a walker concurrently over finalized
// regions while reducing the results strictly in submission order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/exascience/pargo/pipeline"
	"github.com/googlegenomics/activeregions/region"
	"github.com/googlegenomics/activeregions/traversal"
)

var (
	// ErrClosed is returned when submitting to a closed Dispatcher.
	ErrClosed = errors.New("dispatcher is closed")

	errAborted = errors.New("dispatch aborted")
)

// Options configures a Dispatcher.
type Options struct {
	// Workers bounds the number of concurrent Map calls.  Defaults to
	// GOMAXPROCS.
	Workers int
	// InFlight bounds the number of submitted regions that have not been
	// picked up by a worker.  Submit blocks while it is reached.  Defaults to
	// twice the number of workers.
	InFlight int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.InFlight <= 0 {
		o.InFlight = 2 * o.Workers
	}
	return o
}

// Future holds the result of mapping a single region.
type Future[M any] struct {
	region *region.ActiveRegion
	once   sync.Once
	done   chan struct{}
	value  M
	err    error
}

func newFuture[M any](r *region.ActiveRegion) *Future[M] {
	return &Future[M]{region: r, done: make(chan struct{})}
}

func (f *Future[M]) resolve(value M, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

// Region returns the region being mapped.
func (f *Future[M]) Region() *region.ActiveRegion { return f.region }

// Done returns a channel closed once the result is available.
func (f *Future[M]) Done() <-chan struct{} { return f.done }

// Wait blocks until the region has been mapped and returns the result.
func (f *Future[M]) Wait() (M, error) {
	<-f.done
	return f.value, f.err
}

type job[M any] struct {
	ctx    context.Context
	future *Future[M]
}

// Dispatcher maps regions with a bounded pool of workers and reduces the
// results in submission order.  It satisfies traversal.Sink, so an Engine can
// hand it regions directly.  Submit may be called from several goroutines;
// the order in which concurrent calls return defines the reduction order.
type Dispatcher[M, T any] struct {
	walker  traversal.MapReducer[M, T]
	tracker traversal.Tracker

	mu     sync.RWMutex
	closed bool
	jobs   chan *job[M]

	p    pipeline.Pipeline
	done chan struct{}
	acc  T

	pendingMu sync.Mutex
	pending   map[*Future[M]]struct{}
	abandoned bool
}

// New returns a running Dispatcher reducing into initial.  Close must be
// called to release its workers and obtain the reduced value.
func New[M, T any](walker traversal.MapReducer[M, T], initial T, tracker traversal.Tracker, opts Options) *Dispatcher[M, T] {
	opts = opts.withDefaults()
	d := &Dispatcher[M, T]{
		walker:  walker,
		tracker: tracker,
		jobs:    make(chan *job[M], opts.InFlight),
		done:    make(chan struct{}),
		acc:     initial,
		pending: make(map[*Future[M]]struct{}),
	}

	d.p.Source(pipeline.NewSingletonChan(d.jobs))
	d.p.SetVariableBatchSize(1, 1)
	d.p.Add(
		pipeline.LimitedPar(opts.Workers, pipeline.Receive(func(_ int, data interface{}) interface{} {
			j := data.(*job[M])
			value, err := d.walker.Map(j.ctx, j.future.region, d.tracker)
			if err != nil {
				err = fmt.Errorf("map %v: %w", j.future.region.Loc(), err)
				d.p.SetErr(err)
			}
			d.finish(j.future, value, err)
			return j
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			j := data.(*job[M])
			value, err := j.future.Wait()
			if err != nil || d.p.Err() != nil {
				return j
			}
			acc, err := d.walker.Reduce(value, d.acc)
			if err != nil {
				d.p.SetErr(fmt.Errorf("reduce %v: %w", j.future.region.Loc(), err))
				return j
			}
			d.acc = acc
			return j
		})),
	)

	go func() {
		defer close(d.done)
		d.p.Run()
		d.abandon()
	}()
	return d
}

func (d *Dispatcher[M, T]) finish(f *Future[M], value M, err error) {
	d.pendingMu.Lock()
	delete(d.pending, f)
	d.pendingMu.Unlock()
	f.resolve(value, err)
}

func (d *Dispatcher[M, T]) failure() error {
	if err := d.p.Err(); err != nil {
		return err
	}
	return errAborted
}

// abandon resolves the futures of regions the pipeline dropped after an
// error.  Futures registered afterwards fail immediately.
func (d *Dispatcher[M, T]) abandon() {
	err := d.failure()
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.abandoned = true
	var zero M
	for f := range d.pending {
		f.resolve(zero, err)
		delete(d.pending, f)
	}
}

// Submit queues r for mapping.  It blocks while too many regions are waiting
// for a worker, until ctx is done or the dispatcher has failed.
func (d *Dispatcher[M, T]) Submit(ctx context.Context, r *region.ActiveRegion) (*Future[M], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	if err := d.p.Err(); err != nil {
		return nil, err
	}

	f := newFuture[M](r)
	d.pendingMu.Lock()
	if d.abandoned {
		d.pendingMu.Unlock()
		return nil, d.failure()
	}
	d.pending[f] = struct{}{}
	d.pendingMu.Unlock()

	select {
	case d.jobs <- &job[M]{ctx: ctx, future: f}:
		return f, nil
	case <-d.done:
		d.cancel(f)
		return nil, d.failure()
	case <-ctx.Done():
		d.cancel(f)
		return nil, ctx.Err()
	}
}

func (d *Dispatcher[M, T]) cancel(f *Future[M]) {
	d.pendingMu.Lock()
	delete(d.pending, f)
	d.pendingMu.Unlock()
}

// Consume submits r without waiting for its result.
func (d *Dispatcher[M, T]) Consume(ctx context.Context, r *region.ActiveRegion) error {
	_, err := d.Submit(ctx, r)
	return err
}

// Err returns the first error encountered by a Map or Reduce call.
func (d *Dispatcher[M, T]) Err() error { return d.p.Err() }

// Close waits for every submitted region to be reduced and returns the
// reduced value.  It may be called more than once.
func (d *Dispatcher[M, T]) Close() (T, error) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	<-d.done
	return d.acc, d.p.Err()
}

// Run traverses every shard of source with an Engine whose regions are
// processed by walker on a Dispatcher, and returns the reduced value.
func Run[M, T any](ctx context.Context, cfg traversal.Config, walker traversal.Walker[M, T], initial T, source traversal.ShardSource, opts Options) (T, traversal.Stats, error) {
	d := New[M, T](walker, initial, cfg.Tracker, opts)
	engine, err := traversal.New(cfg, walker, d)
	if err != nil {
		d.Close()
		return initial, traversal.Stats{}, err
	}
	runErr := engine.Run(ctx, source)
	acc, err := d.Close()
	if runErr != nil {
		return acc, engine.Stats(), runErr
	}
	return acc, engine.Stats(), err
}
