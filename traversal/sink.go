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

package traversal

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/googlegenomics/activeregions/region"
)

// MapReduce is a Sink that calls a walker's Map and Reduce sequentially on
// every region.
type MapReduce[M, T any] struct {
	walker  MapReducer[M, T]
	tracker Tracker
	acc     T
}

// NewMapReduce returns a sequential map/reduce sink starting from initial.
func NewMapReduce[M, T any](walker MapReducer[M, T], initial T, tracker Tracker) *MapReduce[M, T] {
	return &MapReduce[M, T]{walker: walker, tracker: tracker, acc: initial}
}

func (s *MapReduce[M, T]) Consume(ctx context.Context, r *region.ActiveRegion) error {
	m, err := s.walker.Map(ctx, r, s.tracker)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	acc, err := s.walker.Reduce(m, s.acc)
	if err != nil {
		return fmt.Errorf("reduce: %w", err)
	}
	s.acc = acc
	return nil
}

// Result returns the reduced value.
func (s *MapReduce[M, T]) Result() T { return s.acc }

// ListingSink writes the interval of every active region, one per line.
type ListingSink struct {
	w *bufio.Writer
}

// NewListingSink returns a ListingSink writing to w.  Flush must be called
// once the traversal has ended.
func NewListingSink(w io.Writer) *ListingSink {
	return &ListingSink{w: bufio.NewWriter(w)}
}

func (s *ListingSink) Consume(_ context.Context, r *region.ActiveRegion) error {
	if !r.IsActive() {
		return nil
	}
	_, err := fmt.Fprintln(s.w, r.Loc())
	return err
}

// Flush writes any buffered output.
func (s *ListingSink) Flush() error { return s.w.Flush() }

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r *region.ActiveRegion) error

func (f SinkFunc) Consume(ctx context.Context, r *region.ActiveRegion) error {
	return f(ctx, r)
}

// Tee returns a Sink handing every region to each of sinks in turn.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, r *region.ActiveRegion) error {
		for _, s := range sinks {
			if err := s.Consume(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
