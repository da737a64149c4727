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

package region

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/reads"
)

func loc(start, stop int) genomics.Loc {
	return genomics.NewLoc(0, "1", start, stop)
}

func read(id uint64, start, stop int) *reads.Read {
	return &reads.Read{ID: id, Loc: loc(start, stop)}
}

func TestAdd(t *testing.T) {
	r := New(loc(100, 199), true, 10)
	if got, want := r.Extended(), loc(90, 209); got != want {
		t.Fatalf("Wrong extended interval: got %v, want %v", got, want)
	}

	if err := r.Add(read(2, 205, 300), false); err != nil {
		t.Errorf("Add() of read overlapping extension returned error: %v", err)
	}
	if err := r.Add(read(1, 95, 120), true); err != nil {
		t.Errorf("Add() returned error: %v", err)
	}
	if err := r.Add(read(3, 300, 400), true); err == nil {
		t.Error("Add() accepted a read outside the extended interval")
	}

	var ids []uint64
	for _, read := range r.Reads() {
		ids = append(ids, read.ID)
	}
	if diff := cmp.Diff([]uint64{1, 2}, ids); diff != "" {
		t.Errorf("Wrong reads (-want +got):\n%s", diff)
	}
	if !r.IsPrimary(1) || r.IsPrimary(2) {
		t.Errorf("Wrong primary markers: 1=%v 2=%v", r.IsPrimary(1), r.IsPrimary(2))
	}

	if err := r.Add(read(2, 205, 300), true); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if !r.IsPrimary(2) {
		t.Error("Secondary read was not upgraded to primary")
	}
	if got, want := len(r.PrimaryReads()), 2; got != want {
		t.Errorf("Wrong number of primary reads: got %d, want %d", got, want)
	}

	r.Freeze()
	if err := r.Add(read(4, 150, 160), true); err == nil {
		t.Error("Add() succeeded on a frozen region")
	}
}

type span struct {
	Start, Stop int
	Active      bool
}

func spans(q *Queue) []span {
	var out []span
	for _, r := range q.Regions() {
		out = append(out, span{r.Loc().Start, r.Loc().Stop, r.IsActive()})
	}
	return out
}

func TestQueueAppend(t *testing.T) {
	testCases := []struct {
		name         string
		batches      [][]*ActiveRegion
		want         []span
		wantAppended int
	}{
		{
			name: "fuse across batches",
			batches: [][]*ActiveRegion{
				{New(loc(1, 10), true, 0)},
				{New(loc(11, 20), true, 0), New(loc(21, 30), false, 0)},
			},
			want:         []span{{1, 20, true}, {21, 30, false}},
			wantAppended: 2,
		},
		{
			name: "different activity",
			batches: [][]*ActiveRegion{
				{New(loc(1, 10), true, 0)},
				{New(loc(11, 20), false, 0)},
			},
			want:         []span{{1, 10, true}, {11, 20, false}},
			wantAppended: 2,
		},
		{
			name: "gap",
			batches: [][]*ActiveRegion{
				{New(loc(1, 10), true, 0)},
				{New(loc(12, 20), true, 0)},
			},
			want:         []span{{1, 10, true}, {12, 20, true}},
			wantAppended: 2,
		},
		{
			name: "too large",
			batches: [][]*ActiveRegion{
				{New(loc(1, 60), true, 0)},
				{New(loc(61, 120), true, 0)},
			},
			want:         []span{{1, 60, true}, {61, 120, true}},
			wantAppended: 2,
		},
		{
			name: "exactly max size",
			batches: [][]*ActiveRegion{
				{New(loc(1, 50), true, 0)},
				{New(loc(51, 100), true, 0)},
			},
			want:         []span{{1, 100, true}},
			wantAppended: 1,
		},
		{
			name: "single fusion per append",
			batches: [][]*ActiveRegion{
				{New(loc(1, 10), true, 0)},
				{New(loc(11, 20), true, 0), New(loc(21, 30), true, 0)},
			},
			want:         []span{{1, 20, true}, {21, 30, true}},
			wantAppended: 2,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQueue(100)
			for _, batch := range tc.batches {
				if err := q.Append(batch); err != nil {
					t.Fatalf("Append() returned error: %v", err)
				}
			}
			if diff := cmp.Diff(tc.want, spans(q)); diff != "" {
				t.Errorf("Wrong queue (-want +got):\n%s", diff)
			}
			if got, want := q.Appended(), tc.wantAppended; got != want {
				t.Errorf("Wrong appended count: got %d, want %d", got, want)
			}
		})
	}
}

func TestQueueAppendUnordered(t *testing.T) {
	q := NewQueue(100)
	if err := q.Append([]*ActiveRegion{New(loc(10, 20), true, 0)}); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}
	err := q.Append([]*ActiveRegion{New(loc(15, 30), false, 0)})
	if !errors.Is(err, ErrUnordered) {
		t.Errorf("Wrong error: got %v, want %v", err, ErrUnordered)
	}
	if got, want := q.Len(), 1; got != want {
		t.Errorf("Failed append modified the queue: got %d regions, want %d", got, want)
	}
}

func TestQueueFuseKeepsReads(t *testing.T) {
	q := NewQueue(100)
	tail := New(loc(1, 10), true, 5).WithProbabilities([]float64{0.9})
	if err := tail.Add(read(1, 1, 5), true); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if err := q.Append([]*ActiveRegion{tail}); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}
	if err := q.Append([]*ActiveRegion{New(loc(11, 20), true, 5).WithProbabilities([]float64{0.8})}); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}

	front := q.Front()
	if got, want := front.Extended(), loc(1, 25); got != want {
		t.Errorf("Wrong extended interval: got %v, want %v", got, want)
	}
	if !front.IsPrimary(1) {
		t.Error("Fused region lost the tail's primary read")
	}
	if diff := cmp.Diff([]float64{0.9, 0.8}, front.Probabilities()); diff != "" {
		t.Errorf("Wrong probabilities (-want +got):\n%s", diff)
	}
}

func TestQueuePop(t *testing.T) {
	q := NewQueue(100)
	if q.PopFront() != nil || q.Front() != nil {
		t.Fatal("Empty queue returned a region")
	}
	if err := q.Append([]*ActiveRegion{New(loc(1, 10), true, 0), New(loc(11, 20), false, 0), New(loc(21, 30), true, 0)}); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}
	if got, want := len(q.Rest()), 2; got != want {
		t.Errorf("Wrong rest length: got %d, want %d", got, want)
	}
	for want := 1; !q.IsEmpty(); want += 10 {
		if got := q.PopFront().Loc().Start; got != want {
			t.Errorf("Wrong front: got %d, want %d", got, want)
		}
	}
}
