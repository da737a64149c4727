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

import "fmt"

// Queue holds regions that have not been finalized yet, sorted by contig and
// start.  Regions on the same contig never overlap.
type Queue struct {
	maxRegionSize int
	regions       []*ActiveRegion
	appended      int
	fused         int
}

// NewQueue returns an empty queue which fuses adjacent regions as long as the
// result is no longer than maxRegionSize bases.
func NewQueue(maxRegionSize int) *Queue {
	return &Queue{maxRegionSize: maxRegionSize}
}

// Append adds batch, which must be sorted, to the end of the queue.  The
// current tail of the queue is fused with the head of batch when both have
// the same activity, are contiguous and together fit in the maximum region
// size.  At most one fusion is attempted per call.
func (q *Queue) Append(batch []*ActiveRegion) error {
	if len(batch) == 0 {
		return nil
	}

	var tail *ActiveRegion
	if n := len(q.regions); n > 0 {
		tail = q.regions[n-1]
	}

	var fusedHead *ActiveRegion
	rest := batch
	if tail != nil && q.canFuse(tail, batch[0]) {
		fusedHead = fuse(tail, batch[0])
		rest = batch[1:]
	}

	prev := tail
	if fusedHead != nil {
		prev = fusedHead
	}
	for _, r := range rest {
		if prev != nil && !before(prev, r) {
			return fmt.Errorf("appending %v after %v: %w", r.loc, prev.loc, ErrUnordered)
		}
		prev = r
	}

	if fusedHead != nil {
		q.regions[len(q.regions)-1] = fusedHead
		q.fused++
	}
	q.regions = append(q.regions, rest...)
	q.appended += len(rest)
	return nil
}

func (q *Queue) canFuse(tail, head *ActiveRegion) bool {
	return tail.active == head.active &&
		tail.loc.Contiguous(head.loc) &&
		tail.Size()+head.Size() <= q.maxRegionSize
}

// before reports whether b may follow a in the queue.
func before(a, b *ActiveRegion) bool {
	if c := a.loc.CompareContigs(b.loc); c != 0 {
		return c < 0
	}
	return a.loc.Stop < b.loc.Start
}

// Front returns the first region, or nil if the queue is empty.
func (q *Queue) Front() *ActiveRegion {
	if len(q.regions) == 0 {
		return nil
	}
	return q.regions[0]
}

// PopFront removes and returns the first region, or nil if the queue is
// empty.
func (q *Queue) PopFront() *ActiveRegion {
	if len(q.regions) == 0 {
		return nil
	}
	r := q.regions[0]
	q.regions[0] = nil
	q.regions = q.regions[1:]
	return r
}

// Rest returns the queued regions behind the front, in order.  The slice must
// not be modified.
func (q *Queue) Rest() []*ActiveRegion {
	if len(q.regions) < 2 {
		return nil
	}
	return q.regions[1:]
}

// Regions returns every queued region in order.  The slice must not be
// modified.
func (q *Queue) Regions() []*ActiveRegion { return q.regions }

// Len returns the number of queued regions.
func (q *Queue) Len() int { return len(q.regions) }

// IsEmpty reports whether the queue holds no region.
func (q *Queue) IsEmpty() bool { return len(q.regions) == 0 }

// Appended returns the number of queue entries ever created.  Regions that
// were fused into the tail of the queue are not counted.
func (q *Queue) Appended() int { return q.appended }

// Fused returns the number of fusions performed.
func (q *Queue) Fused() int { return q.fused }
