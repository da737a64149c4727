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

// Package region defines active regions and the ordered queue that holds
// them until they are finalized.
package region

import (
	"errors"
	"fmt"
	"sort"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/reads"
)

var (
	errFrozen = errors.New("region is frozen")

	// ErrUnordered is returned when regions are added to a queue out of order.
	ErrUnordered = errors.New("regions are not sorted by position")
)

// ActiveRegion is a genomic interval classified as active or inactive along
// with the reads overlapping it.  Once frozen it is never mutated again and
// may be shared between goroutines.
type ActiveRegion struct {
	loc       genomics.Loc
	extended  genomics.Loc
	extension int
	active    bool
	probs     []float64

	reads   []*reads.Read
	primary map[uint64]bool
	frozen  bool
}

// New returns an empty region covering loc, whose extended interval is loc
// grown by extension bases on either side.
func New(loc genomics.Loc, active bool, extension int) *ActiveRegion {
	return &ActiveRegion{
		loc:       loc,
		extended:  loc.Extend(extension),
		extension: extension,
		active:    active,
		primary:   make(map[uint64]bool),
	}
}

// WithProbabilities attaches the per-locus activity probabilities that
// produced the region.
func (r *ActiveRegion) WithProbabilities(probs []float64) *ActiveRegion {
	r.probs = probs
	return r
}

// Loc returns the interval of the region.
func (r *ActiveRegion) Loc() genomics.Loc { return r.loc }

// Extended returns the interval of the region grown by its extension.
func (r *ActiveRegion) Extended() genomics.Loc { return r.extended }

// Extension returns the margin used to compute the extended interval.
func (r *ActiveRegion) Extension() int { return r.extension }

// IsActive reports whether the region was classified as active.
func (r *ActiveRegion) IsActive() bool { return r.active }

// Probabilities returns the activity probabilities supporting the region.
func (r *ActiveRegion) Probabilities() []float64 { return r.probs }

// Size returns the number of bases in the region.
func (r *ActiveRegion) Size() int { return r.loc.Size() }

// Add attaches read to the region.  The read must overlap the extended
// interval.  Adding a read already held as secondary with primary set
// upgrades it.
func (r *ActiveRegion) Add(read *reads.Read, primary bool) error {
	if r.frozen {
		return errFrozen
	}
	if !read.Loc.Overlaps(r.extended) {
		return fmt.Errorf("read %v does not overlap region %v", read, r.extended)
	}
	if p, ok := r.primary[read.ID]; ok {
		if primary && !p {
			r.primary[read.ID] = true
		}
		return nil
	}
	r.primary[read.ID] = primary

	// Reads usually arrive in input order.
	n := len(r.reads)
	if n == 0 || r.reads[n-1].ID < read.ID {
		r.reads = append(r.reads, read)
		return nil
	}
	i := sort.Search(n, func(i int) bool { return r.reads[i].ID > read.ID })
	r.reads = append(r.reads, nil)
	copy(r.reads[i+1:], r.reads[i:])
	r.reads[i] = read
	return nil
}

// Contains reports whether a read with the given ID is attached.
func (r *ActiveRegion) Contains(id uint64) bool {
	_, ok := r.primary[id]
	return ok
}

// IsPrimary reports whether the read with the given ID is attached as
// primary.
func (r *ActiveRegion) IsPrimary(id uint64) bool {
	return r.primary[id]
}

// Reads returns every attached read in input order.
func (r *ActiveRegion) Reads() []*reads.Read { return r.reads }

// PrimaryReads returns the reads attached as primary, in input order.
func (r *ActiveRegion) PrimaryReads() []*reads.Read {
	var out []*reads.Read
	for _, read := range r.reads {
		if r.primary[read.ID] {
			out = append(out, read)
		}
	}
	return out
}

// ReadSpan returns the interval spanned by the region and its reads.
func (r *ActiveRegion) ReadSpan() genomics.Loc {
	span := r.loc
	for _, read := range r.reads {
		if read.Loc.ContigIndex == span.ContigIndex {
			span = span.Union(read.Loc)
		}
	}
	return span
}

// Freeze prevents any further change to the region.
func (r *ActiveRegion) Freeze() { r.frozen = true }

// Frozen reports whether Freeze was called.
func (r *ActiveRegion) Frozen() bool { return r.frozen }

func (r *ActiveRegion) String() string {
	state := "inactive"
	if r.active {
		state = "active"
	}
	return fmt.Sprintf("%v %s ext=%d reads=%d", r.loc, state, r.extension, len(r.reads))
}

// fuse returns the region formed by tail followed by head.  The result keeps
// the extension and reads of tail.
func fuse(tail, head *ActiveRegion) *ActiveRegion {
	merged := New(tail.loc.Union(head.loc), tail.active, tail.extension)
	merged.probs = append(append([]float64(nil), tail.probs...), head.probs...)
	for _, read := range tail.reads {
		merged.reads = append(merged.reads, read)
		merged.primary[read.ID] = tail.primary[read.ID]
	}
	return merged
}
