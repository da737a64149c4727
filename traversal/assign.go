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
	"fmt"

	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/region"
)

// assigner attaches pending reads to queued regions.
type assigner struct {
	caps Capabilities
	// primary holds the IDs of pending reads that already have a primary
	// region.
	primary map[uint64]struct{}
}

func newAssigner(caps Capabilities) *assigner {
	return &assigner{caps: caps, primary: make(map[uint64]struct{})}
}

func (a *assigner) overlaps(read *reads.Read, r *region.ActiveRegion) bool {
	if a.caps.ExtendedReads {
		return read.Loc.Overlaps(r.Extended())
	}
	return read.Loc.Overlaps(r.Loc())
}

// assign attaches read to front or, when it overlaps them more, to one of
// the regions of rest.  The region with the largest overlap receives the read
// as primary; ties go to the region furthest down the queue.
func (a *assigner) assign(read *reads.Read, front *region.ActiveRegion, rest []*region.ActiveRegion) error {
	if a.isPrimary(read.ID) {
		if a.caps.NonPrimaryReads && !front.Contains(read.ID) && a.overlaps(read, front) {
			return front.Add(read, false)
		}
		return nil
	}
	if !a.overlaps(read, front) {
		return nil
	}

	candidates := []*region.ActiveRegion{front}
	for _, r := range rest {
		if r.Loc().ContigIndex != read.Loc.ContigIndex || r.Extended().Start > read.Loc.Stop {
			break
		}
		if a.overlaps(read, r) {
			candidates = append(candidates, r)
		}
	}

	best, bestOverlap := candidates[0], read.Loc.OverlapSize(candidates[0].Loc())
	for _, r := range candidates[1:] {
		if overlap := read.Loc.OverlapSize(r.Loc()); overlap >= bestOverlap {
			best, bestOverlap = r, overlap
		}
	}

	if err := best.Add(read, true); err != nil {
		return fmt.Errorf("adding primary read: %v", err)
	}
	a.primary[read.ID] = struct{}{}

	if a.caps.NonPrimaryReads {
		for _, r := range candidates {
			if r == best {
				continue
			}
			if err := r.Add(read, false); err != nil {
				return fmt.Errorf("adding secondary read: %v", err)
			}
		}
	}
	return nil
}

func (a *assigner) isPrimary(id uint64) bool {
	_, ok := a.primary[id]
	return ok
}

// forget drops the record of a read leaving memory, reporting whether it
// had been assigned.
func (a *assigner) forget(id uint64) bool {
	_, ok := a.primary[id]
	delete(a.primary, id)
	return ok
}

// done reports whether read has no further use once it has been offered to
// every region it can join.
func (a *assigner) done(read *reads.Read) bool {
	return a.isPrimary(read.ID) && !a.caps.NonPrimaryReads
}
