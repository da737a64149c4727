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

package walkers

import (
	"context"

	"github.com/googlegenomics/activeregions/region"
	"github.com/googlegenomics/activeregions/traversal"
)

// Counts totals the regions of a traversal.
type Counts struct {
	Regions       int
	ActiveRegions int
	ActiveBases   int
	PrimaryReads  int
	// SecondaryReads counts attachments of reads to regions other than
	// their primary one.
	SecondaryReads int
}

// CountReads is a walker totalling regions and the reads attached to them.
type CountReads struct {
	traversal.ActivityScorer
}

func (CountReads) Map(_ context.Context, r *region.ActiveRegion, _ traversal.Tracker) (Counts, error) {
	c := Counts{Regions: 1}
	if r.IsActive() {
		c.ActiveRegions = 1
		c.ActiveBases = r.Size()
	}
	c.PrimaryReads = len(r.PrimaryReads())
	c.SecondaryReads = len(r.Reads()) - c.PrimaryReads
	return c, nil
}

func (CountReads) Reduce(m Counts, acc Counts) (Counts, error) {
	acc.Regions += m.Regions
	acc.ActiveRegions += m.ActiveRegions
	acc.ActiveBases += m.ActiveBases
	acc.PrimaryReads += m.PrimaryReads
	acc.SecondaryReads += m.SecondaryReads
	return acc, nil
}

// RegionSummary describes a single finalized region.
type RegionSummary struct {
	Contig       string `json:"contig"`
	Start        int    `json:"start"`
	Stop         int    `json:"stop"`
	Active       bool   `json:"active"`
	PrimaryReads int    `json:"primaryReads"`
	Reads        int    `json:"reads"`
}

// Summary is a walker listing every region with its read counts.  When
// ActiveOnly is set inactive regions are left out.
type Summary struct {
	traversal.ActivityScorer
	ActiveOnly bool
}

func (Summary) Map(_ context.Context, r *region.ActiveRegion, _ traversal.Tracker) (RegionSummary, error) {
	loc := r.Loc()
	return RegionSummary{
		Contig:       loc.Contig,
		Start:        loc.Start,
		Stop:         loc.Stop,
		Active:       r.IsActive(),
		PrimaryReads: len(r.PrimaryReads()),
		Reads:        len(r.Reads()),
	}, nil
}

func (s Summary) Reduce(m RegionSummary, acc []RegionSummary) ([]RegionSummary, error) {
	if s.ActiveOnly && !m.Active {
		return acc, nil
	}
	return append(acc, m), nil
}
