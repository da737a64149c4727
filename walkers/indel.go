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

// Package walkers contains activity scorers and region walkers for the
// traversal engine.
package walkers

import (
	"context"

	"github.com/biogo/hts/sam"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/traversal"
)

// IndelEvidence scores a locus by the fraction of the reads covering it that
// carry an insertion, a deletion or a soft clip at that position.
type IndelEvidence struct {
	// MinMappingQuality excludes poorly mapped reads from the pileup.
	MinMappingQuality byte
	// Preset, when set, replaces scoring with the given regions.
	Preset *intervals.Set
	// NonPrimary and Extended are reported as walker capabilities.
	NonPrimary bool
	Extended   bool
}

func (w IndelEvidence) Capabilities() traversal.Capabilities {
	return traversal.Capabilities{
		Preset:          w.Preset,
		NonPrimaryReads: w.NonPrimary,
		ExtendedReads:   w.Extended,
	}
}

func (w IndelEvidence) IsActive(_ context.Context, locus *traversal.Locus, _ *traversal.ReferenceContext, _ traversal.Tracker) (float64, error) {
	var covered, events int
	for _, r := range locus.Pileup {
		if r.Record == nil || r.Record.MapQ < w.MinMappingQuality {
			continue
		}
		covered++
		if hasEvent(r, locus.Loc.Start) {
			events++
		}
	}
	if covered == 0 {
		return 0, nil
	}
	return float64(events) / float64(covered), nil
}

// hasEvent reports whether the alignment of r has an indel or a soft clip at
// pos.  Insertions are attributed to the reference base preceding them and
// clips to the aligned base next to them.
func hasEvent(r *reads.Read, pos int) bool {
	ref := r.Record.Pos + 1
	aligned := false
	for _, op := range r.Record.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarInsertion:
			if ref-1 == pos {
				return true
			}
		case sam.CigarDeletion:
			if pos >= ref && pos < ref+n {
				return true
			}
		case sam.CigarSoftClipped:
			if !aligned && pos == ref {
				return true
			}
			if aligned && pos == ref-1 {
				return true
			}
		}
		if consumed := op.Type().Consumes().Reference * n; consumed > 0 {
			ref += consumed
			aligned = true
		}
	}
	return false
}
