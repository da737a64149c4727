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
	"context"
	"io"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/region"
)

// Locus is a single reference position and the reads covering it.
type Locus struct {
	Loc genomics.Loc
	// Reads holds the reads first reported by the shard at this locus.  Reads
	// spanning the start of a shard are reported again at its first locus.
	Reads []*reads.Read
	// Pileup holds every read covering the locus.
	Pileup []*reads.Read
}

// Shard is a sorted stream of loci.  Next returns io.EOF after the last
// locus.
type Shard interface {
	Next() (*Locus, error)
}

// ShardSource is a sorted stream of shards.  Next returns io.EOF after the
// last shard.
type ShardSource interface {
	Next() (Shard, error)
}

// ReferenceContext holds the reference bases at a locus, when known.
type ReferenceContext struct {
	Loc   genomics.Loc
	Bases []byte
}

// ReferenceSource provides reference bases.
type ReferenceSource interface {
	Bases(loc genomics.Loc) ([]byte, error)
}

// Tracker provides auxiliary features overlapping a locus or region.
// *intervals.Set satisfies Tracker.
type Tracker interface {
	Get(loc genomics.Loc) []genomics.Loc
}

// Capabilities describes the optional behaviours a walker needs.  They are
// resolved once when an Engine is created.
type Capabilities struct {
	// Preset, when set, replaces activity scoring: loci overlapping the set
	// score 1 and all others 0.
	Preset *intervals.Set
	// NonPrimaryReads attaches reads to every overlapping region, not just
	// the one they overlap the most.
	NonPrimaryReads bool
	// ExtendedReads considers the extended interval of regions when
	// attaching reads.
	ExtendedReads bool
}

// ActivityScorer scores the activity of single loci.
type ActivityScorer interface {
	// IsActive returns the probability, in [0, 1], that locus is active.
	IsActive(ctx context.Context, locus *Locus, ref *ReferenceContext, tracker Tracker) (float64, error)
	Capabilities() Capabilities
}

// MapReducer processes finalized regions.  Map may be called concurrently
// for different regions; Reduce is called in region order.
type MapReducer[M, T any] interface {
	Map(ctx context.Context, r *region.ActiveRegion, tracker Tracker) (M, error)
	Reduce(m M, acc T) (T, error)
}

// Walker is an ActivityScorer that also processes the regions it defines.
type Walker[M, T any] interface {
	ActivityScorer
	MapReducer[M, T]
}

// Sink consumes finalized regions in genomic order.  Regions handed to a
// sink are frozen.
type Sink interface {
	Consume(ctx context.Context, r *region.ActiveRegion) error
}

// SliceShard is a Shard over a fixed list of loci.
type SliceShard struct {
	loci []*Locus
}

// NewSliceShard returns a Shard producing loci in order.
func NewSliceShard(loci ...*Locus) *SliceShard {
	return &SliceShard{loci: loci}
}

func (s *SliceShard) Next() (*Locus, error) {
	if len(s.loci) == 0 {
		return nil, io.EOF
	}
	l := s.loci[0]
	s.loci = s.loci[1:]
	return l, nil
}

// SliceSource is a ShardSource over a fixed list of shards.
type SliceSource struct {
	shards []Shard
}

// NewSliceSource returns a ShardSource producing shards in order.
func NewSliceSource(shards ...Shard) *SliceSource {
	return &SliceSource{shards: shards}
}

func (s *SliceSource) Next() (Shard, error) {
	if len(s.shards) == 0 {
		return nil, io.EOF
	}
	sh := s.shards[0]
	s.shards = s.shards[1:]
	return sh, nil
}
