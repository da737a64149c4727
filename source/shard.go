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

package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/traversal"
)

// Plan splits the traversal intervals into shards of at most shardSize
// bases.  When locs is empty every contig of the dictionary is traversed.  A
// shardSize of zero or less produces one shard per interval.
func Plan(resolver *intervals.Resolver, locs []genomics.Loc, shardSize int) []genomics.Loc {
	if len(locs) == 0 {
		locs = resolver.Contigs()
	} else {
		locs = intervals.Merge(locs)
	}

	var plan []genomics.Loc
	for _, loc := range locs {
		if loc.Size() <= 0 {
			continue
		}
		if shardSize <= 0 {
			plan = append(plan, loc)
			continue
		}
		for start := loc.Start; start <= loc.Stop; start += shardSize {
			plan = append(plan, genomics.NewLoc(loc.ContigIndex, loc.Contig, start, min(start+shardSize-1, loc.Stop)))
		}
	}
	return plan
}

// Shards is a traversal.ShardSource over a sorted record stream.  Every shard
// holds the mapped records overlapping it, so a record spanning a shard
// boundary is reported again, with the same ID, by the following shard.
type Shards struct {
	records RecordReader
	plan    []genomics.Loc
	next    int

	window []*reads.Read
	peek   *reads.Read
	eof    bool

	nextID   uint64
	last     genomics.Loc
	haveLast bool
	skipped  int
}

// NewShards returns the shards of plan over records.
func NewShards(records RecordReader, plan []genomics.Loc) *Shards {
	return &Shards{records: records, plan: plan}
}

// Len returns the number of shards in the plan.
func (s *Shards) Len() int { return len(s.plan) }

// Skipped returns the number of unmapped records read so far.
func (s *Shards) Skipped() int { return s.skipped }

func (s *Shards) Next() (traversal.Shard, error) {
	if s.next >= len(s.plan) {
		return nil, io.EOF
	}
	loc := s.plan[s.next]
	s.next++

	if err := s.fill(loc); err != nil {
		return nil, err
	}
	s.prune(loc)
	return &locusShard{loc: loc, pos: loc.Start, reads: append([]*reads.Read(nil), s.window...)}, nil
}

// fill reads every record starting at or before the end of loc.
func (s *Shards) fill(loc genomics.Loc) error {
	for !s.eof {
		if s.peek == nil {
			r, err := s.read()
			if err == io.EOF {
				s.eof = true
				break
			}
			if err != nil {
				return err
			}
			s.peek = r
		}
		if c := s.peek.Loc.CompareContigs(loc); c > 0 || (c == 0 && s.peek.Loc.Start > loc.Stop) {
			break
		}
		s.window = append(s.window, s.peek)
		s.peek = nil
	}
	return nil
}

// prune drops the reads that can not overlap loc or any later shard.
func (s *Shards) prune(loc genomics.Loc) {
	kept := s.window[:0]
	for _, r := range s.window {
		if r.Loc.ContigIndex == loc.ContigIndex && r.Loc.Stop >= loc.Start {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(s.window); i++ {
		s.window[i] = nil
	}
	s.window = kept
}

// read returns the next mapped record.
func (s *Shards) read() (*reads.Read, error) {
	for {
		rec, err := s.records.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			return nil, fmt.Errorf("reading record %d: %v", s.nextID, err)
		}
		id := s.nextID
		s.nextID++

		r, err := reads.FromRecord(id, rec)
		if errors.Is(err, reads.ErrUnmapped) {
			s.skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.haveLast && r.Loc.StartsBefore(s.last) {
			return nil, fmt.Errorf("record %v follows %v: %w", r, s.last, traversal.ErrUnsorted)
		}
		s.last, s.haveLast = genomics.Point(r.Loc.ContigIndex, r.Loc.Contig, r.Loc.Start), true
		return r, nil
	}
}

// locusShard produces one locus per position of loc.
type locusShard struct {
	loc genomics.Loc
	pos int

	// reads overlap loc and are sorted by start.
	reads    []*reads.Read
	nextRead int
	pileup   []*reads.Read
}

func (s *locusShard) Next() (*traversal.Locus, error) {
	if s.pos > s.loc.Stop {
		return nil, io.EOF
	}
	p := s.pos
	s.pos++

	locus := &traversal.Locus{Loc: genomics.Point(s.loc.ContigIndex, s.loc.Contig, p)}
	var pileup []*reads.Read
	for _, r := range s.pileup {
		if r.Loc.Stop >= p {
			pileup = append(pileup, r)
		}
	}
	for s.nextRead < len(s.reads) && s.reads[s.nextRead].Loc.Start <= p {
		r := s.reads[s.nextRead]
		s.nextRead++
		locus.Reads = append(locus.Reads, r)
		pileup = append(pileup, r)
	}
	s.pileup = pileup
	locus.Pileup = pileup
	return locus, nil
}
