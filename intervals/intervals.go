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

// Package intervals parses genomic interval lists and answers overlap
// queries against them.
package intervals

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/biogo/store/interval"
	"github.com/googlegenomics/activeregions/genomics"
)

var (
	intervalRe = regexp.MustCompile(`^([^:\s]+)(?::([0-9,]+)(?:-([0-9,]+))?)?$`)
	aliasTag   = sam.NewTag("AN")
)

// Resolver maps contig names to their index in a sequence dictionary.
type Resolver struct {
	refs  []*sam.Reference
	names map[string]int
}

// NewResolver returns a Resolver for the references in header.  Alternative
// names listed in the AN tag of a reference resolve to that reference.
func NewResolver(header *sam.Header) *Resolver {
	r := &Resolver{refs: header.Refs(), names: make(map[string]int)}
	for i, ref := range r.refs {
		r.names[ref.Name()] = i
		if aliases := ref.Get(aliasTag); aliases != "" {
			for _, alias := range strings.Split(aliases, ",") {
				if _, ok := r.names[alias]; !ok {
					r.names[alias] = i
				}
			}
		}
	}
	return r
}

// Lookup returns the index and canonical name of the named contig.
func (r *Resolver) Lookup(name string) (int, string, error) {
	i, ok := r.names[name]
	if !ok {
		return 0, "", fmt.Errorf("reference %q not found", name)
	}
	return i, r.refs[i].Name(), nil
}

// Length returns the length of the contig with the given index.
func (r *Resolver) Length(index int) int {
	if index < 0 || index >= len(r.refs) {
		return 0
	}
	return r.refs[index].Len()
}

// Contigs returns a Loc covering every contig of the dictionary, in order.
func (r *Resolver) Contigs() []genomics.Loc {
	out := make([]genomics.Loc, len(r.refs))
	for i, ref := range r.refs {
		out[i] = genomics.NewLoc(i, ref.Name(), 1, ref.Len())
	}
	return out
}

// Parse parses an interval of the form "contig", "contig:pos" or
// "contig:start-stop" with 1-based inclusive coordinates.
func (r *Resolver) Parse(s string) (genomics.Loc, error) {
	m := intervalRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return genomics.Loc{}, fmt.Errorf("malformed interval %q", s)
	}
	index, name, err := r.Lookup(m[1])
	if err != nil {
		return genomics.Loc{}, err
	}
	loc := genomics.NewLoc(index, name, 1, r.Length(index))
	if m[2] != "" {
		if loc.Start, err = parsePosition(m[2]); err != nil {
			return genomics.Loc{}, fmt.Errorf("parsing start of %q: %v", s, err)
		}
		loc.Stop = loc.Start
		if m[3] != "" {
			if loc.Stop, err = parsePosition(m[3]); err != nil {
				return genomics.Loc{}, fmt.Errorf("parsing stop of %q: %v", s, err)
			}
		}
	}
	if loc.Start < 1 || loc.Stop < loc.Start {
		return genomics.Loc{}, fmt.Errorf("invalid interval %q", s)
	}
	return loc, nil
}

func parsePosition(s string) (int, error) {
	n, err := strconv.ParseUint(strings.Replace(s, ",", "", -1), 10, 31)
	return int(n), err
}

// ParseBED reads BED records from r.  BED intervals are 0-based half-open and
// are converted to 1-based closed intervals.  Header, track and comment lines
// are skipped.
func (r *Resolver) ParseBED(in io.Reader) ([]genomics.Loc, error) {
	var out []genomics.Loc
	scanner := bufio.NewScanner(in)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "track") || strings.HasPrefix(text, "browser") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 fields, got %d", line, len(fields))
		}
		index, name, err := r.Lookup(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing start: %v", line, err)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing end: %v", line, err)
		}
		if start < 0 || end <= start {
			return nil, fmt.Errorf("line %d: invalid interval %d-%d", line, start, end)
		}
		out = append(out, genomics.NewLoc(index, name, start+1, end))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading BED: %v", err)
	}
	return out, nil
}

// Merge sorts locs and merges overlapping or contiguous intervals.
func Merge(locs []genomics.Loc) []genomics.Loc {
	if len(locs) == 0 {
		return nil
	}
	sorted := append([]genomics.Loc(nil), locs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	out := []genomics.Loc{sorted[0]}
	for _, loc := range sorted[1:] {
		last := &out[len(out)-1]
		if last.ContigIndex == loc.ContigIndex && loc.Start <= last.Stop+1 {
			last.Stop = max(last.Stop, loc.Stop)
			continue
		}
		out = append(out, loc)
	}
	return out
}

// element stores a Loc in an interval tree.  Tree ranges are half-open.
type element struct {
	loc genomics.Loc
	id  uintptr
}

func (e element) Overlap(b interval.IntRange) bool {
	return b.End > e.loc.Start && b.Start < e.loc.Stop+1
}

func (e element) ID() uintptr { return e.id }

func (e element) Range() interval.IntRange {
	return interval.IntRange{Start: e.loc.Start, End: e.loc.Stop + 1}
}

// query is the half-open range [start, end).
type query struct{ start, end int }

func (q query) Overlap(b interval.IntRange) bool {
	return b.End > q.start && b.Start < q.end
}

// Set is an immutable collection of intervals supporting overlap queries.
type Set struct {
	trees map[int]*interval.IntTree
	locs  []genomics.Loc
}

// NewSet returns a Set holding locs.  Overlapping intervals are merged.
func NewSet(locs []genomics.Loc) (*Set, error) {
	s := &Set{trees: make(map[int]*interval.IntTree), locs: Merge(locs)}
	for i, loc := range s.locs {
		tree, ok := s.trees[loc.ContigIndex]
		if !ok {
			tree = &interval.IntTree{}
			s.trees[loc.ContigIndex] = tree
		}
		if err := tree.Insert(element{loc, uintptr(i)}, true); err != nil {
			return nil, fmt.Errorf("inserting %v: %v", loc, err)
		}
	}
	for _, tree := range s.trees {
		tree.AdjustRanges()
	}
	return s, nil
}

// Overlaps reports whether loc shares at least one base with an interval of
// the set.  A nil Set overlaps nothing.
func (s *Set) Overlaps(loc genomics.Loc) bool {
	return len(s.Get(loc)) > 0
}

// Get returns the intervals of the set overlapping loc, in order.
func (s *Set) Get(loc genomics.Loc) []genomics.Loc {
	if s == nil {
		return nil
	}
	tree, ok := s.trees[loc.ContigIndex]
	if !ok {
		return nil
	}
	var out []genomics.Loc
	for _, hit := range tree.Get(query{loc.Start, loc.Stop + 1}) {
		out = append(out, hit.(element).loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Locs returns the merged intervals of the set, in order.
func (s *Set) Locs() []genomics.Loc {
	if s == nil {
		return nil
	}
	return s.locs
}

// Len returns the number of merged intervals in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.locs)
}
