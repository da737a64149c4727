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

// Package genomics contains definitions related to Genomic data.
package genomics

import "fmt"

// AllMappedReads defines a Region that matches all mapped reads.
var AllMappedReads = Region{ReferenceID: -1}

// Region defines a region of genomic interest, as requested by a caller.
type Region struct {
	// ReferenceID specifies the reference to match.  If it is negative, any
	// reference matches the region.
	ReferenceID int32
	// Start and End specify the open range (in base pairs) relative to the
	// reference.  If End is zero, it is treated as though it was set to the last
	// possible read position.
	Start, End uint32
}

func (r Region) String() string {
	if r.ReferenceID < 0 {
		return "*"
	}
	if r.End == 0 {
		return fmt.Sprintf("%d:%d-", r.ReferenceID, r.Start)
	}
	return fmt.Sprintf("%d:%d-%d", r.ReferenceID, r.Start, r.End)
}

// Loc is a closed genomic interval using 1-based coordinates.  ContigIndex is
// the position of the contig in the sequence dictionary and defines the order
// of contigs; Contig is its name and is only used for display.
type Loc struct {
	ContigIndex int
	Contig      string
	Start, Stop int
}

// NewLoc returns the interval [start, stop] on the given contig.
func NewLoc(index int, contig string, start, stop int) Loc {
	return Loc{ContigIndex: index, Contig: contig, Start: start, Stop: stop}
}

// Point returns the single-base interval at position on the given contig.
func Point(index int, contig string, position int) Loc {
	return NewLoc(index, contig, position, position)
}

// Size returns the number of bases covered by l.
func (l Loc) Size() int {
	return l.Stop - l.Start + 1
}

// Overlaps reports whether l and o share at least one base.
func (l Loc) Overlaps(o Loc) bool {
	return l.ContigIndex == o.ContigIndex && l.Start <= o.Stop && o.Start <= l.Stop
}

// OverlapSize returns the number of bases shared by l and o.
func (l Loc) OverlapSize(o Loc) int {
	if !l.Overlaps(o) {
		return 0
	}
	return min(l.Stop, o.Stop) - max(l.Start, o.Start) + 1
}

// Contiguous reports whether o starts on the base immediately after l.
func (l Loc) Contiguous(o Loc) bool {
	return l.ContigIndex == o.ContigIndex && l.Stop+1 == o.Start
}

// Union returns the smallest interval covering both l and o, which must be on
// the same contig.
func (l Loc) Union(o Loc) Loc {
	return Loc{
		ContigIndex: l.ContigIndex,
		Contig:      l.Contig,
		Start:       min(l.Start, o.Start),
		Stop:        max(l.Stop, o.Stop),
	}
}

// Extend returns l grown by n bases on each side.  The start never moves
// before the first base of the contig.
func (l Loc) Extend(n int) Loc {
	l.Start = max(1, l.Start-n)
	l.Stop += n
	return l
}

// CompareContigs orders l and o by contig only.
func (l Loc) CompareContigs(o Loc) int {
	switch {
	case l.ContigIndex < o.ContigIndex:
		return -1
	case l.ContigIndex > o.ContigIndex:
		return 1
	}
	return 0
}

// Compare orders l and o by contig, then start, then stop.
func (l Loc) Compare(o Loc) int {
	if c := l.CompareContigs(o); c != 0 {
		return c
	}
	switch {
	case l.Start < o.Start:
		return -1
	case l.Start > o.Start:
		return 1
	case l.Stop < o.Stop:
		return -1
	case l.Stop > o.Stop:
		return 1
	}
	return 0
}

// StartsBefore reports whether l begins at an earlier position than o.
func (l Loc) StartsBefore(o Loc) bool {
	if c := l.CompareContigs(o); c != 0 {
		return c < 0
	}
	return l.Start < o.Start
}

func (l Loc) String() string {
	return fmt.Sprintf("%s:%d-%d", l.Contig, l.Start, l.Stop)
}
