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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/region"
)

// IGVSink writes finalized regions and the activity probabilities that
// produced them as IGV tracks.  Either writer may be nil.
type IGVSink struct {
	regions, profile *bufio.Writer
	started          bool
}

// NewIGVSink returns an IGVSink.  Flush must be called once the traversal has
// ended.
func NewIGVSink(regions, profile io.Writer) *IGVSink {
	s := &IGVSink{}
	if regions != nil {
		s.regions = bufio.NewWriter(regions)
	}
	if profile != nil {
		s.profile = bufio.NewWriter(profile)
	}
	return s
}

func (s *IGVSink) Consume(_ context.Context, r *region.ActiveRegion) error {
	if !s.started {
		s.started = true
		if err := writeIGVHeader(s.regions, "line", "ActiveRegions"); err != nil {
			return err
		}
		if err := writeIGVHeader(s.profile, "line", "ActivityProfile"); err != nil {
			return err
		}
	}

	loc := r.Loc()
	if s.regions != nil {
		value := -1.0
		if r.IsActive() {
			value = 1
		}
		if err := writeIGVRow(s.regions, genomics.Point(loc.ContigIndex, loc.Contig, loc.Start), "end-marker", 0); err != nil {
			return err
		}
		if err := writeIGVRow(s.regions, loc, fmt.Sprintf("size=%d", loc.Size()), value); err != nil {
			return err
		}
	}
	if s.profile != nil {
		for i, prob := range r.Probabilities() {
			point := genomics.Point(loc.ContigIndex, loc.Contig, loc.Start+i)
			if err := writeIGVRow(s.profile, point, "state", min(prob, 1)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes any buffered output.
func (s *IGVSink) Flush() error {
	for _, w := range []*bufio.Writer{s.regions, s.profile} {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeIGVHeader(w *bufio.Writer, graphType string, columns ...string) error {
	if w == nil {
		return nil
	}
	_, err := fmt.Fprintf(w, "#track graphType=%s\nChromosome\tStart\tEnd\tFeature\t%s\n", graphType, strings.Join(columns, "\t"))
	return err
}

// writeIGVRow writes loc as a 0-based half-open interval.
func writeIGVRow(w *bufio.Writer, loc genomics.Loc, feature string, values ...float64) error {
	if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s", loc.Contig, loc.Start-1, loc.Stop, feature); err != nil {
		return err
	}
	for _, v := range values {
		if _, err := fmt.Fprintf(w, "\t%.3f", v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
