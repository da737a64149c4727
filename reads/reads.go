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

// Package reads defines the aligned reads consumed by the traversal engine.
package reads

import (
	"errors"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/googlegenomics/activeregions/genomics"
)

// ErrUnmapped is returned for records without an alignment.
var ErrUnmapped = errors.New("read is unmapped")

// Read is an aligned read plus the genomic interval it covers.  ID is the
// ordinal of the record in its input and identifies the read when it is
// observed more than once, for example by adjacent shards.
type Read struct {
	ID     uint64
	Record *sam.Record
	Loc    genomics.Loc
}

// FromRecord returns a Read for the mapped record rec.  The interval covered
// by the read is derived from its position and CIGAR.
func FromRecord(id uint64, rec *sam.Record) (*Read, error) {
	if rec.Ref == nil || rec.Pos < 0 || rec.Flags&sam.Unmapped != 0 {
		return nil, ErrUnmapped
	}
	start := rec.Pos + 1
	stop := rec.End()
	if stop < start {
		stop = start
	}
	return &Read{
		ID:     id,
		Record: rec,
		Loc:    genomics.NewLoc(rec.Ref.ID(), rec.Ref.Name(), start, stop),
	}, nil
}

// Name returns the query name of the read, or its ID when it has no record.
func (r *Read) Name() string {
	if r.Record != nil && r.Record.Name != "" {
		return r.Record.Name
	}
	return fmt.Sprintf("read-%d", r.ID)
}

// Start returns the first aligned base of the read.
func (r *Read) Start() int { return r.Loc.Start }

// Stop returns the last aligned base of the read.
func (r *Read) Stop() int { return r.Loc.Stop }

func (r *Read) String() string {
	return fmt.Sprintf("%s@%v", r.Name(), r.Loc)
}
