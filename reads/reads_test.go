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

package reads

import (
	"bytes"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/googlegenomics/activeregions/genomics"
)

// querySeq returns a sequence as long as the query bases consumed by cigar.
func querySeq(cigar []sam.CigarOp) []byte {
	var n int
	for _, op := range cigar {
		if op.Type().Consumes().Query != 0 {
			n += op.Len()
		}
	}
	return bytes.Repeat([]byte("A"), n)
}

func TestQuerySeq(t *testing.T) {
	cigar := []sam.CigarOp{
		sam.NewCigarOp(sam.CigarHardClipped, 2),
		sam.NewCigarOp(sam.CigarSoftClipped, 3),
		sam.NewCigarOp(sam.CigarMatch, 4),
		sam.NewCigarOp(sam.CigarDeletion, 5),
		sam.NewCigarOp(sam.CigarInsertion, 1),
	}
	if got, want := len(querySeq(cigar)), 8; got != want {
		t.Errorf("Wrong sequence length: got %d, want %d", got, want)
	}
}

func TestFromRecord(t *testing.T) {
	ref, err := sam.NewReference("20", "", "", 1000, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create reference: %v", err)
	}
	if _, err := sam.NewHeader(nil, []*sam.Reference{ref}); err != nil {
		t.Fatalf("Failed to create header: %v", err)
	}

	testCases := []struct {
		name  string
		pos   int
		cigar []sam.CigarOp
		want  genomics.Loc
	}{
		{"match", 9, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}, genomics.NewLoc(0, "20", 10, 19)},
		{"deletion", 0, []sam.CigarOp{
			sam.NewCigarOp(sam.CigarMatch, 5),
			sam.NewCigarOp(sam.CigarDeletion, 3),
			sam.NewCigarOp(sam.CigarMatch, 5),
		}, genomics.NewLoc(0, "20", 1, 13)},
		{"soft clipped", 99, []sam.CigarOp{
			sam.NewCigarOp(sam.CigarSoftClipped, 4),
			sam.NewCigarOp(sam.CigarMatch, 6),
		}, genomics.NewLoc(0, "20", 100, 105)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := sam.NewRecord("r", ref, nil, tc.pos, -1, 0, 60, tc.cigar, querySeq(tc.cigar), nil, nil)
			if err != nil {
				t.Fatalf("Failed to create record: %v", err)
			}
			read, err := FromRecord(7, rec)
			if err != nil {
				t.Fatalf("FromRecord() returned error: %v", err)
			}
			if got, want := read.Loc, tc.want; got != want {
				t.Errorf("Wrong interval: got %v, want %v", got, want)
			}
			if got, want := read.ID, uint64(7); got != want {
				t.Errorf("Wrong ID: got %d, want %d", got, want)
			}
		})
	}
}

func TestFromRecordUnmapped(t *testing.T) {
	rec := &sam.Record{Name: "u", Pos: -1, Flags: sam.Unmapped}
	if _, err := FromRecord(0, rec); err == nil {
		t.Error("FromRecord() accepted an unmapped record")
	}
}
