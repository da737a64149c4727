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

package readcache

import (
	"fmt"
	"testing"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/reads"
)

func testRead(id int) *reads.Read {
	return &reads.Read{ID: uint64(id), Loc: genomics.NewLoc(0, "1", id+1, id+10)}
}

func TestPopOrderAndDiscards(t *testing.T) {
	testCases := []struct {
		capacity, n int
	}{
		{10, 0},
		{10, 5},
		{10, 10},
		{10, 11},
		{10, 1000},
		{1, 50},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("capacity=%d,n=%d", tc.capacity, tc.n), func(t *testing.T) {
			cache := New(tc.capacity, 42)
			for i := 0; i < tc.n; i++ {
				cache.Add(testRead(i))
			}

			wantLen, wantDiscarded := tc.n, 0
			if tc.n > tc.capacity {
				wantLen, wantDiscarded = tc.capacity, tc.n-tc.capacity
			}
			if got, want := cache.Discarded(), wantDiscarded; got != want {
				t.Errorf("Wrong discarded count: got %d, want %d", got, want)
			}

			popped := cache.Pop()
			if got, want := len(popped), wantLen; got != want {
				t.Fatalf("Wrong number of reads: got %d, want %d", got, want)
			}
			for i := 1; i < len(popped); i++ {
				if popped[i-1].ID >= popped[i].ID {
					t.Errorf("Reads out of order at %d: %d before %d", i, popped[i-1].ID, popped[i].ID)
				}
			}
			if got, want := cache.Len(), 0; got != want {
				t.Errorf("Wrong length after pop: got %d, want %d", got, want)
			}
			if got, want := cache.Discarded(), 0; got != want {
				t.Errorf("Discarded count not reset: got %d, want %d", got, want)
			}
			if got, want := cache.TotalDiscarded(), wantDiscarded; got != want {
				t.Errorf("Wrong total discarded: got %d, want %d", got, want)
			}
		})
	}
}

func TestUnbounded(t *testing.T) {
	cache := New(0, 1)
	for i := 0; i < 500; i++ {
		if evicted := cache.Add(testRead(i)); evicted != nil {
			t.Fatalf("Unbounded cache evicted read %d", evicted.ID)
		}
	}
	if got, want := cache.Len(), 500; got != want {
		t.Errorf("Wrong length: got %d, want %d", got, want)
	}
}

func TestContainsAndRemove(t *testing.T) {
	cache := New(5, 1)
	for i := 0; i < 5; i++ {
		cache.Add(testRead(i))
	}
	if !cache.Contains(3) {
		t.Fatal("Cache does not contain read 3")
	}
	if !cache.Remove(3) {
		t.Fatal("Remove(3) reported a missing read")
	}
	if cache.Contains(3) {
		t.Error("Cache still contains read 3 after removal")
	}
	if cache.Remove(3) {
		t.Error("Second Remove(3) reported success")
	}

	var ids []uint64
	for _, r := range cache.Reads() {
		ids = append(ids, r.ID)
	}
	if got, want := fmt.Sprint(ids), "[0 1 2 4]"; got != want {
		t.Errorf("Wrong contents: got %s, want %s", got, want)
	}
	if got, want := cache.Len(), 4; got != want {
		t.Errorf("Reads() changed the cache: got %d reads, want %d", got, want)
	}
}

func TestDuplicateAdd(t *testing.T) {
	cache := New(2, 1)
	cache.Add(testRead(1))
	cache.Add(testRead(1))
	if got, want := cache.Len(), 1; got != want {
		t.Errorf("Wrong length: got %d, want %d", got, want)
	}
	if got, want := cache.Discarded(), 0; got != want {
		t.Errorf("Wrong discarded count: got %d, want %d", got, want)
	}
}

func ids(rs []*reads.Read) []uint64 {
	var out []uint64
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestOrderSurvivesRemoveAndAdd(t *testing.T) {
	cache := New(0, 1)
	for i := 0; i < 6; i++ {
		cache.Add(testRead(i))
	}
	cache.Remove(0)
	cache.Remove(3)
	cache.Add(testRead(6))
	cache.Remove(5)
	cache.Add(testRead(7))

	if got, want := fmt.Sprint(ids(cache.Reads())), "[1 2 4 6 7]"; got != want {
		t.Errorf("Wrong order: got %s, want %s", got, want)
	}
}

func TestOrderSurvivesEviction(t *testing.T) {
	cache := New(8, 7)
	for i := 0; i < 200; i++ {
		cache.Add(testRead(i))
		if i%3 == 0 {
			cache.Remove(uint64(i - 1))
		}
		got := ids(cache.Reads())
		if len(got) != cache.Len() {
			t.Fatalf("Reads() returned %d reads, cache holds %d", len(got), cache.Len())
		}
		for j := 1; j < len(got); j++ {
			if got[j-1] >= got[j] {
				t.Fatalf("Reads out of order after adding %d: %v", i, got)
			}
		}
	}
}

func TestScanStopsEarly(t *testing.T) {
	cache := New(0, 1)
	for i := 9; i >= 0; i-- {
		cache.Add(testRead(i))
	}
	var visited []uint64
	cache.Scan(func(r *reads.Read) bool {
		visited = append(visited, r.ID)
		return r.ID < 3
	})
	if got, want := fmt.Sprint(visited), "[0 1 2 3]"; got != want {
		t.Errorf("Wrong reads visited: got %s, want %s", got, want)
	}
}

func TestReaddAfterPop(t *testing.T) {
	cache := New(4, 3)
	for i := 0; i < 40; i++ {
		cache.Add(testRead(i))
	}
	popped := cache.Pop()
	for _, r := range popped {
		if evicted := cache.Add(r); evicted != nil {
			t.Errorf("Re-adding popped read %d evicted read %d", r.ID, evicted.ID)
		}
	}
	if got, want := fmt.Sprint(ids(cache.Reads())), fmt.Sprint(ids(popped)); got != want {
		t.Errorf("Wrong contents after re-adding: got %s, want %s", got, want)
	}
	if got, want := cache.Discarded(), 0; got != want {
		t.Errorf("Wrong discarded count: got %d, want %d", got, want)
	}
}
