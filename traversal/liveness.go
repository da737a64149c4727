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
	"fmt"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/region"
)

// liveness tracks the dead zone: the positions before liveStart can not be
// covered by any read that has not been seen yet.
type liveness struct {
	policy Policy

	live     genomics.Loc
	haveLive bool

	lastRead     genomics.Loc
	haveLastRead bool

	// Last read start when the current shard began.
	shardStart     genomics.Loc
	haveShardStart bool

	// IDs reported by the previous and current shards.
	prevSeen, curSeen map[uint64]struct{}
}

func newLiveness(policy Policy) *liveness {
	return &liveness{
		policy:   policy,
		prevSeen: make(map[uint64]struct{}),
		curSeen:  make(map[uint64]struct{}),
	}
}

func (l *liveness) beginShard() {
	l.shardStart, l.haveShardStart = l.lastRead, l.haveLastRead
	l.prevSeen, l.curSeen = l.curSeen, make(map[uint64]struct{})
}

// advance moves liveStart forward to loc.  It never moves backwards.
func (l *liveness) advance(loc genomics.Loc) {
	if !l.haveLive || l.live.StartsBefore(loc) {
		l.live = genomics.Point(loc.ContigIndex, loc.Contig, loc.Start)
		l.haveLive = true
	}
}

// duplicate reports whether r was already reported by an earlier shard.
// pending reports whether a read is still held in memory.
func (l *liveness) duplicate(r *reads.Read, pending func(uint64) bool) bool {
	l.curSeen[r.ID] = struct{}{}
	switch l.policy {
	case Conservative:
		return l.haveShardStart &&
			r.Loc.ContigIndex == l.shardStart.ContigIndex &&
			r.Loc.Start <= l.shardStart.Start
	default:
		if pending(r.ID) {
			return true
		}
		_, ok := l.prevSeen[r.ID]
		return ok
	}
}

// observe records a read seen for the first time.  Reads must arrive in
// order of their start.
func (l *liveness) observe(r *reads.Read) error {
	if l.haveLastRead && r.Loc.StartsBefore(l.lastRead) {
		return fmt.Errorf("read %v starts before previous read at %v: %w", r, l.lastRead, ErrUnsorted)
	}
	l.lastRead = genomics.Point(r.Loc.ContigIndex, r.Loc.Contig, r.Loc.Start)
	l.haveLastRead = true
	l.advance(r.Loc)
	return nil
}

// regionDead reports whether no unseen read can overlap the extended
// interval of r.
func (l *liveness) regionDead(r *region.ActiveRegion) (bool, error) {
	if !l.haveLive {
		return false, nil
	}
	ext := r.Extended()
	switch c := ext.CompareContigs(l.live); {
	case c < 0:
		return true, nil
	case c > 0:
		return false, fmt.Errorf("region %v is ahead of the traversal at %v", r.Loc(), l.live)
	}
	return ext.Stop < l.live.Start, nil
}

// readDead reports whether read can not be attached to any region after
// front.  extension is the margin of the regions.
func (l *liveness) readDead(read *reads.Read, front *region.ActiveRegion, extension int) bool {
	switch c := read.Loc.CompareContigs(front.Loc()); {
	case c < 0:
		return true
	case c > 0:
		return false
	}
	if read.Loc.Stop+extension >= front.Loc().Stop {
		return false
	}
	return !l.haveLive || read.Loc.ContigIndex != l.live.ContigIndex || read.Loc.Stop < l.live.Start
}
