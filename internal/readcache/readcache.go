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

// Package readcache holds the reads that have not yet been attached to a
// finalized region.  The cache has a fixed capacity; once it is reached,
// further reads are sampled uniformly (reservoir sampling) so that memory use
// stays bounded while the retained reads remain a fair sample of the input.
package readcache

import (
	"math/rand"

	"github.com/biogo/store/llrb"
	"github.com/googlegenomics/activeregions/reads"
)

// byID orders reads by ID in the tree.  Queries leave read nil.
type byID struct {
	id   uint64
	read *reads.Read
}

func (a byID) Compare(b llrb.Comparable) int {
	switch id := b.(byID).id; {
	case a.id < id:
		return -1
	case a.id > id:
		return 1
	}
	return 0
}

// Cache is a capacity-bounded set of reads keyed by read ID.  It must be
// created with New and is not safe for concurrent use.
type Cache struct {
	capacity int
	rng      *rand.Rand

	// order holds the reads sorted by ID.  pool holds the same reads in
	// arbitrary order for sampling, and slot maps an ID to its pool index.
	order llrb.Tree
	pool  []*reads.Read
	slot  map[uint64]int

	// seen counts reads offered since the last Pop and drives the sampling.
	seen           int
	discarded      int
	totalDiscarded int
}

// New returns an empty cache holding at most capacity reads.  A capacity of
// zero or less disables the limit.  The seed makes eviction reproducible.
func New(capacity int, seed int64) *Cache {
	return &Cache{
		capacity: capacity,
		rng:      rand.New(rand.NewSource(seed)),
		slot:     make(map[uint64]int),
	}
}

// Add offers r to the cache.  When the cache is full either r or a randomly
// chosen resident read is discarded; the discarded read is returned.
func (c *Cache) Add(r *reads.Read) *reads.Read {
	if i, ok := c.slot[r.ID]; ok {
		c.pool[i] = r
		c.order.Insert(byID{r.ID, r})
		return nil
	}

	c.seen++
	if c.capacity <= 0 || len(c.pool) < c.capacity {
		c.slot[r.ID] = len(c.pool)
		c.pool = append(c.pool, r)
		c.order.Insert(byID{r.ID, r})
		return nil
	}

	c.discarded++
	c.totalDiscarded++
	j := c.rng.Intn(c.seen)
	if j >= c.capacity {
		return r
	}
	evicted := c.pool[j]
	delete(c.slot, evicted.ID)
	c.order.Delete(byID{id: evicted.ID})
	c.pool[j] = r
	c.slot[r.ID] = j
	c.order.Insert(byID{r.ID, r})
	return evicted
}

// Contains reports whether a read with the given ID is held by the cache.
func (c *Cache) Contains(id uint64) bool {
	_, ok := c.slot[id]
	return ok
}

// Remove drops the read with the given ID, reporting whether it was present.
func (c *Cache) Remove(id uint64) bool {
	i, ok := c.slot[id]
	if !ok {
		return false
	}
	last := len(c.pool) - 1
	if i != last {
		c.pool[i] = c.pool[last]
		c.slot[c.pool[i].ID] = i
	}
	c.pool[last] = nil
	c.pool = c.pool[:last]
	delete(c.slot, id)
	c.order.Delete(byID{id: id})
	return true
}

// Len returns the number of reads held.
func (c *Cache) Len() int { return len(c.pool) }

// Discarded returns the number of reads discarded since the last Pop.
func (c *Cache) Discarded() int { return c.discarded }

// TotalDiscarded returns the number of reads discarded over the cache's
// lifetime.
func (c *Cache) TotalDiscarded() int { return c.totalDiscarded }

// Scan calls fn on the resident reads in input order until fn returns false.
// fn must not modify the cache.
func (c *Cache) Scan(fn func(*reads.Read) bool) {
	c.order.Do(func(e llrb.Comparable) bool {
		return !fn(e.(byID).read)
	})
}

// Reads returns the resident reads in input order without removing them.
func (c *Cache) Reads() []*reads.Read {
	out := make([]*reads.Read, 0, len(c.pool))
	c.Scan(func(r *reads.Read) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Pop empties the cache and returns its former contents in input order.
func (c *Cache) Pop() []*reads.Read {
	out := c.Reads()
	c.order = llrb.Tree{}
	c.pool = nil
	c.slot = make(map[uint64]int)
	c.seen = 0
	c.discarded = 0
	return out
}
