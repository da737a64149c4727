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

// Package metrics exports traversal statistics to Prometheus.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "activeregions"

var (
	lociProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "loci_total",
		Help:      "Count of loci consumed by traversals.",
	})
	regionsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "regions_dispatched_total",
		Help:      "Count of finalized regions handed to walkers.",
	}, []string{"active"})
	readsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "reads_discarded_total",
		Help:      "Count of reads discarded because the read cache was full.",
	})
	readsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "reads_dropped_total",
		Help:      "Count of reads that became dead without being assigned to a region.",
	})
	duplicateReads = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "duplicate_reads_total",
		Help:      "Count of reads ignored because they were already seen in an earlier shard.",
	})
	pendingReads = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "pending_reads",
		Help:      "Number of reads held in memory waiting for a region.",
	})
	queuedRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "queued_regions",
		Help:      "Number of regions waiting to be finalized.",
	})
	traversals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "traversals_total",
		Help:      "Count of completed traversals by outcome.",
	}, []string{"outcome"})
)

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		lociProcessed,
		regionsDispatched,
		readsDiscarded,
		readsDropped,
		duplicateReads,
		pendingReads,
		queuedRegions,
		traversals,
	}
}

var registerMetrics sync.Once

// Register registers every collector with r.  Only the first call has an
// effect.
func Register(r prometheus.Registerer) {
	registerMetrics.Do(func() {
		r.MustRegister(Collectors()...)
	})
}

// RecordLocus records that one locus was consumed.
func RecordLocus() {
	lociProcessed.Inc()
}

// RecordRegionDispatched records a finalized region.
func RecordRegionDispatched(active bool) {
	regionsDispatched.WithLabelValues(strconv.FormatBool(active)).Inc()
}

// RecordReadsDiscarded records reads evicted from a full read cache.
func RecordReadsDiscarded(n int) {
	readsDiscarded.Add(float64(n))
}

// RecordReadDropped records a read that was never assigned to a region.
func RecordReadDropped() {
	readsDropped.Inc()
}

// RecordDuplicateRead records a read observed again in a later shard.
func RecordDuplicateRead() {
	duplicateReads.Inc()
}

// SetPending records the current number of pending reads and queued regions.
func SetPending(reads, regions int) {
	pendingReads.Set(float64(reads))
	queuedRegions.Set(float64(regions))
}

// RecordTraversal records the outcome of a traversal.
func RecordTraversal(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	traversals.WithLabelValues(outcome).Inc()
}
