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

// Package traversal implements the active region traversal engine.
//
// The engine consumes sorted shards of loci, scores the activity of every
// locus, groups loci into active and inactive regions and hands each region,
// together with the reads overlapping it, to a Sink in genomic order.  Regions
// are finalized as soon as no read that has not been seen yet can overlap
// them, so memory use stays bounded by the distance between the oldest queued
// region and the current position.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/googlegenomics/activeregions/activity"
	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/internal/metrics"
	"github.com/googlegenomics/activeregions/internal/readcache"
	"github.com/googlegenomics/activeregions/reads"
	"github.com/googlegenomics/activeregions/region"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/googlegenomics/activeregions/traversal"

var (
	// ErrEmptyProfile is returned when regions are requested from an empty
	// activity profile.
	ErrEmptyProfile = errors.New("flushing an empty activity profile")

	// ErrUnsorted is returned when loci or reads are not sorted.
	ErrUnsorted = errors.New("input is not sorted")

	errDone = errors.New("traversal already ended")
)

// State is the state of an Engine.
type State int

const (
	Accumulating State = iota
	FlushingProfile
	Dispatching
	Done
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "ACCUMULATING"
	case FlushingProfile:
		return "FLUSHING_PROFILE"
	case Dispatching:
		return "DISPATCHING"
	case Done:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats summarizes a traversal.
type Stats struct {
	Shards            int
	Loci              int
	ReadsSeen         int
	Duplicates        int
	Dropped           int
	Discarded         int
	RegionsAppended   int
	RegionsFused      int
	RegionsDispatched int
	MaxReadsInMemory  int
}

// Engine drives a traversal.  It must be created with New and is not safe
// for concurrent use.
type Engine struct {
	id     string
	cfg    Config
	caps   Capabilities
	scorer ActivityScorer
	sink   Sink
	log    *logrus.Entry
	tracer trace.Tracer

	state    State
	profile  activity.Profile
	queue    *region.Queue
	cache    *readcache.Cache
	live     *liveness
	assigner *assigner

	lastLocus    genomics.Loc
	haveLocus    bool
	lastProfiled genomics.Loc
	haveProfiled bool

	stats Stats
}

// New returns an Engine scoring loci with scorer and handing finalized
// regions to sink.  Configuration errors wrap ErrConfig.
func New(cfg Config, scorer ActivityScorer, sink Sink) (*Engine, error) {
	if scorer == nil || sink == nil {
		return nil, fmt.Errorf("%w: scorer and sink are required", ErrConfig)
	}
	caps := scorer.Capabilities()
	if err := cfg.validate(caps); err != nil {
		return nil, err
	}
	if cfg.Profile == nil {
		cfg.Profile = activity.NewFactory(activity.DefaultConfig())
	}

	id := uuid.New().String()
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("traversal", id)

	return &Engine{
		id:       id,
		cfg:      cfg,
		caps:     caps,
		scorer:   scorer,
		sink:     sink,
		log:      log,
		tracer:   otel.Tracer(tracerName),
		profile:  cfg.Profile(),
		queue:    region.NewQueue(cfg.MaxRegionSize),
		cache:    readcache.New(cfg.MaxReadsInMemory, cfg.Seed),
		live:     newLiveness(cfg.Policy),
		assigner: newAssigner(caps),
	}, nil
}

// ID returns the unique identifier of the traversal.
func (e *Engine) ID() string { return e.id }

// State returns the current state of the engine.
func (e *Engine) State() State { return e.state }

// Queue returns the regions waiting to be finalized.
func (e *Engine) Queue() *region.Queue { return e.queue }

// Stats returns statistics about the traversal so far.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.RegionsAppended = e.queue.Appended()
	s.RegionsFused = e.queue.Fused()
	s.Discarded = e.cache.TotalDiscarded()
	return s
}

// Run traverses every shard of source and then ends the traversal.
func (e *Engine) Run(ctx context.Context, source ShardSource) (err error) {
	defer func() { metrics.RecordTraversal(err) }()
	for {
		shard, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading shard: %w", err)
		}
		if err := e.Traverse(ctx, shard); err != nil {
			return err
		}
	}
	return e.EndTraversal(ctx)
}

// Traverse consumes every locus of shard and finalizes the regions that no
// later read can reach.
func (e *Engine) Traverse(ctx context.Context, shard Shard) (err error) {
	if e.state == Done {
		return errDone
	}
	ctx, span := e.tracer.Start(ctx, "traversal.Shard", trace.WithAttributes(attribute.Int("shard", e.stats.Shards)))
	defer func() { endSpan(span, err) }()

	e.stats.Shards++
	e.live.beginShard()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		locus, err := shard.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading locus: %v", err)
		}
		if err := e.processLocus(ctx, locus); err != nil {
			return err
		}
	}

	if !e.profile.IsEmpty() {
		if err := e.flushProfile(); err != nil {
			return err
		}
	}
	if err := e.dispatch(ctx, false); err != nil {
		return err
	}
	metrics.SetPending(e.cache.Len(), e.queue.Len())
	span.SetAttributes(attribute.Int("queued", e.queue.Len()), attribute.Int("pending", e.cache.Len()))
	return nil
}

// EndTraversal finalizes every queued region regardless of the dead zone.
func (e *Engine) EndTraversal(ctx context.Context) (err error) {
	if e.state == Done {
		return errDone
	}
	ctx, span := e.tracer.Start(ctx, "traversal.End")
	defer func() { endSpan(span, err) }()

	if !e.profile.IsEmpty() {
		if err := e.flushProfile(); err != nil {
			return err
		}
	}
	if err := e.dispatch(ctx, true); err != nil {
		return err
	}

	for _, r := range e.cache.Pop() {
		if !e.assigner.forget(r.ID) {
			e.dropped()
		}
	}
	e.state = Done
	metrics.SetPending(0, 0)

	stats := e.Stats()
	e.log.WithFields(logrus.Fields{
		"loci":       stats.Loci,
		"reads":      stats.ReadsSeen,
		"duplicates": stats.Duplicates,
		"dropped":    stats.Dropped,
		"discarded":  stats.Discarded,
		"regions":    stats.RegionsDispatched,
		"fused":      stats.RegionsFused,
		"maxReads":   stats.MaxReadsInMemory,
	}).Info("Traversal complete")
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) processLocus(ctx context.Context, locus *Locus) error {
	loc := locus.Loc
	if e.haveLocus && !e.lastLocus.StartsBefore(loc) {
		return fmt.Errorf("locus %v follows %v: %w", loc, e.lastLocus, ErrUnsorted)
	}
	e.lastLocus, e.haveLocus = loc, true
	e.stats.Loci++
	metrics.RecordLocus()

	if e.haveProfiled && !e.lastProfiled.Contiguous(loc) {
		if err := e.flushProfile(); err != nil {
			return err
		}
	}

	for _, r := range locus.Reads {
		if e.live.duplicate(r, e.cache.Contains) {
			e.stats.Duplicates++
			metrics.RecordDuplicateRead()
			continue
		}
		if err := e.live.observe(r); err != nil {
			return err
		}
		e.stats.ReadsSeen++
		e.cacheRead(r)
	}
	e.live.advance(loc)
	if n := e.cache.Len(); n > e.stats.MaxReadsInMemory {
		e.stats.MaxReadsInMemory = n
	}

	if e.cfg.Intervals != nil && !e.cfg.Intervals.Overlaps(loc) {
		return nil
	}

	prob, err := e.score(ctx, locus)
	if err != nil {
		return err
	}
	if err := e.profile.Add(activity.State{Loc: loc, Prob: prob}); err != nil {
		return fmt.Errorf("adding activity at %v: %v", loc, err)
	}
	e.lastProfiled, e.haveProfiled = loc, true
	return nil
}

func (e *Engine) score(ctx context.Context, locus *Locus) (float64, error) {
	if e.caps.Preset != nil {
		if e.caps.Preset.Overlaps(locus.Loc) {
			return 1, nil
		}
		return 0, nil
	}

	ref := &ReferenceContext{Loc: locus.Loc}
	if e.cfg.Reference != nil {
		bases, err := e.cfg.Reference.Bases(locus.Loc)
		if err != nil {
			return 0, fmt.Errorf("reading reference at %v: %v", locus.Loc, err)
		}
		ref.Bases = bases
	}
	prob, err := e.scorer.IsActive(ctx, locus, ref, e.cfg.Tracker)
	if err != nil {
		return 0, fmt.Errorf("scoring %v: %w", locus.Loc, err)
	}
	if math.IsNaN(prob) || prob < 0 || prob > 1 {
		return 0, fmt.Errorf("scoring %v: probability %v outside [0, 1]", locus.Loc, prob)
	}
	return prob, nil
}

// flushProfile turns the activity profile into regions and queues them.
func (e *Engine) flushProfile() error {
	e.state = FlushingProfile
	defer func() { e.state = Accumulating }()

	if e.profile.IsEmpty() {
		return ErrEmptyProfile
	}
	regions, err := e.profile.BandPassFilter().CreateActiveRegions(e.cfg.Extension, e.cfg.MaxRegionSize)
	if err != nil {
		return fmt.Errorf("creating active regions: %v", err)
	}
	if err := e.queue.Append(regions); err != nil {
		return fmt.Errorf("queueing active regions: %w", err)
	}
	if e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		span, _ := e.profile.Span()
		e.log.WithFields(logrus.Fields{
			"span":    span.String(),
			"regions": len(regions),
			"queued":  e.queue.Len(),
		}).Debug("Integrated activity profile")
	}

	e.profile = e.cfg.Profile()
	e.haveProfiled = false
	return nil
}

// dispatch finalizes queued regions in order while they are dead, or all of
// them when force is set.
func (e *Engine) dispatch(ctx context.Context, force bool) error {
	e.state = Dispatching
	defer func() { e.state = Accumulating }()

	for !e.queue.IsEmpty() {
		front := e.queue.Front()
		if !force {
			dead, err := e.live.regionDead(front)
			if err != nil {
				return err
			}
			if !dead {
				break
			}
		}
		e.queue.PopFront()
		if err := e.finalize(ctx, front); err != nil {
			return err
		}
	}
	return nil
}

// finalize attaches pending reads to front, freezes it and hands it to the
// sink.
func (e *Engine) finalize(ctx context.Context, front *region.ActiveRegion) error {
	rest := e.queue.Regions()
	switch e.cfg.Policy {
	case Conservative:
		for _, r := range e.cache.Pop() {
			if err := e.assigner.assign(r, front, rest); err != nil {
				return err
			}
			if e.retire(r, front) {
				continue
			}
			// Survivors are fewer than the capacity they were popped from,
			// so this never evicts.
			e.cacheRead(r)
		}
	default:
		ext := front.Extended()
		var pending []*reads.Read
		e.cache.Scan(func(r *reads.Read) bool {
			if c := r.Loc.CompareContigs(ext); c > 0 || (c == 0 && r.Loc.Start > ext.Stop) {
				return false
			}
			pending = append(pending, r)
			return true
		})
		for _, r := range pending {
			if err := e.assigner.assign(r, front, rest); err != nil {
				return err
			}
			if e.retire(r, front) {
				e.cache.Remove(r.ID)
			}
		}
	}

	front.Freeze()
	e.log.WithFields(logrus.Fields{
		"region": front.Loc().String(),
		"active": front.IsActive(),
		"reads":  len(front.Reads()),
		"span":   front.ReadSpan().String(),
	}).Debug("Finalized region")
	if err := e.sink.Consume(ctx, front); err != nil {
		return fmt.Errorf("processing region %v: %w", front.Loc(), err)
	}
	e.stats.RegionsDispatched++
	metrics.RecordRegionDispatched(front.IsActive())
	return nil
}

// cacheRead holds r in memory, forgetting whichever read the cache evicts
// to make room.
func (e *Engine) cacheRead(r *reads.Read) {
	if evicted := e.cache.Add(r); evicted != nil {
		e.assigner.forget(evicted.ID)
		metrics.RecordReadsDiscarded(1)
	}
}

// retire reports whether r should leave memory after front was finalized,
// updating the read accounting when it does.
func (e *Engine) retire(r *reads.Read, front *region.ActiveRegion) bool {
	if !e.assigner.done(r) && !e.live.readDead(r, front, e.cfg.Extension) {
		return false
	}
	if !e.assigner.forget(r.ID) {
		e.dropped()
	}
	return true
}

func (e *Engine) dropped() {
	e.stats.Dropped++
	metrics.RecordReadDropped()
}
