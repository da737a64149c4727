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

// This binary traverses a sorted alignment file and reports its active
// regions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/googlegenomics/activeregions/dispatch"
	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/internal/config"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/googlegenomics/activeregions/source"
	"github.com/googlegenomics/activeregions/storage"
	"github.com/googlegenomics/activeregions/traversal"
	"github.com/googlegenomics/activeregions/walkers"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	format     string
	intervals  []string
	bedFile    string
	presetFile string

	extension     int
	maxRegionSize int
	policy        string
	workers       int
	minMapQ       int

	output     string
	igvRegions string
	igvProfile string
	activeOnly bool

	progress   bool
	cpuProfile string
	logLevel   string
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:   "activeregions",
		Short: "Find the active regions of sorted alignment files",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "TOML configuration file")
	flags.StringVar(&opts.format, "format", "", "input format (BAM, SAM or SAM.GZ); guessed from the file name if empty")
	flags.StringArrayVarP(&opts.intervals, "interval", "L", nil, "restrict the traversal to contig[:start[-stop]] (repeatable)")
	flags.StringVar(&opts.bedFile, "bed", "", "restrict the traversal to the intervals of a BED file")
	flags.StringVar(&opts.presetFile, "preset", "", "BED file of regions reported active instead of scoring loci")
	flags.IntVar(&opts.extension, "extension", -1, "region extension, overriding the configuration")
	flags.IntVar(&opts.maxRegionSize, "max_region_size", 0, "maximum region size, overriding the configuration")
	flags.StringVar(&opts.policy, "policy", "", "liveness policy (deadzone or conservative), overriding the configuration")
	flags.IntVarP(&opts.workers, "workers", "t", 0, "parallel walker workers, overriding the configuration")
	flags.IntVar(&opts.minMapQ, "min_mapq", 0, "minimum mapping quality of reads counted as evidence")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default standard output)")
	flags.BoolVar(&opts.progress, "progress", false, "show a progress bar over shards")
	flags.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to this directory")
	flags.StringVar(&opts.logLevel, "log_level", "warning", "logging level")

	list := &cobra.Command{
		Use:   "list <file>",
		Short: "Print active regions as contig:start-stop lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, args[0])
		},
	}
	list.Flags().StringVar(&opts.igvRegions, "igv_regions", "", "also write the regions as an IGV track to this file")
	list.Flags().StringVar(&opts.igvProfile, "igv_profile", "", "also write the activity profile as an IGV track to this file")

	count := &cobra.Command{
		Use:   "count <file>",
		Short: "Count regions and the reads assigned to them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), opts, args[0])
		},
	}

	summary := &cobra.Command{
		Use:   "summary <file>",
		Short: "Print every region with its read counts as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), opts, args[0])
		},
	}
	summary.Flags().BoolVar(&opts.activeOnly, "active", false, "only report active regions")

	root.AddCommand(list, count, summary)
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// job holds everything needed to traverse one input.
type job struct {
	opts   options
	cfg    config.Config
	tcfg   traversal.Config
	scorer walkers.IndelEvidence
	in     *source.Input
	shards *progressShards
	data   io.Closer
	out    io.Writer
	files  []*os.File
	closed bool
}

func newJob(ctx context.Context, opts options, path string) (*job, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configFile); err != nil {
			return nil, err
		}
	}
	if opts.extension >= 0 {
		cfg.Traversal.Extension = opts.extension
	}
	if opts.maxRegionSize > 0 {
		cfg.Traversal.MaxRegionSize = opts.maxRegionSize
	}
	if opts.policy != "" {
		cfg.Traversal.Policy = opts.policy
	}
	if opts.workers > 0 {
		cfg.Dispatch.Workers = opts.workers
	}
	if opts.format != "" {
		cfg.Source.Format = opts.format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format := cfg.Format()
	if cfg.Source.Format == "" {
		format = source.FormatFromPath(path)
	}

	data, err := openPath(ctx, path)
	if err != nil {
		return nil, err
	}
	in, err := source.Open(data, format)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("opening %s: %v", path, err)
	}
	j := &job{opts: opts, cfg: cfg, in: in, data: data, out: os.Stdout}

	resolver := intervals.NewResolver(in.Header)
	locs, err := traversalIntervals(resolver, opts)
	if err != nil {
		j.Close()
		return nil, err
	}

	if j.tcfg, err = cfg.TraversalConfig(); err != nil {
		j.Close()
		return nil, err
	}
	j.tcfg.Logger = logrus.WithField("input", path)
	if len(locs) > 0 {
		if j.tcfg.Intervals, err = intervals.NewSet(locs); err != nil {
			j.Close()
			return nil, err
		}
	}

	j.scorer = walkers.IndelEvidence{MinMappingQuality: byte(opts.minMapQ)}
	if opts.presetFile != "" {
		preset, err := readBED(resolver, opts.presetFile)
		if err != nil {
			j.Close()
			return nil, err
		}
		if j.scorer.Preset, err = intervals.NewSet(preset); err != nil {
			j.Close()
			return nil, err
		}
	}

	shards := source.NewShards(in.Records, source.Plan(resolver, locs, cfg.Source.ShardSize))
	j.shards = newProgressShards(shards, opts.progress)

	if opts.output != "" {
		f, err := j.create(opts.output)
		if err != nil {
			j.Close()
			return nil, err
		}
		j.out = f
	}
	return j, nil
}

// create creates a file closed along with the job.
func (j *job) create(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output: %v", err)
	}
	j.files = append(j.files, f)
	return f, nil
}

func (j *job) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if j.shards != nil {
		j.shards.finish()
	}
	var first error
	for _, f := range j.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.in.Close()
	if err := j.data.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (j *job) report(stats traversal.Stats) {
	logrus.WithFields(logrus.Fields{
		"shards":     stats.Shards,
		"loci":       stats.Loci,
		"reads":      stats.ReadsSeen,
		"duplicates": stats.Duplicates,
		"dropped":    stats.Dropped,
		"discarded":  stats.Discarded,
		"regions":    stats.RegionsDispatched,
		"unmapped":   j.shards.Skipped(),
	}).Info("Traversal complete")
}

func traversalIntervals(resolver *intervals.Resolver, opts options) ([]genomics.Loc, error) {
	var locs []genomics.Loc
	for _, s := range opts.intervals {
		loc, err := resolver.Parse(s)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	if opts.bedFile != "" {
		bed, err := readBED(resolver, opts.bedFile)
		if err != nil {
			return nil, err
		}
		locs = append(locs, bed...)
	}
	return locs, nil
}

func readBED(resolver *intervals.Resolver, path string) ([]genomics.Loc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening BED file: %v", err)
	}
	defer f.Close()
	locs, err := resolver.ParseBED(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return locs, nil
}

// openPath opens a local file or a gs://bucket/object URL.
func openPath(ctx context.Context, path string) (io.ReadCloser, error) {
	if rest := strings.TrimPrefix(path, "gs://"); rest != path {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid GCS path %q", path)
		}
		gcs, _, err := storage.NewDefaultClient(nil)
		if err != nil {
			return nil, err
		}
		r, err := gcs.NewObjectHandle(parts[0], parts[1]).NewRangeReader(ctx, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %v", path, err)
		}
		return r, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %v", err)
	}
	return f, nil
}

func startProfile(opts options) func() {
	if opts.cpuProfile == "" {
		return func() {}
	}
	return profile.Start(profile.CPUProfile, profile.ProfilePath(opts.cpuProfile), profile.Quiet).Stop
}

func runList(ctx context.Context, opts options, path string) error {
	defer startProfile(opts)()
	j, err := newJob(ctx, opts, path)
	if err != nil {
		return err
	}
	defer j.Close()

	listing := traversal.NewListingSink(j.out)
	sink := traversal.Sink(listing)
	var igv *traversal.IGVSink
	if opts.igvRegions != "" || opts.igvProfile != "" {
		var regions, prof io.Writer
		if opts.igvRegions != "" {
			if regions, err = j.create(opts.igvRegions); err != nil {
				return err
			}
		}
		if opts.igvProfile != "" {
			if prof, err = j.create(opts.igvProfile); err != nil {
				return err
			}
		}
		igv = traversal.NewIGVSink(regions, prof)
		sink = traversal.Tee(listing, igv)
	}

	engine, err := traversal.New(j.tcfg, j.scorer, sink)
	if err != nil {
		return err
	}
	if err := engine.Run(ctx, j.shards); err != nil {
		return err
	}
	if err := listing.Flush(); err != nil {
		return err
	}
	if igv != nil {
		if err := igv.Flush(); err != nil {
			return err
		}
	}
	j.report(engine.Stats())
	return j.Close()
}

func runCount(ctx context.Context, opts options, path string) error {
	defer startProfile(opts)()
	j, err := newJob(ctx, opts, path)
	if err != nil {
		return err
	}
	defer j.Close()

	counts, stats, err := dispatch.Run[walkers.Counts, walkers.Counts](ctx, j.tcfg, walkers.CountReads{ActivityScorer: j.scorer}, walkers.Counts{}, j.shards, j.cfg.DispatchOptions())
	if err != nil {
		return err
	}
	j.report(stats)
	fmt.Fprintf(j.out, "regions\t%d\nactive_regions\t%d\nactive_bases\t%d\nprimary_reads\t%d\nsecondary_reads\t%d\n",
		counts.Regions, counts.ActiveRegions, counts.ActiveBases, counts.PrimaryReads, counts.SecondaryReads)
	return j.Close()
}

func runSummary(ctx context.Context, opts options, path string) error {
	defer startProfile(opts)()
	j, err := newJob(ctx, opts, path)
	if err != nil {
		return err
	}
	defer j.Close()

	walker := walkers.Summary{ActivityScorer: j.scorer, ActiveOnly: opts.activeOnly}
	regions, stats, err := dispatch.Run[walkers.RegionSummary, []walkers.RegionSummary](ctx, j.tcfg, walker, nil, j.shards, j.cfg.DispatchOptions())
	if err != nil {
		return err
	}
	j.report(stats)
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(regions); err != nil {
		return fmt.Errorf("encoding regions: %v", err)
	}
	return j.Close()
}

// progressShards advances a progress bar as shards are consumed.
type progressShards struct {
	*source.Shards
	bar *pb.ProgressBar
}

func newProgressShards(s *source.Shards, show bool) *progressShards {
	p := &progressShards{Shards: s}
	if show {
		p.bar = pb.Full.Start(s.Len())
	}
	return p
}

func (p *progressShards) Next() (traversal.Shard, error) {
	shard, err := p.Shards.Next()
	if err == nil && p.bar != nil {
		p.bar.Increment()
	}
	return shard, err
}

func (p *progressShards) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}
