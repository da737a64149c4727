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

// Package activity accumulates per-locus activity probabilities and turns
// them into active and inactive regions.
package activity

import (
	"errors"
	"fmt"

	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/region"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrEmpty is returned when regions are requested from an empty profile.
	ErrEmpty = errors.New("activity profile is empty")

	// ErrDiscontinuous is returned when a state is added that does not follow
	// the last state of the profile.
	ErrDiscontinuous = errors.New("state is not contiguous with the profile")
)

// State is the activity probability of a single locus.
type State struct {
	Loc  genomics.Loc
	Prob float64
}

// Profile accumulates contiguous activity states.
type Profile interface {
	// Add appends s, which must immediately follow the last state added.
	Add(s State) error
	// IsEmpty reports whether no state has been added.
	IsEmpty() bool
	// Len returns the number of states held.
	Len() int
	// Span returns the interval covered by the profile.
	Span() (genomics.Loc, bool)
	// States returns the states held, in order.
	States() []State
	// BandPassFilter returns a smoothed copy of the profile.
	BandPassFilter() Profile
	// CreateActiveRegions partitions the profile into regions no larger than
	// maxRegionSize whose extended intervals use extension.
	CreateActiveRegions(extension, maxRegionSize int) ([]*region.ActiveRegion, error)
}

// Factory returns a new empty Profile.
type Factory func() Profile

// Config controls the band-pass profile.
type Config struct {
	// Threshold is the probability above which a locus is active.
	Threshold float64
	// HalfWidth is the number of neighbouring loci on each side that a
	// probability is spread over by the filter.  Zero disables smoothing.
	HalfWidth int
	// Sigma is the standard deviation of the Gaussian smoothing kernel.
	Sigma float64
}

// DefaultConfig returns the profile configuration used when none is given.
func DefaultConfig() Config {
	return Config{Threshold: 0.5, HalfWidth: 0, Sigma: 17}
}

// Validate reports an invalid configuration.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0, 1]", c.Threshold)
	}
	if c.HalfWidth < 0 {
		return fmt.Errorf("negative half width %d", c.HalfWidth)
	}
	if c.HalfWidth > 0 && c.Sigma <= 0 {
		return fmt.Errorf("non-positive sigma %v", c.Sigma)
	}
	return nil
}

// NewFactory returns a Factory of band-pass profiles using cfg.
func NewFactory(cfg Config) Factory {
	kernel := gaussianKernel(cfg.HalfWidth, cfg.Sigma)
	return func() Profile {
		return &BandPass{cfg: cfg, kernel: kernel}
	}
}

// BandPass is a Profile smoothed with a Gaussian kernel.
type BandPass struct {
	cfg    Config
	kernel []float64
	states []State
}

// NewBandPass returns an empty profile using cfg.
func NewBandPass(cfg Config) *BandPass {
	return &BandPass{cfg: cfg, kernel: gaussianKernel(cfg.HalfWidth, cfg.Sigma)}
}

func gaussianKernel(halfWidth int, sigma float64) []float64 {
	if halfWidth <= 0 {
		return []float64{1}
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	kernel := make([]float64, 2*halfWidth+1)
	for i := range kernel {
		kernel[i] = dist.Prob(float64(i - halfWidth))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

func (p *BandPass) Add(s State) error {
	if n := len(p.states); n > 0 {
		last := p.states[n-1].Loc
		if last.ContigIndex != s.Loc.ContigIndex || last.Stop+1 != s.Loc.Start {
			return fmt.Errorf("adding %v after %v: %w", s.Loc, last, ErrDiscontinuous)
		}
	}
	if s.Loc.Size() != 1 {
		return fmt.Errorf("state %v does not cover a single locus", s.Loc)
	}
	p.states = append(p.states, s)
	return nil
}

func (p *BandPass) IsEmpty() bool { return len(p.states) == 0 }

func (p *BandPass) Len() int { return len(p.states) }

func (p *BandPass) Span() (genomics.Loc, bool) {
	if len(p.states) == 0 {
		return genomics.Loc{}, false
	}
	return p.states[0].Loc.Union(p.states[len(p.states)-1].Loc), true
}

func (p *BandPass) States() []State { return p.states }

// Probabilities returns the probabilities held by the profile, in order.
func (p *BandPass) Probabilities() []float64 {
	out := make([]float64, len(p.states))
	for i, s := range p.states {
		out[i] = s.Prob
	}
	return out
}

func (p *BandPass) BandPassFilter() Profile {
	smoothed := &BandPass{cfg: p.cfg, kernel: p.kernel, states: make([]State, len(p.states))}
	halfWidth := len(p.kernel) / 2
	for i, s := range p.states {
		smoothed.states[i].Loc = s.Loc
	}
	for i, s := range p.states {
		for k, w := range p.kernel {
			j := i + k - halfWidth
			if j < 0 || j >= len(p.states) {
				continue
			}
			smoothed.states[j].Prob += s.Prob * w
		}
	}
	for i := range smoothed.states {
		smoothed.states[i].Prob = min(1, smoothed.states[i].Prob)
	}
	return smoothed
}

func (p *BandPass) CreateActiveRegions(extension, maxRegionSize int) ([]*region.ActiveRegion, error) {
	if len(p.states) == 0 {
		return nil, ErrEmpty
	}
	if extension < 0 {
		return nil, fmt.Errorf("negative extension %d", extension)
	}
	if maxRegionSize < 1 {
		return nil, fmt.Errorf("maximum region size %d is smaller than one locus", maxRegionSize)
	}

	var out []*region.ActiveRegion
	for start := 0; start < len(p.states); {
		active := p.isActive(start)
		end := start + 1
		for end < len(p.states) && end-start < maxRegionSize && p.isActive(end) == active {
			end++
		}
		loc := p.states[start].Loc.Union(p.states[end-1].Loc)
		probs := make([]float64, 0, end-start)
		for _, s := range p.states[start:end] {
			probs = append(probs, s.Prob)
		}
		out = append(out, region.New(loc, active, extension).WithProbabilities(probs))
		start = end
	}
	return out, nil
}

func (p *BandPass) isActive(i int) bool {
	return p.states[i].Prob > p.cfg.Threshold
}
