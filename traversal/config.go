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
	"errors"
	"fmt"

	"github.com/googlegenomics/activeregions/activity"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/sirupsen/logrus"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid configuration")

// Policy selects how pending reads are tracked between shards.
type Policy int

const (
	// DeadZone suppresses reads seen again after a shard boundary by
	// identity and removes reads from memory as soon as they are dead.
	DeadZone Policy = iota
	// Conservative suppresses repeated reads by position and reassigns every
	// pending read each time a region is finalized.
	Conservative
)

func (p Policy) String() string {
	switch p {
	case DeadZone:
		return "deadzone"
	case Conservative:
		return "conservative"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy returns the policy with the given name.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "deadzone":
		return DeadZone, nil
	case "conservative":
		return Conservative, nil
	}
	return 0, fmt.Errorf("unknown policy %q", name)
}

// Config holds the parameters of a traversal.
type Config struct {
	// Extension is the margin added on each side of a region.
	Extension int
	// MaxRegionSize is the largest region produced, in bases.
	MaxRegionSize int
	// MaxReadsInMemory bounds the number of pending reads.  Zero means no
	// limit.
	MaxReadsInMemory int
	Policy           Policy
	// Seed drives the sampling of pending reads once the limit is reached.
	Seed int64

	// Profile builds activity profiles.  Defaults to a band-pass profile
	// with activity.DefaultConfig.
	Profile activity.Factory
	// Intervals restricts the loci that are scored.  Loci outside of it
	// still contribute reads.
	Intervals *intervals.Set
	Reference ReferenceSource
	Tracker   Tracker

	Logger *logrus.Entry
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Extension:        50,
		MaxRegionSize:    300,
		MaxReadsInMemory: 100000,
		Policy:           DeadZone,
	}
}

func (c Config) validate(caps Capabilities) error {
	if c.Extension < 0 {
		return fmt.Errorf("%w: negative extension %d", ErrConfig, c.Extension)
	}
	if c.MaxRegionSize < 1 {
		return fmt.Errorf("%w: maximum region size %d is smaller than one locus", ErrConfig, c.MaxRegionSize)
	}
	if c.MaxReadsInMemory < 0 {
		return fmt.Errorf("%w: negative read limit %d", ErrConfig, c.MaxReadsInMemory)
	}
	if c.Policy != DeadZone && c.Policy != Conservative {
		return fmt.Errorf("%w: unknown policy %v", ErrConfig, c.Policy)
	}
	if caps.ExtendedReads && c.Extension <= 0 {
		return fmt.Errorf("%w: extended reads require a positive extension, got %d", ErrConfig, c.Extension)
	}
	if caps.ExtendedReads && !caps.NonPrimaryReads {
		return fmt.Errorf("%w: extended reads require non-primary reads", ErrConfig)
	}
	return nil
}
