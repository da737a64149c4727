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

// Package config loads traversal settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/googlegenomics/activeregions/activity"
	"github.com/googlegenomics/activeregions/dispatch"
	"github.com/googlegenomics/activeregions/source"
	"github.com/googlegenomics/activeregions/traversal"
	"github.com/pelletier/go-toml/v2"
)

// Config is the content of a configuration file.  Missing keys keep their
// default values.
type Config struct {
	Traversal Traversal `toml:"traversal"`
	Profile   Profile   `toml:"profile"`
	Dispatch  Dispatch  `toml:"dispatch"`
	Source    Source    `toml:"source"`
}

type Traversal struct {
	Extension        int    `toml:"extension"`
	MaxRegionSize    int    `toml:"max_region_size"`
	MaxReadsInMemory int    `toml:"max_reads_in_memory"`
	Policy           string `toml:"policy"`
	Seed             int64  `toml:"seed"`
}

type Profile struct {
	Threshold float64 `toml:"threshold"`
	HalfWidth int     `toml:"half_width"`
	Sigma     float64 `toml:"sigma"`
}

type Dispatch struct {
	// Workers of zero uses one worker per CPU.
	Workers  int `toml:"workers"`
	InFlight int `toml:"in_flight"`
}

type Source struct {
	ShardSize int    `toml:"shard_size"`
	Format    string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	t := traversal.DefaultConfig()
	p := activity.DefaultConfig()
	return Config{
		Traversal: Traversal{
			Extension:        t.Extension,
			MaxRegionSize:    t.MaxRegionSize,
			MaxReadsInMemory: t.MaxReadsInMemory,
			Policy:           t.Policy.String(),
		},
		Profile: Profile{
			Threshold: p.Threshold,
			HalfWidth: p.HalfWidth,
			Sigma:     p.Sigma,
		},
		Source: Source{ShardSize: 16384},
	}
}

// Load decodes a configuration from r on top of the defaults.  Unknown keys
// are rejected.
func Load(r io.Reader) (Config, error) {
	c := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("unknown configuration keys:\n%s", strict.String())
		}
		return Config{}, fmt.Errorf("decoding configuration: %v", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile loads the configuration file at path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening configuration: %v", err)
	}
	defer f.Close()
	return Load(f)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Traversal.Extension < 0:
		return fmt.Errorf("traversal.extension: negative value %d", c.Traversal.Extension)
	case c.Traversal.MaxRegionSize < 1:
		return fmt.Errorf("traversal.max_region_size: %d is smaller than one locus", c.Traversal.MaxRegionSize)
	case c.Traversal.MaxReadsInMemory < 0:
		return fmt.Errorf("traversal.max_reads_in_memory: negative value %d", c.Traversal.MaxReadsInMemory)
	case c.Dispatch.Workers < 0:
		return fmt.Errorf("dispatch.workers: negative value %d", c.Dispatch.Workers)
	case c.Dispatch.InFlight < 0:
		return fmt.Errorf("dispatch.in_flight: negative value %d", c.Dispatch.InFlight)
	case c.Source.ShardSize < 0:
		return fmt.Errorf("source.shard_size: negative value %d", c.Source.ShardSize)
	}
	if _, err := traversal.ParsePolicy(c.Traversal.Policy); err != nil {
		return fmt.Errorf("traversal.policy: %v", err)
	}
	if err := c.activity().Validate(); err != nil {
		return fmt.Errorf("profile: %v", err)
	}
	if _, err := source.ParseFormat(c.Source.Format); err != nil {
		return fmt.Errorf("source.format: %v", err)
	}
	return nil
}

func (c Config) activity() activity.Config {
	return activity.Config{
		Threshold: c.Profile.Threshold,
		HalfWidth: c.Profile.HalfWidth,
		Sigma:     c.Profile.Sigma,
	}
}

// TraversalConfig returns the engine configuration.  Collaborators such as
// the logger and intervals are left for the caller to set.
func (c Config) TraversalConfig() (traversal.Config, error) {
	policy, err := traversal.ParsePolicy(c.Traversal.Policy)
	if err != nil {
		return traversal.Config{}, err
	}
	return traversal.Config{
		Extension:        c.Traversal.Extension,
		MaxRegionSize:    c.Traversal.MaxRegionSize,
		MaxReadsInMemory: c.Traversal.MaxReadsInMemory,
		Policy:           policy,
		Seed:             c.Traversal.Seed,
		Profile:          activity.NewFactory(c.activity()),
	}, nil
}

// DispatchOptions returns the options of the parallel dispatcher.
func (c Config) DispatchOptions() dispatch.Options {
	return dispatch.Options{Workers: c.Dispatch.Workers, InFlight: c.Dispatch.InFlight}
}

// Format returns the input format.
func (c Config) Format() source.Format {
	f, _ := source.ParseFormat(c.Source.Format)
	return f
}
