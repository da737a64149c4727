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

package config

import (
	"strings"
	"testing"

	"github.com/googlegenomics/activeregions/source"
	"github.com/googlegenomics/activeregions/traversal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(`
[traversal]
extension = 25
policy = "conservative"
seed = 7

[profile]
threshold = 0.3
half_width = 5

[dispatch]
workers = 4

[source]
format = "sam"
`))
	require.NoError(t, err)

	tc, err := c.TraversalConfig()
	require.NoError(t, err)
	assert.Equal(t, 25, tc.Extension)
	assert.Equal(t, traversal.DefaultConfig().MaxRegionSize, tc.MaxRegionSize, "missing keys should keep their default")
	assert.Equal(t, traversal.Conservative, tc.Policy)
	assert.Equal(t, int64(7), tc.Seed)
	require.NotNil(t, tc.Profile)
	assert.NotNil(t, tc.Profile())

	assert.Equal(t, 4, c.DispatchOptions().Workers)
	assert.Equal(t, source.SAM, c.Format())
	assert.Equal(t, 16384, c.Source.ShardSize)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name, text string
	}{
		{"unknown key", "[traversal]\nextent = 3\n"},
		{"unknown section", "[walker]\nname = \"x\"\n"},
		{"syntax", "[traversal\n"},
		{"negative extension", "[traversal]\nextension = -1\n"},
		{"region size", "[traversal]\nmax_region_size = 0\n"},
		{"policy", "[traversal]\npolicy = \"eager\"\n"},
		{"threshold", "[profile]\nthreshold = 2.0\n"},
		{"sigma", "[profile]\nhalf_width = 3\nsigma = 0.0\n"},
		{"format", "[source]\nformat = \"cram\"\n"},
		{"workers", "[dispatch]\nworkers = -2\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tc.text)); err == nil {
				t.Errorf("Load(%q) succeeded, want error", tc.text)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	if got, want := c.Format(), source.BAM; got != want {
		t.Errorf("Wrong default format: got %v, want %v", got, want)
	}
}
