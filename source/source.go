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

// Package source turns sorted alignment files into shards of loci for the
// traversal engine.
package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// Format is the encoding of an alignment input.
type Format int

const (
	BAM Format = iota
	SAM
	GzipSAM
)

func (f Format) String() string {
	switch f {
	case BAM:
		return "BAM"
	case SAM:
		return "SAM"
	case GzipSAM:
		return "SAM.GZ"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat returns the format with the given name.  Names are case
// insensitive and an empty name selects BAM.
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(name) {
	case "", "BAM":
		return BAM, nil
	case "SAM":
		return SAM, nil
	case "SAM.GZ", "SAMGZ":
		return GzipSAM, nil
	}
	return 0, fmt.Errorf("unsupported format %q", name)
}

// FormatFromPath guesses the format of a file from its name.
func FormatFromPath(path string) Format {
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".sam"):
		return SAM
	case strings.HasSuffix(lower, ".sam.gz"), strings.HasSuffix(lower, ".gz"):
		return GzipSAM
	}
	return BAM
}

// RecordReader reads alignment records.  Read returns io.EOF after the last
// record.
type RecordReader interface {
	Read() (*sam.Record, error)
}

// Input is an open alignment stream.
type Input struct {
	Header  *sam.Header
	Records RecordReader
	closers []io.Closer
}

// Open reads the header of r and returns an Input positioned at the first
// record.  Closing the Input does not close r.
func Open(r io.Reader, format Format) (*Input, error) {
	switch format {
	case BAM:
		br, err := bam.NewReader(r, 1)
		if err != nil {
			return nil, fmt.Errorf("opening BAM: %v", err)
		}
		return &Input{Header: br.Header(), Records: br, closers: []io.Closer{br}}, nil
	case SAM:
		sr, err := sam.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening SAM: %v", err)
		}
		return &Input{Header: sr.Header(), Records: sr}, nil
	case GzipSAM:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %v", err)
		}
		sr, err := sam.NewReader(gz)
		if err != nil {
			gz.Close()
			return nil, fmt.Errorf("opening SAM: %v", err)
		}
		return &Input{Header: sr.Header(), Records: sr, closers: []io.Closer{gz}}, nil
	}
	return nil, fmt.Errorf("unsupported format %v", format)
}

// Close releases the decoders of the input.
func (in *Input) Close() error {
	var first error
	for _, c := range in.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
