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

// Package api implements an HTTP service listing the active regions of
// alignment files held in object storage.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/activeregions/dispatch"
	"github.com/googlegenomics/activeregions/genomics"
	"github.com/googlegenomics/activeregions/internal/config"
	"github.com/googlegenomics/activeregions/intervals"
	"github.com/googlegenomics/activeregions/source"
	"github.com/googlegenomics/activeregions/storage"
	"github.com/googlegenomics/activeregions/traversal"
	"github.com/googlegenomics/activeregions/walkers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	regionsPath = "/regions"
	metricsPath = "/metrics"
)

var (
	errInvalidOrUnspecifiedID = errors.New("invalid or unspecified ID")
	errMissingReferenceName   = errors.New("no reference name specified")
)

// Server provides the active region listing service.  Must be created with
// NewServer.
type Server struct {
	newStorageClient storage.Factory
	cfg              config.Config
	whitelist        map[string]bool
	log              *logrus.Entry
}

// NewServer returns a new Server that opens objects with the client returned
// by newStorageClient for each request and traverses them with cfg.  A nil
// log selects the standard logger.
func NewServer(newStorageClient storage.Factory, cfg config.Config, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		newStorageClient: newStorageClient,
		cfg:              cfg,
		whitelist:        make(map[string]bool),
		log:              log,
	}
}

// Whitelist adds buckets to the set of buckets which the server is allowed to
// access. If Whitelist is never called for a given Server then reads from any
// bucket are allowed.
func (server *Server) Whitelist(buckets []string) {
	for _, bucket := range buckets {
		if bucket = strings.TrimSpace(bucket); bucket != "" {
			server.whitelist[bucket] = true
		}
	}
}

// Export registers the regions endpoint with router.
func (server *Server) Export(router gin.IRouter) {
	router.GET(regionsPath+"/*id", forwardOrigin, server.serveRegions)
}

// ExportMetrics registers an endpoint serving the metrics gathered by g.
func ExportMetrics(router gin.IRouter, g prometheus.Gatherer) {
	router.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

func (server *Server) serveRegions(c *gin.Context) {
	ctx := c.Request.Context()
	query := c.Request.URL.Query()

	format, err := parseFormat(query.Get("format"))
	if err != nil {
		writeError(c, newUnsupportedFormatError(err))
		return
	}

	bucket, object, err := parseID(strings.TrimPrefix(c.Param("id"), "/"))
	if err != nil {
		writeError(c, newInvalidInputError("parsing readset ID", err))
		return
	}

	if err := server.checkWhitelist(bucket); err != nil {
		writeError(c, newPermissionDeniedError("checking whitelist", err))
		return
	}

	cfg, err := server.traversalConfig(query)
	if err != nil {
		writeError(c, newInvalidInputError("parsing traversal parameters", err))
		return
	}

	gcs, _, err := server.newStorageClient(c.Request)
	if err != nil {
		writeError(c, newStorageError("creating client", err))
		return
	}

	data, err := gcs.NewObjectHandle(bucket, object).NewRangeReader(ctx, 0, -1)
	if err != nil {
		writeError(c, newStorageError("opening data", err))
		return
	}
	defer data.Close()

	in, err := source.Open(data, format)
	if err != nil {
		writeError(c, newInvalidInputError("reading header", err))
		return
	}
	defer in.Close()

	resolver := intervals.NewResolver(in.Header)
	region, err := parseRegion(query, resolver)
	if err != nil {
		writeError(c, newInvalidInputError("parsing region", err))
		return
	}
	if region.End > 0 && region.Start > region.End {
		writeError(c, newInvalidRangeError(fmt.Errorf("%s: start > end", region)))
		return
	}
	locs, err := regionLocs(region, resolver)
	if err != nil {
		writeError(c, newInvalidRangeError(err))
		return
	}

	log := server.log.WithFields(logrus.Fields{"bucket": bucket, "object": object, "region": region.String()})
	cfg.Logger = log
	walker := walkers.Summary{
		ActivityScorer: walkers.IndelEvidence{},
		ActiveOnly:     query.Get("active") == "true",
	}
	d := dispatch.New[walkers.RegionSummary, []walkers.RegionSummary](walker, nil, nil, server.cfg.DispatchOptions())
	engine, err := traversal.New(cfg, walker, d)
	if err != nil {
		d.Close()
		writeError(c, newInvalidInputError("configuring traversal", err))
		return
	}

	plan := source.Plan(resolver, locs, server.cfg.Source.ShardSize)
	runErr := engine.Run(ctx, source.NewShards(in.Records, plan))
	regions, err := d.Close()
	if runErr != nil {
		err = runErr
	}
	if err != nil {
		log.WithError(err).Warn("Traversal failed")
		if errors.Is(err, traversal.ErrUnsorted) || errors.Is(err, traversal.ErrConfig) {
			writeError(c, newInvalidInputError("traversing regions", err))
			return
		}
		writeError(c, fmt.Errorf("traversing regions: %v", err))
		return
	}
	if regions == nil {
		regions = []walkers.RegionSummary{}
	}

	stats := engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"traversal": gin.H{
			"id":      engine.ID(),
			"regions": regions,
			"stats": gin.H{
				"loci":       stats.Loci,
				"readsSeen":  stats.ReadsSeen,
				"duplicates": stats.Duplicates,
				"dropped":    stats.Dropped,
				"discarded":  stats.Discarded,
				"dispatched": stats.RegionsDispatched,
			},
		},
	})
}

// traversalConfig returns the server configuration with the overrides of
// query applied.
func (server *Server) traversalConfig(query url.Values) (traversal.Config, error) {
	cfg, err := server.cfg.TraversalConfig()
	if err != nil {
		return traversal.Config{}, err
	}
	if v := query.Get("extension"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return traversal.Config{}, fmt.Errorf("invalid extension %q", v)
		}
		cfg.Extension = n
	}
	if v := query.Get("maxRegionSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return traversal.Config{}, fmt.Errorf("invalid maxRegionSize %q", v)
		}
		cfg.MaxRegionSize = n
	}
	return cfg, nil
}

func (server *Server) checkWhitelist(bucket string) error {
	if len(server.whitelist) == 0 || server.whitelist[bucket] {
		return nil
	}
	return fmt.Errorf("access to bucket %s is not allowed", bucket)
}

// parseID parses path and returns a bucket and object, or an error.
func parseID(path string) (string, string, error) {
	if parts := strings.SplitN(path, "/", 2); len(parts) == 2 {
		if parts[0] != "" && parts[1] != "" {
			return parts[0], parts[1], nil
		}
	}
	return "", "", errInvalidOrUnspecifiedID
}

func parseFormat(format string) (source.Format, error) {
	switch format {
	case "", "BAM":
		return source.BAM, nil
	case "SAM":
		return source.SAM, nil
	}
	return 0, fmt.Errorf("unsupported format %q", format)
}

func parseRegion(query url.Values, resolver *intervals.Resolver) (genomics.Region, error) {
	var (
		name  = query.Get("referenceName")
		start = query.Get("start")
		end   = query.Get("end")
	)
	if name == "" && start == "" && end == "" {
		return genomics.AllMappedReads, nil
	}
	if name == "" {
		return genomics.Region{}, errMissingReferenceName
	}

	id, _, err := resolver.Lookup(name)
	if err != nil {
		return genomics.Region{}, fmt.Errorf("resolving reference: %v", err)
	}

	region := genomics.Region{ReferenceID: int32(id)}

	if start != "" {
		n, err := strconv.ParseUint(start, 10, 32)
		if err != nil {
			return genomics.Region{}, fmt.Errorf("parsing start: %v", err)
		}
		region.Start = uint32(n)
	}

	if end != "" {
		n, err := strconv.ParseUint(end, 10, 32)
		if err != nil {
			return genomics.Region{}, fmt.Errorf("parsing end: %v", err)
		}
		region.End = uint32(n)
	}

	return region, nil
}

// regionLocs converts the 0-based half-open region into traversal intervals.
// A nil result traverses every contig.
func regionLocs(region genomics.Region, resolver *intervals.Resolver) ([]genomics.Loc, error) {
	if region.ReferenceID < 0 {
		return nil, nil
	}
	index := int(region.ReferenceID)
	contig := resolver.Contigs()[index]
	stop := contig.Stop
	if region.End > 0 && int(region.End) < stop {
		stop = int(region.End)
	}
	loc := genomics.NewLoc(index, contig.Contig, int(region.Start)+1, stop)
	if loc.Size() <= 0 {
		return nil, fmt.Errorf("%s: start is past the end of %s", region, contig)
	}
	return []genomics.Loc{loc}, nil
}

func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
