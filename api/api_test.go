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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/biogo/hts/bam"
	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/activeregions/internal/config"
	"github.com/googlegenomics/activeregions/source"
	gstorage "github.com/googlegenomics/activeregions/storage"
	"github.com/googlegenomics/activeregions/walkers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testSAM = "@HD\tVN:1.0\tSO:coordinate\n@SQ\tSN:1\tLN:60\n@SQ\tSN:2\tLN:30\n" +
	"a\t0\t1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n" +
	"b\t0\t1\t15\t60\t1M6D1M\t*\t0\t0\tAC\tII\n" +
	"c\t0\t1\t15\t60\t1M6D1M\t*\t0\t0\tAC\tII\n" +
	"d\t0\t1\t30\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n"

const unsortedSAM = "@HD\tVN:1.0\tSO:coordinate\n@SQ\tSN:1\tLN:60\n" +
	"d\t0\t1\t30\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n" +
	"a\t0\t1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n"

func init() {
	gin.SetMode(gin.TestMode)
}

func testObjects(t *testing.T) map[string][]byte {
	t.Helper()
	in, err := source.Open(strings.NewReader(testSAM), source.SAM)
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, in.Header, 1)
	require.NoError(t, err)
	for {
		rec, err := in.Records.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())

	return map[string][]byte{
		"sample.sam":   []byte(testSAM),
		"sample.bam":   buf.Bytes(),
		"unsorted.sam": []byte(unsortedSAM),
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Traversal.Extension = 2
	cfg.Source.ShardSize = 20
	cfg.Dispatch.Workers = 2
	return cfg
}

type testServer struct {
	router    *gin.Engine
	server    *Server
	transport http.RoundTripper
}

func newTestServer(t *testing.T, transport http.RoundTripper) *testServer {
	t.Helper()
	if transport == nil {
		transport = fixedStatus(http.StatusNotFound)
	}
	gcs, err := storage.NewClient(context.Background(), option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	newStorageClient := func(*http.Request) (gstorage.Client, http.Header, error) {
		return gstorage.GCSClient{Client: gcs}, nil, nil
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	router := gin.New()
	server := NewServer(newStorageClient, testConfig(), logrus.NewEntry(logger))
	server.Export(router)
	return &testServer{router: router, server: server, transport: transport}
}

func (s *testServer) query(t *testing.T, url string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatalf("Failed to parse URL %q: %v", url, err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Result()
}

func expectError(t *testing.T, name string, code int, resp *http.Response) {
	t.Helper()
	if got, want := resp.StatusCode, code; got != want {
		t.Errorf("Wrong status code: got %v, want %v", got, want)
	}
	body := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}
	if got, want := body["error"], name; got != want {
		t.Errorf("Wrong 'error' field value: got %v, want %v", got, want)
	}
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Body:       http.NoBody,
		Header:     make(http.Header),
	}, nil
}

// fakeGCS serves objects by base name from memory.
type fakeGCS map[string][]byte

func (fake fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	name := path.Base(req.URL.Path)
	w := httptest.NewRecorder()
	content, ok := fake[name]
	if !ok {
		http.Error(w, fmt.Sprintf("no object %q", name), http.StatusNotFound)
		return w.Result(), nil
	}
	http.ServeContent(w, req, name, time.Now(), bytes.NewReader(content))
	return w.Result(), nil
}

type regionsResponse struct {
	Traversal struct {
		ID      string                  `json:"id"`
		Regions []walkers.RegionSummary `json:"regions"`
		Stats   map[string]int          `json:"stats"`
	} `json:"traversal"`
}

func decodeRegions(t *testing.T, resp *http.Response) regionsResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body regionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestInvalidInputs(t *testing.T) {
	testCases := []struct{ name, url string }{
		{"no readset ID or parameters", "/regions/"},
		{"missing readset ID", "/regions/?format=BAM"},
		{"invalid ID (no object)", "/regions/bucket?format=BAM"},
		{"invalid ID (trailing slash, no object)", "/regions/bucket/?format=BAM"},
		{"negative extension", "/regions/bucket/object?extension=-1"},
		{"invalid region size", "/regions/bucket/object?maxRegionSize=zero"},
	}
	s := newTestServer(t, nil)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, "InvalidInput", http.StatusBadRequest, s.query(t, tc.url))
		})
	}
}

func TestUnsupportedFormats(t *testing.T) {
	testCases := []struct{ name, url string }{
		{"unknown format", "/regions/bucket/object?format=XYZ"},
		{"cram format", "/regions/bucket/object?format=CRAM"},
		{"lowercase bam", "/regions/bucket/object?format=bam"},
	}
	s := newTestServer(t, nil)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, "UnsupportedFormat", http.StatusBadRequest, s.query(t, tc.url))
		})
	}
}

func TestMissingObject(t *testing.T) {
	s := newTestServer(t, nil)
	expectError(t, "NotFound", http.StatusNotFound, s.query(t, "/regions/foo/bar"))
}

// This test ensures that the undocumented error handling behaviour of the GCS
// storage client does not change.
func TestGoogleAPIInternalErrors(t *testing.T) {
	testCases := []struct {
		name       string
		transport  http.RoundTripper
		statusCode int
	}{
		{"unauthorized", fixedStatus(http.StatusUnauthorized), http.StatusUnauthorized},
		{"forbidden", fixedStatus(http.StatusForbidden), http.StatusForbidden},
		{"not found", fixedStatus(http.StatusNotFound), http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := newTestServer(t, tc.transport).query(t, "/regions/testdata/sample.bam")
			if got, want := resp.StatusCode, tc.statusCode; got != want {
				t.Errorf("Wrong status code: got %v, want %v", got, want)
			}
		})
	}
}

func TestWhitelist(t *testing.T) {
	s := newTestServer(t, fakeGCS(testObjects(t)))
	s.server.Whitelist([]string{"allowed", " "})

	expectError(t, "PermissionDenied", http.StatusForbidden, s.query(t, "/regions/denied/sample.bam"))
	resp := s.query(t, "/regions/allowed/sample.bam")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStorageClientErrors(t *testing.T) {
	router := gin.New()
	server := NewServer(gstorage.NewClientFromBearerToken, testConfig(), nil)
	server.Export(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/regions/bucket/sample.bam", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PermissionDenied")
}

func TestSimpleRegions(t *testing.T) {
	want := []walkers.RegionSummary{{Contig: "1", Start: 16, Stop: 21, Active: true, PrimaryReads: 2, Reads: 2}}
	testCases := []struct{ name, url string }{
		{"BAM", "/regions/testdata/sample.bam?active=true"},
		{"SAM", "/regions/testdata/sample.sam?format=SAM&active=true"},
		{"reference", "/regions/testdata/sample.bam?referenceName=1&active=true"},
		{"range", "/regions/testdata/sample.bam?referenceName=1&start=0&end=60&active=true"},
	}
	s := newTestServer(t, fakeGCS(testObjects(t)))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body := decodeRegions(t, s.query(t, tc.url))
			assert.Equal(t, want, body.Traversal.Regions)
			assert.NotEmpty(t, body.Traversal.ID)
			assert.Equal(t, 4, body.Traversal.Stats["readsSeen"])
		})
	}
}

func TestDirectoryStorage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "local", "runs"), 0o755))
	for name, content := range testObjects(t) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "local", "runs", name), content, 0o644))
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	router := gin.New()
	NewServer(gstorage.NewDirectoryClient(root).Factory(), testConfig(), logrus.NewEntry(logger)).Export(router)

	query := func(url string) *http.Response {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", url, nil))
		return w.Result()
	}
	body := decodeRegions(t, query("/regions/local/runs/sample.sam?format=SAM&active=true"))
	require.Len(t, body.Traversal.Regions, 1)
	assert.Equal(t, 16, body.Traversal.Regions[0].Start)

	expectError(t, "NotFound", http.StatusNotFound, query("/regions/local/runs/missing.bam"))
	expectError(t, "InvalidInput", http.StatusBadRequest, query("/regions/local/../secret.bam"))
}

func TestAllRegions(t *testing.T) {
	s := newTestServer(t, fakeGCS(testObjects(t)))
	body := decodeRegions(t, s.query(t, "/regions/testdata/sample.bam"))

	var active, loci int
	next := map[string]int{"1": 1, "2": 1}
	for _, r := range body.Traversal.Regions {
		if got, want := r.Start, next[r.Contig]; got != want {
			t.Errorf("Region %v does not follow the previous region: got start %d, want %d", r, got, want)
		}
		next[r.Contig] = r.Stop + 1
		loci += r.Stop - r.Start + 1
		if r.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 90, loci, "regions should tile both contigs")
	assert.Equal(t, 90, body.Traversal.Stats["loci"])
}

func TestRegionQueries(t *testing.T) {
	testCases := []struct {
		name, url string
		error     string
	}{
		{"unknown reference", "/regions/testdata/sample.bam?referenceName=X", "InvalidInput"},
		{"missing reference", "/regions/testdata/sample.bam?start=10", "InvalidInput"},
		{"invalid start", "/regions/testdata/sample.bam?referenceName=1&start=x", "InvalidInput"},
		{"start after end", "/regions/testdata/sample.bam?referenceName=1&start=20&end=10", "InvalidRange"},
		{"start past contig", "/regions/testdata/sample.bam?referenceName=2&start=40", "InvalidRange"},
		{"not an alignment file", "/regions/testdata/sample.sam?format=BAM", "InvalidInput"},
		{"unsorted", "/regions/testdata/unsorted.sam?format=SAM", "InvalidInput"},
	}
	s := newTestServer(t, fakeGCS(testObjects(t)))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, tc.error, http.StatusBadRequest, s.query(t, tc.url))
		})
	}
}

func TestRegionOverrides(t *testing.T) {
	s := newTestServer(t, fakeGCS(testObjects(t)))
	body := decodeRegions(t, s.query(t, "/regions/testdata/sample.bam?referenceName=2&maxRegionSize=10"))
	require.Len(t, body.Traversal.Regions, 3)
	for _, r := range body.Traversal.Regions {
		assert.LessOrEqual(t, r.Stop-r.Start+1, 10)
	}
}

func TestForwardOrigin(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.query(t, "/regions/foo/bar", "Origin", "https://example.org")
	assert.Equal(t, "https://example.org", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = s.query(t, "/regions/foo/bar")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_requests_total", Help: "Test counter."})
	registry.MustRegister(counter)
	counter.Inc()

	router := gin.New()
	ExportMetrics(router, registry)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_requests_total 1")
}
