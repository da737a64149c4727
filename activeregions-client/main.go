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

// This binary queries an active regions server with Google authentication
// and prints the regions it returns as BED.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	scope = "https://www.googleapis.com/auth/devstorage.read_only"
)

type region struct {
	Contig       string `json:"contig"`
	Start        int    `json:"start"`
	Stop         int    `json:"stop"`
	Active       bool   `json:"active"`
	PrimaryReads int    `json:"primaryReads"`
	Reads        int    `json:"reads"`
}

type options struct {
	reference  string
	output     string
	activeOnly bool
	extension  int
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "activeregions-client <url>...",
		Short: "Fetch active regions from an activeregions server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&opts.reference, "reference", "r", "", "reference name")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output filename")
	cmd.Flags().BoolVar(&opts.activeOnly, "active", false, "only fetch active regions")
	cmd.Flags().IntVar(&opts.extension, "extension", -1, "region extension used by the server")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, targets []string) error {
	w := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("opening output file: %v", err)
		}
		defer f.Close()
		w = f
	}

	// For compatibility with other tools, read the standard cURL certificate
	// authority override from the environment.
	if bundle := os.Getenv("CURL_CA_BUNDLE"); bundle != "" {
		pem, err := os.ReadFile(bundle)
		if err != nil {
			return fmt.Errorf("reading CA override file %q: %v", bundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			return fmt.Errorf("initializing system certificate pool: %v", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("adding certificates from bundle %q", bundle)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					RootCAs: pool,
				}},
		})
		logrus.Infof("Using CA override bundle from %q", bundle)
	}

	client, err := google.DefaultClient(ctx, scope)
	if err != nil {
		return fmt.Errorf("creating client: %v", err)
	}

	out := bufio.NewWriter(w)
	for _, target := range targets {
		if opts.reference != "" {
			target = addParameter(target, "referenceName", opts.reference)
		}
		if opts.activeOnly {
			target = addParameter(target, "active", "true")
		}
		if opts.extension >= 0 {
			target = addParameter(target, "extension", strconv.Itoa(opts.extension))
		}
		log := logrus.WithField("target", target)
		log.Info("Fetching regions")

		regions, id, err := fetchRegions(client, target)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"traversal": id, "regions": len(regions)}).Info("Received regions")

		for _, r := range regions {
			// BED intervals are 0-based and half-open.
			if _, err := fmt.Fprintf(out, "%s\t%d\t%d\t%s\t%d\n", r.Contig, r.Start-1, r.Stop, activity(r.Active), r.PrimaryReads); err != nil {
				return fmt.Errorf("writing regions: %v", err)
			}
		}
	}
	return out.Flush()
}

func fetchRegions(client *http.Client, target string) ([]region, string, error) {
	resp, err := client.Get(target)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected response: %v", errorFromResponse(resp))
	}

	var body struct {
		Traversal struct {
			ID      string   `json:"id"`
			Regions []region `json:"regions"`
		} `json:"traversal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("decoding response: %v", err)
	}
	return body.Traversal.Regions, body.Traversal.ID, nil
}

func activity(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func addParameter(input, name, value string) string {
	values := url.Values{}
	values.Set(name, value)
	if strings.Contains(input, "?") {
		return input + "&" + values.Encode()
	}
	return input + "?" + values.Encode()
}

func errorFromResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnauthorized:
		v := make(map[string]string)
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return fmt.Errorf("%s: parsing response body: %v", resp.Status, err)
		}
		if message, ok := v["message"]; ok {
			return fmt.Errorf("%s: %v", v["error"], message)
		}
	}
	return fmt.Errorf("unexpected response status: %q", resp.Status)
}
