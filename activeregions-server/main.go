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

// This binary provides an HTTP service listing the active regions of
// alignment files stored in GCS or in a local directory.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/activeregions/api"
	"github.com/googlegenomics/activeregions/internal/config"
	"github.com/googlegenomics/activeregions/internal/metrics"
	"github.com/googlegenomics/activeregions/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	port int

	secure    bool
	httpsCert string
	httpsKey  string

	buckets   string
	directory string
	gcsAuth   bool

	configFile string
	logLevel   string
	logJSON    bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "activeregions-server",
		Short: "Serve the active regions of alignment files over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 80, "HTTP service port")
	cmd.Flags().BoolVar(&opts.secure, "secure", false, "serve in HTTPS-only mode and forward client bearer tokens")
	cmd.Flags().StringVar(&opts.httpsCert, "https_cert", "", "HTTPS certificate file")
	cmd.Flags().StringVar(&opts.httpsKey, "https_key", "", "HTTPS key file")
	cmd.Flags().StringVar(&opts.buckets, "buckets", "", "if set, restricts reads to a comma-separated list of buckets")
	cmd.Flags().StringVar(&opts.directory, "directory", "", "serve objects from this directory instead of GCS")
	cmd.Flags().BoolVar(&opts.gcsAuth, "default_credentials", false, "read GCS with the application default credentials")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "TOML configuration file")
	cmd.Flags().StringVar(&opts.logLevel, "log_level", "info", "logging level")
	cmd.Flags().BoolVar(&opts.logJSON, "log_json", false, "log in JSON format")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if opts.logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if opts.secure && (opts.httpsCert == "" || opts.httpsKey == "") {
		return fmt.Errorf("you must specify both --https_cert and --https_key in secure mode")
	}

	cfg := config.Default()
	if opts.configFile != "" {
		if cfg, err = config.LoadFile(opts.configFile); err != nil {
			return err
		}
	}

	newStorageClient := storage.Factory(storage.NewPublicClient)
	switch {
	case opts.directory != "":
		newStorageClient = storage.NewDirectoryClient(opts.directory).Factory()
	case opts.secure:
		newStorageClient = storage.NewClientFromBearerToken
	case opts.gcsAuth:
		newStorageClient = storage.NewDefaultClient
	}

	log := logrus.WithField("service", "activeregions")
	server := api.NewServer(newStorageClient, cfg, log)
	if opts.buckets != "" {
		server.Whitelist(strings.Split(opts.buckets, ","))
	}

	metrics.Register(prometheus.DefaultRegisterer)

	router := gin.Default()
	server.Export(router)
	api.ExportMetrics(router, prometheus.DefaultGatherer)

	address := fmt.Sprintf(":%d", opts.port)
	log.WithField("address", address).Info("Serving active regions")
	if opts.secure {
		if err := http.ListenAndServeTLS(address, opts.httpsCert, opts.httpsKey, router); err != nil {
			return fmt.Errorf("HTTPS server returned an error: %v", err)
		}
		return nil
	}
	if err := http.ListenAndServe(address, router); err != nil {
		return fmt.Errorf("HTTP server returned an error: %v", err)
	}
	return nil
}
