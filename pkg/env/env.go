/*
Copyright 2026 The Refresh Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package env reads the environment Refresh is configured through.
// All configuration is environment variables; there is no config file.
package env

import (
	"fmt"
	"os"
	"strconv"
)

// ServeMode selects what the serve subcommand runs.
type ServeMode string

const (
	// ModeIngest serves the deployment protocol on the ingest port.
	ModeIngest ServeMode = "DEPLOY_INGEST"
	// ModeFresh runs the blue/green supervisor and the public proxy.
	ModeFresh ServeMode = "SERVE_FRESH"
)

// DatabaseURL returns the PostgreSQL connection string. It is required
// for both serve modes.
func DatabaseURL() (string, error) {
	v := os.Getenv("DATABASE_URL")
	if v == "" {
		return "", fmt.Errorf("DATABASE_URL not set")
	}
	return v, nil
}

// IngestAddress returns the HTTP base URL of the ingest endpoint the
// deploy client talks to.
func IngestAddress() (string, error) {
	v := os.Getenv("DEPLOY_INGEST_ADDRESS")
	if v == "" {
		return "", fmt.Errorf("DEPLOY_INGEST_ADDRESS not set")
	}
	return v, nil
}

// Mode returns the configured serve mode. A missing or unrecognized
// value is a startup error.
func Mode() (ServeMode, error) {
	switch v := ServeMode(os.Getenv("SERVE_MODE")); v {
	case ModeIngest, ModeFresh:
		return v, nil
	case "":
		return "", fmt.Errorf("SERVE_MODE not set (want %q or %q)", ModeIngest, ModeFresh)
	default:
		return "", fmt.Errorf("unknown SERVE_MODE %q (want %q or %q)", v, ModeIngest, ModeFresh)
	}
}

// HTTPDebug reports whether per-request HTTP logging is enabled.
func HTTPDebug() bool {
	v, _ := strconv.ParseBool(os.Getenv("REFRESH_HTTP_DEBUG"))
	return v
}
