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

// Package constants contains Refresh constants shared between the
// deploy client and the serve modes.
//
// This is a leaf package, without dependencies.
package constants

// MaxRequestSize is the maximum size of a single encoded protocol
// request the ingest endpoint will read. A whole working tree travels
// in one upload batch, so this is deliberately generous.
const MaxRequestSize = 1 << 30

// IngestAddr is the address the ingest HTTP server listens on.
const IngestAddr = ":9000"

// ProxyAddr is the address the fresh-serving TCP proxy listens on.
const ProxyAddr = ":8000"
