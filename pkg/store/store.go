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

// Package store defines the durable storage abstraction behind the
// deployment pipeline: content-addressed blobs, immutable revision
// manifests, and the singleton latest-revision pointer.
package store

import (
	"context"
	"errors"

	"refresh.dev/pkg/fingerprint"
)

// ErrNotFound is returned when a requested blob is absent.
var ErrNotFound = errors.New("store: blob not found")

// ErrNoRevision is returned by GetLatest before the first revision has
// been published.
var ErrNoRevision = errors.New("store: no revision published")

// LatestKey is the fixed primary key of the singleton latest-revision
// row.
const LatestKey = "yes"

// Store is the durable substrate shared by the ingest service, the
// deploy client (through ingest), and the blue/green supervisor.
//
// Blobs and revisions are never mutated or deleted once written; only
// the latest pointer moves.
type Store interface {
	// ExistsMany reports which of fps are present in the blob table,
	// in a single query.
	ExistsMany(ctx context.Context, fps []fingerprint.Ref) (present map[fingerprint.Ref]bool, err error)

	// PutBlob stores data under fp. Inserting a fingerprint that
	// already exists is treated as success; the previously stored
	// bytes win.
	PutBlob(ctx context.Context, fp fingerprint.Ref, data []byte) error

	// PutManifest records fps as the member set of revision revID.
	PutManifest(ctx context.Context, revID string, fps []fingerprint.Ref) error

	// SetLatest points the latest-revision singleton at revID,
	// overwriting any previous value.
	SetLatest(ctx context.Context, revID string) error

	// PublishRevision atomically writes the manifest and moves the
	// latest pointer, so no reader of the pointer ever observes a
	// dangling or partial revision.
	PublishRevision(ctx context.Context, revID string, fps []fingerprint.Ref) error

	// GetLatest returns the currently published revision ID, or
	// ErrNoRevision.
	GetLatest(ctx context.Context) (string, error)

	// ListManifest returns the member fingerprints of revID.
	ListManifest(ctx context.Context, revID string) ([]fingerprint.Ref, error)

	// GetBlob returns the bytes stored under fp, or ErrNotFound.
	GetBlob(ctx context.Context, fp fingerprint.Ref) ([]byte, error)

	Close() error
}
