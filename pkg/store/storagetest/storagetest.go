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

// Package storagetest tests a store.Store implementation.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/store"
)

// Test exercises one Store implementation against the storage
// contract: dedup reporting, first-write-wins blobs, and atomic
// publication.
func Test(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Dedup", func(t *testing.T) { testDedup(t, newStore(t)) })
	t.Run("IdempotentPut", func(t *testing.T) { testIdempotentPut(t, newStore(t)) })
	t.Run("Publication", func(t *testing.T) { testPublication(t, newStore(t)) })
	t.Run("Empty", func(t *testing.T) { testEmpty(t, newStore(t)) })
}

func mustFP(t *testing.T, path, data string) fingerprint.Ref {
	t.Helper()
	fp, err := fingerprint.FromBytes(path, []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

func testDedup(t *testing.T, sto store.Store) {
	defer sto.Close()
	ctx := context.Background()
	fpA := mustFP(t, "a.txt", "hi")
	fpB := mustFP(t, "sub/b.txt", "yo")

	if err := sto.PutBlob(ctx, fpA, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	present, err := sto.ExistsMany(ctx, []fingerprint.Ref{fpA, fpB})
	if err != nil {
		t.Fatal(err)
	}
	if !present[fpA] {
		t.Errorf("%v missing from ExistsMany result after PutBlob", fpA)
	}
	if present[fpB] {
		t.Errorf("%v reported present but was never stored", fpB)
	}
}

func testIdempotentPut(t *testing.T, sto store.Store) {
	defer sto.Close()
	ctx := context.Background()
	fp := mustFP(t, "a.txt", "hi")

	if err := sto.PutBlob(ctx, fp, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	// A racing second upload of the same fingerprint succeeds and the
	// first write's bytes survive.
	if err := sto.PutBlob(ctx, fp, []byte("SOMETHING ELSE")); err != nil {
		t.Fatalf("duplicate PutBlob: %v", err)
	}
	got, err := sto.GetBlob(ctx, fp)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hi")) {
		t.Errorf("GetBlob = %q, want first-written %q", got, "hi")
	}
}

func testPublication(t *testing.T, sto store.Store) {
	defer sto.Close()
	ctx := context.Background()
	fpA := mustFP(t, "a.txt", "hi")
	fpB := mustFP(t, "sub/b.txt", "yo")

	if _, err := sto.GetLatest(ctx); !errors.Is(err, store.ErrNoRevision) {
		t.Fatalf("GetLatest on empty store: err = %v, want ErrNoRevision", err)
	}

	blobs := map[fingerprint.Ref][]byte{fpA: []byte("hi"), fpB: []byte("yo")}
	for fp, data := range blobs {
		if err := sto.PutBlob(ctx, fp, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := sto.PublishRevision(ctx, "rev-1", []fingerprint.Ref{fpA, fpB, fpA}); err != nil {
		t.Fatal(err)
	}

	latest, err := sto.GetLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != "rev-1" {
		t.Errorf("GetLatest = %q, want rev-1", latest)
	}
	manifest, err := sto.ListManifest(ctx, latest)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 2 {
		t.Fatalf("manifest has %d members, want 2 (dedup of repeated fingerprint)", len(manifest))
	}
	// Every manifest member resolves to a stored blob.
	for _, fp := range manifest {
		if _, err := sto.GetBlob(ctx, fp); err != nil {
			t.Errorf("manifest member %v not fetchable: %v", fp, err)
		}
	}

	// A second publication moves the pointer in place.
	if err := sto.PublishRevision(ctx, "rev-2", []fingerprint.Ref{fpA}); err != nil {
		t.Fatal(err)
	}
	latest, err = sto.GetLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != "rev-2" {
		t.Errorf("GetLatest after second publish = %q, want rev-2", latest)
	}
}

func testEmpty(t *testing.T, sto store.Store) {
	defer sto.Close()
	ctx := context.Background()

	present, err := sto.ExistsMany(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(present) != 0 {
		t.Errorf("ExistsMany(nil) = %v, want empty", present)
	}
	if _, err := sto.GetBlob(ctx, mustFP(t, "a.txt", "hi")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBlob of absent fingerprint: err = %v, want ErrNotFound", err)
	}
	manifest, err := sto.ListManifest(ctx, "no-such-revision")
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 0 {
		t.Errorf("manifest of unknown revision = %v, want empty", manifest)
	}
}
