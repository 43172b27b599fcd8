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

package ingest_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"refresh.dev/pkg/bus"
	"refresh.dev/pkg/deploy"
	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/ingest"
	"refresh.dev/pkg/store"
	"refresh.dev/pkg/store/memory"
	"refresh.dev/pkg/wire"
)

// countingStore wraps a Store and counts blob inserts.
type countingStore struct {
	store.Store
	puts atomic.Int64
}

func (s *countingStore) PutBlob(ctx context.Context, fp fingerprint.Ref, data []byte) error {
	s.puts.Add(1)
	return s.Store.PutBlob(ctx, fp, data)
}

type testServer struct {
	srv  *httptest.Server
	sto  *countingStore
	bus  *bus.MemoryBus
	hits atomic.Int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		sto: &countingStore{Store: memory.New()},
		bus: bus.NewMemory(),
	}
	h := ingest.NewHandler(ts.sto, ts.bus)
	ts.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ts.hits.Add(1)
		h.ServeHTTP(rw, req)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) client() *deploy.Client {
	return &deploy.Client{Server: ts.srv.URL}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func mustFP(t *testing.T, path, content string) fingerprint.Ref {
	t.Helper()
	fp, err := fingerprint.FromBytes(path, []byte(content))
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

func TestFirstDeploy(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	dir := writeTree(t, map[string]string{"a.txt": "hi", "sub/b.txt": "yo"})

	revID, err := ts.client().Deploy(ctx, dir)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if len(revID) != 26 {
		t.Errorf("revision ID %q is not a 26-char ULID", revID)
	}

	fpA := mustFP(t, "a.txt", "hi")
	fpB := mustFP(t, "sub/b.txt", "yo")
	for fp, want := range map[fingerprint.Ref]string{fpA: "hi", fpB: "yo"} {
		data, err := ts.sto.GetBlob(ctx, fp)
		if err != nil {
			t.Fatalf("GetBlob(%v): %v", fp, err)
		}
		if string(data) != want {
			t.Errorf("GetBlob(%v) = %q, want %q", fp, data, want)
		}
	}

	latest, err := ts.sto.GetLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != revID {
		t.Errorf("latest revision = %q, want returned %q", latest, revID)
	}
	manifest, err := ts.sto.ListManifest(ctx, revID)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 2 {
		t.Errorf("manifest has %d members, want 2", len(manifest))
	}

	select {
	case <-ts.bus.Wake():
	default:
		t.Error("no change-bus event after publication")
	}
}

func TestRedeployIdenticalTree(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	dir := writeTree(t, map[string]string{"a.txt": "hi", "sub/b.txt": "yo"})

	rev1, err := ts.client().Deploy(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	putsAfterFirst := ts.sto.puts.Load()

	rev2, err := ts.client().Deploy(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if rev2 == rev1 {
		t.Errorf("second deploy reused revision ID %q", rev1)
	}
	if got := ts.sto.puts.Load(); got != putsAfterFirst {
		t.Errorf("redeploy of identical tree uploaded %d blobs, want 0", got-putsAfterFirst)
	}
	latest, err := ts.sto.GetLatest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != rev2 {
		t.Errorf("latest = %q, want %q", latest, rev2)
	}
}

func TestModifyOneFile(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	dir := writeTree(t, map[string]string{"a.txt": "hi", "sub/b.txt": "yo"})

	if _, err := ts.client().Deploy(ctx, dir); err != nil {
		t.Fatal(err)
	}
	before := ts.sto.puts.Load()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.client().Deploy(ctx, dir); err != nil {
		t.Fatal(err)
	}
	if got := ts.sto.puts.Load() - before; got != 1 {
		t.Errorf("modified one file but uploaded %d blobs", got)
	}

	// The old content remains addressable; blobs are never deleted.
	old, err := ts.sto.GetBlob(ctx, mustFP(t, "a.txt", "hi"))
	if err != nil {
		t.Fatalf("old blob gone: %v", err)
	}
	if string(old) != "hi" {
		t.Errorf("old blob = %q, want %q", old, "hi")
	}
	if _, err := ts.sto.GetBlob(ctx, mustFP(t, "a.txt", "hello")); err != nil {
		t.Errorf("new blob missing: %v", err)
	}
}

func TestHashInPathAbortsBeforeNetwork(t *testing.T) {
	ts := newTestServer(t)
	dir := writeTree(t, map[string]string{"a#b.txt": "hi"})

	if _, err := ts.client().Deploy(context.Background(), dir); err == nil {
		t.Fatal("Deploy of a '#' path succeeded")
	}
	if got := ts.hits.Load(); got != 0 {
		t.Errorf("deploy made %d requests before aborting, want 0", got)
	}
}

func TestListMissingFilesDedups(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	fpA := mustFP(t, "a.txt", "hi")
	if err := ts.sto.Store.PutBlob(ctx, fpA, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	fpB := mustFP(t, "b.txt", "yo")

	res := postWire(t, ts, wire.ListMissingFilesRequest{
		Candidates: []fingerprint.Ref{fpA, fpB, fpB, fpA},
	})
	missing, ok := res.(wire.MissingFilesResponse)
	if !ok {
		t.Fatalf("got %T response", res)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != fpB {
		t.Errorf("missing = %v, want just %v", missing.Missing, fpB)
	}
}

func TestNonPostRejected(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api = %v, want 405", res.Status)
	}
}

func TestGarbageBodyRejected(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Post(ts.srv.URL, wire.ContentType, bytes.NewReader([]byte("garbage")))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("garbage body = %v, want 400", res.Status)
	}
}

func postWire(t *testing.T, ts *testServer, req wire.Request) wire.Response {
	t.Helper()
	body, err := wire.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	httpRes, err := http.Post(ts.srv.URL, wire.ContentType, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer httpRes.Body.Close()
	if httpRes.StatusCode != http.StatusOK {
		t.Fatalf("POST = %v", httpRes.Status)
	}
	if ct := httpRes.Header.Get("Content-Type"); ct != wire.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, wire.ContentType)
	}
	resBody, err := io.ReadAll(httpRes.Body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := wire.DecodeResponse(resBody)
	if err != nil {
		t.Fatal(err)
	}
	return res
}
