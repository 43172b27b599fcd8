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

// Package deploy implements the client side of the deployment
// protocol: walk a working tree, negotiate which blobs the server is
// missing, upload them, and publish a revision.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"

	"go4.org/syncutil"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/wire"
)

// maxConcurrentReads bounds how many missing files are read back from
// disk at once.
const maxConcurrentReads = 8

// Client deploys working trees to an ingest endpoint.
type Client struct {
	// Server is the HTTP base URL of the ingest endpoint, as in
	// "http://localhost:9000".
	Server string

	// HTTPClient optionally overrides http.DefaultClient.
	HTTPClient *http.Client

	// Logf optionally logs progress. Nil means silent.
	Logf func(format string, args ...interface{})
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// Deploy walks dir, uploads whatever the server is missing, and
// publishes a new revision naming every walked file. It returns the
// server-generated revision ID.
//
// On error nothing is published: the server's blob table may have
// grown, but the previous revision remains the latest.
func (c *Client) Deploy(ctx context.Context, dir string) (revisionID string, err error) {
	candidates, err := Walk(dir)
	if err != nil {
		return "", err
	}
	c.logf("%d files in working tree", len(candidates))

	refs := make([]fingerprint.Ref, len(candidates))
	byRef := make(map[fingerprint.Ref]string, len(candidates))
	for i, cand := range candidates {
		refs[i] = cand.Ref
		byRef[cand.Ref] = cand.FullPath
	}

	missing, err := c.listMissingFiles(ctx, refs)
	if err != nil {
		return "", err
	}
	c.logf("%d files missing on server", len(missing))

	if len(missing) > 0 {
		files, err := c.readAll(missing, byRef)
		if err != nil {
			return "", err
		}
		if err := c.uploadFiles(ctx, files); err != nil {
			return "", err
		}
	}

	return c.makeRevision(ctx, refs)
}

// readAll reads the bytes of every missing fingerprint, bounded by
// maxConcurrentReads.
func (c *Client) readAll(missing []fingerprint.Ref, byRef map[fingerprint.Ref]string) ([]wire.File, error) {
	var (
		mu    sync.Mutex
		files = make([]wire.File, 0, len(missing))
		grp   syncutil.Group
	)
	gate := syncutil.NewGate(maxConcurrentReads)
	for _, fp := range missing {
		fp := fp
		fullPath, ok := byRef[fp]
		if !ok {
			return nil, fmt.Errorf("server reported unknown fingerprint %v as missing", fp)
		}
		gate.Start()
		grp.Go(func() error {
			defer gate.Done()
			data, err := os.ReadFile(fullPath)
			if err != nil {
				return err
			}
			mu.Lock()
			files = append(files, wire.File{Ref: fp, Data: data})
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Err(); err != nil {
		return nil, err
	}
	// Stable upload order, for reproducible batches.
	sort.Slice(files, func(i, j int) bool { return files[i].Ref.String() < files[j].Ref.String() })
	return files, nil
}

func (c *Client) listMissingFiles(ctx context.Context, refs []fingerprint.Ref) ([]fingerprint.Ref, error) {
	res, err := c.post(ctx, wire.ListMissingFilesRequest{Candidates: refs})
	if err != nil {
		return nil, err
	}
	missing, ok := res.(wire.MissingFilesResponse)
	if !ok {
		return nil, fmt.Errorf("deploy: unexpected %T response to ListMissingFiles", res)
	}
	return missing.Missing, nil
}

func (c *Client) uploadFiles(ctx context.Context, files []wire.File) error {
	// Currently a single batch; the server acknowledges only after
	// every blob is stored.
	res, err := c.post(ctx, wire.UploadFilesRequest{Files: files})
	if err != nil {
		return err
	}
	uploaded, ok := res.(wire.UploadedResponse)
	if !ok {
		return fmt.Errorf("deploy: unexpected %T response to UploadFiles", res)
	}
	if !uploaded.Success {
		return fmt.Errorf("deploy: server did not acknowledge upload")
	}
	c.logf("uploaded %d files", len(files))
	return nil
}

func (c *Client) makeRevision(ctx context.Context, refs []fingerprint.Ref) (string, error) {
	res, err := c.post(ctx, wire.MakeRevisionRequest{Files: refs})
	if err != nil {
		return "", err
	}
	made, ok := res.(wire.RevisionMadeResponse)
	if !ok {
		return "", fmt.Errorf("deploy: unexpected %T response to MakeRevision", res)
	}
	if !made.Success || made.RevisionID == "" {
		return "", fmt.Errorf("deploy: server did not publish a revision")
	}
	return made.RevisionID, nil
}

// post sends one encoded request to the /api endpoint and decodes the
// response.
func (c *Client) post(ctx context.Context, wireReq wire.Request) (wire.Response, error) {
	body, err := wire.EncodeRequest(wireReq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.Server+"/api", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", wire.ContentType)
	res, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deploy: server returned %v", res.Status)
	}
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return wire.DecodeResponse(resBody)
}
