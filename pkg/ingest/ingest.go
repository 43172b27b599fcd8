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

// Package ingest serves the deployment protocol: dedup negotiation,
// blob upload, and revision publication, all over a single POST /api
// endpoint.
package ingest

import (
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"refresh.dev/pkg/bus"
	"refresh.dev/pkg/constants"
	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/httputil"
	"refresh.dev/pkg/store"
	"refresh.dev/pkg/wire"
)

// Handler answers protocol requests against a store, announcing each
// published revision on the bus. It implements http.Handler for the
// /api endpoint.
type Handler struct {
	sto      store.Store
	notifier bus.Notifier

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewHandler returns a Handler serving the three-verb protocol.
func NewHandler(sto store.Store, notifier bus.Notifier) *Handler {
	return &Handler{
		sto:      sto,
		notifier: notifier,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// newRevisionID generates a fresh ULID. IDs are unique and sort by
// creation time.
func (h *Handler) newRevisionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String()
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != "POST" {
		httputil.MethodNotAllowedError(rw)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, constants.MaxRequestSize+1))
	if err != nil {
		httputil.BadRequestError(rw, "reading request body: %v", err)
		return
	}
	if len(body) > constants.MaxRequestSize {
		httputil.RequestEntityTooLargeError(rw)
		return
	}
	wireReq, err := wire.DecodeRequest(body)
	if err != nil {
		httputil.BadRequestError(rw, "decoding request: %v", err)
		return
	}

	var res wire.Response
	switch r := wireReq.(type) {
	case wire.ListMissingFilesRequest:
		res, err = h.listMissingFiles(req.Context(), r)
	case wire.UploadFilesRequest:
		res, err = h.uploadFiles(req.Context(), r)
	case wire.MakeRevisionRequest:
		res, err = h.makeRevision(req.Context(), r)
	}
	if err != nil {
		httputil.ServeError(rw, req, err)
		return
	}
	encoded, err := wire.EncodeResponse(res)
	if err != nil {
		httputil.ServeError(rw, req, err)
		return
	}
	rw.Header().Set("Content-Type", wire.ContentType)
	rw.Write(encoded)
}

func (h *Handler) listMissingFiles(ctx context.Context, req wire.ListMissingFilesRequest) (wire.Response, error) {
	// Candidates may repeat; dedup before hitting the store.
	set := make(map[fingerprint.Ref]bool, len(req.Candidates))
	unique := make([]fingerprint.Ref, 0, len(req.Candidates))
	for _, fp := range req.Candidates {
		if !set[fp] {
			set[fp] = true
			unique = append(unique, fp)
		}
	}
	present, err := h.sto.ExistsMany(ctx, unique)
	if err != nil {
		return nil, err
	}
	missing := make([]fingerprint.Ref, 0, len(unique))
	for _, fp := range unique {
		if !present[fp] {
			missing = append(missing, fp)
		}
	}
	logrus.Infof("list-missing: %d candidates, %d missing", len(req.Candidates), len(missing))
	return wire.MissingFilesResponse{Missing: missing}, nil
}

func (h *Handler) uploadFiles(ctx context.Context, req wire.UploadFilesRequest) (wire.Response, error) {
	for _, f := range req.Files {
		if err := h.sto.PutBlob(ctx, f.Ref, f.Data); err != nil {
			return nil, err
		}
	}
	logrus.Infof("upload: stored %d blobs", len(req.Files))
	return wire.UploadedResponse{Success: true}, nil
}

func (h *Handler) makeRevision(ctx context.Context, req wire.MakeRevisionRequest) (wire.Response, error) {
	revID := h.newRevisionID()
	if err := h.sto.PublishRevision(ctx, revID, req.Files); err != nil {
		return nil, err
	}
	if err := h.notifier.Notify(ctx, revID); err != nil {
		// The revision is durably published; subscribers will catch
		// up on their next wakeup or reconnect.
		logrus.WithError(err).Warn("notifying revision channel")
	}
	logrus.Infof("published revision %s with %d files", revID, len(req.Files))
	return wire.RevisionMadeResponse{Success: true, RevisionID: revID}, nil
}
