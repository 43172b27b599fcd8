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

// Package wire defines the binary protocol spoken between the deploy
// client and the ingest endpoint.
//
// A message is a two-field MessagePack envelope: a one-byte variant tag
// and the encoded variant payload. Requests and responses are each a
// closed union of three variants; decoders reject unknown tags and
// trailing bytes. Within a variant, payload fields are keyed by name,
// so field order does not matter.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"refresh.dev/pkg/fingerprint"
)

// ContentType is the value sent in the HTTP Content-Type header for
// encoded protocol bodies. It is an opaque tag identifying the format;
// clients must not parse it.
const ContentType = "application/postcard"

// ErrUnknownTag is returned when a message carries a variant tag
// outside the closed union.
var ErrUnknownTag = errors.New("wire: unknown variant tag")

// Request variant tags.
const (
	tagListMissingFiles uint8 = 1
	tagUploadFiles      uint8 = 2
	tagMakeRevision     uint8 = 3
)

// Response variant tags.
const (
	tagMissingFiles uint8 = 1
	tagUploaded     uint8 = 2
	tagRevisionMade uint8 = 3
)

// envelope is the outer framing of every message.
type envelope struct {
	Tag  uint8  `msgpack:"t"`
	Body []byte `msgpack:"b"`
}

// File is one uploaded blob: a fingerprint and the bytes it names.
type File struct {
	Ref  fingerprint.Ref `msgpack:"ref"`
	Data []byte          `msgpack:"data"`
}

// Request is one of ListMissingFilesRequest, UploadFilesRequest, or
// MakeRevisionRequest.
type Request interface {
	requestTag() uint8
}

// ListMissingFilesRequest asks which of the candidate fingerprints the
// server does not already have.
type ListMissingFilesRequest struct {
	Candidates []fingerprint.Ref `msgpack:"candidates"`
}

// UploadFilesRequest carries the blobs the server reported missing.
type UploadFilesRequest struct {
	Files []File `msgpack:"files"`
}

// MakeRevisionRequest publishes a new revision naming the given
// fingerprints. Every fingerprint must already be stored.
type MakeRevisionRequest struct {
	Files []fingerprint.Ref `msgpack:"files"`
}

func (ListMissingFilesRequest) requestTag() uint8 { return tagListMissingFiles }
func (UploadFilesRequest) requestTag() uint8      { return tagUploadFiles }
func (MakeRevisionRequest) requestTag() uint8     { return tagMakeRevision }

// Response is one of MissingFilesResponse, UploadedResponse, or
// RevisionMadeResponse.
type Response interface {
	responseTag() uint8
}

// MissingFilesResponse lists the candidates absent from the blob
// table, in unspecified order.
type MissingFilesResponse struct {
	Missing []fingerprint.Ref `msgpack:"missing"`
}

// UploadedResponse acknowledges a completed upload batch.
type UploadedResponse struct {
	Success bool `msgpack:"success"`
}

// RevisionMadeResponse carries the server-generated ULID of the
// freshly published revision.
type RevisionMadeResponse struct {
	Success    bool   `msgpack:"success"`
	RevisionID string `msgpack:"revision_id"`
}

func (MissingFilesResponse) responseTag() uint8 { return tagMissingFiles }
func (UploadedResponse) responseTag() uint8     { return tagUploaded }
func (RevisionMadeResponse) responseTag() uint8 { return tagRevisionMade }

func encode(tag uint8, v interface{}) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(envelope{Tag: tag, Body: body})
}

// decodeEnvelope unwraps the outer framing, rejecting trailing bytes.
func decodeEnvelope(p []byte) (envelope, error) {
	var env envelope
	r := bytes.NewReader(p)
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return env, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	if r.Len() != 0 {
		return env, fmt.Errorf("wire: %d trailing bytes after message", r.Len())
	}
	return env, nil
}

// EncodeRequest encodes req for transport. Encoding is deterministic:
// the same request value always yields the same bytes.
func EncodeRequest(req Request) ([]byte, error) {
	return encode(req.requestTag(), req)
}

// DecodeRequest decodes a single request from p.
func DecodeRequest(p []byte) (Request, error) {
	env, err := decodeEnvelope(p)
	if err != nil {
		return nil, err
	}
	switch env.Tag {
	case tagListMissingFiles:
		var req ListMissingFilesRequest
		return req, msgpack.Unmarshal(env.Body, &req)
	case tagUploadFiles:
		var req UploadFilesRequest
		return req, msgpack.Unmarshal(env.Body, &req)
	case tagMakeRevision:
		var req MakeRevisionRequest
		return req, msgpack.Unmarshal(env.Body, &req)
	}
	return nil, fmt.Errorf("%w %d in request", ErrUnknownTag, env.Tag)
}

// EncodeResponse encodes res for transport.
func EncodeResponse(res Response) ([]byte, error) {
	return encode(res.responseTag(), res)
}

// DecodeResponse decodes a single response from p.
func DecodeResponse(p []byte) (Response, error) {
	env, err := decodeEnvelope(p)
	if err != nil {
		return nil, err
	}
	switch env.Tag {
	case tagMissingFiles:
		var res MissingFilesResponse
		return res, msgpack.Unmarshal(env.Body, &res)
	case tagUploaded:
		var res UploadedResponse
		return res, msgpack.Unmarshal(env.Body, &res)
	case tagRevisionMade:
		var res RevisionMadeResponse
		return res, msgpack.Unmarshal(env.Body, &res)
	}
	return nil, fmt.Errorf("%w %d in response", ErrUnknownTag, env.Tag)
}
