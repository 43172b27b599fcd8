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

// Package fingerprint defines the identifier naming one file of a
// revision: the file's relative path joined with the 16-hex SeaHash of
// its contents, as in "sub/b.txt#1f0c19...". Fingerprints are the keys
// of the blob table and the elements of revision manifests.
package fingerprint

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"refresh.dev/pkg/seahash"
)

// Ref is a parsed fingerprint. It is used as a value type and supports
// equality (with ==) and the ability to use it as a map key. The zero
// Ref is not valid.
type Ref struct {
	s string
}

// FromBytes returns the fingerprint of a file at the given relative
// path holding data. The path must be non-empty and must not contain
// '#', which is reserved as the separator.
func FromBytes(path string, data []byte) (Ref, error) {
	return FromSum(path, seahash.Sum64(data))
}

// FromSum is FromBytes for a digest that was already computed.
func FromSum(path string, sum uint64) (Ref, error) {
	if path == "" {
		return Ref{}, fmt.Errorf("fingerprint: empty path")
	}
	if strings.Contains(path, "#") {
		return Ref{}, fmt.Errorf("fingerprint: path %q contains '#'", path)
	}
	return Ref{s: fmt.Sprintf("%s#%016x", path, sum)}, nil
}

// Parse parses s as a fingerprint. It fails unless s contains exactly
// one '#' separating a non-empty path from the hex digest.
func Parse(s string) (Ref, error) {
	i := strings.Index(s, "#")
	if i < 1 || strings.Contains(s[i+1:], "#") {
		return Ref{}, fmt.Errorf("fingerprint: malformed %q", s)
	}
	if i == len(s)-1 {
		return Ref{}, fmt.Errorf("fingerprint: %q has empty digest", s)
	}
	return Ref{s: s}, nil
}

// MustParse is Parse for known-good values; it panics on error.
func MustParse(s string) Ref {
	r, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return r
}

// Path returns the relative path part of the fingerprint.
func (r Ref) Path() string {
	return r.s[:strings.Index(r.s, "#")]
}

// Hash returns the lower-hex digest part of the fingerprint.
func (r Ref) Hash() string {
	return r.s[strings.Index(r.s, "#")+1:]
}

// Valid reports whether r is non-zero.
func (r Ref) Valid() bool { return r.s != "" }

func (r Ref) String() string { return r.s }

func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.s), nil
}

func (r *Ref) UnmarshalText(p []byte) error {
	parsed, err := Parse(string(p))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// EncodeMsgpack serializes the fingerprint transparently as its string
// form on the wire.
func (r Ref) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(r.s)
}

func (r *Ref) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
