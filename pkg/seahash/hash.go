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

package seahash

import (
	"encoding/binary"
	"hash"
)

// digest is the streaming form of Sum64. Writes may be chunked
// arbitrarily; the result is always the digest of the concatenation.
type digest struct {
	a, b, c, d uint64
	buf        [32]byte
	nbuf       int
	n          uint64
}

// New returns a hash.Hash64 computing the SeaHash digest.
func New() hash.Hash64 {
	d := new(digest)
	d.Reset()
	return d
}

func (d *digest) Reset() {
	d.a, d.b, d.c, d.d = seed1, seed2, seed3, seed4
	d.nbuf = 0
	d.n = 0
}

func (d *digest) Size() int      { return 8 }
func (d *digest) BlockSize() int { return 32 }

func (d *digest) block(p []byte) {
	d.a = diffuse(d.a ^ binary.LittleEndian.Uint64(p[0:8]))
	d.b = diffuse(d.b ^ binary.LittleEndian.Uint64(p[8:16]))
	d.c = diffuse(d.c ^ binary.LittleEndian.Uint64(p[16:24]))
	d.d = diffuse(d.d ^ binary.LittleEndian.Uint64(p[24:32]))
}

func (d *digest) Write(p []byte) (int, error) {
	n := len(p)
	d.n += uint64(n)
	if d.nbuf > 0 {
		m := copy(d.buf[d.nbuf:], p)
		d.nbuf += m
		p = p[m:]
		if d.nbuf < len(d.buf) {
			return n, nil
		}
		d.block(d.buf[:])
		d.nbuf = 0
	}
	for len(p) >= 32 {
		d.block(p[:32])
		p = p[32:]
	}
	d.nbuf = copy(d.buf[:], p)
	return n, nil
}

func (d *digest) Sum64() uint64 {
	a, b, c, dd := d.a, d.b, d.c, d.d
	p := d.buf[:d.nbuf]
	switch {
	case len(p) > 24:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
		b = diffuse(b ^ binary.LittleEndian.Uint64(p[8:16]))
		c = diffuse(c ^ binary.LittleEndian.Uint64(p[16:24]))
		dd = diffuse(dd ^ readInt(p[24:]))
	case len(p) == 24:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
		b = diffuse(b ^ binary.LittleEndian.Uint64(p[8:16]))
		c = diffuse(c ^ binary.LittleEndian.Uint64(p[16:24]))
	case len(p) > 16:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
		b = diffuse(b ^ binary.LittleEndian.Uint64(p[8:16]))
		c = diffuse(c ^ readInt(p[16:]))
	case len(p) == 16:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
		b = diffuse(b ^ binary.LittleEndian.Uint64(p[8:16]))
	case len(p) > 8:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
		b = diffuse(b ^ readInt(p[8:]))
	case len(p) == 8:
		a = diffuse(a ^ binary.LittleEndian.Uint64(p[0:8]))
	case len(p) > 0:
		a = diffuse(a ^ readInt(p))
	}
	return diffuse(a ^ b ^ c ^ dd ^ d.n)
}

func (d *digest) Sum(in []byte) []byte {
	return binary.BigEndian.AppendUint64(in, d.Sum64())
}
