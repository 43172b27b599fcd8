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
	"bytes"
	"testing"
)

func TestDeterministic(t *testing.T) {
	inputs := []string{
		"",
		"h",
		"hi",
		"to be or not to be",
		"the quick brown fox jumps over the lazy dog",
	}
	for _, in := range inputs {
		if g1, g2 := SumString64(in), SumString64(in); g1 != g2 {
			t.Errorf("Sum64(%q) not deterministic: %x != %x", in, g1, g2)
		}
	}
}

func TestAllTailLengths(t *testing.T) {
	// One input per tail case: every residue mod 32, plus a couple of
	// full blocks. Each length must produce a distinct, stable value.
	base := bytes.Repeat([]byte("refresh!"), 16)
	seen := make(map[uint64]int)
	for n := 0; n <= len(base); n++ {
		sum := Sum64(base[:n])
		if prev, dup := seen[sum]; dup {
			t.Errorf("lengths %d and %d collide on %x", prev, n, sum)
		}
		seen[sum] = n
	}
}

func TestZeroPaddingIsNotIdentity(t *testing.T) {
	// The tail word is zero-extended, but the total length feeds the
	// finalizer, so appending a NUL must change the digest.
	in := []byte("abc")
	if Sum64(in) == Sum64(append(in, 0)) {
		t.Error("appending 0x00 did not change the digest")
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	input := bytes.Repeat([]byte("0123456789abcdef"), 13) // 208 bytes, odd tail
	want := Sum64(input)
	for _, chunk := range []int{1, 3, 7, 8, 31, 32, 33, len(input)} {
		h := New()
		for off := 0; off < len(input); off += chunk {
			end := off + chunk
			if end > len(input) {
				end = len(input)
			}
			h.Write(input[off:end])
		}
		if got := h.Sum64(); got != want {
			t.Errorf("chunk size %d: got %x, want %x", chunk, got, want)
		}
	}
}

func TestSumAppends(t *testing.T) {
	h := New()
	h.Write([]byte("hello"))
	out := h.Sum([]byte("prefix-"))
	if !bytes.HasPrefix(out, []byte("prefix-")) {
		t.Fatalf("Sum did not append: %q", out)
	}
	if len(out) != len("prefix-")+8 {
		t.Fatalf("Sum output length = %d", len(out))
	}
}

func TestReset(t *testing.T) {
	h := New()
	h.Write([]byte("garbage"))
	h.Reset()
	h.Write([]byte("hi"))
	if got, want := h.Sum64(), SumString64("hi"); got != want {
		t.Errorf("after Reset: got %x, want %x", got, want)
	}
}
