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

package bus

import (
	"context"
	"testing"
)

func TestMemoryBusCoalesces(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := b.Notify(ctx, "rev"); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-b.Wake():
	default:
		t.Fatal("no wakeup pending after Notify")
	}
	// Five publications coalesce into exactly one wakeup.
	select {
	case <-b.Wake():
		t.Fatal("second wakeup pending; bus did not coalesce")
	default:
	}
}

func TestMemoryBusEdgeTriggered(t *testing.T) {
	b := NewMemory()
	select {
	case <-b.Wake():
		t.Fatal("wakeup pending on a fresh bus")
	default:
	}
}
