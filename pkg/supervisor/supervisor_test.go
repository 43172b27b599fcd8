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

//go:build unix

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/store"
	"refresh.dev/pkg/store/memory"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	base := t.TempDir()
	return Config{
		BlueDir:   filepath.Join(base, "blue"),
		GreenDir:  filepath.Join(base, "green"),
		BluePort:  18031,
		GreenPort: 18032,
		// The child records its PORT, then lingers until signaled.
		ChildCommand: []string{"sh", "-c", "echo $PORT > port.txt && sleep 60"},
	}
}

func seededStore(t *testing.T) store.Store {
	t.Helper()
	sto := memory.New()
	ctx := context.Background()
	var fps []fingerprint.Ref
	for path, content := range map[string]string{"a.txt": "hi", "sub/b.txt": "yo"} {
		fp, err := fingerprint.FromBytes(path, []byte(content))
		if err != nil {
			t.Fatal(err)
		}
		if err := sto.PutBlob(ctx, fp, []byte(content)); err != nil {
			t.Fatal(err)
		}
		fps = append(fps, fp)
	}
	if err := sto.PublishRevision(ctx, "rev-1", fps); err != nil {
		t.Fatal(err)
	}
	return sto
}

func killOnCleanup(t *testing.T, s *Supervisor) {
	t.Cleanup(func() {
		if s.prevChild != nil {
			s.prevChild.Kill()
		}
	})
}

// waitForFile polls until path exists with non-empty content.
func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	panic("unreachable")
}

func TestCycleActivatesGreen(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, seededStore(t))
	killOnCleanup(t, sup)

	if got := sup.Active(); got != Blue {
		t.Fatalf("initial active = %v, want blue", got)
	}
	if err := sup.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if got := sup.Active(); got != Green {
		t.Errorf("active after first cycle = %v, want green", got)
	}

	for path, want := range map[string]string{"a.txt": "hi", filepath.Join("sub", "b.txt"): "yo"} {
		data, err := os.ReadFile(filepath.Join(cfg.GreenDir, path))
		if err != nil {
			t.Fatalf("materialized file %s: %v", path, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", path, data, want)
		}
	}

	// The child ran in the green dir with the green port.
	if got := waitForFile(t, filepath.Join(cfg.GreenDir, "port.txt")); got != strconv.Itoa(cfg.GreenPort) {
		t.Errorf("child PORT = %q, want %d", got, cfg.GreenPort)
	}
	if sup.prevChild == nil {
		t.Error("no child recorded after cycle")
	}
}

func TestSecondCycleFlipsBackAndSignalsOldChild(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, seededStore(t))
	killOnCleanup(t, sup)
	ctx := context.Background()

	if err := sup.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	firstPID := sup.prevChild.Pid

	if err := sup.Cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sup.Active(); got != Blue {
		t.Errorf("active after second cycle = %v, want blue", got)
	}
	if got := waitForFile(t, filepath.Join(cfg.BlueDir, "port.txt")); got != strconv.Itoa(cfg.BluePort) {
		t.Errorf("child PORT = %q, want %d", got, cfg.BluePort)
	}
	if sup.prevChild.Pid == firstPID {
		t.Error("previous child was not replaced")
	}

	// The old child was signaled; once reaped it is gone.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(firstPID, 0); err == syscall.ESRCH {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("old child %d still alive after flip", firstPID)
}

func TestSlotReuseWipesStaleFiles(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, seededStore(t))
	killOnCleanup(t, sup)

	// A leftover from an earlier run must not survive materialization.
	if err := os.MkdirAll(cfg.GreenDir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(cfg.GreenDir, "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := sup.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale file survived slot wipe: %v", err)
	}
}

func TestCycleWithoutRevisionIsNoop(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, memory.New())

	if err := sup.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle on empty store: %v", err)
	}
	if got := sup.Active(); got != Blue {
		t.Errorf("active flipped to %v with no revision", got)
	}
	if sup.prevChild != nil {
		t.Error("a child was spawned with no revision")
	}
}

func TestMaterializeRejectsEscapingPaths(t *testing.T) {
	cfg := testConfig(t)
	sto := memory.New()
	ctx := context.Background()
	evil, err := fingerprint.Parse("../evil.txt#0000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if err := sto.PutBlob(ctx, evil, []byte("boom")); err != nil {
		t.Fatal(err)
	}
	if err := sto.PublishRevision(ctx, "rev-evil", []fingerprint.Ref{evil}); err != nil {
		t.Fatal(err)
	}

	sup := New(cfg, sto)
	if err := sup.Cycle(ctx); err == nil {
		t.Fatal("Cycle materialized a path escaping the slot directory")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(cfg.GreenDir), "evil.txt")); !os.IsNotExist(err) {
		t.Errorf("escaping file was written: %v", err)
	}
}

func TestActiveAddr(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, memory.New())
	if got, want := sup.ActiveAddr(), fmt.Sprintf("127.0.0.1:%d", cfg.BluePort); got != want {
		t.Errorf("ActiveAddr = %q, want %q", got, want)
	}
}
