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

// Package supervisor keeps a child process serving the latest
// published revision, using two alternating blue/green slots.
//
// On every wakeup the inactive slot is wiped, the latest revision's
// file tree is materialized into it, a fresh child is spawned against
// it, and the active-slot pointer flips. The previous child is then
// signaled; connections it still carries are deliberately severed (no
// draining).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"refresh.dev/pkg/store"
)

// Slot is one of the two pre-assigned (directory, port) pairs.
type Slot int32

const (
	Blue Slot = iota
	Green
)

func (s Slot) String() string {
	if s == Blue {
		return "blue"
	}
	return "green"
}

func (s Slot) other() Slot {
	if s == Blue {
		return Green
	}
	return Blue
}

// Config carries the two slots' locations and the child invocation.
type Config struct {
	BlueDir   string
	GreenDir  string
	BluePort  int
	GreenPort int

	// ChildCommand is the argv launching the application, run with
	// CWD set to the slot directory and PORT in its environment.
	ChildCommand []string
}

// DefaultConfig returns the stock configuration: /tmp slot
// directories, ports 3001/3002, and a Deno child.
func DefaultConfig() Config {
	return Config{
		BlueDir:      "/tmp/refresh-blue",
		GreenDir:     "/tmp/refresh-green",
		BluePort:     3001,
		GreenPort:    3002,
		ChildCommand: []string{"deno", "run", "-A", "main.ts"},
	}
}

func (c Config) dir(s Slot) string {
	if s == Blue {
		return c.BlueDir
	}
	return c.GreenDir
}

func (c Config) port(s Slot) int {
	if s == Blue {
		return c.BluePort
	}
	return c.GreenPort
}

// Supervisor owns the active-slot pointer and the lifecycle of the
// slot children.
type Supervisor struct {
	cfg Config
	sto store.Store

	// active is read by the proxy on every accept and written only
	// by the supervisor's own cycle.
	active atomic.Int32

	// prevChild is the child to signal on the next flip. Owned
	// exclusively by the cycle goroutine.
	prevChild *os.Process
}

// New returns a Supervisor with the blue slot initially active and no
// child running.
func New(cfg Config, sto store.Store) *Supervisor {
	s := &Supervisor{cfg: cfg, sto: sto}
	s.active.Store(int32(Blue))
	return s
}

// Active returns the currently active slot.
func (s *Supervisor) Active() Slot {
	return Slot(s.active.Load())
}

// ActiveAddr returns the loopback address of the active slot's child,
// sampled atomically. The proxy calls this once per accepted
// connection.
func (s *Supervisor) ActiveAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.cfg.port(s.Active()))
}

// Run cycles on every bus wakeup until ctx is done. One synthetic
// wakeup is built in: the latest revision is materialized immediately
// at startup, before any change event arrives.
func (s *Supervisor) Run(ctx context.Context, wake <-chan struct{}) error {
	for {
		if err := s.Cycle(ctx); err != nil {
			// The previous active slot keeps serving; retry on
			// the next wakeup.
			logrus.WithError(err).Error("activation cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Cycle runs one activation: materialize the latest revision into the
// inactive slot, spawn its child, flip the active pointer, and signal
// the previous child. A cycle with no published revision is a no-op.
func (s *Supervisor) Cycle(ctx context.Context) error {
	revID, err := s.sto.GetLatest(ctx)
	if err == store.ErrNoRevision {
		logrus.Info("no revision published yet; nothing to serve")
		return nil
	}
	if err != nil {
		return err
	}

	next := s.Active().other()
	dir := s.cfg.dir(next)
	if err := s.materialize(ctx, revID, dir); err != nil {
		return err
	}

	child, err := s.spawn(next)
	if err != nil {
		return err
	}

	// The switch point: from here on, new accepts land on the fresh
	// child.
	s.active.Store(int32(next))
	logrus.WithFields(logrus.Fields{
		"revision": revID,
		"slot":     next.String(),
		"pid":      child.Pid,
	}).Info("activated")

	if s.prevChild != nil {
		if err := s.prevChild.Signal(syscall.SIGTERM); err != nil {
			logrus.WithError(err).Warn("signaling previous child")
		}
	}
	s.prevChild = child
	return nil
}

// materialize wipes dir and writes revID's file tree into it. A crash
// partway leaves a partial tree, which is harmless: the slot is wiped
// again before its next use.
func (s *Supervisor) materialize(ctx context.Context, revID, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "wiping slot dir %s", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	fps, err := s.sto.ListManifest(ctx, revID)
	if err != nil {
		return err
	}
	for _, fp := range fps {
		data, err := s.sto.GetBlob(ctx, fp)
		if err != nil {
			return errors.Wrapf(err, "reading blob %v", fp)
		}
		rel := filepath.FromSlash(fp.Path())
		if filepath.IsAbs(rel) || rel != filepath.Clean(rel) ||
			rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("manifest path %q escapes the slot directory", fp.Path())
		}
		dest := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := renameio.WriteFile(dest, data, 0644); err != nil {
			return errors.Wrapf(err, "writing %s", dest)
		}
	}
	logrus.WithFields(logrus.Fields{
		"revision": revID,
		"dir":      dir,
		"files":    len(fps),
	}).Info("materialized revision")
	return nil
}

// spawn launches the slot's child in its directory with the slot port
// in the environment. The child receives SIGTERM if the supervisor
// dies.
func (s *Supervisor) spawn(slot Slot) (*os.Process, error) {
	argv := s.cfg.ChildCommand
	if len(argv) == 0 {
		return nil, fmt.Errorf("supervisor: empty child command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.dir(slot)
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(s.cfg.port(slot)))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setDeathSignal(cmd)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "spawning child in slot %v", slot)
	}
	go func() {
		err := cmd.Wait()
		logrus.WithFields(logrus.Fields{
			"slot": slot.String(),
			"pid":  cmd.Process.Pid,
		}).WithError(err).Info("child exited")
	}()
	return cmd.Process, nil
}
