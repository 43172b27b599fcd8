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

// Package memory implements the Refresh store abstraction in memory.
// It is for testing; it does not persist anything.
package memory

import (
	"context"
	"sync"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/store"
)

type memoryStore struct {
	mu        sync.RWMutex
	blobs     map[fingerprint.Ref][]byte
	manifests map[string][]fingerprint.Ref
	latest    string
	hasLatest bool
}

// New returns an empty in-memory store.
func New() store.Store {
	return &memoryStore{
		blobs:     make(map[fingerprint.Ref][]byte),
		manifests: make(map[string][]fingerprint.Ref),
	}
}

func (s *memoryStore) ExistsMany(ctx context.Context, fps []fingerprint.Ref) (map[fingerprint.Ref]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	present := make(map[fingerprint.Ref]bool)
	for _, fp := range fps {
		if _, ok := s.blobs[fp]; ok {
			present[fp] = true
		}
	}
	return present, nil
}

func (s *memoryStore) PutBlob(ctx context.Context, fp fingerprint.Ref, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[fp]; ok {
		// First insert wins, as with the database primary key.
		return nil
	}
	s.blobs[fp] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) PutManifest(ctx context.Context, revID string, fps []fingerprint.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putManifestLocked(revID, fps)
	return nil
}

func (s *memoryStore) putManifestLocked(revID string, fps []fingerprint.Ref) {
	seen := make(map[fingerprint.Ref]bool)
	var members []fingerprint.Ref
	for _, fp := range append(append([]fingerprint.Ref(nil), s.manifests[revID]...), fps...) {
		if !seen[fp] {
			seen[fp] = true
			members = append(members, fp)
		}
	}
	s.manifests[revID] = members
}

func (s *memoryStore) SetLatest(ctx context.Context, revID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = revID
	s.hasLatest = true
	return nil
}

func (s *memoryStore) PublishRevision(ctx context.Context, revID string, fps []fingerprint.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putManifestLocked(revID, fps)
	s.latest = revID
	s.hasLatest = true
	return nil
}

func (s *memoryStore) GetLatest(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasLatest {
		return "", store.ErrNoRevision
	}
	return s.latest, nil
}

func (s *memoryStore) ListManifest(ctx context.Context, revID string) ([]fingerprint.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fingerprint.Ref(nil), s.manifests[revID]...), nil
}

func (s *memoryStore) GetBlob(ctx context.Context, fp fingerprint.Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[fp]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memoryStore) Close() error { return nil }
