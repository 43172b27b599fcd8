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

// Package postgres implements the Refresh store abstraction on top of
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/store"
)

// uniqueViolation is the SQLSTATE for a primary-key conflict.
const uniqueViolation = "23505"

func createTables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS files (
			path_and_hash TEXT PRIMARY KEY,
			data BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS revision_files (
			revision_id TEXT,
			path_and_hash TEXT,
			PRIMARY KEY (revision_id, path_and_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS latest_revision (
			latest TEXT PRIMARY KEY,
			revision_id TEXT NOT NULL
		)`,
	}
}

type postgresStore struct {
	db *sql.DB
}

// New opens (and if necessary bootstraps) a store in the PostgreSQL
// database at conninfo.
func New(ctx context.Context, conninfo string) (store.Store, error) {
	db, err := sql.Open("postgres", conninfo)
	if err != nil {
		return nil, err
	}
	for _, tableSQL := range createTables() {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "creating table with %q", tableSQL)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "PostgreSQL db unreachable")
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) ExistsMany(ctx context.Context, fps []fingerprint.Ref) (map[fingerprint.Ref]bool, error) {
	present := make(map[fingerprint.Ref]bool)
	if len(fps) == 0 {
		return present, nil
	}
	keys := make([]string, 0, len(fps))
	for _, fp := range fps {
		keys = append(keys, fp.String())
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path_and_hash FROM files WHERE path_and_hash = ANY($1)`,
		pq.Array(keys))
	if err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		fp, err := fingerprint.Parse(key)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt files row %q", key)
		}
		present[fp] = true
	}
	return present, rows.Err()
}

func (s *postgresStore) PutBlob(ctx context.Context, fp fingerprint.Ref, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path_and_hash, data) VALUES ($1, $2)`,
		fp.String(), data)
	if isUniqueViolation(err) {
		// Two deploys raced on the same fingerprint; the first
		// insert won and both name the same content.
		return nil
	}
	return errors.Wrapf(err, "inserting blob %v", fp)
}

func (s *postgresStore) PutManifest(ctx context.Context, revID string, fps []fingerprint.Ref) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := putManifestTx(ctx, tx, revID, fps); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *postgresStore) SetLatest(ctx context.Context, revID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO latest_revision (latest, revision_id) VALUES ($1, $2)
		 ON CONFLICT (latest) DO UPDATE SET revision_id = EXCLUDED.revision_id`,
		store.LatestKey, revID)
	return errors.Wrapf(err, "setting latest revision %v", revID)
}

func (s *postgresStore) PublishRevision(ctx context.Context, revID string, fps []fingerprint.Ref) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := putManifestTx(ctx, tx, revID, fps); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO latest_revision (latest, revision_id) VALUES ($1, $2)
		 ON CONFLICT (latest) DO UPDATE SET revision_id = EXCLUDED.revision_id`,
		store.LatestKey, revID); err != nil {
		return errors.Wrapf(err, "setting latest revision %v", revID)
	}
	return tx.Commit()
}

func putManifestTx(ctx context.Context, tx *sql.Tx, revID string, fps []fingerprint.Ref) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO revision_files (revision_id, path_and_hash) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, fp := range fps {
		if _, err := stmt.ExecContext(ctx, revID, fp.String()); err != nil {
			return errors.Wrapf(err, "inserting manifest row %v", fp)
		}
	}
	return nil
}

func (s *postgresStore) GetLatest(ctx context.Context) (string, error) {
	var revID string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision_id FROM latest_revision WHERE latest = $1`,
		store.LatestKey).Scan(&revID)
	if err == sql.ErrNoRows {
		return "", store.ErrNoRevision
	}
	if err != nil {
		return "", errors.Wrap(err, "reading latest revision")
	}
	return revID, nil
}

func (s *postgresStore) ListManifest(ctx context.Context, revID string) ([]fingerprint.Ref, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path_and_hash FROM revision_files WHERE revision_id = $1`,
		revID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing manifest of %v", revID)
	}
	defer rows.Close()
	var fps []fingerprint.Ref
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		fp, err := fingerprint.Parse(key)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt revision_files row %q", key)
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

func (s *postgresStore) GetBlob(ctx context.Context, fp fingerprint.Ref) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM files WHERE path_and_hash = $1`,
		fp.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %v", fp)
	}
	return data, nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
