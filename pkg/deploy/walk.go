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

package deploy

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	gitignore "github.com/monochromegane/go-gitignore"

	"refresh.dev/pkg/fingerprint"
	"refresh.dev/pkg/seahash"
)

// vcsDirs are version control metadata directories never deployed.
var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
	".bzr": true,
}

// Candidate is one regular file found in the working tree, fingerprinted.
type Candidate struct {
	// Ref is the file's fingerprint. Its path part is the
	// slash-separated path relative to the walk root.
	Ref fingerprint.Ref
	// FullPath is where the file's bytes can be read back for upload.
	FullPath string
}

// Walk walks the working tree rooted at dir and fingerprints every
// regular file. VCS metadata directories are skipped and a .gitignore
// at the root is honored. Walking aborts on the first file whose
// relative path contains '#', before anything touches the network.
func Walk(dir string) ([]Candidate, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var ignore gitignore.IgnoreMatcher
	if matcher, err := gitignore.NewGitIgnore(filepath.Join(root, ".gitignore"), root); err == nil {
		ignore = matcher
	}

	var candidates []Candidate
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && vcsDirs[d.Name()] {
				return filepath.SkipDir
			}
			if ignore != nil && path != root && ignore.Match(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignore != nil && ignore.Match(path, false) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fp, err := fingerprintFile(filepath.ToSlash(rel), path)
		if err != nil {
			return err
		}
		candidates = append(candidates, Candidate{Ref: fp, FullPath: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// fingerprintFile hashes the file at fullPath without slurping it into
// memory.
func fingerprintFile(relPath, fullPath string) (fingerprint.Ref, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return fingerprint.Ref{}, err
	}
	defer f.Close()
	h := seahash.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint.Ref{}, fmt.Errorf("hashing %s: %v", fullPath, err)
	}
	return fingerprint.FromSum(relPath, h.Sum64())
}
