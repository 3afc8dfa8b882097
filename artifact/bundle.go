// Package artifact implements content-addressed artifact lineage: bundle
// hashing over a module's file set, bundle diffing, and the immutable
// attempt/audit trail the module pipeline appends to on every build or
// repair attempt.
//
// Grounded on _examples/original_source/shared/modules/artifacts.py and
// shared/modules/audit.py.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// FileEntry is a single file's content-address within a bundle.
type FileEntry struct {
	Path   string `json:"path"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// Index is the recorded manifest of a built bundle: every file's hash,
// the bundle hash over all of them, and the job/attempt that produced it.
type Index struct {
	JobID       string      `json:"job_id"`
	AttemptID   string      `json:"attempt_id"`
	ModuleID    string      `json:"module_id"`
	Stage       string      `json:"stage"`
	BundleSHA256 string     `json:"bundle_sha256"`
	Files       []FileEntry `json:"files"`
	CreatedAt   string      `json:"created_at"`
}

// hashContent returns the lowercase hex SHA-256 of content.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// BundleHash computes the deterministic bundle hash over a {path:
// content} file set: sort paths ascending, hash each file's content
// independently, concatenate the hex digests in sorted-path order, and
// SHA-256 the concatenation. The result depends only on the (path,
// content) pairs — never on job id, attempt id, or map iteration order.
func BundleHash(files map[string][]byte) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(hashContent(files[p])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BuildIndex hashes every file, computes the bundle hash, and returns the
// Index recording both — the artifact manifest persisted alongside a
// build/repair attempt.
func BuildIndex(jobID, attemptID, moduleID, stage string, files map[string][]byte, createdAt string) Index {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		content := files[p]
		entries = append(entries, FileEntry{Path: p, Size: len(content), SHA256: hashContent(content)})
	}

	return Index{
		JobID:        jobID,
		AttemptID:    attemptID,
		ModuleID:     moduleID,
		Stage:        stage,
		BundleSHA256: BundleHash(files),
		Files:        entries,
		CreatedAt:    createdAt,
	}
}

// VerifyBundleHash recomputes the bundle hash over files and reports
// whether it matches ix.BundleSHA256 — the integrity check used by the
// install guard and by attestation verification.
func VerifyBundleHash(ix Index, files map[string][]byte) bool {
	return BundleHash(files) == ix.BundleSHA256
}

// DiffKind classifies a path's change between two bundle indices.
type DiffKind string

const (
	DiffAdded     DiffKind = "added"
	DiffDeleted   DiffKind = "deleted"
	DiffChanged   DiffKind = "changed"
	DiffUnchanged DiffKind = "unchanged"
)

// Diff summarizes how bundle `to` differs from bundle `from`.
type Diff struct {
	Added     []string `json:"added"`
	Deleted   []string `json:"deleted"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
	Identical bool     `json:"identical"`
}

// DiffBundles classifies every path present in either index as added,
// deleted, changed (present in both but content hash differs), or
// unchanged.
func DiffBundles(from, to Index) Diff {
	fromHashes := make(map[string]string, len(from.Files))
	for _, f := range from.Files {
		fromHashes[f.Path] = f.SHA256
	}
	toHashes := make(map[string]string, len(to.Files))
	for _, f := range to.Files {
		toHashes[f.Path] = f.SHA256
	}

	var d Diff
	for path, hash := range toHashes {
		prev, existed := fromHashes[path]
		switch {
		case !existed:
			d.Added = append(d.Added, path)
		case prev != hash:
			d.Changed = append(d.Changed, path)
		default:
			d.Unchanged = append(d.Unchanged, path)
		}
	}
	for path := range fromHashes {
		if _, stillPresent := toHashes[path]; !stillPresent {
			d.Deleted = append(d.Deleted, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Deleted)
	sort.Strings(d.Changed)
	sort.Strings(d.Unchanged)

	d.Identical = len(d.Added) == 0 && len(d.Deleted) == 0 && len(d.Changed) == 0
	return d
}
