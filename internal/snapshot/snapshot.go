// Package snapshot implements the content-addressed tool-surface store used
// by the description-drift detector. One JSON file is kept per
// (client_origin, name) pair; writes go to a sibling ".tmp" file followed by
// an atomic rename, so a concurrent reader always observes either the
// complete previous file or the complete new one, never a partial file.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mcpsentry/mcpsentry/internal/errs"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/safefile"
)

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize replaces any character outside [A-Za-z0-9_-] with "_".
func Sanitize(s string) string {
	return sanitizeRe.ReplaceAllString(s, "_")
}

// Digest returns the lowercase-hex SHA-256 digest of the UTF-8 form of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes snapshot files under a base directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at <base>/snapshots, creating the
// directory if needed.
func NewStore(base string) (*Store, error) {
	dir := filepath.Join(base, "snapshots")
	if err := safefile.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(clientOrigin, name string) string {
	return filepath.Join(s.dir, Sanitize(clientOrigin)+"__"+Sanitize(name)+".json")
}

// diskSnapshot is the on-disk JSON shape:
// {captured_at, tools: {name: {description_digest, schema_digest}}}
type diskSnapshot struct {
	CapturedAt string                     `json:"captured_at"`
	Tools      map[string]diskToolDigests `json:"tools"`
}

type diskToolDigests struct {
	DescriptionDigest string `json:"description_digest"`
	SchemaDigest      string `json:"schema_digest"`
}

// Load reads the snapshot for (clientOrigin, name). A missing file is not
// an error: it returns a nil Snapshot, meaning "no prior snapshot."
func (s *Store) Load(clientOrigin, name string) (*model.Snapshot, error) {
	path := s.path(clientOrigin, name)
	data, err := safefile.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &errs.DetectorError{Server: name, Err: err}
	}
	var disk diskSnapshot
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, &errs.DetectorError{Server: name, Err: fmt.Errorf("parsing snapshot %s: %w", path, err)}
	}
	capturedAt, err := time.Parse(time.RFC3339, disk.CapturedAt)
	if err != nil {
		capturedAt = time.Time{}
	}
	snap := &model.Snapshot{CapturedAt: capturedAt, Tools: make(map[string]model.ToolDigest, len(disk.Tools))}
	for name, d := range disk.Tools {
		snap.Tools[name] = model.ToolDigest{DescriptionDigest: d.DescriptionDigest, SchemaDigest: d.SchemaDigest}
	}
	return snap, nil
}

// Save atomically writes a snapshot for (clientOrigin, name): write to a
// sibling ".tmp" file, then rename over the target.
func (s *Store) Save(clientOrigin, name string, snap model.Snapshot) error {
	path := s.path(clientOrigin, name)
	disk := diskSnapshot{
		CapturedAt: snap.CapturedAt.UTC().Format(time.RFC3339),
		Tools:      make(map[string]diskToolDigests, len(snap.Tools)),
	}
	for toolName, d := range snap.Tools {
		disk.Tools[toolName] = diskToolDigests{DescriptionDigest: d.DescriptionDigest, SchemaDigest: d.SchemaDigest}
	}
	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return &errs.DetectorError{Server: name, Err: err}
	}

	if err := safefile.WriteFileAtomic(path, data, 0o644); err != nil {
		return &errs.DetectorError{Server: name, Err: err}
	}
	return nil
}
