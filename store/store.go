// Package store implements the content-addressed artifact store.
//
// Artifacts are keyed by checksum, not name/version, so two specs
// requesting the same bytes under different nominal versions share
// storage. The store is independent of any particular workspace.
//
// Layout: <root>/sha256/<cs[:2]>/<cs>
//
// Writes are atomic (write-to-temp + rename) so a crash mid-write never
// leaves a partially-written artifact visible to Get. Concurrent Put
// calls for the same checksum are serialized: the first writer wins,
// the rest block until the rename completes and reuse the result.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
)

// Store is a content-addressed local artifact cache.
// Thread-safe for concurrent access.
type Store struct {
	root string

	mu       sync.Mutex
	inflight map[string]chan struct{}

	hits      atomic.Int64
	misses    atomic.Int64
	puts      atomic.Int64
	evictions atomic.Int64
}

// Stats holds store access counters for the status surface.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Puts      int64 `json:"puts"`
	Evictions int64 `json:"evictions"`
}

// DefaultRoot returns the per-user artifact store root.
func DefaultRoot() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user cache dir: %w", err)
	}
	return filepath.Join(cache, "strata", "artifacts"), nil
}

// Open opens (creating if needed) a store rooted at the given directory.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "sha256"), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create store root %q: %w", root, err)
	}
	return &Store{
		root:     root,
		inflight: make(map[string]chan struct{}),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// path returns the content-addressed path for a checksum.
func (s *Store) path(checksum string) string {
	prefix := checksum
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(s.root, "sha256", prefix, checksum)
}

// Get returns the stored path for a ref, or false on a miss.
func (s *Store) Get(ref types.ArtifactRef) (string, bool) {
	p := s.path(ref.Checksum)
	if _, err := os.Stat(p); err != nil {
		s.misses.Add(1)
		return "", false
	}
	s.hits.Add(1)
	return p, true
}

// Put stores the bytes from r under the ref's checksum.
//
// The digest is recomputed while streaming; content that disagrees with
// the declared checksum is rejected with ErrChecksumMismatch and nothing
// becomes visible. If the artifact is already present the reader is not
// consumed and the existing path is returned.
func (s *Store) Put(ref types.ArtifactRef, r io.Reader) (string, error) {
	for {
		p := s.path(ref.Checksum)

		s.mu.Lock()
		if _, err := os.Stat(p); err == nil {
			s.mu.Unlock()
			return p, nil
		}
		if ch, busy := s.inflight[ref.Checksum]; busy {
			s.mu.Unlock()
			<-ch
			// First writer finished (or failed); re-check and fall
			// through to our own attempt if the entry is still absent.
			continue
		}
		ch := make(chan struct{})
		s.inflight[ref.Checksum] = ch
		s.mu.Unlock()

		path, err := s.write(ref, r)

		s.mu.Lock()
		delete(s.inflight, ref.Checksum)
		close(ch)
		s.mu.Unlock()

		if err != nil {
			return "", err
		}
		s.puts.Add(1)
		return path, nil
	}
}

// write streams r to a temp file, verifies the digest, and renames into
// place.
func (s *Store) write(ref types.ArtifactRef, r io.Reader) (string, error) {
	p := s.path(ref.Checksum)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}

	// Temp file in the destination dir so the rename is same-filesystem.
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		cleanup()
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != ref.Checksum {
		cleanup()
		return "", types.NewError(types.ErrChecksumMismatch, "store put", ref.Name,
			fmt.Errorf("declared %s, got %s", ref.Checksum, got))
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("store put %s: %w", ref.Checksum, err)
	}
	return p, nil
}

// Verify recomputes the checksum of the stored bytes for ref.
// A mismatch marks the entry corrupt and evicts it; Verify then returns
// false, as it does for an absent entry.
func (s *Store) Verify(ref types.ArtifactRef) bool {
	p := s.path(ref.Checksum)
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer iox.DiscardClose(f)

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false
	}

	if hex.EncodeToString(hasher.Sum(nil)) != ref.Checksum {
		// Corrupt entry; evict so a later Put can replace it.
		_ = os.Remove(p)
		s.evictions.Add(1)
		return false
	}
	return true
}

// Stats returns store access counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Puts:      s.puts.Load(),
		Evictions: s.evictions.Load(),
	}
}

// Checksum computes the sha256 hex digest of b. Helper for tests and
// registry tooling.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
