// Package artifact owns the lifecycle of finalized recordings: combining a
// session's chunks into one playable artifact, tracking the revocable handle
// that references it, and saving artifacts under timestamped download names.
//
// The store guarantees at most one live handle per owner: finalizing a new
// recording for the same owner revokes the previous handle exactly once
// before installing the new one.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoChunks is returned by Finalize when the chunk sequence is empty.
var ErrNoChunks = errors.New("artifact: no chunks to finalize")

// extensions maps MIME types to download file extensions.
var extensions = map[string]string{
	"audio/webm": ".webm",
	"audio/mp4":  ".mp4",
	"audio/ogg":  ".ogg",
}

// Handle is a revocable reference to an artifact's bytes. Once revoked it can
// no longer be used for playback or download.
type Handle struct {
	mu      sync.Mutex
	id      string
	revoked bool
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Revoked reports whether the handle has been revoked.
func (h *Handle) Revoked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.revoked
}

// revoke marks the handle revoked. Reports whether this call did the
// revocation (false when already revoked).
func (h *Handle) revoke() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.revoked {
		return false
	}
	h.revoked = true
	return true
}

// Artifact is one finalized recording.
type Artifact struct {
	// Bytes is the encoded recording: the ordered concatenation of the
	// session's chunks.
	Bytes []byte

	// MIMEType is the negotiated encoding format.
	MIMEType string

	// Handle is the live revocable reference to this artifact.
	Handle *Handle
}

// Store tracks the live handle per owner (one owner per recorder session).
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	live map[string]*Handle
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{live: make(map[string]*Handle)}
}

// Finalize combines chunks, in order, into a single artifact owned by
// ownerID. Any previously live handle for that owner is revoked first, so the
// owner never holds two live handles.
func (s *Store) Finalize(ownerID string, chunks [][]byte, mimeType string) (*Artifact, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range chunks {
		data = append(data, c...)
	}

	h := &Handle{id: uuid.NewString()}

	s.mu.Lock()
	prev := s.live[ownerID]
	s.live[ownerID] = h
	s.mu.Unlock()

	if prev != nil {
		prev.revoke()
	}

	return &Artifact{Bytes: data, MIMEType: mimeType, Handle: h}, nil
}

// LiveHandle returns the owner's current live handle, or nil.
func (s *Store) LiveHandle(ownerID string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[ownerID]
}

// Revoke revokes the owner's live handle, if any.
func (s *Store) Revoke(ownerID string) {
	s.mu.Lock()
	h := s.live[ownerID]
	delete(s.live, ownerID)
	s.mu.Unlock()
	if h != nil {
		h.revoke()
	}
}

// DownloadName derives the artifact's download file name from ts:
// "recording-" plus the ISO 8601 timestamp with ':' and '.' replaced by '-',
// plus the extension native to the artifact's MIME type.
func (a *Artifact) DownloadName(ts time.Time) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	ext, ok := extensions[a.MIMEType]
	if !ok {
		ext = ".webm"
	}
	return "recording-" + stamp + ext
}

// WriteTo writes the artifact bytes to w. Fails if the handle was revoked.
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	if a.Handle.Revoked() {
		return 0, fmt.Errorf("artifact: handle %s is revoked", a.Handle.ID())
	}
	n, err := w.Write(a.Bytes)
	return int64(n), err
}

// Download saves the artifact into dir under its timestamped download name
// and returns the full path. It does not mutate the artifact.
func (a *Artifact) Download(dir string, ts time.Time) (string, error) {
	if a.Handle.Revoked() {
		return "", fmt.Errorf("artifact: handle %s is revoked", a.Handle.ID())
	}
	path := filepath.Join(dir, a.DownloadName(ts))
	if err := os.WriteFile(path, a.Bytes, 0o644); err != nil {
		return "", fmt.Errorf("artifact: save %q: %w", path, err)
	}
	return path, nil
}
