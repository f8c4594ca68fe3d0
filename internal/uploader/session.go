// Package uploader implements the resumable multipart upload engine:
// resume verification against the remote part list and the concurrent
// upload orchestrator that drives parts to completion.
package uploader

import (
	"fmt"
	"io"
	"sync"

	"github.com/coldvault/vaultup/internal/chunk"
	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/treehash"
)

// PartState tracks a part through its lifecycle. Transitions are
// monotonic: Pending moves to Verified, Uploaded, or Failed, and a part
// never leaves a terminal state.
type PartState int

const (
	// StatePending means the part is not yet confirmed present remotely.
	StatePending PartState = iota
	// StateVerified means the remote copy matched the local tree hash
	// during resume verification.
	StateVerified
	// StateUploaded means the part was uploaded and checksum-confirmed in
	// this run.
	StateUploaded
	// StateFailed means the part exhausted its retry budget.
	StateFailed
)

type partSlot struct {
	chunk.Part
	state  PartState
	digest treehash.Digest
}

// Session is one logical multipart upload: the remote session id plus the
// local view of every part's state and digest. Digest writes happen once
// per index, by whichever attempt confirms the part first.
type Session struct {
	ID          string
	Vault       string
	Description string
	TotalSize   int64
	PartSize    int64

	mu    sync.Mutex
	parts []partSlot
}

// NewSession builds the part table for a session. The parts are derived
// once from totalSize and partSize and never re-derived mid-session.
func NewSession(id, vault, description string, totalSize, partSize int64) *Session {
	ranges := chunk.Split(totalSize, partSize)
	parts := make([]partSlot, len(ranges))
	for i, r := range ranges {
		parts[i] = partSlot{Part: r}
	}
	return &Session{
		ID:          id,
		Vault:       vault,
		Description: description,
		TotalSize:   totalSize,
		PartSize:    partSize,
		parts:       parts,
	}
}

// NumParts returns the number of parts in the session.
func (s *Session) NumParts() int {
	return len(s.parts)
}

// Descriptor returns the state a caller needs to resume this session in a
// later run.
func (s *Session) Descriptor() glacier.SessionDescriptor {
	return glacier.SessionDescriptor{
		SessionID: s.ID,
		VaultName: s.Vault,
		PartSize:  s.PartSize,
		TotalSize: s.TotalSize,
	}
}

// markVerified records a part confirmed present remotely during resume.
func (s *Session) markVerified(index int, digest treehash.Digest) {
	s.setDigest(index, StateVerified, digest)
}

// markUploaded records a part confirmed by a fresh upload.
func (s *Session) markUploaded(index int, digest treehash.Digest) {
	s.setDigest(index, StateUploaded, digest)
}

func (s *Session) setDigest(index int, state PartState, digest treehash.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts[index].state != StatePending {
		return
	}
	s.parts[index].state = state
	s.parts[index].digest = digest
}

func (s *Session) markFailed(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parts[index].state == StatePending {
		s.parts[index].state = StateFailed
	}
}

// Pending returns the parts still needing upload, in index order.
func (s *Session) Pending() []chunk.Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []chunk.Part
	for _, p := range s.parts {
		if p.state == StatePending {
			pending = append(pending, p.Part)
		}
	}
	return pending
}

// State returns the current state of one part.
func (s *Session) State(index int) PartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parts[index].state
}

// Digests returns every confirmed part digest ordered by part index, and
// whether the set covers each index exactly once. Callers read this only
// after all workers have joined.
func (s *Session) Digests() ([]treehash.Digest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	digests := make([]treehash.Digest, len(s.parts))
	for i, p := range s.parts {
		if p.state != StateVerified && p.state != StateUploaded {
			return nil, false
		}
		digests[i] = p.digest
	}
	return digests, true
}

// Source serializes seek+read access to the shared local byte stream.
// Only the read is exclusive; hashing and uploading the bytes happen
// outside the lock so workers overlap I/O with the service.
type Source struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

// NewSource wraps a seekable reader for shared use by the workers.
func NewSource(rs io.ReadSeeker) *Source {
	return &Source{rs: rs}
}

// ReadRange fills buf with the bytes starting at offset. The full buffer
// must be readable; a short read is an error.
func (s *Source) ReadRange(offset int64, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to offset %d: %w", offset, err)
	}
	if _, err := io.ReadFull(s.rs, buf); err != nil {
		return fmt.Errorf("failed to read %d bytes at offset %d: %w", len(buf), offset, err)
	}
	return nil
}
