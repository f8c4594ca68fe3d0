package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/treehash"
)

// fakeStore is an in-memory glacier.Store. Failure injection is keyed by
// part start offset so tests can target individual parts.
type fakeStore struct {
	mu sync.Mutex

	sessionID   string
	partSize    int64
	description string

	parts    map[int64][]byte // received part bodies by start offset
	attempts map[int64]int    // UploadPart invocations by start offset

	// failBefore[start] makes the next N uploads of that part return a
	// transport error.
	failBefore map[int64]int

	// corruptOnce[start] makes the next upload of that part return a wrong
	// checksum while still storing the body.
	corruptOnce map[int64]bool

	// notFound makes every part upload report the session missing.
	notFound bool

	completed        bool
	completedSize    int64
	completedSum     string
	completeChecksum string // overrides the echoed checksum when set

	wholeBody []byte
	aborted   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessionID:   "sess-1",
		parts:       make(map[int64][]byte),
		attempts:    make(map[int64]int),
		failBefore:  make(map[int64]int),
		corruptOnce: make(map[int64]bool),
	}
}

func (f *fakeStore) CreateSession(ctx context.Context, vault, description string, partSize int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partSize = partSize
	f.description = description
	return f.sessionID, nil
}

func (f *fakeStore) ListSessionParts(ctx context.Context, vault, sessionID string) (*glacier.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID != f.sessionID {
		return nil, fmt.Errorf("list parts: %w", glacier.ErrNotFound)
	}
	info := &glacier.SessionInfo{
		SessionID:   f.sessionID,
		VaultName:   vault,
		Description: f.description,
		PartSize:    f.partSize,
	}
	for start, body := range f.parts {
		info.Parts = append(info.Parts, glacier.RemotePart{
			Range:    glacier.ByteRange{Start: start, End: start + int64(len(body)) - 1},
			Checksum: treehash.Part(body).Hex(),
		})
	}
	return info, nil
}

func (f *fakeStore) UploadPart(ctx context.Context, vault, sessionID string, r glacier.ByteRange, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[r.Start]++
	if f.notFound {
		return "", fmt.Errorf("upload part: %w", glacier.ErrNotFound)
	}
	if n := f.failBefore[r.Start]; n > 0 {
		f.failBefore[r.Start] = n - 1
		return "", errors.New("connection reset by peer")
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	f.parts[r.Start] = stored
	if f.corruptOnce[r.Start] {
		f.corruptOnce[r.Start] = false
		return treehash.Leaf([]byte("garbage")).Hex(), nil
	}
	return treehash.Part(body).Hex(), nil
}

func (f *fakeStore) CompleteSession(ctx context.Context, vault, sessionID string, totalSize int64, rootChecksum string) (*glacier.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	f.completedSize = totalSize
	f.completedSum = rootChecksum
	sum := rootChecksum
	if f.completeChecksum != "" {
		sum = f.completeChecksum
	}
	return &glacier.CommitResult{
		Checksum:  sum,
		Location:  "/vaults/" + vault + "/archives/arc-1",
		ArchiveID: "arc-1",
	}, nil
}

func (f *fakeStore) UploadWhole(ctx context.Context, vault, description string, body []byte) (*glacier.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wholeBody = make([]byte, len(body))
	copy(f.wholeBody, body)
	return &glacier.CommitResult{
		Checksum:  treehash.Part(body).Hex(),
		Location:  "/vaults/" + vault + "/archives/arc-1",
		ArchiveID: "arc-1",
	}, nil
}

func (f *fakeStore) AbortSession(ctx context.Context, vault, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return nil
}

func (f *fakeStore) ListSessions(ctx context.Context, vault string) ([]glacier.SessionSummary, error) {
	return nil, nil
}

func (f *fakeStore) uploadAttempts(start int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[start]
}

func (f *fakeStore) numParts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.parts)
}

func (f *fakeStore) reassemble(total int64) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, total)
	for start, body := range f.parts {
		copy(out[start:], body)
	}
	return out
}
