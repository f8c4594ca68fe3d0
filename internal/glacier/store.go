// Package glacier defines the remote vault store boundary and its AWS
// implementation. The upload engine talks only to the Store interface so
// tests can substitute a fake service.
package glacier

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown vault, upload session, or job. It is
// never retried.
var ErrNotFound = errors.New("vault, upload, or job not found")

// ByteRange identifies one part's position inside the archive. Start and
// End are inclusive byte offsets; Total is the archive length.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// ContentRange renders the range in the wire format the service expects
// for part uploads.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/*", r.Start, r.End)
}

// RemotePart is one part the service reports as already received for an
// upload session, with its remotely computed tree hash checksum (hex).
type RemotePart struct {
	Range    ByteRange
	Checksum string
}

// SessionInfo describes an in-progress upload session as stored remotely.
// PartSize is authoritative on resume: it is the size the session was
// created with, regardless of what the caller passes this run.
type SessionInfo struct {
	SessionID   string
	VaultName   string
	Description string
	PartSize    int64
	Parts       []RemotePart
}

// SessionSummary is one entry from listing a vault's open upload sessions.
type SessionSummary struct {
	SessionID   string
	Description string
	PartSize    int64
	CreatedAt   string
}

// CommitResult is the service's response to a completed upload, whole or
// multipart.
type CommitResult struct {
	Checksum  string
	Location  string
	ArchiveID string
}

// Store is the remote vault service consumed by the upload engine. All
// methods may return transport errors or ErrNotFound; neither is swallowed
// here, retry policy belongs to the caller.
type Store interface {
	// CreateSession initiates a multipart upload and returns its id.
	CreateSession(ctx context.Context, vault, description string, partSize int64) (string, error)

	// ListSessionParts returns the session's metadata and every part the
	// service has received so far, with pagination fully drained.
	ListSessionParts(ctx context.Context, vault, sessionID string) (*SessionInfo, error)

	// UploadPart sends one part's bytes and returns the service-computed
	// tree hash checksum for them.
	UploadPart(ctx context.Context, vault, sessionID string, r ByteRange, body []byte) (string, error)

	// CompleteSession finalizes the upload, asserting the archive size and
	// root tree hash.
	CompleteSession(ctx context.Context, vault, sessionID string, totalSize int64, rootChecksum string) (*CommitResult, error)

	// UploadWhole uploads a small archive in a single request.
	UploadWhole(ctx context.Context, vault, description string, body []byte) (*CommitResult, error)

	// AbortSession discards an in-progress upload session.
	AbortSession(ctx context.Context, vault, sessionID string) error

	// ListSessions lists the vault's open upload sessions.
	ListSessions(ctx context.Context, vault string) ([]SessionSummary, error)
}

// SessionDescriptor is what a caller needs to persist to resume an upload
// later: enough to re-plan the parts and re-verify against the service.
type SessionDescriptor struct {
	SessionID string `json:"session_id"`
	VaultName string `json:"vault_name"`
	PartSize  int64  `json:"part_size"`
	TotalSize int64  `json:"total_size"`
}
