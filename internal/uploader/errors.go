package uploader

import (
	"errors"
	"fmt"
)

// errChecksumMismatch marks a single-attempt disagreement between the
// locally computed part digest and the one the service reported. It is
// retried like a transport error: transient corruption in flight is more
// likely than a stable local file reading back wrong bytes.
var errChecksumMismatch = errors.New("local and remote part checksums do not match")

// PartError reports one part exhausting its retry budget.
type PartError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("part %d failed after %d attempts: %v", e.Index, e.Attempts, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// UploadFailedError is the session-level terminal failure: a part ran out
// of retries and the run was cancelled. The session is left open on the
// service so the upload can be resumed with SessionID.
type UploadFailedError struct {
	SessionID string
	Err       error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload failed, session %s can still be resumed: %v", e.SessionID, e.Err)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a root tree hash disagreement at completion time,
// after every part was individually confirmed. Retrying cannot fix this;
// it means local and remote disagree about the whole archive.
type IntegrityError struct {
	SessionID      string
	LocalChecksum  string
	RemoteChecksum string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("root tree hash mismatch for session %s: local %s, remote %s",
		e.SessionID, e.LocalChecksum, e.RemoteChecksum)
}
