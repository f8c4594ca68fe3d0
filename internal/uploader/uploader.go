package uploader

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"

	"github.com/coldvault/vaultup/internal/chunk"
	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/logging"
	"github.com/coldvault/vaultup/internal/retry"
	tarutil "github.com/coldvault/vaultup/internal/util/tar"
)

// Options configures a full upload run.
type Options struct {
	Vault       string
	Paths       []string
	Description string

	// PartSizeMB is the requested part size in megabytes, a power of two
	// in [1, 4096]. Ignored on resume: the session's part size is re-read
	// from the service.
	PartSizeMB int

	// Concurrency is the worker pool width; zero selects the default.
	Concurrency int

	// ResumeID resumes an existing session instead of creating one.
	ResumeID string

	// MaxAttempts overrides the per-part retry budget; zero keeps the
	// default of 10.
	MaxAttempts int

	// ConfirmAdjust is consulted when the requested part size cannot keep
	// the part count within the service limit and a larger size was
	// selected. Returning false aborts the upload. Nil accepts silently.
	ConfirmAdjust func(requested, adjusted int64) bool

	// Progress and VerifyProgress are optional UI hooks. Start, when set,
	// is called once after planning (and resume verification) with the
	// totals, before any part upload begins.
	Progress       PartProgress
	VerifyProgress VerifyProgress
	Start          func(totalBytes int64, totalParts int, confirmedBytes int64)

	Log *logging.Logger
}

// Upload uploads the given paths to the vault as one archive, resuming a
// previous session when ResumeID is set. Multiple paths or a directory
// are consolidated into a single tar.zst stream first.
func Upload(ctx context.Context, store glacier.Store, opts Options) (*glacier.CommitResult, error) {
	log := opts.Log
	if log == nil {
		log = logging.Default()
	}

	src, cleanup, err := openSource(opts.Paths, log)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	totalSize, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to determine archive size: %w", err)
	}
	if totalSize == 0 {
		return nil, fmt.Errorf("refusing to upload an empty archive")
	}

	var sess *Session
	if opts.ResumeID != "" {
		sess, err = resumeSession(ctx, store, opts, totalSize, src, log)
		if err != nil {
			return nil, err
		}
	} else {
		plan, err := chunk.New(totalSize, opts.PartSizeMB)
		if err != nil {
			return nil, err
		}

		if plan.Whole {
			return uploadWhole(ctx, store, opts, src, totalSize, log)
		}

		if plan.Adjusted {
			requested := int64(opts.PartSizeMB) * units.MiB
			log.Warnf("part size raised from %s to %s to stay within the %d part limit",
				units.BytesSize(float64(requested)), units.BytesSize(float64(plan.PartSize)), chunk.MaxParts)
			if opts.ConfirmAdjust != nil && !opts.ConfirmAdjust(requested, plan.PartSize) {
				return nil, fmt.Errorf("%w: %d MB needs more than %d parts",
					chunk.ErrInvalidPartSize, opts.PartSizeMB, chunk.MaxParts)
			}
		}

		var sessionID string
		err = retry.Do(ctx, retry.DefaultConfig(), func() error {
			var err error
			sessionID, err = store.CreateSession(ctx, opts.Vault, opts.Description, plan.PartSize)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initiate upload session: %w", err)
		}

		sess = NewSession(sessionID, opts.Vault, opts.Description, totalSize, plan.PartSize)
		log.Info().
			Str("session", sessionID).
			Str("size", units.BytesSize(float64(totalSize))).
			Int("parts", sess.NumParts()).
			Msg("initiated multipart upload")
	}

	if opts.Start != nil {
		var pendingBytes int64
		for _, p := range sess.Pending() {
			pendingBytes += p.Len()
		}
		opts.Start(totalSize, sess.NumParts(), totalSize-pendingBytes)
	}

	orch := NewOrchestrator(store, log,
		WithConcurrency(opts.Concurrency),
		WithMaxAttempts(opts.MaxAttempts),
		WithProgress(opts.Progress),
	)
	return orch.Run(ctx, sess, NewSource(src))
}

// resumeSession re-attaches to an existing session: the part size is
// re-read from the service (it is fixed at session creation and the
// caller-supplied value may disagree), the part table is rebuilt, and
// already-uploaded parts are verified against local bytes.
func resumeSession(ctx context.Context, store glacier.Store, opts Options, totalSize int64, src io.ReadSeeker, log *logging.Logger) (*Session, error) {
	var info *glacier.SessionInfo
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		info, err = store.ListSessionParts(ctx, opts.Vault, opts.ResumeID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", opts.ResumeID, err)
	}
	if info.PartSize <= 0 {
		return nil, fmt.Errorf("session %s reports invalid part size %d", opts.ResumeID, info.PartSize)
	}

	sess := NewSession(info.SessionID, opts.Vault, info.Description, totalSize, info.PartSize)
	log.Info().
		Str("session", info.SessionID).
		Int("reported_parts", len(info.Parts)).
		Int("total_parts", sess.NumParts()).
		Msg("resuming upload, verifying already uploaded parts")

	if err := Verify(ctx, sess, NewSource(src), info.Parts, opts.VerifyProgress); err != nil {
		return nil, err
	}

	verified := sess.NumParts() - len(sess.Pending())
	log.Infof("%d of %d parts already uploaded and verified", verified, sess.NumParts())
	return sess, nil
}

// uploadWhole handles the small-object path: archives under the threshold
// go up in a single request instead of a multipart session.
func uploadWhole(ctx context.Context, store glacier.Store, opts Options, src io.ReadSeeker, totalSize int64, log *logging.Logger) (*glacier.CommitResult, error) {
	log.Infof("archive is %s, uploading in one request", units.BytesSize(float64(totalSize)))

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind archive: %w", err)
	}
	body := make([]byte, totalSize)
	if _, err := io.ReadFull(src, body); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var result *glacier.CommitResult
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		result, err = store.UploadWhole(ctx, opts.Vault, opts.Description, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}
	return result, nil
}

// openSource prepares the single byte stream to upload. A single regular
// file is opened directly; anything else (several paths, or a directory)
// is consolidated into a temporary tar.zst first. The returned cleanup
// closes the handle and removes any temp file.
func openSource(paths []string, log *logging.Logger) (*os.File, func(), error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no input paths given")
	}

	single := false
	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to stat %s: %w", paths[0], err)
		}
		single = info.Mode().IsRegular()
	}

	if single {
		f, err := os.Open(paths[0])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", paths[0], err)
		}
		return f, func() { f.Close() }, nil
	}

	log.Infof("consolidating %d input path(s) into a tar.zst archive", len(paths))
	tmp, err := os.CreateTemp("", "vaultup-*.tar.zst")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if err := tarutil.Consolidate(paths, tmp); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to consolidate inputs: %w", err)
	}
	log.Info().Str("archive", tmp.Name()).Msg("inputs consolidated")
	return tmp, cleanup, nil
}
