package uploader

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/coldvault/vaultup/internal/chunk"
	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/logging"
	"github.com/coldvault/vaultup/internal/retry"
	"github.com/coldvault/vaultup/internal/treehash"
	"github.com/coldvault/vaultup/internal/util/buffers"
)

const (
	// MaxAttempts is the per-part retry budget. Checksum mismatches and
	// transport errors both consume attempts.
	MaxAttempts = 10

	partRetryInitialDelay = 200 * time.Millisecond
	partRetryMaxDelay     = 15 * time.Second
)

// PartProgress is called once per part as it is confirmed (verified or
// uploaded).
type PartProgress func(part chunk.Part)

// Orchestrator uploads a session's pending parts with a bounded worker
// pool and completes the session once every part is confirmed.
type Orchestrator struct {
	store       glacier.Store
	log         *logging.Logger
	concurrency int
	maxAttempts int
	progress    PartProgress
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the worker pool width. Zero or negative selects
// the default of five workers per CPU.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMaxAttempts overrides the per-part retry budget.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithProgress installs a per-part completion callback.
func WithProgress(fn PartProgress) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// DefaultConcurrency returns the default worker pool width: five workers
// per CPU, matching the I/O-bound nature of part uploads.
func DefaultConcurrency() int {
	return runtime.NumCPU() * 5
}

// NewOrchestrator builds an orchestrator over the given store.
func NewOrchestrator(store glacier.Store, log *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		log:         log,
		concurrency: DefaultConcurrency(),
		maxAttempts: MaxAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run uploads every pending part of the session, then completes it. On
// success it returns the commit result; the root checksum in the result
// has been checked against the locally computed root tree hash. If a part
// exhausts its retries, Run cancels outstanding work, waits for in-flight
// uploads to drain, and returns an *UploadFailedError carrying the session
// id; the remote session is left intact for a later resume.
func (o *Orchestrator) Run(ctx context.Context, sess *Session, src *Source) (*glacier.CommitResult, error) {
	pending := sess.Pending()

	if len(pending) > 0 {
		if err := o.uploadPending(ctx, sess, src, pending); err != nil {
			return nil, err
		}
	}

	digests, complete := sess.Digests()
	if !complete {
		// A gap here is a bookkeeping bug, not a data problem. Rebuild the
		// whole digest list from the source rather than completing with
		// partial data.
		o.log.Warnf("confirmed checksum list incomplete, recomputing all %d parts", sess.NumParts())
		var err error
		digests, err = o.recomputeDigests(ctx, sess, src)
		if err != nil {
			return nil, fmt.Errorf("failed to recompute part checksums: %w", err)
		}
	}

	root := treehash.Combine(digests)

	var result *glacier.CommitResult
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		result, err = o.store.CompleteSession(ctx, sess.Vault, sess.ID, sess.TotalSize, root.Hex())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete session %s: %w", sess.ID, err)
	}

	if result.Checksum != root.Hex() {
		// Every part matched individually, so a disagreement on the whole
		// archive is not retryable.
		return nil, &IntegrityError{
			SessionID:      sess.ID,
			LocalChecksum:  root.Hex(),
			RemoteChecksum: result.Checksum,
		}
	}

	return result, nil
}

// uploadPending drives the worker pool over the pending part set. The
// first part to exhaust its retries triggers cancellation; no new parts
// are started and in-flight attempts are abandoned at the next context
// check.
func (o *Orchestrator) uploadPending(ctx context.Context, sess *Session, src *Source, pending []chunk.Part) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := o.concurrency
	if concurrency > len(pending) {
		concurrency = len(pending)
	}

	o.log.Info().
		Int("parts", len(pending)).
		Int("workers", concurrency).
		Str("session", sess.ID).
		Msg("uploading parts")

	jobChan := make(chan chunk.Part)
	errChan := make(chan error, 1)
	pool := buffers.NewPool(sess.PartSize)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for part := range jobChan {
				if ctx.Err() != nil {
					return
				}
				if err := o.uploadPart(ctx, sess, src, pool, part); err != nil {
					sess.markFailed(part.Index)
					select {
					case errChan <- err:
					default:
					}
					cancel()
					return
				}
				if o.progress != nil {
					o.progress(part)
				}
			}
		}()
	}

	// Feed parts in index order. Completion order is up to the workers;
	// only the digest ordering matters, and that is by index.
	go func() {
		defer close(jobChan)
		for _, part := range pending {
			select {
			case jobChan <- part:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	select {
	case err := <-errChan:
		return &UploadFailedError{SessionID: sess.ID, Err: err}
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// uploadPart reads one part under the source lock, hashes it outside the
// lock, and uploads it with a bounded retry budget. A remote checksum that
// disagrees with the local digest counts as a failed attempt, same as a
// transport error.
func (o *Orchestrator) uploadPart(ctx context.Context, sess *Session, src *Source, pool *buffers.Pool, part chunk.Part) error {
	bufPtr := pool.Get()
	defer pool.Put(bufPtr)

	data := (*bufPtr)[:part.Len()]
	if err := src.ReadRange(part.Start, data); err != nil {
		return &PartError{Index: part.Index, Attempts: 0, Err: err}
	}

	local := treehash.Part(data)
	r := glacier.ByteRange{Start: part.Start, End: part.End, Total: sess.TotalSize}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &PartError{Index: part.Index, Attempts: attempt - 1, Err: err}
		}

		remoteSum, err := o.store.UploadPart(ctx, sess.Vault, sess.ID, r, data)
		if err == nil {
			if remoteSum == local.Hex() {
				sess.markUploaded(part.Index, local)
				return nil
			}
			lastErr = fmt.Errorf("%w: part %d, local %s, remote %s",
				errChecksumMismatch, part.Index, local.Hex(), remoteSum)
			o.log.Warnf("part %d checksum mismatch on attempt %d, will retry", part.Index, attempt)
		} else {
			if errors.Is(err, glacier.ErrNotFound) || errors.Is(err, context.Canceled) {
				// The session is gone or the run is shutting down; more
				// attempts cannot help.
				return &PartError{Index: part.Index, Attempts: attempt, Err: err}
			}
			lastErr = err
			o.log.Warnf("part %d upload error on attempt %d: %v", part.Index, attempt, err)
		}

		if attempt < o.maxAttempts {
			backoff := retry.Backoff(attempt, partRetryInitialDelay, partRetryMaxDelay)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &PartError{Index: part.Index, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return &PartError{Index: part.Index, Attempts: o.maxAttempts, Err: lastErr}
}

// recomputeDigests re-reads the whole source sequentially and rebuilds
// every part digest from scratch.
func (o *Orchestrator) recomputeDigests(ctx context.Context, sess *Session, src *Source) ([]treehash.Digest, error) {
	pool := buffers.NewPool(sess.PartSize)
	parts := chunk.Split(sess.TotalSize, sess.PartSize)
	digests := make([]treehash.Digest, len(parts))

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bufPtr := pool.Get()
		data := (*bufPtr)[:part.Len()]
		if err := src.ReadRange(part.Start, data); err != nil {
			pool.Put(bufPtr)
			return nil, err
		}
		digests[part.Index] = treehash.Part(data)
		pool.Put(bufPtr)
	}
	return digests, nil
}
