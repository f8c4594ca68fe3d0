// Package jobs drives Glacier's asynchronous retrieval jobs: initiating
// inventory and archive retrievals, polling their status, and downloading
// completed job output. Large archives are downloaded in concurrent
// chunks and consolidated, skipping chunks already on disk.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"

	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/logging"
	"github.com/coldvault/vaultup/internal/retry"
	"github.com/coldvault/vaultup/internal/treehash"
)

// downloadChunkSize is the slice size for chunked archive downloads.
// 32 MiB is a multiple of the tree hash leaf size, so the service returns
// a verifiable checksum for each chunk.
const downloadChunkSize = 32 * units.MiB

// ErrJobNotReady reports a job that has not completed yet.
type ErrJobNotReady struct {
	JobID      string
	StatusCode string
}

func (e *ErrJobNotReady) Error() string {
	return fmt.Sprintf("job %s is not completed (status %s)", e.JobID, e.StatusCode)
}

// Downloader fetches completed retrieval job output.
type Downloader struct {
	store       glacier.JobStore
	log         *logging.Logger
	concurrency int
	chunkSize   int64
}

// NewDownloader builds a Downloader. Zero concurrency selects the number
// of CPUs.
func NewDownloader(store glacier.JobStore, log *logging.Logger, concurrency int) *Downloader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logging.Default()
	}
	return &Downloader{store: store, log: log, concurrency: concurrency, chunkSize: downloadChunkSize}
}

// FetchInventory streams a completed inventory retrieval job's output
// (JSON or CSV, as requested at initiation) to w.
func (d *Downloader) FetchInventory(ctx context.Context, vault, jobID string, w io.Writer) error {
	desc, err := d.describeCompleted(ctx, vault, jobID)
	if err != nil {
		return err
	}
	if desc.Action != "InventoryRetrieval" {
		return fmt.Errorf("job %s is a %s job, not an inventory retrieval", jobID, desc.Action)
	}

	body, _, err := d.store.GetJobOutput(ctx, vault, jobID, nil)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("failed to read inventory output: %w", err)
	}
	return nil
}

// FetchArchive downloads a completed archive retrieval job's output to
// outPath. Archives larger than one chunk are fetched concurrently into a
// sidecar parts directory and then consolidated; chunks already present
// from an interrupted run are not fetched again.
func (d *Downloader) FetchArchive(ctx context.Context, vault, jobID, outPath string) error {
	desc, err := d.describeCompleted(ctx, vault, jobID)
	if err != nil {
		return err
	}
	if desc.Action != "ArchiveRetrieval" {
		return fmt.Errorf("job %s is a %s job, not an archive retrieval", jobID, desc.Action)
	}

	size := desc.ArchiveSize
	d.log.Info().
		Str("job", jobID).
		Str("size", units.BytesSize(float64(size))).
		Msg("downloading archive")

	if size <= d.chunkSize {
		return d.fetchWhole(ctx, vault, jobID, outPath, size)
	}
	if err := d.fetchChunked(ctx, vault, jobID, outPath, size); err != nil {
		return err
	}
	return d.verifyDownload(outPath, desc.TreeHash)
}

func (d *Downloader) describeCompleted(ctx context.Context, vault, jobID string) (*glacier.JobStatus, error) {
	var desc *glacier.JobStatus
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		desc, err = d.store.DescribeJob(ctx, vault, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !desc.Completed {
		return nil, &ErrJobNotReady{JobID: jobID, StatusCode: desc.StatusCode}
	}
	if !desc.Succeeded() {
		return nil, fmt.Errorf("job %s finished unsuccessfully: %s %s", jobID, desc.StatusCode, desc.StatusMessage)
	}
	return desc, nil
}

func (d *Downloader) fetchWhole(ctx context.Context, vault, jobID, outPath string, size int64) error {
	body, _, err := d.store.GetJobOutput(ctx, vault, jobID, nil)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	bar := progressbar.DefaultBytes(size, "downloading")
	if _, err := io.Copy(io.MultiWriter(f, bar), body); err != nil {
		return fmt.Errorf("failed to download archive: %w", err)
	}
	return f.Close()
}

func (d *Downloader) fetchChunked(ctx context.Context, vault, jobID, outPath string, size int64) error {
	partsDir := outPath + ".parts"
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create parts directory: %w", err)
	}

	type job struct {
		index int
		r     glacier.ByteRange
	}
	var jobList []job
	for start := int64(0); start < size; start += d.chunkSize {
		end := start + d.chunkSize - 1
		if end > size-1 {
			end = size - 1
		}
		jobList = append(jobList, job{
			index: len(jobList),
			r:     glacier.ByteRange{Start: start, End: end, Total: size},
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bar := progressbar.Default(int64(len(jobList)), "downloading parts")
	jobChan := make(chan job)
	errChan := make(chan error, 1)

	var wg sync.WaitGroup
	workers := d.concurrency
	if workers > len(jobList) {
		workers = len(jobList)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if ctx.Err() != nil {
					return
				}
				if err := d.fetchChunk(ctx, vault, jobID, partsDir, j.index, j.r); err != nil {
					select {
					case errChan <- err:
					default:
					}
					cancel()
					return
				}
				bar.Add(1)
			}
		}()
	}

	go func() {
		defer close(jobChan)
		for _, j := range jobList {
			select {
			case jobChan <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	select {
	case err := <-errChan:
		return err
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := consolidateChunks(outPath, partsDir, len(jobList)); err != nil {
		return err
	}
	return os.RemoveAll(partsDir)
}

// fetchChunk downloads one chunk into the parts directory, verifying the
// service-reported tree hash for the range. A chunk file already present
// with the right size is left alone, so an interrupted download resumes
// where it stopped.
func (d *Downloader) fetchChunk(ctx context.Context, vault, jobID, partsDir string, index int, r glacier.ByteRange) error {
	chunkPath := filepath.Join(partsDir, fmt.Sprintf("part-%06d", index))
	want := r.End - r.Start + 1
	if info, err := os.Stat(chunkPath); err == nil && info.Size() == want {
		d.log.Debugf("chunk %d already downloaded, skipping", index)
		return nil
	}

	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		body, checksum, err := d.store.GetJobOutput(ctx, vault, jobID, &r)
		if err != nil {
			return err
		}
		defer body.Close()

		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read chunk %d: %w", index, err)
		}
		if int64(len(data)) != want {
			return fmt.Errorf("chunk %d short: got %d bytes, want %d", index, len(data), want)
		}
		if checksum != "" && treehash.Part(data).Hex() != checksum {
			return fmt.Errorf("chunk %d tree hash mismatch", index)
		}
		if err := os.WriteFile(chunkPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", index, err)
		}
		return nil
	})
}

func consolidateChunks(outPath, partsDir string, numChunks int) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	bar := progressbar.Default(int64(numChunks), "consolidating parts")
	for i := 0; i < numChunks; i++ {
		chunkPath := filepath.Join(partsDir, fmt.Sprintf("part-%06d", i))
		part, err := os.Open(chunkPath)
		if err != nil {
			return fmt.Errorf("failed to open chunk %d: %w", i, err)
		}
		if _, err := io.Copy(f, part); err != nil {
			part.Close()
			return fmt.Errorf("failed to append chunk %d: %w", i, err)
		}
		part.Close()
		bar.Add(1)
	}
	return f.Close()
}

// verifyDownload recomputes the downloaded file's full tree hash and
// compares it to the one the job reported.
func (d *Downloader) verifyDownload(outPath, wantChecksum string) error {
	if wantChecksum == "" {
		return nil
	}

	f, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("failed to reopen %s for verification: %w", outPath, err)
	}
	defer f.Close()

	var leaves []treehash.Digest
	buf := make([]byte, treehash.LeafSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			leaves = append(leaves, treehash.Leaf(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s for verification: %w", outPath, err)
		}
	}

	got := treehash.Combine(leaves).Hex()
	if got != wantChecksum {
		return fmt.Errorf("downloaded archive tree hash mismatch: got %s, want %s", got, wantChecksum)
	}
	d.log.Info().Str("checksum", got).Msg("archive tree hash verified")
	return nil
}
