package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/logging"
	"github.com/coldvault/vaultup/internal/treehash"
)

// fakeJobStore serves a single completed job from memory.
type fakeJobStore struct {
	mu sync.Mutex

	status  glacier.JobStatus
	output  []byte
	descErr error

	// failBefore makes the next N ranged fetches of the given start offset
	// fail with a transport error.
	failBefore map[int64]int

	rangedCalls []glacier.ByteRange
	fullCalls   int
}

func (f *fakeJobStore) InitiateInventoryJob(ctx context.Context, vault, format, description string) (string, error) {
	return "job-1", nil
}

func (f *fakeJobStore) InitiateArchiveJob(ctx context.Context, vault, archiveID, description, tier string) (string, error) {
	return "job-1", nil
}

func (f *fakeJobStore) DescribeJob(ctx context.Context, vault, jobID string) (*glacier.JobStatus, error) {
	if f.descErr != nil {
		return nil, f.descErr
	}
	status := f.status
	return &status, nil
}

func (f *fakeJobStore) GetJobOutput(ctx context.Context, vault, jobID string, r *glacier.ByteRange) (io.ReadCloser, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r == nil {
		f.fullCalls++
		return io.NopCloser(bytes.NewReader(f.output)), "", nil
	}
	if n := f.failBefore[r.Start]; n > 0 {
		f.failBefore[r.Start] = n - 1
		return nil, "", errors.New("connection reset by peer")
	}
	f.rangedCalls = append(f.rangedCalls, *r)
	slice := f.output[r.Start : r.End+1]
	return io.NopCloser(bytes.NewReader(slice)), treehash.Part(slice).Hex(), nil
}

func archiveJobStore(data []byte) *fakeJobStore {
	return &fakeJobStore{
		status: glacier.JobStatus{
			JobID:       "job-1",
			Action:      "ArchiveRetrieval",
			StatusCode:  "Succeeded",
			Completed:   true,
			ArchiveSize: int64(len(data)),
			TreeHash:    treehash.Part(data).Hex(),
		},
		output:     data,
		failBefore: make(map[int64]int),
	}
}

func testDownloader(store glacier.JobStore, chunkSize int64) *Downloader {
	d := NewDownloader(store, logging.New(io.Discard), 2)
	d.chunkSize = chunkSize
	return d
}

func TestFetchInventory(t *testing.T) {
	inventory := []byte(`{"ArchiveList":[]}`)
	store := &fakeJobStore{
		status: glacier.JobStatus{
			JobID:      "job-1",
			Action:     "InventoryRetrieval",
			StatusCode: "Succeeded",
			Completed:  true,
		},
		output: inventory,
	}

	var buf bytes.Buffer
	d := testDownloader(store, 1024)
	if err := d.FetchInventory(context.Background(), "vault", "job-1", &buf); err != nil {
		t.Fatalf("FetchInventory() error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), inventory) {
		t.Errorf("inventory output = %q, want %q", buf.Bytes(), inventory)
	}
}

func TestFetchInventoryWrongJobType(t *testing.T) {
	store := archiveJobStore([]byte("data"))
	d := testDownloader(store, 1024)
	err := d.FetchInventory(context.Background(), "vault", "job-1", io.Discard)
	if err == nil {
		t.Fatal("FetchInventory() accepted an archive retrieval job")
	}
}

func TestFetchJobNotReady(t *testing.T) {
	store := archiveJobStore([]byte("data"))
	store.status.Completed = false
	store.status.StatusCode = "InProgress"

	d := testDownloader(store, 1024)
	err := d.FetchArchive(context.Background(), "vault", "job-1", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("FetchArchive() succeeded on an in-progress job")
	}
	var notReady *ErrJobNotReady
	if !errors.As(err, &notReady) {
		t.Fatalf("error type = %T, want *ErrJobNotReady", err)
	}
	if notReady.StatusCode != "InProgress" {
		t.Errorf("StatusCode = %s, want InProgress", notReady.StatusCode)
	}
}

func TestFetchJobFailed(t *testing.T) {
	store := archiveJobStore([]byte("data"))
	store.status.StatusCode = "Failed"
	store.status.StatusMessage = "archive deleted"

	d := testDownloader(store, 1024)
	err := d.FetchArchive(context.Background(), "vault", "job-1", filepath.Join(t.TempDir(), "out"))
	if err == nil || !strings.Contains(err.Error(), "unsuccessfully") {
		t.Fatalf("FetchArchive() error = %v, want job failure", err)
	}
}

func TestFetchArchiveWhole(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, 800)
	store := archiveJobStore(data)
	out := filepath.Join(t.TempDir(), "archive.bin")

	d := testDownloader(store, 1024)
	if err := d.FetchArchive(context.Background(), "vault", "job-1", out); err != nil {
		t.Fatalf("FetchArchive() error: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ from job output")
	}
	if store.fullCalls != 1 || len(store.rangedCalls) != 0 {
		t.Errorf("calls = %d full, %d ranged, want 1 full only", store.fullCalls, len(store.rangedCalls))
	}
}

func TestFetchArchiveChunked(t *testing.T) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i * 13)
	}
	store := archiveJobStore(data)
	out := filepath.Join(t.TempDir(), "archive.bin")

	d := testDownloader(store, 1024)
	if err := d.FetchArchive(context.Background(), "vault", "job-1", out); err != nil {
		t.Fatalf("FetchArchive() error: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("consolidated bytes differ from job output")
	}
	if len(store.rangedCalls) != 3 {
		t.Errorf("ranged calls = %d, want 3", len(store.rangedCalls))
	}
	if _, err := os.Stat(out + ".parts"); !os.IsNotExist(err) {
		t.Error("parts directory left behind after consolidation")
	}
}

func TestFetchArchiveChunkedRetriesTransientErrors(t *testing.T) {
	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i)
	}
	store := archiveJobStore(data)
	store.failBefore[1024] = 2
	out := filepath.Join(t.TempDir(), "archive.bin")

	d := testDownloader(store, 1024)
	if err := d.FetchArchive(context.Background(), "vault", "job-1", out); err != nil {
		t.Fatalf("FetchArchive() error: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("consolidated bytes differ from job output")
	}
}

func TestFetchArchiveChunkedSkipsExistingChunks(t *testing.T) {
	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i * 3)
	}
	store := archiveJobStore(data)
	out := filepath.Join(t.TempDir(), "archive.bin")

	// Chunk 0 survived an interrupted run.
	partsDir := out + ".parts"
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partsDir, "part-000000"), data[:1024], 0o644); err != nil {
		t.Fatal(err)
	}

	d := testDownloader(store, 1024)
	if err := d.FetchArchive(context.Background(), "vault", "job-1", out); err != nil {
		t.Fatalf("FetchArchive() error: %v", err)
	}

	for _, r := range store.rangedCalls {
		if r.Start == 0 {
			t.Error("chunk 0 was re-fetched despite being on disk")
		}
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("consolidated bytes differ from job output")
	}
}

func TestConsolidateChunksMissingChunk(t *testing.T) {
	dir := t.TempDir()
	partsDir := filepath.Join(dir, "out.parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partsDir, "part-000000"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := consolidateChunks(filepath.Join(dir, "out"), partsDir, 2)
	if err == nil {
		t.Fatal("consolidateChunks() succeeded with a missing chunk")
	}
	if !strings.Contains(err.Error(), "chunk 1") {
		t.Errorf("error = %v, want mention of chunk 1", err)
	}
}

func TestVerifyDownloadMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := testDownloader(archiveJobStore(nil), 1024)
	wrong := treehash.Leaf([]byte("other")).Hex()
	if err := d.verifyDownload(path, wrong); err == nil {
		t.Error("verifyDownload() accepted a wrong checksum")
	}
	right := treehash.Part([]byte("payload")).Hex()
	if err := d.verifyDownload(path, right); err != nil {
		t.Errorf("verifyDownload() error on matching checksum: %v", err)
	}
	if err := d.verifyDownload(path, ""); err != nil {
		t.Errorf("verifyDownload() error with no expected checksum: %v", err)
	}
}

func TestErrJobNotReadyMessage(t *testing.T) {
	err := &ErrJobNotReady{JobID: "j", StatusCode: "InProgress"}
	want := fmt.Sprintf("job %s is not completed (status %s)", "j", "InProgress")
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
