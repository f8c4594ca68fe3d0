package uploader

import (
	"context"
	"fmt"

	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/treehash"
	"github.com/coldvault/vaultup/internal/util/buffers"
)

// VerifyProgress is called after each remote part is checked.
type VerifyProgress func(checked, total int)

// Verify classifies the parts of a resumed session against the remote
// part list: each remote-reported part's byte range is re-read locally,
// tree-hashed, and compared to the remote checksum. A match marks the part
// Verified and excludes it from the upload set; a mismatch leaves the part
// Pending so the stale remote copy gets overwritten. Parts never reported
// remotely stay Pending. Nothing on the service is mutated.
func Verify(ctx context.Context, sess *Session, src *Source, remoteParts []glacier.RemotePart, progress VerifyProgress) error {
	pool := buffers.NewPool(sess.PartSize)

	for i, rp := range remoteParts {
		if err := ctx.Err(); err != nil {
			return err
		}

		index, ok := sess.partIndexFor(rp.Range)
		if !ok {
			// A range that doesn't line up with our plan cannot be
			// trusted; the covering parts stay Pending.
			continue
		}

		length := rp.Range.End - rp.Range.Start + 1
		bufPtr := pool.Get()
		buf := (*bufPtr)[:length]
		if err := src.ReadRange(rp.Range.Start, buf); err != nil {
			pool.Put(bufPtr)
			return fmt.Errorf("failed to read part %d for verification: %w", index, err)
		}
		local := treehash.Part(buf)
		pool.Put(bufPtr)

		if remote, ok := treehash.ParseHex(rp.Checksum); ok && remote == local {
			sess.markVerified(index, local)
		}

		if progress != nil {
			progress(i+1, len(remoteParts))
		}
	}
	return nil
}

// partIndexFor maps a remote-reported byte range onto a planned part
// index. The range must start on a part boundary and end exactly where
// the planned part ends.
func (s *Session) partIndexFor(r glacier.ByteRange) (int, bool) {
	if r.Start%s.PartSize != 0 {
		return 0, false
	}
	index := int(r.Start / s.PartSize)
	if index >= len(s.parts) {
		return 0, false
	}
	if s.parts[index].End != r.End {
		return 0, false
	}
	return index, true
}
