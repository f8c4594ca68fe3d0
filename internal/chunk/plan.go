// Package chunk plans how an archive is split into fixed-size parts for
// multipart upload.
package chunk

import (
	"errors"
	"fmt"

	"github.com/docker/go-units"
)

const (
	// MaxParts is the Glacier limit on parts per multipart upload.
	MaxParts = 10000

	// MinPartSizeMB and MaxPartSizeMB bound the accepted part size, in
	// megabytes. The value must also be a power of two.
	MinPartSizeMB = 1
	MaxPartSizeMB = 4096

	// WholeUploadThreshold is the size below which an archive is sent as a
	// single whole-object request instead of a multipart upload.
	WholeUploadThreshold = 4096
)

// ErrInvalidPartSize reports a part size that is not a power of two or is
// out of the accepted range.
var ErrInvalidPartSize = errors.New("part size must be a power of 2 between 1 and 4096 MB")

// ErrTooLarge reports an archive too big for any valid part size.
var ErrTooLarge = errors.New("archive exceeds the maximum uploadable size")

// Part is one contiguous byte range of the archive. Start and End are
// inclusive byte offsets.
type Part struct {
	Index int
	Start int64
	End   int64
}

// Len returns the part's length in bytes.
func (p Part) Len() int64 {
	return p.End - p.Start + 1
}

// Plan is the result of planning a multipart upload.
type Plan struct {
	TotalSize int64
	PartSize  int64
	Parts     []Part

	// Whole is set when the archive is below WholeUploadThreshold and
	// should be uploaded in a single request; Parts is empty in that case.
	Whole bool

	// Adjusted is set when the requested part size would have exceeded
	// MaxParts and a larger power of two was chosen instead. Callers may
	// want to confirm before proceeding with the changed size.
	Adjusted bool
}

// New plans the parts for an archive of totalSize bytes using the
// requested part size in megabytes. The part size must be a power of two
// in [1, 4096]. If the archive needs more than MaxParts parts at the
// requested size, the smallest valid power of two that fits is selected
// and Adjusted is set.
func New(totalSize int64, partSizeMB int) (*Plan, error) {
	if !isPowerOfTwo(partSizeMB) || partSizeMB < MinPartSizeMB || partSizeMB > MaxPartSizeMB {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPartSize, partSizeMB)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("invalid archive size %d", totalSize)
	}

	if totalSize < WholeUploadThreshold {
		return &Plan{TotalSize: totalSize, Whole: true}, nil
	}

	partSize := int64(partSizeMB) * units.MiB
	adjusted := false
	for numParts(totalSize, partSize) > MaxParts {
		if partSize >= int64(MaxPartSizeMB)*units.MiB {
			return nil, fmt.Errorf("%w: %d bytes needs more than %d parts of %d MB",
				ErrTooLarge, totalSize, MaxParts, MaxPartSizeMB)
		}
		partSize *= 2
		adjusted = true
	}

	return &Plan{
		TotalSize: totalSize,
		PartSize:  partSize,
		Parts:     Split(totalSize, partSize),
		Adjusted:  adjusted,
	}, nil
}

// Split derives the ordered part list for a known total size and part
// size in bytes. Used directly when resuming, where the part size comes
// from the remote session rather than from flags.
func Split(totalSize, partSize int64) []Part {
	parts := make([]Part, 0, numParts(totalSize, partSize))
	for start := int64(0); start < totalSize; start += partSize {
		end := start + partSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		parts = append(parts, Part{Index: len(parts), Start: start, End: end})
	}
	return parts
}

func numParts(totalSize, partSize int64) int64 {
	return (totalSize + partSize - 1) / partSize
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
