// Package progress renders transfer progress. Concurrent part uploads get
// an mpb bar keyed by bytes; sequential phases (resume verification,
// downloads) use simpler bars owned by their callers.
package progress

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UploadUI renders one aggregated progress bar for a multipart upload.
// When stderr is not a terminal the bar is discarded and progress shows
// up only in log lines.
type UploadUI struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	isTerminal bool
}

// NewUploadUI creates the progress renderer for an upload of totalBytes
// across totalParts parts.
func NewUploadUI(totalBytes int64, totalParts int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	bar := p.New(totalBytes,
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Name("uploading "),
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.AverageSpeed(decor.SizeB1024(0), " % .1f", decor.WCSyncSpace),
			decor.AverageETA(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
	)

	return &UploadUI{progress: p, bar: bar, isTerminal: isTerminal}
}

// PartDone records n more bytes as confirmed.
func (u *UploadUI) PartDone(n int64) {
	u.bar.IncrInt64(n)
}

// SkipVerified advances the bar past bytes confirmed during resume
// verification, so a resumed upload starts from the right position.
func (u *UploadUI) SkipVerified(n int64) {
	u.bar.IncrInt64(n)
}

// Wait finalizes rendering. Must be called after the upload finishes or
// fails, or the renderer goroutine leaks.
func (u *UploadUI) Wait() {
	u.bar.Abort(false)
	u.progress.Wait()
}
