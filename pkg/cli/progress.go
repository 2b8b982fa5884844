package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/daq-spack/bcpub/pkg/publish"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

// batchProgress draws one bar for a batch on stderr. Log lines would tear
// the bar, so while it is shown they go to a file in the batch log
// directory.
type batchProgress struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	logFile  *os.File
	failed   atomic.Int64
	current  atomic.Value
}

func newBatchProgress(id string, total int, logDir string) (*batchProgress, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("Failed to create %s: %w", logDir, err)
	}
	logFile, err := os.Create(filepath.Join(logDir, "bcpub.log"))
	if err != nil {
		return nil, fmt.Errorf("Failed to create batch log: %w", err)
	}
	console.Infof("Batch %s: logging to %s", id, logFile.Name())

	b := &batchProgress{logFile: logFile}
	b.current.Store("")
	b.progress = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(40),
		mpb.WithRefreshRate(180*time.Millisecond),
	)
	b.bar = b.progress.New(int64(total),
		mpb.BarStyle().Rbound("|"),
		mpb.PrependDecorators(
			decor.Name("batch "+id[:8]+" "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
			decor.Any(func(decor.Statistics) string {
				return b.status()
			}),
		),
	)
	console.SetOutput(logFile)
	return b, nil
}

func (b *batchProgress) status() string {
	status := fmt.Sprintf(" ] %s", b.current.Load())
	if failed := b.failed.Load(); failed > 0 {
		status += fmt.Sprintf(" (%d failed)", failed)
	}
	return status
}

func (b *batchProgress) done(i int, r publish.Result) {
	if !r.OK() {
		b.failed.Add(1)
	}
	b.current.Store(r.Coordinate.Label())
	b.bar.Increment()
}

// wait blocks until the bar is drawn complete, then restores log output.
func (b *batchProgress) wait() {
	b.progress.Wait()
	console.SetOutput(nil)
	if err := b.logFile.Close(); err != nil {
		console.Warnf("Failed to close batch log: %s", err)
	}
	console.Infof("Batch log written to %s", b.logFile.Name())
}
