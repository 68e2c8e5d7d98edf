package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conveyor/internal/interfaces"
	"github.com/ternarybob/conveyor/internal/models"
)

// Options is the per-job configuration for the copy processor
type Options struct {
	OutputDir string `json:"output_dir"`
	Overwrite bool   `json:"overwrite"`
}

// CopyProcessor is the built-in item processor: it copies each item, treated
// as a source file path, into the job's output directory. It exists so the
// engine can run end to end without an external processor plugged in.
type CopyProcessor struct {
	logger arbor.ILogger
}

var _ interfaces.ItemProcessor = (*CopyProcessor)(nil)

// NewCopyProcessor creates the built-in file copy processor
func NewCopyProcessor(logger arbor.ILogger) *CopyProcessor {
	return &CopyProcessor{logger: logger}
}

// Process copies one source file into the output directory and returns the
// destination path as the single artifact
func (p *CopyProcessor) Process(ctx context.Context, item models.Item, config models.JobConfig) ([]string, error) {
	opts, ok := config.(*Options)
	if !ok {
		return nil, fmt.Errorf("unexpected job config type %T", config)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := string(item)
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source is a directory: %s", src)
	}

	dest := filepath.Join(opts.OutputDir, filepath.Base(src))
	if !opts.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			return nil, fmt.Errorf("destination already exists: %s", dest)
		}
	}

	if err := copyFile(src, dest, info.Mode()); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("src", src).
		Str("dest", dest).
		Msg("Item copied")

	return []string{dest}, nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy contents: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("flush destination: %w", err)
	}

	return nil
}
