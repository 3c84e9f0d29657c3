package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"

	sferrors "github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
)

// Cleaner implements the clean and rmEmpty tasks.
type Cleaner struct {
	fs           afero.Fs
	outputRoot   string
	buildRoot    string
	placeholders []string
	logger       logging.Logger
}

// NewCleaner creates the cleanup tasks for a project filesystem.
func NewCleaner(fsys afero.Fs, outputRoot, buildRoot string, placeholders []string, logger logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Cleaner{
		fs:           fsys,
		outputRoot:   outputRoot,
		buildRoot:    buildRoot,
		placeholders: append([]string(nil), placeholders...),
		logger:       logger,
	}
}

// Clean removes the output root and everything below it. It completes
// before returning, so tasks sequenced after it never see stale output.
func (c *Cleaner) Clean(ctx context.Context) error {
	logger := c.logger.WithComponent("clean")
	logger.Info(ctx, "Starting 'clean'")

	root := cleanRel(c.outputRoot)
	if root == "" || root == "." || root == "/" || strings.HasPrefix(root, "../") || root == ".." {
		return fmt.Errorf("refusing to clean %q: %w", c.outputRoot, sferrors.ErrUnsafePath)
	}
	if b := cleanRel(c.buildRoot); b == root || strings.HasPrefix(b, root+"/") {
		return fmt.Errorf("refusing to clean %q, it contains the build root: %w", c.outputRoot, sferrors.ErrUnsafePath)
	}

	if err := c.fs.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to clean %s: %w", root, err)
	}
	logger.Info(ctx, "Finished 'clean'", "removed", root)
	return nil
}

// RemovePlaceholders deletes the marker files of the template project.
// Paths that do not exist are ignored, so running it twice is harmless.
func (c *Cleaner) RemovePlaceholders(ctx context.Context) error {
	logger := c.logger.WithComponent("rmEmpty")
	logger.Info(ctx, "Starting 'rmEmpty'")

	removed := 0
	for _, p := range c.placeholders {
		rel := cleanRel(p)
		if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
			return fmt.Errorf("refusing to remove %q: %w", p, sferrors.ErrUnsafePath)
		}

		if _, err := c.fs.Stat(rel); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", rel, err)
		}
		if err := c.fs.RemoveAll(rel); err != nil {
			return fmt.Errorf("failed to remove %s: %w", rel, err)
		}
		removed++
		logger.Debug(ctx, "removed "+rel)
	}

	logger.Info(ctx, "Finished 'rmEmpty'", "removed", removed)
	return nil
}

func cleanRel(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "/") {
		return "/"
	}
	return path.Clean(p)
}
