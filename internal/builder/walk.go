package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// walk mirrors srcDir into destDir. Every entry runs in its own goroutine and
// the directory completes once all of them have; the first failure cancels
// the context seen by the rest of the subtree.
func (r *run) walk(ctx context.Context, srcDir, destDir string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	entries, err := os.ReadDir(srcDir)
	r.sem.Release(1)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", srcDir, err)
	}
	r.dirs.Add(1)

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		entry := entry
		srcPath := filepath.Join(srcDir, entry.Name())
		switch {
		case entry.Type().IsRegular():
			g.Go(func() error {
				return r.emit(gctx, srcPath, entry.Name(), destDir)
			})
		case entry.IsDir():
			g.Go(func() error {
				return r.walk(gctx, srcPath, filepath.Join(destDir, entry.Name()))
			})
		default:
			g.Go(func() error {
				return &EntryTypeError{Path: srcPath, Mode: entry.Type()}
			})
		}
	}
	return g.Wait()
}
