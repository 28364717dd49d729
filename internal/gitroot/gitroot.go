// Package gitroot locates the git worktree enclosing a directory.
package gitroot

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Find returns the absolute root of the worktree containing path, searching
// parent directories for a .git entry.
func Find(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open git repository from %s: %w", abs, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("resolve worktree for %s: %w", abs, err)
	}
	return wt.Filesystem.Root(), nil
}
