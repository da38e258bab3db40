package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// gitignoreContent keeps cache entries and in-flight temp files out of git
// when the cache directory lives inside a repository.
const gitignoreContent = `# jsoncache entries (auto-generated)
*.cache.json
*.cache.json.*.tmp
`

// GitignoreContent returns the .gitignore content written by EnsureGitignore.
func GitignoreContent() string {
	return gitignoreContent
}

// EnsureCacheDir creates the cache directory. The cache itself never creates
// it, so this is the explicit setup step.
func EnsureCacheDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return nil
}

// EnsureGitignore creates a .gitignore in dir if one does not already exist.
// Returns true if a new file was created. An existing .gitignore is never
// overwritten.
func EnsureGitignore(dir string) (bool, error) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	_, err := os.Stat(gitignorePath)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking .gitignore at %s: %w", gitignorePath, err)
	}

	if err = EnsureCacheDir(dir); err != nil {
		return false, err
	}

	//nolint:gosec // .gitignore must be world-readable (0644).
	if writeErr := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0o644); writeErr != nil {
		return false, fmt.Errorf("writing .gitignore at %s: %w", gitignorePath, writeErr)
	}
	return true, nil
}
