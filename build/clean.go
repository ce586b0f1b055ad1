package build

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Clean removes generated build artifacts: every path matching a wildcard
// listed in the repository's .gitignore, mirroring what a fresh checkout
// would look like. A missing .gitignore cleans nothing.
func Clean(root string) error {
	buf, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	for _, pattern := range strings.Split(string(buf), "\n") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			// Unusable pattern in .gitignore, not ours to fix
			slog.Debug("skipping unparseable ignore pattern", "pattern", pattern, "error", err)
			continue
		}
		for _, match := range matches {
			slog.Debug("removing", "path", match)
			if err := os.RemoveAll(match); err != nil {
				return err
			}
		}
	}
	return nil
}
