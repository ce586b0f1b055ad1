// Package version derives the package version for a build: the static
// version.txt, an optional CI override, and a git-based local suffix when
// building from a checkout.
package version

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/latticeml/forge/envconfig"
)

// Version of the forge binary itself, set via ldflags at release time.
var Version = "0.0.0"

// Resolve computes the version string for the package rooted at root.
// FORGE_BUILD_VERSION short-circuits everything (CI sets it when building
// wheels); otherwise version.txt plus a local suffix for git checkouts.
func Resolve(root string) (string, error) {
	if envconfig.BuildVersion != "" {
		return envconfig.BuildVersion, nil
	}

	buf, err := os.ReadFile(filepath.Join(root, "version.txt"))
	if err != nil {
		return "", fmt.Errorf("read version file: %w", err)
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(buf)), "\n")

	suffix, err := localSuffix(root)
	if err != nil {
		return "", err
	}
	return version + suffix, nil
}

// localSuffix returns "+<shorthash>.d<yyyymmdd>" for git checkouts and ""
// otherwise (most likely building from a source distribution).
func localSuffix(root string) (string, error) {
	if fi, err := os.Stat(filepath.Join(root, ".git")); err != nil || !fi.IsDir() {
		return "", nil
	}

	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}

	return fmt.Sprintf("+%s.d%s", strings.TrimSpace(string(out)), time.Now().Format("20060102")), nil
}

// Submodule reports the version of a vendored submodule: git describe when
// the checkout allows it, the submodule's own version.txt otherwise, and a
// sentinel when neither works.
func Submodule(dir string) string {
	cmd := exec.Command("git", "describe", "--tags", "--always")
	cmd.Dir = dir
	if out, err := cmd.Output(); err == nil {
		return strings.TrimSpace(string(out))
	}

	if buf, err := os.ReadFile(filepath.Join(dir, "version.txt")); err == nil {
		return strings.TrimSpace(string(buf))
	}
	return "v?"
}

// Stamp renders the version marker written into the installed package.
func Stamp(version string) string {
	content := version + "\n"
	if tag := envconfig.GitTag; tag != "" {
		content += "git_tag: " + tag + "\n"
	}
	return content
}
