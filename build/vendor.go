package build

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// VendorPackage embeds the source tree at src (relative to root) into the
// package as pkg (a dotted package name, e.g. "lattice._flash_attn").
// A symlink keeps editable installs in sync with the submodule; wheels and
// Windows builds get a real copy, since symlinks survive neither wheel
// archives nor default Windows privileges.
func VendorPackage(root, pkg, src string, wheel bool) error {
	from := filepath.Join(root, src)
	if _, err := os.Stat(from); err != nil {
		return fmt.Errorf("vendored package source missing at %s, %s", from, submoduleHint)
	}

	to := filepath.Join(append([]string{root}, strings.Split(pkg, ".")...)...)
	if err := removeExisting(to); err != nil {
		return err
	}

	if runtime.GOOS != "windows" && !wheel {
		slog.Debug("vendoring via symlink", "package", pkg, "target", from)
		return os.Symlink(from, to)
	}

	slog.Debug("vendoring via copy", "package", pkg, "target", from)
	return copyTree(from, to)
}

func removeExisting(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if fi.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
