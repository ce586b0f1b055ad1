package discover

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/latticeml/forge/envconfig"
)

// Kernels use features unavailable before CUDA 11, so refuse anything older
// (string value to allow ldflags overrides at build time)
var CudaMinimumVersion = "v11.0"

var errNvccNotFound = fmt.Errorf("nvcc not found, set CUDA_HOME to the toolkit location")

// FindCUDA locates the CUDA toolkit and probes its version by running nvcc.
func FindCUDA() (Toolchain, error) {
	nvcc, home, err := findNvcc()
	if err != nil {
		return Toolchain{}, err
	}

	out, err := exec.Command(nvcc, "--version").Output()
	if err != nil {
		return Toolchain{}, fmt.Errorf("probe %s: %w", nvcc, err)
	}

	tc, err := parseNvccVersion(string(out))
	if err != nil {
		return Toolchain{}, fmt.Errorf("probe %s: %w", nvcc, err)
	}
	tc.Home = home
	tc.Compiler = nvcc

	if semver.Compare("v"+tc.Version, CudaMinimumVersion) < 0 {
		return Toolchain{}, fmt.Errorf("CUDA toolkit %s is too old, need at least %s", tc.Version, strings.TrimPrefix(CudaMinimumVersion, "v"))
	}

	slog.Debug("detected CUDA toolkit", "home", home, "version", tc.Version)
	return tc, nil
}

func findNvcc() (nvcc, home string, err error) {
	if home := envconfig.CudaHome; home != "" {
		nvcc := filepath.Join(home, "bin", nvccName)
		if _, err := os.Stat(nvcc); err == nil {
			return nvcc, home, nil
		}
		slog.Warn("CUDA_HOME is set but contains no nvcc", "home", home)
	}

	nvcc, err = exec.LookPath(nvccName)
	if err != nil {
		return "", "", errNvccNotFound
	}
	// <home>/bin/nvcc
	return nvcc, filepath.Dir(filepath.Dir(nvcc)), nil
}

// parseNvccVersion extracts the toolkit release from `nvcc --version` output,
// which reports e.g. "Cuda compilation tools, release 12.1, V12.1.105".
func parseNvccVersion(raw string) (Toolchain, error) {
	fields := strings.Fields(raw)
	for i, f := range fields {
		if f != "release" || i+1 >= len(fields) {
			continue
		}
		release := strings.TrimSuffix(fields[i+1], ",")
		majorStr, minorStr, ok := strings.Cut(release, ".")
		if !ok {
			return Toolchain{}, fmt.Errorf("unexpected nvcc release %q", release)
		}
		if _, err := strconv.Atoi(majorStr); err != nil {
			return Toolchain{}, fmt.Errorf("unexpected nvcc release %q", release)
		}
		if _, err := strconv.Atoi(minorStr); err != nil {
			return Toolchain{}, fmt.Errorf("unexpected nvcc release %q", release)
		}
		return NewToolchain(BackendCUDA, release), nil
	}
	return Toolchain{}, fmt.Errorf("no release marker in nvcc version output")
}
