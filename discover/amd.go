package discover

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/latticeml/forge/envconfig"
	"github.com/latticeml/forge/logutil"
)

// Used to validate if a given ROCm prefix is usable
var ROCmLibGlobs = []string{"libamdhip64.so*", "libhipblas.so*"}

var errRocmNotFound = errors.New("no usable ROCm installation found")

// FindROCm locates the ROCm/HIP toolchain. Candidate prefixes are tried in
// order: HIP_PATH, ROCM_PATH, then the platform's standard locations.
func FindROCm() (Toolchain, error) {
	var candidates []string
	if p := envconfig.HipPath; p != "" {
		candidates = append(candidates, p)
	}
	if p := envconfig.RocmPath; p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, RocmStandardLocations...)

	for _, home := range candidates {
		slog.Debug("evaluating potential rocm prefix " + home)
		hipcc := filepath.Join(home, "bin", hipccName)
		if _, err := os.Stat(hipcc); err != nil {
			continue
		}
		if !rocmLibUsable(filepath.Join(home, "lib")) {
			slog.Debug("hipcc found but hip libraries are missing", "home", home)
			continue
		}

		version := rocmVersion(home, hipcc)
		slog.Debug("detected ROCm", "home", home, "version", version)
		if gfx, err := GetSupportedGFX(filepath.Join(home, "lib")); err == nil && len(gfx) > 0 {
			slog.Debug("rocblas ships kernels for", "gfx", gfx)
		}
		tc := NewToolchain(BackendROCm, version)
		tc.Home = home
		tc.Compiler = hipcc
		return tc, nil
	}
	return Toolchain{}, errRocmNotFound
}

// Determine if the given ROCm lib directory is usable by checking for
// existence of some glob patterns
func rocmLibUsable(libDir string) bool {
	for _, g := range ROCmLibGlobs {
		pattern := filepath.Join(libDir, g)
		logutil.Trace("evaluating potential rocm lib dir", "pattern", pattern)
		res, _ := filepath.Glob(pattern)
		if len(res) == 0 {
			return false
		}
	}
	return true
}

// rocmVersion reads <home>/.info/version, the marker the ROCm installer
// writes (e.g. "6.0.2-66"), falling back to asking hipcc.
func rocmVersion(home, hipcc string) string {
	if buf, err := os.ReadFile(filepath.Join(home, ".info", "version")); err == nil {
		version, _, _ := strings.Cut(strings.TrimSpace(string(buf)), "-")
		if version != "" {
			return version
		}
	}

	out, err := exec.Command(hipcc, "--version").Output()
	if err != nil {
		slog.Warn("unable to determine ROCm version", "hipcc", hipcc, "error", err)
		return "0.0"
	}
	return parseHipccVersion(string(out))
}

// parseHipccVersion extracts the release from `hipcc --version` output,
// which starts with e.g. "HIP version: 6.0.32830-d62f6a171".
func parseHipccVersion(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if _, after, ok := strings.Cut(line, "HIP version:"); ok {
			version, _, _ := strings.Cut(strings.TrimSpace(after), "-")
			return version
		}
	}
	return "0.0"
}

// GetSupportedGFX reports the gfx architectures the ROCm math libraries
// ship kernels for, based on the tensile library files present.
func GetSupportedGFX(libDir string) ([]string, error) {
	var ret []string
	files, err := filepath.Glob(filepath.Join(libDir, "rocblas", "library", "TensileLibrary_lazy_gfx*.dat"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		ret = append(ret, strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "TensileLibrary_lazy_"), ".dat"))
	}
	return ret, nil
}
