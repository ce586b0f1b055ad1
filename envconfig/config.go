package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/latticeml/forge/logutil"
)

var (
	// Set via FORGE_BUILD_TYPE in the environment
	BuildType string
	// Set via FORGE_BUILD_VERSION in the environment (CI override)
	BuildVersion string
	// Set via FORGE_GIT_TAG in the environment
	GitTag string
	// Set via FORGE_DISABLE_FLASH_ATTN in the environment
	DisableFlashAttn bool
	// Set via FORGE_FORCE_OLD_CK_KERNEL in the environment
	ForceOldCKKernel bool
	// Set via FORGE_FORCE_CUDA in the environment
	ForceCUDA bool
	// Set via FORGE_ENABLE_DEBUG_ASSERTIONS in the environment
	DebugAssertions bool
	// Set via FORGE_PACKAGE_FROM in the environment
	PackageFrom string
	// Set via FORGE_DEBUG in the environment, 2 enables trace logging
	Debug int
	// Set via NVCC_FLAGS in the environment, passed through verbatim
	NvccFlags string
	// Set via LATTICE_CUDA_ARCH_LIST in the environment
	CudaArchList string
	// Set via HIP_ARCHITECTURES in the environment
	HipArchitectures string
	// Set via CUDA_HOME in the environment
	CudaHome string
	// Set via ROCM_PATH in the environment
	RocmPath string
	// Set via HIP_PATH in the environment
	HipPath string
)

const (
	BuildTypeRelWithDebInfo = "relwithdebinfo"
	BuildTypeRelease        = "release"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"FORGE_BUILD_TYPE":              {"FORGE_BUILD_TYPE", BuildType, "Build type, relwithdebinfo or release (default relwithdebinfo)"},
		"FORGE_BUILD_VERSION":           {"FORGE_BUILD_VERSION", BuildVersion, "Version override used by CI, skips the git local suffix"},
		"FORGE_GIT_TAG":                 {"FORGE_GIT_TAG", GitTag, "Git tag recorded in the generated version stamp"},
		"FORGE_DISABLE_FLASH_ATTN":      {"FORGE_DISABLE_FLASH_ATTN", DisableFlashAttn, "Do not build the flash-attention extension"},
		"FORGE_FORCE_OLD_CK_KERNEL":     {"FORGE_FORCE_OLD_CK_KERNEL", ForceOldCKKernel, "Select the legacy composable-kernel HIP sources"},
		"FORGE_FORCE_CUDA":              {"FORGE_FORCE_CUDA", ForceCUDA, "Configure for CUDA even when no toolkit is detected"},
		"FORGE_ENABLE_DEBUG_ASSERTIONS": {"FORGE_ENABLE_DEBUG_ASSERTIONS", DebugAssertions, "Keep device-side assertions (omits -DNDEBUG)"},
		"FORGE_PACKAGE_FROM":            {"FORGE_PACKAGE_FROM", PackageFrom, "Distribution channel, wheel* configures copy-based vendoring"},
		"FORGE_DEBUG":                   {"FORGE_DEBUG", Debug, "Show additional debug information (e.g. FORGE_DEBUG=1, 2 for trace)"},
		"NVCC_FLAGS":                    {"NVCC_FLAGS", NvccFlags, "Extra flags passed through to nvcc verbatim"},
		"LATTICE_CUDA_ARCH_LIST":        {"LATTICE_CUDA_ARCH_LIST", CudaArchList, "CUDA architectures to target (e.g. \"8.0;8.6+PTX\")"},
		"HIP_ARCHITECTURES":             {"HIP_ARCHITECTURES", HipArchitectures, "HIP offload architectures (e.g. gfx90a)"},
		"CUDA_HOME":                     {"CUDA_HOME", CudaHome, "Location of the CUDA toolkit"},
		"ROCM_PATH":                     {"ROCM_PATH", RocmPath, "Location of the ROCm installation"},
		"HIP_PATH":                      {"HIP_PATH", HipPath, "Location of the HIP SDK (takes precedence over ROCM_PATH)"},
	}
}

// Snapshot returns the raw values of the recognized variables for the
// build metadata record. Unset variables are recorded as empty strings.
func Snapshot() map[string]string {
	snap := make(map[string]string)
	for k := range AsMap() {
		snap[k] = os.Getenv(k)
	}
	return snap
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func boolean(key string) bool {
	s := clean(key)
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		// FORCE_CUDA=1 style switches treat any value other than "0" as set
		return s != "0"
	}
	return b
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	BuildType = strings.ToLower(clean("FORGE_BUILD_TYPE"))
	if BuildType == "" {
		BuildType = BuildTypeRelWithDebInfo
	}

	BuildVersion = clean("FORGE_BUILD_VERSION")
	GitTag = clean("FORGE_GIT_TAG")
	PackageFrom = clean("FORGE_PACKAGE_FROM")

	Debug = 0
	if s := clean("FORGE_DEBUG"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			Debug = n
		} else if boolean("FORGE_DEBUG") {
			Debug = 1
		}
	}
	DisableFlashAttn = boolean("FORGE_DISABLE_FLASH_ATTN")
	ForceOldCKKernel = boolean("FORGE_FORCE_OLD_CK_KERNEL")
	ForceCUDA = boolean("FORGE_FORCE_CUDA")
	DebugAssertions = boolean("FORGE_ENABLE_DEBUG_ASSERTIONS")

	NvccFlags = clean("NVCC_FLAGS")
	CudaArchList = clean("LATTICE_CUDA_ARCH_LIST")
	HipArchitectures = clean("HIP_ARCHITECTURES")

	CudaHome = clean("CUDA_HOME")
	RocmPath = clean("ROCM_PATH")
	HipPath = clean("HIP_PATH")
}

func LogLevel() slog.Level {
	switch {
	case Debug > 1:
		return logutil.LevelTrace
	case Debug > 0:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
