package build

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/latticeml/forge/discover"
	"github.com/latticeml/forge/envconfig"
	"github.com/latticeml/forge/version"
)

// Extension is a fully parameterized native extension module, ready to be
// handed to the packaging toolchain.
type Extension struct {
	Name             string              `json:"name"`
	Sources          []string            `json:"sources"`
	IncludeDirs      []string            `json:"include_dirs"`
	DefineMacros     []string            `json:"define_macros,omitempty"`
	ExtraCompileArgs map[string][]string `json:"extra_compile_args"`
}

// Extension module names as they appear in the installed package.
const (
	ExtensionMain  = "lattice._C"
	ExtensionFlash = "lattice._C_flashattention"
)

const submoduleHint = "did you forget to run `git submodule update --init --recursive`?"

// Configure assembles the extension descriptors for the repository rooted
// at root, targeting the given toolchain.
func Configure(root string, tc discover.Toolchain) ([]Extension, Metadata, error) {
	srcs, err := EnumerateSources(root, envconfig.ForceOldCKKernel)
	if err != nil {
		return nil, Metadata{}, err
	}

	extraCompileArgs := map[string][]string{
		"cxx": hostFlags(),
	}

	var defineMacros []string
	if runtime.GOOS == "windows" {
		defineMacros = append(defineMacros, "lattice_EXPORTS")
	}

	includeDirs := []string{filepath.Join(root, "lattice", "csrc")}
	sources := srcs.Cpp
	extensions := []Extension{}
	flashVersion := "0.0.0"

	switch tc.Backend {
	case discover.BackendCUDA:
		sources = append(sources, srcs.Cuda...)

		cutlass := filepath.Join(root, "third_party", "cutlass", "include")
		if _, err := os.Stat(cutlass); err != nil {
			return nil, Metadata{}, fmt.Errorf("CUTLASS submodule not found at %s, %s", cutlass, submoduleHint)
		}
		includeDirs = append(includeDirs,
			filepath.Join(root, "third_party", "sputnik"),
			cutlass,
			filepath.Join(root, "third_party", "cutlass", "examples"),
		)

		nvccBase, err := cudaFlags(tc)
		if err != nil {
			return nil, Metadata{}, err
		}
		archs, err := targetArchs(tc.VersionNum())
		if err != nil {
			return nil, Metadata{}, err
		}

		// The arch-free base is shared with the flash extension, which
		// computes its own narrower gencode set
		nvccFlags := append(append([]string{}, nvccBase...), gencodeFlags(archs, 0, tc.VersionNum())...)
		extraCompileArgs["nvcc"] = nvccFlags

		flash, err := flashAttentionExtension(root, tc, archs, extraCompileArgs["cxx"], nvccBase)
		if err != nil {
			return nil, Metadata{}, err
		}
		if flash != nil {
			flashVersion = version.Submodule(filepath.Join(root, "third_party", "flash-attention"))
			extensions = append(extensions, *flash)

			// Not applied to flash-attention, where these ptxas settings
			// regress compile times badly on nvcc > 11.6
			extraCompileArgs["nvcc"] = append(extraCompileArgs["nvcc"],
				"--ptxas-options=-O2",
				"--ptxas-options=-allow-expensive-optimizations=true",
			)
		}

	case discover.BackendROCm:
		hipSources, err := RenameCppToCu(root, srcs.Hip)
		if err != nil {
			return nil, Metadata{}, err
		}
		sources = append(sources, hipSources...)

		ckDir := "composable_kernel_tiled"
		generatorFlags := []string{"-DUSE_CK_TILED_KERNEL"}
		if envconfig.ForceOldCKKernel {
			ckDir = "composable_kernel"
			generatorFlags = nil
		}
		includeDirs = append(includeDirs,
			filepath.Join(root, "lattice", "csrc", "attention", "hip_fmha"),
			filepath.Join(root, "third_party", ckDir, "include"),
		)

		extraCompileArgs["cxx"] = append(extraCompileArgs["cxx"], generatorFlags...)
		extraCompileArgs["nvcc"] = append(hipFlags(), append(generatorFlags, "-DBUILD_PYTHON_PACKAGE")...)

	case discover.BackendCPU:
		// Host sources only
	}

	sort.Strings(sources)
	extensions = append(extensions, Extension{
		Name:             ExtensionMain,
		Sources:          sources,
		IncludeDirs:      absPaths(includeDirs),
		DefineMacros:     defineMacros,
		ExtraCompileArgs: extraCompileArgs,
	})

	meta := newMetadata(tc, flashVersion)
	return extensions, meta, nil
}

// hostFlags are the cxx flags shared by every configuration.
func hostFlags() []string {
	flags := []string{"-O3", "-std=c++17"}
	if runtime.GOOS == "windows" {
		flags = append(flags, "/MP", "/Zc:lambda", "/Zc:preprocessor")
	} else {
		flags = append(flags, "-fopenmp")
	}
	return flags
}

func buildTypeFlags() ([]string, error) {
	switch envconfig.BuildType {
	case envconfig.BuildTypeRelWithDebInfo:
		return []string{"--generate-line-info"}, nil
	case envconfig.BuildTypeRelease:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown build type: %s", envconfig.BuildType)
	}
}

func cudaFlags(tc discover.Toolchain) ([]string, error) {
	flags := []string{
		"-DHAS_FRAMEWORK",
		"--use_fast_math",
		"-U__CUDA_NO_HALF_OPERATORS__",
		"-U__CUDA_NO_HALF_CONVERSIONS__",
		"--extended-lambda",
		"-D_ENABLE_EXTENDED_ALIGNED_STORAGE",
		"-std=c++17",
	}

	btFlags, err := buildTypeFlags()
	if err != nil {
		return nil, err
	}
	flags = append(flags, btFlags...)

	if !envconfig.DebugAssertions {
		flags = append(flags, "-DNDEBUG")
	}
	flags = append(flags, strings.Fields(envconfig.NvccFlags)...)

	if tc.VersionNum() >= 1102 {
		// Parallel device compilation was introduced with 11.2
		flags = append(flags, "--threads", "4", "--ptxas-options=-v")
	}
	if runtime.GOOS == "windows" {
		flags = append(flags, "-Xcompiler", "/Zc:lambda", "-Xcompiler", "/Zc:preprocessor")
	}
	return flags, nil
}

func hipFlags() []string {
	offloadArchs := envconfig.HipArchitectures
	if offloadArchs == "" {
		offloadArchs = "GK_GFX803"
	}
	return []string{
		"-O3",
		"-std=c++17",
		"--offload-arch=" + offloadArchs,
		"-U__CUDA_NO_HALF_OPERATORS__",
		"-U__CUDA_NO_HALF_CONVERSIONS__",
		"-DCK_FMHA_FWD_FAST_EXP2=1",
		"-fgpu-flush-denormals-to-zero",
	}
}

// flashAttentionExtension assembles the flash-attention sub-extension, or
// nil when it is disabled, unsupported on this toolkit, or targets no
// usable architecture. nvccBase must not contain gencode flags: flash
// builds only its SM80+ subset of the target list.
func flashAttentionExtension(root string, tc discover.Toolchain, archs []Arch, cxxFlags, nvccBase []string) (*Extension, error) {
	if envconfig.DisableFlashAttn {
		slog.Info("flash-attention disabled by request")
		return nil, nil
	}
	// Not buildable on windows before CUDA 12
	if runtime.GOOS != "linux" && tc.VersionNum() < 1200 {
		slog.Info("skipping flash-attention, unsupported on this platform with this toolkit", "version", tc.Version)
		return nil, nil
	}

	// Flash kernels need at least SM80
	gencode := gencodeFlags(archs, 80, tc.VersionNum())
	if len(gencode) == 0 {
		slog.Info("skipping flash-attention, no targeted architecture supports it")
		return nil, nil
	}

	flashRoot := filepath.Join(root, "third_party", "flash-attention")
	cutlassInc := filepath.Join(flashRoot, "csrc", "cutlass", "include")
	if _, err := os.Stat(cutlassInc); err != nil {
		return nil, fmt.Errorf("flash-attention submodule not found at %s, %s", flashRoot, submoduleHint)
	}

	sources := []string{filepath.Join("csrc", "flash_attn", "flash_api.cpp")}
	cuFiles, err := glob(filepath.Join(flashRoot, "csrc", "flash_attn", "src", "*.cu"))
	if err != nil {
		return nil, err
	}
	for _, f := range cuFiles {
		rel, err := filepath.Rel(flashRoot, f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, rel)
	}
	for i, src := range sources {
		sources[i] = filepath.Join(flashRoot, src)
	}
	sort.Strings(sources)

	nvccFlags := append([]string{}, nvccBase...)
	nvccFlags = append(nvccFlags,
		"-O3",
		"-U__CUDA_NO_HALF2_OPERATORS__",
		"-U__CUDA_NO_BFLOAT16_CONVERSIONS__",
		"--expt-relaxed-constexpr",
		"--expt-extended-lambda",
		"--ptxas-options=-v",
	)
	nvccFlags = append(nvccFlags, gencode...)
	if runtime.GOOS == "windows" {
		nvccFlags = append(nvccFlags, "-Xcompiler", "/permissive-")
	}

	return &Extension{
		Name:    ExtensionFlash,
		Sources: sources,
		IncludeDirs: absPaths([]string{
			filepath.Join(flashRoot, "csrc", "flash_attn"),
			filepath.Join(flashRoot, "csrc", "flash_attn", "src"),
			cutlassInc,
		}),
		ExtraCompileArgs: map[string][]string{
			"cxx":  cxxFlags,
			"nvcc": nvccFlags,
		},
	}, nil
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		} else {
			out = append(out, p)
		}
	}
	return out
}
