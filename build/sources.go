package build

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/latticeml/forge/format"
)

// SourceSet holds the kernel sources enumerated for one configuration.
// Paths are relative to the repository root.
type SourceSet struct {
	Cpp  []string // host sources, always compiled
	Cuda []string // .cu sources for the CUDA backend
	Hip  []string // hip_fmha sources for the ROCm backend
}

// EnumerateSources walks the csrc tree and collects the sources for each
// kernel subsystem: attention (cpu/autograd/cuda/hip_fmha), indexing and
// swiglu. oldCK selects the legacy composable-kernel HIP file set.
func EnumerateSources(root string, oldCK bool) (SourceSet, error) {
	csrc := filepath.Join(root, "lattice", "csrc")
	attention := filepath.Join(csrc, "attention")

	var set SourceSet
	var err error

	collect := func(dst *[]string) func([]string, error) {
		return func(matches []string, globErr error) {
			if err != nil {
				return
			}
			if globErr != nil {
				err = globErr
				return
			}
			*dst = append(*dst, matches...)
		}
	}

	collect(&set.Cpp)(glob(filepath.Join(attention, "*.cpp")))
	collect(&set.Cpp)(globRecursive(filepath.Join(attention, "autograd"), ".cpp"))
	collect(&set.Cpp)(globRecursive(filepath.Join(attention, "cpu"), ".cpp"))
	collect(&set.Cpp)(globRecursive(filepath.Join(csrc, "indexing"), ".cpp"))
	collect(&set.Cpp)(globRecursive(filepath.Join(csrc, "swiglu"), ".cpp"))

	// Top-level .cu only: temporary .cu siblings under attention/hip_fmha
	// produced by a previous HIP configure run must not leak in here
	collect(&set.Cuda)(glob(filepath.Join(csrc, "*.cu")))
	collect(&set.Cuda)(globRecursive(filepath.Join(attention, "cuda"), ".cu"))
	collect(&set.Cuda)(globRecursive(filepath.Join(csrc, "indexing"), ".cu"))
	collect(&set.Cuda)(globRecursive(filepath.Join(csrc, "swiglu"), ".cu"))

	hipDir := filepath.Join(attention, "hip_fmha")
	hip := collect(&set.Hip)
	hip(glob(filepath.Join(hipDir, "ck_fmha_test.cpp")))
	hip(glob(filepath.Join(hipDir, "attention_forward_decoder.cpp")))
	hip(glob(filepath.Join(hipDir, "attention_forward_splitk.cpp")))
	if oldCK {
		hip(glob(filepath.Join(hipDir, "attention_forward_generic.cpp")))
		hip(glob(filepath.Join(hipDir, "attention_backward_generic.cpp")))
		hip(glob(filepath.Join(hipDir, "attention_ck_rand_uniform.cpp")))
		for _, pattern := range []string{
			"ck_fmha_batched_infer_*.cpp",
			"ck_fmha_grouped_infer_*.cpp",
			"ck_fmha_batched_forward_*.cpp",
			"ck_fmha_grouped_forward_*.cpp",
			"ck_fmha_batched_backward_*.cpp",
			"ck_fmha_grouped_backward_*.cpp",
		} {
			hip(glob(filepath.Join(hipDir, pattern)))
		}
		hip(glob(filepath.Join(hipDir, "instances", "ck_fmha_*.cpp")))
	} else {
		hip(glob(filepath.Join(hipDir, "attention_forward_generic_ck_tiled.cpp")))
		for _, pattern := range []string{
			"ck_tiled_fmha_batched_infer_*.cpp",
			"ck_tiled_fmha_grouped_infer_*.cpp",
			"ck_tiled_fmha_batched_forward_*.cpp",
			"ck_tiled_fmha_grouped_forward_*.cpp",
		} {
			hip(glob(filepath.Join(hipDir, pattern)))
		}
		hip(glob(filepath.Join(hipDir, "instances_tiled", "ck_tiled_fmha_*.cpp")))
	}
	if err != nil {
		return SourceSet{}, err
	}

	set.Cpp = relativize(root, set.Cpp)
	set.Cuda = relativize(root, set.Cuda)
	set.Hip = relativize(root, set.Hip)

	slog.Debug("enumerated kernel sources",
		"cpp", len(set.Cpp),
		"cuda", len(set.Cuda),
		"hip", len(set.Hip),
		"size", format.HumanBytes(totalSize(root, &set)),
	)
	return set, nil
}

func glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// globRecursive collects files with the given extension anywhere under dir.
// A missing dir yields no matches, same as a non-matching glob.
func globRecursive(dir, ext string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ext) {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

func relativize(root string, paths []string) []string {
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		if r, err := filepath.Rel(root, p); err == nil {
			rel = append(rel, r)
		} else {
			rel = append(rel, p)
		}
	}
	return rel
}

func totalSize(root string, set *SourceSet) int64 {
	var total int64
	for _, group := range [][]string{set.Cpp, set.Cuda, set.Hip} {
		for _, p := range group {
			if fi, err := os.Stat(filepath.Join(root, p)); err == nil {
				total += fi.Size()
			}
		}
	}
	return total
}

// RenameCppToCu copies each HIP .cpp source to a .cu sibling so the HIP
// compiler driver treats it as device code, and returns the new paths.
func RenameCppToCu(root string, sources []string) ([]string, error) {
	renamed := make([]string, 0, len(sources))
	for _, src := range sources {
		dst := strings.TrimSuffix(src, ".cpp") + ".cu"
		if err := copyFile(filepath.Join(root, src), filepath.Join(root, dst)); err != nil {
			return nil, err
		}
		renamed = append(renamed, dst)
	}
	return renamed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
