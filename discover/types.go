package discover

import (
	"fmt"
	"strconv"
	"strings"
)

type Backend string

const (
	BackendCUDA Backend = "cuda"
	BackendROCm Backend = "rocm"
	BackendCPU  Backend = "cpu"
)

// Toolchain describes the accelerator compiler stack the build will target.
type Toolchain struct {
	Backend Backend `json:"backend"`

	// Home is the toolkit installation root (CUDA_HOME or the ROCm prefix)
	Home string `json:"home,omitempty"`

	// Compiler is the resolved device compiler (nvcc or hipcc)
	Compiler string `json:"compiler,omitempty"`

	// Version is the toolkit release, e.g. "12.1" or "6.0.2"
	Version string `json:"version,omitempty"`

	major int
	minor int
}

// NewToolchain builds a Toolchain from a dotted release string. Only the
// leading digit of the minor component participates in feature gating,
// matching the NN.m toolkit numbering.
func NewToolchain(backend Backend, version string) Toolchain {
	tc := Toolchain{Backend: backend, Version: version}
	parts := strings.SplitN(version, ".", 3)
	if len(parts) > 0 {
		tc.major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 && len(parts[1]) > 0 {
		tc.minor, _ = strconv.Atoi(parts[1][:1])
	}
	return tc
}

// VersionNum collapses major.minor into the comparison form used for
// feature gates: 11.8 -> 1108, 12.1 -> 1201.
func (t Toolchain) VersionNum() int {
	return t.major*100 + t.minor
}

func (t Toolchain) String() string {
	if t.Backend == BackendCPU {
		return string(t.Backend)
	}
	return fmt.Sprintf("%s %s (%s)", t.Backend, t.Version, t.Compiler)
}
