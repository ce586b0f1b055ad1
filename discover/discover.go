// Package discover locates the accelerator toolchain the native extension
// will be compiled with: the CUDA toolkit, the ROCm/HIP stack, or neither.
package discover

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/latticeml/forge/envconfig"
)

// Detect selects the toolchain for this build. CUDA wins when a toolkit is
// present, when FORGE_FORCE_CUDA is set, or when a CUDA arch list was given;
// otherwise ROCm is tried, and a CPU-only configuration is the fallback.
func Detect() (Toolchain, error) {
	cudaWanted := envconfig.ForceCUDA || envconfig.CudaArchList != ""

	tc, err := FindCUDA()
	if err == nil {
		return tc, nil
	}
	if cudaWanted {
		// The user asked for CUDA explicitly, a missing toolkit is fatal
		return Toolchain{}, fmt.Errorf("CUDA requested but unusable: %w", err)
	}
	if !errors.Is(err, errNvccNotFound) {
		slog.Warn("CUDA toolkit unusable, trying ROCm", "error", err)
	}

	tc, err = FindROCm()
	if err == nil {
		return tc, nil
	}
	if !errors.Is(err, errRocmNotFound) {
		slog.Warn("ROCm unusable", "error", err)
	}

	slog.Info("no accelerator toolchain detected, configuring CPU-only build")
	return Toolchain{Backend: BackendCPU}, nil
}
