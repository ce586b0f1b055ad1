package envconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// OverridesFile is the optional per-checkout settings file. Values in it
// lose to anything set in the environment.
const OverridesFile = "forge.json"

type overrides struct {
	BuildType        *string `mapstructure:"build_type"`
	CudaArchList     *string `mapstructure:"cuda_arch_list"`
	HipArchitectures *string `mapstructure:"hip_architectures"`
	NvccFlags        *string `mapstructure:"nvcc_flags"`
	DisableFlashAttn *bool   `mapstructure:"disable_flash_attn"`
	ForceOldCKKernel *bool   `mapstructure:"force_old_ck_kernel"`
	ForceCUDA        *bool   `mapstructure:"force_cuda"`
	DebugAssertions  *bool   `mapstructure:"debug_assertions"`
	CudaHome         *string `mapstructure:"cuda_home"`
	RocmPath         *string `mapstructure:"rocm_path"`
	HipPath          *string `mapstructure:"hip_path"`
}

// LoadOverrides layers settings from path underneath the environment:
// a key only takes effect when the corresponding variable was not set.
// A missing file is not an error.
func LoadOverrides(path string) error {
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(buf, &raw); err != nil {
		return fmt.Errorf("malformed %s: %w", path, err)
	}

	var o overrides
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &o,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("malformed %s: %w", path, err)
	}

	slog.Debug("applying overrides file", "path", path)

	setString := func(env string, dst *string, val *string) {
		if val != nil && clean(env) == "" {
			*dst = *val
		}
	}
	setBool := func(env string, dst *bool, val *bool) {
		if val != nil && clean(env) == "" {
			*dst = *val
		}
	}

	setString("FORGE_BUILD_TYPE", &BuildType, o.BuildType)
	// Same case folding as the environment path in LoadConfig
	BuildType = strings.ToLower(BuildType)
	setString("LATTICE_CUDA_ARCH_LIST", &CudaArchList, o.CudaArchList)
	setString("HIP_ARCHITECTURES", &HipArchitectures, o.HipArchitectures)
	setString("NVCC_FLAGS", &NvccFlags, o.NvccFlags)
	setString("CUDA_HOME", &CudaHome, o.CudaHome)
	setString("ROCM_PATH", &RocmPath, o.RocmPath)
	setString("HIP_PATH", &HipPath, o.HipPath)
	setBool("FORGE_DISABLE_FLASH_ATTN", &DisableFlashAttn, o.DisableFlashAttn)
	setBool("FORGE_FORCE_OLD_CK_KERNEL", &ForceOldCKKernel, o.ForceOldCKKernel)
	setBool("FORGE_FORCE_CUDA", &ForceCUDA, o.ForceCUDA)
	setBool("FORGE_ENABLE_DEBUG_ASSERTIONS", &DebugAssertions, o.DebugAssertions)

	return nil
}
