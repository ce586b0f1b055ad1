package envconfig

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeml/forge/logutil"
)

func TestConfig(t *testing.T) {
	t.Setenv("FORGE_DEBUG", "")
	LoadConfig()
	require.Equal(t, 0, Debug)
	require.Equal(t, slog.LevelInfo, LogLevel())
	t.Setenv("FORGE_DEBUG", "false")
	LoadConfig()
	require.Equal(t, 0, Debug)
	t.Setenv("FORGE_DEBUG", "true")
	LoadConfig()
	require.Equal(t, 1, Debug)
	t.Setenv("FORGE_DEBUG", "1")
	LoadConfig()
	require.Equal(t, 1, Debug)
	require.Equal(t, slog.LevelDebug, LogLevel())
	t.Setenv("FORGE_DEBUG", "2")
	LoadConfig()
	require.Equal(t, logutil.LevelTrace, LogLevel())
	t.Setenv("FORGE_DISABLE_FLASH_ATTN", "1")
	LoadConfig()
	require.True(t, DisableFlashAttn)
}

func TestBuildType(t *testing.T) {
	type testCase struct {
		value  string
		expect string
	}

	testCases := map[string]*testCase{
		"empty defaults":  {value: "", expect: "relwithdebinfo"},
		"release":         {value: "release", expect: "release"},
		"mixed case":      {value: "Release", expect: "release"},
		"quoted":          {value: "\"release\"", expect: "release"},
		"extra space":     {value: " relwithdebinfo ", expect: "relwithdebinfo"},
		"unknown in env":  {value: "debug", expect: "debug"}, // rejected later during flag assembly
	}

	for k, v := range testCases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("FORGE_BUILD_TYPE", v.value)
			LoadConfig()
			assert.Equal(t, v.expect, BuildType)
		})
	}
}

func TestBooleanSwitches(t *testing.T) {
	type testCase struct {
		value  string
		expect bool
	}

	testCases := map[string]*testCase{
		"unset":     {value: "", expect: false},
		"zero":      {value: "0", expect: false},
		"one":       {value: "1", expect: true},
		"true":      {value: "true", expect: true},
		"false":     {value: "false", expect: false},
		"garbage":   {value: "yes please", expect: true},
		"quoted on": {value: "'1'", expect: true},
	}

	for k, v := range testCases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("FORGE_FORCE_CUDA", v.value)
			LoadConfig()
			assert.Equal(t, v.expect, ForceCUDA)
		})
	}
}

func TestSnapshotCoversAllVars(t *testing.T) {
	t.Setenv("LATTICE_CUDA_ARCH_LIST", "8.0;9.0")
	snap := Snapshot()
	require.Len(t, snap, len(AsMap()))
	assert.Equal(t, "8.0;9.0", snap["LATTICE_CUDA_ARCH_LIST"])
	assert.Contains(t, snap, "NVCC_FLAGS")
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, OverridesFile)

	write := func(t *testing.T, v map[string]any) {
		t.Helper()
		buf, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, buf, 0o644))
	}

	t.Run("missing file is fine", func(t *testing.T) {
		LoadConfig()
		require.NoError(t, LoadOverrides(filepath.Join(dir, "nope.json")))
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("LATTICE_CUDA_ARCH_LIST", "9.0")
		LoadConfig()
		write(t, map[string]any{"cuda_arch_list": "8.0"})
		require.NoError(t, LoadOverrides(path))
		assert.Equal(t, "9.0", CudaArchList)
	})

	t.Run("fills unset values", func(t *testing.T) {
		t.Setenv("LATTICE_CUDA_ARCH_LIST", "")
		t.Setenv("FORGE_FORCE_CUDA", "")
		LoadConfig()
		write(t, map[string]any{"cuda_arch_list": "8.0;8.6", "force_cuda": true})
		require.NoError(t, LoadOverrides(path))
		assert.Equal(t, "8.0;8.6", CudaArchList)
		assert.True(t, ForceCUDA)
	})

	t.Run("build type case folded", func(t *testing.T) {
		t.Setenv("FORGE_BUILD_TYPE", "")
		LoadConfig()
		write(t, map[string]any{"build_type": "Release"})
		require.NoError(t, LoadOverrides(path))
		assert.Equal(t, BuildTypeRelease, BuildType)
	})

	t.Run("hip path", func(t *testing.T) {
		t.Setenv("HIP_PATH", "")
		LoadConfig()
		write(t, map[string]any{"hip_path": "/opt/rocm-6.0.2"})
		require.NoError(t, LoadOverrides(path))
		assert.Equal(t, "/opt/rocm-6.0.2", HipPath)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		LoadConfig()
		write(t, map[string]any{"cuda_arch": "8.0"})
		require.Error(t, LoadOverrides(path))
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
		require.Error(t, LoadOverrides(path))
	})
}
