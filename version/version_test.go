package version

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeml/forge/envconfig"
)

func TestResolveFromSourceDist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "version.txt"), []byte("0.1.3\n"), 0o644))

	t.Setenv("FORGE_BUILD_VERSION", "")
	envconfig.LoadConfig()

	v, err := Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, "0.1.3", v)
}

func TestResolveCIOverride(t *testing.T) {
	t.Setenv("FORGE_BUILD_VERSION", "0.2.0rc1")
	envconfig.LoadConfig()

	// No version.txt needed when CI pins the version
	v, err := Resolve(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "0.2.0rc1", v)
}

func TestResolveMissingVersionFile(t *testing.T) {
	t.Setenv("FORGE_BUILD_VERSION", "")
	envconfig.LoadConfig()

	_, err := Resolve(t.TempDir())
	require.Error(t, err)
}

func TestResolveGitCheckout(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "version.txt"), []byte("0.1.3\n"), 0o644))
	for _, args := range [][]string{
		{"init", "-q"},
		{"-c", "user.email=forge@example.com", "-c", "user.name=forge", "commit", "-q", "--allow-empty", "-m", "init"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, fmt.Sprintf("git %v: %s", args, out))
	}

	t.Setenv("FORGE_BUILD_VERSION", "")
	envconfig.LoadConfig()

	v, err := Resolve(root)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^0\.1\.3\+[0-9a-f]+\.d\d{8}$`), v)
}

func TestSubmoduleFallsBackToVersionFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "version.txt"), []byte("2.3.6\n"), 0o644))
	assert.Equal(t, "2.3.6", Submodule(dir))
}

func TestSubmoduleSentinel(t *testing.T) {
	assert.Equal(t, "v?", Submodule(t.TempDir()))
}

func TestStamp(t *testing.T) {
	t.Setenv("FORGE_GIT_TAG", "")
	envconfig.LoadConfig()
	assert.Equal(t, "0.1.3\n", Stamp("0.1.3"))

	t.Setenv("FORGE_GIT_TAG", "v0.1.3")
	envconfig.LoadConfig()
	assert.Equal(t, "0.1.3\ngit_tag: v0.1.3\n", Stamp("0.1.3"))
}
