package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/latticeml/forge/build"
	"github.com/latticeml/forge/envconfig"
	"github.com/latticeml/forge/logutil"
	"github.com/latticeml/forge/version"
)

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:     "forge",
		Short:   "Configure native kernel builds for the lattice library",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

			root, err := cmd.Flags().GetString("root")
			if err != nil {
				return err
			}
			return envconfig.LoadOverrides(filepath.Join(root, envconfig.OverridesFile))
		},
	}

	rootCmd.PersistentFlags().StringP("root", "C", ".", "Repository root to operate on")

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Detect the toolchain and write the build plan",
		Args:  cobra.ExactArgs(0),
		RunE:  ConfigureHandler,
	}
	configureCmd.Flags().StringP("out", "o", "", "Directory for generated artifacts (default: the repository root)")
	configureCmd.Flags().Bool("wheel", false, "Configure for a wheel build (vendored packages are copied, not linked)")

	vendorCmd := &cobra.Command{
		Use:   "vendor",
		Short: "Embed the flash-attention package into the source tree",
		Args:  cobra.ExactArgs(0),
		RunE:  VendorHandler,
	}
	vendorCmd.Flags().Bool("wheel", false, "Copy instead of symlinking")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the package version this checkout would build",
		Args:  cobra.ExactArgs(0),
		RunE:  VersionHandler,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show the build environment variables",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated build artifacts",
		Args:  cobra.ExactArgs(0),
		RunE:  CleanHandler,
	}

	rootCmd.AddCommand(
		configureCmd,
		vendorCmd,
		versionCmd,
		envCmd,
		cleanCmd,
	)

	return rootCmd
}

func repoRoot(cmd *cobra.Command) (string, error) {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return "", err
	}
	return filepath.Abs(root)
}

func VersionHandler(cmd *cobra.Command, args []string) error {
	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}
	v, err := version.Resolve(root)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func VendorHandler(cmd *cobra.Command, args []string) error {
	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}
	wheel, err := wheelBuild(cmd)
	if err != nil {
		return err
	}
	return build.VendorPackage(root, flashPackage, filepath.FromSlash(flashPackageSource), wheel)
}

// wheelBuild reports whether vendored packages should be copied rather than
// symlinked: the --wheel flag, or a wheel distribution channel announced via
// FORGE_PACKAGE_FROM.
func wheelBuild(cmd *cobra.Command) (bool, error) {
	wheel, err := cmd.Flags().GetBool("wheel")
	if err != nil || wheel {
		return wheel, err
	}
	return strings.HasPrefix(envconfig.PackageFrom, "wheel"), nil
}

func CleanHandler(cmd *cobra.Command, args []string) error {
	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}
	return build.Clean(root)
}
