package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/latticeml/forge/build"
	"github.com/latticeml/forge/discover"
	"github.com/latticeml/forge/version"
)

const (
	flashPackage       = "lattice._flash_attn"
	flashPackageSource = "third_party/flash-attention/flash_attn"
)

func ConfigureHandler(cmd *cobra.Command, args []string) error {
	root, err := repoRoot(cmd)
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if out == "" {
		out = root
	}
	wheel, err := wheelBuild(cmd)
	if err != nil {
		return err
	}

	var pkgVersion string
	var tc discover.Toolchain

	// Version resolution shells out to git, toolchain probing to nvcc or
	// hipcc. Neither depends on the other.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		pkgVersion, err = version.Resolve(root)
		return err
	})
	g.Go(func() error {
		var err error
		tc, err = discover.Detect()
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("configuring build", "version", pkgVersion, "toolchain", tc.String())

	extensions, meta, err := build.Configure(root, tc)
	if err != nil {
		return err
	}

	for _, ext := range extensions {
		if ext.Name == build.ExtensionFlash {
			if err := build.VendorPackage(root, flashPackage, filepath.FromSlash(flashPackageSource), wheel); err != nil {
				return err
			}
		}
	}

	plan := build.Plan{
		Version:    pkgVersion,
		Toolchain:  tc,
		Extensions: extensions,
		Metadata:   meta,
	}
	if err := plan.WriteArtifacts(out); err != nil {
		return err
	}

	names := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		names = append(names, ext.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "configured %s (%s) extensions: %s\n",
		pkgVersion, tc.String(), strings.Join(names, ", "))
	return nil
}
