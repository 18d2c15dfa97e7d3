package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/config"
	"github.com/binary-install/prebuild/pkg/install"
	"github.com/binary-install/prebuild/pkg/release"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/spf13/cobra"
)

// newReleaseClient creates the GitHub client. Tests replace it.
var newReleaseClient = release.NewClient

// ListCommand represents the list command
var ListCommand = &cobra.Command{
	Use:   "list [VERSION]",
	Short: "List the prebuilds published for a release",
	Long: `List the prebuild archives attached to the GitHub release of the addon.

VERSION defaults to the version in the addon's package.json; "latest" selects the most
recent release. Set GITHUB_TOKEN to avoid API rate limits.`,
	Example: `  # Prebuilds of the installed version
  prebuild list

  # Prebuilds of the newest release
  prebuild list latest`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newReleaseClient(repo)
	if err != nil {
		return err
	}

	pkg, err := listPackage(args)
	if err != nil {
		return err
	}
	if pkg.Version == "latest" {
		log.Info("checking GitHub for latest release")
		if pkg.Version, err = client.LatestVersion(ctx); err != nil {
			return fmt.Errorf("failed to resolve version: %w", err)
		}
	}

	prebuilds, err := client.ListPrebuilds(ctx, pkg)
	if err != nil {
		return err
	}
	if len(prebuilds) == 0 {
		return fmt.Errorf("no prebuilds published for %s v%s", pkg.Name, pkg.Version)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, headerStyle.Render("TARGET")+"\tRUNTIME\tABI\tPLATFORM\tARCH\tSIZE")
	for _, pb := range prebuilds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", pb.Essential, pb.Target.Runtime, pb.Target.ABI, pb.Target.Platform, pb.Target.Arch, pb.Size)
	}
	return w.Flush()
}

func listPackage(args []string) (spec.Package, error) {
	pkg := spec.Package{Name: packageName, Version: packageVersion}
	if len(args) > 0 {
		pkg.Version = args[0]
	}
	if pkg.Name != "" && pkg.Version != "" {
		return pkg, nil
	}

	dir, err := install.ResolveInstallerDir(installerDir)
	if err != nil {
		return spec.Package{}, err
	}
	manifest, err := config.LoadPackage(dir)
	if err != nil {
		return spec.Package{}, err
	}
	if pkg.Name == "" {
		pkg.Name = manifest.Name
	}
	if pkg.Version == "" {
		pkg.Version = manifest.Version
	}
	return pkg, nil
}
