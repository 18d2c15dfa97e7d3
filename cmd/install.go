package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/binary-install/prebuild/pkg/archive"
	"github.com/binary-install/prebuild/pkg/fetch"
	"github.com/binary-install/prebuild/pkg/install"
	"github.com/spf13/cobra"
)

var (
	// Flags for install command
	installKeepGoing bool
)

// InstallCommand represents the install command
var InstallCommand = &cobra.Command{
	Use:   "install",
	Short: "Download and extract the prebuilds for every resolved target",
	Long: `Download and extract the prebuilds for every resolved target into builds/<target>/.

Targets are installed one at a time in the order they are resolved. The first failure
stops the remaining installs unless --keep-going is given. When a prebuild does not
exist the command explains how to build the addon from source.`,
	Example: `  # Install prebuilds configured in the project's package.json
  prebuild install

  # Add Electron 11 for Windows on top of the configured targets
  npm_config_targets=electron-85 npm_config_platforms=win32 prebuild install

  # Install from a mirror
  PREBUILD_BASE_URL=https://mirror.example.com prebuild install`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	// The root command installs too, so it accepts the same flag.
	for _, c := range []*cobra.Command{InstallCommand, RootCmd} {
		c.Flags().BoolVarP(&installKeepGoing, "keep-going", "k", false, "Continue with the remaining targets after a failure")
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := loadPlan(ctx)
	if err != nil {
		return err
	}
	log.Debugf("Installing %d target(s) for %s@%s", len(p.Matrix.Targets), p.Package.Name, p.Package.Version)

	scheduler := &install.Scheduler{
		Installer: &install.Installer{
			Dir:       p.Dir,
			Package:   p.Package,
			Locator:   p.Locator,
			Fetcher:   fetch.New(timeout),
			Extractor: archive.NewExtractor(),
			Out:       cmd.OutOrStdout(),
		},
		Out: cmd.OutOrStdout(),
	}
	if installKeepGoing {
		scheduler.Policy = install.ContinueOnError
	}

	if err := scheduler.Run(ctx, p.Matrix); err != nil {
		printRemediation(cmd.ErrOrStderr(), p.Package.Name, err)
		return err
	}
	return nil
}

// printRemediation explains how to proceed when prebuilds are missing.
func printRemediation(w io.Writer, pkgName string, err error) {
	var notFound []*fetch.ArtifactNotFoundError
	var failed *install.FailedError
	if errors.As(err, &failed) {
		for _, f := range failed.Failures {
			var nf *fetch.ArtifactNotFoundError
			if errors.As(f.Err, &nf) {
				notFound = append(notFound, nf)
			}
		}
	} else {
		var nf *fetch.ArtifactNotFoundError
		if errors.As(err, &nf) {
			notFound = append(notFound, nf)
		}
	}
	if len(notFound) == 0 {
		return
	}

	for _, nf := range notFound {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Prebuild for current platform (%s) not found!", nf.Artifact())))
	}
	fmt.Fprintln(w, "Try to compile for your platform:")
	fmt.Fprintln(w, commandStyle.Render(fmt.Sprintf("# cd node_modules/%s;", pkgName)))
	fmt.Fprintln(w, commandStyle.Render("# npm run build"))
	fmt.Fprintln(w)
}
