package cmd

import (
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/binary-install/prebuild/pkg/asset"
	"github.com/binary-install/prebuild/pkg/config"
	"github.com/binary-install/prebuild/pkg/fetch"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	installerDir   string
	manifestKey    string
	repo           string
	baseURL        string
	urlTemplate    string
	packageName    string
	packageVersion string
	timeout        time.Duration
	verbose        bool
	quiet          bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "prebuild",
	Short: "Download prebuilt native addon binaries",
	Long: `prebuild downloads precompiled native addon binaries matching the runtime, ABI,
platform and architecture they will be loaded by, so no compiler toolchain is needed.

It is meant to run as the postinstall step of the addon package. Which prebuilds to
fetch is read from the "iohook" section of the depending project's package.json and
from the npm_config_targets, npm_config_platforms and npm_config_arches variables.
Without any configuration the prebuild for the running Node.js or Electron is used.`,
	Example: `  # In package.json of the addon
  "scripts": { "postinstall": "prebuild install" }

  # Install prebuilds for every supported target
  npm_config_targets=all prebuild install

  # Show what would be downloaded
  prebuild matrix`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetHandler(cli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
			log.Debugf("Verbose logging enabled")
		} else if quiet {
			log.SetLevel(log.ErrorLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
		log.Debugf("Installer directory: %s", installerDir)
	},
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	// Disable automatic command sorting to maintain semantic order
	cobra.EnableCommandSorting = false

	flags := RootCmd.PersistentFlags()
	flags.StringVarP(&installerDir, "dir", "C", "", "Addon package directory (default: current directory)")
	flags.StringVar(&manifestKey, "manifest-key", config.DefaultKey, "package.json property holding targets, platforms and arches")
	flags.StringVar(&repo, "repo", asset.DefaultRepo, "GitHub repository publishing the prebuilds (owner/name)")
	flags.StringVar(&baseURL, "base-url", "", "Release download host (default: $PREBUILD_BASE_URL or "+asset.DefaultBaseURL+")")
	flags.StringVar(&urlTemplate, "url-template", asset.DefaultTemplate, "Download URL template")
	flags.StringVar(&packageName, "package-name", "", "Addon package name (default: from package.json)")
	flags.StringVar(&packageVersion, "package-version", "", "Addon package version (default: from package.json)")
	flags.DurationVar(&timeout, "timeout", fetch.DefaultTimeout, "Bound on connecting and waiting for a response")
	flags.BoolVar(&verbose, "verbose", false, "Increase log verbosity")
	flags.BoolVar(&quiet, "quiet", false, "Suppress progress output")

	RootCmd.AddGroup(&cobra.Group{
		ID:    "workflow",
		Title: "Workflow Commands:",
	})
	RootCmd.AddGroup(&cobra.Group{
		ID:    "utility",
		Title: "Utility Commands:",
	})

	RootCmd.SetHelpCommandGroupID("utility")
	RootCmd.SetCompletionCommandGroupID("utility")

	InstallCommand.GroupID = "workflow"
	MatrixCommand.GroupID = "workflow"
	ListCommand.GroupID = "utility"
	HelpfulCommand.GroupID = "utility"

	RootCmd.AddCommand(InstallCommand)
	RootCmd.AddCommand(MatrixCommand)
	RootCmd.AddCommand(ListCommand)
	RootCmd.AddCommand(HelpfulCommand)
}
