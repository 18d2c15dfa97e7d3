package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/binary-install/prebuild/pkg/asset"
	"github.com/binary-install/prebuild/pkg/install"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Flags for matrix command
	matrixOutput string
)

// MatrixCommand represents the matrix command
var MatrixCommand = &cobra.Command{
	Use:   "matrix",
	Short: "Show the targets that would be installed",
	Long: `Resolve the target matrix exactly like install does and print every target with its
artifact name, download URL and output directory, without downloading anything.`,
	Example: `  # Table of targets
  prebuild matrix

  # Machine readable
  npm_config_targets=all prebuild matrix -o yaml`,
	Args: cobra.NoArgs,
	RunE: runMatrix,
}

func init() {
	MatrixCommand.Flags().StringVarP(&matrixOutput, "output", "o", "table", "Output format: table or yaml")
}

// matrixEntry is one row of the matrix output.
type matrixEntry struct {
	Target     spec.Target              `yaml:"target"`
	Download   asset.DownloadDescriptor `yaml:"download"`
	OutputPath string                   `yaml:"output"`
}

// matrixReport is the yaml document printed by the matrix command.
type matrixReport struct {
	Package     string        `yaml:"package"`
	Version     string        `yaml:"version"`
	HostImplied bool          `yaml:"hostImplied"`
	Targets     []matrixEntry `yaml:"targets"`
}

func runMatrix(cmd *cobra.Command, args []string) error {
	if matrixOutput != "table" && matrixOutput != "yaml" {
		return fmt.Errorf("unsupported output format %q (expected table or yaml)", matrixOutput)
	}

	p, err := loadPlan(cmd.Context())
	if err != nil {
		return err
	}

	report := matrixReport{
		Package:     p.Package.Name,
		Version:     p.Package.Version,
		HostImplied: p.Matrix.HostImplied,
	}
	for _, t := range p.Matrix.Targets {
		d := p.Locator.Locate(t, p.Package.Name, p.Package.Version)
		report.Targets = append(report.Targets, matrixEntry{
			Target:     t,
			Download:   d,
			OutputPath: install.OutputDir(p.Dir, d.Essential),
		})
	}

	if matrixOutput == "yaml" {
		return writeYAML(cmd.OutOrStdout(), report)
	}
	return writeMatrixTable(cmd.OutOrStdout(), p.Dir, report)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func writeMatrixTable(w io.Writer, dir string, report matrixReport) error {
	if report.HostImplied {
		fmt.Fprintln(w, separatorStyle.Render("No targets configured, using the running runtime."))
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("RUNTIME")+"\tABI\tPLATFORM\tARCH\tOUTPUT\tURL")
	for _, e := range report.Targets {
		rel, err := filepath.Rel(dir, e.OutputPath)
		if err != nil {
			rel = e.OutputPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Target.Runtime, e.Target.ABI, e.Target.Platform, e.Target.Arch, rel, e.Download.URL)
	}
	return tw.Flush()
}
