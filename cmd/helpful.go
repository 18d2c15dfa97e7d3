package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// HelpfulCommand represents the helpful command
var HelpfulCommand = &cobra.Command{
	Use:    "helpful",
	Short:  "Display comprehensive help for all commands",
	Long:   `Displays help information for all prebuild commands in a single, styled output.`,
	Hidden: true, // Hide from normal help output
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		processCommand(cmd.Root(), "", w)
		return nil
	},
}

// processCommand recursively writes the help of a command and its subcommands
func processCommand(cmd *cobra.Command, prefix string, w io.Writer) {
	if shouldSkipCommand(cmd) {
		return
	}

	cmdPath := buildCommandPath(cmd, prefix)

	// Root command gets no header
	if cmd.HasParent() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("## %s", cmdPath)))
		fmt.Fprintln(w)
	}

	cmd.SetOut(w)
	_ = cmd.Help()

	fmt.Fprintln(w)
	fmt.Fprintln(w, separatorStyle.Render(strings.Repeat("─", 80)))
	fmt.Fprintln(w)

	for _, subCmd := range cmd.Commands() {
		if !subCmd.Hidden && subCmd.Name() != "help" {
			processCommand(subCmd, cmdPath, w)
		}
	}
}

// shouldSkipCommand determines if a command should be skipped
func shouldSkipCommand(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "completion", "help", "helpful":
		return true
	}
	return false
}

// buildCommandPath builds the full command path
func buildCommandPath(cmd *cobra.Command, prefix string) string {
	if prefix == "" {
		return cmd.Name()
	}
	return prefix + " " + cmd.Name()
}
