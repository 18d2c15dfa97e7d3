package cmd

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// Style definitions
var (
	// Color profile detection
	profile = colorprofile.Detect(os.Stdout, os.Environ())

	colorful = profile == colorprofile.TrueColor || profile == colorprofile.ANSI256

	// Styles with adaptive colors based on terminal capabilities
	headerStyle = func() lipgloss.Style {
		if colorful {
			return lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))
		}
		return lipgloss.NewStyle().Bold(true)
	}()

	separatorStyle = func() lipgloss.Style {
		if colorful {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
		}
		return lipgloss.NewStyle().Faint(true)
	}()

	errorStyle = func() lipgloss.Style {
		if colorful {
			return lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))
		}
		return lipgloss.NewStyle()
	}()

	commandStyle = func() lipgloss.Style {
		if colorful {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("81"))
		}
		return lipgloss.NewStyle()
	}()
)
