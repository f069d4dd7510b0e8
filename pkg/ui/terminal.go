package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Banner is printed above interactive commands
const Banner = `
 ╦╔═╗╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
 ║║ ╦╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
 ╩╚═╝╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩
`

var (
	colorCyan    = lipgloss.Color("#00FFFF")
	colorYellow  = lipgloss.Color("#FFFF00")
	colorRed     = lipgloss.Color("#FF3B30")
	colorGreen   = lipgloss.Color("#39FF14")
	colorMagenta = lipgloss.Color("#FF00FF")
	colorDim     = lipgloss.Color("#7A7A7A")

	bannerStyle    = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(colorCyan)
	valueStyle     = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle     = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	successStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	highlightStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(colorDim)
)

// Output is where the Print helpers write
var Output io.Writer = os.Stdout

// PrintBanner prints the application banner
func PrintBanner() {
	fmt.Fprint(Output, bannerStyle.Render(Banner)+"\n")
}

// PrintError prints an error message, optionally followed by a detail
func PrintError(msg string, args ...interface{}) {
	fmt.Fprintln(Output, errorStyle.Render(withDetail(msg, args)))
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	fmt.Fprintln(Output, successStyle.Render(msg))
}

// PrintInfo prints a label: value pair
func PrintInfo(label string, value string) {
	fmt.Fprintf(Output, "%s: %s\n", labelStyle.Render(label), valueStyle.Render(value))
}

// PrintWarning prints a warning message, optionally followed by a detail
func PrintWarning(msg string, args ...interface{}) {
	fmt.Fprintln(Output, warningStyle.Render(withDetail(msg, args)))
}

// PrintHighlight prints a highlighted message
func PrintHighlight(msg string) {
	fmt.Fprintln(Output, highlightStyle.Render(msg))
}

func withDetail(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	if s, ok := args[0].(string); ok && s == "" {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, args[0])
}
