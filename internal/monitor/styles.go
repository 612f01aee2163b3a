package monitor

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/voltlabs/volt/internal/version"
)

const appName = "VOLT MONITOR"

// Layout constants
const (
	MinTerminalWidth  = 72
	MinTerminalHeight = 12
	MaxContentWidth   = 160
)

// Color palette
var (
	PrimaryColor   = lipgloss.Color("#7D56F4") // Purple
	SecondaryColor = lipgloss.Color("#43BF6D") // Green
	WarningColor   = lipgloss.Color("#FFA500") // Orange
	ErrorColor     = lipgloss.Color("#FF5555") // Red
	TextColor      = lipgloss.Color("#FFFFFF") // White
	SubtleColor    = lipgloss.Color("#626262") // Gray
	BorderColor    = PrimaryColor
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor).
			Italic(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	PendingStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	FailureStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	PausedStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)
)

// TerminalSize returns the size of stdout, clamped to the supported range.
func TerminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, 24
	}
	return clampSize(width, height)
}

func clampSize(width, height int) (int, int) {
	width = min(max(width, MinTerminalWidth), MaxContentWidth)
	height = max(height, MinTerminalHeight)
	return width, height
}

// statusStyle picks a color for a response code. Pending records have no
// code yet.
func statusStyle(code *int) lipgloss.Style {
	switch {
	case code == nil:
		return PendingStyle
	case *code < 0 || *code >= 400:
		return FailureStyle
	default:
		return SuccessStyle
	}
}

func buildHeader(summary string) string {
	left := TitleStyle.Render(appName + " " + version.Version)
	right := SubtitleStyle.Render(summary)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// renderContainer wraps content in the bordered full-screen panel with a
// header on top and the help footer pinned below.
func renderContainer(header, content, footer string, width, height int) string {
	section := lipgloss.NewStyle().
		BorderForeground(BorderColor).
		Width(width-4).
		Padding(0, 1)

	styledHeader := section.BorderStyle(lipgloss.Border{Bottom: "─"}).Render(header)
	styledFooter := section.BorderStyle(lipgloss.Border{Top: "─"}).Render(footer)
	styledContent := lipgloss.NewStyle().Width(width - 4).Render(content)

	inner := lipgloss.JoinVertical(lipgloss.Left, styledHeader, styledContent, styledFooter)

	bordered := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(BorderColor).
		Width(width - 2).
		Height(height - 2).
		AlignVertical(lipgloss.Top).
		Render(inner)

	return lipgloss.Place(width, height, lipgloss.Left, lipgloss.Top, bordered)
}
