package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/parcel/internal/config"
)

// Catppuccin Mocha palette, overridable from the config file.
var (
	colorGreen  = lipgloss.Color("#a6e3a1")
	colorRed    = lipgloss.Color("#f38ba8")
	colorYellow = lipgloss.Color("#f9e2af")
	colorTeal   = lipgloss.Color("#94e2d5")
	colorMauve  = lipgloss.Color("#cba6f7")
	colorMuted  = lipgloss.Color("#5a6278")
)

var (
	styleIconDone    lipgloss.Style
	styleIconFailed  lipgloss.Style
	styleIconSkipped lipgloss.Style
	styleDir         lipgloss.Style
	styleLabel       lipgloss.Style
	styleNumber      lipgloss.Style
	styleSparkline   lipgloss.Style
)

const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconSkipped = "–"
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleIconDone = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconFailed = lipgloss.NewStyle().Foreground(colorRed)
	styleIconSkipped = lipgloss.NewStyle().Foreground(colorYellow)
	styleDir = lipgloss.NewStyle().Foreground(colorMuted)
	styleLabel = lipgloss.NewStyle().Foreground(colorMauve)
	styleNumber = lipgloss.NewStyle().Bold(true)
	styleSparkline = lipgloss.NewStyle().Foreground(colorTeal)
}

// ApplyTheme overrides palette colors with any set in the config. Call it
// before creating a presenter.
func ApplyTheme(t config.ThemeConfig) {
	set := func(dst *lipgloss.Color, v *string) {
		if v != nil && *v != "" {
			*dst = lipgloss.Color(*v)
		}
	}
	set(&colorGreen, t.Green)
	set(&colorRed, t.Red)
	set(&colorYellow, t.Yellow)
	set(&colorTeal, t.Teal)
	set(&colorMauve, t.Mauve)
	set(&colorMuted, t.Muted)
	rebuildStyles()
}
