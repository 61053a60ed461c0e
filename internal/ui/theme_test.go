package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/parcel/internal/config"
)

func TestApplyTheme(t *testing.T) {
	orig := colorGreen
	t.Cleanup(func() {
		colorGreen = orig
		rebuildStyles()
	})

	green := "#00ff00"
	empty := ""
	ApplyTheme(config.ThemeConfig{Green: &green, Red: &empty})

	assert.Equal(t, lipgloss.Color("#00ff00"), colorGreen)
	assert.Equal(t, lipgloss.Color("#f38ba8"), colorRed)
	assert.Equal(t, lipgloss.TerminalColor(colorGreen), styleIconDone.GetForeground())
}
