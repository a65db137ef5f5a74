package form

import (
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Appearance modes.
const (
	AppearanceDark   = "dark"
	AppearanceLight  = "light"
	AppearanceSystem = "system"
)

var (
	appearanceOnce sync.Once
	appliedTheme   *huh.Theme
)

// ApplyAppearance sets the terminal background mode for the process and
// resolves the named theme.  Only the first call has an effect; later calls
// return the theme chosen by the first.
func ApplyAppearance(mode, theme string) *huh.Theme {
	appearanceOnce.Do(func() {
		switch strings.ToLower(mode) {
		case AppearanceDark:
			lipgloss.SetHasDarkBackground(true)
		case AppearanceLight:
			lipgloss.SetHasDarkBackground(false)
		}
		appliedTheme = ThemeByName(theme)
	})
	return appliedTheme
}

// ThemeByName maps a configured theme name to a huh theme.  Unknown names
// fall back to charm.
func ThemeByName(name string) *huh.Theme {
	switch strings.ToLower(name) {
	case "dracula":
		return huh.ThemeDracula()
	case "catppuccin":
		return huh.ThemeCatppuccin()
	case "base16":
		return huh.ThemeBase16()
	case "base":
		return huh.ThemeBase()
	default:
		return huh.ThemeCharm()
	}
}
