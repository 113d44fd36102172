// Package ui holds the terminal styling used by the plexproxy CLI.
//
// [Palette] wraps a handful of [lipgloss.Style] values (title, ok, error, warning, help).
// Output is plain text when stdout is not a terminal, since lipgloss detects the color profile.
package ui
