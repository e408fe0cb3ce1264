package main

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual styling for the sol dashboard.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default theme for sol-dash.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// statusColor maps a transmission status to its badge color.
func (t Theme) statusColor(status string) lipgloss.Color {
	switch status {
	case "succeeded":
		return t.Success
	case "failed":
		return t.Error
	case "pending", "sending":
		return t.Warning
	default:
		return t.Muted
	}
}
