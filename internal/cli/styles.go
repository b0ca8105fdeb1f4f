package cli

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	case "partial", "in_progress", "cancelled":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	case "failed", "blocked":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	default:
		return mutedStyle
	}
}
