// Package common provides shared styles for the terminal client.
package common

import "github.com/charmbracelet/lipgloss"

// Icon constants
const (
	WinIcon   = "🏆"
	DeadIcon  = "💀"
	AliveIcon = "🟢"

	FilledCell = "██"
	EmptyCell  = " ."
)

// Lipgloss Styles
var (
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("228")).Bold(true).Render
	BoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	MeBoxStyle = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("39"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// pieceColors 颜色码 1-7 对应 I O T S Z J L
var pieceColors = [...]lipgloss.Color{
	"51",  // I cyan
	"226", // O yellow
	"129", // T purple
	"46",  // S green
	"196", // Z red
	"21",  // J blue
	"208", // L orange
}

// CellStyle returns the style for a board color code; 0 or unknown codes render dim.
func CellStyle(color int) lipgloss.Style {
	if color < 1 || color > len(pieceColors) {
		return DimStyle
	}
	return lipgloss.NewStyle().Foreground(pieceColors[color-1])
}
