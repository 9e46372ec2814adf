package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/ytfetch/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// mark renders the status symbol of an item in its palette color.
func (p *Palette) mark(s models.ItemStatus) string {
	switch s {
	case models.ItemCompleted:
		return p.ok.Render("✓")
	case models.ItemFailed:
		return p.err.Render("✗")
	case models.ItemSkipped:
		return p.warn.Render("↷")
	case models.ItemDownloading:
		return p.title.UnsetMarginBottom().Render("↓")
	case models.ItemChecking:
		return p.help.Render("?")
	default:
		return p.help.Render("·")
	}
}
