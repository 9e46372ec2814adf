package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
)

var _ list.Item = itemEntry{}

// itemEntry wraps [models.Item] to implement [list.Item].
type itemEntry struct {
	item models.Item
}

func (i itemEntry) FilterValue() string { return i.item.Title }
func (i itemEntry) Title() string {
	return fmt.Sprintf("%s %s", styles.mark(i.item.Status), i.item.Title)
}

func (i itemEntry) Description() string {
	switch i.item.Status {
	case models.ItemFailed:
		return "failed • " + i.item.Error
	case models.ItemSkipped:
		return "skipped • " + i.item.SkipReason
	case models.ItemCompleted:
		return fmt.Sprintf("%s • %s", i.item.Filename, shared.FormatSize(i.item.TotalBytes))
	default:
		return string(i.item.Status)
	}
}

func newItemList(items []models.Item, width, height int) list.Model {
	entries := make([]list.Item, len(items))
	for i, it := range items {
		entries[i] = itemEntry{item: it}
	}
	l := list.New(entries, list.NewDefaultDelegate(), width, height)
	l.Title = "Items"
	l.SetShowHelp(false)
	return l
}
