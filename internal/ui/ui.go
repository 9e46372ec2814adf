package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytfetch/internal/formatter"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	WatchView ViewState = iota
	ResultView
)

const (
	subscriberBuffer = 64
	maxActiveRows    = 8
	maxBarWidth      = 60
)

// Feed registers live subscribers for a task.
type Feed interface {
	Subscribe(taskID string, sub tasks.Subscriber) (func(), error)
}

// Opts configures a [Model].
type Opts struct {
	QuitOnFinish bool // exit the program as soon as the task reaches a terminal state
}

// Model represents the TUI application state.
type Model struct {
	taskID      string
	feed        Feed
	opts        Opts
	view        ViewState
	sub         *tasks.ChannelSubscriber
	unsubscribe func()
	task        models.Task
	items       []models.Item
	err         error
	width       int
	height      int
	bar         progress.Model
	itemList    list.Model
	help        help.Model
	keys        keyMap
}

// NewModel creates a TUI model that watches taskID.
func NewModel(taskID string, feed Feed, opts Opts) *Model {
	return &Model{
		taskID: taskID,
		feed:   feed,
		opts:   opts,
		view:   WatchView,
		task:   models.Task{ID: taskID},
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Task returns the most recent task state received.
func (m *Model) Task() models.Task { return m.task }

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Err returns the subscription error, if any.
func (m *Model) Err() error { return m.err }

// Init subscribes to the task.
func (m *Model) Init() tea.Cmd {
	return m.subscribe()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
		if m.view == ResultView {
			m.itemList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) && !m.filtering() {
			m.stop()
			return m, tea.Quit
		}
		if m.view == ResultView {
			var cmd tea.Cmd
			m.itemList, cmd = m.itemList.Update(msg)
			return m, cmd
		}
		return m, nil

	case Msg:
		return m.handle(msg)
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.itemList, cmd = m.itemList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handle(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSubscribed:
		s := msg.data.(subscription)
		if s.err != nil {
			m.err = s.err
			return m.finish()
		}
		m.sub = s.sub
		m.unsubscribe = s.unsubscribe
		return m, m.waitForUpdate()

	case MsgUpdate:
		m.apply(msg.data.(models.Message))
		return m, m.waitForUpdate()

	case MsgWatchEnded:
		return m.finish()
	}
	return m, nil
}

// apply copies the task view of a bridge message; progress updates also carry every item.
func (m *Model) apply(msg models.Message) {
	if t := msg.Task(); t != nil {
		m.task = *t
	}
	if msg.Type == models.ProgressUpdate {
		m.items = msg.Items
	}
}

func (m *Model) finish() (tea.Model, tea.Cmd) {
	m.stop()
	m.view = ResultView
	m.itemList = newItemList(m.items, max(m.width-4, 0), max(m.height-8, 0))
	if m.opts.QuitOnFinish {
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) filtering() bool {
	return m.view == ResultView && m.itemList.FilterState() == list.Filtering
}

func (m *Model) subscribe() tea.Cmd {
	return func() tea.Msg {
		sub := tasks.NewChannelSubscriber(subscriberBuffer)
		unsubscribe, err := m.feed.Subscribe(m.taskID, sub)
		return subscribedMsg(sub, unsubscribe, err)
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		if sub == nil {
			return watchEndedMsg()
		}
		update, ok := <-sub.Messages()
		if !ok {
			return watchEndedMsg()
		}
		return updateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case WatchView:
		return m.renderWatch()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderWatch() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Downloading " + m.target()))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s  %s\n\n", m.task.Status, styles.help.Render(m.taskID))
	b.WriteString(m.bar.ViewAs(m.task.Progress / 100))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %d completed  %s %d skipped  %s %d failed  of %d\n",
		styles.mark(models.ItemCompleted), m.task.Completed,
		styles.mark(models.ItemSkipped), m.task.Skipped,
		styles.mark(models.ItemFailed), m.task.Failed,
		m.task.Total)
	if m.task.Activity != "" {
		b.WriteString(m.task.Activity + "\n")
	}
	if m.task.Rate != "" {
		fmt.Fprintf(&b, "%s | ETA: %s\n", m.task.Rate, m.task.ETA)
	}

	rows := 0
	for _, it := range m.items {
		if it.Status != models.ItemDownloading && it.Status != models.ItemChecking {
			continue
		}
		if rows == 0 {
			b.WriteString("\n")
		}
		if rows == maxActiveRows {
			b.WriteString(styles.help.Render("  …") + "\n")
			break
		}
		fmt.Fprintf(&b, "  %s %s %5.1f%%\n", styles.mark(it.Status), it.Title, it.Progress)
		rows++
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	var title string
	if m.task.Status == models.TaskFailed {
		msg := m.task.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		title = styles.err.Render("✗ Task failed: " + msg)
	} else {
		title = styles.ok.Render("✓ " + m.task.Activity)
	}
	summary := formatter.Summary(m.task)

	if len(m.items) == 0 {
		return fmt.Sprintf("%s\n%s\n\n%s", title, summary, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	}
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.filter, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, summary, m.itemList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) target() string {
	if m.task.Target != "" {
		return m.task.Target
	}
	return "task"
}
