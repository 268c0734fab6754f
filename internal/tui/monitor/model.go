package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/offsync/internal/engine"
	"github.com/marcus/offsync/internal/models"
)

// Panel represents which panel is active
type Panel int

const (
	PanelQueue Panel = iota
	PanelConflicts
	PanelHistory
)

const panelCount = 3

// SyncFunc runs a manual drain
type SyncFunc func(ctx context.Context) (engine.Result, error)

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	Source Source
	Sync   SyncFunc // nil disables the "s" key

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status    engine.Status
	Pending   []*models.MutationRecord
	Conflicts []*models.ConflictRecord
	History   []models.SyncHistoryEntry

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	ShowHelp     bool
	Filter       textinput.Model
	Filtering    bool
	Syncing      bool
	LastResult   string
	LastRefresh  time.Time
	Err          error // Last error, if any

	// Configuration
	RefreshInterval time.Duration
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    engine.Status
	Pending   []*models.MutationRecord
	Conflicts []*models.ConflictRecord
	History   []models.SyncHistoryEntry
	Timestamp time.Time
	Err       error
}

// SyncDoneMsg reports a finished manual drain
type SyncDoneMsg struct {
	Result engine.Result
	Err    error
}

// NewModel creates a new monitor model
func NewModel(src Source, sync SyncFunc, interval time.Duration) Model {
	ti := textinput.New()
	ti.Placeholder = "filter queue"
	ti.Prompt = "/"
	ti.CharLimit = 64
	ti.Width = 30

	return Model{
		Source:          src,
		Sync:            sync,
		RefreshInterval: interval,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelQueue,
		Filter:          ti,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Err = msg.Err
		m.Status = msg.Status
		m.Pending = msg.Pending
		if msg.Err == nil {
			m.Conflicts = msg.Conflicts
			m.History = msg.History
		}
		m.LastRefresh = msg.Timestamp
		return m, nil

	case SyncDoneMsg:
		m.Syncing = false
		if msg.Err != nil {
			m.LastResult = "sync: " + msg.Err.Error()
		} else {
			m.LastResult = formatResult(msg.Result)
		}
		return m, m.fetchData()
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelQueue
		return m, nil

	case "2":
		m.ActivePanel = PanelConflicts
		return m, nil

	case "3":
		m.ActivePanel = PanelHistory
		return m, nil

	case "j", "down":
		if m.ScrollOffset[m.ActivePanel] < m.panelLen(m.ActivePanel)-1 {
			m.ScrollOffset[m.ActivePanel]++
		}
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "/":
		m.Filtering = true
		m.ActivePanel = PanelQueue
		return m, m.Filter.Focus()

	case "s":
		if m.Sync == nil || m.Syncing {
			return m, nil
		}
		m.Syncing = true
		m.LastResult = ""
		return m, m.runSync()

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// handleFilterKey routes keys to the filter input until enter or esc
func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.Filtering = false
		m.Filter.Blur()
		m.ScrollOffset[PanelQueue] = 0
		return m, nil
	case "esc":
		m.Filtering = false
		m.Filter.Blur()
		m.Filter.SetValue("")
		m.ScrollOffset[PanelQueue] = 0
		return m, nil
	}

	var cmd tea.Cmd
	m.Filter, cmd = m.Filter.Update(msg)
	return m, cmd
}

func (m Model) visiblePending() []*models.MutationRecord {
	return filterPending(m.Pending, m.Filter.Value())
}

func (m Model) panelLen(p Panel) int {
	switch p {
	case PanelQueue:
		return len(m.visiblePending())
	case PanelConflicts:
		return len(m.Conflicts)
	default:
		return len(m.History)
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		return FetchData(src)
	}
}

func (m Model) runSync() tea.Cmd {
	sync := m.Sync
	return func() tea.Msg {
		res, err := sync(context.Background())
		return SyncDoneMsg{Result: res, Err: err}
	}
}
