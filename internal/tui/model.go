package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/samber/mo"

	"github.com/theakshaypant/calmirror/internal/calsync"
	"github.com/theakshaypant/calmirror/internal/clock"
	"github.com/theakshaypant/calmirror/internal/core"
	"github.com/theakshaypant/calmirror/internal/syncstate"
	"github.com/theakshaypant/calmirror/internal/util"
)

// Source is what the dashboard reads and drives.
type Source interface {
	Status(ctx context.Context, accountID string) (calsync.AccountStatus, error)
	ForceSync(ctx context.Context, accountID, calendarID string) error
	Policy() syncstate.Policy
}

// KeyMap defines the keybindings for the TUI
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Force      key.Binding
	Refresh    key.Binding
	Tab        key.Binding
	Quit       key.Binding
	Help       key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓", "down"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("ctrl+u", "pgup"),
		key.WithHelp("ctrl+u", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("ctrl+d", "pgdown"),
		key.WithHelp("ctrl+d", "scroll down"),
	),
	Force: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "force sync"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch panel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
}

// Panel focus for compact mode
type PanelFocus int

const (
	FocusList PanelFocus = iota
	FocusDetail
)

// refreshInterval paces the background status reload.
const refreshInterval = 10 * time.Second

// row is one line of the sync list: the calendar list itself when
// calendarID is empty, otherwise one mirrored calendar.
type row struct {
	calendarID string
	nextSyncAt time.Time
	failures   int
	hasCursor  bool
	lastSynced mo.Option[time.Time]
	covered    mo.Option[core.DateRange]
}

func (r row) label() string {
	if r.calendarID == "" {
		return "Calendar list"
	}
	return r.calendarID
}

// Model is the Bubble Tea model for the sync dashboard
type Model struct {
	accountID     string
	source        Source
	mirror        core.EventReader
	clock         clock.Clock
	rows          []row
	events        []core.Event
	selectedIdx   int
	width         int
	height        int
	listWidth     int
	detailWidth   int
	contentHeight int
	keys          KeyMap
	loading       bool
	err           error
	notice        string
	listView      viewport.Model
	detailView    viewport.Model
	viewportReady bool
	compactMode   bool       // True when terminal is too narrow for side-by-side
	focusedPanel  PanelFocus // Which panel is shown in compact mode
	showHelp      bool       // Whether the help overlay is visible
}

// NewModel creates a dashboard for one account.
func NewModel(accountID string, source Source, mirror core.EventReader, clk clock.Clock) Model {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return Model{
		accountID: accountID,
		source:    source,
		mirror:    mirror,
		clock:     clk,
		keys:      DefaultKeyMap,
		loading:   true,
	}
}

// Messages
type statusLoadedMsg struct {
	status calsync.AccountStatus
	err    error
}

type eventsLoadedMsg struct {
	calendarID string
	events     []core.Event
	err        error
}

type forcedMsg struct {
	target string
	err    error
}

type tickMsg time.Time

// Commands
func (m Model) loadStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := m.source.Status(context.Background(), m.accountID)
		return statusLoadedMsg{status: status, err: err}
	}
}

// loadEvents reads the mirrored events of the selected calendar for the
// next day. The calendar list row has none.
func (m Model) loadEvents() tea.Cmd {
	r, ok := m.selected()
	if !ok || r.calendarID == "" || m.mirror == nil {
		return nil
	}
	now := m.clock.Now()
	return func() tea.Msg {
		events, err := m.mirror.ListEvents(context.Background(), core.EventFilter{
			AccountID:   m.accountID,
			CalendarIDs: []string{r.calendarID},
			Start:       now,
			End:         now.Add(24 * time.Hour),
		})
		return eventsLoadedMsg{calendarID: r.calendarID, events: events, err: err}
	}
}

func (m Model) forceSync(r row) tea.Cmd {
	return func() tea.Msg {
		err := m.source.ForceSync(context.Background(), m.accountID, r.calendarID)
		return forcedMsg{target: r.label(), err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadStatus(), tickCmd())
}

func (m Model) selected() (row, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.selectedIdx], true
}

// rowsFrom flattens an account status, list first.
func rowsFrom(status calsync.AccountStatus) []row {
	var rows []row
	if list, ok := status.List.Get(); ok {
		rows = append(rows, row{
			nextSyncAt: list.NextSyncAt,
			failures:   list.FailedSyncCount,
			hasCursor:  list.SyncToken.IsPresent(),
			lastSynced: list.LastSynced,
			covered:    mo.None[core.DateRange](),
		})
	}
	for _, s := range status.Calendars {
		rows = append(rows, row{
			calendarID: s.CalendarID,
			nextSyncAt: s.NextSyncAt,
			failures:   s.FailedSyncCount,
			hasCursor:  s.SyncToken.IsPresent(),
			lastSynced: s.LastSynced,
			covered:    s.SyncedRange,
		})
	}
	return rows
}

// calculateLayout calculates responsive layout dimensions
func (m *Model) calculateLayout() {
	height := max(m.height, 10)

	// Header: ~2 lines, Help: ~2 lines, Padding: ~2 lines
	m.contentHeight = max(height-6, 5)

	m.compactMode = m.width < 70
	if m.compactMode {
		m.listWidth = max(m.width-4, 20)
		m.detailWidth = m.listWidth
		return
	}

	m.listWidth = m.width * 40 / 100
	if m.listWidth > 55 {
		m.listWidth = 55
	}
	m.listWidth = max(m.listWidth, 30)
	m.detailWidth = max(m.width-m.listWidth-5, 35)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.calculateLayout()

		listW, listH := max(m.listWidth-4, 10), max(m.contentHeight-4, 1)
		detailW, detailH := max(m.detailWidth-4, 10), max(m.contentHeight-4, 1)
		if !m.viewportReady {
			m.listView = viewport.New(listW, listH)
			m.listView.Style = lipgloss.NewStyle()
			m.detailView = viewport.New(detailW, detailH)
			m.detailView.Style = lipgloss.NewStyle()
			m.viewportReady = true
		} else {
			m.listView.Width, m.listView.Height = listW, listH
			m.detailView.Width, m.detailView.Height = detailW, detailH
		}
		m.updateListContent()
		m.updateDetailContent()
		return m, nil

	case statusLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		var current string
		if r, ok := m.selected(); ok {
			current = r.calendarID
		}
		m.rows = rowsFrom(msg.status)
		m.selectedIdx = 0
		for i, r := range m.rows {
			if r.calendarID == current {
				m.selectedIdx = i
				break
			}
		}
		m.updateListContent()
		m.updateDetailContent()
		return m, m.loadEvents()

	case eventsLoadedMsg:
		r, ok := m.selected()
		if !ok || r.calendarID != msg.calendarID {
			// Selection moved on while loading
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.events = msg.events
		m.updateDetailContent()
		return m, nil

	case forcedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("force sync of %s: %w", msg.target, msg.err)
			return m, nil
		}
		m.notice = msg.target + " scheduled"
		return m, m.loadStatus()

	case tickMsg:
		return m, tea.Batch(m.loadStatus(), tickCmd())

	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
			return m, nil

		case key.Matches(msg, m.keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				return m, m.selectionChanged()
			}

		case key.Matches(msg, m.keys.Down):
			if m.selectedIdx < len(m.rows)-1 {
				m.selectedIdx++
				return m, m.selectionChanged()
			}

		case key.Matches(msg, m.keys.ScrollUp):
			m.detailView.ViewUp()

		case key.Matches(msg, m.keys.ScrollDown):
			m.detailView.ViewDown()

		case key.Matches(msg, m.keys.Force):
			if r, ok := m.selected(); ok {
				m.notice = ""
				return m, m.forceSync(r)
			}

		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, m.loadStatus()

		case key.Matches(msg, m.keys.Tab):
			if m.focusedPanel == FocusList {
				m.focusedPanel = FocusDetail
			} else {
				m.focusedPanel = FocusList
			}
		}
	}
	return m, nil
}

func (m *Model) selectionChanged() tea.Cmd {
	m.events = nil
	m.updateListContent()
	m.updateDetailContent()
	m.scrollListToSelection()
	return m.loadEvents()
}

// View renders the model
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	var body string
	switch {
	case m.showHelp:
		body = m.renderHelpPanel()
	case m.compactMode && m.focusedPanel == FocusDetail:
		body = m.renderDetailPanel()
	case m.compactMode:
		body = m.renderListPanel()
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderListPanel(), " ", m.renderDetailPanel())
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderHelp()))
}

func (m Model) renderHeader() string {
	line := HeaderStyle.MarginBottom(0).Render("calmirror · " + m.accountID)
	switch {
	case m.err != nil:
		line += "  " + ErrorStyle.Render(util.TruncateText(m.err.Error(), max(m.width-len(m.accountID)-20, 10)))
	case m.loading:
		line += "  " + MutedStyle.Render("loading…")
	case m.notice != "":
		line += "  " + NoticeStyle.Render(m.notice)
	}
	return lipgloss.NewStyle().MarginBottom(1).Render(line)
}

// updateListContent updates the list viewport with the current rows
func (m *Model) updateListContent() {
	if !m.viewportReady {
		return
	}
	lines := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		lines = append(lines, m.renderRow(r, i == m.selectedIdx, m.listView.Width))
	}
	m.listView.SetContent(strings.Join(lines, "\n"))
}

// scrollListToSelection scrolls the list viewport to keep the selected row visible
func (m *Model) scrollListToSelection() {
	if !m.viewportReady || len(m.rows) == 0 {
		return
	}
	top := m.listView.YOffset
	bottom := top + m.listView.Height - 1
	if m.selectedIdx < top {
		m.listView.SetYOffset(m.selectedIdx)
	} else if m.selectedIdx > bottom {
		m.listView.SetYOffset(m.selectedIdx - m.listView.Height + 1)
	}
}

func (m Model) renderListPanel() string {
	if len(m.rows) == 0 {
		return ListPanelStyle.Width(m.listWidth).Height(m.contentHeight).Render(
			MutedStyle.Render("Sync not enabled for this account"),
		)
	}

	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render("Syncs") + MutedStyle.Render(fmt.Sprintf(" (%d/%d)", m.selectedIdx+1, len(m.rows)))

	return ListPanelStyle.Width(m.listWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, m.listView.View()),
	)
}

func (m Model) renderRow(r row, selected bool, maxWidth int) string {
	badge := BadgeStyle.Render(m.healthBadge(r))
	label := util.TruncateText(r.label(), max(maxWidth-12, 10))
	line := badge + " " + label
	if selected {
		return SelectedItemStyle.Render(line)
	}
	return NormalItemStyle.Render(line)
}

// healthBadge summarizes a row: failing, due or ok.
func (m Model) healthBadge(r row) string {
	now := m.clock.Now()
	switch {
	case r.failures > 0:
		return StatusFailingStyle.Render(fmt.Sprintf("✗ %d", r.failures))
	case !r.nextSyncAt.After(now):
		return StatusDueStyle.Render("● due")
	default:
		return StatusOKStyle.Render("✓ ok")
	}
}

// updateDetailContent updates the viewport with the selected row's details
func (m *Model) updateDetailContent() {
	if !m.viewportReady {
		return
	}
	r, ok := m.selected()
	if !ok {
		m.detailView.SetContent("")
		return
	}

	now := m.clock.Now()
	width := m.detailView.Width
	var lines []string

	lines = append(lines, TitleStyle.Render(ansi.Wordwrap(r.label(), width, "")))
	lines = append(lines, renderField("Next sync", formatRelative(r.nextSyncAt, now)))
	lines = append(lines, renderField("Failures", fmt.Sprint(r.failures)))
	if last, ok := r.lastSynced.Get(); ok {
		lines = append(lines, renderField("Last synced", formatRelative(last, now)))
	} else {
		lines = append(lines, renderField("Last synced", "never"))
	}
	mode := "full"
	if r.hasCursor {
		mode = "incremental"
	}
	lines = append(lines, renderField("Next mode", mode))

	if r.calendarID != "" {
		policy := m.source.Policy()
		covered := "none"
		if c, ok := r.covered.Get(); ok {
			covered = formatRange(c)
		}
		lines = append(lines, renderWrappedField("Covered", covered, width))

		state := syncstate.CalendarSync{
			AccountID:   m.accountID,
			CalendarID:  r.calendarID,
			LastSynced:  r.lastSynced,
			SyncedRange: r.covered,
		}
		window := core.NewDateRange(now, now.Add(24*time.Hour))
		if state.IsFresh(window, now, policy) {
			lines = append(lines, renderField("Mirror", StatusOKStyle.Render("fresh")))
		} else {
			lines = append(lines, renderField("Mirror", StatusDueStyle.Render("stale")))
		}

		lines = append(lines, "", LabelStyle.Render("Next 24h"))
		if len(m.events) == 0 {
			lines = append(lines, MutedStyle.Render("  No mirrored events"))
		}
		for _, e := range m.events {
			lines = append(lines, m.renderEvent(e, width))
		}
	}

	m.detailView.SetContent(strings.Join(lines, "\n"))
}

func (m Model) renderEvent(e core.Event, width int) string {
	when := "All day"
	if !e.IsAllDay {
		when = e.Start.Local().Format("Mon 15:04")
	}
	title := util.TruncateText(e.Title, max(width-14, 10))
	if e.URL != "" {
		title = util.MakeHyperlink(e.URL, LinkStyle.Render(title))
	}
	line := TimeStyle.Render(when) + " " + EventStyle.Render(title)
	if e.Location != "" {
		line += "\n" + MutedStyle.Render("             "+util.TruncateText(e.Location, max(width-14, 10)))
	}
	if e.Description != "" {
		desc := util.HTMLToText(e.Description, width-13)
		first, _, _ := strings.Cut(desc, "\n")
		line += "\n" + MutedStyle.Render("             "+util.TruncateText(first, max(width-14, 10)))
	}
	return line
}

func (m Model) renderDetailPanel() string {
	if len(m.rows) == 0 {
		return DetailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(
			MutedStyle.Render("Run `calmirror enable` to start mirroring"),
		)
	}

	scrollInfo := ""
	if m.viewportReady && m.detailView.TotalLineCount() > m.detailView.Height {
		scrollInfo = MutedStyle.Render(fmt.Sprintf(" (%d%%)", int(m.detailView.ScrollPercent()*100)))
	}
	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render("Sync Details") + scrollInfo

	return DetailPanelStyle.Width(m.detailWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", m.detailView.View()),
	)
}

func (m Model) renderHelp() string {
	keys := []string{
		HelpKeyStyle.Render("↑/↓") + " nav",
		HelpKeyStyle.Render("s") + " force sync",
		HelpKeyStyle.Render("r") + " refresh",
		HelpKeyStyle.Render("tab") + " panel",
		HelpKeyStyle.Render("q") + " quit",
	}
	fullLine := strings.Join(keys, "  •  ")
	if lipgloss.Width(fullLine) > m.width-4 {
		return HelpStyle.Render(HelpKeyStyle.Render("?") + " help")
	}
	return HelpStyle.Render(fullLine)
}

func (m Model) renderHelpPanel() string {
	header := lipgloss.NewStyle().
		Foreground(primaryColor).
		Bold(true).
		Render("Keyboard Shortcuts")

	lines := []string{
		"",
		HelpKeyStyle.Render("  ↑ / k      ") + " Move up",
		HelpKeyStyle.Render("  ↓ / j      ") + " Move down",
		HelpKeyStyle.Render("  ctrl+u/d   ") + " Scroll detail panel",
		HelpKeyStyle.Render("  s          ") + " Make the selected sync due now",
		HelpKeyStyle.Render("  r          ") + " Reload sync status",
		HelpKeyStyle.Render("  tab        ") + " Switch panel",
		HelpKeyStyle.Render("  q / ctrl+c ") + " Quit",
		"",
		MutedStyle.Render("  Press any key to close"),
	}

	panelWidth := m.detailWidth
	if m.compactMode {
		panelWidth = m.listWidth
	}
	return DetailPanelStyle.Width(panelWidth).Height(m.contentHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n")),
	)
}

// Helper functions

func renderField(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

func renderWrappedField(label, value string, maxWidth int) string {
	labelRendered := LabelStyle.Render(label)
	valueWidth := max(maxWidth-lipgloss.Width(labelRendered)-1, 10)
	wrapped := ansi.Wordwrap(value, valueWidth, "")
	indent := strings.Repeat(" ", lipgloss.Width(labelRendered)+1)
	wrapped = strings.ReplaceAll(wrapped, "\n", "\n"+indent)
	return labelRendered + " " + ValueStyle.Render(wrapped)
}

// formatRelative renders t against now, e.g. "in 5m" or "2h ago".
func formatRelative(t, now time.Time) string {
	d := t.Sub(now)
	switch {
	case d > -time.Second && d < time.Second:
		return "now"
	case d > 0:
		return "in " + formatDuration(d)
	default:
		return formatDuration(-d) + " ago"
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		if m := int(d.Minutes()) % 60; m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatRange(r core.DateRange) string {
	return r.Start.Local().Format("Jan 2 2006") + " → " + r.End.Local().Format("Jan 2 2006")
}
