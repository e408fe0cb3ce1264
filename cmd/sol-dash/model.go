package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// refreshInterval is the polling cadence; the fs watch usually beats it.
const refreshInterval = 2 * time.Second

// snapshotMsg carries a fresh read of the outbox.
type snapshotMsg struct {
	snap Snapshot
	err  error
}

// tickMsg drives the periodic refresh.
type tickMsg time.Time

// model is the bubbletea model for the dashboard.
type model struct {
	dbPath string
	theme  Theme
	table  table.Model
	counts map[string]int
	err    error
	width  int
}

func newModel(dbPath string) model {
	theme := DefaultTheme()

	t := table.New(
		table.WithColumns(tableColumns(80)),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(theme.Primary)
	styles.Selected = styles.Selected.Foreground(theme.Primary).Bold(true)
	t.SetStyles(styles)

	return model{dbPath: dbPath, theme: theme, table: t, width: 80}
}

func tableColumns(width int) []table.Column {
	// The error column absorbs whatever width is left.
	errWidth := max(width-36-12-14-28-8, 10)
	return []table.Column{
		{Title: "ID", Width: 36},
		{Title: "Status", Width: 12},
		{Title: "Correlation", Width: 14},
		{Title: "Created", Width: 28},
		{Title: "Last Error", Width: errWidth},
	}
}

// Init starts the first fetch, the refresh tick, and the fs watch.
func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.dbPath), tickCmd(), watchOutboxDir(m.dbPath))
}

// Update handles messages.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.dbPath)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(tableColumns(msg.Width))
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.dbPath), tickCmd())

	case fsChangeMsg:
		// Re-arm the watch after every event; it is a one-shot tea.Cmd.
		return m, tea.Batch(fetchCmd(m.dbPath), watchOutboxDir(m.dbPath))

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.counts = msg.snap.Counts
			m.table.SetRows(tableRows(msg.snap.Rows))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the dashboard.
func (m model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary).Render("sol outbox")
	help := lipgloss.NewStyle().Foreground(m.theme.Muted).Render("r refresh · q quit")

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(m.countsLine())
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(lipgloss.NewStyle().Foreground(m.theme.Error).Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.table.View())
	sb.WriteString("\n")
	sb.WriteString(help)
	return sb.String()
}

// countsLine renders the per-status totals with their badge colors.
func (m model) countsLine() string {
	if m.counts == nil {
		return lipgloss.NewStyle().Foreground(m.theme.Muted).Render("loading...")
	}
	parts := make([]string, 0, 5)
	for _, status := range []string{"queued", "sending", "pending", "succeeded", "failed"} {
		style := lipgloss.NewStyle().Foreground(m.theme.statusColor(status))
		parts = append(parts, style.Render(fmt.Sprintf("%d %s", m.counts[status], status)))
	}
	return strings.Join(parts, "  ")
}

func tableRows(rows []Row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		corr := r.CorrelationID
		if corr == "" {
			corr = "-"
		}
		out = append(out, table.Row{r.ID, r.Status, corr, r.CreatedAt, r.LastError})
	}
	return out
}

func fetchCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		snap, err := FetchSnapshot(context.Background(), dbPath)
		return snapshotMsg{snap: snap, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
