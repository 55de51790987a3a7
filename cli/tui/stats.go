package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/chunkwire/cli/reader"
)

// StatsModel is a Bubble Tea model for the session stats view.
type StatsModel struct {
	data     *reader.SessionStats
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data *reader.SessionStats) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "No session stats"
	}
	d := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session " + d.SessionID))
	b.WriteString("\n")
	for _, f := range [][2]string{
		{"Source", d.Source},
		{"Policy", d.Policy},
		{"Storage", d.StorageBackend},
		{"Recorded", d.Timestamp},
	} {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(f[0]+":"), ValueStyle.Render(f[1]))
	}
	b.WriteString("\n")

	failures := d.Timeouts + d.Incompletes + d.MalformedPackets + d.FrameErrors
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Completed", d.MessagesCompleted, successColor),
		renderStatBox("Failed", d.MessagesFailed, errorColor),
		renderStatBox("Redundant", d.RedundantChunks, warningColor),
		renderStatBox("Packets", d.PacketsAccepted, highlightColor),
	))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("MiB", d.BytesReassembled>>20, highlightColor),
		renderStatBox("Peak live", d.PeakLiveMessages, highlightColor),
		renderStatBox("Protocol errs", failures, errorColor),
		renderStatBox("Sink errs", d.SinkWriteFailure, errorColor),
	))

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	stats, ok := data.(*reader.SessionStats)
	if !ok {
		return fmt.Errorf("stats view: unexpected data type %T", data)
	}
	p := tea.NewProgram(NewStatsModel(stats), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without the full TUI.
func RenderStatsStatic(data *reader.SessionStats) string {
	model := NewStatsModel(data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
